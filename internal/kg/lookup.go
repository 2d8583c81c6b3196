// Package kg enriches query context with entities recognised by a knowledge graph.
package kg

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/hyperjump/shitsumon/internal/config"
	"github.com/hyperjump/shitsumon/internal/models"
)

// Source is the Entity.Source value set by lookups in this package.
const Source = "knowledge_graph"

// minTermLength drops stop-word sized terms before querying.
const minTermLength = 3

// Lookup resolves query terms to known entities.
type Lookup interface {
	LookupEntities(ctx context.Context, terms []string) ([]models.Entity, error)
}

const lookupQuery = `
	MATCH (e:Entity)
	WHERE toLower(e.name) IN $terms OR toLower(e.canonical_name) IN $terms
	RETURN e.name AS name, e.type AS type
	ORDER BY name
	LIMIT $limit
`

// Neo4jLookup matches terms against (:Entity {name, canonical_name, type}) nodes.
type Neo4jLookup struct {
	driver   neo4j.DriverWithContext
	database string
	limit    int
	logger   *zap.Logger
}

// NewNeo4jLookup connects to the graph described by cfg and verifies connectivity.
func NewNeo4jLookup(ctx context.Context, cfg config.KnowledgeGraphConfig, logger *zap.Logger) (*Neo4jLookup, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := config.Default().Collaborators.KnowledgeGraph
	if cfg.Database == "" {
		cfg.Database = def.Database
	}
	if cfg.Limit <= 0 {
		cfg.Limit = def.Limit
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("failed to verify connectivity: %w", err)
	}
	logger.Info("knowledge graph connected", zap.String("uri", cfg.URI), zap.String("database", cfg.Database))

	return &Neo4jLookup{driver: driver, database: cfg.Database, limit: cfg.Limit, logger: logger}, nil
}

// LookupEntities returns the entities whose name or canonical name equals one of the
// terms, ignoring case.
func (l *Neo4jLookup) LookupEntities(ctx context.Context, terms []string) ([]models.Entity, error) {
	terms = NormalizeTerms(terms)
	if len(terms) == 0 {
		return nil, nil
	}
	start := time.Now()

	session := l.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: l.database,
		AccessMode:   neo4j.AccessModeRead,
	})
	defer session.Close(ctx)

	result, err := session.Run(ctx, lookupQuery, map[string]any{
		"terms": terms,
		"limit": l.limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to look up entities: %w", err)
	}

	var entities []models.Entity
	for result.Next(ctx) {
		if e, ok := entityFromRecord(result.Record()); ok {
			entities = append(entities, e)
		}
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("error iterating results: %w", err)
	}

	l.logger.Debug("knowledge graph lookup",
		zap.Int("terms", len(terms)),
		zap.Int("found", len(entities)),
		zap.Duration("duration", time.Since(start)))
	return entities, nil
}

// Close releases the driver.
func (l *Neo4jLookup) Close(ctx context.Context) error {
	return l.driver.Close(ctx)
}

func entityFromRecord(record *neo4j.Record) (models.Entity, bool) {
	if record == nil {
		return models.Entity{}, false
	}
	nameVal, _ := record.Get("name")
	name, ok := nameVal.(string)
	if !ok || name == "" {
		return models.Entity{}, false
	}
	typeVal, _ := record.Get("type")
	label, _ := typeVal.(string)
	if label == "" {
		label = "ENTITY"
	}
	return models.Entity{Text: name, Label: strings.ToUpper(label), Source: Source, Score: 1}, true
}

// NormalizeTerms lowercases terms, drops short and duplicate ones and sorts the rest.
func NormalizeTerms(terms []string) []string {
	seen := make(map[string]bool, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if len([]rune(t)) < minTermLength || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// MockLookup resolves terms from an in-memory table keyed by lowercase term.
type MockLookup struct {
	Known map[string]models.Entity
	Err   error
	Delay time.Duration

	mu    sync.Mutex
	calls int
}

// LookupEntities returns the known entities for terms, sorted by text.
func (m *MockLookup) LookupEntities(ctx context.Context, terms []string) ([]models.Entity, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.Delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.Delay):
		}
	}
	if m.Err != nil {
		return nil, m.Err
	}
	var out []models.Entity
	for _, t := range NormalizeTerms(terms) {
		if e, ok := m.Known[t]; ok {
			if e.Source == "" {
				e.Source = Source
			}
			out = append(out, e)
		}
	}
	return out, nil
}

// Calls reports how many lookups were made.
func (m *MockLookup) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
