// Package nlp extracts named entities, proper nouns and numbers from query text.
package nlp

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jdkato/prose/v2"
	"go.uber.org/zap"

	"github.com/hyperjump/shitsumon/internal/models"
)

// Source is the Entity.Source value set by extractors in this package.
const Source = "nlp"

// Entity labels for tokens that prose does not tag as named entities.
const (
	LabelProperNoun = "PROPER_NOUN"
	LabelNumber     = "NUMBER"
)

// EntityExtractor finds entities in free text.
type EntityExtractor interface {
	Extract(ctx context.Context, text string) ([]models.Entity, error)
}

// ProseExtractor extracts entities with the prose tokenizer, tagger and NER model.
type ProseExtractor struct {
	logger *zap.Logger
}

// NewProseExtractor creates a prose-backed extractor.
func NewProseExtractor(logger *zap.Logger) *ProseExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProseExtractor{logger: logger}
}

// Extract returns named entities (GPE, PERSON, ORG...), proper nouns and numbers found
// in text, de-duplicated case-insensitively and sorted by text.
func (p *ProseExtractor) Extract(ctx context.Context, text string) ([]models.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	start := time.Now()
	doc, err := prose.NewDocument(text, prose.WithSegmentation(false))
	if err != nil {
		return nil, fmt.Errorf("failed to parse text: %w", err)
	}

	seen := make(map[string]models.Entity)
	for _, ent := range doc.Entities() {
		addEntity(seen, ent.Text, ent.Label, 0.9)
	}
	for _, tok := range doc.Tokens() {
		switch tok.Tag {
		case "NNP", "NNPS":
			addEntity(seen, tok.Text, LabelProperNoun, 0.6)
		case "CD":
			addEntity(seen, tok.Text, LabelNumber, 0.5)
		}
	}

	out := sortedEntities(seen)
	p.logger.Debug("entities extracted",
		zap.Int("count", len(out)),
		zap.Duration("duration", time.Since(start)))
	return out, nil
}

// addEntity keeps the first (highest priority) label seen for a text.
func addEntity(seen map[string]models.Entity, text, label string, score float64) {
	text = strings.Trim(strings.TrimSpace(text), ".,;:!?\"'()")
	if text == "" {
		return
	}
	key := strings.ToLower(text)
	if _, ok := seen[key]; ok {
		return
	}
	seen[key] = models.Entity{Text: text, Label: label, Source: Source, Score: score}
}

func sortedEntities(seen map[string]models.Entity) []models.Entity {
	out := make([]models.Entity, 0, len(seen))
	for _, e := range seen {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Text) < strings.ToLower(out[j].Text)
	})
	return out
}

// MockExtractor returns fixed entities. Safe for concurrent use.
type MockExtractor struct {
	Entities []models.Entity
	Err      error
	Delay    time.Duration

	mu    sync.Mutex
	calls int
}

// Extract returns the configured entities or error after Delay, honouring ctx.
func (m *MockExtractor) Extract(ctx context.Context, _ string) ([]models.Entity, error) {
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
	return append([]models.Entity(nil), m.Entities...), nil
}

// Calls reports how many times Extract was invoked.
func (m *MockExtractor) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
