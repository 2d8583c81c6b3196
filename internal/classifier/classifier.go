// Package classifier assigns a question type to free-text queries using weighted
// pattern groups and semantic keyword overlap.
package classifier

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/shitsumon/internal/config"
	"github.com/hyperjump/shitsumon/internal/keyword"
	"github.com/hyperjump/shitsumon/internal/models"
)

// Classifier scores a query against every question type and picks the best one.
// It does no I/O and is safe for concurrent use.
type Classifier struct {
	cfg       config.ClassifierConfig
	patterns  map[models.QuestionType]PatternSet
	keywords  map[models.QuestionType]map[string]struct{}
	tokenizer *keyword.Tokenizer
	logger    *zap.Logger
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Classifier) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithPatterns replaces the built-in pattern table.
func WithPatterns(patterns map[models.QuestionType]PatternSet) Option {
	return func(c *Classifier) {
		if patterns != nil {
			c.patterns = patterns
		}
	}
}

// WithTokenizer sets the tokenizer used for keyword overlap.
func WithTokenizer(t *keyword.Tokenizer) Option {
	return func(c *Classifier) {
		if t != nil {
			c.tokenizer = t
		}
	}
}

// New creates a Classifier. Zero config fields take the package defaults.
func New(cfg config.ClassifierConfig, opts ...Option) *Classifier {
	full := config.Default().Classifier
	mergeConfig(&full, cfg)
	c := &Classifier{
		cfg:      full,
		patterns: DefaultPatterns(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.tokenizer == nil {
		c.tokenizer = keyword.MustTokenizer()
	}
	c.keywords = make(map[models.QuestionType]map[string]struct{}, len(c.patterns))
	for t, set := range c.patterns {
		kw := make(map[string]struct{}, len(set.Keywords))
		for _, k := range set.Keywords {
			kw[strings.ToLower(k)] = struct{}{}
		}
		c.keywords[t] = kw
	}
	return c
}

func mergeConfig(dst *config.ClassifierConfig, src config.ClassifierConfig) {
	if src.ConfidenceThreshold > 0 {
		dst.ConfidenceThreshold = src.ConfidenceThreshold
	}
	if src.PrimaryWeight > 0 {
		dst.PrimaryWeight = src.PrimaryWeight
	}
	if src.SecondaryWeight > 0 {
		dst.SecondaryWeight = src.SecondaryWeight
	}
	if src.ContextualWeight > 0 {
		dst.ContextualWeight = src.ContextualWeight
	}
	if src.KeywordBonusPerHit > 0 {
		dst.KeywordBonusPerHit = src.KeywordBonusPerHit
	}
	if src.MaxKeywordBonus > 0 {
		dst.MaxKeywordBonus = src.MaxKeywordBonus
	}
	if src.ContinuityBonus > 0 {
		dst.ContinuityBonus = src.ContinuityBonus
	}
	if src.LengthNormWords > 0 {
		dst.LengthNormWords = src.LengthNormWords
	}
	if src.MaxAlternatives > 0 {
		dst.MaxAlternatives = src.MaxAlternatives
	}
	if src.AlternativeRatio > 0 {
		dst.AlternativeRatio = src.AlternativeRatio
	}
}

// Threshold returns the confidence a type must reach to win.
func (c *Classifier) Threshold() float64 { return c.cfg.ConfidenceThreshold }

// typeScore is the evidence collected for one question type.
type typeScore struct {
	qtype      models.QuestionType
	matched    []string
	patternSum float64
	kwHits     int
	kwBonus    float64
	continuity float64
	// raw is the uncapped score; it breaks ties between capped scores.
	raw   float64
	score float64
}

// Classify returns the question type of query. It never panics: internal failures
// produce an Unknown result with the error in Reasoning.
func (c *Classifier) Classify(ctx context.Context, query string, qctx *models.QueryContext) (result models.ClassificationResult) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("classification failed", zap.Any("panic", r), zap.String("query", query))
			result = models.UnknownClassification(fmt.Sprintf("classification failed: %v", r))
			result.Degraded = true
		}
	}()

	if strings.TrimSpace(query) == "" {
		return models.UnknownClassification("empty query")
	}
	if err := ctx.Err(); err != nil {
		res := models.UnknownClassification(fmt.Sprintf("classification skipped: %v", err))
		res.Degraded = true
		return res
	}

	scores := c.scoreAll(query, qctx)
	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].score != scores[j].score {
			return scores[i].score > scores[j].score
		}
		return scores[i].raw > scores[j].raw
	})

	best := scores[0]
	won := best.score >= c.cfg.ConfidenceThreshold && len(best.matched) > 0

	result = models.ClassificationResult{Type: models.QuestionUnknown}
	if won {
		result.Type = best.qtype
		result.Confidence = best.score
		result.MatchedPatternCount = len(best.matched)
		result.MatchedPatterns = best.matched
		result.Reasoning = reasoning(best)
	} else {
		result.Reasoning = fmt.Sprintf("no type reached threshold %.2f with a matched pattern (best %s %.2f)",
			c.cfg.ConfidenceThreshold, best.qtype, best.score)
	}

	minAlt := c.cfg.AlternativeRatio * c.cfg.ConfidenceThreshold
	for _, s := range scores {
		if len(result.Alternatives) >= c.cfg.MaxAlternatives {
			break
		}
		if won && s.qtype == best.qtype {
			continue
		}
		if s.score > 0 && s.score >= minAlt {
			result.Alternatives = append(result.Alternatives, models.ScoredType{Type: s.qtype, Score: round3(s.score)})
		}
	}
	return result
}

func (c *Classifier) scoreAll(query string, qctx *models.QueryContext) []typeScore {
	words := len(strings.Fields(query))
	lengthFactor := math.Max(1, float64(words)/float64(c.cfg.LengthNormWords))
	terms := c.tokenizer.TermSet(query)

	var prior models.QuestionType
	if qctx != nil {
		prior = qctx.PriorType
	}

	scores := make([]typeScore, 0, len(models.QuestionTypes))
	for _, t := range models.QuestionTypes {
		set, ok := c.patterns[t]
		if !ok {
			continue
		}
		s := typeScore{qtype: t}
		for _, pat := range set.Patterns {
			if pat.Re.MatchString(query) {
				s.patternSum += c.weight(pat.Group)
				s.matched = append(s.matched, pat.Label)
			}
		}
		for term := range terms {
			if _, hit := c.keywords[t][term]; hit {
				s.kwHits++
			}
		}
		s.kwBonus = math.Min(c.cfg.MaxKeywordBonus, float64(s.kwHits)*c.cfg.KeywordBonusPerHit)
		if prior == t {
			s.continuity = c.cfg.ContinuityBonus
		}
		s.raw = s.patternSum/lengthFactor + s.kwBonus + s.continuity
		s.score = models.Clamp01(s.raw)
		scores = append(scores, s)
	}
	if len(scores) == 0 {
		panic("classifier has no pattern sets")
	}
	return scores
}

func (c *Classifier) weight(g Group) float64 {
	switch g {
	case GroupPrimary:
		return c.cfg.PrimaryWeight
	case GroupSecondary:
		return c.cfg.SecondaryWeight
	case GroupContextual:
		return c.cfg.ContextualWeight
	default:
		return 0
	}
}

func reasoning(s typeScore) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: matched %d pattern(s) [%s]", s.qtype, len(s.matched), strings.Join(s.matched, ", "))
	if s.kwHits > 0 {
		fmt.Fprintf(&b, "; %d keyword hit(s) +%.2f", s.kwHits, s.kwBonus)
	}
	if s.continuity > 0 {
		fmt.Fprintf(&b, "; continuity +%.2f", s.continuity)
	}
	return b.String()
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
