// Package quality grades a query on seven dimensions and suggests improvements.
package quality

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/shitsumon/internal/config"
	"github.com/hyperjump/shitsumon/internal/expansion"
	"github.com/hyperjump/shitsumon/internal/keyword"
	"github.com/hyperjump/shitsumon/internal/models"
)

// VocabularySource supplies domain keywords for relevance and spelling checks.
// *expansion.Engine implements it.
type VocabularySource interface {
	Vocabulary() []string
	Keywords(d models.BusinessDomain) []string
}

// Weights maps a dimension to its contribution to the overall score.
type Weights map[models.Dimension]float64

// DefaultWeights returns the per question type dimension weights.
func DefaultWeights() map[models.QuestionType]Weights {
	return map[models.QuestionType]Weights{
		models.QuestionProcedural: {
			models.DimensionActionability: 0.4,
			models.DimensionCompleteness:  0.3,
			models.DimensionClarity:       0.2,
			models.DimensionSpecificity:   0.1,
		},
		models.QuestionFactual: {
			models.DimensionAccuracy:     0.4,
			models.DimensionRelevance:    0.3,
			models.DimensionCompleteness: 0.2,
			models.DimensionClarity:      0.1,
		},
		models.QuestionAnalytical: {
			models.DimensionComplexity:   0.3,
			models.DimensionCompleteness: 0.3,
			models.DimensionRelevance:    0.2,
			models.DimensionClarity:      0.2,
		},
		models.QuestionComparative: {
			models.DimensionCompleteness: 0.35,
			models.DimensionSpecificity:  0.25,
			models.DimensionClarity:      0.2,
			models.DimensionRelevance:    0.2,
		},
		models.QuestionCreative: {
			models.DimensionActionability: 0.3,
			models.DimensionRelevance:     0.3,
			models.DimensionClarity:       0.2,
			models.DimensionComplexity:    0.2,
		},
		models.QuestionDiagnostic: {
			models.DimensionSpecificity:  0.4,
			models.DimensionCompleteness: 0.3,
			models.DimensionClarity:      0.2,
			models.DimensionAccuracy:     0.1,
		},
		models.QuestionUnknown: {
			models.DimensionRelevance:     0.25,
			models.DimensionClarity:       0.25,
			models.DimensionCompleteness:  0.25,
			models.DimensionActionability: 0.25,
		},
	}
}

var dimensionAdvice = map[models.Dimension][]string{
	models.DimensionClarity: {
		"Rephrase the request as a single direct question",
		"Replace vague words like 'thing' or 'stuff' with precise terms",
	},
	models.DimensionRelevance: {
		"Mention the business area or context the question applies to",
	},
	models.DimensionCompleteness: {
		"Add context such as audience, time frame or constraints",
		"Say what a useful answer should cover",
	},
	models.DimensionActionability: {
		"State the decision or outcome you want to reach",
	},
	models.DimensionAccuracy: {
		"Reference the data source or period the answer should rely on",
	},
	models.DimensionSpecificity: {
		"Include specific names, numbers or examples",
	},
	models.DimensionComplexity: {
		"Spell out the factors or relationships you want explored",
	},
}

// Common query words that are never treated as misspellings.
var baseVocabulary = []string{
	"what how why when where who which should could would does compare comparison analyze analyse",
	"explain list describe create write find show identify evaluate calculate design draft recommend",
	"troubleshoot diagnose brainstorm summarize summarise estimate improve increase reduce optimize",
	"build plan launch implement impact relationship strategy between versus against better worse best",
	"difference options approach steps guide example examples people team company business customers",
	"product products service services quarter month year week today performance results trends",
	"issue issues problem problems error errors failing failure dropping growth ideas names",
}

// Scorer assesses query quality. Safe for concurrent use.
type Scorer struct {
	cfg       config.QualityConfig
	weights   map[models.QuestionType]Weights
	assessors []Assessor
	vocab     VocabularySource
	tokenizer *keyword.Tokenizer
	spell     *keyword.SpellChecker
	logger    *zap.Logger
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Scorer) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithVocabulary sets the domain vocabulary source. Defaults to a built-in expansion engine.
func WithVocabulary(v VocabularySource) Option {
	return func(s *Scorer) {
		if v != nil {
			s.vocab = v
		}
	}
}

// WithWeights overrides the dimension weights for the given question types.
func WithWeights(w map[models.QuestionType]Weights) Option {
	return func(s *Scorer) {
		for t, weights := range w {
			s.weights[t] = weights
		}
	}
}

// WithAssessors replaces the dimension assessors.
func WithAssessors(a ...Assessor) Option {
	return func(s *Scorer) {
		if len(a) > 0 {
			s.assessors = a
		}
	}
}

// WithTokenizer sets the tokenizer used to count content words.
func WithTokenizer(t *keyword.Tokenizer) Option {
	return func(s *Scorer) {
		if t != nil {
			s.tokenizer = t
		}
	}
}

// New creates a Scorer. Zero config fields take the package defaults.
func New(cfg config.QualityConfig, opts ...Option) *Scorer {
	full := config.Default().Quality
	if cfg.StrengthThreshold > 0 {
		full.StrengthThreshold = cfg.StrengthThreshold
	}
	if cfg.WeaknessThreshold > 0 {
		full.WeaknessThreshold = cfg.WeaknessThreshold
	}
	if cfg.MaxStrengths > 0 {
		full.MaxStrengths = cfg.MaxStrengths
	}
	if cfg.MaxSuggestions > 0 {
		full.MaxSuggestions = cfg.MaxSuggestions
	}
	if cfg.SpellCheck != nil {
		full.SpellCheck = cfg.SpellCheck
	}
	if cfg.SpellMaxDistance > 0 {
		full.SpellMaxDistance = cfg.SpellMaxDistance
	}
	if cfg.SpellMinWordLength > 0 {
		full.SpellMinWordLength = cfg.SpellMinWordLength
	}

	s := &Scorer{
		cfg:       full,
		weights:   DefaultWeights(),
		assessors: DefaultAssessors(),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tokenizer == nil {
		s.tokenizer = keyword.MustTokenizer()
	}
	if s.vocab == nil {
		s.vocab = expansion.New(config.ExpansionConfig{}, nil, expansion.WithTokenizer(s.tokenizer))
	}
	if s.cfg.SpellCheckOrDefault() {
		phrases := append(append([]string{}, baseVocabulary...), s.vocab.Vocabulary()...)
		s.spell = keyword.NewSpellChecker(keyword.NewVocabulary(phrases...),
			keyword.WithMaxDistance(s.cfg.SpellMaxDistance),
			keyword.WithMinWordLength(s.cfg.SpellMinWordLength))
	}
	return s
}

// CorrectedQuery replaces likely misspellings in query with their closest vocabulary
// term. query is returned unchanged when spell checking is off or nothing matched.
func (s *Scorer) CorrectedQuery(query string) string {
	if s.spell == nil {
		return query
	}
	return s.spell.CorrectedQuery(query)
}

// Assess scores query on every dimension and blends the dimensions with the weights of qtype.
// Empty input yields an all-zero F assessment. A panicking assessor degrades the result
// instead of propagating.
func (s *Scorer) Assess(ctx context.Context, query string, qtype models.QuestionType, domain models.BusinessDomain, qctx *models.QueryContext) (result models.QualityAssessment) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("quality assessment failed",
				zap.String("stage", models.StageQuality),
				zap.Any("panic", r))
			result = emptyAssessment(qtype, domain, fmt.Sprintf("assessment failed: %v", r))
			result.Degraded = true
		}
	}()

	if strings.TrimSpace(query) == "" {
		return emptyAssessment(qtype, domain, "empty query")
	}
	if err := ctx.Err(); err != nil {
		result = emptyAssessment(qtype, domain, err.Error())
		result.Degraded = true
		return result
	}
	if qtype == "" {
		qtype = models.QuestionUnknown
	}

	ac := s.analyze(query, qtype, domain, qctx)
	dims := make([]models.DimensionScore, 0, len(s.assessors))
	for _, a := range s.assessors {
		dims = append(dims, a.Assess(ac))
	}

	result = models.NewQualityAssessment(round3(s.overall(qtype, dims)), dims)
	result.QuestionType = qtype
	result.Domain = domain
	result.Strengths = s.strengths(dims)
	result.ImprovementSuggestions = s.suggestions(dims, ac.Misspellings)
	result.Confidence = round3(confidence(dims, qtype, domain))
	return result
}

// Item is one entry of an AssessBatch call.
type Item struct {
	Query   string
	Type    models.QuestionType
	Domain  models.BusinessDomain
	Context *models.QueryContext
}

// AssessBatch assesses each item independently; one failing item never affects the others.
func (s *Scorer) AssessBatch(ctx context.Context, items []Item) []models.QualityAssessment {
	out := make([]models.QualityAssessment, len(items))
	for i, it := range items {
		out[i] = s.Assess(ctx, it.Query, it.Type, it.Domain, it.Context)
	}
	return out
}

func (s *Scorer) analyze(query string, qtype models.QuestionType, domain models.BusinessDomain, qctx *models.QueryContext) *AssessContext {
	words := keyword.Words(query)
	ac := &AssessContext{
		Query:   query,
		Lower:   strings.ToLower(query),
		Words:   words,
		Terms:   s.tokenizer.Terms(query),
		Type:    qtype,
		Domain:  domain,
		Context: qctx,
	}
	if domain.Known() {
		padded := " " + strings.Join(words, " ") + " "
		for _, kw := range s.vocab.Keywords(domain) {
			if strings.Contains(padded, " "+strings.ToLower(kw)+" ") {
				ac.DomainHits = append(ac.DomainHits, kw)
			}
		}
	}
	if s.spell != nil {
		ac.Misspellings = s.spell.Misspellings(query)
	}
	return ac
}

func (s *Scorer) overall(qtype models.QuestionType, dims []models.DimensionScore) float64 {
	weights, ok := s.weights[qtype]
	if !ok {
		weights = s.weights[models.QuestionUnknown]
	}
	var sum, total float64
	for _, d := range dims {
		w := weights[d.Dimension]
		sum += w * d.Score
		total += w
	}
	if total == 0 {
		return 0
	}
	return sum / total
}

// strengths returns the highest scoring dimensions at or above the strength threshold.
func (s *Scorer) strengths(dims []models.DimensionScore) []models.Dimension {
	ranked := rank(dims, func(a, b float64) bool { return a > b })
	var out []models.Dimension
	for _, d := range ranked {
		if d.Score < s.cfg.StrengthThreshold || len(out) >= s.cfg.MaxStrengths {
			break
		}
		out = append(out, d.Dimension)
	}
	return out
}

// suggestions advises on the two weakest dimensions below the weakness threshold,
// preceded by spelling hints.
func (s *Scorer) suggestions(dims []models.DimensionScore, miss []keyword.Misspelling) []string {
	var out []string
	for _, m := range miss {
		out = append(out, fmt.Sprintf("Did you mean %q instead of %q?", m.Suggestion.Term, m.Word))
	}
	weakest := 0
	for _, d := range rank(dims, func(a, b float64) bool { return a < b }) {
		if d.Score >= s.cfg.WeaknessThreshold || weakest == 2 {
			break
		}
		weakest++
		out = append(out, dimensionAdvice[d.Dimension]...)
	}
	if len(out) > s.cfg.MaxSuggestions {
		out = out[:s.cfg.MaxSuggestions]
	}
	return out
}

// rank sorts a copy of dims by score, ties kept in dimension order.
func rank(dims []models.DimensionScore, less func(a, b float64) bool) []models.DimensionScore {
	out := append([]models.DimensionScore(nil), dims...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score == out[j].Score {
			return false
		}
		return less(out[i].Score, out[j].Score)
	})
	return out
}

// confidence rewards consistent dimension scores and a known type and domain.
func confidence(dims []models.DimensionScore, qtype models.QuestionType, domain models.BusinessDomain) float64 {
	if len(dims) == 0 {
		return 0
	}
	var mean float64
	for _, d := range dims {
		mean += d.Score
	}
	mean /= float64(len(dims))
	var variance float64
	for _, d := range dims {
		variance += (d.Score - mean) * (d.Score - mean)
	}
	variance /= float64(len(dims))

	c := 0.5 * models.Clamp01(1-variance/0.25)
	if qtype.Known() {
		c += 0.3
	}
	if domain.Known() {
		c += 0.2
	}
	return models.Clamp01(c)
}

func emptyAssessment(qtype models.QuestionType, domain models.BusinessDomain, reason string) models.QualityAssessment {
	a := models.FallbackAssessment(qtype, domain, reason)
	a.Degraded = false
	a.ImprovementSuggestions = []string{"Enter a question to assess"}
	return a
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
