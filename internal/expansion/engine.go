// Package expansion maps queries onto business domains and generates
// domain-flavoured query variants.
package expansion

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/shitsumon/internal/config"
	"github.com/hyperjump/shitsumon/internal/keyword"
	"github.com/hyperjump/shitsumon/internal/models"
)

const (
	keywordHitScore     = 1.0
	conceptOverlapScore = 0.5
	terminologyHitScore = 0.3

	suffixBase          = 0.7
	suffixNamedBase     = 0.4
	terminologyBase     = 0.5
	terminologyPerTerm  = 0.06
	maxInjectedTerms    = 3
	framingBase         = 0.6
	framingLongBase     = 0.72
	framingLongMinWords = 8
)

type compiledDomain struct {
	profile     DomainProfile
	keywords    []*regexp.Regexp
	concepts    [][]string
	terminology []terminologyEntry
	named       *regexp.Regexp
}

type terminologyEntry struct {
	term     string
	re       *regexp.Regexp
	synonyms []string
}

type pairKey struct{ a, b models.BusinessDomain }

func newPairKey(a, b models.BusinessDomain) pairKey {
	if a > b {
		a, b = b, a
	}
	return pairKey{a, b}
}

// Engine identifies the domains of a query and expands it. Safe for concurrent use.
type Engine struct {
	cfg       config.ExpansionConfig
	domains   []compiledDomain
	byDomain  map[models.BusinessDomain]*compiledDomain
	relations map[pairKey]Relation
	tokenizer *keyword.Tokenizer
	logger    *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithTokenizer sets the tokenizer used for concept overlap and keyword density.
func WithTokenizer(t *keyword.Tokenizer) Option {
	return func(e *Engine) {
		if t != nil {
			e.tokenizer = t
		}
	}
}

// WithRelations replaces the built-in relationship graph.
func WithRelations(rels []Relation) Option {
	return func(e *Engine) {
		e.relations = indexRelations(rels)
	}
}

// New creates an Engine over the given domain profiles; nil profiles use DefaultDomains.
// Zero config fields take the package defaults.
func New(cfg config.ExpansionConfig, profiles []DomainProfile, opts ...Option) *Engine {
	full := config.Default().Expansion
	mergeConfig(&full, cfg)
	if profiles == nil {
		profiles = DefaultDomains()
	}
	var skipped []config.RelationConfig
	if len(full.Relations) > 0 {
		var rels []Relation
		rels, skipped = mergeRelations(DefaultRelations(), full.Relations)
		opts = append([]Option{WithRelations(rels)}, opts...)
	}
	e := &Engine{
		cfg:       full,
		relations: indexRelations(DefaultRelations()),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	for _, r := range skipped {
		e.logger.Warn("skipping relation with unknown domain", zap.String("from", r.From), zap.String("to", r.To))
	}
	if e.tokenizer == nil {
		e.tokenizer = keyword.MustTokenizer()
	}
	e.domains = make([]compiledDomain, 0, len(profiles))
	for _, p := range profiles {
		e.domains = append(e.domains, e.compile(p))
	}
	e.byDomain = make(map[models.BusinessDomain]*compiledDomain, len(e.domains))
	for i := range e.domains {
		e.byDomain[e.domains[i].profile.Domain] = &e.domains[i]
	}
	return e
}

func mergeConfig(dst *config.ExpansionConfig, src config.ExpansionConfig) {
	if src.DomainThreshold > 0 {
		dst.DomainThreshold = src.DomainThreshold
	}
	if src.MaxDomains > 0 {
		dst.MaxDomains = src.MaxDomains
	}
	if src.MaxExpandedQueries > 0 {
		dst.MaxExpandedQueries = src.MaxExpandedQueries
	}
	if src.MaxInsights > 0 {
		dst.MaxInsights = src.MaxInsights
	}
	if src.MaxSuggestedDomains > 0 {
		dst.MaxSuggestedDomains = src.MaxSuggestedDomains
	}
	if src.PreferredBoost > 0 {
		dst.PreferredBoost = src.PreferredBoost
	}
	if src.PriorBoost > 0 {
		dst.PriorBoost = src.PriorBoost
	}
	if len(src.Relations) > 0 {
		dst.Relations = src.Relations
	}
}

// mergeRelations overlays configured edges on base. An edge for an existing pair
// replaces it. Edges naming an unknown domain are returned as skipped.
func mergeRelations(base []Relation, cfg []config.RelationConfig) (out []Relation, skipped []config.RelationConfig) {
	out = append(out, base...)
	at := make(map[pairKey]int, len(out))
	for i, r := range out {
		at[newPairKey(r.A, r.B)] = i
	}
	for _, rc := range cfg {
		a, okA := models.ParseDomain(rc.From)
		b, okB := models.ParseDomain(rc.To)
		if !okA || !okB || a == b {
			skipped = append(skipped, rc)
			continue
		}
		r := Relation{A: a, B: b, Strength: rc.Strength, Insight: rc.Insight}
		k := newPairKey(a, b)
		if i, ok := at[k]; ok {
			out[i] = r
			continue
		}
		at[k] = len(out)
		out = append(out, r)
	}
	return out, skipped
}

func indexRelations(rels []Relation) map[pairKey]Relation {
	m := make(map[pairKey]Relation, len(rels))
	for _, r := range rels {
		m[newPairKey(r.A, r.B)] = r
	}
	return m
}

func wordRegexp(phrase string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(phrase) + `(s|es)?\b`)
}

func (e *Engine) compile(p DomainProfile) compiledDomain {
	cd := compiledDomain{profile: p}
	for _, kw := range p.Keywords {
		cd.keywords = append(cd.keywords, wordRegexp(kw))
	}
	for _, c := range p.Concepts {
		if terms := e.tokenizer.Terms(c); len(terms) > 0 {
			cd.concepts = append(cd.concepts, terms)
		}
	}
	terms := make([]string, 0, len(p.Terminology))
	for t := range p.Terminology {
		terms = append(terms, t)
	}
	sort.Strings(terms)
	for _, t := range terms {
		cd.terminology = append(cd.terminology, terminologyEntry{term: t, re: wordRegexp(t), synonyms: p.Terminology[t]})
	}
	if p.Domain != models.DomainGeneral {
		cd.named = wordRegexp(p.Domain.DisplayName())
	}
	return cd
}

// Vocabulary returns every keyword, concept and terminology phrase known to the engine.
func (e *Engine) Vocabulary() []string {
	var out []string
	for _, d := range e.domains {
		out = append(out, d.profile.Keywords...)
		out = append(out, d.profile.Concepts...)
		for _, t := range d.terminology {
			out = append(out, t.term)
			out = append(out, t.synonyms...)
		}
	}
	return out
}

// Keywords returns the keyword list of domain d.
func (e *Engine) Keywords(d models.BusinessDomain) []string {
	if cd, ok := e.byDomain[d]; ok {
		return cd.profile.Keywords
	}
	return nil
}

// domainScore is the identification evidence for one domain.
type domainScore struct {
	domain      models.BusinessDomain
	index       int
	keywordHits int
	termHits    []terminologyEntry
	score       float64
}

// Expand identifies the primary domains of query and generates expanded variants.
// It never panics and always returns at least one primary domain.
func (e *Engine) Expand(ctx context.Context, query string, qctx *models.QueryContext) (result models.ExpansionResult) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("expansion failed", zap.Any("panic", r), zap.String("query", query))
			result = models.FallbackExpansion()
			result.Degraded = true
		}
	}()

	if strings.TrimSpace(query) == "" {
		return models.FallbackExpansion()
	}
	if ctx.Err() != nil {
		result = models.FallbackExpansion()
		result.Degraded = true
		return result
	}

	terms := e.tokenizer.TermSet(query)
	scores := e.identify(query, terms, qctx)
	if len(scores) == 0 {
		return models.FallbackExpansion()
	}

	result = models.ExpansionResult{
		PrimaryDomains:  make([]models.BusinessDomain, 0, len(scores)),
		ExpandedQueries: []models.ExpandedQuery{},
		DomainScores:    make(map[models.BusinessDomain]float64, len(scores)),
	}
	for _, s := range scores {
		result.PrimaryDomains = append(result.PrimaryDomains, s.domain)
		result.DomainScores[s.domain] = round3(s.score)
	}

	top := scores[0].score
	words := len(strings.Fields(query))
	for i, s := range scores {
		if i >= e.cfg.MaxExpandedQueries {
			break
		}
		result.ExpandedQueries = append(result.ExpandedQueries, e.bestExpansion(query, words, s, top))
	}
	sort.SliceStable(result.ExpandedQueries, func(i, j int) bool {
		return result.ExpandedQueries[i].RelevanceScore > result.ExpandedQueries[j].RelevanceScore
	})
	if len(result.ExpandedQueries) > e.cfg.MaxExpandedQueries {
		result.ExpandedQueries = result.ExpandedQueries[:e.cfg.MaxExpandedQueries]
	}

	result.CrossDomainInsights = e.insights(result.PrimaryDomains)
	result.SuggestedDomains = e.suggestions(result.PrimaryDomains)
	result.Confidence = e.confidence(scores, result.ExpandedQueries, terms)
	return result
}

// ExpandBatch expands each query independently. A failing query yields a
// fallback result without affecting the others.
func (e *Engine) ExpandBatch(ctx context.Context, queries []string, qctx *models.QueryContext) []models.ExpansionResult {
	out := make([]models.ExpansionResult, len(queries))
	for i, q := range queries {
		out[i] = e.Expand(ctx, q, qctx)
	}
	return out
}

func (e *Engine) identify(query string, terms map[string]struct{}, qctx *models.QueryContext) []domainScore {
	boosts := make(map[models.BusinessDomain]float64)
	if qctx != nil {
		for _, d := range qctx.PriorDomains {
			boosts[d] = math.Max(boosts[d], e.cfg.PriorBoost)
		}
		for _, d := range qctx.PreferredDomains {
			boosts[d] = math.Max(boosts[d], e.cfg.PreferredBoost)
		}
	}

	var scores []domainScore
	for i := range e.domains {
		d := &e.domains[i]
		if d.profile.Domain == models.DomainGeneral {
			continue
		}
		s := domainScore{domain: d.profile.Domain, index: i}
		for _, re := range d.keywords {
			if re.MatchString(query) {
				s.keywordHits++
			}
		}
		s.score = float64(s.keywordHits) * keywordHitScore
		for _, concept := range d.concepts {
			overlap := 0
			for _, w := range concept {
				if _, ok := terms[w]; ok {
					overlap++
				}
			}
			if overlap > 0 {
				s.score += conceptOverlapScore * float64(overlap) / float64(len(concept))
			}
		}
		for _, t := range d.terminology {
			if t.re.MatchString(query) {
				s.termHits = append(s.termHits, t)
			}
		}
		s.score += float64(len(s.termHits)) * terminologyHitScore
		s.score += boosts[s.domain]
		if s.score > e.cfg.DomainThreshold {
			scores = append(scores, s)
		}
	}
	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].score != scores[j].score {
			return scores[i].score > scores[j].score
		}
		return scores[i].index < scores[j].index
	})
	if len(scores) > e.cfg.MaxDomains {
		scores = scores[:e.cfg.MaxDomains]
	}
	return scores
}

// bestExpansion builds the three templates for a domain and keeps the highest scoring one.
func (e *Engine) bestExpansion(query string, words int, s domainScore, top float64) models.ExpandedQuery {
	d := e.byDomain[s.domain]
	name := s.domain.DisplayName()
	q := strings.TrimRight(strings.TrimSpace(query), "?.! ")

	suffix := models.ExpandedQuery{
		ExpandedText:   fmt.Sprintf("%s in %s", q, name),
		ExpansionType:  models.ExpansionContextSuffix,
		RelevanceScore: suffixBase,
		AddedTerms:     []string{name},
	}
	if d.named != nil && d.named.MatchString(query) {
		suffix.RelevanceScore = suffixNamedBase
	}

	candidates := []models.ExpandedQuery{suffix}

	if added := injectedTerms(query, s.termHits); len(added) > 0 {
		candidates = append(candidates, models.ExpandedQuery{
			ExpandedText:   fmt.Sprintf("%s considering %s", q, strings.Join(added, ", ")),
			ExpansionType:  models.ExpansionTerminology,
			RelevanceScore: terminologyBase + terminologyPerTerm*float64(len(added)),
			AddedTerms:     added,
		})
	}

	framing := models.ExpandedQuery{
		ExpandedText:   fmt.Sprintf("From a %s perspective, %s", name, lowerFirst(q)),
		ExpansionType:  models.ExpansionIndustryFraming,
		RelevanceScore: framingBase,
		AddedTerms:     []string{name + " perspective"},
	}
	if words >= framingLongMinWords {
		framing.RelevanceScore = framingLongBase
	}
	candidates = append(candidates, framing)

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.RelevanceScore > best.RelevanceScore {
			best = c
		}
	}
	ratio := 1.0
	if top > 0 {
		ratio = s.score / top
	}
	best.OriginalQuery = query
	best.Domain = s.domain
	best.RelevanceScore = round3(models.Clamp01(best.RelevanceScore * (0.6 + 0.4*ratio)))
	return best
}

func injectedTerms(query string, hits []terminologyEntry) []string {
	lower := strings.ToLower(query)
	var added []string
	for _, h := range hits {
		for _, syn := range h.synonyms {
			if len(added) >= maxInjectedTerms {
				return added
			}
			if !strings.Contains(lower, strings.ToLower(syn)) {
				added = append(added, syn)
			}
		}
	}
	return added
}

func (e *Engine) insights(primary []models.BusinessDomain) []string {
	var rels []Relation
	for i := 0; i < len(primary); i++ {
		for j := i + 1; j < len(primary); j++ {
			if r, ok := e.relations[newPairKey(primary[i], primary[j])]; ok && r.Strength >= 0 {
				rels = append(rels, r)
			}
		}
	}
	sort.SliceStable(rels, func(i, j int) bool { return rels[i].Strength > rels[j].Strength })
	if len(rels) > e.cfg.MaxInsights {
		rels = rels[:e.cfg.MaxInsights]
	}
	out := make([]string, 0, len(rels))
	for _, r := range rels {
		out = append(out, fmt.Sprintf("%s and %s (strength %.2f): %s",
			r.A.DisplayName(), r.B.DisplayName(), r.Strength, r.Insight))
	}
	return out
}

func (e *Engine) suggestions(primary []models.BusinessDomain) []models.DomainStrength {
	isPrimary := make(map[models.BusinessDomain]bool, len(primary))
	for _, d := range primary {
		isPrimary[d] = true
	}
	best := make(map[models.BusinessDomain]float64)
	consider := func(d models.BusinessDomain, strength float64) {
		if isPrimary[d] || d == models.DomainGeneral {
			return
		}
		if strength > best[d] {
			best[d] = strength
		}
	}
	for _, p := range primary {
		if cd, ok := e.byDomain[p]; ok {
			for _, rel := range cd.profile.Related {
				strength := 0.5
				if r, ok := e.relations[newPairKey(p, rel)]; ok {
					strength = r.Strength
				}
				consider(rel, strength)
			}
		}
		for k, r := range e.relations {
			switch p {
			case k.a:
				consider(k.b, r.Strength)
			case k.b:
				consider(k.a, r.Strength)
			}
		}
	}
	out := make([]models.DomainStrength, 0, len(best))
	for d, s := range best {
		out = append(out, models.DomainStrength{Domain: d, Strength: s})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Strength != out[j].Strength {
			return out[i].Strength > out[j].Strength
		}
		return out[i].Domain < out[j].Domain
	})
	if len(out) > e.cfg.MaxSuggestedDomains {
		out = out[:e.cfg.MaxSuggestedDomains]
	}
	return out
}

// confidence blends domain count, average expansion relevance and keyword density.
func (e *Engine) confidence(scores []domainScore, expanded []models.ExpandedQuery, terms map[string]struct{}) float64 {
	countTerm := math.Min(1, float64(len(scores))/3)
	avgRel := 0.0
	if len(expanded) > 0 {
		for _, eq := range expanded {
			avgRel += eq.RelevanceScore
		}
		avgRel /= float64(len(expanded))
	}
	return round3(models.Clamp01(0.4*countTerm + 0.4*avgRel + 0.2*e.keywordDensity(scores, terms)))
}

func (e *Engine) keywordDensity(scores []domainScore, terms map[string]struct{}) float64 {
	if len(terms) == 0 {
		return 0
	}
	hits := 0
	for _, s := range scores {
		hits += s.keywordHits
	}
	return math.Min(1, float64(hits)/float64(len(terms)))
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	if len(r) > 1 && r[1] >= 'A' && r[1] <= 'Z' {
		return s
	}
	r[0] = []rune(strings.ToLower(string(r[0])))[0]
	return string(r)
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
