// Package finder orchestrates classification, domain expansion, quality scoring and
// conversation tracking for single queries and batches.
package finder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/hyperjump/shitsumon/internal/classifier"
	"github.com/hyperjump/shitsumon/internal/config"
	"github.com/hyperjump/shitsumon/internal/expansion"
	"github.com/hyperjump/shitsumon/internal/keyword"
	"github.com/hyperjump/shitsumon/internal/kg"
	"github.com/hyperjump/shitsumon/internal/llm"
	"github.com/hyperjump/shitsumon/internal/metrics"
	"github.com/hyperjump/shitsumon/internal/models"
	"github.com/hyperjump/shitsumon/internal/nlp"
	"github.com/hyperjump/shitsumon/internal/optimizer"
	"github.com/hyperjump/shitsumon/internal/quality"
	"github.com/hyperjump/shitsumon/internal/session"
)

// ErrBatchTooLarge is returned by BatchFind when the batch exceeds the configured ceiling.
var ErrBatchTooLarge = errors.New("batch exceeds maximum size")

// emaAlpha is the smoothing factor of the hit-rate and latency moving averages.
const emaAlpha = 0.1

const tracerName = "github.com/hyperjump/shitsumon/internal/finder"

// Classifier assigns a question type to a query.
type Classifier interface {
	Classify(ctx context.Context, query string, qctx *models.QueryContext) models.ClassificationResult
}

// Expander expands a query across business domains.
type Expander interface {
	Expand(ctx context.Context, query string, qctx *models.QueryContext) models.ExpansionResult
}

// Assessor scores query quality.
type Assessor interface {
	Assess(ctx context.Context, query string, qtype models.QuestionType, domain models.BusinessDomain, qctx *models.QueryContext) models.QualityAssessment
}

// queryCorrector is implemented by assessors that can fix misspellings in a query.
type queryCorrector interface {
	CorrectedQuery(query string) string
}

// Stats are the finder's running counters. CacheHitRate and AvgLatencyMS are
// exponential moving averages.
type Stats struct {
	TotalQueries uint64                 `json:"total_queries"`
	CacheHits    uint64                 `json:"cache_hits"`
	CacheHitRate float64                `json:"cache_hit_rate"`
	AvgLatencyMS float64                `json:"avg_latency_ms"`
	Degraded     uint64                 `json:"degraded"`
	Batches      uint64                 `json:"batches"`
	ModeCounts   map[models.Mode]uint64 `json:"mode_counts"`
}

// Result is the value cached and returned for every query.
type Result = models.QueryFinderResult

// Finder runs the mode pipelines over shared, constructor-injected components.
type Finder struct {
	cfg        config.Config
	classifier Classifier
	expander   Expander
	scorer     Assessor
	sessions   *session.Store
	opt        *optimizer.Optimizer[*Result]
	extractor  nlp.EntityExtractor
	graph      kg.Lookup
	engine     llm.ConversationalEngine
	tokenizer  *keyword.Tokenizer
	logger     *zap.Logger
	metrics    *metrics.Metrics
	tracer     trace.Tracer
	now        func() time.Time

	running atomic.Bool

	mu    sync.Mutex
	stats Stats
}

// Option configures a Finder.
type Option func(*Finder)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(f *Finder) {
		if l != nil {
			f.logger = l
		}
	}
}

// WithMetrics records query, stage and cache metrics to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(f *Finder) { f.metrics = m }
}

// WithTracer replaces the tracer obtained from the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(f *Finder) { f.tracer = t }
}

// WithClassifier replaces the pattern classifier.
func WithClassifier(c Classifier) Option {
	return func(f *Finder) { f.classifier = c }
}

// WithExpander replaces the domain expansion engine.
func WithExpander(e Expander) Option {
	return func(f *Finder) { f.expander = e }
}

// WithAssessor replaces the quality scorer.
func WithAssessor(a Assessor) Option {
	return func(f *Finder) { f.scorer = a }
}

// WithSessionStore uses s for conversational memory. The finder takes ownership and
// closes it in Close.
func WithSessionStore(s *session.Store) Option {
	return func(f *Finder) { f.sessions = s }
}

// WithOptimizer uses o for caching, pooling and batch queueing. The finder takes
// ownership and closes it in Close.
func WithOptimizer(o *optimizer.Optimizer[*Result]) Option {
	return func(f *Finder) { f.opt = o }
}

// WithEntityExtractor enables NLP entity extraction.
func WithEntityExtractor(e nlp.EntityExtractor) Option {
	return func(f *Finder) { f.extractor = e }
}

// WithKnowledgeGraph enables knowledge-graph entity lookup.
func WithKnowledgeGraph(l kg.Lookup) Option {
	return func(f *Finder) { f.graph = l }
}

// WithConversationalEngine enables engine-suggested actions in comprehensive mode.
func WithConversationalEngine(e llm.ConversationalEngine) Option {
	return func(f *Finder) { f.engine = e }
}

// WithTokenizer shares a tokenizer with the default stages.
func WithTokenizer(t *keyword.Tokenizer) Option {
	return func(f *Finder) { f.tokenizer = t }
}

// WithClock replaces time.Now for result timestamps.
func WithClock(now func() time.Time) Option {
	return func(f *Finder) { f.now = now }
}

// New creates a Finder. Stages, the session store and the optimizer not supplied as
// options are built from cfg. Call Start to run background loops and Close to stop them.
func New(cfg config.Config, opts ...Option) *Finder {
	config.ApplyDefaults(&cfg)
	f := &Finder{
		cfg:    cfg,
		logger: zap.NewNop(),
		now:    time.Now,
		stats:  Stats{ModeCounts: make(map[models.Mode]uint64)},
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.tracer == nil {
		f.tracer = otel.Tracer(tracerName)
	}
	if f.tokenizer == nil {
		f.tokenizer = keyword.MustTokenizer()
	}
	if f.classifier == nil {
		f.classifier = classifier.New(cfg.Classifier,
			classifier.WithLogger(f.logger.Named("classifier")),
			classifier.WithTokenizer(f.tokenizer))
	}
	if f.expander == nil {
		f.expander = expansion.New(cfg.Expansion, nil,
			expansion.WithLogger(f.logger.Named("expansion")),
			expansion.WithTokenizer(f.tokenizer))
	}
	if f.scorer == nil {
		qopts := []quality.Option{
			quality.WithLogger(f.logger.Named("quality")),
			quality.WithTokenizer(f.tokenizer),
		}
		if vocab, ok := f.expander.(quality.VocabularySource); ok {
			qopts = append(qopts, quality.WithVocabulary(vocab))
		}
		f.scorer = quality.New(cfg.Quality, qopts...)
	}
	if f.sessions == nil && cfg.Session.EnabledOrDefault() {
		f.sessions = session.New(cfg.Session, session.WithLogger(f.logger.Named("session")))
	}
	if f.opt == nil {
		f.opt = optimizer.New[*Result](cfg,
			optimizer.WithLogger(f.logger.Named("optimizer")),
			optimizer.WithMetrics(f.metrics))
	}
	return f
}

// Start runs the session sweep and the optimizer's background loops.
func (f *Finder) Start(ctx context.Context) {
	if f.sessions != nil {
		f.sessions.Start(ctx)
	}
	f.opt.Start(ctx)
	f.running.Store(true)
}

// Close stops background loops and releases the session store and optimizer.
func (f *Finder) Close() error {
	f.running.Store(false)
	var result *multierror.Error
	if err := f.opt.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	if f.sessions != nil {
		if err := f.sessions.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// Optimizer returns the cache, pool, queue and monitor owner.
func (f *Finder) Optimizer() *optimizer.Optimizer[*Result] { return f.opt }

// Sessions returns the session store, or nil when conversational memory is disabled.
func (f *Finder) Sessions() *session.Store { return f.sessions }

// Classify runs the classifier stage alone.
func (f *Finder) Classify(ctx context.Context, query string, qctx *models.QueryContext) models.ClassificationResult {
	return f.classifier.Classify(ctx, query, qctx)
}

// Expand runs the expansion stage alone.
func (f *Finder) Expand(ctx context.Context, query string, qctx *models.QueryContext) models.ExpansionResult {
	return f.expander.Expand(ctx, query, qctx)
}

// Assess runs the quality stage alone.
func (f *Finder) Assess(ctx context.Context, query string, qtype models.QuestionType, domain models.BusinessDomain, qctx *models.QueryContext) models.QualityAssessment {
	return f.scorer.Assess(ctx, query, qtype, domain, qctx)
}

// CacheKey identifies a (query, mode, context) triple. Queries that differ only in case
// or whitespace share a key.
func CacheKey(query string, mode models.Mode, qctx *models.QueryContext) string {
	h := sha256.New()
	h.Write([]byte(models.NormalizeQuery(query)))
	h.Write([]byte{0})
	h.Write([]byte(mode))
	h.Write([]byte{0})
	h.Write([]byte(qctx.Digest()))
	return hex.EncodeToString(h.Sum(nil))
}

// Find processes one query. A cached result for the same query, mode and context is
// returned as is. Invalid input yields a result with Error set; stage failures degrade
// the affected stage only.
func (f *Finder) Find(ctx context.Context, query string, mode models.Mode, qctx *models.QueryContext) *Result {
	ctx, span := f.tracer.Start(ctx, "finder.Find", trace.WithAttributes(attribute.String("mode", string(mode))))
	defer span.End()

	m, err := models.ParseMode(string(mode))
	if err != nil {
		f.logger.Warn("invalid mode", zap.String("mode", string(mode)), zap.Error(err))
		return models.ErrorResult(query, mode, err.Error())
	}
	if strings.TrimSpace(query) == "" {
		return models.ErrorResult(query, m, "empty query")
	}

	key := CacheKey(query, m, qctx)
	if res, ok := f.cached(key, m); ok {
		span.SetAttributes(attribute.Bool("cache_hit", true))
		return res
	}
	span.SetAttributes(attribute.Bool("cache_hit", false))
	base, sessionID := f.baseContext(qctx)
	return f.compute(ctx, key, query, m, base, sessionID)
}

// cached returns the cached result for key and records the hit.
func (f *Finder) cached(key string, mode models.Mode) (*Result, bool) {
	start := time.Now()
	res, ok := f.opt.Cache.Get(key)
	f.metrics.ObserveCache(ok)
	if ok {
		f.recordHits(mode, 1, time.Since(start))
	}
	return res, ok
}

// compute runs the pipeline on a copy of base and caches the result under key.
// Degraded results and results computed under a finished ctx are not cached.
func (f *Finder) compute(ctx context.Context, key, query string, mode models.Mode, base *models.QueryContext, sessionID string) *Result {
	res := f.process(ctx, query, mode, base.Clone(), sessionID)
	if cacheable(ctx, res) {
		f.opt.Cache.Set(key, res)
	}
	f.recordMiss(res)
	return res
}

func cacheable(ctx context.Context, res *Result) bool {
	return ctx.Err() == nil && res.Error == "" && !isDegraded(res)
}

// baseContext merges the caller's context with the session's recent context. With
// conversational memory enabled a missing session is created.
func (f *Finder) baseContext(qctx *models.QueryContext) (*models.QueryContext, string) {
	base := qctx.Clone()
	if f.sessions == nil {
		return base, base.SessionID
	}
	sess := f.sessions.GetOrCreate(base.SessionID, base.UserID)
	base.SessionID = sess.SessionID
	if base.UserID == "" {
		base.UserID = sess.UserID
	}
	mergeContext(base, f.sessions.RecentContext(sess.SessionID))
	return base, sess.SessionID
}

// mergeContext fills dst from the session's recent context. Caller values win.
func mergeContext(dst, recent *models.QueryContext) {
	if recent == nil {
		return
	}
	if !dst.PriorType.Known() && recent.PriorType != "" {
		dst.PriorType = recent.PriorType
	}
	if len(dst.PriorDomains) == 0 {
		dst.PriorDomains = append([]models.BusinessDomain(nil), recent.PriorDomains...)
	}
	dst.Entities = mergeEntities(dst.Entities, recent.Entities)
	if len(recent.Parameters) > 0 {
		params := make(map[string]string, len(recent.Parameters)+len(dst.Parameters))
		for k, v := range recent.Parameters {
			params[k] = v
		}
		for k, v := range dst.Parameters {
			params[k] = v
		}
		dst.Parameters = params
	}
}

func (f *Finder) recordHits(mode models.Mode, n int, latency time.Duration) {
	if n <= 0 {
		return
	}
	f.mu.Lock()
	for i := 0; i < n; i++ {
		f.stats.TotalQueries++
		f.stats.CacheHits++
		f.stats.CacheHitRate = emaAlpha + (1-emaAlpha)*f.stats.CacheHitRate
		f.stats.ModeCounts[mode]++
	}
	f.mu.Unlock()
	for i := 0; i < n; i++ {
		f.opt.RecordQuery(latency)
		f.metrics.ObserveQuery(string(mode), "cached", latency, 0)
	}
}

func (f *Finder) recordMiss(res *Result) {
	latency := time.Duration(res.ProcessingTimeMS * float64(time.Millisecond))
	degraded := isDegraded(res)

	f.mu.Lock()
	f.stats.TotalQueries++
	f.stats.CacheHitRate *= 1 - emaAlpha
	if f.stats.AvgLatencyMS == 0 {
		f.stats.AvgLatencyMS = res.ProcessingTimeMS
	} else {
		f.stats.AvgLatencyMS = emaAlpha*res.ProcessingTimeMS + (1-emaAlpha)*f.stats.AvgLatencyMS
	}
	f.stats.ModeCounts[res.Mode]++
	if degraded {
		f.stats.Degraded++
	}
	f.mu.Unlock()

	status := "ok"
	if degraded {
		status = "degraded"
	}
	f.opt.RecordQuery(latency)
	f.metrics.ObserveQuery(string(res.Mode), status, latency, res.OverallConfidence)
}

func isDegraded(res *Result) bool {
	if res.Classification.Degraded {
		return true
	}
	if res.Expansion != nil && res.Expansion.Degraded {
		return true
	}
	return res.Quality != nil && res.Quality.Degraded
}

// Stats returns a copy of the running counters.
func (f *Finder) Stats() Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.stats
	s.ModeCounts = make(map[models.Mode]uint64, len(f.stats.ModeCounts))
	for k, v := range f.stats.ModeCounts {
		s.ModeCounts[k] = v
	}
	return s
}
