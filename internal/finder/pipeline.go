package finder

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/shitsumon/internal/llm"
	"github.com/hyperjump/shitsumon/internal/models"
)

// historyTurns is how many earlier session queries are sent to the conversational engine.
const historyTurns = 3

// outcome is the settled result of one stage call.
type outcome[T any] struct {
	value   T
	elapsed time.Duration
	err     error
}

// runStage calls fn under timeout and returns fallback when fn fails, panics or runs
// out of time. A timed out call is abandoned, not interrupted.
func runStage[T any](ctx context.Context, f *Finder, name string, timeout time.Duration, fallback T, fn func(context.Context) (T, error)) outcome[T] {
	ctx, span := f.tracer.Start(ctx, "stage."+name)
	defer span.End()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	done := make(chan outcome[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome[T]{value: fallback, err: fmt.Errorf("stage %s panicked: %v", name, r)}
			}
		}()
		v, err := fn(ctx)
		if err != nil {
			done <- outcome[T]{value: fallback, err: err}
			return
		}
		done <- outcome[T]{value: v}
	}()

	var out outcome[T]
	select {
	case out = <-done:
	case <-ctx.Done():
		out = outcome[T]{value: fallback, err: fmt.Errorf("stage %s: %w", name, ctx.Err())}
	}
	out.elapsed = time.Since(start)
	if out.err != nil {
		span.RecordError(out.err)
		span.SetStatus(codes.Error, out.err.Error())
		f.logger.Warn("stage degraded", zap.String("stage", name), zap.Error(out.err))
	}
	f.metrics.ObserveStage(name, out.elapsed, out.err != nil)
	return out
}

// recorder collects per-stage bookkeeping for a result.
type recorder struct {
	res         *Result
	confidences []float64
}

func (r *recorder) stage(name string, elapsed time.Duration) {
	r.res.ComponentsUsed = append(r.res.ComponentsUsed, name)
	r.res.StageTimings[name] = millis(elapsed)
}

// confidence records a stage confidence; only healthy stages count toward the overall mean.
func (r *recorder) confidence(name string, c float64, degraded bool) {
	r.res.ConfidenceScores[name] = c
	if !degraded {
		r.confidences = append(r.confidences, c)
	}
}

func (r *recorder) overall() float64 {
	if len(r.confidences) == 0 {
		return 0
	}
	var sum float64
	for _, c := range r.confidences {
		sum += c
	}
	return round3(models.Clamp01(sum / float64(len(r.confidences))))
}

// process runs the pipeline of mode over query. base is owned by the call.
func (f *Finder) process(ctx context.Context, query string, mode models.Mode, base *models.QueryContext, sessionID string) *Result {
	start := time.Now()
	res := &Result{
		Query:            query,
		Mode:             mode,
		SessionID:        sessionID,
		ComponentsUsed:   []string{},
		StageTimings:     make(map[string]float64),
		ConfidenceScores: make(map[string]float64),
	}
	rec := &recorder{res: res}

	f.enrich(ctx, query, base, rec)
	res.Entities = base.Entities

	timeouts := f.cfg.Stages
	classify := func() outcome[models.ClassificationResult] {
		fallback := models.UnknownClassification("classification unavailable")
		fallback.Degraded = true
		return runStage(ctx, f, models.StageClassifier, timeouts.ClassifierTimeout, fallback,
			func(ctx context.Context) (models.ClassificationResult, error) {
				return f.classifier.Classify(ctx, query, base), nil
			})
	}
	expand := func() outcome[models.ExpansionResult] {
		fallback := models.FallbackExpansion()
		fallback.Degraded = true
		return runStage(ctx, f, models.StageExpansion, timeouts.ExpansionTimeout, fallback,
			func(ctx context.Context) (models.ExpansionResult, error) {
				return f.expander.Expand(ctx, query, base), nil
			})
	}

	var cls outcome[models.ClassificationResult]
	var exp outcome[models.ExpansionResult]
	switch mode {
	case models.ModeFast:
		cls = classify()
	default:
		// Stage goroutines never return errors so one failure cannot cancel its sibling.
		var g errgroup.Group
		g.Go(func() error { cls = classify(); return nil })
		g.Go(func() error { exp = expand(); return nil })
		_ = g.Wait()
	}

	res.Classification = cls.value
	rec.stage(models.StageClassifier, cls.elapsed)
	rec.confidence(models.StageClassifier, cls.value.Confidence, cls.err != nil || cls.value.Degraded)
	if mode != models.ModeFast {
		expansion := exp.value
		res.Expansion = &expansion
		rec.stage(models.StageExpansion, exp.elapsed)
		rec.confidence(models.StageExpansion, expansion.Confidence, exp.err != nil || expansion.Degraded)
	}

	var engineActions []string
	if mode == models.ModeComprehensive || mode == models.ModeCustom {
		engineActions = f.comprehensive(ctx, query, base, sessionID, rec)
	}

	res.SuggestedActions = suggestedActions(res, engineActions)
	res.EnhancedQuery = f.correctedQuery(query)
	if res.Expansion != nil && len(res.Expansion.ExpandedQueries) > 0 {
		res.EnhancedQuery = res.Expansion.ExpandedQueries[0].ExpandedText
	}
	res.OverallConfidence = rec.overall()
	res.ProcessingTimeMS = millis(time.Since(start))
	res.ProcessedAt = f.now()

	f.recordTurn(sessionID, res, base)
	return res
}

// correctedQuery is query with misspellings fixed when the assessor can do that.
func (f *Finder) correctedQuery(query string) string {
	if c, ok := f.scorer.(queryCorrector); ok {
		return c.CorrectedQuery(query)
	}
	return query
}

// comprehensive runs quality scoring and the conversational engine concurrently, fed
// by the classification and expansion already in rec.res.
func (f *Finder) comprehensive(ctx context.Context, query string, base *models.QueryContext, sessionID string, rec *recorder) []string {
	res := rec.res
	qtype := res.Classification.Type
	domain := res.Expansion.PrimaryDomain()
	timeouts := f.cfg.Stages

	var q outcome[models.QualityAssessment]
	var actions outcome[[]string]
	var g errgroup.Group
	g.Go(func() error {
		q = runStage(ctx, f, models.StageQuality, timeouts.QualityTimeout,
			models.FallbackAssessment(qtype, domain, "quality assessment unavailable"),
			func(ctx context.Context) (models.QualityAssessment, error) {
				return f.scorer.Assess(ctx, query, qtype, domain, base), nil
			})
		return nil
	})
	if f.engine != nil {
		req := llm.ActionRequest{
			Query:    query,
			Type:     qtype,
			Domains:  res.Expansion.PrimaryDomains,
			Entities: base.Entities,
			History:  f.history(sessionID),
			Max:      llm.DefaultMaxActions,
		}
		g.Go(func() error {
			actions = runStage(ctx, f, models.StageConversational, timeouts.ConversationalTimeout, []string(nil),
				func(ctx context.Context) ([]string, error) {
					var out []string
					err := f.withConnection(ctx, models.StageConversational, func(ctx context.Context) error {
						var err error
						out, err = f.engine.SuggestActions(ctx, req)
						return err
					})
					return out, err
				})
			return nil
		})
	}
	_ = g.Wait()

	assessment := q.value
	res.Quality = &assessment
	rec.stage(models.StageQuality, q.elapsed)
	rec.confidence(models.StageQuality, assessment.Confidence, q.err != nil || assessment.Degraded)
	if f.engine != nil {
		rec.stage(models.StageConversational, actions.elapsed)
	}
	return actions.value
}

// enrich adds extracted and knowledge-graph entities to base. Both calls are optional
// and borrow a pooled connection; failures only drop their contribution.
func (f *Finder) enrich(ctx context.Context, query string, base *models.QueryContext, rec *recorder) {
	if f.extractor == nil && f.graph == nil {
		return
	}
	timeout := f.cfg.Stages.EnrichmentTimeout
	var extracted, linked outcome[[]models.Entity]
	var g errgroup.Group
	if f.extractor != nil {
		g.Go(func() error {
			extracted = runStage(ctx, f, models.StageEntities, timeout, []models.Entity(nil),
				func(ctx context.Context) ([]models.Entity, error) {
					var ents []models.Entity
					err := f.withConnection(ctx, models.StageEntities, func(ctx context.Context) error {
						var err error
						ents, err = f.extractor.Extract(ctx, query)
						return err
					})
					return ents, err
				})
			return nil
		})
	}
	if f.graph != nil {
		terms := f.tokenizer.Terms(query)
		g.Go(func() error {
			linked = runStage(ctx, f, models.StageKnowledgeGraph, timeout, []models.Entity(nil),
				func(ctx context.Context) ([]models.Entity, error) {
					var ents []models.Entity
					err := f.withConnection(ctx, models.StageKnowledgeGraph, func(ctx context.Context) error {
						var err error
						ents, err = f.graph.LookupEntities(ctx, terms)
						return err
					})
					return ents, err
				})
			return nil
		})
	}
	_ = g.Wait()

	if f.extractor != nil {
		rec.stage(models.StageEntities, extracted.elapsed)
	}
	if f.graph != nil {
		rec.stage(models.StageKnowledgeGraph, linked.elapsed)
	}
	base.Entities = mergeEntities(base.Entities, extracted.value, linked.value)
}

// withConnection runs fn while holding a pooled connection.
func (f *Finder) withConnection(ctx context.Context, stage string, fn func(context.Context) error) error {
	conn, err := f.opt.Pool.Acquire(ctx)
	if err != nil {
		f.logger.Info("skipping optional call", zap.String("stage", stage), zap.Error(err))
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer f.opt.Pool.Release(conn)
	return fn(ctx)
}

// history returns the most recent queries of the session, oldest first.
func (f *Finder) history(sessionID string) []string {
	if f.sessions == nil || sessionID == "" {
		return nil
	}
	sess, ok := f.sessions.Get(sessionID)
	if !ok {
		return nil
	}
	turns := sess.Turns
	if len(turns) > historyTurns {
		turns = turns[len(turns)-historyTurns:]
	}
	out := make([]string, len(turns))
	for i, t := range turns {
		out[i] = t.Query
	}
	return out
}

func (f *Finder) recordTurn(sessionID string, res *Result, base *models.QueryContext) {
	if f.sessions == nil || sessionID == "" {
		return
	}
	turn := models.ConversationTurn{
		Query:          res.Query,
		Classification: res.Classification,
		Entities:       res.Entities,
		Parameters:     base.Parameters,
		Confidence:     res.OverallConfidence,
		ProcessingTime: time.Duration(res.ProcessingTimeMS * float64(time.Millisecond)),
	}
	if res.Expansion != nil {
		turn.Domains = res.Expansion.PrimaryDomains
	}
	f.sessions.AppendTurn(sessionID, turn)
}

// mergeEntities concatenates entity lists, keeping the first entity per lowercase text,
// sorted by text.
func mergeEntities(lists ...[]models.Entity) []models.Entity {
	seen := make(map[string]bool)
	var out []models.Entity
	for _, list := range lists {
		for _, e := range list {
			key := strings.ToLower(strings.TrimSpace(e.Text))
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i].Text) < strings.ToLower(out[j].Text)
	})
	return out
}

func millis(d time.Duration) float64 {
	return round3(float64(d) / float64(time.Millisecond))
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
