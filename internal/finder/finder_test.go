package finder

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/shitsumon/internal/config"
	"github.com/hyperjump/shitsumon/internal/kg"
	"github.com/hyperjump/shitsumon/internal/llm"
	"github.com/hyperjump/shitsumon/internal/models"
	"github.com/hyperjump/shitsumon/internal/nlp"
)

func testConfig() config.Config {
	cfg := *config.Default()
	off := false
	cfg.Monitoring.Enabled = &off
	return cfg
}

func newFinder(t *testing.T, cfg config.Config, opts ...Option) *Finder {
	t.Helper()
	f := New(cfg, opts...)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

type panicClassifier struct{}

func (panicClassifier) Classify(context.Context, string, *models.QueryContext) models.ClassificationResult {
	panic("classifier exploded")
}

// sleepyClassifier ignores ctx so only the stage boundary can stop waiting for it.
type sleepyClassifier struct{ d time.Duration }

func (s sleepyClassifier) Classify(context.Context, string, *models.QueryContext) models.ClassificationResult {
	time.Sleep(s.d)
	return models.ClassificationResult{Type: models.QuestionFactual, Confidence: 0.9}
}

type slowExpander struct{ d time.Duration }

func (s slowExpander) Expand(ctx context.Context, _ string, _ *models.QueryContext) models.ExpansionResult {
	select {
	case <-ctx.Done():
	case <-time.After(s.d):
	}
	return models.ExpansionResult{PrimaryDomains: []models.BusinessDomain{models.DomainFinance}, Confidence: 0.8}
}

func TestFind_Modes(t *testing.T) {
	engine := &llm.MockEngine{Actions: []string{"Ask the data team for the raw export"}}
	f := newFinder(t, testConfig(), WithConversationalEngine(engine))
	ctx := context.Background()
	q := "Compare react vs vue for our ecommerce storefront"

	fast := f.Find(ctx, q, models.ModeFast, nil)
	require.Empty(t, fast.Error)
	assert.Equal(t, []string{models.StageClassifier}, fast.ComponentsUsed)
	assert.Nil(t, fast.Expansion)
	assert.Nil(t, fast.Quality)
	assert.Equal(t, f.correctedQuery(q), fast.EnhancedQuery)

	std := f.Find(ctx, q, models.ModeStandard, nil)
	require.Empty(t, std.Error)
	assert.Equal(t, []string{models.StageClassifier, models.StageExpansion}, std.ComponentsUsed)
	require.NotNil(t, std.Expansion)
	assert.Nil(t, std.Quality)
	assert.Equal(t, models.QuestionComparative, std.Classification.Type)
	if len(std.Expansion.ExpandedQueries) > 0 {
		assert.Equal(t, std.Expansion.ExpandedQueries[0].ExpandedText, std.EnhancedQuery)
	}

	full := f.Find(ctx, q, models.ModeComprehensive, nil)
	require.Empty(t, full.Error)
	assert.Equal(t, []string{
		models.StageClassifier, models.StageExpansion, models.StageQuality, models.StageConversational,
	}, full.ComponentsUsed)
	require.NotNil(t, full.Quality)
	assert.Equal(t, models.QuestionComparative, full.Quality.QuestionType)
	assert.Contains(t, full.SuggestedActions, "Build a side-by-side comparison table")
	assert.Contains(t, full.SuggestedActions, "Ask the data team for the raw export")
	assert.LessOrEqual(t, len(full.SuggestedActions), maxSuggestedActions)
	assert.Len(t, engine.Requests(), 1)
	assert.Equal(t, models.QuestionComparative, engine.Requests()[0].Type)

	assert.GreaterOrEqual(t, full.OverallConfidence, 0.0)
	assert.LessOrEqual(t, full.OverallConfidence, 1.0)
	assert.False(t, full.ProcessedAt.IsZero())

	stats := f.Stats()
	assert.Equal(t, uint64(3), stats.TotalQueries)
	assert.Equal(t, uint64(1), stats.ModeCounts[models.ModeComprehensive])
}

func TestFind_CustomBehavesLikeComprehensive(t *testing.T) {
	f := newFinder(t, testConfig())
	res := f.Find(context.Background(), "How to set up a marketing campaign?", models.ModeCustom, nil)
	require.Empty(t, res.Error)
	assert.NotNil(t, res.Quality)
	assert.Contains(t, res.ComponentsUsed, models.StageQuality)
	assert.NotContains(t, res.ComponentsUsed, models.StageConversational)
}

type plainAssessor struct{}

func (plainAssessor) Assess(_ context.Context, _ string, qtype models.QuestionType, domain models.BusinessDomain, _ *models.QueryContext) models.QualityAssessment {
	return models.FallbackAssessment(qtype, domain, "stub")
}

func TestFind_EnhancedQueryFixesSpellingWithoutExpansion(t *testing.T) {
	f := newFinder(t, testConfig())
	res := f.Find(context.Background(), "improve payrol retention strategy", models.ModeFast, nil)
	require.Empty(t, res.Error)
	assert.Nil(t, res.Expansion)
	assert.Equal(t, "improve payroll retention strategy", res.EnhancedQuery)
}

func TestFind_EnhancedQueryKeepsQueryWhenSpellCheckOff(t *testing.T) {
	cfg := testConfig()
	off := false
	cfg.Quality.SpellCheck = &off
	f := newFinder(t, cfg)
	q := "improve payrol retention strategy"
	assert.Equal(t, q, f.Find(context.Background(), q, models.ModeFast, nil).EnhancedQuery)

	g := newFinder(t, testConfig(), WithAssessor(plainAssessor{}))
	assert.Equal(t, q, g.Find(context.Background(), q, models.ModeFast, nil).EnhancedQuery)
}

func TestFind_InvalidInput(t *testing.T) {
	f := newFinder(t, testConfig())
	ctx := context.Background()

	res := f.Find(ctx, "   ", models.ModeStandard, nil)
	assert.Equal(t, "empty query", res.Error)
	assert.Equal(t, models.QuestionUnknown, res.Classification.Type)

	res = f.Find(ctx, "what is churn", models.Mode("turbo"), nil)
	assert.NotEmpty(t, res.Error)

	res = f.Find(ctx, "what is churn", models.Mode(""), nil)
	assert.Empty(t, res.Error)
	assert.Equal(t, models.ModeStandard, res.Mode)
}

func TestFind_CachedResultIsReturnedAsIs(t *testing.T) {
	f := newFinder(t, testConfig())
	ctx := context.Background()

	first := f.Find(ctx, "Compare react vs vue", models.ModeStandard, nil)
	second := f.Find(ctx, "  COMPARE react   VS vue ", models.ModeStandard, nil)
	assert.Same(t, first, second)

	other := f.Find(ctx, "Compare react vs vue", models.ModeFast, nil)
	assert.NotSame(t, first, other)

	stats := f.Stats()
	assert.Equal(t, uint64(3), stats.TotalQueries)
	assert.Equal(t, uint64(1), stats.CacheHits)
	assert.Greater(t, stats.CacheHitRate, 0.0)
	assert.Greater(t, stats.AvgLatencyMS, 0.0)
}

func TestFind_ContextChangesCacheKey(t *testing.T) {
	a := CacheKey("what is churn", models.ModeStandard, nil)
	b := CacheKey("What  is churn", models.ModeStandard, &models.QueryContext{})
	c := CacheKey("what is churn", models.ModeStandard, &models.QueryContext{PreferredDomains: []models.BusinessDomain{models.DomainFinance}})
	d := CacheKey("what is churn", models.ModeFast, nil)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, a, d)
}

func TestFind_EmptyContextSharesCacheEntry(t *testing.T) {
	f := newFinder(t, testConfig())
	ctx := context.Background()
	withoutContext := f.Find(ctx, "What is customer lifetime value?", models.ModeStandard, nil)
	emptyContext := f.Find(ctx, "What is customer lifetime value?", models.ModeStandard, &models.QueryContext{})
	assert.Same(t, withoutContext, emptyContext)
}

func TestFind_StagePanicDegrades(t *testing.T) {
	f := newFinder(t, testConfig(), WithClassifier(panicClassifier{}))
	res := f.Find(context.Background(), "Analyze the impact of pricing on churn", models.ModeStandard, nil)

	require.Empty(t, res.Error)
	assert.Equal(t, models.QuestionUnknown, res.Classification.Type)
	assert.True(t, res.Classification.Degraded)
	require.NotNil(t, res.Expansion)
	assert.False(t, res.Expansion.Degraded)
	assert.Equal(t, 0.0, res.ConfidenceScores[models.StageClassifier])
	assert.InDelta(t, res.Expansion.Confidence, res.OverallConfidence, 1e-3)
	assert.Equal(t, uint64(1), f.Stats().Degraded)
}

func TestFind_CancelledCallIsNotCached(t *testing.T) {
	f := newFinder(t, testConfig())
	query := "How to set up a marketing campaign?"

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	first := f.Find(ctx, query, models.ModeStandard, nil)

	healthy := f.Find(context.Background(), query, models.ModeStandard, nil)
	assert.NotSame(t, first, healthy)
	assert.False(t, isDegraded(healthy))
	assert.Equal(t, models.QuestionProcedural, healthy.Classification.Type)

	again := f.Find(context.Background(), query, models.ModeStandard, nil)
	assert.Same(t, healthy, again)
}

func TestFind_DegradedResultIsNotCached(t *testing.T) {
	f := newFinder(t, testConfig(), WithClassifier(panicClassifier{}))
	query := "Analyze the impact of pricing on churn"

	first := f.Find(context.Background(), query, models.ModeStandard, nil)
	second := f.Find(context.Background(), query, models.ModeStandard, nil)
	assert.True(t, first.Classification.Degraded)
	assert.NotSame(t, first, second)
	assert.Zero(t, f.Stats().CacheHits)
}

func TestFind_StageTimeoutDegrades(t *testing.T) {
	cfg := testConfig()
	cfg.Stages.ExpansionTimeout = 20 * time.Millisecond
	f := newFinder(t, cfg, WithExpander(slowExpander{d: time.Second}))

	start := time.Now()
	res := f.Find(context.Background(), "What is customer lifetime value?", models.ModeStandard, nil)
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	require.NotNil(t, res.Expansion)
	assert.True(t, res.Expansion.Degraded)
	assert.Equal(t, []models.BusinessDomain{models.DomainGeneral}, res.Expansion.PrimaryDomains)
	assert.Equal(t, models.QuestionFactual, res.Classification.Type)
}

func TestFind_Enrichment(t *testing.T) {
	extractor := &nlp.MockExtractor{Entities: []models.Entity{
		{Text: "Q3", Label: "DATE", Source: nlp.Source, Score: 0.9},
	}}
	graph := &kg.MockLookup{Known: map[string]models.Entity{
		"revenue": {Text: "Revenue", Label: "METRIC", Score: 1},
	}}
	f := newFinder(t, testConfig(), WithEntityExtractor(extractor), WithKnowledgeGraph(graph))

	res := f.Find(context.Background(), "Why did revenue drop in Q3?", models.ModeComprehensive, nil)
	require.Empty(t, res.Error)
	require.Len(t, res.Entities, 2)
	assert.Equal(t, "Q3", res.Entities[0].Text)
	assert.Equal(t, "Revenue", res.Entities[1].Text)
	assert.Equal(t, kg.Source, res.Entities[1].Source)
	assert.Equal(t, []string{
		models.StageEntities, models.StageKnowledgeGraph,
		models.StageClassifier, models.StageExpansion, models.StageQuality,
	}, res.ComponentsUsed)
	assert.Equal(t, 1, extractor.Calls())
	assert.Equal(t, 1, graph.Calls())
}

func TestFind_EnrichmentFailureIsIgnored(t *testing.T) {
	extractor := &nlp.MockExtractor{Err: errors.New("model missing")}
	graph := &kg.MockLookup{Delay: time.Second}
	cfg := testConfig()
	cfg.Stages.EnrichmentTimeout = 20 * time.Millisecond
	f := newFinder(t, cfg, WithEntityExtractor(extractor), WithKnowledgeGraph(graph))

	res := f.Find(context.Background(), "What is customer lifetime value?", models.ModeStandard, nil)
	require.Empty(t, res.Error)
	assert.Empty(t, res.Entities)
	assert.Equal(t, models.QuestionFactual, res.Classification.Type)
}

func TestFind_PoolExhaustionSkipsOptionalCalls(t *testing.T) {
	cfg := testConfig()
	cfg.Pool.MinConnections = 1
	cfg.Pool.MaxConnections = 1
	cfg.Pool.AcquireTimeout = 10 * time.Millisecond
	extractor := &nlp.MockExtractor{Entities: []models.Entity{{Text: "Q3"}}}
	engine := &llm.MockEngine{Actions: []string{"unused"}}
	f := newFinder(t, cfg, WithEntityExtractor(extractor), WithConversationalEngine(engine))

	conn, err := f.Optimizer().Pool.Acquire(context.Background())
	require.NoError(t, err)
	defer f.Optimizer().Pool.Release(conn)

	res := f.Find(context.Background(), "Why did revenue drop in Q3?", models.ModeComprehensive, nil)
	require.Empty(t, res.Error)
	assert.Empty(t, res.Entities)
	assert.NotContains(t, res.SuggestedActions, "unused")
	assert.NotNil(t, res.Quality)
	assert.Equal(t, 0, extractor.Calls())
	assert.Empty(t, engine.Requests())
	assert.Greater(t, f.Optimizer().Pool.Stats().Exhausted, uint64(0))
}

func TestFind_EngineFailureKeepsTypeActions(t *testing.T) {
	f := newFinder(t, testConfig(), WithConversationalEngine(&llm.MockEngine{Err: errors.New("rate limited")}))
	res := f.Find(context.Background(), "Why are our sales dropping this quarter?", models.ModeComprehensive, nil)
	require.Empty(t, res.Error)
	assert.Contains(t, res.SuggestedActions, "Check what changed when the problem started")
	assert.Contains(t, res.ComponentsUsed, models.StageConversational)
}

func TestFind_SessionTurns(t *testing.T) {
	f := newFinder(t, testConfig())
	ctx := context.Background()
	qctx := &models.QueryContext{SessionID: "s-1", UserID: "u-1"}

	r1 := f.Find(ctx, "What is customer lifetime value?", models.ModeStandard, qctx)
	r2 := f.Find(ctx, "How to set up a marketing campaign?", models.ModeStandard, qctx)
	assert.Equal(t, "s-1", r1.SessionID)
	assert.Equal(t, "s-1", r2.SessionID)

	sess, ok := f.Sessions().Get("s-1")
	require.True(t, ok)
	require.Len(t, sess.Turns, 2)
	assert.Equal(t, "u-1", sess.UserID)
	assert.Equal(t, models.QuestionFactual, sess.Turns[0].Classification.Type)
	assert.Equal(t, models.QuestionProcedural, sess.Turns[1].Classification.Type)
}

func TestFind_CreatesSessionWhenMissing(t *testing.T) {
	f := newFinder(t, testConfig())
	res := f.Find(context.Background(), "What is churn?", models.ModeFast, nil)
	require.NotEmpty(t, res.SessionID)
	assert.Equal(t, 1, f.Sessions().Len())
}

func TestFind_SessionsDisabled(t *testing.T) {
	cfg := testConfig()
	off := false
	cfg.Session.Enabled = &off
	f := newFinder(t, cfg)
	res := f.Find(context.Background(), "What is churn?", models.ModeFast, &models.QueryContext{SessionID: "s-1"})
	assert.Nil(t, f.Sessions())
	assert.Equal(t, "s-1", res.SessionID)
}

func TestSuggestedActions(t *testing.T) {
	res := &Result{
		Classification: models.ClassificationResult{Type: models.QuestionComparative},
		Quality: &models.QualityAssessment{ImprovementSuggestions: []string{
			"build a side-by-side comparison table",
			"Add a time frame",
			"Name the metric",
		}},
	}
	got := suggestedActions(res, []string{"Add a time frame", "a", "b", "c", "d"})
	assert.Equal(t, []string{
		"Build a side-by-side comparison table",
		"Agree on the criteria before comparing",
		"Add a time frame",
		"a", "b", "c",
	}, got)

	res.Quality = nil
	res.Classification.Type = models.QuestionFactual
	assert.Equal(t, []string{"Verify the answer against a primary source"}, suggestedActions(res, nil))
}

func TestMergeEntities(t *testing.T) {
	got := mergeEntities(
		[]models.Entity{{Text: "revenue", Source: "caller"}},
		[]models.Entity{{Text: "Q3"}, {Text: "Revenue", Source: kg.Source}},
		nil,
	)
	require.Len(t, got, 2)
	assert.Equal(t, "Q3", got[0].Text)
	assert.Equal(t, "caller", got[1].Source)
}

// normalized strips fields that depend on wall-clock timing.
func normalized(r *Result) Result {
	c := *r
	c.StageTimings = nil
	c.ProcessingTimeMS = 0
	c.ProcessedAt = time.Time{}
	return c
}

func TestBatchFind_MatchesIndividualFind(t *testing.T) {
	cfg := testConfig()
	off := false
	cfg.Session.Enabled = &off
	single := newFinder(t, cfg)
	batched := newFinder(t, cfg)
	ctx := context.Background()

	queries := []string{
		"What is customer lifetime value?",
		"",
		"Compare react vs vue",
		"Why are our sales dropping this quarter?",
		"Brainstorm ideas for a product launch",
	}
	for _, mode := range []models.Mode{models.ModeFast, models.ModeStandard, models.ModeComprehensive} {
		batch, err := batched.BatchFind(ctx, queries, mode, nil)
		require.NoError(t, err)
		require.Len(t, batch.Results, len(queries))
		assert.Equal(t, StrategySemaphore, batch.Strategy)
		for i, q := range queries {
			want := single.Find(ctx, q, mode, nil)
			assert.Equal(t, normalized(want), normalized(batch.Results[i]), "mode %s item %d", mode, i)
		}
		assert.Equal(t, 4, batch.Succeeded)
		assert.Equal(t, 1, batch.Failed)
	}
}

func TestBatchFind_Aggregates(t *testing.T) {
	f := newFinder(t, testConfig())
	queries := []string{
		"What is customer lifetime value?",
		"What is customer lifetime value?",
		"Compare react vs vue",
	}
	batch, err := f.BatchFind(context.Background(), queries, models.ModeComprehensive, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, batch.BatchID)
	assert.Equal(t, 3, batch.Total)
	assert.Equal(t, 3, batch.Succeeded)
	assert.Equal(t, 2, batch.TypeDistribution[models.QuestionFactual])
	assert.Equal(t, 1, batch.TypeDistribution[models.QuestionComparative])

	var graded int
	for _, n := range batch.GradeDistribution {
		graded += n
	}
	assert.Equal(t, 3, graded)
	assert.Contains(t, batch.AverageStageLatency, models.StageQuality)
	assert.Greater(t, batch.Throughput, 0.0)

	again, err := f.BatchFind(context.Background(), queries, models.ModeComprehensive, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, again.CacheHits)
	assert.Equal(t, 1.0, again.CacheHitRate)
	assert.Equal(t, uint64(2), f.Stats().Batches)
}

func TestBatchFind_Empty(t *testing.T) {
	f := newFinder(t, testConfig())
	batch, err := f.BatchFind(context.Background(), nil, models.ModeStandard, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, batch.Total)
	assert.Empty(t, batch.Results)
	assert.NotNil(t, batch.TypeDistribution)
}

func TestBatchFind_InvalidMode(t *testing.T) {
	f := newFinder(t, testConfig())
	batch, err := f.BatchFind(context.Background(), []string{"a", "b"}, models.Mode("turbo"), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, batch.Failed)
	for _, r := range batch.Results {
		assert.NotEmpty(t, r.Error)
	}
}

func TestBatchFind_TooLarge(t *testing.T) {
	cfg := testConfig()
	cfg.Batch.MaxBatchSize = 2
	f := newFinder(t, cfg)
	_, err := f.BatchFind(context.Background(), []string{"a", "b", "c"}, models.ModeFast, nil)
	assert.ErrorIs(t, err, ErrBatchTooLarge)
}

func TestBatchFind_QueuePath(t *testing.T) {
	cfg := testConfig()
	cfg.Batch.QueueThreshold = 5
	cfg.Batch.OptimalBatchSize = 4
	f := newFinder(t, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.Start(ctx)

	queries := make([]string, 20)
	for i := range queries {
		queries[i] = fmt.Sprintf("What is the churn rate for cohort %d?", i)
	}
	queries[7] = ""

	batch, err := f.BatchFind(ctx, queries, models.ModeStandard, nil)
	require.NoError(t, err)
	assert.Equal(t, StrategyQueue, batch.Strategy)
	assert.Equal(t, 19, batch.Succeeded)
	assert.Equal(t, 1, batch.Failed)
	assert.Equal(t, "empty query", batch.Results[7].Error)
	for i, r := range batch.Results {
		assert.Equal(t, queries[i], r.Query)
	}

	again, err := f.BatchFind(ctx, queries, models.ModeStandard, nil)
	require.NoError(t, err)
	assert.Equal(t, 19, again.CacheHits)
	assert.Same(t, batch.Results[0], again.Results[0])
}

func TestBatchFind_TimeoutSynthesizesErrors(t *testing.T) {
	cfg := testConfig()
	cfg.Batch.Timeout = 50 * time.Millisecond
	cfg.Batch.MaxConcurrent = 1
	cfg.Stages.ClassifierTimeout = time.Second
	f := newFinder(t, cfg, WithClassifier(sleepyClassifier{d: 200 * time.Millisecond}))

	queries := []string{"q1", "q2", "q3", "q4", "q5"}
	batch, err := f.BatchFind(context.Background(), queries, models.ModeFast, nil)
	require.NoError(t, err)
	assert.True(t, batch.TimedOut)
	assert.GreaterOrEqual(t, batch.Failed, 3)
	assert.Equal(t, "batch timed out", batch.Results[len(queries)-1].Error)
}

func TestBatchFind_TimedOutItemsAreNotCached(t *testing.T) {
	for _, queueThreshold := range []int{1000, 2} {
		t.Run(fmt.Sprintf("queue_threshold=%d", queueThreshold), func(t *testing.T) {
			cfg := testConfig()
			cfg.Batch.Timeout = 50 * time.Millisecond
			cfg.Batch.QueueThreshold = queueThreshold
			cfg.Stages.ClassifierTimeout = time.Second
			f := newFinder(t, cfg, WithClassifier(sleepyClassifier{d: 200 * time.Millisecond}))
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			f.Start(ctx)

			queries := []string{"q1", "q2", "q3"}
			batch, err := f.BatchFind(ctx, queries, models.ModeFast, nil)
			require.NoError(t, err)
			assert.True(t, batch.TimedOut)

			// Let the abandoned items finish under the expired batch context.
			time.Sleep(400 * time.Millisecond)
			for _, q := range queries {
				_, ok := f.Optimizer().Cache.Get(CacheKey(q, models.ModeFast, nil))
				assert.False(t, ok, "%s cached after batch timeout", q)
			}
		})
	}
}

func TestBatchFind_ThousandQueriesWithinBudget(t *testing.T) {
	if testing.Short() {
		t.Skip("throughput test")
	}
	f := newFinder(t, testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.Start(ctx)

	templates := []string{
		"What is the average order value for region %d?",
		"Compare conversion rate of campaign %d vs last year",
		"Why did churn increase for plan %d?",
		"How to reduce cart abandonment for segment %d?",
		"Analyze the impact of pricing tier %d on retention",
	}
	queries := make([]string, 1000)
	for i := range queries {
		queries[i] = fmt.Sprintf(templates[i%len(templates)], i)
	}

	start := time.Now()
	batch, err := f.BatchFind(ctx, queries, models.ModeStandard, nil)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 30*time.Second)
	assert.False(t, batch.TimedOut)
	assert.Equal(t, 1000, batch.Succeeded)
	assert.Equal(t, StrategyQueue, batch.Strategy)
}
