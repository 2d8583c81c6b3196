package finder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/hyperjump/shitsumon/internal/models"
	"github.com/hyperjump/shitsumon/internal/optimizer"
)

// Batch strategies reported in BatchProcessingResult.Strategy.
const (
	StrategySemaphore = "semaphore"
	StrategyQueue     = "queue"
)

var errEmptyQuery = errors.New("empty query")

// batchRun is the shared state of one BatchFind call.
type batchRun struct {
	queries   []string
	keys      []string
	mode      models.Mode
	base      *models.QueryContext
	sessionID string

	mu        sync.Mutex
	results   []*Result
	cacheHits int
}

func (b *batchRun) set(i int, r *Result) {
	b.mu.Lock()
	b.results[i] = r
	b.mu.Unlock()
}

// snapshot copies the settled results so late writers never touch the returned slice.
func (b *batchRun) snapshot() ([]*Result, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Result(nil), b.results...), b.cacheHits
}

// BatchFind processes queries with per-item isolation. Batches at or above the queue
// threshold go through the optimizer's batch queue, smaller ones through bounded
// fan-out. Items unsettled when the batch timeout fires get an error result.
// Exceeding the batch ceiling or a full queue is returned as an error.
func (f *Finder) BatchFind(ctx context.Context, queries []string, mode models.Mode, qctx *models.QueryContext) (*models.BatchProcessingResult, error) {
	if n, limit := len(queries), f.cfg.Batch.MaxBatchSize; n > limit {
		return nil, fmt.Errorf("%w: %d queries, limit %d", ErrBatchTooLarge, n, limit)
	}
	ctx, span := f.tracer.Start(ctx, "finder.BatchFind", trace.WithAttributes(
		attribute.String("mode", string(mode)),
		attribute.Int("batch.size", len(queries))))
	defer span.End()

	start := time.Now()
	batch := &models.BatchProcessingResult{
		BatchID: uuid.NewString(),
		Mode:    mode,
		Total:   len(queries),
	}
	f.metrics.ObserveBatch(len(queries))
	f.mu.Lock()
	f.stats.Batches++
	f.mu.Unlock()

	m, err := models.ParseMode(string(mode))
	if err != nil {
		batch.Results = make([]*Result, len(queries))
		for i, q := range queries {
			batch.Results[i] = models.ErrorResult(q, mode, err.Error())
		}
		aggregate(batch, 0, time.Since(start))
		return batch, nil
	}
	batch.Mode = m
	if len(queries) == 0 {
		batch.Results = []*Result{}
		aggregate(batch, 0, time.Since(start))
		return batch, nil
	}

	run := &batchRun{
		queries: queries,
		keys:    make([]string, len(queries)),
		mode:    m,
		results: make([]*Result, len(queries)),
	}
	for i, q := range queries {
		if strings.TrimSpace(q) != "" {
			run.keys[i] = CacheKey(q, m, qctx)
		}
	}
	run.base, run.sessionID = f.baseContext(qctx)

	ctx, cancel := context.WithTimeout(ctx, f.cfg.Batch.Timeout)
	defer cancel()

	useQueue := len(queries) >= f.cfg.Batch.QueueThreshold && f.running.Load()
	if useQueue {
		batch.Strategy = StrategyQueue
		if err := f.viaQueue(ctx, batch.BatchID, run); err != nil {
			span.RecordError(err)
			return nil, err
		}
	} else {
		batch.Strategy = StrategySemaphore
		f.viaSemaphore(ctx, run)
	}

	results, hits := run.snapshot()
	for i, r := range results {
		if r == nil {
			results[i] = models.ErrorResult(queries[i], m, "batch timed out")
			batch.TimedOut = true
		}
	}
	if batch.TimedOut {
		f.logger.Warn("batch timed out",
			zap.String("batch_id", batch.BatchID),
			zap.Duration("timeout", f.cfg.Batch.Timeout))
	}
	batch.Results = results
	aggregate(batch, hits, time.Since(start))
	span.SetAttributes(attribute.String("batch.strategy", batch.Strategy), attribute.Int("batch.failed", batch.Failed))
	f.logger.Debug("batch processed",
		zap.String("batch_id", batch.BatchID),
		zap.String("strategy", batch.Strategy),
		zap.Int("total", batch.Total),
		zap.Int("failed", batch.Failed),
		zap.Int("cache_hits", batch.CacheHits),
		zap.Float64("duration_ms", batch.DurationMS))
	return batch, nil
}

// viaSemaphore fans items out directly, at most MaxConcurrent at a time.
func (f *Finder) viaSemaphore(ctx context.Context, run *batchRun) {
	sem := semaphore.NewWeighted(int64(f.cfg.Batch.MaxConcurrent))
	var wg sync.WaitGroup
	for i := range run.queries {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer sem.Release(1)
			r, hit := f.item(ctx, run, i)
			run.mu.Lock()
			run.results[i] = r
			if hit {
				run.cacheHits++
			}
			run.mu.Unlock()
		}(i)
	}
	wait(ctx, &wg)
}

// item resolves one batch entry, isolating panics into an error result.
func (f *Finder) item(ctx context.Context, run *batchRun, i int) (res *Result, hit bool) {
	q := run.queries[i]
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("batch item panicked", zap.Int("index", i), zap.Any("panic", r))
			res, hit = models.ErrorResult(q, run.mode, fmt.Sprintf("item failed: %v", r)), false
		}
	}()
	if run.keys[i] == "" {
		return models.ErrorResult(q, run.mode, errEmptyQuery.Error()), false
	}
	if r, ok := f.cached(run.keys[i], run.mode); ok {
		return r, true
	}
	return f.compute(ctx, run.keys[i], q, run.mode, run.base, run.sessionID), false
}

// viaQueue splits the batch into jobs of the optimizer's current batch size and waits
// for their callbacks. A full queue on the first job fails the batch; later rejections
// fail only the items of the rejected jobs.
func (f *Finder) viaQueue(ctx context.Context, batchID string, run *batchRun) error {
	size := max(1, f.opt.BatchSize())
	var wg sync.WaitGroup
	for off, n := 0, 0; off < len(run.queries); off, n = off+size, n+1 {
		end := min(off+size, len(run.queries))
		offset := off
		job := optimizer.Job[*Result]{
			ID:   fmt.Sprintf("%s-%d", batchID, n),
			Ctx:  ctx,
			Keys: run.keys[off:end],
			Process: func(ctx context.Context, i int) (*Result, error) {
				q := run.queries[offset+i]
				if run.keys[offset+i] == "" {
					return nil, errEmptyQuery
				}
				f.metrics.ObserveCache(false)
				res := f.process(ctx, q, run.mode, run.base.Clone(), run.sessionID)
				f.recordMiss(res)
				return res, nil
			},
			Cacheable: func(res *Result) bool { return cacheable(ctx, res) },
			Done: func(out optimizer.JobOutcome[*Result]) {
				defer wg.Done()
				run.mu.Lock()
				for i, r := range out.Results {
					run.results[offset+i] = r
				}
				for i, err := range out.Errors {
					run.results[offset+i] = models.ErrorResult(run.queries[offset+i], run.mode, err.Error())
				}
				run.cacheHits += out.CacheHits
				run.mu.Unlock()
				for i := 0; i < out.CacheHits; i++ {
					f.metrics.ObserveCache(true)
				}
				f.recordHits(run.mode, out.CacheHits, 0)
			},
		}

		wg.Add(1)
		if err := f.opt.Queue.Submit(job); err != nil {
			wg.Done()
			if offset == 0 {
				return fmt.Errorf("submit batch: %w", err)
			}
			f.logger.Warn("batch job rejected", zap.String("job", job.ID), zap.Error(err))
			for i := offset; i < len(run.queries); i++ {
				run.set(i, models.ErrorResult(run.queries[i], run.mode, err.Error()))
			}
			break
		}
	}
	wait(ctx, &wg)
	return nil
}

// wait blocks until wg is done or ctx expires. In-flight work is left to finish on its own.
func wait(ctx context.Context, wg *sync.WaitGroup) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// aggregate fills the batch statistics from batch.Results.
func aggregate(batch *models.BatchProcessingResult, hits int, elapsed time.Duration) {
	batch.Total = len(batch.Results)
	batch.CacheHits = hits
	batch.GradeDistribution = make(map[models.Grade]int)
	batch.TypeDistribution = make(map[models.QuestionType]int)
	batch.DomainDistribution = make(map[models.BusinessDomain]int)
	batch.AverageStageLatency = make(map[string]float64)

	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, r := range batch.Results {
		if r.Error != "" {
			batch.Failed++
			continue
		}
		batch.Succeeded++
		batch.TypeDistribution[r.Classification.Type]++
		if r.Expansion != nil {
			batch.DomainDistribution[r.Expansion.PrimaryDomain()]++
		}
		if r.Quality != nil {
			batch.GradeDistribution[r.Quality.Grade]++
		}
		for stage, ms := range r.StageTimings {
			sums[stage] += ms
			counts[stage]++
		}
	}
	for stage, sum := range sums {
		batch.AverageStageLatency[stage] = round3(sum / float64(counts[stage]))
	}
	if batch.Total > 0 {
		batch.CacheHitRate = round3(float64(hits) / float64(batch.Total))
	}
	batch.DurationMS = millis(elapsed)
	if secs := elapsed.Seconds(); secs > 0 {
		batch.Throughput = round3(float64(batch.Total) / secs)
	}
}
