package optimizer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/shitsumon/internal/config"
)

var (
	// ErrQueueFull is returned by Submit when the queue is at capacity.
	ErrQueueFull = errors.New("batch queue full")
	// ErrQueueClosed is returned by Submit after Close.
	ErrQueueClosed = errors.New("batch queue closed")
)

// Job is one batch descriptor. Keys holds the cache key of every item; an empty key
// bypasses the cache. Process computes a single item and Done receives the outcome.
// When Cacheable is set, only values it accepts are stored.
type Job[V any] struct {
	ID        string
	Ctx       context.Context
	Keys      []string
	Process   func(ctx context.Context, index int) (V, error)
	Cacheable func(V) bool
	Done      func(JobOutcome[V])
}

// JobOutcome merges cached and computed results keyed by item index.
type JobOutcome[V any] struct {
	ID        string
	Results   map[int]V
	Errors    map[int]error
	CacheHits int
	Duration  time.Duration
}

// QueueStats is a point-in-time view of the queue.
type QueueStats struct {
	Depth     int    `json:"depth"`
	Capacity  int    `json:"capacity"`
	Workers   int    `json:"workers"`
	Active    int64  `json:"active"`
	Submitted uint64 `json:"submitted"`
	Completed uint64 `json:"completed"`
	Rejected  uint64 `json:"rejected"`
}

// BatchQueue is a bounded job queue drained by a fixed set of workers that consult
// the cache before processing each item.
type BatchQueue[V any] struct {
	cache           *AdaptiveCache[V]
	workers         int
	itemConcurrency int
	logger          *zap.Logger

	jobs chan Job[V]

	mu      sync.RWMutex
	closed  bool
	started bool
	wg      sync.WaitGroup

	active    atomic.Int64
	submitted atomic.Uint64
	completed atomic.Uint64
	rejected  atomic.Uint64
}

// NewBatchQueue creates a queue backed by cache, which may be nil.
// Zero config fields take the package defaults.
func NewBatchQueue[V any](cfg config.BatchConfig, cache *AdaptiveCache[V], logger *zap.Logger) *BatchQueue[V] {
	def := config.Default().Batch
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = def.QueueCapacity
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchQueue[V]{
		cache:           cache,
		workers:         cfg.Workers,
		itemConcurrency: max(1, cfg.MaxConcurrent/cfg.Workers),
		logger:          logger,
		jobs:            make(chan Job[V], cfg.QueueCapacity),
	}
}

// Start launches the workers. They stop when ctx is cancelled or Close is called; a
// cancelled ctx closes the queue and fails the jobs still waiting.
func (q *BatchQueue[V]) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.closed {
		return
	}
	q.started = true
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, i)
	}
	q.logger.Debug("batch queue started", zap.Int("workers", q.workers), zap.Int("capacity", cap(q.jobs)))
}

// Submit enqueues job without blocking.
func (q *BatchQueue[V]) Submit(job Job[V]) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	if job.Ctx == nil {
		job.Ctx = context.Background()
	}
	select {
	case q.jobs <- job:
		q.submitted.Add(1)
		return nil
	default:
		q.rejected.Add(1)
		return ErrQueueFull
	}
}

// Depth returns the number of jobs waiting.
func (q *BatchQueue[V]) Depth() int {
	return len(q.jobs)
}

// Stats returns the current counters.
func (q *BatchQueue[V]) Stats() QueueStats {
	return QueueStats{
		Depth:     len(q.jobs),
		Capacity:  cap(q.jobs),
		Workers:   q.workers,
		Active:    q.active.Load(),
		Submitted: q.submitted.Load(),
		Completed: q.completed.Load(),
		Rejected:  q.rejected.Load(),
	}
}

// Close stops accepting jobs, lets the workers drain the queue and waits for them.
// Jobs left in a queue that was never started fail with ErrQueueClosed.
func (q *BatchQueue[V]) Close() error {
	q.shutdown()
	q.mu.RLock()
	started := q.started
	q.mu.RUnlock()
	if !started {
		q.failPending(ErrQueueClosed)
	}
	q.wg.Wait()
	return nil
}

// shutdown stops accepting jobs. Queued jobs stay readable until drained.
func (q *BatchQueue[V]) shutdown() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.jobs)
}

// failPending reports err for every item of the jobs still queued.
func (q *BatchQueue[V]) failPending(err error) {
	for job := range q.jobs {
		out := JobOutcome[V]{
			ID:      job.ID,
			Results: map[int]V{},
			Errors:  make(map[int]error, len(job.Keys)),
		}
		for i := range job.Keys {
			out.Errors[i] = err
		}
		q.completed.Add(1)
		if job.Done != nil {
			job.Done(out)
		}
	}
}

func (q *BatchQueue[V]) worker(ctx context.Context, id int) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			q.shutdown()
			q.failPending(ctx.Err())
			return
		case job, ok := <-q.jobs:
			if !ok {
				return
			}
			q.active.Add(1)
			out := q.run(job)
			q.active.Add(-1)
			q.completed.Add(1)
			q.logger.Debug("batch job done",
				zap.Int("worker", id),
				zap.String("job", job.ID),
				zap.Int("items", len(job.Keys)),
				zap.Int("cache_hits", out.CacheHits),
				zap.Duration("duration", out.Duration))
			if job.Done != nil {
				job.Done(out)
			}
		}
	}
}

// run resolves cached items and computes the rest with bounded concurrency.
func (q *BatchQueue[V]) run(job Job[V]) JobOutcome[V] {
	start := time.Now()
	out := JobOutcome[V]{
		ID:      job.ID,
		Results: make(map[int]V, len(job.Keys)),
		Errors:  make(map[int]error),
	}

	var misses []int
	for i, key := range job.Keys {
		if key != "" && q.cache != nil {
			if v, ok := q.cache.Get(key); ok {
				out.Results[i] = v
				out.CacheHits++
				continue
			}
		}
		misses = append(misses, i)
	}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(q.itemConcurrency)
	for _, i := range misses {
		i := i
		g.Go(func() error {
			v, err := q.process(job, i)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				out.Errors[i] = err
				return nil
			}
			out.Results[i] = v
			if key := job.Keys[i]; key != "" && q.cache != nil && job.cacheable(v) {
				q.cache.Set(key, v)
			}
			return nil
		})
	}
	_ = g.Wait()
	out.Duration = time.Since(start)
	return out
}

func (j Job[V]) cacheable(v V) bool {
	if j.Ctx.Err() != nil {
		return false
	}
	return j.Cacheable == nil || j.Cacheable(v)
}

func (q *BatchQueue[V]) process(job Job[V], i int) (v V, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("item %d panicked: %v", i, r)
		}
	}()
	if err := job.Ctx.Err(); err != nil {
		return v, err
	}
	return job.Process(job.Ctx, i)
}
