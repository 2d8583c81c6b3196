// Package optimizer provides the result cache, logical connection pool, batch queue
// and monitor that keep the query pipeline inside its latency budget.
package optimizer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/hyperjump/shitsumon/internal/config"
	"github.com/hyperjump/shitsumon/internal/metrics"
)

const (
	minBatchSize        = 10
	batchShrinkFactor   = 0.8
	cacheGrowthFactor   = 1.25
	maxCacheGrowth      = 4
	memoryPressureRatio = 0.95
)

// Stats aggregates every component's view.
type Stats struct {
	Cache       CacheStats   `json:"cache"`
	Pool        PoolStats    `json:"pool"`
	Queue       QueueStats   `json:"queue"`
	Latest      *Snapshot    `json:"latest,omitempty"`
	Bottlenecks []Bottleneck `json:"bottlenecks,omitempty"`
	BatchSize   int          `json:"batch_size"`
	Adaptive    bool         `json:"adaptive"`
}

// Optimizer owns the cache, pool, queue and monitor and their background loops.
type Optimizer[V any] struct {
	Cache   *AdaptiveCache[V]
	Pool    *Pool
	Queue   *BatchQueue[V]
	Monitor *Monitor

	cfg       config.Config
	logger    *zap.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
	batchSize atomic.Int64
	adaptive  atomic.Bool
	baseCache int

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Option configures an Optimizer.
type Option func(*options)

type options struct {
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// WithLogger sets the logger shared by every component.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics publishes component gauges to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithClock replaces time.Now for the cache, pool and monitor.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New creates an Optimizer from cfg. Call Start to run the background loops.
func New[V any](cfg config.Config, opts ...Option) *Optimizer[V] {
	o := options{logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	config.ApplyDefaults(&cfg)

	opt := &Optimizer[V]{
		cfg:       cfg,
		logger:    o.logger,
		metrics:   o.metrics,
		now:       o.now,
		baseCache: cfg.Cache.MaxEntries,
	}
	opt.Cache = NewAdaptiveCache[V](cfg.Cache, o.now)
	opt.Pool = NewPool(cfg.Pool, o.logger.Named("pool"), o.now)
	opt.Queue = NewBatchQueue[V](cfg.Batch, opt.Cache, o.logger.Named("queue"))
	opt.Monitor = NewMonitor(cfg.Monitoring, Probe{
		Cache:      opt.Cache.Stats,
		QueueDepth: opt.Queue.Depth,
	}, o.logger.Named("monitor"), o.now)
	if opt.metrics != nil {
		opt.Monitor.OnBottleneck(func(b Bottleneck) {
			opt.metrics.Bottlenecks.WithLabelValues(b.Metric).Inc()
		})
	}
	opt.batchSize.Store(int64(cfg.Batch.OptimalBatchSize))
	opt.adaptive.Store(cfg.Monitoring.Adaptive)
	return opt
}

// Start runs the queue workers, pool cleanup, cache sweep, monitor and adaptive loops.
func (o *Optimizer[V]) Start(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.started {
		return
	}
	o.started = true
	ctx, o.cancel = context.WithCancel(ctx)

	o.Queue.Start(ctx)
	o.Pool.Start(ctx)
	o.loop(ctx, o.cfg.Cache.SweepInterval, func() {
		if n := o.Cache.Sweep(); n > 0 {
			o.logger.Debug("cache swept", zap.Int("removed", n))
		}
	})
	if o.cfg.Monitoring.EnabledOrDefault() {
		o.loop(ctx, o.cfg.Monitoring.SampleInterval, func() {
			o.Monitor.Sample()
			o.publish()
		})
		o.loop(ctx, o.cfg.Monitoring.AdaptiveInterval, func() {
			if o.adaptive.Load() {
				o.Adapt()
			}
		})
	}
}

func (o *Optimizer[V]) loop(ctx context.Context, every time.Duration, fn func()) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn()
			}
		}
	}()
}

// publish copies component gauges into the prometheus metrics.
func (o *Optimizer[V]) publish() {
	if o.metrics == nil {
		return
	}
	cs := o.Cache.Stats()
	ps := o.Pool.Stats()
	o.metrics.CacheEntries.Set(float64(cs.Entries))
	o.metrics.CacheMemory.Set(float64(cs.MemoryBytes))
	o.metrics.PoolInUse.Set(float64(ps.InUse))
	o.metrics.PoolTotal.Set(float64(ps.Total))
	o.metrics.QueueDepth.Set(float64(o.Queue.Depth()))
}

// RecordQuery feeds one query latency to the monitor.
func (o *Optimizer[V]) RecordQuery(latency time.Duration) {
	o.Monitor.RecordQuery(latency)
}

// BatchSize is the number of items per queued job; adaptive mode may shrink it.
func (o *Optimizer[V]) BatchSize() int {
	return int(o.batchSize.Load())
}

// SetAdaptive turns adaptive mode on or off at runtime.
func (o *Optimizer[V]) SetAdaptive(on bool) {
	o.adaptive.Store(on)
}

// Adaptive reports whether adaptive mode is on.
func (o *Optimizer[V]) Adaptive() bool {
	return o.adaptive.Load()
}

// Adapt reacts once to the latest monitor sample and returns the actions taken.
// Under memory pressure the cache is cleared; a low hit rate with memory headroom
// grows the cache; high latency or low throughput shrinks the batch size.
func (o *Optimizer[V]) Adapt() []string {
	snap, ok := o.Monitor.Latest()
	if !ok {
		snap = o.Monitor.Sample()
	}
	th := o.thresholds()
	var actions []string

	cs := o.Cache.Stats()
	switch {
	case snap.MemoryRatio > memoryPressureRatio:
		o.Cache.Clear()
		actions = append(actions, "cache cleared under memory pressure")
	case snap.Queries > 0 && snap.CacheHitRate < th.MinCacheHitRate && snap.MemoryRatio < th.MaxMemoryRatio:
		grown := int(float64(cs.MaxEntries) * cacheGrowthFactor)
		if limit := o.baseCache * maxCacheGrowth; grown > limit {
			grown = limit
		}
		if grown > cs.MaxEntries {
			o.Cache.Resize(grown)
			actions = append(actions, "cache grown")
		}
	}

	slow := snap.AvgLatency > th.MaxAvgLatency
	starved := th.MinThroughput > 0 && snap.Throughput > 0 && snap.Throughput < th.MinThroughput
	if slow || starved {
		cur := o.batchSize.Load()
		next := max(int64(minBatchSize), int64(float64(cur)*batchShrinkFactor))
		if next < cur {
			o.batchSize.Store(next)
			actions = append(actions, "batch size reduced")
		}
	}

	for _, a := range actions {
		o.logger.Info("adaptive action", zap.String("action", a),
			zap.Int("cache_max_entries", o.Cache.Stats().MaxEntries),
			zap.Int("batch_size", o.BatchSize()))
	}
	return actions
}

func (o *Optimizer[V]) thresholds() config.Thresholds {
	o.Monitor.mu.Lock()
	defer o.Monitor.mu.Unlock()
	return o.Monitor.thresholds
}

// Reload applies monitoring settings that may change at runtime.
func (o *Optimizer[V]) Reload(cfg config.MonitoringConfig) {
	o.Monitor.SetThresholds(cfg.Thresholds)
	o.SetAdaptive(cfg.Adaptive)
}

// Stats returns a combined view of every component.
func (o *Optimizer[V]) Stats() Stats {
	s := Stats{
		Cache:       o.Cache.Stats(),
		Pool:        o.Pool.Stats(),
		Queue:       o.Queue.Stats(),
		Bottlenecks: o.Monitor.Bottlenecks(),
		BatchSize:   o.BatchSize(),
		Adaptive:    o.Adaptive(),
	}
	if snap, ok := o.Monitor.Latest(); ok {
		s.Latest = &snap
	}
	return s
}

// Close drains the queue, then stops the background loops and closes the pool.
func (o *Optimizer[V]) Close() error {
	var result *multierror.Error
	if err := o.Queue.Close(); err != nil {
		result = multierror.Append(result, err)
	}

	o.mu.Lock()
	if o.cancel != nil {
		o.cancel()
	}
	o.mu.Unlock()
	o.wg.Wait()

	if err := o.Pool.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}
