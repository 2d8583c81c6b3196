package optimizer

import (
	"fmt"
	"runtime"
	"runtime/metrics"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/shitsumon/internal/config"
)

// Snapshot is one monitor sample.
type Snapshot struct {
	Timestamp    time.Time     `json:"timestamp"`
	Throughput   float64       `json:"throughput"` // queries per second since the previous sample
	AvgLatency   time.Duration `json:"avg_latency"`
	CacheHitRate float64       `json:"cache_hit_rate"`
	CacheEntries int           `json:"cache_entries"`
	// MemoryRatio is the cache's estimated memory over its ceiling.
	MemoryRatio float64 `json:"memory_ratio"`
	HeapBytes   uint64  `json:"heap_bytes"`
	CPURatio    float64 `json:"cpu_ratio"`
	QueueDepth  int     `json:"queue_depth"`
	Goroutines  int     `json:"goroutines"`
	Queries     uint64  `json:"queries"`
}

// Bottleneck is a threshold crossed by a snapshot.
type Bottleneck struct {
	Metric     string  `json:"metric"`
	Value      float64 `json:"value"`
	Threshold  float64 `json:"threshold"`
	Suggestion string  `json:"suggestion"`
}

// Probe reads pipeline state the monitor cannot observe itself.
type Probe struct {
	Cache      func() CacheStats
	QueueDepth func() int
}

// Monitor samples pipeline and process metrics into a bounded history.
type Monitor struct {
	probe   Probe
	history int
	now     func() time.Time
	logger  *zap.Logger
	onFlag  func(Bottleneck)

	queries   atomic.Uint64
	latencyNs atomic.Int64

	mu          sync.Mutex
	thresholds  config.Thresholds
	snapshots   []Snapshot
	bottlenecks []Bottleneck
	lastQueries uint64
	lastLatency int64
	lastSample  time.Time
	cpu         cpuSampler
}

// NewMonitor creates a monitor. Zero thresholds take the package defaults.
func NewMonitor(cfg config.MonitoringConfig, probe Probe, logger *zap.Logger, now func() time.Time) *Monitor {
	def := config.Default().Monitoring
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = def.HistorySize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	m := &Monitor{
		probe:      probe,
		history:    cfg.HistorySize,
		now:        now,
		logger:     logger,
		thresholds: mergeThresholds(def.Thresholds, cfg.Thresholds),
		lastSample: now(),
	}
	m.cpu.read()
	return m
}

func mergeThresholds(dst, src config.Thresholds) config.Thresholds {
	if src.MaxAvgLatency > 0 {
		dst.MaxAvgLatency = src.MaxAvgLatency
	}
	if src.MinCacheHitRate > 0 {
		dst.MinCacheHitRate = src.MinCacheHitRate
	}
	if src.MaxQueueDepth > 0 {
		dst.MaxQueueDepth = src.MaxQueueDepth
	}
	if src.MaxMemoryRatio > 0 {
		dst.MaxMemoryRatio = src.MaxMemoryRatio
	}
	if src.MaxCPURatio > 0 {
		dst.MaxCPURatio = src.MaxCPURatio
	}
	if src.MinThroughput > 0 {
		dst.MinThroughput = src.MinThroughput
	}
	return dst
}

// RecordQuery counts one processed query and its latency.
func (m *Monitor) RecordQuery(latency time.Duration) {
	m.queries.Add(1)
	m.latencyNs.Add(int64(latency))
}

// SetThresholds replaces the thresholds; zero fields keep their current values.
func (m *Monitor) SetThresholds(t config.Thresholds) {
	m.mu.Lock()
	m.thresholds = mergeThresholds(m.thresholds, t)
	m.mu.Unlock()
}

// OnBottleneck registers a callback invoked for every flagged bottleneck.
func (m *Monitor) OnBottleneck(fn func(Bottleneck)) {
	m.mu.Lock()
	m.onFlag = fn
	m.mu.Unlock()
}

// Sample takes a snapshot, appends it to the history and re-evaluates bottlenecks.
func (m *Monitor) Sample() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	queries := m.queries.Load()
	latency := m.latencyNs.Load()

	s := Snapshot{Timestamp: now, Queries: queries, Goroutines: runtime.NumGoroutine()}
	if dq := queries - m.lastQueries; dq > 0 {
		s.AvgLatency = time.Duration((latency - m.lastLatency) / int64(dq))
		if elapsed := now.Sub(m.lastSample).Seconds(); elapsed > 0 {
			s.Throughput = float64(dq) / elapsed
		}
	}
	if m.probe.Cache != nil {
		cs := m.probe.Cache()
		s.CacheHitRate = cs.HitRate
		s.CacheEntries = cs.Entries
		if cs.MaxMemory > 0 {
			s.MemoryRatio = float64(cs.MemoryBytes) / float64(cs.MaxMemory)
		}
	}
	if m.probe.QueueDepth != nil {
		s.QueueDepth = m.probe.QueueDepth()
	}
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	s.HeapBytes = ms.HeapAlloc
	s.CPURatio = m.cpu.read()

	m.lastQueries, m.lastLatency, m.lastSample = queries, latency, now
	m.snapshots = append(m.snapshots, s)
	if over := len(m.snapshots) - m.history; over > 0 {
		m.snapshots = append([]Snapshot(nil), m.snapshots[over:]...)
	}

	m.bottlenecks = detect(s, m.thresholds)
	for _, b := range m.bottlenecks {
		m.logger.Warn("bottleneck detected",
			zap.String("metric", b.Metric),
			zap.Float64("value", b.Value),
			zap.Float64("threshold", b.Threshold),
			zap.String("suggestion", b.Suggestion))
		if m.onFlag != nil {
			m.onFlag(b)
		}
	}
	return s
}

// detect flags every threshold crossed by s. Rate checks only apply once traffic exists.
func detect(s Snapshot, t config.Thresholds) []Bottleneck {
	var out []Bottleneck
	if t.MaxAvgLatency > 0 && s.AvgLatency > t.MaxAvgLatency {
		out = append(out, Bottleneck{
			Metric:     "avg_latency",
			Value:      s.AvgLatency.Seconds(),
			Threshold:  t.MaxAvgLatency.Seconds(),
			Suggestion: "Average latency is high; use fast mode for simple queries or lower stage timeouts",
		})
	}
	if s.Queries > 0 && s.CacheHitRate < t.MinCacheHitRate {
		out = append(out, Bottleneck{
			Metric:     "cache_hit_rate",
			Value:      s.CacheHitRate,
			Threshold:  t.MinCacheHitRate,
			Suggestion: "Cache hit rate is low; increase cache size or TTL",
		})
	}
	if t.MaxQueueDepth > 0 && s.QueueDepth > t.MaxQueueDepth {
		out = append(out, Bottleneck{
			Metric:     "queue_depth",
			Value:      float64(s.QueueDepth),
			Threshold:  float64(t.MaxQueueDepth),
			Suggestion: "Batch queue is backing up; add workers or reduce batch size",
		})
	}
	if t.MaxMemoryRatio > 0 && s.MemoryRatio > t.MaxMemoryRatio {
		out = append(out, Bottleneck{
			Metric:     "memory_ratio",
			Value:      s.MemoryRatio,
			Threshold:  t.MaxMemoryRatio,
			Suggestion: "Cache memory is near its ceiling; shorten the TTL or raise max_memory_mb",
		})
	}
	if t.MaxCPURatio > 0 && s.CPURatio > t.MaxCPURatio {
		out = append(out, Bottleneck{
			Metric:     "cpu_ratio",
			Value:      s.CPURatio,
			Threshold:  t.MaxCPURatio,
			Suggestion: fmt.Sprintf("CPU is saturated; lower max_concurrent below %d goroutines", s.Goroutines),
		})
	}
	if t.MinThroughput > 0 && s.Throughput > 0 && s.Throughput < t.MinThroughput {
		out = append(out, Bottleneck{
			Metric:     "throughput",
			Value:      s.Throughput,
			Threshold:  t.MinThroughput,
			Suggestion: "Throughput is low; reduce batch size so workers stay busy",
		})
	}
	return out
}

// Latest returns the most recent snapshot and false when none was taken yet.
func (m *Monitor) Latest() (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.snapshots) == 0 {
		return Snapshot{}, false
	}
	return m.snapshots[len(m.snapshots)-1], true
}

// History returns a copy of the retained snapshots, oldest first.
func (m *Monitor) History() []Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Snapshot(nil), m.snapshots...)
}

// Bottlenecks returns the bottlenecks flagged by the latest sample.
func (m *Monitor) Bottlenecks() []Bottleneck {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Bottleneck(nil), m.bottlenecks...)
}

// cpuSampler derives process CPU utilisation from runtime/metrics deltas.
type cpuSampler struct {
	samples   []metrics.Sample
	lastTotal float64
	lastIdle  float64
}

func (c *cpuSampler) read() float64 {
	if c.samples == nil {
		c.samples = []metrics.Sample{
			{Name: "/cpu/classes/total:cpu-seconds"},
			{Name: "/cpu/classes/idle:cpu-seconds"},
		}
	}
	metrics.Read(c.samples)
	if c.samples[0].Value.Kind() != metrics.KindFloat64 || c.samples[1].Value.Kind() != metrics.KindFloat64 {
		return 0
	}
	total, idle := c.samples[0].Value.Float64(), c.samples[1].Value.Float64()
	dt, di := total-c.lastTotal, idle-c.lastIdle
	c.lastTotal, c.lastIdle = total, idle
	if dt <= 0 {
		return 0
	}
	ratio := 1 - di/dt
	if ratio < 0 {
		return 0
	}
	if ratio > 1 {
		return 1
	}
	return ratio
}
