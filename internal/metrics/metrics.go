// Package metrics defines the prometheus collectors of the query pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "shitsumon"

// Metrics holds every collector, registered on its own registry.
type Metrics struct {
	Registry *prometheus.Registry

	QueryDuration   *prometheus.HistogramVec
	QueriesTotal    *prometheus.CounterVec
	StageDuration   *prometheus.HistogramVec
	StageFailures   *prometheus.CounterVec
	CacheHits       prometheus.Counter
	CacheMisses     prometheus.Counter
	CacheEntries    prometheus.Gauge
	CacheMemory     prometheus.Gauge
	PoolInUse       prometheus.Gauge
	PoolTotal       prometheus.Gauge
	QueueDepth      prometheus.Gauge
	BatchSize       prometheus.Histogram
	Bottlenecks     *prometheus.CounterVec
	ConfidenceScore prometheus.Histogram
}

// New creates the collectors and registers them on reg. A nil reg gets a fresh
// registry that also carries the Go runtime and process collectors.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	m := &Metrics{
		Registry: reg,
		QueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Query processing duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"mode"}),
		QueriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Total number of queries processed",
		}, []string{"mode", "status"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage duration in seconds",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"stage"}),
		StageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_failures_total",
			Help:      "Stage calls that degraded to their default",
		}, []string{"stage"}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total result cache hits",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total result cache misses",
		}),
		CacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_entries",
			Help:      "Entries in the result cache",
		}),
		CacheMemory: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_memory_bytes",
			Help:      "Estimated memory held by the result cache",
		}),
		PoolInUse: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_connections_in_use",
			Help:      "Logical connections currently acquired",
		}),
		PoolTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_connections_total",
			Help:      "Logical connections owned by the pool",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "batch_queue_depth",
			Help:      "Batches waiting in the worker queue",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Number of queries per batch",
			Buckets:   []float64{1, 10, 50, 100, 250, 500, 1000},
		}),
		Bottlenecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bottlenecks_total",
			Help:      "Bottlenecks flagged by the monitor",
		}, []string{"metric"}),
		ConfidenceScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "confidence_score",
			Help:      "Overall confidence of processed queries",
			Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		}),
	}
	reg.MustRegister(
		m.QueryDuration, m.QueriesTotal, m.StageDuration, m.StageFailures,
		m.CacheHits, m.CacheMisses, m.CacheEntries, m.CacheMemory,
		m.PoolInUse, m.PoolTotal, m.QueueDepth, m.BatchSize,
		m.Bottlenecks, m.ConfidenceScore,
	)
	return m
}

// ObserveQuery records one processed query.
func (m *Metrics) ObserveQuery(mode, status string, d time.Duration, confidence float64) {
	if m == nil {
		return
	}
	m.QueryDuration.WithLabelValues(mode).Observe(d.Seconds())
	m.QueriesTotal.WithLabelValues(mode, status).Inc()
	if status != "cached" {
		m.ConfidenceScore.Observe(confidence)
	}
}

// ObserveStage records one stage call; failed marks a degraded stage.
func (m *Metrics) ObserveStage(stage string, d time.Duration, failed bool) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
	if failed {
		m.StageFailures.WithLabelValues(stage).Inc()
	}
}

// ObserveCache counts a cache lookup.
func (m *Metrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHits.Inc()
	} else {
		m.CacheMisses.Inc()
	}
}

// ObserveBatch records the size of one batch request.
func (m *Metrics) ObserveBatch(size int) {
	if m == nil {
		return
	}
	m.BatchSize.Observe(float64(size))
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
