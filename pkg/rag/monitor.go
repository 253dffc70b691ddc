package rag

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PerformanceMonitor keeps a bounded in-memory ring of per-request metrics
// and derives rolling-window statistics and a health verdict from it. When
// Prometheus export is enabled the same observations also feed counters and
// histograms on the supplied registerer.
type PerformanceMonitor struct {
	config *MonitorConfig
	logger *slog.Logger

	mu      sync.Mutex
	metrics []RetrievalMetric
	next    int
	filled  bool

	retrievalsTotal *prometheus.CounterVec
	latencySeconds  *prometheus.HistogramVec
	cacheHitsTotal  prometheus.Counter
	cacheMissTotal  prometheus.Counter
}

// NewPerformanceMonitor creates a monitor with the given config. A nil
// registerer disables Prometheus export regardless of config.
func NewPerformanceMonitor(config *MonitorConfig, registerer prometheus.Registerer) *PerformanceMonitor {
	if config == nil {
		config = getDefaultMonitorConfig()
	}
	if config.BufferSize <= 0 {
		config.BufferSize = 1000
	}

	m := &PerformanceMonitor{
		config:  config,
		logger:  slog.Default().With("component", "performance-monitor"),
		metrics: make([]RetrievalMetric, config.BufferSize),
	}

	if config.EnablePrometheus && registerer != nil {
		m.retrievalsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.PrometheusNamespace,
			Name:      "requests_total",
			Help:      "Retrieval requests by strategy and outcome.",
		}, []string{"strategy", "outcome"})
		m.latencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: config.PrometheusNamespace,
			Name:      "latency_seconds",
			Help:      "End-to-end retrieval latency.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"strategy"})
		m.cacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: config.PrometheusNamespace,
			Name:      "cache_hits_total",
			Help:      "Retrievals served from cache.",
		})
		m.cacheMissTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: config.PrometheusNamespace,
			Name:      "cache_misses_total",
			Help:      "Retrievals not served from cache.",
		})
		registerer.MustRegister(m.retrievalsTotal, m.latencySeconds, m.cacheHitsTotal, m.cacheMissTotal)
	}

	return m
}

// Record appends a metric to the ring, dropping the oldest entry once the
// buffer is full.
func (m *PerformanceMonitor) Record(metric RetrievalMetric) {
	if metric.Timestamp.IsZero() {
		metric.Timestamp = time.Now()
	}

	m.mu.Lock()
	m.metrics[m.next] = metric
	m.next++
	if m.next == len(m.metrics) {
		m.next = 0
		m.filled = true
	}
	m.mu.Unlock()

	if m.retrievalsTotal != nil {
		outcome := "ok"
		if metric.Error != "" {
			outcome = "error"
		} else if metric.DocumentsFound == 0 {
			outcome = "no_results"
		}
		m.retrievalsTotal.WithLabelValues(string(metric.Strategy), outcome).Inc()
		m.latencySeconds.WithLabelValues(string(metric.Strategy)).Observe(metric.Latency.Seconds())
		if metric.CacheHit {
			m.cacheHitsTotal.Inc()
		} else {
			m.cacheMissTotal.Inc()
		}
	}
}

// Stats computes aggregate statistics over metrics recorded within the
// window. A non-positive window falls back to the configured default.
func (m *PerformanceMonitor) Stats(window time.Duration) PerformanceStats {
	if window <= 0 {
		window = m.config.DefaultWindow
	}
	cutoff := time.Now().Add(-window)
	recent := m.snapshot(cutoff)

	stats := PerformanceStats{
		WindowMinutes: int(window.Minutes()),
		TotalQueries:  len(recent),
		Health:        HealthUnknown,
	}
	if len(recent) == 0 {
		return stats
	}

	var hits, errors, docs int
	var totalLatency time.Duration
	latencies := make([]time.Duration, 0, len(recent))
	for _, metric := range recent {
		if metric.CacheHit {
			hits++
		}
		if metric.Error != "" {
			errors++
		}
		docs += metric.DocumentsFound
		totalLatency += metric.Latency
		latencies = append(latencies, metric.Latency)
		switch metric.Strategy {
		case StrategyFast:
			stats.FastQueries++
		case StrategyComprehensive:
			stats.ComprehensiveCount++
		}
	}

	stats.CacheHitRate = float64(hits) / float64(len(recent))
	stats.ErrorRate = float64(errors) / float64(len(recent))
	stats.AverageLatency = totalLatency / time.Duration(len(recent))
	stats.AverageDocuments = float64(docs) / float64(len(recent))

	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	idx := (len(latencies) * 95) / 100
	if idx >= len(latencies) {
		idx = len(latencies) - 1
	}
	stats.P95Latency = latencies[idx]
	stats.Health = m.verdictFor(stats)

	return stats
}

// Health maps the window statistics to a verdict. An empty window yields
// HealthUnknown rather than a false healthy.
func (m *PerformanceMonitor) Health(window time.Duration) HealthVerdict {
	return m.Stats(window).Health
}

func (m *PerformanceMonitor) verdictFor(stats PerformanceStats) HealthVerdict {
	if stats.TotalQueries == 0 {
		return HealthUnknown
	}
	if stats.ErrorRate > m.config.UnhealthyErrorRate || stats.AverageLatency > m.config.UnhealthyAvgLatency {
		return HealthUnhealthy
	}
	if stats.ErrorRate > m.config.DegradedErrorRate || stats.AverageLatency > m.config.DegradedAvgLatency {
		return HealthDegraded
	}
	return HealthHealthy
}

// snapshot copies the metrics recorded at or after cutoff.
func (m *PerformanceMonitor) snapshot(cutoff time.Time) []RetrievalMetric {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := m.next
	if m.filled {
		count = len(m.metrics)
	}
	recent := make([]RetrievalMetric, 0, count)
	for i := 0; i < count; i++ {
		if !m.metrics[i].Timestamp.Before(cutoff) {
			recent = append(recent, m.metrics[i])
		}
	}
	return recent
}
