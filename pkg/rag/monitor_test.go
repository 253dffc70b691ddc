package rag

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMonitor(bufferSize int) *PerformanceMonitor {
	return NewPerformanceMonitor(&MonitorConfig{
		BufferSize:          bufferSize,
		DefaultWindow:       5 * time.Minute,
		DegradedErrorRate:   0.2,
		UnhealthyErrorRate:  0.5,
		DegradedAvgLatency:  5 * time.Second,
		UnhealthyAvgLatency: 10 * time.Second,
	}, nil)
}

func TestMonitorStatsEmpty(t *testing.T) {
	monitor := newTestMonitor(10)

	stats := monitor.Stats(0)

	assert.Zero(t, stats.TotalQueries)
	assert.Equal(t, HealthUnknown, stats.Health)
}

func TestMonitorStatsAggregation(t *testing.T) {
	monitor := newTestMonitor(100)

	monitor.Record(RetrievalMetric{Strategy: StrategyFast, Latency: 100 * time.Millisecond, CacheHit: true, DocumentsFound: 4})
	monitor.Record(RetrievalMetric{Strategy: StrategyComprehensive, Latency: 300 * time.Millisecond, DocumentsFound: 6})
	monitor.Record(RetrievalMetric{Strategy: StrategyComprehensive, Latency: 200 * time.Millisecond, DocumentsFound: 2})
	monitor.Record(RetrievalMetric{Strategy: StrategyFast, Latency: 400 * time.Millisecond, Error: "upstream: boom"})

	stats := monitor.Stats(5 * time.Minute)

	require.Equal(t, 4, stats.TotalQueries)
	assert.InDelta(t, 0.25, stats.CacheHitRate, 1e-9)
	assert.InDelta(t, 0.25, stats.ErrorRate, 1e-9)
	assert.Equal(t, 250*time.Millisecond, stats.AverageLatency)
	assert.InDelta(t, 3.0, stats.AverageDocuments, 1e-9)
	assert.Equal(t, 2, stats.FastQueries)
	assert.Equal(t, 2, stats.ComprehensiveCount)
	assert.Equal(t, 400*time.Millisecond, stats.P95Latency)
	assert.Equal(t, HealthDegraded, stats.Health, "25% errors is past the degraded threshold")
}

func TestMonitorRingDropsOldest(t *testing.T) {
	monitor := newTestMonitor(3)

	for i := 0; i < 5; i++ {
		monitor.Record(RetrievalMetric{Strategy: StrategyFast, DocumentsFound: i})
	}

	stats := monitor.Stats(5 * time.Minute)
	require.Equal(t, 3, stats.TotalQueries)
	// Entries 0 and 1 were overwritten; 2, 3, 4 remain.
	assert.InDelta(t, 3.0, stats.AverageDocuments, 1e-9)
}

func TestMonitorWindowExcludesOld(t *testing.T) {
	monitor := newTestMonitor(10)

	monitor.Record(RetrievalMetric{Strategy: StrategyFast, Timestamp: time.Now().Add(-time.Hour)})
	monitor.Record(RetrievalMetric{Strategy: StrategyFast})

	stats := monitor.Stats(5 * time.Minute)
	assert.Equal(t, 1, stats.TotalQueries)
}

func TestMonitorHealthVerdicts(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		monitor := newTestMonitor(10)
		for i := 0; i < 10; i++ {
			monitor.Record(RetrievalMetric{Strategy: StrategyFast, Latency: 50 * time.Millisecond})
		}
		assert.Equal(t, HealthHealthy, monitor.Health(0))
	})

	t.Run("degraded on error rate", func(t *testing.T) {
		monitor := newTestMonitor(10)
		for i := 0; i < 10; i++ {
			m := RetrievalMetric{Strategy: StrategyFast, Latency: 50 * time.Millisecond}
			if i < 3 {
				m.Error = "upstream: boom"
			}
			monitor.Record(m)
		}
		assert.Equal(t, HealthDegraded, monitor.Health(0))
	})

	t.Run("unhealthy on error rate", func(t *testing.T) {
		monitor := newTestMonitor(10)
		for i := 0; i < 10; i++ {
			m := RetrievalMetric{Strategy: StrategyFast, Latency: 50 * time.Millisecond}
			if i < 6 {
				m.Error = "upstream: boom"
			}
			monitor.Record(m)
		}
		assert.Equal(t, HealthUnhealthy, monitor.Health(0))
	})

	t.Run("unhealthy on latency", func(t *testing.T) {
		monitor := newTestMonitor(10)
		for i := 0; i < 5; i++ {
			monitor.Record(RetrievalMetric{Strategy: StrategyComprehensive, Latency: 12 * time.Second})
		}
		assert.Equal(t, HealthUnhealthy, monitor.Health(0))
	})
}

func TestMonitorPrometheusRegistration(t *testing.T) {
	registry := prometheus.NewRegistry()
	monitor := NewPerformanceMonitor(&MonitorConfig{
		BufferSize:          10,
		DefaultWindow:       5 * time.Minute,
		EnablePrometheus:    true,
		PrometheusNamespace: "retrieval",
	}, registry)

	monitor.Record(RetrievalMetric{Strategy: StrategyFast, Latency: 100 * time.Millisecond, CacheHit: true, DocumentsFound: 3})
	monitor.Record(RetrievalMetric{Strategy: StrategyComprehensive, Latency: 2 * time.Second, Error: "upstream: boom"})

	families, err := registry.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["retrieval_requests_total"])
	assert.True(t, names["retrieval_latency_seconds"])
	assert.True(t, names["retrieval_cache_hits_total"])
	assert.True(t, names["retrieval_cache_misses_total"])
}
