package rag

import (
	"time"
)

// RetrievalRequest describes a single retrieval call. It is immutable for
// the duration of the call.
type RetrievalRequest struct {
	Query          string  `json:"query"`
	Tenant         string  `json:"tenant,omitempty"`
	Locale         string  `json:"locale,omitempty"`
	TopK           int     `json:"top_k,omitempty"`
	ScoreThreshold float32 `json:"score_threshold,omitempty"`
}

// RetrievedDocument is one knowledge-base passage as returned by the vector
// store. Documents are never mutated after retrieval, only filtered,
// reordered or copied.
type RetrievedDocument struct {
	ID         string    `json:"id"`
	Content    string    `json:"content"`
	Source     string    `json:"source"`
	Section    string    `json:"section,omitempty"`
	Subsection string    `json:"subsection,omitempty"`
	Tags       []string  `json:"tags,omitempty"`
	Price      string    `json:"price,omitempty"`
	Contact    string    `json:"contact,omitempty"`
	URL        string    `json:"url,omitempty"`
	IsFAQ      bool      `json:"is_faq,omitempty"`
	UpdatedAt  time.Time `json:"updated_at,omitempty"`
	Score      float32   `json:"score"`
}

// StrategyKind identifies the retrieval strategy.
type StrategyKind string

const (
	// StrategyFast skips multi-query expansion for short or high-frequency
	// queries where latency matters more than recall.
	StrategyFast StrategyKind = "fast"

	// StrategyComprehensive enables multi-query expansion for longer,
	// less common queries.
	StrategyComprehensive StrategyKind = "comprehensive"
)

// RetrievalStrategy is computed fresh per request and never persisted.
type RetrievalStrategy struct {
	Kind          StrategyKind  `json:"kind"`
	UseMultiQuery bool          `json:"use_multi_query"`
	CacheTTL      time.Duration `json:"cache_ttl"`
}

// RetrievalResult is what the orchestrator hands back to the caller.
// NoResults distinguishes "confidently nothing found" from a retrieval
// failure, which is reported as an error instead.
type RetrievalResult struct {
	RequestID   string              `json:"request_id"`
	Query       string              `json:"query"`
	Documents   []RetrievedDocument `json:"documents"`
	Strategy    StrategyKind        `json:"strategy"`
	CacheHit    bool                `json:"cache_hit"`
	NoResults   bool                `json:"no_results"`
	Fallback    bool                `json:"fallback,omitempty"`
	Took        time.Duration       `json:"took"`
	ProcessedAt time.Time           `json:"processed_at"`
}

// RetrievalMetric is one per-call observation appended to the monitor's
// bounded buffer. Never mutated after creation.
type RetrievalMetric struct {
	QueryLength    int           `json:"query_length"`
	Strategy       StrategyKind  `json:"strategy"`
	Latency        time.Duration `json:"latency"`
	CacheHit       bool          `json:"cache_hit"`
	DocumentsFound int           `json:"documents_found"`
	Error          string        `json:"error,omitempty"`
	Timestamp      time.Time     `json:"timestamp"`
}

// HealthVerdict classifies recent retrieval behavior.
type HealthVerdict string

const (
	// HealthHealthy holds the healthy verdict value.
	HealthHealthy HealthVerdict = "healthy"

	// HealthDegraded holds the degraded verdict value.
	HealthDegraded HealthVerdict = "degraded"

	// HealthUnhealthy holds the unhealthy verdict value.
	HealthUnhealthy HealthVerdict = "unhealthy"

	// HealthUnknown is returned when the metrics window is empty.
	HealthUnknown HealthVerdict = "unknown"
)

// PerformanceStats summarizes the metrics recorded inside a time window.
type PerformanceStats struct {
	WindowMinutes      int           `json:"window_minutes"`
	TotalQueries       int           `json:"total_queries"`
	CacheHitRate       float64       `json:"cache_hit_rate"`
	ErrorRate          float64       `json:"error_rate"`
	AverageLatency     time.Duration `json:"average_latency"`
	P95Latency         time.Duration `json:"p95_latency"`
	AverageDocuments   float64       `json:"average_documents"`
	FastQueries        int           `json:"fast_queries"`
	ComprehensiveCount int           `json:"comprehensive_queries"`
	Health             HealthVerdict `json:"health"`
}

// CacheStats reports retrieval cache behavior since startup.
type CacheStats struct {
	Disabled bool  `json:"disabled"`
	Hits     int64 `json:"hits"`
	Misses   int64 `json:"misses"`
	Sets     int64 `json:"sets"`
	Errors   int64 `json:"errors"`
}

// SearchParams are the vector store inputs for one search call.
type SearchParams struct {
	Query     string            `json:"query"`
	Vector    []float32         `json:"-"`
	Limit     int               `json:"limit"`
	Threshold float32           `json:"threshold"`
	Filters   map[string]string `json:"filters,omitempty"`
}
