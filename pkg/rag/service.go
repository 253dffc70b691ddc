package rag

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker"
)

// RetrievalService is the single entry point for retrieval. It ties
// together strategy selection, the answer cache, query expansion, the
// pooled retrievers and the performance monitor, and shields the vector
// store behind a circuit breaker.
type RetrievalService struct {
	config   *ServiceConfig
	pool     *ClientPool
	cache    *RetrievalCache
	expander *QueryExpander
	monitor  *PerformanceMonitor
	breaker  *gobreaker.CircuitBreaker
	logger   *slog.Logger
}

// NewRetrievalService builds a service with real clients from cfg. Pass a
// nil registerer to skip Prometheus registration.
func NewRetrievalService(cfg *Config, registerer prometheus.Registerer) *RetrievalService {
	if cfg == nil {
		cfg = GetDefaultConfig()
	}
	return NewRetrievalServiceWith(
		cfg.Service,
		NewClientPool(cfg),
		NewRetrievalCache(cfg.Cache),
		NewQueryExpander(cfg.Expander),
		NewPerformanceMonitor(cfg.Monitor, registerer),
	)
}

// NewRetrievalServiceWith assembles a service from pre-built components.
func NewRetrievalServiceWith(config *ServiceConfig, pool *ClientPool, cache *RetrievalCache, expander *QueryExpander, monitor *PerformanceMonitor) *RetrievalService {
	if config == nil {
		config = getDefaultServiceConfig()
	}

	svc := &RetrievalService{
		config:   config,
		pool:     pool,
		cache:    cache,
		expander: expander,
		monitor:  monitor,
		logger:   slog.Default().With("component", "retrieval-service"),
	}
	svc.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "vector-search",
		Timeout: config.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.BreakerThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			svc.logger.Warn("Circuit breaker state change",
				"breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return svc
}

// Retrieve runs the full pipeline for one request: strategy selection,
// cache lookup, optional multi-query expansion, vector search, compression
// and caching of the outcome. Zero matching documents is a valid outcome,
// reported through RetrievalResult.NoResults with a nil error.
func (s *RetrievalService) Retrieve(ctx context.Context, req RetrievalRequest) (*RetrievalResult, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, newValidationError("retrieve", "query must not be empty")
	}

	start := time.Now()
	strategy := SelectStrategy(req.Query)

	topK := req.TopK
	if topK <= 0 {
		topK = s.config.DefaultTopK
	}

	metric := RetrievalMetric{
		QueryLength: len(req.Query),
		Strategy:    strategy.Kind,
		Timestamp:   start,
	}
	defer func() {
		metric.Latency = time.Since(start)
		s.monitor.Record(metric)
	}()

	result := &RetrievalResult{
		RequestID:   uuid.NewString(),
		Query:       req.Query,
		Strategy:    strategy.Kind,
		ProcessedAt: start,
	}

	cacheParams := CacheParams{
		TopK:      topK,
		Threshold: req.ScoreThreshold,
		Tenant:    req.Tenant,
		Locale:    req.Locale,
		Strategy:  strategy.Kind,
	}
	if docs, ok := s.cache.Get(ctx, req.Query, cacheParams); ok {
		result.Documents = docs
		result.CacheHit = true
		result.NoResults = len(docs) == 0
		result.Took = time.Since(start)
		metric.CacheHit = true
		metric.DocumentsFound = len(docs)
		return result, nil
	}

	queries := []string{req.Query}
	if strategy.UseMultiQuery {
		queries = s.expander.Expand(req.Query)
	}

	params := SearchParams{
		Limit:     topK,
		Threshold: req.ScoreThreshold,
		Filters:   searchFilters(req),
	}

	docs, err := s.searchWithDeadline(ctx, strategy, req.Query, queries, params)
	if err != nil && IsTimeout(err) && strategy.Kind == StrategyComprehensive {
		s.logger.Warn("Comprehensive retrieval timed out, falling back to fast strategy",
			"request_id", result.RequestID, "error", err)

		strategy = RetrievalStrategy{Kind: StrategyFast, UseMultiQuery: false, CacheTTL: fastCacheTTL}
		result.Strategy = strategy.Kind
		result.Fallback = true
		metric.Strategy = strategy.Kind

		// The original deadline is spent; the fallback gets its own
		// bounded attempt so a slow comprehensive pass does not doom it.
		fallbackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.FallbackTimeout)
		docs, err = s.searchWithDeadline(fallbackCtx, strategy, req.Query, []string{req.Query}, params)
		cancel()
	}
	if err != nil {
		metric.Error = err.Error()
		s.logger.Error("Retrieval failed",
			"request_id", result.RequestID, "query_length", len(req.Query), "error", err)
		return nil, err
	}

	result.Documents = docs
	result.NoResults = len(docs) == 0
	result.Took = time.Since(start)
	metric.DocumentsFound = len(docs)

	if len(docs) > 0 {
		s.cache.Put(ctx, req.Query, cacheParams, docs, strategy.CacheTTL)
	}

	s.logger.Info("Retrieval completed",
		"request_id", result.RequestID,
		"strategy", strategy.Kind,
		"documents", len(docs),
		"fallback", result.Fallback,
		"took", result.Took,
	)
	return result, nil
}

// searchWithDeadline runs one retrieval attempt through the circuit
// breaker, bounding comprehensive attempts with the configured timeout.
func (s *RetrievalService) searchWithDeadline(ctx context.Context, strategy RetrievalStrategy, originalQuery string, queries []string, params SearchParams) ([]RetrievedDocument, error) {
	if strategy.Kind == StrategyComprehensive && s.config.ComprehensiveTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.ComprehensiveTimeout)
		defer cancel()
	}

	retriever, err := s.pool.CompressionRetriever(ctx, strategy.UseMultiQuery)
	if err != nil {
		return nil, err
	}

	out, err := s.breaker.Execute(func() (interface{}, error) {
		return retriever.Retrieve(ctx, originalQuery, queries, params)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, newUpstreamError("search", "vector search circuit open", err)
		}
		if ctx.Err() != nil {
			return nil, newTimeoutError("search", "retrieval deadline exceeded", err)
		}
		return nil, err
	}
	return out.([]RetrievedDocument), nil
}

// GetPerformanceStats reports rolling-window statistics. A non-positive
// window uses the monitor's default.
func (s *RetrievalService) GetPerformanceStats(windowMinutes int) PerformanceStats {
	return s.monitor.Stats(time.Duration(windowMinutes) * time.Minute)
}

// GetHealth reports the current verdict over the default window.
func (s *RetrievalService) GetHealth() HealthVerdict {
	return s.monitor.Health(0)
}

// CacheStats reports cache counters since startup.
func (s *RetrievalService) CacheStats() CacheStats {
	return s.cache.Stats()
}

// ResetCache drops every cached retrieval entry and returns how many were
// removed.
func (s *RetrievalService) ResetCache(ctx context.Context) (int, error) {
	return s.cache.Invalidate(ctx, "*")
}

// ResetPool drops all pooled client handles so the next request rebuilds
// them.
func (s *RetrievalService) ResetPool() {
	s.pool.Reset()
}

// Healthy probes the pool's downstream connectivity.
func (s *RetrievalService) Healthy(ctx context.Context) bool {
	return s.pool.Healthy(ctx)
}

// Close releases held resources. Safe to call once at shutdown.
func (s *RetrievalService) Close() error {
	return s.cache.Close()
}

func searchFilters(req RetrievalRequest) map[string]string {
	filters := make(map[string]string)
	if req.Tenant != "" {
		filters["tenant"] = req.Tenant
	}
	if req.Locale != "" {
		filters["locale"] = req.Locale
	}
	if len(filters) == 0 {
		return nil
	}
	return filters
}
