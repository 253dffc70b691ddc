package rag

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
)

// CacheParams is the strategy-derived parameter set that, together with the
// query text, forms a cache key. Two requests with different parameter sets
// never collide.
type CacheParams struct {
	TopK      int          `json:"top_k"`
	Threshold float32      `json:"threshold"`
	Tenant    string       `json:"tenant"`
	Locale    string       `json:"locale"`
	Strategy  StrategyKind `json:"strategy"`
}

type cacheEntry struct {
	Query     string              `json:"query"`
	Documents []RetrievedDocument `json:"documents"`
	CachedAt  time.Time           `json:"cached_at"`
}

// RetrievalCache is a TTL cache for retrieved document sets backed by
// Redis. If the store is unreachable at construction time the cache runs
// disabled: Get always misses, Put and Invalidate are no-ops. Cache
// failures never propagate to the retrieval path.
type RetrievalCache struct {
	client   *redis.Client
	config   *CacheConfig
	logger   *slog.Logger
	disabled bool

	hits   int64
	misses int64
	sets   int64
	errors int64
}

// NewRetrievalCache creates the cache and probes the backing store once.
// An unreachable store yields a disabled cache, not an error.
func NewRetrievalCache(config *CacheConfig) *RetrievalCache {
	if config == nil {
		config = getDefaultCacheConfig()
	}

	cache := &RetrievalCache{
		config: config,
		logger: slog.Default().With("component", "retrieval-cache"),
	}

	client := redis.NewClient(&redis.Options{
		Addr:         config.Address,
		Password:     config.Password,
		DB:           config.Database,
		PoolSize:     config.PoolSize,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), config.DialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		cache.disabled = true
		cache.logger.Warn("Cache store unreachable, running with caching disabled",
			"address", config.Address,
			"error", err,
		)
		return cache
	}

	cache.client = client
	cache.logger.Info("Retrieval cache initialized", "address", config.Address, "prefix", config.KeyPrefix)
	return cache
}

// Get returns the cached document set for (query, params), or false on miss.
// A degraded or failing store always reads as a miss.
func (rc *RetrievalCache) Get(ctx context.Context, query string, params CacheParams) ([]RetrievedDocument, bool) {
	if rc.disabled {
		atomic.AddInt64(&rc.misses, 1)
		return nil, false
	}

	key := rc.buildKey(query, params)
	data, err := rc.client.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			atomic.AddInt64(&rc.errors, 1)
			rc.logger.Warn("Cache read failed", "key", key, "error", err)
		}
		atomic.AddInt64(&rc.misses, 1)
		return nil, false
	}

	var entry cacheEntry
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		atomic.AddInt64(&rc.errors, 1)
		rc.logger.Warn("Cache entry corrupt, discarding", "key", key, "error", err)
		rc.client.Del(ctx, key)
		atomic.AddInt64(&rc.misses, 1)
		return nil, false
	}

	atomic.AddInt64(&rc.hits, 1)
	return entry.Documents, true
}

// Put stores the document set under (query, params) with the given TTL.
// Failures are logged and absorbed.
func (rc *RetrievalCache) Put(ctx context.Context, query string, params CacheParams, docs []RetrievedDocument, ttl time.Duration) {
	if rc.disabled {
		return
	}
	if ttl <= 0 {
		ttl = rc.config.DefaultTTL
	}

	entry := cacheEntry{
		Query:     query,
		Documents: docs,
		CachedAt:  time.Now(),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		atomic.AddInt64(&rc.errors, 1)
		rc.logger.Warn("Failed to marshal cache entry", "error", err)
		return
	}

	key := rc.buildKey(query, params)
	if err := rc.client.Set(ctx, key, data, ttl).Err(); err != nil {
		atomic.AddInt64(&rc.errors, 1)
		rc.logger.Warn("Cache write failed", "key", key, "error", err)
		return
	}
	atomic.AddInt64(&rc.sets, 1)
}

// Invalidate removes all entries whose key matches pattern inside this
// cache's namespace. Returns the number of removed keys.
func (rc *RetrievalCache) Invalidate(ctx context.Context, pattern string) (int, error) {
	if rc.disabled {
		return 0, nil
	}
	if pattern == "" {
		pattern = "*"
	}

	keys, err := rc.client.Keys(ctx, rc.config.KeyPrefix+":"+pattern).Result()
	if err != nil {
		atomic.AddInt64(&rc.errors, 1)
		return 0, newCacheUnavailableError("cache.invalidate", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	if err := rc.client.Del(ctx, keys...).Err(); err != nil {
		atomic.AddInt64(&rc.errors, 1)
		return 0, newCacheUnavailableError("cache.invalidate", err)
	}

	rc.logger.Info("Cache invalidated", "pattern", pattern, "keys", len(keys))
	return len(keys), nil
}

// Stats reports cache behavior since startup.
func (rc *RetrievalCache) Stats() CacheStats {
	return CacheStats{
		Disabled: rc.disabled,
		Hits:     atomic.LoadInt64(&rc.hits),
		Misses:   atomic.LoadInt64(&rc.misses),
		Sets:     atomic.LoadInt64(&rc.sets),
		Errors:   atomic.LoadInt64(&rc.errors),
	}
}

// Close releases the Redis connection.
func (rc *RetrievalCache) Close() error {
	if rc.client == nil {
		return nil
	}
	return rc.client.Close()
}

// buildKey derives the namespaced cache key from the canonicalized
// parameter set and the query text.
func (rc *RetrievalCache) buildKey(query string, params CacheParams) string {
	canonical := fmt.Sprintf("k=%d|t=%.4f|tenant=%s|locale=%s|strategy=%s|q=%s",
		params.TopK, params.Threshold, params.Tenant, params.Locale, params.Strategy, query)
	sum := sha256.Sum256([]byte(canonical))
	return rc.config.KeyPrefix + ":" + hex.EncodeToString(sum[:])[:32]
}
