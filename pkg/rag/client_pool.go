package rag

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// ClientPool owns the long-lived handles to the downstream services:
// vector store, embedder, query rewriter, reranker and the retrievers
// composed from them. Handles are constructed lazily on first use and kept
// for the process lifetime. The pool probes the vector store's health on a
// throttled schedule and drops every handle after repeated failures so the
// next getter rebuilds from scratch.
//
// The pool is an explicit dependency-injected struct; construct one per
// process (or per test) and share it by reference.
type ClientPool struct {
	config *PoolConfig
	logger *slog.Logger

	mu                   sync.RWMutex
	store                VectorSearcher
	embedder             Embedder
	rewriter             QueryRewriter
	reranker             Reranker
	baseRetriever        *Retriever
	multiQueryRetriever  *Retriever
	compressionRetriever map[bool]*CompressionRetriever
	compressor           *ResultCompressor

	errorCount      int
	lastHealthCheck time.Time
	lastHealthy     bool

	// Factories are swappable so tests can construct an isolated pool
	// around fakes.
	newStore    func() (VectorSearcher, error)
	newEmbedder func() (Embedder, error)
	newRewriter func() (QueryRewriter, error)
	newReranker func() (Reranker, error)
}

// NewClientPool creates a pool that builds real clients from cfg.
func NewClientPool(cfg *Config) *ClientPool {
	if cfg == nil {
		cfg = GetDefaultConfig()
	}

	pool := &ClientPool{
		config:               cfg.Pool,
		logger:               slog.Default().With("component", "client-pool"),
		compressionRetriever: make(map[bool]*CompressionRetriever),
		lastHealthy:          true,
	}
	if pool.config == nil {
		pool.config = getDefaultPoolConfig()
	}

	pool.newStore = func() (VectorSearcher, error) {
		return NewWeaviateStore(cfg.VectorStore)
	}
	pool.newEmbedder = func() (Embedder, error) {
		return NewOpenAIEmbedder(cfg.Embedding), nil
	}
	pool.newRewriter = func() (QueryRewriter, error) {
		return NewLLMRewriter(cfg.Rewriter), nil
	}
	var reranker Reranker
	if cfg.Reranker != nil && cfg.Reranker.Enabled {
		reranker = NewHTTPReranker(cfg.Reranker)
	}
	pool.reranker = reranker
	pool.newReranker = func() (Reranker, error) {
		return reranker, nil
	}
	pool.compressor = NewResultCompressor(cfg.Compressor, reranker)

	return pool
}

// NewClientPoolWithClients creates a pool around pre-built clients, used by
// tests and by callers that manage client construction themselves.
func NewClientPoolWithClients(cfg *PoolConfig, store func() (VectorSearcher, error), embedder func() (Embedder, error), rewriter func() (QueryRewriter, error), reranker func() (Reranker, error), compressor *ResultCompressor) *ClientPool {
	if cfg == nil {
		cfg = getDefaultPoolConfig()
	}
	if compressor == nil {
		compressor = NewResultCompressor(nil, nil)
	}
	return &ClientPool{
		config:               cfg,
		logger:               slog.Default().With("component", "client-pool"),
		compressionRetriever: make(map[bool]*CompressionRetriever),
		lastHealthy:          true,
		newStore:             store,
		newEmbedder:          embedder,
		newRewriter:          rewriter,
		newReranker:          reranker,
		compressor:           compressor,
	}
}

// VectorStore returns the shared vector store handle, constructing it on
// first use.
func (p *ClientPool) VectorStore(ctx context.Context) (VectorSearcher, error) {
	p.checkHealth(ctx)

	p.mu.RLock()
	store := p.store
	p.mu.RUnlock()
	if store != nil {
		return store, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.storeLocked()
}

// Embedder returns the shared embedding client handle.
func (p *ClientPool) Embedder() (Embedder, error) {
	p.mu.RLock()
	embedder := p.embedder
	p.mu.RUnlock()
	if embedder != nil {
		return embedder, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.embedderLocked()
}

// Rewriter returns the shared query-rewrite client handle.
func (p *ClientPool) Rewriter() (QueryRewriter, error) {
	p.mu.RLock()
	rewriter := p.rewriter
	p.mu.RUnlock()
	if rewriter != nil {
		return rewriter, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rewriterLocked()
}

// Reranker returns the shared rerank client handle, which may be nil when
// reranking is not configured.
func (p *ClientPool) Reranker() (Reranker, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.reranker != nil {
		return p.reranker, nil
	}
	reranker, err := p.newReranker()
	if err != nil {
		return nil, err
	}
	p.reranker = reranker
	return reranker, nil
}

// BaseRetriever returns the single-query retriever over the pool's store
// and embedder.
func (p *ClientPool) BaseRetriever(ctx context.Context) (*Retriever, error) {
	p.checkHealth(ctx)

	p.mu.RLock()
	cached := p.baseRetriever
	p.mu.RUnlock()
	if cached != nil {
		return cached, nil
	}

	// Handles are resolved under the same lock that caches the retriever
	// so a concurrent Reset cannot leave invalidated handles inside it.
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.baseRetriever != nil {
		return p.baseRetriever, nil
	}
	store, err := p.storeLocked()
	if err != nil {
		return nil, err
	}
	embedder, err := p.embedderLocked()
	if err != nil {
		return nil, err
	}
	p.baseRetriever = NewRetriever(store, embedder, nil, false, p.config, 0)
	return p.baseRetriever, nil
}

// CompressionRetriever returns a retriever whose output runs through the
// result compressor. With useMultiQuery the retriever also consults the
// query-rewrite LLM for extra variants.
func (p *ClientPool) CompressionRetriever(ctx context.Context, useMultiQuery bool) (*CompressionRetriever, error) {
	p.checkHealth(ctx)

	p.mu.RLock()
	cached := p.compressionRetriever[useMultiQuery]
	p.mu.RUnlock()
	if cached != nil {
		return cached, nil
	}

	// Same single-critical-section rule as BaseRetriever.
	p.mu.Lock()
	defer p.mu.Unlock()
	if cr := p.compressionRetriever[useMultiQuery]; cr != nil {
		return cr, nil
	}

	store, err := p.storeLocked()
	if err != nil {
		return nil, err
	}
	embedder, err := p.embedderLocked()
	if err != nil {
		return nil, err
	}
	var rewriter QueryRewriter
	if useMultiQuery {
		rewriter, err = p.rewriterLocked()
		if err != nil {
			return nil, err
		}
	}

	retriever := NewRetriever(store, embedder, rewriter, useMultiQuery, p.config, 0)
	if useMultiQuery {
		p.multiQueryRetriever = retriever
	}
	cr := NewCompressionRetriever(retriever, p.compressor)
	p.compressionRetriever[useMultiQuery] = cr
	return cr, nil
}

// Reset drops every cached handle. In-flight callers keep the handles they
// already hold; new getter calls rebuild from scratch.
func (p *ClientPool) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.resetLocked()
	p.logger.Info("Client pool reset, handles will be rebuilt on next use")
}

// Healthy reports the latest health verdict, probing if the throttle
// interval has elapsed.
func (p *ClientPool) Healthy(ctx context.Context) bool {
	return p.checkHealth(ctx)
}

// storeLocked returns the vector store handle, constructing it if needed.
// Caller holds p.mu.
func (p *ClientPool) storeLocked() (VectorSearcher, error) {
	if p.store != nil {
		return p.store, nil
	}
	store, err := p.newStore()
	if err != nil {
		return nil, err
	}
	p.store = store
	p.logger.Info("Vector store client constructed")
	return store, nil
}

// embedderLocked returns the embedding handle. Caller holds p.mu.
func (p *ClientPool) embedderLocked() (Embedder, error) {
	if p.embedder != nil {
		return p.embedder, nil
	}
	embedder, err := p.newEmbedder()
	if err != nil {
		return nil, err
	}
	p.embedder = embedder
	p.logger.Info("Embedding client constructed")
	return embedder, nil
}

// rewriterLocked returns the query-rewrite handle. Caller holds p.mu.
func (p *ClientPool) rewriterLocked() (QueryRewriter, error) {
	if p.rewriter != nil {
		return p.rewriter, nil
	}
	rewriter, err := p.newRewriter()
	if err != nil {
		return nil, err
	}
	p.rewriter = rewriter
	p.logger.Info("Query-rewrite client constructed")
	return rewriter, nil
}

// checkHealth probes the vector store at most once per configured
// interval; between probes it returns the last-known verdict. Reaching the
// error threshold resets the pool.
func (p *ClientPool) checkHealth(ctx context.Context) bool {
	p.mu.Lock()
	if time.Since(p.lastHealthCheck) < p.config.HealthCheckInterval {
		verdict := p.lastHealthy
		p.mu.Unlock()
		return verdict
	}
	p.lastHealthCheck = time.Now()
	store := p.store
	p.mu.Unlock()

	if store == nil {
		// Nothing constructed yet, nothing to probe.
		return true
	}

	probeCtx, cancel := context.WithTimeout(ctx, p.config.ProbeTimeout)
	defer cancel()
	err := store.Ready(probeCtx)

	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		p.errorCount = 0
		p.lastHealthy = true
		return true
	}

	p.errorCount++
	p.logger.Warn("Vector store health probe failed",
		"error", err,
		"consecutive_failures", p.errorCount,
		"threshold", p.config.ErrorThreshold,
	)
	if p.errorCount >= p.config.ErrorThreshold {
		p.lastHealthy = false
		p.resetLocked()
		p.logger.Info("Client pool reset after repeated health failures")
		return false
	}
	return p.lastHealthy
}

// resetLocked is Reset without the locking. Caller holds p.mu.
func (p *ClientPool) resetLocked() {
	p.store = nil
	p.embedder = nil
	p.rewriter = nil
	p.reranker = nil
	p.baseRetriever = nil
	p.multiQueryRetriever = nil
	p.compressionRetriever = make(map[bool]*CompressionRetriever)
	p.errorCount = 0
}
