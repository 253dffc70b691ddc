package rag

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Retriever turns one or more query variants into a deduplicated document
// list: embed each variant, search the vector store, merge preserving
// first-seen order.
type Retriever struct {
	store          VectorSearcher
	embedder       Embedder
	rewriter       QueryRewriter
	useRewrite     bool
	maxConcurrency int
	maxVariants    int
	logger         *slog.Logger
}

// NewRetriever creates a base retriever. When useRewrite is set the
// query-rewrite LLM contributes additional variants; its failure only
// degrades recall, never the call.
func NewRetriever(store VectorSearcher, embedder Embedder, rewriter QueryRewriter, useRewrite bool, poolCfg *PoolConfig, maxVariants int) *Retriever {
	if poolCfg == nil {
		poolCfg = getDefaultPoolConfig()
	}
	if maxVariants <= 0 {
		maxVariants = 5
	}
	return &Retriever{
		store:          store,
		embedder:       embedder,
		rewriter:       rewriter,
		useRewrite:     useRewrite,
		maxConcurrency: poolCfg.MaxConcurrency,
		maxVariants:    maxVariants,
		logger:         slog.Default().With("component", "retriever"),
	}
}

// Retrieve runs every query variant and returns the merged, deduplicated
// document list. queries must contain the original query first.
func (r *Retriever) Retrieve(ctx context.Context, queries []string, params SearchParams) ([]RetrievedDocument, error) {
	if len(queries) == 0 {
		return nil, newValidationError("retriever.retrieve", "at least one query is required")
	}

	if r.useRewrite && r.rewriter != nil {
		queries = r.withRewrites(ctx, queries)
	}

	results := make([][]RetrievedDocument, len(queries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.maxConcurrency)

	var mu sync.Mutex
	for i, q := range queries {
		i, q := i, q
		g.Go(func() error {
			vector, err := r.embedder.Embed(gctx, q)
			if err != nil {
				return err
			}
			p := params
			p.Query = q
			p.Vector = vector
			docs, err := r.store.Search(gctx, p)
			if err != nil {
				return err
			}
			mu.Lock()
			results[i] = docs
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var merged []RetrievedDocument
	for _, docs := range results {
		merged = append(merged, docs...)
	}
	return DedupeDocuments(merged), nil
}

// withRewrites unions the LLM rewrites into the variant list, keeping the
// originals first and respecting the variant cap.
func (r *Retriever) withRewrites(ctx context.Context, queries []string) []string {
	rewrites, err := r.rewriter.Rewrite(ctx, queries[0])
	if err != nil {
		r.logger.Warn("Query rewrite failed, using lexical variants only", "error", err)
		return queries
	}
	combined := dedupeStrings(append(append([]string{}, queries...), rewrites...))
	if len(combined) > r.maxVariants {
		combined = combined[:r.maxVariants]
	}
	return combined
}

// CompressionRetriever is a Retriever whose output is passed through the
// result compressor before being returned.
type CompressionRetriever struct {
	retriever  *Retriever
	compressor *ResultCompressor
}

// NewCompressionRetriever wraps retriever with compressor.
func NewCompressionRetriever(retriever *Retriever, compressor *ResultCompressor) *CompressionRetriever {
	return &CompressionRetriever{retriever: retriever, compressor: compressor}
}

// Retrieve retrieves and compresses. originalQuery drives the heuristic
// reorder signals.
func (cr *CompressionRetriever) Retrieve(ctx context.Context, originalQuery string, queries []string, params SearchParams) ([]RetrievedDocument, error) {
	docs, err := cr.retriever.Retrieve(ctx, queries, params)
	if err != nil {
		return nil, err
	}
	return cr.compressor.Compress(ctx, docs, originalQuery), nil
}

// DedupeDocuments removes duplicates by source plus content prefix,
// preserving first-seen order.
func DedupeDocuments(docs []RetrievedDocument) []RetrievedDocument {
	seen := make(map[string]struct{}, len(docs))
	out := make([]RetrievedDocument, 0, len(docs))
	for _, d := range docs {
		key := documentIdentity(d)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, d)
	}
	return out
}

const identityPrefixLen = 64

// documentIdentity derives a stable identity for dedup. Document IDs from
// the vector store differ across expanded-query calls for the same passage
// only when ingestion duplicated it, so identity uses source plus a content
// prefix instead.
func documentIdentity(d RetrievedDocument) string {
	content := strings.ToLower(strings.TrimSpace(d.Content))
	if len(content) > identityPrefixLen {
		content = content[:identityPrefixLen]
	}
	return d.Source + "|" + content
}
