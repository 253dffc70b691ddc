package rag

import (
	"context"
	"log/slog"
	"sort"
	"strings"
)

// ResultCompressor filters retrieved passages by similarity, reorders them
// with cheap heuristic signals and truncates to the final count. Compress
// never fails: any internal error falls back to the input list.
type ResultCompressor struct {
	config   *CompressorConfig
	reranker Reranker
	logger   *slog.Logger
}

// NewResultCompressor creates a compressor. reranker may be nil, in which
// case the similarity filter relies on the scores the vector store already
// attached.
func NewResultCompressor(config *CompressorConfig, reranker Reranker) *ResultCompressor {
	if config == nil {
		config = getDefaultCompressorConfig()
	}
	return &ResultCompressor{
		config:   config,
		reranker: reranker,
		logger:   slog.Default().With("component", "result-compressor"),
	}
}

// Compress applies filter, reorder and truncate. The input slice is never
// mutated.
func (c *ResultCompressor) Compress(ctx context.Context, docs []RetrievedDocument, query string) []RetrievedDocument {
	if len(docs) == 0 {
		return docs
	}

	out := make([]RetrievedDocument, len(docs))
	copy(out, docs)

	out = c.filterBySimilarity(ctx, out, query)

	if len(out) > c.config.ReorderWindow {
		out = c.reorder(out, query)
	}

	if len(out) > c.config.MaxFinalChunks {
		out = out[:c.config.MaxFinalChunks]
	}
	return out
}

// filterBySimilarity drops documents below the configured threshold,
// delegating to the rerank service when one is wired. Errors degrade to
// the unfiltered set.
func (c *ResultCompressor) filterBySimilarity(ctx context.Context, docs []RetrievedDocument, query string) []RetrievedDocument {
	threshold := c.config.SimilarityThreshold
	if threshold <= 0 {
		return docs
	}

	if c.reranker != nil {
		reranked, err := c.reranker.Rerank(ctx, query, docs, len(docs))
		if err != nil {
			c.logger.Warn("Rerank failed, keeping unfiltered results", "error", err)
			return docs
		}
		docs = reranked
	}

	// An empty result here is a valid outcome: the caller reports it as
	// no-results rather than serving passages below the threshold.
	filtered := docs[:0:0]
	for _, d := range docs {
		if d.Score >= threshold {
			filtered = append(filtered, d)
		}
	}
	return filtered
}

// reorder sorts by the heuristic weight table, descending. The sort is
// stable so ties keep their relevance-ranked order.
func (c *ResultCompressor) reorder(docs []RetrievedDocument, query string) []RetrievedDocument {
	lower := strings.ToLower(query)
	wantsPrice := containsAny(lower, c.config.PriceTerms)
	wantsContact := containsAny(lower, c.config.ContactTerms)

	type scoredDoc struct {
		doc   RetrievedDocument
		score float64
	}
	scored := make([]scoredDoc, len(docs))
	for i, d := range docs {
		scored[i] = scoredDoc{doc: d, score: c.heuristicScore(d, wantsPrice, wantsContact)}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score > scored[j].score
	})

	out := make([]RetrievedDocument, len(scored))
	for i, s := range scored {
		out[i] = s.doc
	}
	return out
}

func (c *ResultCompressor) heuristicScore(doc RetrievedDocument, wantsPrice, wantsContact bool) float64 {
	score := 0.0
	if doc.IsFAQ {
		score += c.config.Weights.FAQ
	}
	if wantsPrice && doc.Price != "" {
		score += c.config.Weights.Price
	}
	if wantsContact && doc.Contact != "" {
		score += c.config.Weights.Contact
	}
	if doc.URL != "" {
		score += c.config.Weights.URL
	}
	return score
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}
