package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

// Reranker reorders retrieved passages by relevance to the query. Failure
// is non-fatal everywhere it is consumed.
type Reranker interface {
	Rerank(ctx context.Context, query string, docs []RetrievedDocument, topN int) ([]RetrievedDocument, error)
}

// HTTPReranker talks to a TEI/Infinity-compatible rerank endpoint.
type HTTPReranker struct {
	config     *RerankerConfig
	httpClient *http.Client
	logger     *slog.Logger
}

type rerankRequest struct {
	Model     string   `json:"model,omitempty"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n,omitempty"`
}

type rerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

// NewHTTPReranker creates a new rerank client.
func NewHTTPReranker(config *RerankerConfig) *HTTPReranker {
	if config == nil {
		config = getDefaultRerankerConfig()
	}
	return &HTTPReranker{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     slog.Default().With("component", "reranker"),
	}
}

// Rerank sends the documents to the rerank service and returns them in the
// service's order, top-N first. The input slice is not modified.
func (r *HTTPReranker) Rerank(ctx context.Context, query string, docs []RetrievedDocument, topN int) ([]RetrievedDocument, error) {
	if len(docs) == 0 {
		return docs, nil
	}

	contents := make([]string, len(docs))
	for i, d := range docs {
		contents[i] = d.Content
	}

	body, err := json.Marshal(rerankRequest{
		Model:     r.config.Model,
		Query:     query,
		Documents: contents,
		TopN:      topN,
	})
	if err != nil {
		return nil, newUpstreamError("reranker.rerank", "failed to marshal request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, newUpstreamError("reranker.rerank", "failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.config.APIKey)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, newUpstreamError("reranker.rerank", "rerank request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, newUpstreamError("reranker.rerank",
			fmt.Sprintf("rerank service returned status %d", resp.StatusCode), nil)
	}

	var parsed rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, newUpstreamError("reranker.rerank", "failed to decode response", err)
	}

	reordered := make([]RetrievedDocument, 0, len(parsed.Results))
	for _, res := range parsed.Results {
		if res.Index < 0 || res.Index >= len(docs) {
			continue
		}
		doc := docs[res.Index]
		doc.Score = float32(res.RelevanceScore)
		reordered = append(reordered, doc)
	}
	if topN > 0 && len(reordered) > topN {
		reordered = reordered[:topN]
	}

	r.logger.Debug("Rerank completed", "input", len(docs), "output", len(reordered))
	return reordered, nil
}
