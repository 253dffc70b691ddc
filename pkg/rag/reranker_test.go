package rag

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRerankReordersByServiceScore(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")

		var req rerankRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "precio del plan", req.Query)
		assert.Len(t, req.Documents, 3)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"results": []map[string]interface{}{
				{"index": 2, "relevance_score": 0.95},
				{"index": 0, "relevance_score": 0.40},
				{"index": 1, "relevance_score": 0.10},
			},
		})
	}))
	defer server.Close()

	reranker := NewHTTPReranker(&RerankerConfig{
		Endpoint: server.URL,
		APIKey:   "secret",
		Model:    "bge-reranker",
		Timeout:  time.Second,
	})

	docs := []RetrievedDocument{
		{ID: "a", Content: "horario"},
		{ID: "b", Content: "cobertura"},
		{ID: "c", Content: "precios"},
	}
	out, err := reranker.Rerank(context.Background(), "precio del plan", docs, 2)

	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "c", out[0].ID)
	assert.InDelta(t, 0.95, float64(out[0].Score), 1e-6)
	assert.Equal(t, "a", out[1].ID)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "a", docs[0].ID, "input slice untouched")
}

func TestRerankServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	reranker := NewHTTPReranker(&RerankerConfig{Endpoint: server.URL, Timeout: time.Second})

	_, err := reranker.Rerank(context.Background(), "q", []RetrievedDocument{{ID: "a"}}, 1)

	require.Error(t, err)
	assert.Equal(t, ErrTypeUpstream, ErrorTypeOf(err))
}

func TestRerankEmptyInput(t *testing.T) {
	reranker := NewHTTPReranker(&RerankerConfig{Endpoint: "http://127.0.0.1:1", Timeout: time.Second})

	out, err := reranker.Rerank(context.Background(), "q", nil, 5)

	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestRerankIgnoresOutOfRangeIndexes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"results": []map[string]interface{}{
				{"index": 7, "relevance_score": 0.9},
				{"index": 0, "relevance_score": 0.5},
			},
		})
	}))
	defer server.Close()

	reranker := NewHTTPReranker(&RerankerConfig{Endpoint: server.URL, Timeout: time.Second})

	out, err := reranker.Rerank(context.Background(), "q", []RetrievedDocument{{ID: "a"}}, 5)

	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "a", out[0].ID)
}
