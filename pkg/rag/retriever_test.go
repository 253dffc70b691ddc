package rag

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is a scripted VectorSearcher shared by the retriever, pool and
// service tests.
type fakeStore struct {
	mu      sync.Mutex
	queries []string

	searchFn func(params SearchParams) ([]RetrievedDocument, error)
	delay    time.Duration
	readyErr error
	calls    int32
}

func (f *fakeStore) Search(ctx context.Context, params SearchParams) ([]RetrievedDocument, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	f.queries = append(f.queries, params.Query)
	f.mu.Unlock()
	if f.searchFn != nil {
		return f.searchFn(params)
	}
	return nil, nil
}

func (f *fakeStore) Ready(ctx context.Context) error { return f.readyErr }

func (f *fakeStore) searchCalls() int { return int(atomic.LoadInt32(&f.calls)) }

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

type fakeRewriter struct {
	rewrites []string
	err      error
}

func (f *fakeRewriter) Rewrite(ctx context.Context, query string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.rewrites, nil
}

func TestRetrieveMergesAndDedupes(t *testing.T) {
	store := &fakeStore{
		searchFn: func(params SearchParams) ([]RetrievedDocument, error) {
			switch params.Query {
			case "precio del plan":
				return []RetrievedDocument{
					{ID: "1", Source: "kb", Content: "Plan 500 Mbps simétrico por ₡25.000", Score: 0.9},
					{ID: "2", Source: "kb", Content: "Cobertura de fibra óptica", Score: 0.8},
				}, nil
			default:
				return []RetrievedDocument{
					// Same passage under a different store ID.
					{ID: "9", Source: "kb", Content: "Plan 500 Mbps simétrico por ₡25.000", Score: 0.85},
					{ID: "3", Source: "faq", Content: "Horario de soporte técnico", Score: 0.7},
				}, nil
			}
		},
	}
	retriever := NewRetriever(store, &fakeEmbedder{}, nil, false, nil, 0)

	docs, err := retriever.Retrieve(context.Background(), []string{"precio del plan", "costo del plan"}, SearchParams{Limit: 6})

	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "1", docs[0].ID, "first variant's documents come first")
	assert.Equal(t, "2", docs[1].ID)
	assert.Equal(t, "3", docs[2].ID, "duplicate passage removed")
}

func TestRetrieveNoQueries(t *testing.T) {
	retriever := NewRetriever(&fakeStore{}, &fakeEmbedder{}, nil, false, nil, 0)

	_, err := retriever.Retrieve(context.Background(), nil, SearchParams{})

	require.Error(t, err)
	assert.Equal(t, ErrTypeValidation, ErrorTypeOf(err))
}

func TestRetrieveEmbedErrorPropagates(t *testing.T) {
	retriever := NewRetriever(&fakeStore{}, &fakeEmbedder{err: errors.New("embeddings down")}, nil, false, nil, 0)

	_, err := retriever.Retrieve(context.Background(), []string{"hola"}, SearchParams{})

	assert.Error(t, err)
}

func TestRetrieveRewriterFailureDegrades(t *testing.T) {
	store := &fakeStore{
		searchFn: func(params SearchParams) ([]RetrievedDocument, error) {
			return []RetrievedDocument{{ID: "1", Source: "kb", Content: "algo", Score: 0.9}}, nil
		},
	}
	rewriter := &fakeRewriter{err: errors.New("llm down")}
	retriever := NewRetriever(store, &fakeEmbedder{}, rewriter, true, nil, 0)

	docs, err := retriever.Retrieve(context.Background(), []string{"consulta original"}, SearchParams{})

	require.NoError(t, err)
	assert.Len(t, docs, 1)
	assert.Equal(t, 1, store.searchCalls(), "only the lexical variant runs when the rewriter fails")
}

func TestRetrieveRewriterAddsVariants(t *testing.T) {
	store := &fakeStore{}
	rewriter := &fakeRewriter{rewrites: []string{"variante uno", "variante dos"}}
	retriever := NewRetriever(store, &fakeEmbedder{}, rewriter, true, nil, 0)

	_, err := retriever.Retrieve(context.Background(), []string{"consulta original"}, SearchParams{})

	require.NoError(t, err)
	assert.Equal(t, 3, store.searchCalls())
}

func TestDedupeDocumentsKeepsFirstSeen(t *testing.T) {
	docs := []RetrievedDocument{
		{ID: "a", Source: "kb", Content: "Mismo contenido", Score: 0.9},
		{ID: "b", Source: "kb", Content: "mismo contenido", Score: 0.5},
		{ID: "c", Source: "faq", Content: "Mismo contenido", Score: 0.4},
	}

	out := DedupeDocuments(docs)

	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].ID, "case-insensitive duplicate dropped, first kept")
	assert.Equal(t, "c", out[1].ID, "different source is a different document")
}
