package rag

import (
	"context"
	"log/slog"
	"time"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Embedder generates a vector for a piece of text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// defaultRetryBackoff is the backoff schedule for embedding retries.
var defaultRetryBackoff = []time.Duration{
	100 * time.Millisecond,
	200 * time.Millisecond,
	400 * time.Millisecond,
}

// OpenAIEmbedder implements Embedder against the OpenAI embeddings API.
type OpenAIEmbedder struct {
	client  openai.Client
	config  *EmbeddingConfig
	logger  *slog.Logger
	backoff []time.Duration
}

// NewOpenAIEmbedder creates a new embedding client.
func NewOpenAIEmbedder(config *EmbeddingConfig) *OpenAIEmbedder {
	if config == nil {
		config = getDefaultEmbeddingConfig()
	}

	opts := []option.RequestOption{}
	if config.APIKey != "" {
		opts = append(opts, option.WithAPIKey(config.APIKey))
	}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	return &OpenAIEmbedder{
		client:  openai.NewClient(opts...),
		config:  config,
		logger:  slog.Default().With("component", "embedder"),
		backoff: defaultRetryBackoff,
	}
}

// Embed returns the embedding vector for text, retrying transient failures
// up to the configured maximum.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, newValidationError("embedder.embed", "text cannot be empty")
	}

	var lastErr error
	for attempt := 0; attempt <= e.config.MaxRetries; attempt++ {
		vector, err := e.embedOnce(ctx, text)
		if err == nil {
			return vector, nil
		}
		lastErr = err

		if attempt >= e.config.MaxRetries {
			break
		}

		backoff := e.backoffFor(attempt)
		e.logger.Debug("Embedding request failed, retrying",
			"attempt", attempt+1,
			"backoff", backoff,
			"error", err,
		)
		select {
		case <-ctx.Done():
			return nil, newTimeoutError("embedder.embed", "context done while retrying", ctx.Err())
		case <-time.After(backoff):
		}
	}

	return nil, newUpstreamError("embedder.embed", "embedding request failed", lastErr)
}

func (e *OpenAIEmbedder) embedOnce(ctx context.Context, text string) ([]float32, error) {
	request := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model: openai.EmbeddingModel(e.config.ModelName),
	}
	if e.config.Dimensions > 0 {
		request.Dimensions = openai.Int(int64(e.config.Dimensions))
	}

	response, err := e.client.Embeddings.New(ctx, request)
	if err != nil {
		return nil, err
	}
	if len(response.Data) == 0 || len(response.Data[0].Embedding) == 0 {
		e.logger.Warn("Received empty embedding response")
		return []float32{}, nil
	}

	embedding := response.Data[0].Embedding
	vector := make([]float32, len(embedding))
	for i, v := range embedding {
		vector[i] = float32(v)
	}
	return vector, nil
}

func (e *OpenAIEmbedder) backoffFor(attempt int) time.Duration {
	if attempt < len(e.backoff) {
		return e.backoff[attempt]
	}
	return e.backoff[len(e.backoff)-1]
}
