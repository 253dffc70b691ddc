package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// QueryRewriter produces semantically-equivalent rewrites of a query. It is
// consumed only by the multi-query retriever variant; the lexical expander
// does not depend on it.
type QueryRewriter interface {
	Rewrite(ctx context.Context, query string) ([]string, error)
}

const rewritePrompt = "Eres un asistente que reformula preguntas de clientes de un proveedor de internet. " +
	"Devuelve únicamente un arreglo JSON de strings con reformulaciones de la pregunta, " +
	"sin explicaciones. Máximo %d reformulaciones."

// LLMRewriter implements QueryRewriter over a chat completion model.
type LLMRewriter struct {
	client openai.Client
	config *RewriterConfig
	logger *slog.Logger
}

// NewLLMRewriter creates a new query-rewrite client.
func NewLLMRewriter(config *RewriterConfig) *LLMRewriter {
	if config == nil {
		config = getDefaultRewriterConfig()
	}

	opts := []option.RequestOption{}
	if config.APIKey != "" {
		opts = append(opts, option.WithAPIKey(config.APIKey))
	}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	return &LLMRewriter{
		client: openai.NewClient(opts...),
		config: config,
		logger: slog.Default().With("component", "query-rewriter"),
	}
}

// Rewrite asks the model for up to MaxVariants rewrites of query. Failure
// degrades the caller to the lexical variants only, so errors here carry
// the upstream type but are expected to be absorbed.
func (r *LLMRewriter) Rewrite(ctx context.Context, query string) ([]string, error) {
	if query == "" {
		return nil, newValidationError("rewriter.rewrite", "query cannot be empty")
	}

	system := fmt.Sprintf(rewritePrompt, r.config.MaxVariants)

	response, err := r.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(r.config.ModelName),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(query),
		},
		Temperature: openai.Float(r.config.Temperature),
	})
	if err != nil {
		return nil, newUpstreamError("rewriter.rewrite", "chat completion failed", err)
	}
	if len(response.Choices) == 0 {
		return nil, newUpstreamError("rewriter.rewrite", "empty completion response", nil)
	}

	variants, err := parseRewrites(response.Choices[0].Message.Content)
	if err != nil {
		r.logger.Warn("Failed to parse rewrite output", "error", err)
		return nil, newUpstreamError("rewriter.rewrite", "unparseable rewrite output", err)
	}

	if len(variants) > r.config.MaxVariants {
		variants = variants[:r.config.MaxVariants]
	}

	r.logger.Debug("Query rewritten", "query", query, "variants", len(variants))
	return variants, nil
}

// parseRewrites extracts the JSON string array from the model output,
// tolerating surrounding prose or code fences.
func parseRewrites(content string) ([]string, error) {
	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON array in output")
	}

	var variants []string
	if err := json.Unmarshal([]byte(content[start:end+1]), &variants); err != nil {
		return nil, err
	}

	cleaned := make([]string, 0, len(variants))
	for _, v := range variants {
		v = strings.TrimSpace(v)
		if v != "" {
			cleaned = append(cleaned, v)
		}
	}
	return cleaned, nil
}
