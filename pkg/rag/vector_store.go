package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/weaviate/weaviate-go-client/v4/weaviate"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/auth"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
)

// VectorSearcher is the narrow interface the rest of the subsystem uses to
// talk to the vector search service.
type VectorSearcher interface {
	Search(ctx context.Context, params SearchParams) ([]RetrievedDocument, error)
	Ready(ctx context.Context) error
}

// WeaviateStore is the Weaviate-backed vector search client for the support
// knowledge base.
type WeaviateStore struct {
	client *weaviate.Client
	config *VectorStoreConfig
	logger *slog.Logger
}

// NewWeaviateStore creates a new vector store client. Construction does not
// dial; the first probe or search does.
func NewWeaviateStore(config *VectorStoreConfig) (*WeaviateStore, error) {
	if config == nil {
		config = getDefaultVectorStoreConfig()
	}
	if config.Scheme == "" {
		config.Scheme = "http"
	}
	if config.ClassName == "" {
		config.ClassName = "SupportKnowledge"
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	var authConfig auth.Config
	if config.APIKey != "" {
		authConfig = auth.ApiKey{Value: config.APIKey}
	}

	client, err := weaviate.NewClient(weaviate.Config{
		Host:       config.Host,
		Scheme:     config.Scheme,
		AuthConfig: authConfig,
	})
	if err != nil {
		return nil, newConnectionError("vector_store.new", "failed to create weaviate client", err)
	}

	ws := &WeaviateStore{
		client: client,
		config: config,
		logger: slog.Default().With("component", "vector-store"),
	}

	if config.AutoSchema {
		if err := ws.EnsureSchema(context.Background()); err != nil {
			return nil, err
		}
	}

	return ws, nil
}

// EnsureSchema creates the knowledge base class if it does not exist yet.
func (ws *WeaviateStore) EnsureSchema(ctx context.Context) error {
	boolTrue := true

	class := &models.Class{
		Class:       ws.config.ClassName,
		Description: "Customer support knowledge base passages",
		Vectorizer:  "none",
		Properties: []*models.Property{
			{Name: "content", DataType: []string{"text"}, Description: "Passage text", IndexSearchable: &boolTrue},
			{Name: "source", DataType: []string{"text"}, Description: "Source document identifier", IndexFilterable: &boolTrue},
			{Name: "section", DataType: []string{"text"}, IndexFilterable: &boolTrue},
			{Name: "subsection", DataType: []string{"text"}, IndexFilterable: &boolTrue},
			{Name: "tags", DataType: []string{"text[]"}, IndexFilterable: &boolTrue},
			{Name: "price", DataType: []string{"text"}},
			{Name: "contact", DataType: []string{"text"}},
			{Name: "url", DataType: []string{"text"}},
			{Name: "isFaq", DataType: []string{"boolean"}, IndexFilterable: &boolTrue},
			{Name: "tenant", DataType: []string{"text"}, IndexFilterable: &boolTrue},
			{Name: "locale", DataType: []string{"text"}, IndexFilterable: &boolTrue},
			{Name: "updatedAt", DataType: []string{"date"}, IndexFilterable: &boolTrue},
		},
	}

	err := ws.client.Schema().ClassCreator().WithClass(class).Do(ctx)
	if err != nil {
		if strings.Contains(err.Error(), "already exists") {
			ws.logger.Debug("Knowledge class already exists", "class", ws.config.ClassName)
			return nil
		}
		return newConnectionError("vector_store.ensure_schema", "failed to create class", err)
	}

	ws.logger.Info("Created knowledge class", "class", ws.config.ClassName)
	return nil
}

// Search runs a near-vector query and returns the matching passages, most
// relevant first.
func (ws *WeaviateStore) Search(ctx context.Context, params SearchParams) ([]RetrievedDocument, error) {
	if len(params.Vector) == 0 {
		return nil, newValidationError("vector_store.search", "embedding vector is required")
	}
	if params.Limit <= 0 {
		params.Limit = 10
	}

	startTime := time.Now()

	nearVector := ws.client.GraphQL().NearVectorArgBuilder().
		WithVector(params.Vector)
	if params.Threshold > 0 {
		nearVector = nearVector.WithCertainty(params.Threshold)
	}

	builder := ws.client.GraphQL().Get().
		WithClassName(ws.config.ClassName).
		WithNearVector(nearVector).
		WithLimit(params.Limit).
		WithFields(
			graphql.Field{Name: "content"},
			graphql.Field{Name: "source"},
			graphql.Field{Name: "section"},
			graphql.Field{Name: "subsection"},
			graphql.Field{Name: "tags"},
			graphql.Field{Name: "price"},
			graphql.Field{Name: "contact"},
			graphql.Field{Name: "url"},
			graphql.Field{Name: "isFaq"},
			graphql.Field{Name: "updatedAt"},
			graphql.Field{Name: "_additional", Fields: []graphql.Field{
				{Name: "id"},
				{Name: "certainty"},
			}},
		)

	if where := ws.buildWhereFilter(params.Filters); where != nil {
		builder = builder.WithWhere(where)
	}

	result, err := builder.Do(ctx)
	if err != nil {
		ws.logger.Error("Vector search failed", "error", err, "query", params.Query)
		return nil, newUpstreamError("vector_store.search", "weaviate search failed", err)
	}
	if len(result.Errors) > 0 {
		return nil, newUpstreamError("vector_store.search",
			fmt.Sprintf("weaviate returned %d graphql errors", len(result.Errors)), nil)
	}

	docs := ws.parseResults(result.Data)

	ws.logger.Debug("Vector search completed",
		"query", params.Query,
		"results", len(docs),
		"took", time.Since(startTime),
	)

	return docs, nil
}

// Ready issues one lightweight readiness probe against the cluster.
func (ws *WeaviateStore) Ready(ctx context.Context) error {
	ready, err := ws.client.Misc().ReadyChecker().Do(ctx)
	if err != nil {
		return newConnectionError("vector_store.ready", "readiness probe failed", err)
	}
	if !ready {
		return newConnectionError("vector_store.ready", "cluster reports not ready", nil)
	}
	return nil
}

func (ws *WeaviateStore) buildWhereFilter(filterValues map[string]string) *filters.WhereBuilder {
	if len(filterValues) == 0 {
		return nil
	}

	var operands []*filters.WhereBuilder
	for _, field := range []string{"tenant", "locale", "source", "section"} {
		value, ok := filterValues[field]
		if !ok || value == "" {
			continue
		}
		operands = append(operands, filters.Where().
			WithPath([]string{field}).
			WithOperator(filters.Equal).
			WithValueText(value))
	}

	switch len(operands) {
	case 0:
		return nil
	case 1:
		return operands[0]
	default:
		return filters.Where().
			WithOperator(filters.And).
			WithOperands(operands)
	}
}

func (ws *WeaviateStore) parseResults(data map[string]models.JSONObject) []RetrievedDocument {
	docs := make([]RetrievedDocument, 0)

	get, ok := data["Get"].(map[string]interface{})
	if !ok {
		return docs
	}
	items, ok := get[ws.config.ClassName].([]interface{})
	if !ok {
		return docs
	}

	for _, item := range items {
		itemMap, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		docs = append(docs, ws.parseDocument(itemMap))
	}
	return docs
}

func (ws *WeaviateStore) parseDocument(item map[string]interface{}) RetrievedDocument {
	doc := RetrievedDocument{}

	if v, ok := item["content"].(string); ok {
		doc.Content = v
	}
	if v, ok := item["source"].(string); ok {
		doc.Source = v
	}
	if v, ok := item["section"].(string); ok {
		doc.Section = v
	}
	if v, ok := item["subsection"].(string); ok {
		doc.Subsection = v
	}
	if v, ok := item["price"].(string); ok {
		doc.Price = v
	}
	if v, ok := item["contact"].(string); ok {
		doc.Contact = v
	}
	if v, ok := item["url"].(string); ok {
		doc.URL = v
	}
	if v, ok := item["isFaq"].(bool); ok {
		doc.IsFAQ = v
	}
	if v, ok := item["tags"].([]interface{}); ok {
		doc.Tags = make([]string, 0, len(v))
		for _, t := range v {
			if s, ok := t.(string); ok {
				doc.Tags = append(doc.Tags, s)
			}
		}
	}
	if v, ok := item["updatedAt"].(string); ok {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			doc.UpdatedAt = t
		}
	}

	if additional, ok := item["_additional"].(map[string]interface{}); ok {
		if id, ok := additional["id"].(string); ok {
			doc.ID = id
		}
		if certainty, ok := additional["certainty"].(float64); ok {
			doc.Score = float32(certainty)
		}
	}

	return doc
}
