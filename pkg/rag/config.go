package rag

import (
	"os"
	"strconv"
	"time"
)

// Config aggregates the configuration of every retrieval component.
type Config struct {
	VectorStore *VectorStoreConfig `json:"vector_store"`
	Embedding   *EmbeddingConfig   `json:"embedding"`
	Rewriter    *RewriterConfig    `json:"rewriter"`
	Reranker    *RerankerConfig    `json:"reranker"`
	Cache       *CacheConfig       `json:"cache"`
	Pool        *PoolConfig        `json:"pool"`
	Expander    *ExpanderConfig    `json:"expander"`
	Compressor  *CompressorConfig  `json:"compressor"`
	Monitor     *MonitorConfig     `json:"monitor"`
	Service     *ServiceConfig     `json:"service"`
}

// VectorStoreConfig holds Weaviate connection and schema settings.
type VectorStoreConfig struct {
	Host       string        `json:"host"`
	Scheme     string        `json:"scheme"`
	APIKey     string        `json:"api_key"`
	ClassName  string        `json:"class_name"`
	Timeout    time.Duration `json:"timeout"`
	AutoSchema bool          `json:"auto_schema"`
}

// EmbeddingConfig holds the embedding client settings.
type EmbeddingConfig struct {
	APIKey     string `json:"api_key"`
	BaseURL    string `json:"base_url,omitempty"`
	ModelName  string `json:"model_name"`
	Dimensions int    `json:"dimensions"`
	MaxRetries int    `json:"max_retries"`
}

// RewriterConfig holds the query-rewrite LLM settings. The rewriter is only
// used by the multi-query retriever variant.
type RewriterConfig struct {
	APIKey      string  `json:"api_key"`
	BaseURL     string  `json:"base_url,omitempty"`
	ModelName   string  `json:"model_name"`
	MaxVariants int     `json:"max_variants"`
	Temperature float64 `json:"temperature"`
}

// RerankerConfig holds the optional reranking service settings.
type RerankerConfig struct {
	Endpoint string        `json:"endpoint"`
	APIKey   string        `json:"api_key"`
	Model    string        `json:"model"`
	Timeout  time.Duration `json:"timeout"`
	Enabled  bool          `json:"enabled"`
}

// CacheConfig holds the retrieval cache settings.
type CacheConfig struct {
	Address      string        `json:"address"`
	Password     string        `json:"password"`
	Database     int           `json:"database"`
	PoolSize     int           `json:"pool_size"`
	DialTimeout  time.Duration `json:"dial_timeout"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	KeyPrefix    string        `json:"key_prefix"`
	DefaultTTL   time.Duration `json:"default_ttl"`
}

// PoolConfig holds client pool lifecycle settings.
type PoolConfig struct {
	HealthCheckInterval time.Duration `json:"health_check_interval"`
	ErrorThreshold      int           `json:"error_threshold"`
	ProbeTimeout        time.Duration `json:"probe_timeout"`
	MaxConcurrency      int           `json:"max_concurrency"`
}

// ExpanderConfig holds multi-query expansion settings.
type ExpanderConfig struct {
	MaxExpandedQueries int                 `json:"max_expanded_queries"`
	Synonyms           map[string][]string `json:"synonyms"`
	NumericPatterns    []NumericPattern    `json:"numeric_patterns"`
}

// NumericPattern rewrites a numeric expression into a verbal form, e.g.
// "500/500" into "500 Mbps simétrico".
type NumericPattern struct {
	Pattern  string `json:"pattern"`
	Template string `json:"template"`
}

// ReorderWeights is the table the heuristic reorder scores documents with.
type ReorderWeights struct {
	FAQ     float64 `json:"faq"`
	Price   float64 `json:"price"`
	Contact float64 `json:"contact"`
	URL     float64 `json:"url"`
}

// CompressorConfig holds result compression settings.
type CompressorConfig struct {
	SimilarityThreshold float32        `json:"similarity_threshold"`
	ReorderWindow       int            `json:"reorder_window"`
	MaxFinalChunks      int            `json:"max_final_chunks"`
	Weights             ReorderWeights `json:"weights"`
	PriceTerms          []string       `json:"price_terms"`
	ContactTerms        []string       `json:"contact_terms"`
}

// MonitorConfig holds performance monitor settings.
type MonitorConfig struct {
	BufferSize           int           `json:"buffer_size"`
	DefaultWindow        time.Duration `json:"default_window"`
	DegradedErrorRate    float64       `json:"degraded_error_rate"`
	UnhealthyErrorRate   float64       `json:"unhealthy_error_rate"`
	DegradedAvgLatency   time.Duration `json:"degraded_avg_latency"`
	UnhealthyAvgLatency  time.Duration `json:"unhealthy_avg_latency"`
	EnablePrometheus     bool          `json:"enable_prometheus"`
	PrometheusNamespace  string        `json:"prometheus_namespace"`
}

// ServiceConfig holds orchestrator settings.
type ServiceConfig struct {
	DefaultTopK          int           `json:"default_top_k"`
	ComprehensiveTimeout time.Duration `json:"comprehensive_timeout"`
	FallbackTimeout      time.Duration `json:"fallback_timeout"`
	BreakerThreshold     uint32        `json:"breaker_threshold"`
	BreakerCooldown      time.Duration `json:"breaker_cooldown"`
}

func getDefaultVectorStoreConfig() *VectorStoreConfig {
	return &VectorStoreConfig{
		Host:       "localhost:8080",
		Scheme:     "http",
		ClassName:  "SupportKnowledge",
		Timeout:    30 * time.Second,
		AutoSchema: false,
	}
}

func getDefaultEmbeddingConfig() *EmbeddingConfig {
	return &EmbeddingConfig{
		ModelName:  "text-embedding-3-small",
		Dimensions: 1536,
		MaxRetries: 2,
	}
}

func getDefaultRewriterConfig() *RewriterConfig {
	return &RewriterConfig{
		ModelName:   "gpt-4o-mini",
		MaxVariants: 3,
		Temperature: 0.2,
	}
}

func getDefaultRerankerConfig() *RerankerConfig {
	return &RerankerConfig{
		Timeout: 5 * time.Second,
		Enabled: false,
	}
}

func getDefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		Address:      "localhost:6379",
		Database:     0,
		PoolSize:     10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		KeyPrefix:    "retrieval",
		DefaultTTL:   300 * time.Second,
	}
}

func getDefaultPoolConfig() *PoolConfig {
	return &PoolConfig{
		HealthCheckInterval: 60 * time.Second,
		ErrorThreshold:      3,
		ProbeTimeout:        5 * time.Second,
		MaxConcurrency:      4,
	}
}

func getDefaultExpanderConfig() *ExpanderConfig {
	return &ExpanderConfig{
		MaxExpandedQueries: 5,
		Synonyms: map[string][]string{
			"precio":    {"costo", "tarifa"},
			"plan":      {"paquete"},
			"internet":  {"fibra", "wifi"},
			"velocidad": {"mbps"},
			"factura":   {"recibo"},
			"soporte":   {"asistencia", "ayuda"},
			"router":    {"modem"},
			"contratar": {"adquirir"},
		},
		NumericPatterns: []NumericPattern{
			{Pattern: `\b(\d+)/(\d+)\b`, Template: "$1 Mbps simétrico"},
			{Pattern: `(?i)\b(\d+)\s*mbps\b`, Template: "$1 Mbps simétrico"},
			{Pattern: `(?i)\b(\d+)\s*megas\b`, Template: "$1 Mbps"},
		},
	}
}

func getDefaultCompressorConfig() *CompressorConfig {
	return &CompressorConfig{
		SimilarityThreshold: 0.0,
		ReorderWindow:       8,
		MaxFinalChunks:      6,
		Weights: ReorderWeights{
			FAQ:     0.3,
			Price:   0.2,
			Contact: 0.2,
			URL:     0.1,
		},
		PriceTerms: []string{
			"precio", "costo", "tarifa", "cuanto", "cuánto", "pagar", "price", "cost",
		},
		ContactTerms: []string{
			"contacto", "teléfono", "telefono", "llamar", "correo", "email", "whatsapp", "contact",
		},
	}
}

func getDefaultMonitorConfig() *MonitorConfig {
	return &MonitorConfig{
		BufferSize:          1000,
		DefaultWindow:       5 * time.Minute,
		DegradedErrorRate:   0.2,
		UnhealthyErrorRate:  0.5,
		DegradedAvgLatency:  5 * time.Second,
		UnhealthyAvgLatency: 10 * time.Second,
		EnablePrometheus:    true,
		PrometheusNamespace: "retrieval",
	}
}

func getDefaultServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		DefaultTopK:          6,
		ComprehensiveTimeout: 15 * time.Second,
		FallbackTimeout:      10 * time.Second,
		BreakerThreshold:     5,
		BreakerCooldown:      30 * time.Second,
	}
}

// GetDefaultConfig returns the full default configuration.
func GetDefaultConfig() *Config {
	return &Config{
		VectorStore: getDefaultVectorStoreConfig(),
		Embedding:   getDefaultEmbeddingConfig(),
		Rewriter:    getDefaultRewriterConfig(),
		Reranker:    getDefaultRerankerConfig(),
		Cache:       getDefaultCacheConfig(),
		Pool:        getDefaultPoolConfig(),
		Expander:    getDefaultExpanderConfig(),
		Compressor:  getDefaultCompressorConfig(),
		Monitor:     getDefaultMonitorConfig(),
		Service:     getDefaultServiceConfig(),
	}
}

// LoadConfigFromEnv returns the default configuration with environment
// overrides applied.
func LoadConfigFromEnv() *Config {
	cfg := GetDefaultConfig()

	cfg.VectorStore.Host = getEnv("RAG_WEAVIATE_HOST", cfg.VectorStore.Host)
	cfg.VectorStore.Scheme = getEnv("RAG_WEAVIATE_SCHEME", cfg.VectorStore.Scheme)
	cfg.VectorStore.APIKey = getEnv("RAG_WEAVIATE_API_KEY", cfg.VectorStore.APIKey)
	cfg.VectorStore.ClassName = getEnv("RAG_WEAVIATE_CLASS", cfg.VectorStore.ClassName)

	cfg.Embedding.APIKey = getEnv("OPENAI_API_KEY", cfg.Embedding.APIKey)
	cfg.Embedding.BaseURL = getEnv("OPENAI_BASE_URL", cfg.Embedding.BaseURL)
	cfg.Embedding.ModelName = getEnv("RAG_EMBEDDING_MODEL", cfg.Embedding.ModelName)
	cfg.Embedding.Dimensions = getEnvInt("RAG_EMBEDDING_DIMENSIONS", cfg.Embedding.Dimensions)

	cfg.Rewriter.APIKey = getEnv("OPENAI_API_KEY", cfg.Rewriter.APIKey)
	cfg.Rewriter.BaseURL = getEnv("OPENAI_BASE_URL", cfg.Rewriter.BaseURL)
	cfg.Rewriter.ModelName = getEnv("RAG_REWRITER_MODEL", cfg.Rewriter.ModelName)

	cfg.Reranker.Endpoint = getEnv("RAG_RERANKER_ENDPOINT", cfg.Reranker.Endpoint)
	cfg.Reranker.APIKey = getEnv("RAG_RERANKER_API_KEY", cfg.Reranker.APIKey)
	cfg.Reranker.Enabled = cfg.Reranker.Endpoint != ""

	cfg.Cache.Address = getEnv("RAG_REDIS_ADDR", cfg.Cache.Address)
	cfg.Cache.Password = getEnv("RAG_REDIS_PASSWORD", cfg.Cache.Password)
	cfg.Cache.Database = getEnvInt("RAG_REDIS_DB", cfg.Cache.Database)
	cfg.Cache.KeyPrefix = getEnv("RAG_CACHE_PREFIX", cfg.Cache.KeyPrefix)

	cfg.Service.ComprehensiveTimeout = getEnvDuration("RAG_RETRIEVAL_TIMEOUT", cfg.Service.ComprehensiveTimeout)
	cfg.Pool.HealthCheckInterval = getEnvDuration("RAG_HEALTH_CHECK_INTERVAL", cfg.Pool.HealthCheckInterval)

	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
