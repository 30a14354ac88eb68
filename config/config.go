// Package config provides configuration loading for legalrag.
// Precedence: defaults -> YAML file -> environment variables.
package config

import (
	"fmt"
	"time"
)

// Config is the complete legalrag configuration.
type Config struct {
	// Server holds the HTTP server settings.
	Server ServerConfig `yaml:"server"`

	// Milvus holds the vector index connection settings.
	Milvus MilvusConfig `yaml:"milvus"`

	// Embedding holds the embedding provider settings.
	Embedding EmbeddingConfig `yaml:"embedding"`

	// GenAI holds the generative model settings.
	GenAI GenAIConfig `yaml:"genai"`

	// Retrieval holds the retrieval pipeline settings.
	Retrieval RetrievalConfig `yaml:"retrieval"`

	// Cache holds the response cache settings.
	Cache CacheConfig `yaml:"cache"`

	// Log holds the logging settings.
	Log LogConfig `yaml:"log"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	HTTPPort     int           `yaml:"http_port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// MilvusConfig configures the Milvus/Zilliz vector index client.
type MilvusConfig struct {
	BaseURL    string        `yaml:"base_url"`
	Token      string        `yaml:"token"`
	Username   string        `yaml:"username"`
	Password   string        `yaml:"password"`
	Database   string        `yaml:"database"`
	Collection string        `yaml:"collection"`
	Timeout    time.Duration `yaml:"timeout"`
}

// EmbeddingConfig configures the Azure OpenAI embedding provider.
type EmbeddingConfig struct {
	Endpoint   string        `yaml:"endpoint"`
	APIKey     string        `yaml:"api_key"`
	Deployment string        `yaml:"deployment"`
	APIVersion string        `yaml:"api_version"`
	Dimensions int           `yaml:"dimensions"`
	Timeout    time.Duration `yaml:"timeout"`
}

// GenAIConfig configures the Gemini generation client.
type GenAIConfig struct {
	BaseURL          string        `yaml:"base_url"`
	APIKey           string        `yaml:"api_key"`
	Model            string        `yaml:"model"`
	Temperature      float32       `yaml:"temperature"`
	TopP             float32       `yaml:"top_p"`
	TopK             int           `yaml:"top_k"`
	MaxOutputTokens  int           `yaml:"max_output_tokens"`
	PromptTokenLimit int           `yaml:"prompt_token_limit"`
	Timeout          time.Duration `yaml:"timeout"`
}

// DiversityMode selects the reranking policy.
type DiversityMode string

const (
	// DiversityMMR applies source-capped maximal marginal relevance.
	DiversityMMR DiversityMode = "mmr"
	// DiversityFlat sorts by similarity and truncates. Degraded mode kept
	// for latency-sensitive deployments.
	DiversityFlat DiversityMode = "flat"
)

// RetrievalConfig configures the retrieval pipeline.
type RetrievalConfig struct {
	// K is the number of chunks retrieved per query.
	K int `yaml:"k"`
	// PromptChunks is the number of top chunks interpolated into the prompt.
	PromptChunks int `yaml:"prompt_chunks"`
	// OverfetchFactor multiplies K when querying the index.
	OverfetchFactor int `yaml:"overfetch_factor"`
	// OverfetchCap bounds the over-fetched candidate pool.
	OverfetchCap int `yaml:"overfetch_cap"`
	// Lambda balances relevance against source diversity in MMR scoring.
	Lambda float64 `yaml:"lambda"`
	// DiversityMode selects between "mmr" and "flat" reranking.
	DiversityMode DiversityMode `yaml:"diversity_mode"`
	// Enrich enables the per-chunk section-label lookup stage.
	Enrich bool `yaml:"enrich"`
	// NeighborWindow bounds the enrichment neighbor query to 2w+1 chunks.
	NeighborWindow int `yaml:"neighbor_window"`
}

// CacheConfig configures the response cache.
type CacheConfig struct {
	// Backend is "memory" or "redis".
	Backend string `yaml:"backend"`
	TTL     time.Duration `yaml:"ttl"`
	// MaxEntries bounds the in-memory table; past it the oldest
	// EvictBatch entries are dropped.
	MaxEntries int `yaml:"max_entries"`
	EvictBatch int `yaml:"evict_batch"`
	// RedisAddr is used when Backend is "redis".
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
}

// LogConfig configures logging output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:     8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 120 * time.Second,
		},
		Milvus: MilvusConfig{
			BaseURL:    "http://localhost:19530",
			Database:   "default",
			Collection: "legal_knowledge",
			Timeout:    30 * time.Second,
		},
		Embedding: EmbeddingConfig{
			Deployment: "text-embedding-3-large",
			APIVersion: "2024-02-01",
			Dimensions: 3072,
			Timeout:    30 * time.Second,
		},
		GenAI: GenAIConfig{
			BaseURL:          "https://generativelanguage.googleapis.com",
			Model:            "gemini-2.5-flash",
			Temperature:      0.2,
			TopP:             0.9,
			TopK:             40,
			MaxOutputTokens:  4000,
			PromptTokenLimit: 16000,
			Timeout:          120 * time.Second,
		},
		Retrieval: RetrievalConfig{
			K:               6,
			PromptChunks:    3,
			OverfetchFactor: 6,
			OverfetchCap:    50,
			Lambda:          0.5,
			DiversityMode:   DiversityMMR,
			Enrich:          false,
			NeighborWindow:  1,
		},
		Cache: CacheConfig{
			Backend:    "memory",
			TTL:        30 * time.Minute,
			MaxEntries: 100,
			EvictBatch: 20,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks invariants that would otherwise surface deep in the
// pipeline.
func (c *Config) Validate() error {
	if c.Milvus.Collection == "" {
		return fmt.Errorf("milvus.collection is required")
	}
	if c.Retrieval.K < 1 {
		return fmt.Errorf("retrieval.k must be >= 1, got %d", c.Retrieval.K)
	}
	if c.Retrieval.OverfetchFactor < 1 {
		return fmt.Errorf("retrieval.overfetch_factor must be >= 1, got %d", c.Retrieval.OverfetchFactor)
	}
	if c.Retrieval.Lambda < 0 || c.Retrieval.Lambda > 1 {
		return fmt.Errorf("retrieval.lambda must be in [0,1], got %f", c.Retrieval.Lambda)
	}
	switch c.Retrieval.DiversityMode {
	case DiversityMMR, DiversityFlat:
	default:
		return fmt.Errorf("retrieval.diversity_mode must be %q or %q, got %q",
			DiversityMMR, DiversityFlat, c.Retrieval.DiversityMode)
	}
	switch c.Cache.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("cache.backend must be \"memory\" or \"redis\", got %q", c.Cache.Backend)
	}
	return nil
}
