package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for environment variable overrides.
const EnvPrefix = "LEGALRAG"

// Load builds the configuration: defaults, then the YAML file at path (if
// non-empty), then environment overrides. The result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// applyEnv overrides config fields from LEGALRAG_* environment variables.
// Secrets are expected to arrive this way rather than in the YAML file.
func applyEnv(cfg *Config) {
	setString(&cfg.Milvus.BaseURL, "MILVUS_URI")
	setString(&cfg.Milvus.Token, "MILVUS_TOKEN")
	setString(&cfg.Milvus.Collection, "MILVUS_COLLECTION")
	setString(&cfg.Milvus.Database, "MILVUS_DATABASE")

	setString(&cfg.Embedding.Endpoint, "AZURE_OPENAI_ENDPOINT")
	setString(&cfg.Embedding.APIKey, "AZURE_OPENAI_API_KEY")
	setString(&cfg.Embedding.Deployment, "AZURE_OPENAI_DEPLOYMENT")
	setString(&cfg.Embedding.APIVersion, "AZURE_OPENAI_API_VERSION")

	setString(&cfg.GenAI.BaseURL, "GENAI_BASE_URL")
	setString(&cfg.GenAI.APIKey, "GENAI_API_KEY")
	setString(&cfg.GenAI.Model, "GENAI_MODEL")
	setInt(&cfg.GenAI.PromptTokenLimit, "GENAI_PROMPT_TOKEN_LIMIT")

	setInt(&cfg.Server.HTTPPort, "HTTP_PORT")

	setInt(&cfg.Retrieval.K, "RETRIEVAL_K")
	setString((*string)(&cfg.Retrieval.DiversityMode), "RETRIEVAL_DIVERSITY_MODE")
	setBool(&cfg.Retrieval.Enrich, "RETRIEVAL_ENRICH")

	setString(&cfg.Cache.Backend, "CACHE_BACKEND")
	setDuration(&cfg.Cache.TTL, "CACHE_TTL")
	setString(&cfg.Cache.RedisAddr, "REDIS_ADDR")
	setString(&cfg.Cache.RedisPassword, "REDIS_PASSWORD")

	setString(&cfg.Log.Level, "LOG_LEVEL")
	setString(&cfg.Log.Format, "LOG_FORMAT")
}

func envValue(key string) (string, bool) {
	return os.LookupEnv(EnvPrefix + "_" + key)
}

func setString(dst *string, key string) {
	if v, ok := envValue(key); ok {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := envValue(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v, ok := envValue(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v, ok := envValue(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
