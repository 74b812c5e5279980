package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Environment overrides. These win over file values so a deployment can
// retarget providers without editing the config file.
const (
	EnvConfigPath        = "NOTESEEK_CONFIG"
	EnvDBPath            = "NOTESEEK_DB_PATH"
	EnvEmbeddingProvider = "NOTESEEK_EMBEDDING_PROVIDER"
	EnvOllamaBaseURL     = "NOTESEEK_OLLAMA_URL"
	EnvLLMProvider       = "NOTESEEK_LLM_PROVIDER"
	EnvLLMModel          = "NOTESEEK_LLM_MODEL"
)

// Common errors
var (
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Config is the full engine configuration, loaded from TOML with
// environment overrides
type Config struct {
	Cache     CacheConfig     `toml:"cache"`
	Chunking  ChunkingConfig  `toml:"chunking"`
	Embedding EmbeddingConfig `toml:"embedding"`
	Search    SearchConfig    `toml:"search"`
	LLM       LLMConfig       `toml:"llm"`
}

// CacheConfig controls the durable embedding cache
type CacheConfig struct {
	Path          string `toml:"path"`
	Enabled       bool   `toml:"enabled"`
	QueryTTLHours int    `toml:"query_ttl_hours"`
}

// ChunkingConfig controls document chunking
type ChunkingConfig struct {
	MaxChunkLength int `toml:"max_chunk_length"`
	Overlap        int `toml:"overlap"`
}

// EmbeddingConfig controls the embedding provider
type EmbeddingConfig struct {
	Provider  string `toml:"provider"`
	Model     string `toml:"model"`
	BaseURL   string `toml:"base_url"`
	APIKeyEnv string `toml:"api_key_env"`
	PoolSize  int    `toml:"pool_size"`
	BatchSize int    `toml:"batch_size"`
}

// SearchConfig controls scoring thresholds and debouncing
type SearchConfig struct {
	LexicalThreshold float64 `toml:"lexical_threshold"`
	SemanticFloor    float64 `toml:"semantic_floor"`
	SemanticCap      int     `toml:"semantic_cap"`
	DebounceMs       int     `toml:"debounce_ms"`
}

// LLMConfig controls the answer generation provider
type LLMConfig struct {
	Provider    string  `toml:"provider"`
	Model       string  `toml:"model"`
	BaseURL     string  `toml:"base_url"`
	APIKeyEnv   string  `toml:"api_key_env"`
	Temperature float64 `toml:"temperature"`
	MaxTokens   int     `toml:"max_tokens"`
}

// Default returns the configuration used when no file is present
func Default() Config {
	return Config{
		Cache: CacheConfig{
			Path:          "noteseek.db",
			Enabled:       true,
			QueryTTLHours: 24,
		},
		Chunking: ChunkingConfig{
			MaxChunkLength: 512,
			Overlap:        128,
		},
		Embedding: EmbeddingConfig{
			Provider:  "ollama",
			APIKeyEnv: "OPENAI_API_KEY",
			PoolSize:  0,
			BatchSize: 8,
		},
		Search: SearchConfig{
			LexicalThreshold: 0.3,
			SemanticFloor:    0.5,
			SemanticCap:      10,
			DebounceMs:       300,
		},
		LLM: LLMConfig{
			Provider:    "ollama",
			APIKeyEnv:   "OPENAI_API_KEY",
			Temperature: 0.7,
			MaxTokens:   1024,
		},
	}
}

// Load reads configuration from a TOML file, falling back to defaults when
// the path is empty or the file does not exist, then applies environment
// overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("read config: %w", err)
			}
		} else if err := toml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvDBPath); v != "" {
		c.Cache.Path = v
	}
	if v := os.Getenv(EnvEmbeddingProvider); v != "" {
		c.Embedding.Provider = v
	}
	if v := os.Getenv(EnvOllamaBaseURL); v != "" {
		c.Embedding.BaseURL = v
		if c.LLM.BaseURL == "" {
			c.LLM.BaseURL = v
		}
	}
	if v := os.Getenv(EnvLLMProvider); v != "" {
		c.LLM.Provider = v
	}
	if v := os.Getenv(EnvLLMModel); v != "" {
		c.LLM.Model = v
	}
}

// Validate checks ranges the engine depends on
func (c *Config) Validate() error {
	if c.Chunking.MaxChunkLength <= 0 {
		return fmt.Errorf("%w: max_chunk_length must be positive", ErrInvalidConfig)
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.MaxChunkLength {
		return fmt.Errorf("%w: overlap must be in [0, max_chunk_length)", ErrInvalidConfig)
	}
	if c.Search.LexicalThreshold < 0 || c.Search.LexicalThreshold > 1 {
		return fmt.Errorf("%w: lexical_threshold must be in [0, 1]", ErrInvalidConfig)
	}
	if c.Search.SemanticFloor < 0 || c.Search.SemanticFloor > 1 {
		return fmt.Errorf("%w: semantic_floor must be in [0, 1]", ErrInvalidConfig)
	}
	if c.Cache.QueryTTLHours <= 0 {
		return fmt.Errorf("%w: query_ttl_hours must be positive", ErrInvalidConfig)
	}
	if c.Embedding.BatchSize <= 0 {
		return fmt.Errorf("%w: batch_size must be positive", ErrInvalidConfig)
	}
	return nil
}

// QueryTTL returns the query cache TTL as a duration
func (c *Config) QueryTTL() time.Duration {
	return time.Duration(c.Cache.QueryTTLHours) * time.Hour
}

// DebounceInterval returns the search debounce quiet period
func (c *Config) DebounceInterval() time.Duration {
	return time.Duration(c.Search.DebounceMs) * time.Millisecond
}

// EmbeddingAPIKey resolves the embedding provider credential from its
// configured environment variable
func (c *Config) EmbeddingAPIKey() string {
	if c.Embedding.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.Embedding.APIKeyEnv)
}

// LLMAPIKey resolves the generation provider credential from its configured
// environment variable
func (c *Config) LLMAPIKey() string {
	if c.LLM.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.LLM.APIKeyEnv)
}
