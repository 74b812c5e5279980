package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "noteseek.db", cfg.Cache.Path)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, 512, cfg.Chunking.MaxChunkLength)
	assert.Equal(t, 128, cfg.Chunking.Overlap)
	assert.Equal(t, 8, cfg.Embedding.BatchSize)
	assert.Equal(t, 0.3, cfg.Search.LexicalThreshold)
	assert.Equal(t, 0.5, cfg.Search.SemanticFloor)
	assert.Equal(t, 24*time.Hour, cfg.QueryTTL())
	assert.Equal(t, 300*time.Millisecond, cfg.DebounceInterval())
}

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "noteseek.toml")
	content := `
[cache]
path = "custom.db"
enabled = true
query_ttl_hours = 48

[chunking]
max_chunk_length = 256
overlap = 64

[embedding]
provider = "local"
batch_size = 4

[search]
lexical_threshold = 0.4
debounce_ms = 100

[llm]
provider = "openai"
model = "gpt-4o"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "custom.db", cfg.Cache.Path)
	assert.Equal(t, 48*time.Hour, cfg.QueryTTL())
	assert.Equal(t, 256, cfg.Chunking.MaxChunkLength)
	assert.Equal(t, "local", cfg.Embedding.Provider)
	assert.Equal(t, 4, cfg.Embedding.BatchSize)
	assert.Equal(t, 0.4, cfg.Search.LexicalThreshold)
	assert.Equal(t, 100*time.Millisecond, cfg.DebounceInterval())
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)

	// Unspecified values keep their defaults.
	assert.Equal(t, 0.5, cfg.Search.SemanticFloor)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	require.NoError(t, err)
	assert.Equal(t, "noteseek.db", cfg.Cache.Path)
}

func TestLoad_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.toml")
	require.NoError(t, os.WriteFile(path, []byte("[cache\npath ="), 0o644))

	_, err := Load(path)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv(EnvDBPath, "/tmp/override.db")
	t.Setenv(EnvEmbeddingProvider, "local")
	t.Setenv(EnvLLMProvider, "openai")
	t.Setenv(EnvLLMModel, "gpt-4o-mini")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/override.db", cfg.Cache.Path)
	assert.Equal(t, "local", cfg.Embedding.Provider)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults valid", func(c *Config) {}, false},
		{"zero chunk length", func(c *Config) { c.Chunking.MaxChunkLength = 0 }, true},
		{"overlap exceeds chunk", func(c *Config) { c.Chunking.Overlap = 512 }, true},
		{"negative threshold", func(c *Config) { c.Search.LexicalThreshold = -0.1 }, true},
		{"floor above one", func(c *Config) { c.Search.SemanticFloor = 1.5 }, true},
		{"zero ttl", func(c *Config) { c.Cache.QueryTTLHours = 0 }, true},
		{"zero batch", func(c *Config) { c.Embedding.BatchSize = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAPIKeyResolution(t *testing.T) {
	t.Setenv("TEST_NOTESEEK_KEY", "sk-test")

	cfg := Default()
	cfg.LLM.APIKeyEnv = "TEST_NOTESEEK_KEY"
	assert.Equal(t, "sk-test", cfg.LLMAPIKey())

	cfg.LLM.APIKeyEnv = ""
	assert.Empty(t, cfg.LLMAPIKey())
}
