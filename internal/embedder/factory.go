package embedder

import (
	"fmt"
	"os"
	"strings"
)

// Environment variables for provider selection
const (
	EnvProvider      = "NOTESEEK_EMBEDDING_PROVIDER"
	EnvOllamaBaseURL = "NOTESEEK_OLLAMA_URL"
)

// Config holds embedder configuration
type Config struct {
	Provider string
	Model    string
	BaseURL  string // Ollama daemon or OpenAI-compatible endpoint
	APIKey   string
	MemoSize int
}

// New creates an embedder with explicit configuration
func New(cfg Config) (Embedder, error) {
	var memo *MemoCache
	if cfg.MemoSize > 0 {
		memo = NewMemoCache(cfg.MemoSize)
	}

	provider := strings.ToLower(cfg.Provider)
	switch provider {
	case ProviderOllama:
		return NewOllamaProvider(cfg.BaseURL, cfg.Model, memo), nil
	case ProviderOpenAI:
		return NewOpenAIProvider(cfg.BaseURL, cfg.APIKey, memo)
	case ProviderLocal:
		return NewLocalProvider(memo), nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, cfg.Provider)
	}
}

// NewFromEnv creates an embedder based on environment variables.
// Priority:
//  1. NOTESEEK_EMBEDDING_PROVIDER (ollama, openai, local)
//  2. OPENAI_API_KEY set: use the OpenAI-compatible API
//  3. Default to the Ollama daemon
func NewFromEnv() (Embedder, error) {
	memo := NewMemoCache(10000)

	if provider := strings.ToLower(os.Getenv(EnvProvider)); provider != "" {
		switch provider {
		case ProviderOllama:
			return NewOllamaProvider(os.Getenv(EnvOllamaBaseURL), "", memo), nil
		case ProviderOpenAI:
			return NewOpenAIProvider("", os.Getenv(EnvOpenAIAPIKey), memo)
		case ProviderLocal:
			return NewLocalProvider(memo), nil
		default:
			return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, provider)
		}
	}

	if key := os.Getenv(EnvOpenAIAPIKey); key != "" {
		return NewOpenAIProvider("", key, memo)
	}

	return NewOllamaProvider(os.Getenv(EnvOllamaBaseURL), "", memo), nil
}

// DetectProvider returns the provider that would be used based on the
// current environment
func DetectProvider() string {
	if provider := os.Getenv(EnvProvider); provider != "" {
		return strings.ToLower(provider)
	}
	if os.Getenv(EnvOpenAIAPIKey) != "" {
		return ProviderOpenAI
	}
	return ProviderOllama
}
