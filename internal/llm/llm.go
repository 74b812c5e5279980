package llm

import (
	"context"
	"errors"
)

// Provider errors. ErrProviderUnavailable is reserved for Initialize so
// callers can distinguish "AI unavailable" from a failed request.
var (
	ErrProviderUnavailable = errors.New("llm provider unavailable")
	ErrGenerationFailed    = errors.New("llm generation failed")
	ErrEmptyPrompt         = errors.New("prompt cannot be empty")
)

// Provider names
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// Response is a completed generation
type Response struct {
	Text       string
	TokensUsed int
	Model      string
	Provider   string
}

// StreamChunk is one incremental fragment of a streamed generation. The
// stream channel closes after the final chunk; a chunk with Err set is
// always the last one.
type StreamChunk struct {
	Text string
	Err  error
}

// Provider is a uniform interface over heterogeneous generation backends.
// Initialize must be called before Generate or Stream; Destroy releases
// held connections.
type Provider interface {
	// Initialize verifies the backend is reachable and authenticated.
	// Failure wraps ErrProviderUnavailable.
	Initialize(ctx context.Context) error

	// Generate produces a complete answer for the prompt
	Generate(ctx context.Context, prompt string) (*Response, error)

	// Stream yields text fragments as the backend emits them. The
	// returned channel is finite and not restartable; malformed frames
	// are skipped, not surfaced.
	Stream(ctx context.Context, prompt string) (<-chan StreamChunk, error)

	// Name returns the provider name
	Name() string

	// Destroy releases backend resources
	Destroy()
}

// Options tunes generation behavior across providers
type Options struct {
	Temperature float64
	MaxTokens   int
}

// DefaultOptions returns conservative generation defaults
func DefaultOptions() Options {
	return Options{
		Temperature: 0.7,
		MaxTokens:   1024,
	}
}
