package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Ollama defaults
const (
	DefaultOllamaBaseURL = "http://localhost:11434"
	DefaultOllamaModel   = "llama3.2"
)

// OllamaProvider generates text through a local Ollama daemon
type OllamaProvider struct {
	baseURL    string
	model      string
	options    Options
	httpClient *http.Client
	logger     *slog.Logger
}

// NewOllamaProvider creates a provider for the given daemon address and
// model. Empty values fall back to defaults.
func NewOllamaProvider(baseURL, model string, opts Options, logger *slog.Logger) *OllamaProvider {
	if baseURL == "" {
		baseURL = DefaultOllamaBaseURL
	}
	if model == "" {
		model = DefaultOllamaModel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OllamaProvider{
		baseURL: baseURL,
		model:   model,
		options: opts,
		httpClient: &http.Client{
			Timeout: 300 * time.Second,
		},
		logger: logger,
	}
}

// Initialize checks that the daemon answers on its version endpoint
func (o *OllamaProvider) Initialize(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", o.baseURL+"/api/version", nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: ollama daemon not reachable at %s: %v", ErrProviderUnavailable, o.baseURL, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: ollama daemon returned status %d", ErrProviderUnavailable, resp.StatusCode)
	}
	return nil
}

type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Response  string `json:"response"`
	Done      bool   `json:"done"`
	EvalCount int    `json:"eval_count"`
}

func (o *OllamaProvider) generateOptions() map[string]any {
	opts := map[string]any{}
	if o.options.Temperature > 0 {
		opts["temperature"] = o.options.Temperature
	}
	if o.options.MaxTokens > 0 {
		opts["num_predict"] = o.options.MaxTokens
	}
	if len(opts) == 0 {
		return nil
	}
	return opts
}

func (o *OllamaProvider) Generate(ctx context.Context, prompt string) (*Response, error) {
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}

	body, err := json.Marshal(ollamaGenerateRequest{
		Model:   o.model,
		Prompt:  prompt,
		Stream:  false,
		Options: o.generateOptions(),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", o.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: status %d: %s", ErrGenerationFailed, resp.StatusCode, string(bodyBytes))
	}

	var apiResp ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrGenerationFailed, err)
	}

	return &Response{
		Text:       apiResp.Response,
		TokensUsed: apiResp.EvalCount,
		Model:      o.model,
		Provider:   ProviderOllama,
	}, nil
}

// Stream reads newline-delimited JSON frames from the daemon and forwards
// each frame's text fragment. Malformed frames are logged and skipped.
func (o *OllamaProvider) Stream(ctx context.Context, prompt string) (<-chan StreamChunk, error) {
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}

	body, err := json.Marshal(ollamaGenerateRequest{
		Model:   o.model,
		Prompt:  prompt,
		Stream:  true,
		Options: o.generateOptions(),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", o.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		return nil, fmt.Errorf("%w: status %d: %s", ErrGenerationFailed, resp.StatusCode, string(bodyBytes))
	}

	chunks := make(chan StreamChunk)
	go func() {
		defer close(chunks)
		defer func() {
			_ = resp.Body.Close()
		}()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}

			var frame ollamaGenerateResponse
			if err := json.Unmarshal(line, &frame); err != nil {
				o.logger.Debug("skipping malformed stream frame", "error", err)
				continue
			}

			if frame.Response != "" {
				select {
				case chunks <- StreamChunk{Text: frame.Response}:
				case <-ctx.Done():
					return
				}
			}
			if frame.Done {
				return
			}
		}

		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			select {
			case chunks <- StreamChunk{Err: fmt.Errorf("%w: %v", ErrGenerationFailed, err)}:
			case <-ctx.Done():
			}
		}
	}()

	return chunks, nil
}

func (o *OllamaProvider) Name() string {
	return ProviderOllama
}

func (o *OllamaProvider) Destroy() {
	o.httpClient.CloseIdleConnections()
}
