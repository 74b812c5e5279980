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
	"strings"
	"time"
)

// OpenAI-compatible defaults
const (
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	DefaultOpenAIModel   = "gpt-4o-mini"

	sseDataPrefix  = "data: "
	sseDoneMessage = "[DONE]"
)

// OpenAIProvider generates text through an OpenAI-compatible chat API
type OpenAIProvider struct {
	baseURL    string
	apiKey     string
	model      string
	options    Options
	httpClient *http.Client
	logger     *slog.Logger
}

// NewOpenAIProvider creates a provider for an OpenAI-compatible endpoint.
// Empty baseURL and model fall back to defaults; the key is validated at
// Initialize time.
func NewOpenAIProvider(baseURL, apiKey, model string, opts Options, logger *slog.Logger) *OpenAIProvider {
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAIProvider{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		options: opts,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		logger: logger,
	}
}

// Initialize fails fast when the credential is missing
func (o *OpenAIProvider) Initialize(ctx context.Context) error {
	if o.apiKey == "" {
		return fmt.Errorf("%w: api key not set", ErrProviderUnavailable)
	}
	return nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
	Model string `json:"model"`
}

type chatStreamFrame struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

func (o *OpenAIProvider) Generate(ctx context.Context, prompt string) (*Response, error) {
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}

	resp, err := o.post(ctx, chatRequest{
		Model:       o.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: o.options.Temperature,
		MaxTokens:   o.options.MaxTokens,
	})
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	var apiResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrGenerationFailed, err)
	}
	if len(apiResp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices returned", ErrGenerationFailed)
	}

	model := apiResp.Model
	if model == "" {
		model = o.model
	}

	return &Response{
		Text:       apiResp.Choices[0].Message.Content,
		TokensUsed: apiResp.Usage.TotalTokens,
		Model:      model,
		Provider:   ProviderOpenAI,
	}, nil
}

// Stream reads SSE frames and forwards each delta fragment. Partial or
// malformed frames are skipped; the [DONE] sentinel ends the stream.
func (o *OpenAIProvider) Stream(ctx context.Context, prompt string) (<-chan StreamChunk, error) {
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}

	resp, err := o.post(ctx, chatRequest{
		Model:       o.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: o.options.Temperature,
		MaxTokens:   o.options.MaxTokens,
		Stream:      true,
	})
	if err != nil {
		return nil, err
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
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, sseDataPrefix) {
				continue
			}
			payload := strings.TrimPrefix(line, sseDataPrefix)
			if payload == sseDoneMessage {
				return
			}

			var frame chatStreamFrame
			if err := json.Unmarshal([]byte(payload), &frame); err != nil {
				o.logger.Debug("skipping malformed stream frame", "error", err)
				continue
			}
			if len(frame.Choices) == 0 || frame.Choices[0].Delta.Content == "" {
				continue
			}

			select {
			case chunks <- StreamChunk{Text: frame.Choices[0].Delta.Content}:
			case <-ctx.Done():
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

func (o *OpenAIProvider) post(ctx context.Context, payload chatRequest) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", o.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		return nil, fmt.Errorf("%w: status %d: %s", ErrGenerationFailed, resp.StatusCode, string(bodyBytes))
	}
	return resp, nil
}

func (o *OpenAIProvider) Name() string {
	return ProviderOpenAI
}

func (o *OpenAIProvider) Destroy() {
	o.httpClient.CloseIdleConnections()
}
