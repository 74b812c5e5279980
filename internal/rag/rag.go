package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/noteseek/noteseek/internal/llm"
	"github.com/noteseek/noteseek/internal/searcher"
	"github.com/noteseek/noteseek/pkg/types"
)

// Retrieval and prompt parameters
const (
	TopSources       = 5
	contextSeparator = "\n---\n"
)

// interrogative lead words that classify a query as a question
var questionLeads = []string{
	"what", "who", "whom", "whose", "when", "where", "why", "how", "which",
	"is", "are", "was", "were", "do", "does", "did", "can", "could",
	"should", "would", "will",
}

// imperative phrases treated as questions for answering purposes
var questionImperatives = []string{
	"explain", "describe", "summarize", "compare", "define", "tell me",
}

// Answer is the result of a retrieval-augmented generation request.
// Sources are always populated from retrieval; Generated reports whether
// Text came from the provider or is a fallback message.
type Answer struct {
	Text       string
	Sources    []*types.SearchResult
	Model      string
	Provider   string
	TokensUsed int
	Generated  bool
}

// Answerer composes semantic retrieval with an LLM provider. The provider
// may be nil or unavailable; retrieval still works and Ask degrades to
// sources with an explanatory message.
type Answerer struct {
	searcher *searcher.Searcher
	provider llm.Provider
	logger   *slog.Logger
}

// Option configures an Answerer
type Option func(*Answerer)

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(a *Answerer) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// New creates an Answerer. A nil provider disables generation but keeps
// retrieval working.
func New(s *searcher.Searcher, provider llm.Provider, opts ...Option) (*Answerer, error) {
	if s == nil {
		return nil, fmt.Errorf("searcher is required")
	}
	a := &Answerer{
		searcher: s,
		provider: provider,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// IsQuestion classifies a query by lexical heuristics: a trailing question
// mark, an interrogative lead word, or an imperative answer phrase.
func IsQuestion(query string) bool {
	normalized := strings.ToLower(strings.TrimSpace(query))
	if normalized == "" {
		return false
	}
	if strings.HasSuffix(normalized, "?") {
		return true
	}

	first := strings.Fields(normalized)[0]
	for _, lead := range questionLeads {
		if first == lead {
			return true
		}
	}
	for _, imp := range questionImperatives {
		if strings.HasPrefix(normalized, imp) {
			return true
		}
	}
	return false
}

// Ask retrieves the most relevant notes and generates an answer grounded in
// them. A provider failure never drops the retrieval results: the returned
// Answer carries the sources with an explanatory message instead.
func (a *Answerer) Ask(ctx context.Context, query string) (*Answer, error) {
	sources, err := a.retrieve(ctx, query)
	if err != nil {
		return nil, err
	}

	answer := &Answer{Sources: sources}
	if len(sources) == 0 {
		answer.Text = "No relevant notes found for this question."
		return answer, nil
	}

	if a.provider == nil {
		answer.Text = "AI answers are not configured; showing matching notes only."
		return answer, nil
	}

	resp, err := a.provider.Generate(ctx, BuildPrompt(query, sources))
	if err != nil {
		a.logger.Warn("answer generation failed, returning sources only", "error", err)
		answer.Text = fmt.Sprintf("AI answer unavailable (%v); showing matching notes only.", err)
		return answer, nil
	}

	answer.Text = resp.Text
	answer.Model = resp.Model
	answer.Provider = resp.Provider
	answer.TokensUsed = resp.TokensUsed
	answer.Generated = true

	return answer, nil
}

// AskStream retrieves sources and starts a streamed generation. The sources
// come back immediately; a nil channel with no error means generation is
// not available and the caller should fall back to the sources alone.
func (a *Answerer) AskStream(ctx context.Context, query string) ([]*types.SearchResult, <-chan llm.StreamChunk, error) {
	sources, err := a.retrieve(ctx, query)
	if err != nil {
		return nil, nil, err
	}
	if len(sources) == 0 || a.provider == nil {
		return sources, nil, nil
	}

	chunks, err := a.provider.Stream(ctx, BuildPrompt(query, sources))
	if err != nil {
		a.logger.Warn("streamed generation failed, returning sources only", "error", err)
		return sources, nil, nil
	}
	return sources, chunks, nil
}

// retrieve runs a semantic-only search for the top grounding documents
func (a *Answerer) retrieve(ctx context.Context, query string) ([]*types.SearchResult, error) {
	resp, err := a.searcher.Search(ctx, searcher.SearchRequest{
		Query: query,
		Mode:  searcher.SearchModeSemantic,
		Limit: TopSources,
	})
	if err != nil {
		return nil, fmt.Errorf("retrieve sources: %w", err)
	}
	return resp.Results, nil
}

// BuildPrompt composes the generation prompt from the query and its
// retrieved context blocks
func BuildPrompt(query string, sources []*types.SearchResult) string {
	var b strings.Builder
	b.WriteString("Answer the question using only the notes below. ")
	b.WriteString("If the notes do not contain the answer, say so.\n\n")
	b.WriteString("Notes:\n")
	b.WriteString(BuildContext(sources))
	b.WriteString("\n\nQuestion: ")
	b.WriteString(query)
	return b.String()
}

// BuildContext renders one "Title: ...\nContent: ..." block per source,
// joined by a separator
func BuildContext(sources []*types.SearchResult) string {
	blocks := make([]string, 0, len(sources))
	for _, src := range sources {
		content := src.Document.Content
		if src.MatchedChunk != nil {
			content = src.MatchedChunk.Text
		}
		blocks = append(blocks, fmt.Sprintf("Title: %s\nContent: %s", src.Document.Title, content))
	}
	return strings.Join(blocks, contextSeparator)
}
