package rag

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noteseek/noteseek/internal/cache"
	"github.com/noteseek/noteseek/internal/embedder"
	"github.com/noteseek/noteseek/internal/engine"
	"github.com/noteseek/noteseek/internal/llm"
	"github.com/noteseek/noteseek/internal/searcher"
	"github.com/noteseek/noteseek/pkg/types"
)

// stubProvider implements llm.Provider with canned behavior
type stubProvider struct {
	response string
	fail     bool
	prompts  []string
}

func (p *stubProvider) Initialize(ctx context.Context) error { return nil }

func (p *stubProvider) Generate(ctx context.Context, prompt string) (*llm.Response, error) {
	p.prompts = append(p.prompts, prompt)
	if p.fail {
		return nil, errors.New("backend exploded")
	}
	return &llm.Response{Text: p.response, TokensUsed: 7, Model: "stub", Provider: "stub"}, nil
}

func (p *stubProvider) Stream(ctx context.Context, prompt string) (<-chan llm.StreamChunk, error) {
	if p.fail {
		return nil, errors.New("backend exploded")
	}
	ch := make(chan llm.StreamChunk, 2)
	ch <- llm.StreamChunk{Text: p.response}
	close(ch)
	return ch, nil
}

func (p *stubProvider) Name() string { return "stub" }
func (p *stubProvider) Destroy()     {}

func newAnswerer(t *testing.T, provider llm.Provider) (*Answerer, string) {
	t.Helper()

	doc := &types.Document{
		ID:      "doc-ownership",
		Version: "v1",
		Title:   "Understanding Ownership",
		Content: "Ownership is a set of rules that govern how memory is managed.",
	}

	dbPath := filepath.Join(t.TempDir(), "rag_test.db")
	c, err := cache.NewSQLiteCache(dbPath, cache.WithSweepInterval(0))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	emb := embedder.NewLocalProvider(nil)
	eng, err := engine.New(emb, c, 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })

	// Seed the document's vector to equal the query vector so semantic
	// retrieval finds it.
	query := "what is ownership?"
	qres, err := emb.Embed(context.Background(), embedder.Request{Text: engine.NormalizeQuery(query)})
	require.NoError(t, err)
	chunkID := types.ChunkID(doc.ID, 0)
	err = c.StoreEmbeddings(context.Background(), doc.ID, doc.Version, []*types.Embedding{
		{ID: chunkID, DocumentID: doc.ID, ChunkID: chunkID, Vector: qres.Vector, Model: "local", CreatedAt: time.Now()},
	})
	require.NoError(t, err)

	s, err := searcher.New(searcher.StaticSource{doc}, eng, c)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	a, err := New(s, provider)
	require.NoError(t, err)
	return a, query
}

func TestIsQuestion(t *testing.T) {
	tests := []struct {
		query string
		want  bool
	}{
		{"what is ownership?", true},
		{"what is ownership", true},
		{"Is this a question", true},
		{"explain borrowing", true},
		{"Tell me about lifetimes", true},
		{"anything at all?", true},
		{"ownership notes", false},
		{"rust memory", false},
		{"", false},
		{"   ", false},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, IsQuestion(tt.query))
		})
	}
}

func TestAsk_GeneratesFromSources(t *testing.T) {
	provider := &stubProvider{response: "Ownership is how memory is managed."}
	a, query := newAnswerer(t, provider)

	answer, err := a.Ask(context.Background(), query)
	require.NoError(t, err)
	assert.True(t, answer.Generated)
	assert.Equal(t, "Ownership is how memory is managed.", answer.Text)
	assert.Equal(t, 7, answer.TokensUsed)
	require.NotEmpty(t, answer.Sources)
	assert.Equal(t, "doc-ownership", answer.Sources[0].Document.ID)

	// The prompt carries the context block and the question.
	require.Len(t, provider.prompts, 1)
	assert.Contains(t, provider.prompts[0], "Title: Understanding Ownership")
	assert.Contains(t, provider.prompts[0], "Question: "+query)
}

func TestAsk_ProviderFailureKeepsSources(t *testing.T) {
	provider := &stubProvider{fail: true}
	a, query := newAnswerer(t, provider)

	answer, err := a.Ask(context.Background(), query)
	require.NoError(t, err, "generation failure must not fail the ask")
	assert.False(t, answer.Generated)
	assert.Contains(t, answer.Text, "unavailable")
	require.NotEmpty(t, answer.Sources, "sources survive a provider failure")
}

func TestAsk_NilProvider(t *testing.T) {
	a, query := newAnswerer(t, nil)

	answer, err := a.Ask(context.Background(), query)
	require.NoError(t, err)
	assert.False(t, answer.Generated)
	require.NotEmpty(t, answer.Sources)
}

func TestAsk_NoSources(t *testing.T) {
	provider := &stubProvider{response: "should never be called"}
	a, _ := newAnswerer(t, provider)

	// Nothing is seeded for this query, so semantic retrieval is empty
	// and the provider must not be invoked.
	answer, err := a.Ask(context.Background(), "unrelated sourdough hydration")
	require.NoError(t, err)
	assert.Empty(t, answer.Sources)
	assert.False(t, answer.Generated)
	assert.Empty(t, provider.prompts)
}

func TestAskStream_DeliversFragments(t *testing.T) {
	provider := &stubProvider{response: "streamed answer"}
	a, query := newAnswerer(t, provider)

	sources, chunks, err := a.AskStream(context.Background(), query)
	require.NoError(t, err)
	require.NotEmpty(t, sources)
	require.NotNil(t, chunks)

	var parts []string
	for chunk := range chunks {
		require.NoError(t, chunk.Err)
		parts = append(parts, chunk.Text)
	}
	assert.Equal(t, "streamed answer", strings.Join(parts, ""))
}

func TestBuildContext(t *testing.T) {
	sources := []*types.SearchResult{
		{
			Document: &types.Document{Title: "First", Content: "Alpha body."},
			Kind:     types.MatchSemantic,
		},
		{
			Document: &types.Document{Title: "Second", Content: "Beta body."},
			Kind:     types.MatchSemantic,
			MatchedChunk: &types.TextChunk{
				Text: "The best matching span.",
			},
		},
	}

	block := BuildContext(sources)
	assert.Contains(t, block, "Title: First\nContent: Alpha body.")
	assert.Contains(t, block, "Title: Second\nContent: The best matching span.")
	assert.Contains(t, block, "---")
}
