package searcher

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noteseek/noteseek/internal/cache"
	"github.com/noteseek/noteseek/internal/embedder"
	"github.com/noteseek/noteseek/internal/engine"
	"github.com/noteseek/noteseek/pkg/types"
)

type testHarness struct {
	searcher *Searcher
	cache    cache.EmbeddingCache
	embedder embedder.Embedder
	docs     []*types.Document
}

func newHarness(t *testing.T, docs []*types.Document) *testHarness {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "searcher_test.db")
	c, err := cache.NewSQLiteCache(dbPath, cache.WithSweepInterval(0))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	emb := embedder.NewLocalProvider(nil)
	eng, err := engine.New(emb, c, 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })

	s, err := New(StaticSource(docs), eng, c)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return &testHarness{searcher: s, cache: c, embedder: emb, docs: docs}
}

// queryVector computes the exact vector the engine will derive for a query,
// so tests can seed chunk vectors with a known similarity to it.
func (h *testHarness) queryVector(t *testing.T, query string) []float32 {
	t.Helper()
	res, err := h.embedder.Embed(context.Background(), embedder.Request{Text: engine.NormalizeQuery(query)})
	require.NoError(t, err)
	return res.Vector
}

func (h *testHarness) seedEmbedding(t *testing.T, doc *types.Document, vector []float32) {
	t.Helper()
	chunkID := types.ChunkID(doc.ID, 0)
	err := h.cache.StoreEmbeddings(context.Background(), doc.ID, doc.Version, []*types.Embedding{
		{
			ID:         chunkID,
			DocumentID: doc.ID,
			ChunkID:    chunkID,
			Vector:     vector,
			Model:      "local-embeddings",
			CreatedAt:  time.Now(),
		},
	})
	require.NoError(t, err)
}

func ownershipDoc() *types.Document {
	return &types.Document{
		ID:      "doc-ownership",
		Version: "2026-01-02T00:00:00Z",
		Title:   "Understanding Ownership",
		Content: "Ownership is a set of rules that govern how memory is managed.",
		Tags:    []string{"rust", "memory"},
	}
}

func borrowDoc() *types.Document {
	return &types.Document{
		ID:      "doc-borrow",
		Version: "2026-01-01T00:00:00Z",
		Title:   "References and Borrowing",
		Content: "A reference lets you use a value without taking ownership of it.",
		Tags:    []string{"rust"},
	}
}

func cookingDoc() *types.Document {
	return &types.Document{
		ID:       "doc-cooking",
		Version:  "2026-01-03T00:00:00Z",
		Title:    "Sourdough Starter",
		Content:  "Feed the starter twice a day with equal parts flour and water.",
		Tags:     []string{"baking"},
		Notebook: "kitchen",
	}
}

func TestLexicalSearch_ExactAndFuzzy(t *testing.T) {
	h := newHarness(t, []*types.Document{ownershipDoc(), borrowDoc(), cookingDoc()})
	ctx := context.Background()

	resp, err := h.searcher.Search(ctx, SearchRequest{Query: "ownership", Mode: SearchModeLexical})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "doc-ownership", resp.Results[0].Document.ID)
	assert.Equal(t, types.MatchLexical, resp.Results[0].Kind)

	// Misspelled query still matches via fuzzy similarity.
	resp, err = h.searcher.Search(ctx, SearchRequest{Query: "ownershp", Mode: SearchModeLexical})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "doc-ownership", resp.Results[0].Document.ID)

	// Unrelated query excludes the programming notes.
	resp, err = h.searcher.Search(ctx, SearchRequest{Query: "sourdough", Mode: SearchModeLexical})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "doc-cooking", resp.Results[0].Document.ID)
	for _, r := range resp.Results {
		assert.NotEqual(t, "doc-ownership", r.Document.ID)
	}
}

func TestLexicalSearch_MinQueryLength(t *testing.T) {
	h := newHarness(t, []*types.Document{ownershipDoc()})

	resp, err := h.searcher.Search(context.Background(), SearchRequest{Query: "o", Mode: SearchModeLexical})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
}

func TestLexicalSearch_ScoreIsDistanceLike(t *testing.T) {
	h := newHarness(t, []*types.Document{ownershipDoc()})

	resp, err := h.searcher.Search(context.Background(), SearchRequest{Query: "ownership", Mode: SearchModeLexical})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	assert.GreaterOrEqual(t, resp.Results[0].Score, 0.0)
	assert.LessOrEqual(t, resp.Results[0].Score, 1.0)
}

func TestSemanticSearch_RanksBySimilarity(t *testing.T) {
	docs := []*types.Document{ownershipDoc(), cookingDoc()}
	h := newHarness(t, docs)
	ctx := context.Background()

	qv := h.queryVector(t, "memory management rules")
	h.seedEmbedding(t, docs[0], qv) // identical vector, similarity 1
	h.seedEmbedding(t, docs[1], h.queryVector(t, "completely unrelated baking text"))

	resp, err := h.searcher.Search(ctx, SearchRequest{Query: "memory management rules", Mode: SearchModeSemantic})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1, "dissimilar vectors stay below the floor")
	assert.Equal(t, "doc-ownership", resp.Results[0].Document.ID)
	assert.Equal(t, types.MatchSemantic, resp.Results[0].Kind)
	assert.InDelta(t, 0.0, resp.Results[0].Score, 1e-5)

	require.NotNil(t, resp.Results[0].MatchedChunk)
	assert.Equal(t, types.ChunkID("doc-ownership", 0), resp.Results[0].MatchedChunk.ID)
}

func TestSemanticSearch_MinQueryLength(t *testing.T) {
	h := newHarness(t, []*types.Document{ownershipDoc()})

	resp, err := h.searcher.Search(context.Background(), SearchRequest{Query: "ab", Mode: SearchModeSemantic})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
}

func TestSemanticSearch_CapsResults(t *testing.T) {
	docs := make([]*types.Document, 15)
	for i := range docs {
		docs[i] = &types.Document{
			ID:      fmt.Sprintf("doc-%d", i),
			Version: "v1",
			Title:   "Note",
			Content: "Body",
		}
	}
	h := newHarness(t, docs)

	qv := h.queryVector(t, "anything at all")
	for _, d := range docs {
		h.seedEmbedding(t, d, qv)
	}

	resp, err := h.searcher.Search(context.Background(), SearchRequest{
		Query: "anything at all",
		Mode:  SearchModeSemantic,
		Limit: MaxLimit,
	})
	require.NoError(t, err)
	assert.Len(t, resp.Results, DefaultSemanticCap)
}

// faultyCache fails bulk vector reads while behaving as an empty store
// otherwise.
type faultyCache struct {
	*cache.NullCache
}

func (f *faultyCache) GetEmbeddingsByDocumentIDs(ctx context.Context, documentIDs []string) (map[string][]*types.Embedding, error) {
	return nil, errors.New("database is locked")
}

func TestSemanticSearch_CacheErrorDegradesToMiss(t *testing.T) {
	c := &faultyCache{NullCache: cache.NewNullCache()}
	eng, err := engine.New(embedder.NewLocalProvider(nil), c, 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })

	s, err := New(StaticSource{ownershipDoc()}, eng, c)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	// An unreadable cache means no cached vectors, not a failed search.
	resp, err := s.Search(context.Background(), SearchRequest{Query: "memory management", Mode: SearchModeSemantic})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
}

func TestHybridSearch_DedupAndBothKind(t *testing.T) {
	docs := []*types.Document{ownershipDoc(), borrowDoc()}
	h := newHarness(t, docs)
	ctx := context.Background()

	// doc-ownership matches lexically (title) and semantically (seeded
	// vector); it must appear exactly once, marked Both, with the better
	// (semantic, 0) score.
	qv := h.queryVector(t, "ownership")
	h.seedEmbedding(t, docs[0], qv)

	resp, err := h.searcher.Search(ctx, SearchRequest{Query: "ownership", Mode: SearchModeHybrid})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)

	seen := make(map[string]int)
	for _, r := range resp.Results {
		seen[r.Document.ID]++
	}
	for id, count := range seen {
		assert.Equal(t, 1, count, "document %s returned more than once", id)
	}

	assert.Equal(t, "doc-ownership", resp.Results[0].Document.ID)
	assert.Equal(t, types.MatchBoth, resp.Results[0].Kind)
	assert.InDelta(t, 0.0, resp.Results[0].Score, 1e-5)
}

func TestHybridSearch_SemanticFailureKeepsLexical(t *testing.T) {
	// No seeded vectors: the semantic branch returns nothing, lexical
	// results still come back.
	h := newHarness(t, []*types.Document{ownershipDoc()})

	resp, err := h.searcher.Search(context.Background(), SearchRequest{Query: "ownership", Mode: SearchModeHybrid})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, types.MatchLexical, resp.Results[0].Kind)
}

func TestFuseResults_BetterScoreWins(t *testing.T) {
	doc := ownershipDoc()

	lexical := []*types.SearchResult{{Document: doc, Score: 0.4, Kind: types.MatchLexical}}
	semantic := []*types.SearchResult{{Document: doc, Score: 0.2, Kind: types.MatchSemantic}}

	fused := fuseResults(lexical, semantic)
	require.Len(t, fused, 1)
	assert.Equal(t, types.MatchBoth, fused[0].Kind)
	assert.Equal(t, 0.2, fused[0].Score)

	// The other direction: the lexical score is better and wins.
	lexical = []*types.SearchResult{{Document: doc, Score: 0.1, Kind: types.MatchLexical}}
	semantic = []*types.SearchResult{{Document: doc, Score: 0.3, Kind: types.MatchSemantic}}

	fused = fuseResults(lexical, semantic)
	require.Len(t, fused, 1)
	assert.Equal(t, types.MatchBoth, fused[0].Kind)
	assert.Equal(t, 0.1, fused[0].Score)
}

func TestFuseResults_ExactTieKeepsLexicalScore(t *testing.T) {
	doc := ownershipDoc()
	lexical := []*types.SearchResult{{Document: doc, Score: 0.25, Kind: types.MatchLexical}}
	semantic := []*types.SearchResult{{Document: doc, Score: 0.25, Kind: types.MatchSemantic}}

	fused := fuseResults(lexical, semantic)
	require.Len(t, fused, 1)
	assert.Equal(t, types.MatchBoth, fused[0].Kind)
	assert.Equal(t, 0.25, fused[0].Score)
}

func TestSortResults_TieBreaks(t *testing.T) {
	older := &types.Document{ID: "a", Version: "2026-01-01T00:00:00Z"}
	newer := &types.Document{ID: "b", Version: "2026-02-01T00:00:00Z"}

	results := []*types.SearchResult{
		{Document: older, Score: 0.5, Kind: types.MatchLexical},
		{Document: newer, Score: 0.5, Kind: types.MatchLexical},
		{Document: ownershipDoc(), Score: 0.5, Kind: types.MatchBoth},
		{Document: cookingDoc(), Score: 0.1, Kind: types.MatchLexical},
	}
	sortResults(results)

	assert.Equal(t, "doc-cooking", results[0].Document.ID, "lowest score first")
	assert.Equal(t, types.MatchBoth, results[1].Kind, "Both wins score ties")
	assert.Equal(t, "b", results[2].Document.ID, "newer version wins among same kind")
	assert.Equal(t, "a", results[3].Document.ID)
}

func TestSearch_ResponseCache(t *testing.T) {
	h := newHarness(t, []*types.Document{ownershipDoc()})
	ctx := context.Background()

	req := SearchRequest{Query: "ownership", Mode: SearchModeLexical, UseCache: true}
	first, err := h.searcher.Search(ctx, req)
	require.NoError(t, err)
	assert.False(t, first.CacheHit)

	second, err := h.searcher.Search(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.TotalResults, second.TotalResults)

	h.searcher.InvalidateCache()
	third, err := h.searcher.Search(ctx, req)
	require.NoError(t, err)
	assert.False(t, third.CacheHit)
}

func TestSearch_Validation(t *testing.T) {
	h := newHarness(t, []*types.Document{ownershipDoc()})
	ctx := context.Background()

	_, err := h.searcher.Search(ctx, SearchRequest{Query: "   "})
	assert.ErrorIs(t, err, ErrEmptyQuery)

	_, err = h.searcher.Search(ctx, SearchRequest{Query: "ownership", Mode: "bm25"})
	assert.ErrorIs(t, err, ErrUnsupportedMode)

	// Empty mode defaults to hybrid.
	resp, err := h.searcher.Search(ctx, SearchRequest{Query: "ownership"})
	require.NoError(t, err)
	assert.Equal(t, SearchModeHybrid, resp.SearchMode)
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 0, 0}, []float32{1, 0, 0}, 1.0},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0.0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1.0},
		{"length mismatch", []float32{1, 0}, []float32{1, 0, 0}, 0.0},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, CosineSimilarity(tt.a, tt.b), 1e-9)
		})
	}
}
