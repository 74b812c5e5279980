package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"golang.org/x/sync/errgroup"

	"github.com/noteseek/noteseek/internal/cache"
	"github.com/noteseek/noteseek/internal/chunker"
	"github.com/noteseek/noteseek/internal/embedder"
	"github.com/noteseek/noteseek/pkg/types"
)

// Common errors
var (
	ErrNilDocument = errors.New("document cannot be nil")
	ErrEmptyQuery  = errors.New("query cannot be empty")
	ErrClosed      = errors.New("engine is closed")
)

// Default pipeline settings
const (
	DefaultBatchSize = 8
	QueryKeyPrefix   = "query_"

	// maxConcurrentBatches caps how many document batches embed at once,
	// keeping peak model-call concurrency fixed regardless of input size.
	maxConcurrentBatches = 4
)

// Engine coordinates the embedding pipeline: chunk -> embed -> cache.
// Documents are embedded at most once per (id, version); queries are
// memoized in the durable cache with a TTL.
type Engine struct {
	chunker  *chunker.Chunker
	embedder embedder.Embedder
	cache    cache.EmbeddingCache
	logger   *slog.Logger

	// Embedding work runs on the pool; a nil pool means inline execution
	// on the caller goroutine.
	pool      *ants.Pool
	batchSize int
	queryTTL  time.Duration

	closed atomic.Bool
}

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithChunker overrides the default chunker configuration
func WithChunker(c *chunker.Chunker) Option {
	return func(e *Engine) {
		if c != nil {
			e.chunker = c
		}
	}
}

// WithBatchSize sets how many documents each concurrent batch holds
func WithBatchSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithQueryTTL sets how long cached query vectors stay valid
func WithQueryTTL(ttl time.Duration) Option {
	return func(e *Engine) {
		if ttl > 0 {
			e.queryTTL = ttl
		}
	}
}

// Statistics describes the outcome of a bulk embedding run
type Statistics struct {
	DocumentsEmbedded int
	DocumentsSkipped  int
	DocumentsFailed   int
	ChunksEmbedded    int
	Duration          time.Duration
	ErrorMessages     []string
}

// New creates an Engine backed by the given embedder and cache.
// poolSize controls the embedding worker pool; 0 disables the pool and
// embeds inline, negative values use runtime.NumCPU().
func New(emb embedder.Embedder, c cache.EmbeddingCache, poolSize int, opts ...Option) (*Engine, error) {
	if emb == nil {
		return nil, errors.New("embedder is required")
	}
	if c == nil {
		return nil, errors.New("cache is required")
	}

	e := &Engine{
		chunker:   chunker.New(chunker.DefaultConfig()),
		embedder:  emb,
		cache:     c,
		logger:    slog.Default(),
		batchSize: DefaultBatchSize,
		queryTTL:  cache.DefaultQueryTTL,
	}
	for _, opt := range opts {
		opt(e)
	}

	if poolSize != 0 {
		if poolSize < 0 {
			poolSize = runtime.NumCPU()
		}
		pool, err := ants.NewPool(poolSize)
		if err != nil {
			return nil, fmt.Errorf("create worker pool: %w", err)
		}
		e.pool = pool
	}

	return e, nil
}

// Close releases the worker pool. The cache and embedder are owned by the
// caller and are not closed here.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	if e.pool != nil {
		e.pool.Release()
	}
	return nil
}

// EmbedDocument returns the embeddings for a document, computing them only
// when the cache has no entry for the document's current version. A chunk
// whose embedding fails is retried once and then dropped; the remaining
// chunks are still stored so the document stays searchable.
func (e *Engine) EmbedDocument(ctx context.Context, doc *types.Document) ([]*types.Embedding, error) {
	if doc == nil {
		return nil, ErrNilDocument
	}
	if e.closed.Load() {
		return nil, ErrClosed
	}
	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid document: %w", err)
	}

	cached, err := e.cache.GetEmbeddings(ctx, doc.ID, doc.Version)
	if err != nil {
		// Treat cache failures as misses; the engine stays functional
		// with a degraded cache.
		e.logger.Warn("embedding cache read failed", "document", doc.ID, "error", err)
	} else if cached != nil {
		return cached, nil
	}

	chunks := e.chunker.Chunk(doc)
	if len(chunks) == 0 {
		if err := e.cache.StoreEmbeddings(ctx, doc.ID, doc.Version, nil); err != nil {
			e.logger.Warn("embedding cache write failed", "document", doc.ID, "error", err)
		}
		return nil, nil
	}

	vectors := e.embedChunks(ctx, chunks)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := time.Now()
	embeddings := make([]*types.Embedding, 0, len(chunks))
	for i, chunk := range chunks {
		if vectors[i] == nil {
			continue
		}
		embeddings = append(embeddings, &types.Embedding{
			ID:         chunk.ID,
			DocumentID: doc.ID,
			ChunkID:    chunk.ID,
			Vector:     vectors[i].Vector,
			Model:      vectors[i].Model,
			CreatedAt:  now,
		})
	}

	if len(embeddings) < len(chunks) {
		e.logger.Warn("some chunks failed to embed",
			"document", doc.ID,
			"embedded", len(embeddings),
			"total", len(chunks))
	}

	if err := e.cache.StoreEmbeddings(ctx, doc.ID, doc.Version, embeddings); err != nil {
		e.logger.Warn("embedding cache write failed", "document", doc.ID, "error", err)
	}

	return embeddings, nil
}

// embedChunks computes a vector per chunk, preserving chunk order. Failed
// chunks leave a nil slot. Work runs on the pool when one is configured.
func (e *Engine) embedChunks(ctx context.Context, chunks []*types.TextChunk) []*embedder.Result {
	results := make([]*embedder.Result, len(chunks))

	embedOne := func(i int) {
		if ctx.Err() != nil {
			return
		}
		res, err := e.embedder.Embed(ctx, embedder.Request{Text: chunks[i].Text})
		if err != nil {
			// One retry, then drop the chunk.
			res, err = e.embedder.Embed(ctx, embedder.Request{Text: chunks[i].Text})
		}
		if err != nil {
			e.logger.Warn("chunk embedding failed",
				"chunk", chunks[i].ID,
				"error", err)
			return
		}
		results[i] = res
	}

	if e.pool == nil {
		for i := range chunks {
			embedOne(i)
		}
		return results
	}

	var wg sync.WaitGroup
	for i := range chunks {
		wg.Add(1)
		idx := i
		if err := e.pool.Submit(func() {
			defer wg.Done()
			embedOne(idx)
		}); err != nil {
			// Pool is released or overloaded; fall back inline.
			embedOne(idx)
			wg.Done()
		}
	}
	wg.Wait()

	return results
}

// EmbedDocuments embeds a set of documents in fixed-size concurrent batches.
// A failing document is recorded in the statistics and does not abort the
// run; only context cancellation stops it early.
func (e *Engine) EmbedDocuments(ctx context.Context, docs []*types.Document) (*Statistics, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}

	start := time.Now()
	stats := &Statistics{ErrorMessages: make([]string, 0)}

	var (
		embedded int32
		skipped  int32
		failed   int32
		chunks   int32
		mu       sync.Mutex
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentBatches)

	for i := 0; i < len(docs); i += e.batchSize {
		end := i + e.batchSize
		if end > len(docs) {
			end = len(docs)
		}
		batch := docs[i:end]

		g.Go(func() error {
			for _, doc := range batch {
				if err := gctx.Err(); err != nil {
					return err
				}

				hit, hitErr := e.cache.GetEmbeddings(gctx, doc.ID, doc.Version)
				if hitErr == nil && hit != nil {
					atomic.AddInt32(&skipped, 1)
					continue
				}

				embs, err := e.EmbedDocument(gctx, doc)
				if err != nil {
					atomic.AddInt32(&failed, 1)
					mu.Lock()
					stats.ErrorMessages = append(stats.ErrorMessages, fmt.Sprintf("%s: %v", doc.ID, err))
					mu.Unlock()
					continue
				}

				atomic.AddInt32(&embedded, 1)
				atomic.AddInt32(&chunks, int32(len(embs)))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats.DocumentsEmbedded = int(embedded)
	stats.DocumentsSkipped = int(skipped)
	stats.DocumentsFailed = int(failed)
	stats.ChunksEmbedded = int(chunks)
	stats.Duration = time.Since(start)

	return stats, nil
}

// UpdateEmbeddings re-embeds only the documents whose (id, version) pair is
// not already cached. Unchanged documents are counted as skipped without
// touching the embedder.
func (e *Engine) UpdateEmbeddings(ctx context.Context, docs []*types.Document) (*Statistics, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}

	modified, err := e.cache.GetModifiedDocuments(ctx, docs)
	if err != nil {
		e.logger.Warn("modified document lookup failed, re-embedding all", "error", err)
		modified = docs
	}

	stats, err := e.EmbedDocuments(ctx, modified)
	if err != nil {
		return nil, err
	}
	stats.DocumentsSkipped += len(docs) - len(modified)

	return stats, nil
}

// EmbedQuery returns the vector for a search query, consulting the durable
// query cache before the embedder. Computed vectors are stored with the
// engine's TTL.
func (e *Engine) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	normalized := NormalizeQuery(query)
	if normalized == "" {
		return nil, ErrEmptyQuery
	}

	key := QueryKeyPrefix + normalized
	vector, err := e.cache.GetQueryVector(ctx, key)
	if err != nil {
		e.logger.Warn("query cache read failed", "error", err)
	} else if vector != nil {
		return vector, nil
	}

	res, err := e.embedder.Embed(ctx, embedder.Request{Text: normalized})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	if err := e.cache.StoreQueryVector(ctx, key, res.Vector, e.queryTTL); err != nil {
		e.logger.Warn("query cache write failed", "error", err)
	}

	return res.Vector, nil
}

// NormalizeQuery canonicalizes query text for cache keying: lowercase with
// runs of whitespace collapsed to single spaces.
func NormalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}
