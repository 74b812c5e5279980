package cache

import (
	"context"
	"errors"
	"time"

	"github.com/noteseek/noteseek/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entry doesn't exist
	ErrNotFound = errors.New("not found")
)

const (
	// DefaultQueryTTL is how long a cached query vector stays valid
	DefaultQueryTTL = 24 * time.Hour

	// rowOverheadBytes is the estimated per-row metadata overhead used by Stats
	rowOverheadBytes = 200
)

// EmbeddingCache is the durable store the engine owns: chunk embeddings keyed
// by (document id, document version), and query vectors keyed by normalized
// query text with a TTL.
//
// The cache is an optimization, never a correctness dependency. Callers treat
// any error as a cache miss and recompute.
type EmbeddingCache interface {
	// StoreEmbeddings replaces the full embedding set for a document: all
	// existing rows for the document are deleted and the new set is inserted
	// as one unit, keyed by the given version. A cached set for a version is
	// therefore always complete or absent.
	StoreEmbeddings(ctx context.Context, documentID, version string, embeddings []*types.Embedding) error

	// GetEmbeddings returns the cached set for a document only if the stored
	// version matches exactly. Any mismatch is a miss (nil, nil), never a
	// partial or stale hit.
	GetEmbeddings(ctx context.Context, documentID, version string) ([]*types.Embedding, error)

	// GetAllEmbeddings returns every cached chunk embedding.
	GetAllEmbeddings(ctx context.Context) ([]*types.Embedding, error)

	// GetEmbeddingsByDocumentIDs bulk-fetches cached embeddings for the given
	// documents, regardless of version.
	GetEmbeddingsByDocumentIDs(ctx context.Context, documentIDs []string) (map[string][]*types.Embedding, error)

	// GetModifiedDocuments returns the subset of documents whose cached
	// version differs from the supplied one, or which have no cache entry.
	GetModifiedDocuments(ctx context.Context, docs []*types.Document) ([]*types.Document, error)

	// DeleteDocument removes all cached embeddings for a document.
	DeleteDocument(ctx context.Context, documentID string) error

	// StoreQueryVector caches a query vector under the given key with a TTL.
	StoreQueryVector(ctx context.Context, queryKey string, vector []float32, ttl time.Duration) error

	// GetQueryVector returns a cached, unexpired query vector. Expired rows
	// are filtered at read time (lazy expiry).
	GetQueryVector(ctx context.Context, queryKey string) ([]float32, error)

	// CleanupExpiredQueries deletes query rows whose expiry has passed and
	// returns how many were removed.
	CleanupExpiredQueries(ctx context.Context) (int64, error)

	// Stats reports row counts and an estimated byte size for observability.
	Stats(ctx context.Context) (*Stats, error)

	// Close releases the underlying store.
	Close() error
}

// Stats contains cache observability counters
type Stats struct {
	EmbeddingCount int64
	DocumentCount  int64
	QueryCount     int64
	EstimatedBytes int64
}

// NullCache implements EmbeddingCache with no backing store: every read is a
// miss and every write is discarded. It is used when caching is disabled so
// the engine needs no conditional branches.
type NullCache struct{}

// NewNullCache returns the no-op cache
func NewNullCache() *NullCache {
	return &NullCache{}
}

func (n *NullCache) StoreEmbeddings(ctx context.Context, documentID, version string, embeddings []*types.Embedding) error {
	return nil
}

func (n *NullCache) GetEmbeddings(ctx context.Context, documentID, version string) ([]*types.Embedding, error) {
	return nil, nil
}

func (n *NullCache) GetAllEmbeddings(ctx context.Context) ([]*types.Embedding, error) {
	return nil, nil
}

func (n *NullCache) GetEmbeddingsByDocumentIDs(ctx context.Context, documentIDs []string) (map[string][]*types.Embedding, error) {
	return map[string][]*types.Embedding{}, nil
}

func (n *NullCache) GetModifiedDocuments(ctx context.Context, docs []*types.Document) ([]*types.Document, error) {
	// With no cache entries, every document counts as modified
	return docs, nil
}

func (n *NullCache) DeleteDocument(ctx context.Context, documentID string) error {
	return nil
}

func (n *NullCache) StoreQueryVector(ctx context.Context, queryKey string, vector []float32, ttl time.Duration) error {
	return nil
}

func (n *NullCache) GetQueryVector(ctx context.Context, queryKey string) ([]float32, error) {
	return nil, nil
}

func (n *NullCache) CleanupExpiredQueries(ctx context.Context) (int64, error) {
	return 0, nil
}

func (n *NullCache) Stats(ctx context.Context) (*Stats, error) {
	return &Stats{}, nil
}

func (n *NullCache) Close() error {
	return nil
}
