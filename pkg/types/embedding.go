package types

import "time"

// Embedding represents a fixed-length vector for one chunk of a document.
// The engine constructs embeddings; the cache owns them once stored.
//
// Invariant: for a given (DocumentID, version) pair the stored embedding set
// is internally consistent: every chunk embedded with the same model, and
// the set is complete or absent, never partial.
type Embedding struct {
	ID         string
	DocumentID string
	ChunkID    string

	Vector []float32
	Model  string

	CreatedAt time.Time
}

// CachedQueryVector is the ephemeral cached vector for a query string.
// Query vectors are not tied to any document version and expire after a
// fixed TTL instead.
type CachedQueryVector struct {
	QueryKey  string
	Vector    []float32
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the cached vector is past its TTL at the given time
func (q *CachedQueryVector) Expired(now time.Time) bool {
	return !now.Before(q.ExpiresAt)
}
