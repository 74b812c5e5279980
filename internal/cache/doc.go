// Package cache provides the durable embedding store owned by the retrieval
// engine.
//
// Two tables back the cache: chunk embeddings keyed by (document id,
// document version), and query vectors keyed by normalized query text with a
// TTL. Embedding sets are replaced atomically (delete-then-bulk-insert in
// one transaction) so a cached set for a version is always complete or
// absent, and reads require an exact version match. Query vectors expire
// lazily at read time, with a periodic sweep deleting expired rows to bound
// storage growth.
//
// The cache is an optimization, never a correctness dependency: callers
// treat errors as misses and recompute. NullCache provides the same
// interface with no backing store for cache-disabled configurations.
//
// The SQLite implementation uses the pure-Go modernc.org/sqlite driver with
// WAL mode and a single-writer connection pool. Vectors are stored as
// little-endian float32 blobs.
package cache
