// Package engine coordinates incremental document embedding. It chunks
// documents, drives the configured embedder over a worker pool, and keys
// every stored vector set by the document's (id, version) pair so unchanged
// documents never hit the model twice. Query vectors are memoized in the
// durable cache with a TTL.
package engine
