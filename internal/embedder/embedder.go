package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Common errors
var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrProviderFailed    = errors.New("embedding provider failed")
	ErrUnsupportedModel  = errors.New("unsupported model")
	ErrEmptyText         = errors.New("text cannot be empty")
	ErrBatchTooLarge     = errors.New("batch size exceeds limit")
	ErrNoProviderEnabled = errors.New("no embedding provider configured")
)

// Result is a computed vector with provider metadata
type Result struct {
	Vector    []float32
	Dimension int
	Provider  string
	Model     string
	Hash      string // Content hash for caching
}

// Request represents a request to embed one text
type Request struct {
	Text  string
	Model string // Optional: override default model
}

// BatchRequest represents a batch embedding request
type BatchRequest struct {
	Texts []string
	Model string // Optional: override default model
}

// BatchResponse represents a batch response
type BatchResponse struct {
	Results  []*Result
	Provider string
	Model    string
}

// Embedder turns text into fixed-length vectors through a pluggable model
type Embedder interface {
	// Embed generates a single embedding for the given text
	Embed(ctx context.Context, req Request) (*Result, error)

	// EmbedBatch generates embeddings for multiple texts efficiently
	EmbedBatch(ctx context.Context, req BatchRequest) (*BatchResponse, error)

	// Dimension returns the embedding dimension for this provider
	Dimension() int

	// Provider returns the provider name
	Provider() string

	// Model returns the model name
	Model() string

	// Close releases any resources held by the embedder
	Close() error
}

// MemoCache provides in-memory LRU memoization of embeddings by content hash.
// It sits in front of the model call; the durable per-document cache lives in
// the cache package.
type MemoCache struct {
	cache *lru.Cache[string, *Result]
}

// NewMemoCache creates an embedding memo cache with LRU eviction
func NewMemoCache(maxLen int) *MemoCache {
	if maxLen <= 0 {
		maxLen = 10000
	}
	cache, err := lru.New[string, *Result](maxLen)
	if err != nil {
		// Only reachable with a non-positive size; fall back to the default
		cache, _ = lru.New[string, *Result](10000)
	}
	return &MemoCache{cache: cache}
}

// Get retrieves a deep copy of a result from cache.
// Returns a copy to prevent caller mutations from affecting cached values.
func (c *MemoCache) Get(hash string) (*Result, bool) {
	res, ok := c.cache.Get(hash)
	if !ok {
		return nil, false
	}

	vectorCopy := make([]float32, len(res.Vector))
	copy(vectorCopy, res.Vector)

	return &Result{
		Vector:    vectorCopy,
		Dimension: res.Dimension,
		Provider:  res.Provider,
		Model:     res.Model,
		Hash:      res.Hash,
	}, true
}

// Set stores a result in cache with automatic LRU eviction
func (c *MemoCache) Set(hash string, res *Result) {
	c.cache.Add(hash, res)
}

// Size returns the current cache size
func (c *MemoCache) Size() int {
	return c.cache.Len()
}

// Clear empties the cache
func (c *MemoCache) Clear() {
	c.cache.Purge()
}

// ComputeHash computes SHA-256 hash of text for caching
func ComputeHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

// ValidateRequest validates an embedding request
func ValidateRequest(req Request) error {
	if req.Text == "" {
		return ErrEmptyText
	}
	return nil
}

// ValidateBatchRequest validates a batch embedding request
func ValidateBatchRequest(req BatchRequest) error {
	if len(req.Texts) == 0 {
		return fmt.Errorf("%w: no texts provided", ErrInvalidInput)
	}
	for i, text := range req.Texts {
		if text == "" {
			return fmt.Errorf("%w: text at index %d is empty", ErrInvalidInput, i)
		}
	}
	return nil
}
