// Package chunker splits documents into bounded text chunks for embedding
// and retrieval.
//
// The chunker walks the combined document text (title first, then body) line
// by line. Markdown headings force a segment boundary so chunks stay aligned
// with one semantic section where possible; fenced code blocks are kept
// atomic; blank lines end a segment once it is large enough. Segments that
// still exceed the configured maximum are re-split at sentence boundaries,
// with each sub-chunk seeded by the word-aligned tail of its predecessor so
// semantic search can match content spanning a split point.
//
// Chunking is deterministic: identical input yields identical chunk ids,
// offsets, and text.
//
//	c := chunker.New(chunker.DefaultConfig())
//	chunks := c.Chunk(doc)
//	for _, warning := range c.ValidateChunks(doc, chunks) {
//	    slog.Warn(warning)
//	}
package chunker
