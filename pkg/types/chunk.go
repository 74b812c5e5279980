package types

import (
	"errors"
	"fmt"
)

// ChunkMetadata carries document-level fields shared by every chunk of a
// document. It is attached uniformly after chunk assembly.
type ChunkMetadata struct {
	Title    string
	Tags     []string
	Notebook string
	Ordinal  int // Position of the chunk within the document (0-based)
}

// TextChunk represents a bounded contiguous span of a document's text treated
// as one retrieval unit. Chunks are never mutated after creation: editing a
// document produces an entirely new chunk set.
type TextChunk struct {
	// Identification
	ID         string // Deterministic: {documentID}_chunk_{ordinal}
	DocumentID string

	// Content
	Text string

	// Location within Document.Text(), for traceability
	StartOffset int
	EndOffset   int

	Metadata ChunkMetadata
}

// ChunkID builds the deterministic chunk identifier for a document and
// ordinal index. Re-chunking an unchanged document reproduces identical ids.
func ChunkID(documentID string, ordinal int) string {
	return fmt.Sprintf("%s_chunk_%d", documentID, ordinal)
}

// Validate checks if the chunk is internally consistent
func (c *TextChunk) Validate() error {
	if c.Text == "" {
		return errors.New("chunk text cannot be empty")
	}
	if c.DocumentID == "" {
		return errors.New("chunk document ID is required")
	}
	if c.StartOffset < 0 || c.EndOffset < c.StartOffset {
		return errors.New("chunk offsets must satisfy 0 <= start <= end")
	}
	return nil
}
