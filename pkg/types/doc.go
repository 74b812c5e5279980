// Package types provides shared type definitions for the noteseek retrieval
// engine.
//
// This package defines the domain types used across components: documents,
// text chunks, embeddings, cached query vectors, and search results.
//
// # Core Types
//
// Document is the read-only input supplied by the external document store:
//
//	doc := &types.Document{
//	    ID:      "n1",
//	    Version: "2024-01-01T00:00:00Z",
//	    Title:   "Rust Ownership",
//	    Content: "# Intro\nRust uses ownership...",
//	}
//
// TextChunk is a bounded span of a document's combined text. Chunk ids are
// deterministic ({documentID}_chunk_{ordinal}) so re-chunking an unchanged
// document reproduces identical ids:
//
//	chunk := &types.TextChunk{
//	    ID:         types.ChunkID(doc.ID, 0),
//	    DocumentID: doc.ID,
//	    Text:       "Rust Ownership\n\n# Intro\nRust uses ownership...",
//	}
//
// SearchResult carries a distance-like score (lower is better) and the
// MatchKind recording which scorer (lexical, semantic, or both) produced
// the hit.
package types
