package types

import "errors"

// Document represents a note supplied by the external document store.
// Documents are read-only input: the engine never mutates them and only
// derives chunks and embeddings from them.
type Document struct {
	// Identification
	ID      string
	Version string // Monotonically comparable revision marker (e.g. ISO timestamp)

	// Content
	Title   string
	Content string

	// Organization
	Tags     []string
	Notebook string
}

// Text returns the combined text used for chunking: title first, then a
// blank line, then the body. All chunk offsets are relative to this string.
func (d *Document) Text() string {
	if d.Title == "" {
		return d.Content
	}
	if d.Content == "" {
		return d.Title
	}
	return d.Title + "\n\n" + d.Content
}

// Validate checks if the document carries the fields the engine requires
func (d *Document) Validate() error {
	if d.ID == "" {
		return errors.New("document ID is required")
	}
	if d.Version == "" {
		return errors.New("document version is required")
	}
	return nil
}
