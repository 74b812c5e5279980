package types

// MatchKind identifies which scorer produced a search result
type MatchKind string

const (
	MatchLexical  MatchKind = "lexical"
	MatchSemantic MatchKind = "semantic"
	MatchBoth     MatchKind = "both"
)

// SearchResult represents a single fused search result.
//
// Score is distance-like: lower is better. Callers presenting results to a
// user may invert it at the API boundary. After fusion each document ID
// appears at most once in a result list.
type SearchResult struct {
	Document *Document
	Score    float64
	Kind     MatchKind

	// MatchedChunk is the best-matching chunk for semantic hits; nil for
	// purely lexical matches.
	MatchedChunk *TextChunk
}

// Validate checks if the search result is valid
func (sr *SearchResult) Validate() error {
	if sr.Document == nil {
		return ErrMissingDocument
	}
	if sr.Score < 0 {
		return ErrInvalidScore
	}
	switch sr.Kind {
	case MatchLexical, MatchSemantic, MatchBoth:
		return nil
	default:
		return ErrInvalidMatchKind
	}
}
