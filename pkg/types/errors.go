package types

import "errors"

// Domain errors for type validation
var (
	ErrMissingDocument  = errors.New("search result document is required")
	ErrInvalidScore     = errors.New("score must be >= 0")
	ErrInvalidMatchKind = errors.New("invalid match kind")
)
