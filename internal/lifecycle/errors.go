package lifecycle

import "errors"

// Failure kinds callers are expected to branch on. Validation and
// authorization failures abort before any persistence is touched; a
// not-found aborts cleanly with no partial effects; a conflict marks an
// attempt to leave a terminal state.
var (
	ErrValidation   = errors.New("validation failed")
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("not authorized")
	ErrConflict     = errors.New("conflicting state")
)
