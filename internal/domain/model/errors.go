package model

import "errors"

// Sentinel error kinds shared by the caches and QC tests. Callers match them
// with errors.Is; packages wrap them with context.
var (
	// ErrInvalidInput marks malformed configuration or query parameters.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnknownStation marks a reference to a station absent from the run.
	ErrUnknownStation = errors.New("unknown station")
	// ErrInternalInconsistency marks cache or index corruption. It is fatal.
	ErrInternalInconsistency = errors.New("internal inconsistency")
)
