package engine

import "errors"

var (
	// ErrStorageUnavailable marks a failed store read or write. The engine
	// keeps its in-memory state when it returns this error.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrInvalidValue marks a persisted value that cannot be decoded. The
	// engine treats such values as absent.
	ErrInvalidValue = errors.New("invalid persisted value")
)
