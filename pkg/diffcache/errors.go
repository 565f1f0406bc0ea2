package diffcache

import (
	"errors"
	"fmt"
)

// Define static errors
var (
	// ErrResidualRows is returned when a full clear leaves rows behind,
	// signaling the clear did not fully complete
	ErrResidualRows = errors.New("cache clear left residual rows")
	// ErrRetentionInvalid is returned for a non-positive retention window
	ErrRetentionInvalid = errors.New("retention window must be positive")
	// ErrSourceRequired is returned when no row source is supplied for an
	// operation that needs one
	ErrSourceRequired = errors.New("row source is required")
)

// StorageError wraps persistent-store I/O failures. Callers should treat it
// as requiring operator attention: cache state may be inconsistent between
// the metadata and row tables.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("cache storage %s failed: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
