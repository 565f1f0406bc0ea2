package source

import (
	"errors"
	"fmt"
)

// Define static errors
var (
	// ErrNoQueryCapability is returned when the supplied collaborator exposes
	// none of the expected query capabilities
	ErrNoQueryCapability = errors.New("database collaborator has no compatible query capability (ExecuteQuery, Query, FetchAll, or Select)")
	// ErrDriverRequired is returned when the source driver name is empty
	ErrDriverRequired = errors.New("source driver is required")
	// ErrDSNRequired is returned when the source DSN is empty
	ErrDSNRequired = errors.New("source dsn is required")
)

// QueryError wraps any failure raised by the collaborator while executing a
// query, so callers never need to know driver-specific error types.
type QueryError struct {
	Err error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("source query failed: %v", e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}
