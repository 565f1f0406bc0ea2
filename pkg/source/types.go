// Package source provides query execution against an injected database
// collaborator and normalizes results into positional rows.
package source

import "context"

// Row is an ordered sequence of scalar column values. No column names are
// retained; rows are compared and stored purely by position and value.
type Row []any

// Params holds named query parameters.
type Params map[string]any

// The capability interfaces below are probed in priority order by
// NewExecutor. A collaborator implements whichever one matches its own
// vocabulary; all of them return an untyped result that the executor
// normalizes into []Row.

// QueryExecutor is the preferred capability.
type QueryExecutor interface {
	ExecuteQuery(ctx context.Context, query string, params Params) (any, error)
}

// Querier is the second capability probed.
type Querier interface {
	Query(ctx context.Context, query string, params Params) (any, error)
}

// Fetcher is the third capability probed.
type Fetcher interface {
	FetchAll(ctx context.Context, query string, params Params) (any, error)
}

// Selector is the last capability probed.
type Selector interface {
	Select(ctx context.Context, query string, params Params) (any, error)
}
