package source

import (
	"context"
	"sort"

	"github.com/sirupsen/logrus"
)

// Executor runs read queries through an injected database collaborator and
// normalizes whatever the collaborator returns into a uniform []Row.
//
// The executor has no side effects beyond the read and performs no retries;
// retry and backoff policy belongs to the caller.
type Executor struct {
	log logrus.FieldLogger
	run func(ctx context.Context, query string, params Params) (any, error)

	collaborator any
}

// NewExecutor probes the collaborator for a query capability in fixed
// priority order (ExecuteQuery, Query, FetchAll, Select) and binds the first
// one found. Returns ErrNoQueryCapability if none is present.
func NewExecutor(log logrus.FieldLogger, collaborator any) (*Executor, error) {
	e := &Executor{
		log:          log.WithField("component", "source-executor"),
		collaborator: collaborator,
	}

	switch c := collaborator.(type) {
	case QueryExecutor:
		e.run = c.ExecuteQuery
	case Querier:
		e.run = c.Query
	case Fetcher:
		e.run = c.FetchAll
	case Selector:
		e.run = c.Select
	default:
		return nil, ErrNoQueryCapability
	}

	return e, nil
}

// Collaborator returns the underlying database collaborator.
func (e *Executor) Collaborator() any {
	return e.collaborator
}

// Identity returns a connection-identifying string for the collaborator, used
// to derive a stable cache location. Collaborators that cannot identify
// themselves fall back to the empty string.
func (e *Executor) Identity() string {
	if ident, ok := e.collaborator.(interface{ Identity() string }); ok {
		return ident.Identity()
	}

	return ""
}

// Execute runs the query through the bound capability and normalizes the
// result. Collaborator failures are wrapped as *QueryError.
func (e *Executor) Execute(ctx context.Context, query string, params Params) ([]Row, error) {
	result, err := e.run(ctx, query, params)
	if err != nil {
		return nil, &QueryError{Err: err}
	}

	return normalize(result), nil
}

// normalize coerces a collaborator result into []Row:
//   - []Row passes through unchanged
//   - [][]any converts element-wise
//   - []map[string]any converts each record to its values in sorted key order
//     (Go maps are unordered, so sorting is the only deterministic choice)
//   - a single Row wraps into a one-element slice
//   - nil or anything unrecognized normalizes to an empty slice
func normalize(result any) []Row {
	switch v := result.(type) {
	case nil:
		return []Row{}
	case []Row:
		if v == nil {
			return []Row{}
		}
		return v
	case [][]any:
		rows := make([]Row, 0, len(v))
		for _, r := range v {
			rows = append(rows, Row(r))
		}
		return rows
	case []map[string]any:
		rows := make([]Row, 0, len(v))
		for _, record := range v {
			keys := make([]string, 0, len(record))
			for k := range record {
				keys = append(keys, k)
			}
			sort.Strings(keys)

			row := make(Row, 0, len(record))
			for _, k := range keys {
				row = append(row, record[k])
			}
			rows = append(rows, row)
		}
		return rows
	case Row:
		return []Row{v}
	default:
		return []Row{}
	}
}
