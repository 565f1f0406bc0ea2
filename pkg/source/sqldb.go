package source

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"
)

// DBAdapter adapts a database/sql handle to the QueryExecutor capability.
// Any driver registered with database/sql (Oracle, SQL Server, SQLite in
// tests) plugs in through this one adapter.
type DBAdapter struct {
	db     *sql.DB
	driver string
	dsn    string
}

// NewDBAdapter opens a database handle for the configured driver and DSN.
// The handle is lazy; no connection is made until the first query.
func NewDBAdapter(cfg *Config) (*DBAdapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open source database: %w", err)
	}

	return &DBAdapter{
		db:     db,
		driver: cfg.Driver,
		dsn:    cfg.DSN,
	}, nil
}

// Identity returns a stable connection-identifying string.
func (a *DBAdapter) Identity() string {
	return fmt.Sprintf("driver=%s|dsn=%s", a.driver, a.dsn)
}

// Ping verifies connectivity to the source database.
func (a *DBAdapter) Ping(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

// Close releases the underlying database handle.
func (a *DBAdapter) Close() error {
	return a.db.Close()
}

// ExecuteQuery runs a parameterized SELECT and returns positional rows.
// Named parameters are bound through sql.Named in sorted key order.
func (a *DBAdapter) ExecuteQuery(ctx context.Context, query string, params Params) (any, error) {
	args := make([]any, 0, len(params))
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, sql.Named(k, params[k]))
	}

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	result := make([]Row, 0)
	for rows.Next() {
		values := make([]any, len(cols))
		scanTargets := make([]any, len(cols))
		for i := range values {
			scanTargets[i] = &values[i]
		}

		if err := rows.Scan(scanTargets...); err != nil {
			return nil, err
		}

		row := make(Row, len(cols))
		for i, v := range values {
			row[i] = normalizeScalar(v)
		}
		result = append(result, row)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// normalizeScalar converts driver-specific scan types into the small scalar
// vocabulary the cache layer content-addresses on.
func normalizeScalar(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case time.Time:
		return t.UTC()
	default:
		return v
	}
}

var _ QueryExecutor = (*DBAdapter)(nil)
