// Package diffcache implements a persistent differential cache: it executes
// a query through a row source on every poll cycle, diffs the result against
// the previous cycle's snapshot, and returns only the delta. State survives
// process restarts, so "row deleted from source" is distinguishable from
// "row never seen".
package diffcache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	// The persistent store is SQLite by construction.
	_ "github.com/mattn/go-sqlite3"

	"github.com/accessops/idsync/pkg/source"
)

// timeLayout matches SQLite's datetime() text format. All timestamps are UTC
// so lexicographic comparison equals chronological comparison.
const timeLayout = "2006-01-02 15:04:05"

// RowSource executes a query and returns normalized positional rows.
// *source.Executor satisfies this.
type RowSource interface {
	Execute(ctx context.Context, query string, params source.Params) ([]source.Row, error)
}

// Cache owns the persistent store and computes deltas between consecutive
// executions of the same query.
//
// The store is opened per logical operation to keep multi-step operations
// transactionally simple. Operations are not safe for concurrent invocation
// against the same store from multiple processes; single-writer deployment
// is enforced externally (see pkg/scheduler leader election).
type Cache struct {
	log       logrus.FieldLogger
	src       RowSource
	path      string
	retention time.Duration
	policy    string
}

// New creates a differential cache over the given row source. The source may
// be nil for store-only administration (stats, cleanup, clear), in which case
// an explicit path is required.
func New(log logrus.FieldLogger, src RowSource, cfg *Config) (*Cache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	path := cfg.Path
	if path == "" {
		if src == nil {
			return nil, ErrSourceRequired
		}
		path = derivePath(src)
	}

	return &Cache{
		log:       log.WithField("component", "diffcache"),
		src:       src,
		path:      path,
		retention: cfg.Retention(),
		policy:    cfg.RetentionPolicy(),
	}, nil
}

// Path returns the cache file location.
func (c *Cache) Path() string {
	return c.path
}

// derivePath builds a stable cache file name from the row source's
// connection identity, so repeated runs against the same logical source reuse
// the same store without manual configuration.
func derivePath(src RowSource) string {
	identity := ""
	if ident, ok := src.(interface{ Identity() string }); ok {
		identity = ident.Identity()
	}
	if identity == "" {
		identity = fmt.Sprintf("%T", src)
	}

	sum := sha256.Sum256([]byte(identity))

	return fmt.Sprintf("idsync_cache_%s.db", hex.EncodeToString(sum[:])[:8])
}

// ProcessSelect executes the query against the live source, diffs the result
// against the prior snapshot, persists the new snapshot, and returns the
// delta. Rows whose content is unchanged are excluded from both sets: the
// cache tracks presence and absence of exact row content, so a column-value
// change surfaces as one removed plus one added, never as an update.
func (c *Cache) ProcessSelect(ctx context.Context, query string, params source.Params) (*Result, error) {
	// Retention cleanup runs unconditionally on every call. Best effort: a
	// cleanup hiccup must never block the diff.
	if purged, err := c.CleanupExpired(ctx); err != nil {
		c.log.WithError(err).Warn("Automatic retention cleanup failed")
	} else if purged > 0 {
		c.log.WithField("purged", purged).Debug("Purged expired deleted rows")
	}

	if c.src == nil {
		return nil, ErrSourceRequired
	}

	queryHash := QueryHash(query, params)

	// Source failures propagate un-swallowed so callers can distinguish
	// "the query failed" from "the cache is broken".
	newRows, err := c.src.Execute(ctx, query, params)
	if err != nil {
		return nil, err
	}

	newByHash := make(map[string]source.Row, len(newRows))
	newOrder := make([]string, 0, len(newRows))
	for _, row := range newRows {
		h := RowHash(row)
		if _, seen := newByHash[h]; !seen {
			newOrder = append(newOrder, h)
		}
		newByHash[h] = row
	}

	db, err := c.openStore()
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()

	exists, err := entryExists(ctx, db, queryHash)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC().Format(timeLayout)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &StorageError{Op: "begin", Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	if !exists {
		return c.processFirstRun(ctx, tx, queryHash, query, now, newOrder, newByHash, len(newRows))
	}

	return c.processDiff(ctx, tx, queryHash, now, newOrder, newByHash, len(newRows))
}

func (c *Cache) processFirstRun(ctx context.Context, tx *sql.Tx, queryHash, query, now string, newOrder []string, newByHash map[string]source.Row, totalNew int) (*Result, error) {
	if _, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO query_cache (query_hash, query_sql, created_at, updated_at, total_rows)
		VALUES (?, ?, ?, ?, ?)`,
		queryHash, query, now, now, len(newByHash),
	); err != nil {
		return nil, &StorageError{Op: "insert query entry", Err: err}
	}

	if err := insertActiveRows(ctx, tx, queryHash, newOrder, newByHash, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, &StorageError{Op: "commit", Err: err}
	}

	added := rowsInOrder(newOrder, newByHash)

	c.log.WithFields(logrus.Fields{
		"query_hash": queryHash[:12],
		"rows":       len(added),
	}).Debug("First execution for query, cached full result set")

	return &Result{
		Data:     added,
		Added:    added,
		Removed:  []source.Row{},
		TotalNew: totalNew,
		CacheHit: false,
		Reason:   ReasonFirstRun,
	}, nil
}

func (c *Cache) processDiff(ctx context.Context, tx *sql.Tx, queryHash, now string, newOrder []string, newByHash map[string]source.Row, totalNew int) (*Result, error) {
	cachedByHash, cachedOrder, err := loadActiveRows(ctx, tx, queryHash)
	if err != nil {
		return nil, err
	}

	addedHashes := make([]string, 0)
	for _, h := range newOrder {
		if _, ok := cachedByHash[h]; !ok {
			addedHashes = append(addedHashes, h)
		}
	}

	removedHashes := make([]string, 0)
	for _, h := range cachedOrder {
		if _, ok := newByHash[h]; !ok {
			removedHashes = append(removedHashes, h)
		}
	}

	// Removed rows move to history, they are not discarded. Unchanged rows
	// are left untouched: no update, no re-timestamp.
	if err := moveToDeleted(ctx, tx, queryHash, removedHashes, cachedByHash, now); err != nil {
		return nil, err
	}

	if err := insertActiveRows(ctx, tx, queryHash, addedHashes, newByHash, now); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE query_cache SET updated_at = ?, total_rows = ? WHERE query_hash = ?`,
		now, len(newByHash), queryHash,
	); err != nil {
		return nil, &StorageError{Op: "update query entry", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return nil, &StorageError{Op: "commit", Err: err}
	}

	added := rowsInOrder(addedHashes, newByHash)
	removed := rowsInOrder(removedHashes, cachedByHash)

	c.log.WithFields(logrus.Fields{
		"query_hash": queryHash[:12],
		"cached":     len(cachedByHash),
		"new":        len(newByHash),
		"added":      len(added),
		"removed":    len(removed),
	}).Debug("Computed delta against prior snapshot")

	return &Result{
		Data:        added,
		Added:       added,
		Removed:     removed,
		TotalNew:    totalNew,
		TotalCached: len(cachedByHash),
		CacheHit:    true,
		Reason:      ReasonDiffed,
	}, nil
}

// GetAllData returns every currently active row for the query exactly as
// last observed. If the query has never been cached it transparently executes
// the query and returns the raw result; this operation never writes state.
func (c *Cache) GetAllData(ctx context.Context, query string, params source.Params) ([]source.Row, error) {
	queryHash := QueryHash(query, params)

	db, err := c.openStore()
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()

	exists, err := entryExists(ctx, db, queryHash)
	if err != nil {
		return nil, err
	}

	if !exists {
		if c.src == nil {
			return nil, ErrSourceRequired
		}
		return c.src.Execute(ctx, query, params)
	}

	rows, err := db.QueryContext(ctx, `SELECT row_data FROM row_cache WHERE query_hash = ?`, queryHash)
	if err != nil {
		return nil, &StorageError{Op: "load snapshot", Err: err}
	}
	defer func() { _ = rows.Close() }()

	result := make([]source.Row, 0)
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, &StorageError{Op: "scan snapshot", Err: err}
		}

		row, err := unmarshalRow(data)
		if err != nil {
			return nil, err
		}
		result = append(result, row)
	}

	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "iterate snapshot", Err: err}
	}

	return result, nil
}

// GetDeletedRecords returns deleted-row history for the query, newest first.
// A positive "within" restricts results to rows deleted inside that window.
func (c *Cache) GetDeletedRecords(ctx context.Context, query string, params source.Params, within time.Duration) ([]DeletedRecord, error) {
	queryHash := QueryHash(query, params)

	db, err := c.openStore()
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()

	stmt := `SELECT row_data, deleted_at FROM deleted_rows WHERE query_hash = ? ORDER BY deleted_at DESC`
	args := []any{queryHash}

	if within > 0 {
		stmt = `SELECT row_data, deleted_at FROM deleted_rows
			WHERE query_hash = ? AND deleted_at > ?
			ORDER BY deleted_at DESC`
		cutoff := time.Now().UTC().Add(-within).Format(timeLayout)
		args = append(args, cutoff)
	}

	rows, err := db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, &StorageError{Op: "load deleted rows", Err: err}
	}
	defer func() { _ = rows.Close() }()

	records := make([]DeletedRecord, 0)
	for rows.Next() {
		var data, deletedAt string
		if err := rows.Scan(&data, &deletedAt); err != nil {
			return nil, &StorageError{Op: "scan deleted row", Err: err}
		}

		row, err := unmarshalRow(data)
		if err != nil {
			return nil, err
		}

		ts, err := time.ParseInLocation(timeLayout, deletedAt, time.UTC)
		if err != nil {
			return nil, &StorageError{Op: "parse deletion timestamp", Err: err}
		}

		records = append(records, DeletedRecord{Row: row, DeletedAt: ts})
	}

	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "iterate deleted rows", Err: err}
	}

	return records, nil
}

// CleanupExpired purges deleted rows older than the retention window across
// all queries. Idempotent and safe on an empty store.
func (c *Cache) CleanupExpired(ctx context.Context) (int64, error) {
	db, err := c.openStore()
	if err != nil {
		return 0, err
	}
	defer func() { _ = db.Close() }()

	cutoff := time.Now().UTC().Add(-c.retention).Format(timeLayout)

	res, err := db.ExecContext(ctx, `DELETE FROM deleted_rows WHERE deleted_at < ?`, cutoff)
	if err != nil {
		return 0, &StorageError{Op: "retention cleanup", Err: err}
	}

	purged, err := res.RowsAffected()
	if err != nil {
		return 0, &StorageError{Op: "retention cleanup count", Err: err}
	}

	return purged, nil
}

// Clear removes all cached state for all queries: query entries, active rows
// and deleted-row history, atomically, then compacts the file and verifies
// zero residual rows. A non-zero residue is surfaced as ErrResidualRows.
func (c *Cache) Clear(ctx context.Context) error {
	db, err := c.openStore()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	before, err := countAll(ctx, db)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return &StorageError{Op: "begin", Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"row_cache", "deleted_rows", "query_cache"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return &StorageError{Op: "clear " + table, Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &StorageError{Op: "commit clear", Err: err}
	}

	// Compaction runs outside the transaction; SQLite forbids VACUUM inside one.
	if _, err := db.ExecContext(ctx, "VACUUM"); err != nil {
		return &StorageError{Op: "vacuum", Err: err}
	}

	after, err := countAll(ctx, db)
	if err != nil {
		return err
	}

	if after != 0 {
		return fmt.Errorf("%w: %d rows remain", ErrResidualRows, after)
	}

	c.log.WithFields(logrus.Fields{
		"removed": before,
		"path":    c.path,
	}).Info("Cache cleared completely")

	return nil
}

// Stats returns persistent cache statistics.
func (c *Cache) Stats(ctx context.Context) (*Stats, error) {
	db, err := c.openStore()
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()

	stats := &Stats{
		StorageLocation: c.path,
		RetentionPolicy: c.policy,
	}

	if err := db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(total_rows), 0) FROM query_cache`,
	).Scan(&stats.TotalQueries, &stats.TotalActiveRows); err != nil {
		return nil, &StorageError{Op: "query stats", Err: err}
	}

	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM deleted_rows`).Scan(&stats.TotalDeletedRows); err != nil {
		return nil, &StorageError{Op: "deleted stats", Err: err}
	}

	cutoff := time.Now().UTC().Add(-c.retention).Format(timeLayout)
	if err := db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(MIN(deleted_at), ''), COALESCE(MAX(deleted_at), '')
		FROM deleted_rows WHERE deleted_at > ?`, cutoff,
	).Scan(&stats.RecentDeletedRows, &stats.OldestDeleted, &stats.NewestDeleted); err != nil {
		return nil, &StorageError{Op: "recent deleted stats", Err: err}
	}

	if info, err := os.Stat(c.path); err == nil {
		stats.StorageSizeMB = math.Round(float64(info.Size())/(1024*1024)*100) / 100
	}

	return stats, nil
}

func (c *Cache) openStore() (*sql.DB, error) {
	db, err := sql.Open("sqlite3", c.path)
	if err != nil {
		return nil, &StorageError{Op: "open", Err: err}
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, &StorageError{Op: "init schema", Err: err}
	}

	return db, nil
}

func entryExists(ctx context.Context, db *sql.DB, queryHash string) (bool, error) {
	var count int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM query_cache WHERE query_hash = ?`, queryHash).Scan(&count); err != nil {
		return false, &StorageError{Op: "check query entry", Err: err}
	}

	return count > 0, nil
}

func loadActiveRows(ctx context.Context, tx *sql.Tx, queryHash string) (map[string]source.Row, []string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT row_hash, row_data FROM row_cache WHERE query_hash = ?`, queryHash)
	if err != nil {
		return nil, nil, &StorageError{Op: "load active rows", Err: err}
	}
	defer func() { _ = rows.Close() }()

	byHash := make(map[string]source.Row)
	order := make([]string, 0)
	for rows.Next() {
		var hash, data string
		if err := rows.Scan(&hash, &data); err != nil {
			return nil, nil, &StorageError{Op: "scan active row", Err: err}
		}

		row, err := unmarshalRow(data)
		if err != nil {
			return nil, nil, err
		}

		byHash[hash] = row
		order = append(order, hash)
	}

	if err := rows.Err(); err != nil {
		return nil, nil, &StorageError{Op: "iterate active rows", Err: err}
	}

	return byHash, order, nil
}

func insertActiveRows(ctx context.Context, tx *sql.Tx, queryHash string, hashes []string, byHash map[string]source.Row, now string) error {
	if len(hashes) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO row_cache (query_hash, row_hash, row_data, created_at)
		VALUES (?, ?, ?, ?)`)
	if err != nil {
		return &StorageError{Op: "prepare insert", Err: err}
	}
	defer func() { _ = stmt.Close() }()

	for _, h := range hashes {
		data, err := marshalRow(byHash[h])
		if err != nil {
			return err
		}

		if _, err := stmt.ExecContext(ctx, queryHash, h, data, now); err != nil {
			return &StorageError{Op: "insert active row", Err: err}
		}
	}

	return nil
}

func moveToDeleted(ctx context.Context, tx *sql.Tx, queryHash string, hashes []string, byHash map[string]source.Row, now string) error {
	if len(hashes) == 0 {
		return nil
	}

	insert, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO deleted_rows (query_hash, row_hash, row_data, deleted_at)
		VALUES (?, ?, ?, ?)`)
	if err != nil {
		return &StorageError{Op: "prepare move", Err: err}
	}
	defer func() { _ = insert.Close() }()

	remove, err := tx.PrepareContext(ctx, `DELETE FROM row_cache WHERE query_hash = ? AND row_hash = ?`)
	if err != nil {
		return &StorageError{Op: "prepare delete", Err: err}
	}
	defer func() { _ = remove.Close() }()

	for _, h := range hashes {
		data, err := marshalRow(byHash[h])
		if err != nil {
			return err
		}

		if _, err := insert.ExecContext(ctx, queryHash, h, data, now); err != nil {
			return &StorageError{Op: "insert deleted row", Err: err}
		}

		if _, err := remove.ExecContext(ctx, queryHash, h); err != nil {
			return &StorageError{Op: "remove active row", Err: err}
		}
	}

	return nil
}

func countAll(ctx context.Context, db *sql.DB) (int64, error) {
	var total int64
	for _, table := range []string{"query_cache", "row_cache", "deleted_rows"} {
		var count int64
		if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
			return 0, &StorageError{Op: "count " + table, Err: err}
		}
		total += count
	}

	return total, nil
}

func rowsInOrder(hashes []string, byHash map[string]source.Row) []source.Row {
	rows := make([]source.Row, 0, len(hashes))
	for _, h := range hashes {
		rows = append(rows, byHash[h])
	}

	return rows
}

func marshalRow(row source.Row) (string, error) {
	data, err := json.Marshal(row)
	if err != nil {
		return "", &StorageError{Op: "serialize row", Err: err}
	}

	return string(data), nil
}

func unmarshalRow(data string) (source.Row, error) {
	var row source.Row
	if err := json.Unmarshal([]byte(data), &row); err != nil {
		return nil, &StorageError{Op: "deserialize row", Err: err}
	}

	return row, nil
}
