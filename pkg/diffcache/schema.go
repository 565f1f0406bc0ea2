package diffcache

import "database/sql"

// Three related tables: query metadata, active rows, deleted-row history.
// Active rows and query entries are retained indefinitely; only deleted_rows
// carries a time-based eviction policy.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS query_cache (
		query_hash TEXT PRIMARY KEY,
		query_sql  TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		total_rows INTEGER
	)`,
	`CREATE TABLE IF NOT EXISTS row_cache (
		query_hash TEXT,
		row_hash   TEXT,
		row_data   TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (query_hash, row_hash)
	)`,
	`CREATE TABLE IF NOT EXISTS deleted_rows (
		query_hash TEXT,
		row_hash   TEXT,
		row_data   TEXT,
		deleted_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (query_hash, row_hash)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_row_cache_query ON row_cache(query_hash)`,
	`CREATE INDEX IF NOT EXISTS idx_deleted_query ON deleted_rows(query_hash)`,
	`CREATE INDEX IF NOT EXISTS idx_deleted_at ON deleted_rows(deleted_at)`,
}

func initSchema(db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}

	return nil
}
