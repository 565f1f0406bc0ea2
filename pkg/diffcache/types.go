package diffcache

import (
	"time"

	"github.com/accessops/idsync/pkg/source"
)

// Reasons attached to ProcessSelect results for diagnostics.
const (
	// ReasonFirstRun indicates the query had never been cached before
	ReasonFirstRun = "first_run"
	// ReasonDiffed indicates the result was diffed against the prior snapshot
	ReasonDiffed = "diffed_against_snapshot"
)

// Result is the delta between the current poll and the prior snapshot of the
// same query.
//
// Data carries only the added rows: "changes" means newly appearing rows, by
// design. Callers needing the full snapshot use GetAllData. Removals are
// surfaced separately because they typically drive a different downstream
// action than additions.
type Result struct {
	Data    []source.Row
	Added   []source.Row
	Removed []source.Row

	TotalNew    int
	TotalCached int
	CacheHit    bool
	Reason      string
}

// DeletedRecord is a row that disappeared from the source in a prior poll,
// retained temporarily for audit and history.
type DeletedRecord struct {
	Row       source.Row
	DeletedAt time.Time
}

// Stats summarizes persistent cache state.
type Stats struct {
	TotalQueries      int64   `json:"total_queries"`
	TotalActiveRows   int64   `json:"total_active_rows"`
	TotalDeletedRows  int64   `json:"total_deleted_rows"`
	RecentDeletedRows int64   `json:"recent_deleted_rows"`
	OldestDeleted     string  `json:"oldest_deleted,omitempty"`
	NewestDeleted     string  `json:"newest_deleted,omitempty"`
	StorageSizeMB     float64 `json:"storage_size_mb"`
	StorageLocation   string  `json:"storage_location"`
	RetentionPolicy   string  `json:"retention_policy"`
}
