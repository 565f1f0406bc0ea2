package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics must be global for registration
var (
	// SyncCyclesTotal tracks completed poll cycles by outcome
	SyncCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "idsync_sync_cycles_total",
			Help: "Total number of sync poll cycles",
		},
		[]string{"status"}, // status: success, source_error, cache_error
	)

	// SyncCycleDuration measures poll cycle duration in seconds
	SyncCycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "idsync_sync_cycle_duration_seconds",
			Help:    "Poll cycle duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~200s
		},
	)

	// RowsDeltaTotal counts delta rows surfaced by the differential cache
	RowsDeltaTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "idsync_rows_delta_total",
			Help: "Delta rows surfaced by the differential cache",
		},
		[]string{"kind"}, // kind: added, removed
	)

	// CacheActiveRows tracks the number of active rows in the cache store
	CacheActiveRows = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "idsync_cache_active_rows",
			Help: "Active rows currently held by the differential cache",
		},
	)

	// CacheDeletedRows tracks retained deleted-row history size
	CacheDeletedRows = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "idsync_cache_deleted_rows",
			Help: "Deleted rows retained by the differential cache",
		},
	)

	// TasksTotal tracks cardholder tasks processed by the worker
	TasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "idsync_tasks_total",
			Help: "Cardholder sync tasks processed",
		},
		[]string{"type", "status"}, // status: success, failed, skipped
	)

	// VendorRequestsTotal tracks calls to the access-control platform API
	VendorRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "idsync_vendor_requests_total",
			Help: "HTTP requests issued to the access-control API",
		},
		[]string{"endpoint", "status"},
	)
)

// RecordSyncCycle records a completed poll cycle
func RecordSyncCycle(status string, duration time.Duration) {
	SyncCyclesTotal.WithLabelValues(status).Inc()
	SyncCycleDuration.Observe(duration.Seconds())
}

// RecordDelta records delta counts from one poll cycle
func RecordDelta(added, removed int) {
	RowsDeltaTotal.WithLabelValues("added").Add(float64(added))
	RowsDeltaTotal.WithLabelValues("removed").Add(float64(removed))
}

// RecordCacheSize records current cache store sizes
func RecordCacheSize(activeRows, deletedRows int64) {
	CacheActiveRows.Set(float64(activeRows))
	CacheDeletedRows.Set(float64(deletedRows))
}

// RecordTask records a processed cardholder task
func RecordTask(taskType, status string) {
	TasksTotal.WithLabelValues(taskType, status).Inc()
}

// RecordVendorRequest records an access-control API request
func RecordVendorRequest(endpoint, status string) {
	VendorRequestsTotal.WithLabelValues(endpoint, status).Inc()
}
