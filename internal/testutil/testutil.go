// Package testutil provides test utilities for idsync:
//   - Miniredis helpers for election and queue tests (miniredis.go)
//   - Seeded SQLite personnel databases standing in for the source of
//     truth (sourcedb.go)
//
// No Docker required; everything runs in-process.
package testutil
