// Package tasks defines the durable cardholder sync tasks exchanged between
// the poller and the worker.
package tasks

import (
	"fmt"

	"github.com/accessops/idsync/pkg/invenzi"
)

const (
	// TypeCardholderUpsert is the task type for creating or updating a cardholder
	TypeCardholderUpsert = "cardholder:upsert"
	// TypeCardholderRemove is the task type for handling a row that vanished
	// from the source
	TypeCardholderRemove = "cardholder:remove"

	// QueueSync is the queue all cardholder tasks flow through
	QueueSync = "sync"
)

// CardholderUpsert carries the desired state for one cardholder.
type CardholderUpsert struct {
	TraceID      string             `json:"trace_id"`
	Cardholder   invenzi.Cardholder `json:"cardholder"`
	AccessLevels []int              `json:"access_levels"`
}

// UniqueID deduplicates repeated upserts for the same person while one is
// still queued.
func (p CardholderUpsert) UniqueID() string {
	return fmt.Sprintf("%s:%s", TypeCardholderUpsert, p.Cardholder.IDNumber)
}

// CardholderRemove signals that a person's row disappeared from the source.
type CardholderRemove struct {
	TraceID  string `json:"trace_id"`
	IDNumber string `json:"id_number"`

	// EndVisit terminates an active visit instead of just deactivating.
	EndVisit bool `json:"end_visit"`
}

// UniqueID deduplicates repeated removals for the same person.
func (p CardholderRemove) UniqueID() string {
	return fmt.Sprintf("%s:%s", TypeCardholderRemove, p.IDNumber)
}
