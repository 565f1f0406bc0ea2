// Package worker consumes cardholder tasks and reconciles them against the
// access-control platform.
package worker

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/accessops/idsync/pkg/invenzi"
)

// Directory is the slice of the W-Access API the reconciler needs.
// *invenzi.Client satisfies this.
type Directory interface {
	GetCardholderByIDNumber(ctx context.Context, idNumber string, includeTables []string) (*invenzi.Cardholder, error)
	CreateCardholder(ctx context.Context, ch *invenzi.Cardholder) (*invenzi.Cardholder, error)
	UpdateCardholder(ctx context.Context, ch *invenzi.Cardholder) error
	AssignCard(ctx context.Context, chid int64, card *invenzi.Card) (*invenzi.Card, error)
	AssignAccessLevels(ctx context.Context, chid int64, levels []int) error
	EndVisit(ctx context.Context, chid int64) error
}

// Reconciler converges one cardholder at a time toward its desired state.
type Reconciler struct {
	log logrus.FieldLogger
	dir Directory
}

// NewReconciler creates a cardholder reconciler
func NewReconciler(log logrus.FieldLogger, dir Directory) *Reconciler {
	return &Reconciler{
		log: log.WithField("component", "reconciler"),
		dir: dir,
	}
}

// Upsert makes the platform record for desired.IDNumber match the desired
// state, creating it when absent. Every synchronized cardholder ends up with
// at least one credential and the required access levels.
func (r *Reconciler) Upsert(ctx context.Context, desired *invenzi.Cardholder, levels []int) error {
	existing, err := r.dir.GetCardholderByIDNumber(ctx, desired.IDNumber, []string{"Cards", "CHAccessLevels"})
	if err != nil {
		return err
	}

	if existing == nil {
		return r.create(ctx, desired, levels)
	}

	return r.converge(ctx, existing, desired, levels)
}

// Remove handles a person that disappeared from the source: optionally end an
// active visit, then deactivate. The record itself is kept for audit history.
func (r *Reconciler) Remove(ctx context.Context, idNumber string, endVisit bool) error {
	existing, err := r.dir.GetCardholderByIDNumber(ctx, idNumber, nil)
	if err != nil {
		return err
	}

	if existing == nil {
		r.log.WithField("id_number", idNumber).Debug("Cardholder already absent, nothing to remove")
		return nil
	}

	if endVisit {
		if err := r.dir.EndVisit(ctx, existing.CHID); err != nil {
			return err
		}
	}

	if existing.CHState != invenzi.CHStateInactive {
		existing.CHState = invenzi.CHStateInactive
		if err := r.dir.UpdateCardholder(ctx, existing); err != nil {
			return err
		}
	}

	r.log.WithFields(logrus.Fields{
		"id_number": idNumber,
		"chid":      existing.CHID,
	}).Info("Deactivated removed cardholder")

	return nil
}

func (r *Reconciler) create(ctx context.Context, desired *invenzi.Cardholder, levels []int) error {
	created, err := r.dir.CreateCardholder(ctx, desired)
	if err != nil {
		return err
	}

	if _, err := r.dir.AssignCard(ctx, created.CHID, nil); err != nil {
		return err
	}

	if len(levels) > 0 {
		if err := r.dir.AssignAccessLevels(ctx, created.CHID, levels); err != nil {
			return err
		}
	}

	r.log.WithFields(logrus.Fields{
		"id_number": desired.IDNumber,
		"chid":      created.CHID,
	}).Info("Created cardholder with credential and access levels")

	return nil
}

func (r *Reconciler) converge(ctx context.Context, existing, desired *invenzi.Cardholder, levels []int) error {
	if applyDesired(existing, desired) {
		if err := r.dir.UpdateCardholder(ctx, existing); err != nil {
			return err
		}

		r.log.WithFields(logrus.Fields{
			"id_number": desired.IDNumber,
			"chid":      existing.CHID,
		}).Info("Updated cardholder fields")
	}

	if len(existing.Cards) == 0 {
		if _, err := r.dir.AssignCard(ctx, existing.CHID, nil); err != nil {
			return err
		}
	}

	if missing := missingLevels(existing.AccessLevelIDs(), levels); len(missing) > 0 {
		if err := r.dir.AssignAccessLevels(ctx, existing.CHID, missing); err != nil {
			return err
		}
	}

	return nil
}

// applyDesired copies desired values onto the existing record and reports
// whether anything changed. Empty desired fields mean "not mapped" and never
// clobber existing data; CHState is always authoritative.
func applyDesired(existing, desired *invenzi.Cardholder) bool {
	changed := false

	if desired.FirstName != "" && existing.FirstName != desired.FirstName {
		existing.FirstName = desired.FirstName
		changed = true
	}

	if desired.CHType != 0 && existing.CHType != desired.CHType {
		existing.CHType = desired.CHType
		changed = true
	}

	if desired.CompanyID != 0 && existing.CompanyID != desired.CompanyID {
		existing.CompanyID = desired.CompanyID
		changed = true
	}

	if existing.CHState != desired.CHState {
		existing.CHState = desired.CHState
		changed = true
	}

	for _, field := range []struct {
		dst *string
		src string
	}{
		{&existing.AuxText01, desired.AuxText01},
		{&existing.AuxText02, desired.AuxText02},
		{&existing.AuxText03, desired.AuxText03},
		{&existing.AuxText04, desired.AuxText04},
		{&existing.AuxText05, desired.AuxText05},
		{&existing.AuxText06, desired.AuxText06},
		{&existing.AuxText07, desired.AuxText07},
	} {
		if field.src != "" && *field.dst != field.src {
			*field.dst = field.src
			changed = true
		}
	}

	return changed
}

func missingLevels(current, required []int) []int {
	have := make(map[int]bool, len(current))
	for _, level := range current {
		have[level] = true
	}

	missing := make([]int, 0)
	for _, level := range required {
		if !have[level] {
			missing = append(missing, level)
		}
	}

	return missing
}
