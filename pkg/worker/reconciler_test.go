package worker

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accessops/idsync/pkg/invenzi"
)

type fakeDirectory struct {
	records map[string]*invenzi.Cardholder

	created        []*invenzi.Cardholder
	updated        []*invenzi.Cardholder
	cardsAssigned  []int64
	levelsAssigned map[int64][]int
	visitsEnded    []int64
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		records:        make(map[string]*invenzi.Cardholder),
		levelsAssigned: make(map[int64][]int),
	}
}

func (f *fakeDirectory) GetCardholderByIDNumber(_ context.Context, idNumber string, _ []string) (*invenzi.Cardholder, error) {
	ch, ok := f.records[idNumber]
	if !ok {
		return nil, nil
	}

	// Callers mutate the result, hand out a copy like the API would.
	clone := *ch

	return &clone, nil
}

func (f *fakeDirectory) CreateCardholder(_ context.Context, ch *invenzi.Cardholder) (*invenzi.Cardholder, error) {
	created := *ch
	created.CHID = int64(len(f.records) + 1)
	f.records[ch.IDNumber] = &created
	f.created = append(f.created, &created)

	return &created, nil
}

func (f *fakeDirectory) UpdateCardholder(_ context.Context, ch *invenzi.Cardholder) error {
	updated := *ch
	f.records[ch.IDNumber] = &updated
	f.updated = append(f.updated, &updated)

	return nil
}

func (f *fakeDirectory) AssignCard(_ context.Context, chid int64, card *invenzi.Card) (*invenzi.Card, error) {
	f.cardsAssigned = append(f.cardsAssigned, chid)
	if card == nil {
		card = &invenzi.Card{CardNumber: 4242}
	}

	return card, nil
}

func (f *fakeDirectory) AssignAccessLevels(_ context.Context, chid int64, levels []int) error {
	f.levelsAssigned[chid] = append(f.levelsAssigned[chid], levels...)
	return nil
}

func (f *fakeDirectory) EndVisit(_ context.Context, chid int64) error {
	f.visitsEnded = append(f.visitsEnded, chid)
	return nil
}

func newTestReconciler(dir Directory) *Reconciler {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	return NewReconciler(log, dir)
}

func TestUpsertCreatesMissingCardholder(t *testing.T) {
	dir := newFakeDirectory()
	rec := newTestReconciler(dir)

	desired := &invenzi.Cardholder{
		IDNumber:  "11122233344",
		FirstName: "Ana Souza",
		CHType:    7,
	}

	require.NoError(t, rec.Upsert(context.Background(), desired, []int{1, 2}))

	require.Len(t, dir.created, 1)
	assert.Equal(t, "Ana Souza", dir.created[0].FirstName)

	chid := dir.created[0].CHID
	assert.Equal(t, []int64{chid}, dir.cardsAssigned, "new cardholder gets a credential")
	assert.Equal(t, []int{1, 2}, dir.levelsAssigned[chid])
}

func TestUpsertConvergesExistingCardholder(t *testing.T) {
	dir := newFakeDirectory()
	dir.records["111"] = &invenzi.Cardholder{
		CHID:      9,
		IDNumber:  "111",
		FirstName: "Old Name",
		CHType:    2,
		Cards:     []invenzi.Card{{CardNumber: 5}},
		CHAccessLevels: []invenzi.AccessLevel{
			{AccessLevelID: 1},
		},
	}
	rec := newTestReconciler(dir)

	desired := &invenzi.Cardholder{
		IDNumber:  "111",
		FirstName: "New Name",
		CHType:    7,
	}

	require.NoError(t, rec.Upsert(context.Background(), desired, []int{1, 2}))

	require.Len(t, dir.updated, 1)
	assert.Equal(t, "New Name", dir.updated[0].FirstName)
	assert.Equal(t, 7, dir.updated[0].CHType)

	assert.Empty(t, dir.cardsAssigned, "existing credential is kept")
	assert.Equal(t, []int{2}, dir.levelsAssigned[9], "only the missing level is topped up")
}

func TestUpsertSkipsUpdateWhenUnchanged(t *testing.T) {
	dir := newFakeDirectory()
	dir.records["111"] = &invenzi.Cardholder{
		CHID:           9,
		IDNumber:       "111",
		FirstName:      "Ana",
		CHType:         7,
		Cards:          []invenzi.Card{{CardNumber: 5}},
		CHAccessLevels: []invenzi.AccessLevel{{AccessLevelID: 1}},
	}
	rec := newTestReconciler(dir)

	desired := &invenzi.Cardholder{
		IDNumber:  "111",
		FirstName: "Ana",
		CHType:    7,
	}

	require.NoError(t, rec.Upsert(context.Background(), desired, []int{1}))

	assert.Empty(t, dir.updated, "no-op delta must not call the API")
	assert.Empty(t, dir.cardsAssigned)
	assert.Empty(t, dir.levelsAssigned)
}

func TestUpsertAssignsCardWhenNoneHeld(t *testing.T) {
	dir := newFakeDirectory()
	dir.records["111"] = &invenzi.Cardholder{
		CHID:     9,
		IDNumber: "111",
		CHType:   7,
	}
	rec := newTestReconciler(dir)

	require.NoError(t, rec.Upsert(context.Background(), &invenzi.Cardholder{IDNumber: "111", CHType: 7}, nil))

	assert.Equal(t, []int64{9}, dir.cardsAssigned)
}

func TestUpsertDoesNotClobberUnmappedFields(t *testing.T) {
	dir := newFakeDirectory()
	dir.records["111"] = &invenzi.Cardholder{
		CHID:      9,
		IDNumber:  "111",
		FirstName: "Ana",
		CHType:    7,
		AuxText02: "registry-42",
		Cards:     []invenzi.Card{{CardNumber: 5}},
	}
	rec := newTestReconciler(dir)

	// Desired state carries no name and no aux fields.
	require.NoError(t, rec.Upsert(context.Background(), &invenzi.Cardholder{IDNumber: "111", CHType: 7}, nil))

	assert.Empty(t, dir.updated)
	assert.Equal(t, "Ana", dir.records["111"].FirstName)
	assert.Equal(t, "registry-42", dir.records["111"].AuxText02)
}

func TestRemoveDeactivates(t *testing.T) {
	dir := newFakeDirectory()
	dir.records["111"] = &invenzi.Cardholder{
		CHID:     9,
		IDNumber: "111",
		CHState:  invenzi.CHStateActive,
	}
	rec := newTestReconciler(dir)

	require.NoError(t, rec.Remove(context.Background(), "111", false))

	require.Len(t, dir.updated, 1)
	assert.Equal(t, invenzi.CHStateInactive, dir.updated[0].CHState)
	assert.Empty(t, dir.visitsEnded)
}

func TestRemoveEndsVisit(t *testing.T) {
	dir := newFakeDirectory()
	dir.records["111"] = &invenzi.Cardholder{
		CHID:     9,
		IDNumber: "111",
		CHState:  invenzi.CHStateActive,
	}
	rec := newTestReconciler(dir)

	require.NoError(t, rec.Remove(context.Background(), "111", true))

	assert.Equal(t, []int64{9}, dir.visitsEnded)
	require.Len(t, dir.updated, 1)
	assert.Equal(t, invenzi.CHStateInactive, dir.updated[0].CHState)
}

func TestRemoveAbsentCardholderIsNoop(t *testing.T) {
	dir := newFakeDirectory()
	rec := newTestReconciler(dir)

	require.NoError(t, rec.Remove(context.Background(), "999", true))

	assert.Empty(t, dir.updated)
	assert.Empty(t, dir.visitsEnded)
}

func TestRemoveAlreadyInactiveSkipsUpdate(t *testing.T) {
	dir := newFakeDirectory()
	dir.records["111"] = &invenzi.Cardholder{
		CHID:     9,
		IDNumber: "111",
		CHState:  invenzi.CHStateInactive,
	}
	rec := newTestReconciler(dir)

	require.NoError(t, rec.Remove(context.Background(), "111", false))

	assert.Empty(t, dir.updated)
}
