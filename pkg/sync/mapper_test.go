package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accessops/idsync/pkg/invenzi"
	"github.com/accessops/idsync/pkg/source"
)

func testMapping() *MappingConfig {
	return &MappingConfig{
		IDNumberColumn:   0,
		NameColumn:       1,
		ClassifierColumn: 2,
		StateColumn:      3,
		AuxColumns: map[string]int{
			"AuxText02": 4,
			"AuxText07": 5,
		},
		CHTypes: map[string]int{
			"MEMBRO":   7,
			"SERVIDOR": 2,
		},
		ActiveStates: []string{"ATIVO"},
		CompanyID:    21,
	}
}

func TestMapRow(t *testing.T) {
	mapper := NewMapper(testMapping())

	ch, err := mapper.MapRow(source.Row{"11122233344", "Ana Souza", "MEMBRO", "ATIVO", "matr-42", "regime-x"})
	require.NoError(t, err)

	assert.Equal(t, "11122233344", ch.IDNumber)
	assert.Equal(t, "Ana Souza", ch.FirstName)
	assert.Equal(t, 7, ch.CHType)
	assert.Equal(t, invenzi.CHStateActive, ch.CHState)
	assert.Equal(t, 21, ch.CompanyID)
	assert.Equal(t, "matr-42", ch.AuxText02)
	assert.Equal(t, "regime-x", ch.AuxText07)
}

func TestMapRowInactiveState(t *testing.T) {
	mapper := NewMapper(testMapping())

	ch, err := mapper.MapRow(source.Row{"111", "Ana", "SERVIDOR", "AFASTADO", "", ""})
	require.NoError(t, err)

	assert.Equal(t, invenzi.CHStateInactive, ch.CHState)
	assert.Equal(t, 2, ch.CHType)
}

func TestMapRowClassifierNormalization(t *testing.T) {
	mapper := NewMapper(testMapping())

	ch, err := mapper.MapRow(source.Row{"111", "Ana", "  membro ", "ATIVO", "", ""})
	require.NoError(t, err)

	assert.Equal(t, 7, ch.CHType)
}

func TestMapRowUnknownClassifier(t *testing.T) {
	mapper := NewMapper(testMapping())

	_, err := mapper.MapRow(source.Row{"111", "Ana", "TERCEIRIZADO", "ATIVO", "", ""})
	require.ErrorIs(t, err, ErrUnknownClassifier)
}

func TestMapRowEmptyIDNumber(t *testing.T) {
	mapper := NewMapper(testMapping())

	_, err := mapper.MapRow(source.Row{"", "Ana", "MEMBRO", "ATIVO", "", ""})
	require.ErrorIs(t, err, ErrEmptyIDNumber)

	_, err = mapper.MapRow(source.Row{nil, "Ana", "MEMBRO", "ATIVO", "", ""})
	require.ErrorIs(t, err, ErrEmptyIDNumber)
}

func TestMapRowTooShort(t *testing.T) {
	mapper := NewMapper(testMapping())

	_, err := mapper.MapRow(source.Row{"111", "Ana"})
	require.ErrorIs(t, err, ErrRowTooShort)
}

func TestIDNumberSurvivesJSONRoundTrip(t *testing.T) {
	// Rows read back from the cache carry numbers as float64; a numeric
	// identity column must not come out in scientific notation.
	mapper := NewMapper(&MappingConfig{IDNumberColumn: 0, CompanyID: 1})

	id, err := mapper.IDNumber(source.Row{float64(11122233344)})
	require.NoError(t, err)
	assert.Equal(t, "11122233344", id)
}

func TestStringify(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  string
	}{
		{"nil", nil, ""},
		{"string trimmed", "  x  ", "x"},
		{"bytes", []byte("abc"), "abc"},
		{"int64", int64(42), "42"},
		{"float64 integral", float64(1234567), "1234567"},
		{"float64 fractional", 1.5, "1.5"},
		{"bool", true, "true"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stringify(tt.value))
		})
	}
}
