package sync

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/accessops/idsync/pkg/invenzi"
	"github.com/accessops/idsync/pkg/source"
)

// Define static errors
var (
	ErrRowTooShort       = errors.New("source row has fewer columns than the mapping requires")
	ErrEmptyIDNumber     = errors.New("source row has an empty id number")
	ErrUnknownClassifier = errors.New("no cardholder type mapped for classifier")
)

// Mapper converts positional source rows into desired cardholder state.
type Mapper struct {
	cfg *MappingConfig
}

// NewMapper creates a row mapper for the given mapping rules.
func NewMapper(cfg *MappingConfig) *Mapper {
	return &Mapper{cfg: cfg}
}

// IDNumber extracts the external identity number from a row.
func (m *Mapper) IDNumber(row source.Row) (string, error) {
	id, err := column(row, m.cfg.IDNumberColumn)
	if err != nil {
		return "", err
	}

	if id == "" {
		return "", ErrEmptyIDNumber
	}

	return id, nil
}

// MapRow builds the desired cardholder state for one source row. Rows whose
// classifier has no mapped cardholder type return ErrUnknownClassifier and
// should be skipped, not failed.
func (m *Mapper) MapRow(row source.Row) (*invenzi.Cardholder, error) {
	id, err := m.IDNumber(row)
	if err != nil {
		return nil, err
	}

	ch := &invenzi.Cardholder{
		IDNumber:  id,
		CHState:   invenzi.CHStateActive,
		CompanyID: m.cfg.CompanyID,
	}

	if m.cfg.NameColumn >= 0 {
		name, err := column(row, m.cfg.NameColumn)
		if err != nil {
			return nil, err
		}
		ch.FirstName = name
	}

	if m.cfg.ClassifierColumn >= 0 {
		classifier, err := column(row, m.cfg.ClassifierColumn)
		if err != nil {
			return nil, err
		}

		chType, ok := m.cfg.CHTypes[strings.ToUpper(strings.TrimSpace(classifier))]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownClassifier, classifier)
		}
		ch.CHType = chType
	}

	if m.cfg.StateColumn >= 0 && len(m.cfg.ActiveStates) > 0 {
		state, err := column(row, m.cfg.StateColumn)
		if err != nil {
			return nil, err
		}

		if !m.isActive(state) {
			ch.CHState = invenzi.CHStateInactive
		}
	}

	for field, idx := range m.cfg.AuxColumns {
		value, err := column(row, idx)
		if err != nil {
			return nil, err
		}
		setAuxField(ch, field, value)
	}

	return ch, nil
}

func (m *Mapper) isActive(state string) bool {
	for _, active := range m.cfg.ActiveStates {
		if strings.EqualFold(strings.TrimSpace(state), active) {
			return true
		}
	}

	return false
}

func column(row source.Row, idx int) (string, error) {
	if idx >= len(row) {
		return "", fmt.Errorf("%w: need column %d, row has %d", ErrRowTooShort, idx, len(row))
	}

	return stringify(row[idx]), nil
}

// stringify renders a scalar the same way whether it came straight from the
// driver or through the cache's JSON round trip (which turns every number
// into float64).
func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case []byte:
		return strings.TrimSpace(string(v))
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	case bool:
		return strconv.FormatBool(v)
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", v))
	}
}

func setAuxField(ch *invenzi.Cardholder, field, value string) {
	switch field {
	case "AuxText01":
		ch.AuxText01 = value
	case "AuxText02":
		ch.AuxText02 = value
	case "AuxText03":
		ch.AuxText03 = value
	case "AuxText04":
		ch.AuxText04 = value
	case "AuxText05":
		ch.AuxText05 = value
	case "AuxText06":
		ch.AuxText06 = value
	case "AuxText07":
		ch.AuxText07 = value
	}
}
