// Package sync polls the personnel source through the differential cache and
// turns row deltas into durable cardholder tasks.
package sync

import (
	"errors"
	"fmt"
	"time"
)

// Define static errors
var (
	ErrQueryRequired         = errors.New("sync query sql is required")
	ErrIDColumnRequired      = errors.New("id number column index is required")
	ErrClassifierMapRequired = errors.New("classifier to cardholder type map is required when a classifier column is set")
	ErrUnknownAuxField       = errors.New("unknown auxiliary field name")
)

// auxFields are the site-specific free-text fields the platform exposes.
//
//nolint:gochecknoglobals // static lookup table
var auxFields = map[string]bool{
	"AuxText01": true,
	"AuxText02": true,
	"AuxText03": true,
	"AuxText04": true,
	"AuxText05": true,
	"AuxText06": true,
	"AuxText07": true,
}

// Config holds the reconciliation service configuration
type Config struct {
	// Interval between poll cycles
	Interval time.Duration `yaml:"interval" default:"30s"`

	// FullResyncSchedule is an optional cron expression. When it fires the
	// cache is cleared so the next cycle reprocesses every source row.
	FullResyncSchedule string `yaml:"fullResyncSchedule"`

	// EndVisitOnRemoval terminates active visits instead of only
	// deactivating removed cardholders.
	EndVisitOnRemoval bool `yaml:"endVisitOnRemoval"`

	// AccessLevels every synchronized cardholder must hold.
	AccessLevels []int `yaml:"accessLevels"`

	Query   QueryConfig   `yaml:"query"`
	Mapping MappingConfig `yaml:"mapping"`
}

// QueryConfig describes the source query for one site.
type QueryConfig struct {
	// SQL is a text/template body rendered with Vars before execution.
	SQL    string         `yaml:"sql"`
	Params map[string]any `yaml:"params"`
	Vars   map[string]any `yaml:"vars"`
}

// MappingConfig maps positional source columns onto cardholder fields.
// Optional columns use -1 for "not mapped".
type MappingConfig struct {
	IDNumberColumn   int `yaml:"idNumberColumn"`
	NameColumn       int `yaml:"nameColumn" default:"-1"`
	ClassifierColumn int `yaml:"classifierColumn" default:"-1"`
	StateColumn      int `yaml:"stateColumn" default:"-1"`

	// AuxColumns maps platform aux field names (AuxText01..AuxText07) to
	// source column indexes.
	AuxColumns map[string]int `yaml:"auxColumns"`

	// CHTypes maps classifier values (e.g. MEMBRO, SERVIDOR) to cardholder
	// types. Rows with an unmapped classifier are skipped.
	CHTypes map[string]int `yaml:"chTypes"`

	// ActiveStates lists the source state values that mean "active". Empty
	// means every row is treated as active.
	ActiveStates []string `yaml:"activeStates"`

	CompanyID int `yaml:"companyId"`
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Interval <= 0 {
		c.Interval = 30 * time.Second
	}

	if c.Query.SQL == "" {
		return ErrQueryRequired
	}

	return c.Mapping.Validate()
}

// Validate checks if the mapping configuration is valid
func (m *MappingConfig) Validate() error {
	if m.IDNumberColumn < 0 {
		return ErrIDColumnRequired
	}

	if m.ClassifierColumn >= 0 && len(m.CHTypes) == 0 {
		return ErrClassifierMapRequired
	}

	for field := range m.AuxColumns {
		if !auxFields[field] {
			return fmt.Errorf("%w: %s", ErrUnknownAuxField, field)
		}
	}

	return nil
}
