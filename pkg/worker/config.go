package worker

import (
	"errors"
)

// ErrInvalidConcurrency is returned when concurrency is not positive
var ErrInvalidConcurrency = errors.New("concurrency must be positive")

// Config contains worker-specific settings
type Config struct {
	// Concurrency bounds simultaneous vendor API calls; the access-control
	// platform tolerates little parallel load.
	Concurrency int `yaml:"concurrency" default:"5"`
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Concurrency <= 0 {
		return ErrInvalidConcurrency
	}

	return nil
}
