package diffcache

import (
	"fmt"
	"time"
)

// Config holds differential cache configuration
type Config struct {
	// Path is the cache file location. When empty it is derived from the
	// row source's connection identity, so repeated runs against the same
	// logical source reuse the same persistent store.
	Path string `yaml:"path"`

	// RetentionHours bounds how long deleted-row history is kept.
	RetentionHours int `yaml:"retentionHours" default:"24"`
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.RetentionHours <= 0 {
		return ErrRetentionInvalid
	}

	return nil
}

// Retention returns the deleted-row retention window as a duration.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.RetentionHours) * time.Hour
}

// RetentionPolicy describes the retention model for diagnostics.
func (c *Config) RetentionPolicy() string {
	return fmt.Sprintf("active rows: indefinite, deleted rows: %dh", c.RetentionHours)
}
