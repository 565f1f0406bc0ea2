// Package invenzi implements a client for the Invenzi W-Access REST API
// (cardholders, cards, access levels, photos, visits).
package invenzi

import (
	"errors"
	"time"
)

// Define static errors
var (
	ErrBaseURLRequired = errors.New("invenzi base url is required")
)

// Config holds W-Access API client configuration
type Config struct {
	BaseURL  string        `yaml:"baseUrl" default:"http://localhost/W-AccessAPI/v1"`
	Username string        `yaml:"username" default:"WAccessAPI"`
	Password string        `yaml:"password"`
	Timeout  time.Duration `yaml:"timeout" default:"30s"`

	// PageLimit is the page size used when listing all cardholders.
	PageLimit int `yaml:"pageLimit" default:"2000"`
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return ErrBaseURLRequired
	}

	if c.PageLimit <= 0 {
		c.PageLimit = 2000
	}

	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}

	return nil
}
