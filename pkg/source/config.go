package source

// Config holds source database connection configuration.
//
// The driver name must be registered with database/sql by the importing
// binary. Oracle and SQL Server sites supply their dialect-specific DSN here;
// the executor layer is dialect-oblivious.
type Config struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Driver == "" {
		return ErrDriverRequired
	}

	if c.DSN == "" {
		return ErrDSNRequired
	}

	return nil
}
