package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate performs business-rule validation on the loaded configuration.
// It must be called after loading; Load calls it automatically.
func (c *Config) Validate() error {
	if err := c.Storage.validate(c.Database); err != nil {
		return fmt.Errorf("storage: %w", err)
	}

	if err := c.OEIS.validate(); err != nil {
		return fmt.Errorf("oeis: %w", err)
	}

	if c.Dataset.TermCount <= 0 {
		return fmt.Errorf("dataset.term_count must be > 0 (got %d)", c.Dataset.TermCount)
	}

	switch c.Metrics.Backend {
	case MetricsNone, MetricsDatadog:
	default:
		return fmt.Errorf("metrics.backend must be %q or %q (got %q)", MetricsNone, MetricsDatadog, c.Metrics.Backend)
	}

	return nil
}

func (s *StorageConfig) validate(db DatabaseConfig) error {
	switch s.Driver {
	case DriverPostgres:
		if strings.TrimSpace(db.DSN) == "" {
			return fmt.Errorf("database.dsn is required for driver %q", DriverPostgres)
		}
	case DriverSQLite:
		if strings.TrimSpace(s.SQLitePath) == "" {
			return fmt.Errorf("sqlite_path is required for driver %q", DriverSQLite)
		}
	default:
		return fmt.Errorf("driver must be %q or %q (got %q)", DriverPostgres, DriverSQLite, s.Driver)
	}
	return nil
}

func (o *OEISConfig) validate() error {
	u, err := url.Parse(o.BaseURL)
	if err != nil {
		return fmt.Errorf("base_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("base_url must be http(s) (got %q)", o.BaseURL)
	}
	if o.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be >= 0 (got %d)", o.MaxRetries)
	}
	if o.Timeout <= 0 {
		return fmt.Errorf("timeout must be > 0 (got %v)", o.Timeout)
	}
	return nil
}
