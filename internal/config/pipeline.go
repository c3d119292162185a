package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	EnvResultsTablePrefix = "VIGIL_RESULTS_TABLE_PREFIX"
	EnvResultsPageSize    = "VIGIL_RESULTS_PAGE_SIZE"
	EnvResultsMaxPages    = "VIGIL_RESULTS_MAX_PAGES"

	EnvReportsPrefix    = "VIGIL_REPORTS_PREFIX"
	EnvReportsURLExpiry = "VIGIL_REPORTS_URL_EXPIRY"

	EnvReconcilerInterval   = "VIGIL_RECONCILER_INTERVAL"
	EnvReconcilerStaleAfter = "VIGIL_RECONCILER_STALE_AFTER"
)

// ResultsConfig holds item result table naming and scan bounds.
type ResultsConfig struct {
	TablePrefix string `toml:"table_prefix"`
	PageSize    int    `toml:"page_size"`
	MaxPages    int    `toml:"max_pages"`
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *ResultsConfig) Finalize() error {
	if c.TablePrefix == "" {
		c.TablePrefix = "results_"
	}
	if c.PageSize == 0 {
		c.PageSize = 1000
	}
	if c.MaxPages == 0 {
		c.MaxPages = 1000
	}

	if v := os.Getenv(EnvResultsTablePrefix); v != "" {
		c.TablePrefix = v
	}
	if v := os.Getenv(EnvResultsPageSize); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvResultsPageSize, err)
		}
		c.PageSize = n
	}
	if v := os.Getenv(EnvResultsMaxPages); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvResultsMaxPages, err)
		}
		c.MaxPages = n
	}

	if c.PageSize < 1 || c.MaxPages < 1 {
		return fmt.Errorf("page_size and max_pages must be positive")
	}
	return nil
}

// Merge overwrites non-zero fields from overlay.
func (c *ResultsConfig) Merge(overlay *ResultsConfig) {
	if overlay.TablePrefix != "" {
		c.TablePrefix = overlay.TablePrefix
	}
	if overlay.PageSize != 0 {
		c.PageSize = overlay.PageSize
	}
	if overlay.MaxPages != 0 {
		c.MaxPages = overlay.MaxPages
	}
}

// ReportsConfig holds export artifact placement and link lifetime.
type ReportsConfig struct {
	Prefix    string `toml:"prefix"`
	URLExpiry string `toml:"url_expiry"`
}

// URLExpiryDuration returns URLExpiry as a time.Duration.
func (c *ReportsConfig) URLExpiryDuration() time.Duration {
	d, _ := time.ParseDuration(c.URLExpiry)
	return d
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *ReportsConfig) Finalize() error {
	if c.Prefix == "" {
		c.Prefix = "report/"
	}
	if c.URLExpiry == "" {
		c.URLExpiry = "300s"
	}
	if v := os.Getenv(EnvReportsPrefix); v != "" {
		c.Prefix = v
	}
	if v := os.Getenv(EnvReportsURLExpiry); v != "" {
		c.URLExpiry = v
	}

	d, err := time.ParseDuration(c.URLExpiry)
	if err != nil {
		return fmt.Errorf("invalid url_expiry: %w", err)
	}
	if d <= 0 {
		return fmt.Errorf("url_expiry must be positive")
	}
	return nil
}

// Merge overwrites non-zero fields from overlay.
func (c *ReportsConfig) Merge(overlay *ReportsConfig) {
	if overlay.Prefix != "" {
		c.Prefix = overlay.Prefix
	}
	if overlay.URLExpiry != "" {
		c.URLExpiry = overlay.URLExpiry
	}
}

// ReconcilerConfig holds the status poll cadence.
type ReconcilerConfig struct {
	Interval   string `toml:"interval"`
	StaleAfter string `toml:"stale_after"`
}

// IntervalDuration returns Interval as a time.Duration.
func (c *ReconcilerConfig) IntervalDuration() time.Duration {
	d, _ := time.ParseDuration(c.Interval)
	return d
}

// StaleAfterDuration returns StaleAfter as a time.Duration.
func (c *ReconcilerConfig) StaleAfterDuration() time.Duration {
	d, _ := time.ParseDuration(c.StaleAfter)
	return d
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *ReconcilerConfig) Finalize() error {
	if c.Interval == "" {
		c.Interval = "30s"
	}
	if c.StaleAfter == "" {
		c.StaleAfter = "1h"
	}
	if v := os.Getenv(EnvReconcilerInterval); v != "" {
		c.Interval = v
	}
	if v := os.Getenv(EnvReconcilerStaleAfter); v != "" {
		c.StaleAfter = v
	}

	if _, err := time.ParseDuration(c.Interval); err != nil {
		return fmt.Errorf("invalid interval: %w", err)
	}
	if _, err := time.ParseDuration(c.StaleAfter); err != nil {
		return fmt.Errorf("invalid stale_after: %w", err)
	}
	return nil
}

// Merge overwrites non-zero fields from overlay.
func (c *ReconcilerConfig) Merge(overlay *ReconcilerConfig) {
	if overlay.Interval != "" {
		c.Interval = overlay.Interval
	}
	if overlay.StaleAfter != "" {
		c.StaleAfter = overlay.StaleAfter
	}
}
