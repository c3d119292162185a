package config

import (
	"fmt"
	"os"
	"time"

	"github.com/JaimeStill/vigil/pkg/database"
	"github.com/JaimeStill/vigil/pkg/storage"
	"github.com/pelletier/go-toml/v2"
)

const (
	BaseConfigFile       = "config.toml"
	OverlayConfigPattern = "config.%s.toml"

	EnvVigilEnv             = "VIGIL_ENV"
	EnvVigilShutdownTimeout = "VIGIL_SHUTDOWN_TIMEOUT"
	EnvVigilVersion         = "VIGIL_VERSION"
)

var databaseEnv = &database.Env{
	Host:            "VIGIL_DB_HOST",
	Port:            "VIGIL_DB_PORT",
	Name:            "VIGIL_DB_NAME",
	User:            "VIGIL_DB_USER",
	Password:        "VIGIL_DB_PASSWORD",
	SSLMode:         "VIGIL_DB_SSL_MODE",
	MaxOpenConns:    "VIGIL_DB_MAX_OPEN_CONNS",
	MaxIdleConns:    "VIGIL_DB_MAX_IDLE_CONNS",
	ConnMaxLifetime: "VIGIL_DB_CONN_MAX_LIFETIME",
	ConnTimeout:     "VIGIL_DB_CONN_TIMEOUT",
}

var storageEnv = &storage.Env{
	ContainerName:    "VIGIL_STORAGE_CONTAINER_NAME",
	ConnectionString: "VIGIL_STORAGE_CONNECTION_STRING",
}

// Config is the root configuration for the vigil service.
type Config struct {
	Server          ServerConfig     `toml:"server"`
	Database        database.Config  `toml:"database"`
	Storage         storage.Config   `toml:"storage"`
	API             APIConfig        `toml:"api"`
	Logging         LoggingConfig    `toml:"logging"`
	AWS             AWSConfig        `toml:"aws"`
	Moderation      ModerationConfig `toml:"moderation"`
	Review          ReviewConfig     `toml:"review"`
	Results         ResultsConfig    `toml:"results"`
	Reports         ReportsConfig    `toml:"reports"`
	Reconciler      ReconcilerConfig `toml:"reconciler"`
	ShutdownTimeout string           `toml:"shutdown_timeout"`
	Version         string           `toml:"version"`
}

// Env returns the VIGIL_ENV value, defaulting to "local".
func (c *Config) Env() string {
	if env := os.Getenv(EnvVigilEnv); env != "" {
		return env
	}
	return "local"
}

// ShutdownTimeoutDuration returns ShutdownTimeout as a time.Duration.
func (c *Config) ShutdownTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.ShutdownTimeout)
	return d
}

// Load reads the base config (if present), applies any environment overlay,
// and finalizes all values. If no config.toml exists, defaults and environment
// variables provide all configuration.
func Load() (*Config, error) {
	cfg := &Config{}

	if _, err := os.Stat(BaseConfigFile); err == nil {
		loaded, err := load(BaseConfigFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if path := overlayPath(); path != "" {
		overlay, err := load(path)
		if err != nil {
			return nil, fmt.Errorf("load overlay %s: %w", path, err)
		}
		cfg.Merge(overlay)
	}

	if err := cfg.finalize(); err != nil {
		return nil, fmt.Errorf("finalize config: %w", err)
	}

	return cfg, nil
}

// Merge overwrites non-zero fields from overlay across all sub-configs.
func (c *Config) Merge(overlay *Config) {
	if overlay.ShutdownTimeout != "" {
		c.ShutdownTimeout = overlay.ShutdownTimeout
	}
	if overlay.Version != "" {
		c.Version = overlay.Version
	}
	c.Server.Merge(&overlay.Server)
	c.Database.Merge(&overlay.Database)
	c.Storage.Merge(&overlay.Storage)
	c.API.Merge(&overlay.API)
	c.Logging.Merge(&overlay.Logging)
	c.AWS.Merge(&overlay.AWS)
	c.Moderation.Merge(&overlay.Moderation)
	c.Review.Merge(&overlay.Review)
	c.Results.Merge(&overlay.Results)
	c.Reports.Merge(&overlay.Reports)
	c.Reconciler.Merge(&overlay.Reconciler)
}

func (c *Config) finalize() error {
	c.loadDefaults()
	c.loadEnv()

	if err := c.validate(); err != nil {
		return err
	}
	if err := c.Server.Finalize(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.Database.Finalize(databaseEnv); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := c.Storage.Finalize(storageEnv); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if err := c.API.Finalize(); err != nil {
		return fmt.Errorf("api: %w", err)
	}

	sections := []struct {
		name     string
		finalize func() error
	}{
		{"logging", c.Logging.Finalize},
		{"aws", c.AWS.Finalize},
		{"moderation", c.Moderation.Finalize},
		{"review", c.Review.Finalize},
		{"results", c.Results.Finalize},
		{"reports", c.Reports.Finalize},
		{"reconciler", c.Reconciler.Finalize},
	}
	for _, s := range sections {
		if err := s.finalize(); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return nil
}

func (c *Config) loadDefaults() {
	if c.ShutdownTimeout == "" {
		c.ShutdownTimeout = "30s"
	}
	if c.Version == "" {
		c.Version = "0.1.0"
	}
}

func (c *Config) loadEnv() {
	if v := os.Getenv(EnvVigilShutdownTimeout); v != "" {
		c.ShutdownTimeout = v
	}
	if v := os.Getenv(EnvVigilVersion); v != "" {
		c.Version = v
	}
}

func (c *Config) validate() error {
	if _, err := time.ParseDuration(c.ShutdownTimeout); err != nil {
		return fmt.Errorf("invalid shutdown_timeout: %w", err)
	}
	return nil
}

func load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return &cfg, nil
}

func overlayPath() string {
	if env := os.Getenv(EnvVigilEnv); env != "" {
		path := fmt.Sprintf(OverlayConfigPattern, env)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
