// Package config loads the Tariffdesk service configuration from a TOML base
// file, an optional environment overlay, and TARIFFDESK_* environment
// variables, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/tariffdesk/tariffdesk/internal/classify"
	"github.com/tariffdesk/tariffdesk/internal/runs"
	"github.com/tariffdesk/tariffdesk/pkg/database"
	"github.com/tariffdesk/tariffdesk/pkg/storage"
)

const (
	BaseConfigFile       = "config.toml"
	OverlayConfigPattern = "config.%s.toml"

	EnvTariffdeskEnv             = "TARIFFDESK_ENV"
	EnvTariffdeskShutdownTimeout = "TARIFFDESK_SHUTDOWN_TIMEOUT"
	EnvTariffdeskVersion         = "TARIFFDESK_VERSION"
)

var databaseEnv = &database.Env{
	Host:            "TARIFFDESK_DB_HOST",
	Port:            "TARIFFDESK_DB_PORT",
	Name:            "TARIFFDESK_DB_NAME",
	User:            "TARIFFDESK_DB_USER",
	Password:        "TARIFFDESK_DB_PASSWORD",
	SSLMode:         "TARIFFDESK_DB_SSL_MODE",
	MaxOpenConns:    "TARIFFDESK_DB_MAX_OPEN_CONNS",
	MaxIdleConns:    "TARIFFDESK_DB_MAX_IDLE_CONNS",
	ConnMaxLifetime: "TARIFFDESK_DB_CONN_MAX_LIFETIME",
	ConnTimeout:     "TARIFFDESK_DB_CONN_TIMEOUT",
}

var storageEnv = &storage.Env{
	ContainerName:    "TARIFFDESK_STORAGE_CONTAINER_NAME",
	ConnectionString: "TARIFFDESK_STORAGE_CONNECTION_STRING",
}

var classifyEnv = &classify.Env{
	BaseURL: "TARIFFDESK_CLASSIFY_BASE_URL",
	Token:   "TARIFFDESK_CLASSIFY_TOKEN",
	Timeout: "TARIFFDESK_CLASSIFY_TIMEOUT",
}

var runsEnv = &runs.Env{
	PollInterval: "TARIFFDESK_RUNS_POLL_INTERVAL",
}

// Config is the root configuration for the Tariffdesk service.
type Config struct {
	Server          ServerConfig    `toml:"server"`
	Database        database.Config `toml:"database"`
	Storage         storage.Config  `toml:"storage"`
	Classify        classify.Config `toml:"classify"`
	Runs            runs.Config     `toml:"runs"`
	API             APIConfig       `toml:"api"`
	ShutdownTimeout string          `toml:"shutdown_timeout"`
	Version         string          `toml:"version"`
}

// Env returns the TARIFFDESK_ENV value, defaulting to "local".
func (c *Config) Env() string {
	if env := os.Getenv(EnvTariffdeskEnv); env != "" {
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
	c.Classify.Merge(&overlay.Classify)
	c.Runs.Merge(&overlay.Runs)
	c.API.Merge(&overlay.API)
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
	if err := c.Classify.Finalize(classifyEnv); err != nil {
		return fmt.Errorf("classify: %w", err)
	}
	if err := c.Runs.Finalize(runsEnv); err != nil {
		return fmt.Errorf("runs: %w", err)
	}
	if err := c.API.Finalize(); err != nil {
		return fmt.Errorf("api: %w", err)
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
	if v := os.Getenv(EnvTariffdeskShutdownTimeout); v != "" {
		c.ShutdownTimeout = v
	}
	if v := os.Getenv(EnvTariffdeskVersion); v != "" {
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
	if env := os.Getenv(EnvTariffdeskEnv); env != "" {
		path := fmt.Sprintf(OverlayConfigPattern, env)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
