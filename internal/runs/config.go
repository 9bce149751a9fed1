package runs

import (
	"fmt"
	"os"
	"time"
)

// Config holds bulk run orchestration parameters.
type Config struct {
	PollInterval string `toml:"poll_interval"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	PollInterval string
}

// PollIntervalDuration returns PollInterval as a time.Duration.
func (c *Config) PollIntervalDuration() time.Duration {
	d, _ := time.ParseDuration(c.PollInterval)
	return d
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *Config) Finalize(env *Env) error {
	c.loadDefaults()
	if env != nil {
		c.loadEnv(env)
	}
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *Config) Merge(overlay *Config) {
	if overlay.PollInterval != "" {
		c.PollInterval = overlay.PollInterval
	}
}

func (c *Config) loadDefaults() {
	if c.PollInterval == "" {
		c.PollInterval = "15s"
	}
}

func (c *Config) loadEnv(env *Env) {
	if env.PollInterval != "" {
		if v := os.Getenv(env.PollInterval); v != "" {
			c.PollInterval = v
		}
	}
}

func (c *Config) validate() error {
	d, err := time.ParseDuration(c.PollInterval)
	if err != nil {
		return fmt.Errorf("invalid poll_interval: %w", err)
	}
	if d <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}
	return nil
}
