package config

import (
	"fmt"
	"os"

	"github.com/tariffdesk/tariffdesk/internal/policy"
	"github.com/tariffdesk/tariffdesk/pkg/formatting"
	"github.com/tariffdesk/tariffdesk/pkg/middleware"
	"github.com/tariffdesk/tariffdesk/pkg/pagination"
)

var corsEnv = &middleware.CORSEnv{
	Enabled:          "TARIFFDESK_CORS_ENABLED",
	Origins:          "TARIFFDESK_CORS_ORIGINS",
	AllowedMethods:   "TARIFFDESK_CORS_ALLOWED_METHODS",
	AllowedHeaders:   "TARIFFDESK_CORS_ALLOWED_HEADERS",
	AllowCredentials: "TARIFFDESK_CORS_ALLOW_CREDENTIALS",
	MaxAge:           "TARIFFDESK_CORS_MAX_AGE",
}

var paginationEnv = &pagination.ConfigEnv{
	DefaultPageSize: "TARIFFDESK_PAGINATION_DEFAULT_PAGE_SIZE",
	MaxPageSize:     "TARIFFDESK_PAGINATION_MAX_PAGE_SIZE",
}

var policyEnv = &policy.ParamsEnv{
	HighBand:        "TARIFFDESK_TRIAGE_HIGH_BAND",
	MediumBand:      "TARIFFDESK_TRIAGE_MEDIUM_BAND",
	ContestedMargin: "TARIFFDESK_TRIAGE_CONTESTED_MARGIN",
}

// APIConfig holds API routing, CORS, pagination, and triage policy settings.
type APIConfig struct {
	BasePath      string                `toml:"base_path"`
	MaxUploadSize string                `toml:"max_upload_size"`
	CORS          middleware.CORSConfig `toml:"cors"`
	Pagination    pagination.Config     `toml:"pagination"`
	Triage        policy.Params         `toml:"triage"`
}

func (c *APIConfig) MaxUploadSizeBytes() int64 {
	size, err := formatting.ParseBytes(c.MaxUploadSize)
	if err != nil {
		return 50 * 1024 * 1024 // 50MB fallback
	}
	return size
}

// Finalize applies defaults, environment variable overrides, and validation
// for the API config and its nested CORS, pagination, and triage configs.
func (c *APIConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()

	if err := c.CORS.Finalize(corsEnv); err != nil {
		return fmt.Errorf("cors: %w", err)
	}
	if err := c.Pagination.Finalize(paginationEnv); err != nil {
		return fmt.Errorf("pagination: %w", err)
	}
	if err := c.Triage.Finalize(policyEnv); err != nil {
		return fmt.Errorf("triage: %w", err)
	}
	return nil
}

// Merge overwrites non-zero fields from overlay across nested configs.
func (c *APIConfig) Merge(overlay *APIConfig) {
	if overlay.BasePath != "" {
		c.BasePath = overlay.BasePath
	}
	if overlay.MaxUploadSize != "" {
		c.MaxUploadSize = overlay.MaxUploadSize
	}

	c.CORS.Merge(&overlay.CORS)
	c.Pagination.Merge(&overlay.Pagination)
	c.Triage.Merge(&overlay.Triage)
}

func (c *APIConfig) loadDefaults() {
	if c.BasePath == "" {
		c.BasePath = "/api"
	}
	if c.MaxUploadSize == "" {
		c.MaxUploadSize = "50MB"
	}
}

func (c *APIConfig) loadEnv() {
	if v := os.Getenv("TARIFFDESK_API_BASE_PATH"); v != "" {
		c.BasePath = v
	}
	if v := os.Getenv("TARIFFDESK_API_MAX_UPLOAD_SIZE"); v != "" {
		c.MaxUploadSize = v
	}
}
