// Package settings implements reviewer configuration for Tariffdesk.
// It provides the per-user confidence threshold consumed by classification
// sessions and bulk runs, stored as an integer percentage and read in
// normalized [0,1] form.
package settings

import "time"

// Setting is one reviewer's stored configuration.
type Setting struct {
	UserID           string    `json:"user_id"`
	ThresholdPercent int       `json:"confidence_threshold"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Threshold returns the configured threshold normalized to [0,1].
func (s Setting) Threshold() float64 {
	return float64(s.ThresholdPercent) / 100
}

// UpdateCommand carries the data needed to set a reviewer's configuration.
// ThresholdPercent is expressed as a percentage (0-100), matching the UI.
type UpdateCommand struct {
	ThresholdPercent int `json:"confidence_threshold"`
}
