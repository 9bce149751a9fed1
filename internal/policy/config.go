package policy

import (
	"fmt"
	"os"
	"strconv"
)

// Params holds the tunable triage constants. The banding multipliers and the
// contested margin are policy parameters, not invariants; deployments may
// adjust them without touching triage logic.
type Params struct {
	// HighBand marks results below threshold × HighBand as high priority.
	HighBand float64 `toml:"high_band"`
	// MediumBand marks results below threshold × MediumBand as medium priority.
	MediumBand float64 `toml:"medium_band"`
	// ContestedMargin is the maximum primary-to-top-alternate confidence gap
	// (percentage points) for a classification to count as contested.
	ContestedMargin int `toml:"contested_margin"`
	// ReasonLimit caps the length of reasons derived from candidate reasoning.
	ReasonLimit int `toml:"reason_limit"`
}

// ParamsEnv maps Params fields to environment variable names for override injection.
type ParamsEnv struct {
	HighBand        string
	MediumBand      string
	ContestedMargin string
}

// Finalize applies defaults, environment variable overrides, and validation.
func (p *Params) Finalize(env *ParamsEnv) error {
	p.loadDefaults()
	if env != nil {
		p.loadEnv(env)
	}
	return p.validate()
}

// Merge overwrites non-zero fields from overlay.
func (p *Params) Merge(overlay *Params) {
	if overlay.HighBand != 0 {
		p.HighBand = overlay.HighBand
	}
	if overlay.MediumBand != 0 {
		p.MediumBand = overlay.MediumBand
	}
	if overlay.ContestedMargin != 0 {
		p.ContestedMargin = overlay.ContestedMargin
	}
	if overlay.ReasonLimit != 0 {
		p.ReasonLimit = overlay.ReasonLimit
	}
}

func (p *Params) loadDefaults() {
	if p.HighBand == 0 {
		p.HighBand = 0.7
	}
	if p.MediumBand == 0 {
		p.MediumBand = 0.85
	}
	if p.ContestedMargin == 0 {
		p.ContestedMargin = 15
	}
	if p.ReasonLimit == 0 {
		p.ReasonLimit = 100
	}
}

func (p *Params) loadEnv(env *ParamsEnv) {
	setFloat := func(envVar string, dst *float64) {
		if envVar == "" {
			return
		}
		if v := os.Getenv(envVar); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				*dst = f
			}
		}
	}

	setFloat(env.HighBand, &p.HighBand)
	setFloat(env.MediumBand, &p.MediumBand)

	if env.ContestedMargin != "" {
		if v := os.Getenv(env.ContestedMargin); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				p.ContestedMargin = n
			}
		}
	}
}

func (p *Params) validate() error {
	if p.HighBand <= 0 || p.HighBand >= 1 {
		return fmt.Errorf("high_band must be in (0,1)")
	}
	if p.MediumBand <= p.HighBand || p.MediumBand >= 1 {
		return fmt.Errorf("medium_band must be in (high_band,1)")
	}
	if p.ContestedMargin < 0 || p.ContestedMargin > 100 {
		return fmt.Errorf("contested_margin must be in [0,100]")
	}
	return nil
}
