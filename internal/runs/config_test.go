package runs_test

import (
	"testing"
	"time"

	"github.com/tariffdesk/tariffdesk/internal/runs"
)

func TestConfigFinalizeDefaults(t *testing.T) {
	cfg := runs.Config{}
	if err := cfg.Finalize(nil); err != nil {
		t.Fatalf("finalize failed: %v", err)
	}
	if got := cfg.PollIntervalDuration(); got != 15*time.Second {
		t.Errorf("PollIntervalDuration() = %v, want 15s", got)
	}
}

func TestConfigFinalizeEnvOverride(t *testing.T) {
	t.Setenv("TEST_POLL_INTERVAL", "30s")

	cfg := runs.Config{}
	if err := cfg.Finalize(&runs.Env{PollInterval: "TEST_POLL_INTERVAL"}); err != nil {
		t.Fatalf("finalize failed: %v", err)
	}
	if got := cfg.PollIntervalDuration(); got != 30*time.Second {
		t.Errorf("PollIntervalDuration() = %v, want 30s", got)
	}
}

func TestConfigFinalizeValidation(t *testing.T) {
	tests := []struct {
		name     string
		interval string
	}{
		{"not a duration", "often"},
		{"zero", "0s"},
		{"negative", "-5s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := runs.Config{PollInterval: tt.interval}
			if err := cfg.Finalize(nil); err == nil {
				t.Errorf("Finalize(%q) expected error, got nil", tt.interval)
			}
		})
	}
}

func TestConfigMerge(t *testing.T) {
	base := runs.Config{PollInterval: "15s"}
	base.Merge(&runs.Config{PollInterval: "5s"})
	if base.PollInterval != "5s" {
		t.Errorf("PollInterval = %q, want 5s", base.PollInterval)
	}

	base.Merge(&runs.Config{})
	if base.PollInterval != "5s" {
		t.Errorf("PollInterval = %q, want 5s after empty overlay", base.PollInterval)
	}
}
