package policy_test

import (
	"testing"

	"github.com/tariffdesk/tariffdesk/internal/policy"
)

func ptr[T any](v T) *T { return &v }

func TestDecide(t *testing.T) {
	tests := []struct {
		name       string
		confidence *float64
		threshold  float64
		want       policy.Decision
	}{
		{"above threshold", ptr(0.95), 0.8, policy.AutoApprove},
		{"below threshold", ptr(0.6), 0.8, policy.NeedsReview},
		{"tie favors approval", ptr(0.8), 0.8, policy.AutoApprove},
		{"zero confidence", ptr(0.0), 0.8, policy.NeedsReview},
		{"zero threshold approves everything", ptr(0.0), 0.0, policy.AutoApprove},
		{"full confidence full threshold", ptr(1.0), 1.0, policy.AutoApprove},
		{"missing confidence never approves", nil, 0.8, policy.NeedsReview},
		{"missing confidence at zero threshold still reviews", nil, 0.0, policy.NeedsReview},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := policy.Decide(tt.confidence, tt.threshold)
			if got != tt.want {
				t.Errorf("Decide(%v, %v) = %q, want %q", tt.confidence, tt.threshold, got, tt.want)
			}
		})
	}
}

func TestDecideBoundarySweep(t *testing.T) {
	// Approval must hold exactly when confidence >= threshold across the range.
	for c := 0.0; c <= 1.0; c += 0.05 {
		for th := 0.0; th <= 1.0; th += 0.05 {
			got := policy.Decide(&c, th)
			want := policy.NeedsReview
			if c >= th {
				want = policy.AutoApprove
			}
			if got != want {
				t.Fatalf("Decide(%v, %v) = %q, want %q", c, th, got, want)
			}
		}
	}
}
