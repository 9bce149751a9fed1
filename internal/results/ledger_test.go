package results_test

import (
	"errors"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/tariffdesk/tariffdesk/internal/results"
)

func ptr[T any](v T) *T { return &v }

func rankedCandidates() []results.Candidate {
	return []results.Candidate{
		{HTS: "7323.93.0000", Description: "steel household articles", Score: ptr(0.91), TariffRate: "2%", Reasoning: "stainless steel kitchenware"},
		{HTS: "7323.99.9080", Description: "other household articles", Score: ptr(0.74), TariffRate: "3.4%", Reasoning: "coated or plated variants"},
		{HTS: "9617.00.1000", Description: "vacuum flasks", Score: ptr(0.52), TariffRate: "7.2%", Reasoning: "insulated vessel reading"},
	}
}

func TestNew(t *testing.T) {
	t.Run("empty candidates", func(t *testing.T) {
		if got := results.New(nil); got != nil {
			t.Errorf("New(nil) = %v, want nil", got)
		}
	})

	t.Run("ranks and truncates", func(t *testing.T) {
		candidates := []results.Candidate{
			{HTS: "C", Score: ptr(0.52)},
			{HTS: "A", Score: ptr(0.91)},
			{HTS: "D", Score: ptr(0.10)},
			{HTS: "B", Score: ptr(0.74)},
		}

		r := results.New(candidates)
		if r.Primary.HTS != "A" {
			t.Errorf("primary = %q, want %q", r.Primary.HTS, "A")
		}
		if len(r.Alternates) != 2 {
			t.Fatalf("len(alternates) = %d, want 2", len(r.Alternates))
		}
		if r.Alternates[0].HTS != "B" || r.Alternates[1].HTS != "C" {
			t.Errorf("alternates = %v, want [B C]", r.Codes()[1:])
		}
	})

	t.Run("single candidate has no alternates", func(t *testing.T) {
		r := results.New([]results.Candidate{{HTS: "7323.93.0000", Score: ptr(0.99)}})
		if len(r.Alternates) != 0 {
			t.Errorf("len(alternates) = %d, want 0", len(r.Alternates))
		}
	})

	t.Run("confidence is rounded percentage", func(t *testing.T) {
		tests := []struct {
			score float64
			want  int
		}{
			{0.99, 99},
			{0.675, 68},
			{0.674, 67},
			{0.0, 0},
			{1.0, 100},
		}

		for _, tt := range tests {
			r := results.New([]results.Candidate{{HTS: "X", Score: ptr(tt.score)}})
			if r.Primary.Confidence != tt.want {
				t.Errorf("confidence for score %v = %d, want %d", tt.score, r.Primary.Confidence, tt.want)
			}
		}
	})

	t.Run("missing score treated as zero", func(t *testing.T) {
		r := results.New([]results.Candidate{
			{HTS: "B"},
			{HTS: "A", Score: ptr(0.4)},
		})
		if r.Primary.HTS != "A" {
			t.Errorf("primary = %q, want %q", r.Primary.HTS, "A")
		}
		if r.Alternates[0].Confidence != 0 {
			t.Errorf("scoreless confidence = %d, want 0", r.Alternates[0].Confidence)
		}
	})
}

func TestPromote(t *testing.T) {
	t.Run("promoting primary is a no-op", func(t *testing.T) {
		r := results.New(rankedCandidates())
		before := r.Codes()

		promoted, err := r.Promote("7323.93.0000")
		if err != nil {
			t.Fatalf("Promote() error: %v", err)
		}
		if promoted {
			t.Error("promoted = true, want false for current primary")
		}
		if diff := cmp.Diff(before, r.Codes()); diff != "" {
			t.Errorf("codes changed on no-op (-before +after):\n%s", diff)
		}
	})

	t.Run("unknown code", func(t *testing.T) {
		r := results.New(rankedCandidates())

		if _, err := r.Promote("0000.00.0000"); !errors.Is(err, results.ErrUnknownCandidate) {
			t.Errorf("Promote(unknown) error = %v, want ErrUnknownCandidate", err)
		}
	})

	t.Run("demoted primary is prepended", func(t *testing.T) {
		r := results.New(rankedCandidates())

		promoted, err := r.Promote("9617.00.1000")
		if err != nil {
			t.Fatalf("Promote() error: %v", err)
		}
		if !promoted {
			t.Fatal("promoted = false, want true")
		}

		if r.Primary.HTS != "9617.00.1000" {
			t.Errorf("primary = %q, want %q", r.Primary.HTS, "9617.00.1000")
		}
		// Demoted primary leads the list even though its confidence is
		// higher; order is recency of consideration, not score.
		want := []string{"7323.93.0000", "7323.99.9080"}
		got := r.Codes()[1:]
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("alternates (-want +got):\n%s", diff)
		}
	})

	t.Run("promoted entry keeps its data", func(t *testing.T) {
		r := results.New(rankedCandidates())

		if _, err := r.Promote("7323.99.9080"); err != nil {
			t.Fatalf("Promote() error: %v", err)
		}

		if r.Primary.TariffRate != "3.4%" {
			t.Errorf("tariff = %q, want %q", r.Primary.TariffRate, "3.4%")
		}
		if r.Primary.Confidence != 74 {
			t.Errorf("confidence = %d, want 74", r.Primary.Confidence)
		}
		if r.Primary.Reasoning != "coated or plated variants" {
			t.Errorf("reasoning = %q, want preserved", r.Primary.Reasoning)
		}
	})
}

// Swapping away and back must restore the original primary and lose no
// candidate: reorderings only.
func TestPromoteRoundTrip(t *testing.T) {
	r := results.New(rankedCandidates())
	original := results.New(rankedCandidates())

	if _, err := r.Promote("7323.99.9080"); err != nil {
		t.Fatalf("first Promote() error: %v", err)
	}
	if _, err := r.Promote("7323.93.0000"); err != nil {
		t.Fatalf("second Promote() error: %v", err)
	}

	if diff := cmp.Diff(original.Primary, r.Primary); diff != "" {
		t.Errorf("primary after round trip (-want +got):\n%s", diff)
	}

	got := r.Codes()
	want := original.Codes()
	sort.Strings(got)
	sort.Strings(want)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("candidate set after round trip (-want +got):\n%s", diff)
	}
}

func TestPromoteRepeatedSwaps(t *testing.T) {
	r := results.New(rankedCandidates())
	codes := r.Codes()

	// Cycle through every candidate several times; the set must be stable.
	sequence := []string{codes[1], codes[2], codes[0], codes[2], codes[1], codes[0]}
	for _, code := range sequence {
		if _, err := r.Promote(code); err != nil {
			t.Fatalf("Promote(%q) error: %v", code, err)
		}

		got := r.Codes()
		if len(got) != 3 {
			t.Fatalf("len(codes) = %d after Promote(%q), want 3", len(got), code)
		}
		if r.Primary.HTS != code {
			t.Errorf("primary = %q, want %q", r.Primary.HTS, code)
		}
	}
}
