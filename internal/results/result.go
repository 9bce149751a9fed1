// Package results implements classification result assembly for Tariffdesk.
// It provides the candidate and result types produced by the classification
// service and the alternate ledger that tracks primary/alternate swaps.
package results

import (
	"math"
	"slices"
)

// RuleVerificationStatus indicates the outcome of rule verification for a candidate.
type RuleVerificationStatus string

// Rule verification statuses supplied by the classification service.
const (
	VerificationVerified RuleVerificationStatus = "verified"
	VerificationExcluded RuleVerificationStatus = "excluded"
	VerificationPending  RuleVerificationStatus = "pending"
)

// RuleVerification carries the structured verification data the classification
// service computed for a candidate. Consumed read-only by exception triage.
type RuleVerification struct {
	Status       RuleVerificationStatus `json:"status"`
	ChecksPassed []string               `json:"checks_passed,omitempty"`
	ChecksFailed []string               `json:"checks_failed,omitempty"`
	MissingInfo  []string               `json:"missing_info,omitempty"`
	GRIApplied   []string               `json:"gri_applied,omitempty"`
	Reasoning    string                 `json:"reasoning,omitempty"`
}

// CBPRuling references a published customs ruling supporting a candidate.
type CBPRuling struct {
	RulingNumber string `json:"ruling_number"`
	Title        string `json:"title,omitempty"`
	URL          string `json:"url,omitempty"`
}

// Candidate is one ranked classification candidate as normalized from the
// service response. Score is the service confidence in [0,1]; nil when the
// service omitted it.
type Candidate struct {
	HTS          string            `json:"hts"`
	Description  string            `json:"description"`
	Score        *float64          `json:"score,omitempty"`
	TariffRate   string            `json:"tariff_rate,omitempty"`
	Reasoning    string            `json:"reasoning,omitempty"`
	Rulings      []CBPRuling       `json:"cbp_rulings,omitempty"`
	Verification *RuleVerification `json:"rule_verification,omitempty"`
}

// ScoreValue returns the candidate score, treating a missing score as zero.
func (c Candidate) ScoreValue() float64 {
	if c.Score == nil {
		return 0
	}
	return *c.Score
}

// Entry is one classification (primary or alternate) within a result.
// Confidence is an integer percentage derived by rounding score × 100.
type Entry struct {
	HTS          string            `json:"hts"`
	Description  string            `json:"description"`
	Confidence   int               `json:"confidence"`
	TariffRate   string            `json:"tariff_rate,omitempty"`
	Reasoning    string            `json:"reasoning,omitempty"`
	Rulings      []CBPRuling       `json:"cbp_rulings,omitempty"`
	Verification *RuleVerification `json:"rule_verification,omitempty"`
}

// ClassificationResult is the accepted outcome of a classification: one
// primary entry plus the ordered alternates the reviewer can swap in.
type ClassificationResult struct {
	Primary    Entry   `json:"primary"`
	Alternates []Entry `json:"alternates"`
}

// maxAlternates bounds the alternates retained from the ranked candidate list.
const maxAlternates = 2

// New builds a ClassificationResult from the service's candidates.
// Candidates are sorted descending by score; the top candidate becomes the
// primary and the next two (at most) become alternates, each with its
// confidence rounded to an integer percentage. Returns nil for empty input.
func New(candidates []Candidate) *ClassificationResult {
	if len(candidates) == 0 {
		return nil
	}

	ranked := slices.Clone(candidates)
	slices.SortStableFunc(ranked, func(a, b Candidate) int {
		switch {
		case a.ScoreValue() > b.ScoreValue():
			return -1
		case a.ScoreValue() < b.ScoreValue():
			return 1
		default:
			return 0
		}
	})

	result := &ClassificationResult{
		Primary:    toEntry(ranked[0]),
		Alternates: make([]Entry, 0, maxAlternates),
	}

	for _, c := range ranked[1:] {
		if len(result.Alternates) == maxAlternates {
			break
		}
		result.Alternates = append(result.Alternates, toEntry(c))
	}

	return result
}

// Percentage converts a [0,1] confidence score to a rounded integer percentage.
func Percentage(score float64) int {
	return int(math.Round(score * 100))
}

func toEntry(c Candidate) Entry {
	return Entry{
		HTS:          c.HTS,
		Description:  c.Description,
		Confidence:   Percentage(c.ScoreValue()),
		TariffRate:   c.TariffRate,
		Reasoning:    c.Reasoning,
		Rulings:      c.Rulings,
		Verification: c.Verification,
	}
}
