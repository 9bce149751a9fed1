package policy

import (
	"fmt"
	"strings"

	"github.com/tariffdesk/tariffdesk/internal/results"
)

// Priority orders exceptions for review, derived from how far below the
// reviewer's threshold a result landed.
type Priority string

// Exception priorities.
const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Category names the actionable reason a result needs review.
type Category string

// Exception categories.
const (
	CategoryLowConfidence  Category = "lowConfidence"
	CategoryMultipleHTS    Category = "multipleHTS"
	CategoryMaterialIssues Category = "materialIssues"
	CategoryMissingDoc     Category = "missingDoc"
)

// Triage is the derived review guidance for one below-threshold result.
type Triage struct {
	Priority Priority `json:"priority"`
	Category Category `json:"category"`
	Reason   string   `json:"reason"`
}

// Classify derives priority, category, and a reviewer-facing reason for a
// result whose confidence fell below the threshold. Confidence and threshold
// are normalized [0,1]. Pure function: identical inputs yield identical output.
func (p Params) Classify(result *results.ClassificationResult, confidence, threshold float64) Triage {
	return Triage{
		Priority: p.priority(confidence, threshold),
		Category: p.category(result),
		Reason:   p.reason(result, confidence),
	}
}

func (p Params) priority(confidence, threshold float64) Priority {
	switch {
	case confidence < threshold*p.HighBand:
		return PriorityHigh
	case confidence < threshold*p.MediumBand:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// category applies the triage rules in precedence order: a genuinely
// contested classification outranks verification gaps, which outrank the
// low-confidence default.
func (p Params) category(result *results.ClassificationResult) Category {
	if contested(result, p.ContestedMargin) {
		return CategoryMultipleHTS
	}

	v := result.Primary.Verification
	if v != nil && len(v.MissingInfo) > 0 {
		if containsMaterialTerms(v.MissingInfo) {
			return CategoryMaterialIssues
		}
		return CategoryMissingDoc
	}

	return CategoryLowConfidence
}

// contested reports whether the top alternate sits within margin percentage
// points of the primary, given at least two alternates exist.
func contested(result *results.ClassificationResult, margin int) bool {
	if len(result.Alternates) < 2 {
		return false
	}
	return result.Primary.Confidence-result.Alternates[0].Confidence <= margin
}

func containsMaterialTerms(entries []string) bool {
	for _, entry := range entries {
		lower := strings.ToLower(entry)
		if strings.Contains(lower, "material") || strings.Contains(lower, "composition") {
			return true
		}
	}
	return false
}

func (p Params) reason(result *results.ClassificationResult, confidence float64) string {
	v := result.Primary.Verification
	if v != nil {
		if len(v.MissingInfo) > 0 {
			return v.MissingInfo[0]
		}
		if len(v.ChecksFailed) > 0 {
			return v.ChecksFailed[0]
		}
	}

	if reasoning := result.Primary.Reasoning; reasoning != "" {
		return truncate(reasoning, p.ReasonLimit)
	}

	return fmt.Sprintf("Low confidence (%d%%)", results.Percentage(confidence))
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
