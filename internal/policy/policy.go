// Package policy implements the confidence threshold policy and the exception
// triage classifier. Both are pure decision functions: they derive review
// outcomes from a result and the reviewer's configured threshold, and are
// re-evaluated on every read rather than persisted.
package policy

// Decision is the outcome of applying the confidence threshold to a result.
type Decision string

// Threshold decisions.
const (
	AutoApprove Decision = "auto_approve"
	NeedsReview Decision = "needs_review"
)

// DefaultThreshold applies when a reviewer has no configured threshold.
const DefaultThreshold = 0.8

// Decide applies the reviewer's confidence threshold to a classification
// confidence. Both values are normalized [0,1]. Ties favor approval. A nil
// confidence is treated as zero and always requires review; missing data must
// never auto-approve.
func Decide(confidence *float64, threshold float64) Decision {
	if confidence == nil {
		return NeedsReview
	}
	if *confidence >= threshold {
		return AutoApprove
	}
	return NeedsReview
}
