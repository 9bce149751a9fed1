// Package exceptions implements the review queue: classification results
// whose confidence fell below the reviewer's threshold and have not been
// approved. The queue is a derived view recomputed on every read; triage
// decoration is never persisted because its inputs can change between runs.
package exceptions

import (
	"time"

	"github.com/google/uuid"

	"github.com/tariffdesk/tariffdesk/internal/policy"
	"github.com/tariffdesk/tariffdesk/internal/results"
)

// Item is one entry in the review queue. It exists exactly while its result
// is below threshold and unapproved; approval removes it on the next read.
type Item struct {
	ResultID         uuid.UUID                    `json:"result_id"`
	ProductID        uuid.UUID                    `json:"product_id"`
	RunID            uuid.UUID                    `json:"run_id"`
	UserID           string                       `json:"user_id"`
	ProductName      string                       `json:"product_name"`
	Confidence       int                          `json:"confidence"`
	ThresholdPercent int                          `json:"confidence_threshold"`
	Priority         policy.Priority              `json:"priority"`
	Category         policy.Category              `json:"category"`
	Reason           string                       `json:"reason"`
	Result           results.ClassificationResult `json:"result"`
	CreatedAt        time.Time                    `json:"created_at"`
}
