package sessions

import (
	"context"

	"github.com/google/uuid"

	"github.com/tariffdesk/tariffdesk/internal/results"
)

// Run status values recorded for single-item classification runs.
const (
	runStatusPending   = "pending"
	runStatusCompleted = "completed"
)

// Store persists the durable artifacts of a classification session: the run
// row, the clarification transcript, and the approved or deferred outcome.
// The live state machine itself is memory-resident; the store only sees
// committed facts.
type Store interface {
	CreateRun(ctx context.Context, userID string) (uuid.UUID, error)
	AppendClarification(ctx context.Context, runID uuid.UUID, msg ClarificationMessage) error
	SaveProduct(ctx context.Context, userID string, runID uuid.UUID, fields ProductFields) (uuid.UUID, error)
	SaveResult(ctx context.Context, productID, runID uuid.UUID, result results.ClassificationResult) (uuid.UUID, error)
	SetRunStatus(ctx context.Context, runID uuid.UUID, status string) error
	RecordApproval(ctx context.Context, productID, resultID uuid.UUID, approvedBy string, approved bool) error
}
