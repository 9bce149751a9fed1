// Package classify provides the adapter for the remote classification service.
// It exposes single-item classification with clarification rounds and the bulk
// run endpoints, normalizing every known response shape into one canonical
// outcome type at this boundary so callers never handle raw payload variants.
package classify

import (
	"context"

	"github.com/tariffdesk/tariffdesk/internal/results"
)

// Request carries one single-item classification query. Description is the
// flattened product text; Clarification is set on resubmissions after the
// service asked a question, carrying the original query and the reviewer's
// answer as distinct fields so the service can reconcile corrections against
// additions itself.
type Request struct {
	Description   string         `json:"description"`
	UserID        string         `json:"user_id"`
	Threshold     float64        `json:"confidence_threshold"`
	Clarification *Clarification `json:"clarification,omitempty"`
}

// Clarification pairs the original accumulated query with the reviewer's
// latest answer. The two are never merged into one opaque string.
type Clarification struct {
	OriginalQuery string `json:"original_query"`
	Response      string `json:"clarification_response"`
}

// Question is one clarification question, optionally with answer options.
type Question struct {
	Text    string   `json:"text"`
	Options []string `json:"options,omitempty"`
}

// Outcome is the canonical normalized reply from the classification service:
// either a clarification request or a ranked candidate list, never both
// interpretations at once. Candidates returned alongside questions are
// retained as partial matches but NeedsClarification stays true.
type Outcome struct {
	NeedsClarification bool                `json:"needs_clarification"`
	Questions          []Question          `json:"questions,omitempty"`
	Candidates         []results.Candidate `json:"candidates,omitempty"`
	MaxConfidence      *float64            `json:"max_confidence,omitempty"`
}

// StartBulkRequest carries an uploaded batch file to the bulk endpoint.
type StartBulkRequest struct {
	Filename  string
	Data      []byte
	UserID    string
	Threshold float64
}

// BulkRunHandle is the service's acknowledgement of a started bulk run.
type BulkRunHandle struct {
	RunID      string    `json:"run_id"`
	Status     RunStatus `json:"status"`
	TotalItems int       `json:"total_items"`
}

// Classifier is the contract for the remote classification service.
type Classifier interface {
	// Classify submits a single-item query, returning the normalized outcome.
	Classify(ctx context.Context, req Request) (*Outcome, error)
	// StartBulk uploads a batch file and starts a server-side bulk run.
	StartBulk(ctx context.Context, req StartBulkRequest) (*BulkRunHandle, error)
	// PollBulk fetches the current full snapshot of a bulk run.
	PollBulk(ctx context.Context, runID string) (*BulkRun, error)
	// ClarifyItem submits clarification answers for one bulk item.
	ClarifyItem(ctx context.Context, runID, itemID string, answers []string) error
	// CancelBulk requests best-effort cancellation of a bulk run.
	CancelBulk(ctx context.Context, runID string) (bool, error)
}
