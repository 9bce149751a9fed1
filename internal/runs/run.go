// Package runs implements the bulk classification run orchestrator: file
// upload and archival, the cancellable status poll loop, per-item
// clarification, cancellation, CSV export, and the persisted run history.
package runs

import (
	"time"

	"github.com/google/uuid"

	"github.com/tariffdesk/tariffdesk/internal/classify"
)

// Kind distinguishes interactive single-item runs from bulk file runs.
type Kind string

// Run kinds.
const (
	KindSingle Kind = "single"
	KindBulk   Kind = "bulk"
)

// Run is one persisted classification run row, covering both interactive
// sessions and bulk uploads.
type Run struct {
	ID              uuid.UUID            `json:"id"`
	UserID          string               `json:"user_id"`
	Kind            Kind                 `json:"kind"`
	Status          classify.RunStatus   `json:"status"`
	RemoteID        string               `json:"remote_id,omitempty"`
	FileName        string               `json:"file_name,omitempty"`
	FileKey         string               `json:"file_key,omitempty"`
	TotalItems      int                  `json:"total_items"`
	ProgressCurrent int                  `json:"progress_current"`
	ProgressTotal   int                  `json:"progress_total"`
	Summary         *classify.RunSummary `json:"results_summary,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

// ItemRecord is one persisted row of a run's result history: the product and,
// when classification produced one, its stored result with approval audit
// fields. Unlike the live snapshot this survives process restarts.
type ItemRecord struct {
	ProductID  uuid.UUID  `json:"product_id"`
	ResultID   *uuid.UUID `json:"result_id,omitempty"`
	RowNumber  int        `json:"row_number,omitempty"`
	Name       string     `json:"name"`
	Origin     string     `json:"origin,omitempty"`
	HTS        string     `json:"hts_code,omitempty"`
	Confidence int        `json:"confidence,omitempty"`
	TariffRate string     `json:"tariff_rate,omitempty"`
	Approved   bool       `json:"approved"`
	ApprovedBy string     `json:"approved_by,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// View is the reviewer-facing picture of a bulk run: the persisted row plus
// the latest full snapshot received from the classification service, when
// the run is live in this process.
type View struct {
	Run           Run               `json:"run"`
	Snapshot      *classify.BulkRun `json:"snapshot,omitempty"`
	LastPollError string            `json:"last_poll_error,omitempty"`
}
