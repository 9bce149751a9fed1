package classify

import "github.com/tariffdesk/tariffdesk/internal/results"

// RunStatus is the server-driven lifecycle status of a bulk run.
type RunStatus string

// Bulk run statuses.
const (
	RunPending    RunStatus = "pending"
	RunProcessing RunStatus = "processing"
	RunCompleted  RunStatus = "completed"
	RunFailed     RunStatus = "failed"
	RunCancelled  RunStatus = "cancelled"
)

// Terminal reports whether a run in this status can never change again.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunCompleted, RunFailed, RunCancelled:
		return true
	default:
		return false
	}
}

// ItemStatus is the server-driven status of one bulk run item.
type ItemStatus string

// Bulk item statuses.
const (
	ItemPending    ItemStatus = "pending"
	ItemProcessing ItemStatus = "processing"
	ItemCompleted  ItemStatus = "completed"
	ItemException  ItemStatus = "exception"
	ItemError      ItemStatus = "error"
)

// RunSummary aggregates item outcomes for a bulk run.
type RunSummary struct {
	Completed  int `json:"completed"`
	Exceptions int `json:"exceptions"`
	Errors     int `json:"errors"`
}

// BulkRun is one full snapshot of a server-side bulk classification run.
// The service is the sole authority over run and item state; each poll
// replaces the previous snapshot wholesale.
type BulkRun struct {
	RunID           string     `json:"run_id"`
	Status          RunStatus  `json:"status"`
	TotalItems      int        `json:"total_items"`
	ProgressCurrent int        `json:"progress_current"`
	ProgressTotal   int        `json:"progress_total"`
	Summary         RunSummary `json:"results_summary"`
	Items           []BulkItem `json:"items"`
}

// BulkItem is one input row within a bulk run.
type BulkItem struct {
	ID            string                        `json:"id"`
	RowNumber     int                           `json:"row_number"`
	ExtractedData map[string]string             `json:"extracted_data,omitempty"`
	Status        ItemStatus                    `json:"status"`
	Result        *results.ClassificationResult `json:"classification_result,omitempty"`
	Error         string                        `json:"error,omitempty"`
	Questions     []Question                    `json:"clarification_questions,omitempty"`
	Answers       []string                      `json:"clarification_answers,omitempty"`
}

// NeedsClarification reports whether the item is waiting on reviewer answers.
func (i BulkItem) NeedsClarification() bool {
	if len(i.Questions) == 0 {
		return false
	}
	return i.Status == ItemException || i.Status == ItemPending
}
