// Package sessions implements the interactive single-item classification
// session: a state machine that submits a product description to the
// classification service, runs clarification rounds until candidates arrive,
// and terminates in an approved or deferred result.
package sessions

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tariffdesk/tariffdesk/internal/results"
)

// State identifies where a session sits in its lifecycle.
type State string

const (
	StateIdle               State = "idle"
	StateSubmitting         State = "submitting"
	StateNeedsClarification State = "needs_clarification"
	StateAwaitingAnswer     State = "awaiting_answer"
	StateHasResult          State = "has_result"
	StateApproved           State = "approved"
	StateDeferred           State = "deferred"
	StateFailed             State = "failed"
)

// MessageType distinguishes transcript entries.
type MessageType string

const (
	MessageQuestion     MessageType = "question"
	MessageUserResponse MessageType = "user_response"
)

// ClarificationMessage is one entry in a session's clarification transcript.
// The transcript is append-only and ordered by submission time; entries are
// never mutated or removed once appended.
type ClarificationMessage struct {
	Step      int         `json:"step"`
	Type      MessageType `json:"type"`
	Content   string      `json:"content"`
	Timestamp time.Time   `json:"timestamp"`
	Options   []string    `json:"options,omitempty"`
}

// Material is one entry in a product's material composition.
type Material struct {
	Name       string  `json:"name"`
	Percentage float64 `json:"percentage,omitempty"`
}

// ProductFields captures everything the reviewer entered about one product.
// Fields survive submission failures so the reviewer never re-types a form.
type ProductFields struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Origin      string     `json:"origin,omitempty"`
	Materials   []Material `json:"materials,omitempty"`
	Cost        *float64   `json:"cost,omitempty"`
	Vendor      string     `json:"vendor,omitempty"`
	SKU         string     `json:"sku,omitempty"`
}

// Query flattens the captured fields into the single text payload sent to
// the classification service. Rebuilt on every submission.
func (f ProductFields) Query() string {
	var parts []string

	if n := strings.TrimSpace(f.Name); n != "" {
		parts = append(parts, n)
	}
	if d := strings.TrimSpace(f.Description); d != "" {
		parts = append(parts, d)
	}
	if o := strings.TrimSpace(f.Origin); o != "" {
		parts = append(parts, "origin: "+o)
	}
	if len(f.Materials) > 0 {
		mats := make([]string, 0, len(f.Materials))
		for _, m := range f.Materials {
			if m.Percentage > 0 {
				mats = append(mats, fmt.Sprintf("%s %.0f%%", m.Name, m.Percentage))
			} else {
				mats = append(mats, m.Name)
			}
		}
		parts = append(parts, "materials: "+strings.Join(mats, ", "))
	}
	if f.Cost != nil {
		parts = append(parts, fmt.Sprintf("cost: $%.2f", *f.Cost))
	}
	if v := strings.TrimSpace(f.Vendor); v != "" {
		parts = append(parts, "vendor: "+v)
	}
	if s := strings.TrimSpace(f.SKU); s != "" {
		parts = append(parts, "sku: "+s)
	}

	return strings.Join(parts, ". ")
}

// Session is one interactive classification dialogue. All mutation happens
// through the controller under the session mutex; only one submission may be
// in flight at a time because transcript ordering depends on strict
// request/response sequencing.
type Session struct {
	mu sync.Mutex

	ID        uuid.UUID
	UserID    string
	State     State
	Threshold float64

	// RunID links the session's current classification cycle to its
	// persisted run row. Cleared when a cycle terminates.
	RunID uuid.UUID

	Fields     ProductFields
	Query      string
	Transcript []ClarificationMessage

	// Pending holds partial candidate matches returned alongside
	// clarification questions. Displayed, never treated as the result.
	Pending []results.Candidate

	Result    *results.ClassificationResult
	LastError string
	UpdatedAt time.Time
}

// Snapshot is the immutable JSON view of a session.
type Snapshot struct {
	ID         uuid.UUID                     `json:"id"`
	UserID     string                        `json:"user_id"`
	State      State                         `json:"state"`
	Threshold  float64                       `json:"confidence_threshold"`
	RunID      *uuid.UUID                    `json:"run_id,omitempty"`
	Fields     ProductFields                 `json:"fields"`
	Transcript []ClarificationMessage        `json:"transcript"`
	Pending    []results.Candidate           `json:"pending_candidates,omitempty"`
	Result     *results.ClassificationResult `json:"result,omitempty"`
	Error      string                        `json:"error,omitempty"`
	UpdatedAt  time.Time                     `json:"updated_at"`
}

// inFlight reports whether a submission is currently outstanding.
func (s *Session) inFlight() bool {
	return s.State == StateSubmitting || s.State == StateAwaitingAnswer
}

// snapshotLocked copies the session into a Snapshot. Caller holds s.mu.
func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		ID:         s.ID,
		UserID:     s.UserID,
		State:      s.State,
		Threshold:  s.Threshold,
		Fields:     s.Fields,
		Transcript: append([]ClarificationMessage(nil), s.Transcript...),
		Pending:    append([]results.Candidate(nil), s.Pending...),
		Error:      s.LastError,
		UpdatedAt:  s.UpdatedAt,
	}

	if s.RunID != uuid.Nil {
		id := s.RunID
		snap.RunID = &id
	}

	if s.Result != nil {
		r := *s.Result
		r.Alternates = append([]results.Entry(nil), s.Result.Alternates...)
		snap.Result = &r
	}

	return snap
}

// appendLocked adds a transcript entry with the next step number.
// Caller holds s.mu.
func (s *Session) appendLocked(t MessageType, content string, options []string) ClarificationMessage {
	msg := ClarificationMessage{
		Step:      len(s.Transcript) + 1,
		Type:      t,
		Content:   content,
		Timestamp: time.Now().UTC(),
		Options:   options,
	}
	s.Transcript = append(s.Transcript, msg)
	return msg
}

// resetLocked clears a terminated cycle back to a fresh idle session.
// Caller holds s.mu.
func (s *Session) resetLocked() {
	s.State = StateIdle
	s.RunID = uuid.Nil
	s.Fields = ProductFields{}
	s.Query = ""
	s.Transcript = nil
	s.Pending = nil
	s.Result = nil
	s.LastError = ""
	s.UpdatedAt = time.Now().UTC()
}
