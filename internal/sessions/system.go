package sessions

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tariffdesk/tariffdesk/internal/classify"
	"github.com/tariffdesk/tariffdesk/internal/results"
	"github.com/tariffdesk/tariffdesk/internal/settings"
)

// System defines the public contract for session operations.
type System interface {
	Handler() *Handler

	Create(ctx context.Context, userID string) (*Snapshot, error)
	Find(id uuid.UUID) (*Snapshot, error)
	List(userID string) []Snapshot
	Discard(id uuid.UUID) error

	Submit(ctx context.Context, id uuid.UUID, fields ProductFields) (*Snapshot, error)
	Answer(ctx context.Context, id uuid.UUID, answer string) (*Snapshot, error)
	Promote(ctx context.Context, id uuid.UUID, code string) (*Snapshot, error)
	Approve(ctx context.Context, id uuid.UUID) (*Snapshot, error)
	Defer(ctx context.Context, id uuid.UUID) (*Snapshot, error)
}

// Controller owns the live session registry and drives each session's state
// machine against the classification service, the reviewer configuration,
// and the persistence store.
type Controller struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session

	classifier classify.Classifier
	store      Store
	settings   settings.System
	logger     *slog.Logger
}

// New creates a session controller implementing the System interface.
func New(
	classifier classify.Classifier,
	store Store,
	settings settings.System,
	logger *slog.Logger,
) *Controller {
	return &Controller{
		sessions:   make(map[uuid.UUID]*Session),
		classifier: classifier,
		store:      store,
		settings:   settings,
		logger:     logger.With("system", "sessions"),
	}
}

func (c *Controller) Handler() *Handler {
	return NewHandler(c, c.logger)
}

// Create registers a fresh idle session for the given reviewer, reading
// their confidence threshold once at session start.
func (c *Controller) Create(ctx context.Context, userID string) (*Snapshot, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrMissingUser
	}

	threshold, err := c.settings.Threshold(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("read threshold: %w", err)
	}

	s := &Session{
		ID:        uuid.New(),
		UserID:    userID,
		State:     StateIdle,
		Threshold: threshold,
		UpdatedAt: time.Now().UTC(),
	}

	c.mu.Lock()
	c.sessions[s.ID] = s
	c.mu.Unlock()

	c.logger.Info("session created", "id", s.ID, "userId", userID, "threshold", threshold)

	s.mu.Lock()
	snap := s.snapshotLocked()
	s.mu.Unlock()
	return &snap, nil
}

// Find returns a point-in-time view of a session.
func (c *Controller) Find(id uuid.UUID) (*Snapshot, error) {
	s, err := c.session(id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.snapshotLocked()
	return &snap, nil
}

// List returns snapshots of all live sessions, optionally filtered by user.
func (c *Controller) List(userID string) []Snapshot {
	c.mu.RLock()
	live := make([]*Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		live = append(live, s)
	}
	c.mu.RUnlock()

	snaps := make([]Snapshot, 0, len(live))
	for _, s := range live {
		s.mu.Lock()
		if userID == "" || s.UserID == userID {
			snaps = append(snaps, s.snapshotLocked())
		}
		s.mu.Unlock()
	}
	return snaps
}

// Discard removes a session from the registry. Abandoning a session mid
// dialogue is allowed; nothing durable is written.
func (c *Controller) Discard(id uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(c.sessions, id)
	return nil
}

// Submit starts a classification cycle from the captured product fields.
// Valid from idle or failed; rejected while a submission is in flight.
func (c *Controller) Submit(ctx context.Context, id uuid.UUID, fields ProductFields) (*Snapshot, error) {
	s, err := c.session(id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.inFlight() {
		s.mu.Unlock()
		return nil, ErrSubmissionInFlight
	}
	if s.State != StateIdle && s.State != StateFailed {
		state := s.State
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrInvalidState, state)
	}

	s.Fields = fields
	query := fields.Query()
	if query == "" {
		s.mu.Unlock()
		return nil, ErrEmptyQuery
	}

	if s.RunID == uuid.Nil {
		runID, err := c.store.CreateRun(ctx, s.UserID)
		if err != nil {
			s.mu.Unlock()
			return nil, fmt.Errorf("create run: %w", err)
		}
		s.RunID = runID
	}

	s.State = StateSubmitting
	s.Query = query
	s.LastError = ""
	s.UpdatedAt = time.Now().UTC()

	req := classify.Request{
		Description: query,
		UserID:      s.UserID,
		Threshold:   s.Threshold,
	}
	s.mu.Unlock()

	outcome, err := c.classifier.Classify(ctx, req)
	return c.apply(ctx, s, outcome, err)
}

// Answer records the reviewer's reply to an outstanding clarification
// question and resubmits. The resubmission carries the original query and
// the answer as distinct fields so the service can reconcile corrections
// against additions itself.
func (c *Controller) Answer(ctx context.Context, id uuid.UUID, answer string) (*Snapshot, error) {
	s, err := c.session(id)
	if err != nil {
		return nil, err
	}

	answer = strings.TrimSpace(answer)
	if answer == "" {
		return nil, ErrEmptyAnswer
	}

	s.mu.Lock()
	if s.inFlight() {
		s.mu.Unlock()
		return nil, ErrSubmissionInFlight
	}
	if s.State != StateNeedsClarification {
		state := s.State
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrInvalidState, state)
	}

	s.State = StateAwaitingAnswer
	msg := s.appendLocked(MessageUserResponse, answer, nil)
	c.persistMessage(ctx, s.RunID, msg)

	s.State = StateSubmitting
	s.UpdatedAt = time.Now().UTC()

	req := classify.Request{
		Description: s.Query,
		UserID:      s.UserID,
		Threshold:   s.Threshold,
		Clarification: &classify.Clarification{
			OriginalQuery: s.Query,
			Response:      answer,
		},
	}
	s.mu.Unlock()

	outcome, err := c.classifier.Classify(ctx, req)
	return c.apply(ctx, s, outcome, err)
}

// Promote swaps the selected alternate into the primary slot. Selecting the
// current primary is an acknowledged no-op.
func (c *Controller) Promote(ctx context.Context, id uuid.UUID, code string) (*Snapshot, error) {
	s, err := c.session(id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State != StateHasResult {
		return nil, fmt.Errorf("%w: %s", ErrInvalidState, s.State)
	}

	promoted, err := s.Result.Promote(code)
	if err != nil {
		return nil, err
	}

	if promoted {
		c.logger.Info("alternate promoted", "id", s.ID, "hts", code)
	} else {
		c.logger.Info("promotion skipped, already primary", "id", s.ID, "hts", code)
	}

	s.UpdatedAt = time.Now().UTC()
	snap := s.snapshotLocked()
	return &snap, nil
}

// Approve commits the current result as the accepted classification and
// resets the session for the next product.
func (c *Controller) Approve(ctx context.Context, id uuid.UUID) (*Snapshot, error) {
	return c.finalize(ctx, id, StateApproved, true)
}

// Defer commits the current result unapproved, queueing it for later review,
// and resets the session for the next product.
func (c *Controller) Defer(ctx context.Context, id uuid.UUID) (*Snapshot, error) {
	return c.finalize(ctx, id, StateDeferred, false)
}

func (c *Controller) finalize(ctx context.Context, id uuid.UUID, terminal State, approved bool) (*Snapshot, error) {
	s, err := c.session(id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State != StateHasResult {
		return nil, fmt.Errorf("%w: %s", ErrInvalidState, s.State)
	}

	productID, err := c.store.SaveProduct(ctx, s.UserID, s.RunID, s.Fields)
	if err != nil {
		return nil, fmt.Errorf("save product: %w", err)
	}

	resultID, err := c.store.SaveResult(ctx, productID, s.RunID, *s.Result)
	if err != nil {
		return nil, fmt.Errorf("save result: %w", err)
	}

	if err := c.store.RecordApproval(ctx, productID, resultID, s.UserID, approved); err != nil {
		return nil, fmt.Errorf("record approval: %w", err)
	}

	if err := c.store.SetRunStatus(ctx, s.RunID, runStatusCompleted); err != nil {
		return nil, fmt.Errorf("update run status: %w", err)
	}

	c.logger.Info("session finalized",
		"id", s.ID,
		"state", terminal,
		"productId", productID,
		"resultId", resultID,
		"hts", s.Result.Primary.HTS,
	)

	s.State = terminal
	snap := s.snapshotLocked()
	s.resetLocked()
	return &snap, nil
}

// apply folds a classification outcome back into the session under its lock.
func (c *Controller) apply(ctx context.Context, s *Session, outcome *classify.Outcome, err error) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.State = StateFailed
		s.LastError = err.Error()
		s.UpdatedAt = time.Now().UTC()
		c.logger.Warn("classification failed", "id", s.ID, "error", err)
		return nil, err
	}

	if outcome.NeedsClarification {
		for _, q := range outcome.Questions {
			msg := s.appendLocked(MessageQuestion, q.Text, q.Options)
			c.persistMessage(ctx, s.RunID, msg)
		}
		s.Pending = outcome.Candidates
		s.State = StateNeedsClarification
		s.UpdatedAt = time.Now().UTC()

		snap := s.snapshotLocked()
		return &snap, nil
	}

	s.Result = results.New(outcome.Candidates)
	s.Pending = nil
	s.State = StateHasResult
	s.UpdatedAt = time.Now().UTC()

	c.logger.Info("classification complete",
		"id", s.ID,
		"hts", s.Result.Primary.HTS,
		"confidence", s.Result.Primary.Confidence,
		"alternates", len(s.Result.Alternates),
	)

	snap := s.snapshotLocked()
	return &snap, nil
}

// persistMessage writes a transcript entry. A storage failure does not fail
// the dialogue; the in-memory transcript remains the source of truth for the
// live session.
func (c *Controller) persistMessage(ctx context.Context, runID uuid.UUID, msg ClarificationMessage) {
	if err := c.store.AppendClarification(ctx, runID, msg); err != nil {
		c.logger.Warn("failed to persist clarification", "runId", runID, "step", msg.Step, "error", err)
	}
}

func (c *Controller) session(id uuid.UUID) (*Session, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s, ok := c.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}
