package runs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tariffdesk/tariffdesk/internal/classify"
	"github.com/tariffdesk/tariffdesk/internal/settings"
	"github.com/tariffdesk/tariffdesk/pkg/lifecycle"
	"github.com/tariffdesk/tariffdesk/pkg/pagination"
	"github.com/tariffdesk/tariffdesk/pkg/storage"
)

// saveItemConcurrency bounds parallel item persistence when a run completes.
const saveItemConcurrency = 4

// System defines the public contract for bulk run operations.
type System interface {
	Handler() *Handler
	Start(lc *lifecycle.Coordinator)

	StartRun(ctx context.Context, userID, fileName string, file io.Reader) (*View, error)
	Find(ctx context.Context, id uuid.UUID) (*View, error)
	List(ctx context.Context, page pagination.PageRequest, filters Filters) (*pagination.PageResult[Run], error)
	ClarifyItem(ctx context.Context, id uuid.UUID, itemID string, answers []string) error
	Cancel(ctx context.Context, id uuid.UUID) (*View, error)
	Items(ctx context.Context, id uuid.UUID) ([]ItemRecord, error)
	Export(ctx context.Context, id uuid.UUID, w io.Writer) error
	SourceFile(ctx context.Context, id uuid.UUID) (*storage.DownloadResult, string, error)
}

// activeRun is the in-process state of one live bulk run: the latest server
// snapshot plus the poller driving it. The snapshot is replaced wholesale on
// every successful poll; the server is the sole authority on item state.
type activeRun struct {
	mu sync.Mutex

	id       uuid.UUID
	remoteID string
	userID   string

	snapshot    *classify.BulkRun
	lastPollErr string

	stop func()
}

// Orchestrator owns live bulk runs and their pollers.
type Orchestrator struct {
	mu   sync.RWMutex
	live map[uuid.UUID]*activeRun

	classifier classify.Classifier
	store      Store
	blobs      storage.System
	settings   settings.System
	logger     *slog.Logger

	interval time.Duration

	ctx     context.Context
	cancel  context.CancelFunc
	pollers sync.WaitGroup

	pg pagination.Config
}

// New creates a bulk run orchestrator implementing the System interface.
func New(
	cfg *Config,
	classifier classify.Classifier,
	store Store,
	blobs storage.System,
	settings settings.System,
	logger *slog.Logger,
	pg pagination.Config,
) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())

	return &Orchestrator{
		live:       make(map[uuid.UUID]*activeRun),
		classifier: classifier,
		store:      store,
		blobs:      blobs,
		settings:   settings,
		logger:     logger.With("system", "runs"),
		interval:   cfg.PollIntervalDuration(),
		ctx:        ctx,
		cancel:     cancel,
		pg:         pg,
	}
}

func (o *Orchestrator) Handler() *Handler {
	return NewHandler(o, o.logger, o.pg)
}

// Start registers the poll supervisor with the lifecycle coordinator so
// server shutdown stops every live poller.
func (o *Orchestrator) Start(lc *lifecycle.Coordinator) {
	lc.OnShutdown(func() {
		<-lc.Context().Done()
		o.cancel()
		o.pollers.Wait()
		o.logger.Info("all pollers stopped")
	})
}

// StartRun archives the uploaded file, forwards it to the classification
// service with the reviewer's threshold, and begins polling the new run.
func (o *Orchestrator) StartRun(ctx context.Context, userID, fileName string, file io.Reader) (*View, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrMissingUser
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}

	threshold, err := o.settings.Threshold(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("read threshold: %w", err)
	}

	fileName = path.Base(fileName)
	if fileName == "" || fileName == "." || fileName == "/" {
		fileName = "upload"
	}

	id, err := o.store.Create(ctx, userID, fileName)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("runs/%s/%s", id, fileName)
	contentType := mime.TypeByExtension(path.Ext(fileName))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	// Archival is audit support, not a precondition for classification.
	if err := o.blobs.Upload(ctx, key, bytes.NewReader(data), contentType); err != nil {
		o.logger.Warn("source archival failed", "runId", id, "key", key, "error", err)
	} else if err := o.store.UpdateFileKey(ctx, id, key); err != nil {
		o.logger.Warn("failed to record file key", "runId", id, "error", err)
	}

	handle, err := o.classifier.StartBulk(ctx, classify.StartBulkRequest{
		Filename:  fileName,
		Data:      data,
		UserID:    userID,
		Threshold: threshold,
	})
	if err != nil {
		if serr := o.store.SetStatus(ctx, id, classify.RunFailed); serr != nil {
			o.logger.Warn("failed to mark run failed", "runId", id, "error", serr)
		}
		return nil, err
	}

	if err := o.store.SetHandle(ctx, id, *handle); err != nil {
		return nil, err
	}

	run := &activeRun{
		id:       id,
		remoteID: handle.RunID,
		userID:   userID,
		snapshot: &classify.BulkRun{
			RunID:      handle.RunID,
			Status:     handle.Status,
			TotalItems: handle.TotalItems,
		},
	}

	pollCtx, stop := context.WithCancel(o.ctx)
	run.stop = stop

	o.mu.Lock()
	o.live[id] = run
	o.mu.Unlock()

	o.pollers.Add(1)
	go o.poll(pollCtx, run)

	o.logger.Info("bulk run started",
		"runId", id,
		"remoteId", handle.RunID,
		"userId", userID,
		"totalItems", handle.TotalItems,
		"file", fileName,
	)

	return o.view(ctx, id)
}

// Find returns the persisted run row plus the live snapshot when available.
func (o *Orchestrator) Find(ctx context.Context, id uuid.UUID) (*View, error) {
	return o.view(ctx, id)
}

// List returns a page of persisted runs, newest first.
func (o *Orchestrator) List(
	ctx context.Context,
	page pagination.PageRequest,
	filters Filters,
) (*pagination.PageResult[Run], error) {
	return o.store.List(ctx, page, filters)
}

// ClarifyItem forwards clarification answers for one bulk item. The answers
// stream is independent of the poll loop; item state changes surface on the
// next poll.
func (o *Orchestrator) ClarifyItem(ctx context.Context, id uuid.UUID, itemID string, answers []string) error {
	run, err := o.activeByID(id)
	if err != nil {
		return err
	}

	return o.classifier.ClarifyItem(ctx, run.remoteID, itemID, answers)
}

// Cancel requests best-effort cancellation. A cancel racing with terminal
// completion is not an error; the next poll's status decides what the
// reviewer sees.
func (o *Orchestrator) Cancel(ctx context.Context, id uuid.UUID) (*View, error) {
	run, err := o.activeByID(id)
	if err != nil {
		return nil, err
	}

	run.mu.Lock()
	terminal := run.snapshot != nil && run.snapshot.Status.Terminal()
	run.mu.Unlock()

	if !terminal {
		if _, err := o.classifier.CancelBulk(ctx, run.remoteID); err != nil {
			o.logger.Warn("cancel request failed", "runId", id, "error", err)
		}
	}

	return o.view(ctx, id)
}

// Items returns the persisted result history for a run. Unlike the live
// snapshot this reads only stored rows, so it works across restarts and
// covers interactive runs too.
func (o *Orchestrator) Items(ctx context.Context, id uuid.UUID) ([]ItemRecord, error) {
	if _, err := o.store.Find(ctx, id); err != nil {
		return nil, err
	}
	return o.store.ListItems(ctx, id)
}

// SourceFile streams the archived upload for a run.
func (o *Orchestrator) SourceFile(ctx context.Context, id uuid.UUID) (*storage.DownloadResult, string, error) {
	run, err := o.store.Find(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if run.FileKey == "" {
		return nil, "", ErrNoSourceFile
	}

	result, err := o.blobs.Download(ctx, run.FileKey)
	if err != nil {
		return nil, "", err
	}
	return result, run.FileName, nil
}

// poll drives one run to a terminal status. A failed poll is transient and
// recorded for the reviewer; polling continues until the server reports a
// terminal status or the orchestrator shuts down.
func (o *Orchestrator) poll(ctx context.Context, run *activeRun) {
	defer o.pollers.Done()

	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap, err := o.classifier.PollBulk(ctx, run.remoteID)
			if err != nil {
				run.mu.Lock()
				run.lastPollErr = err.Error()
				run.mu.Unlock()
				o.logger.Warn("poll failed", "runId", run.id, "error", err)
				continue
			}

			terminal := o.applySnapshot(ctx, run, snap)
			if terminal {
				o.finalize(ctx, run)
				return
			}
		}
	}
}

// applySnapshot replaces the run's view with the latest server snapshot.
// A terminal status never reverts: a stale non-terminal snapshot arriving
// after a terminal one is discarded.
func (o *Orchestrator) applySnapshot(ctx context.Context, run *activeRun, snap *classify.BulkRun) bool {
	run.mu.Lock()
	if run.snapshot != nil && run.snapshot.Status.Terminal() && !snap.Status.Terminal() {
		run.mu.Unlock()
		return true
	}
	run.snapshot = snap
	run.lastPollErr = ""
	run.mu.Unlock()

	if err := o.store.UpdateProgress(ctx, run.id, snap); err != nil {
		o.logger.Warn("failed to persist run progress", "runId", run.id, "error", err)
	}

	return snap.Status.Terminal()
}

// finalize persists the items of a terminal run so completed and exception
// rows join the review queue.
func (o *Orchestrator) finalize(ctx context.Context, run *activeRun) {
	run.mu.Lock()
	snap := run.snapshot
	run.mu.Unlock()

	o.logger.Info("bulk run terminal",
		"runId", run.id,
		"status", snap.Status,
		"completed", snap.Summary.Completed,
		"exceptions", snap.Summary.Exceptions,
		"errors", snap.Summary.Errors,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(saveItemConcurrency)

	for _, item := range snap.Items {
		if item.Status != classify.ItemCompleted && item.Status != classify.ItemException {
			continue
		}
		g.Go(func() error {
			return o.store.SaveItem(gctx, run.id, run.userID, item)
		})
	}

	if err := g.Wait(); err != nil {
		o.logger.Error("failed to persist run items", "runId", run.id, "error", err)
	}
}

func (o *Orchestrator) view(ctx context.Context, id uuid.UUID) (*View, error) {
	row, err := o.store.Find(ctx, id)
	if err != nil {
		return nil, err
	}

	v := &View{Run: *row}

	o.mu.RLock()
	run, ok := o.live[id]
	o.mu.RUnlock()

	if ok {
		run.mu.Lock()
		if run.snapshot != nil {
			snap := *run.snapshot
			snap.Items = append([]classify.BulkItem(nil), run.snapshot.Items...)
			v.Snapshot = &snap
		}
		v.LastPollError = run.lastPollErr
		run.mu.Unlock()
	}

	return v, nil
}

func (o *Orchestrator) activeByID(id uuid.UUID) (*activeRun, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	run, ok := o.live[id]
	if !ok {
		return nil, ErrNotLive
	}
	return run, nil
}

