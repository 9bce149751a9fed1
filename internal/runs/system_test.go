package runs_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tariffdesk/tariffdesk/internal/classify"
	"github.com/tariffdesk/tariffdesk/internal/results"
	"github.com/tariffdesk/tariffdesk/internal/runs"
	"github.com/tariffdesk/tariffdesk/internal/settings"
	"github.com/tariffdesk/tariffdesk/pkg/lifecycle"
	"github.com/tariffdesk/tariffdesk/pkg/pagination"
	"github.com/tariffdesk/tariffdesk/pkg/storage"
)

// fakeBulkClassifier serves a scripted sequence of poll snapshots. When the
// script runs out the last entry repeats, so extra ticker fires are harmless.
type fakeBulkClassifier struct {
	classify.Classifier

	mu          sync.Mutex
	startErr    error
	handle      classify.BulkRunHandle
	startReqs   []classify.StartBulkRequest
	polls       []pollReply
	cancelCalls int
	clarified   [][]string
}

type pollReply struct {
	snap *classify.BulkRun
	err  error
}

func (c *fakeBulkClassifier) StartBulk(ctx context.Context, req classify.StartBulkRequest) (*classify.BulkRunHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startReqs = append(c.startReqs, req)
	if c.startErr != nil {
		return nil, c.startErr
	}
	h := c.handle
	return &h, nil
}

func (c *fakeBulkClassifier) PollBulk(ctx context.Context, runID string) (*classify.BulkRun, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.polls) == 0 {
		return nil, errors.New("no scripted poll")
	}
	reply := c.polls[0]
	if len(c.polls) > 1 {
		c.polls = c.polls[1:]
	}
	if reply.err != nil {
		return nil, reply.err
	}
	snap := *reply.snap
	return &snap, nil
}

func (c *fakeBulkClassifier) CancelBulk(ctx context.Context, runID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelCalls++
	return true, nil
}

func (c *fakeBulkClassifier) ClarifyItem(ctx context.Context, runID, itemID string, answers []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clarified = append(c.clarified, append([]string{runID, itemID}, answers...))
	return nil
}

// memRunStore keeps run rows and saved items in memory.
type memRunStore struct {
	mu    sync.Mutex
	rows  map[uuid.UUID]*runs.Run
	items []classify.BulkItem
}

func newMemRunStore() *memRunStore {
	return &memRunStore{rows: make(map[uuid.UUID]*runs.Run)}
}

func (s *memRunStore) Create(ctx context.Context, userID, fileName string) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New()
	s.rows[id] = &runs.Run{
		ID:       id,
		UserID:   userID,
		Kind:     runs.KindBulk,
		Status:   classify.RunPending,
		FileName: fileName,
	}
	return id, nil
}

func (s *memRunStore) UpdateFileKey(ctx context.Context, id uuid.UUID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[id].FileKey = key
	return nil
}

func (s *memRunStore) SetHandle(ctx context.Context, id uuid.UUID, handle classify.BulkRunHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.rows[id]
	row.RemoteID = handle.RunID
	row.Status = handle.Status
	row.TotalItems = handle.TotalItems
	return nil
}

func (s *memRunStore) SetStatus(ctx context.Context, id uuid.UUID, status classify.RunStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[id].Status = status
	return nil
}

func (s *memRunStore) UpdateProgress(ctx context.Context, id uuid.UUID, snap *classify.BulkRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.rows[id]
	row.Status = snap.Status
	row.ProgressCurrent = snap.ProgressCurrent
	row.ProgressTotal = snap.ProgressTotal
	summary := snap.Summary
	row.Summary = &summary
	return nil
}

func (s *memRunStore) Find(ctx context.Context, id uuid.UUID) (*runs.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		return nil, runs.ErrNotFound
	}
	copied := *row
	return &copied, nil
}

func (s *memRunStore) List(ctx context.Context, page pagination.PageRequest, filters runs.Filters) (*pagination.PageResult[runs.Run], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data := make([]runs.Run, 0, len(s.rows))
	for _, row := range s.rows {
		data = append(data, *row)
	}
	result := pagination.NewPageResult(data, len(data), 1, len(data))
	return &result, nil
}

func (s *memRunStore) SaveItem(ctx context.Context, runID uuid.UUID, userID string, item classify.BulkItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, item)
	return nil
}

func (s *memRunStore) ListItems(ctx context.Context, runID uuid.UUID) ([]runs.ItemRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := make([]runs.ItemRecord, 0, len(s.items))
	for _, item := range s.items {
		rec := runs.ItemRecord{ProductID: uuid.New(), RowNumber: item.RowNumber}
		if item.Result != nil {
			rec.HTS = item.Result.Primary.HTS
			rec.Confidence = item.Result.Primary.Confidence
		}
		records = append(records, rec)
	}
	return records, nil
}

func (s *memRunStore) savedItems() []classify.BulkItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]classify.BulkItem(nil), s.items...)
}

func (s *memRunStore) status(id uuid.UUID) classify.RunStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows[id].Status
}

// memBlobs is an in-memory storage.System.
type memBlobs struct {
	mu        sync.Mutex
	blobs     map[string][]byte
	uploadErr error
}

func newMemBlobs() *memBlobs {
	return &memBlobs{blobs: make(map[string][]byte)}
}

func (b *memBlobs) Start(lc *lifecycle.Coordinator) error { return nil }

func (b *memBlobs) Upload(ctx context.Context, key string, reader io.Reader, contentType string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.uploadErr != nil {
		return b.uploadErr
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	b.blobs[key] = data
	return nil
}

func (b *memBlobs) Download(ctx context.Context, key string) (*storage.DownloadResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.blobs[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &storage.DownloadResult{
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentType:   "text/csv",
		ContentLength: int64(len(data)),
	}, nil
}

func (b *memBlobs) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.blobs, key)
	return nil
}

func (b *memBlobs) Exists(ctx context.Context, key string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.blobs[key]
	return ok, nil
}

type fixedSettings struct {
	settings.System
	threshold float64
}

func (f fixedSettings) Threshold(ctx context.Context, userID string) (float64, error) {
	return f.threshold, nil
}

func newOrchestrator(t *testing.T, classifier classify.Classifier, store runs.Store, blobs storage.System) *runs.Orchestrator {
	t.Helper()

	cfg := runs.Config{PollInterval: "10ms"}
	if err := cfg.Finalize(nil); err != nil {
		t.Fatalf("Finalize() error: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	o := runs.New(&cfg, classifier, store, blobs, fixedSettings{threshold: 0.75}, logger, pagination.Config{})

	lc := lifecycle.New()
	o.Start(lc)
	t.Cleanup(func() { lc.Shutdown(5 * time.Second) })

	return o
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func terminalSnapshot() *classify.BulkRun {
	return &classify.BulkRun{
		RunID:           "bulk-9",
		Status:          classify.RunCompleted,
		TotalItems:      3,
		ProgressCurrent: 3,
		ProgressTotal:   3,
		Summary:         classify.RunSummary{Completed: 1, Exceptions: 1, Errors: 1},
		Items: []classify.BulkItem{
			{
				ID:        "item-1",
				RowNumber: 1,
				ExtractedData: map[string]string{
					"product_name": "water bottle",
					"origin":       "VN",
					"cost":         "4.20",
				},
				Status: classify.ItemCompleted,
				Result: &results.ClassificationResult{
					Primary: results.Entry{HTS: "7323.93.0000", Confidence: 97, TariffRate: "2%"},
				},
			},
			{
				ID:            "item-2",
				RowNumber:     2,
				ExtractedData: map[string]string{"product_name": "wool scarf", "materials": "wool"},
				Status:        classify.ItemException,
				Result: &results.ClassificationResult{
					Primary: results.Entry{HTS: "6214.20.0000", Confidence: 61},
				},
			},
			{
				ID:        "item-3",
				RowNumber: 3,
				Status:    classify.ItemError,
				Error:     "unreadable row",
			},
		},
	}
}

func TestStartRunDrivesToTerminal(t *testing.T) {
	classifier := &fakeBulkClassifier{
		handle: classify.BulkRunHandle{RunID: "bulk-9", Status: classify.RunPending, TotalItems: 3},
		polls: []pollReply{
			{snap: &classify.BulkRun{RunID: "bulk-9", Status: classify.RunProcessing, ProgressCurrent: 1, ProgressTotal: 3}},
			{snap: terminalSnapshot()},
		},
	}
	store := newMemRunStore()
	blobs := newMemBlobs()
	o := newOrchestrator(t, classifier, store, blobs)

	v, err := o.StartRun(context.Background(), "analyst-1", "catalog.csv", strings.NewReader("name,origin\nbottle,VN\n"))
	if err != nil {
		t.Fatalf("StartRun() error: %v", err)
	}

	id := v.Run.ID
	if v.Run.RemoteID != "bulk-9" {
		t.Errorf("remote id = %q, want bulk-9", v.Run.RemoteID)
	}
	if v.Run.FileKey == "" {
		t.Error("file key not recorded after archival")
	}
	if _, ok := blobs.blobs[v.Run.FileKey]; !ok {
		t.Errorf("no blob stored at %q", v.Run.FileKey)
	}

	req := classifier.startReqs[0]
	if req.Threshold != 0.75 {
		t.Errorf("start threshold = %v, want 0.75", req.Threshold)
	}

	waitFor(t, func() bool { return store.status(id) == classify.RunCompleted })
	waitFor(t, func() bool { return len(store.savedItems()) == 2 })

	// Only completed and exception items are persisted for review.
	for _, item := range store.savedItems() {
		if item.Status != classify.ItemCompleted && item.Status != classify.ItemException {
			t.Errorf("persisted item with status %s", item.Status)
		}
	}

	final, err := o.Find(context.Background(), id)
	if err != nil {
		t.Fatalf("Find() error: %v", err)
	}
	if final.Snapshot == nil || final.Snapshot.Status != classify.RunCompleted {
		t.Fatalf("final snapshot = %+v, want completed", final.Snapshot)
	}
	if final.Run.ProgressCurrent != 3 || final.Run.Summary == nil || final.Run.Summary.Completed != 1 {
		t.Errorf("persisted progress = %+v", final.Run)
	}

	records, err := o.Items(context.Background(), id)
	if err != nil {
		t.Fatalf("Items() error: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("result history = %d records, want 2", len(records))
	}
}

func TestStartRunValidation(t *testing.T) {
	o := newOrchestrator(t, &fakeBulkClassifier{}, newMemRunStore(), newMemBlobs())

	if _, err := o.StartRun(context.Background(), " ", "f.csv", strings.NewReader("x")); !errors.Is(err, runs.ErrMissingUser) {
		t.Errorf("StartRun() error = %v, want ErrMissingUser", err)
	}
	if _, err := o.StartRun(context.Background(), "analyst-1", "f.csv", strings.NewReader("")); !errors.Is(err, runs.ErrEmptyFile) {
		t.Errorf("StartRun() error = %v, want ErrEmptyFile", err)
	}
}

func TestStartRunServiceFailureMarksRunFailed(t *testing.T) {
	classifier := &fakeBulkClassifier{startErr: classify.ErrService}
	store := newMemRunStore()
	o := newOrchestrator(t, classifier, store, newMemBlobs())

	_, err := o.StartRun(context.Background(), "analyst-1", "catalog.csv", strings.NewReader("x"))
	if !errors.Is(err, classify.ErrService) {
		t.Fatalf("StartRun() error = %v, want ErrService", err)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(store.rows))
	}
	for _, row := range store.rows {
		if row.Status != classify.RunFailed {
			t.Errorf("run status = %s, want failed", row.Status)
		}
	}
}

func TestStartRunArchivalFailureTolerated(t *testing.T) {
	classifier := &fakeBulkClassifier{
		handle: classify.BulkRunHandle{RunID: "bulk-9", Status: classify.RunPending},
		polls:  []pollReply{{snap: terminalSnapshot()}},
	}
	blobs := newMemBlobs()
	blobs.uploadErr = errors.New("container unavailable")
	o := newOrchestrator(t, classifier, newMemRunStore(), blobs)

	v, err := o.StartRun(context.Background(), "analyst-1", "catalog.csv", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("StartRun() error: %v", err)
	}
	if v.Run.FileKey != "" {
		t.Errorf("file key = %q, want empty after failed archival", v.Run.FileKey)
	}

	if _, _, err := o.SourceFile(context.Background(), v.Run.ID); !errors.Is(err, runs.ErrNoSourceFile) {
		t.Errorf("SourceFile() error = %v, want ErrNoSourceFile", err)
	}
}

func TestPollFailureIsTransient(t *testing.T) {
	classifier := &fakeBulkClassifier{
		handle: classify.BulkRunHandle{RunID: "bulk-9", Status: classify.RunPending},
		polls: []pollReply{
			{err: classify.ErrTransport},
			{snap: terminalSnapshot()},
		},
	}
	store := newMemRunStore()
	o := newOrchestrator(t, classifier, store, newMemBlobs())

	v, err := o.StartRun(context.Background(), "analyst-1", "catalog.csv", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("StartRun() error: %v", err)
	}

	// The failed poll does not kill the loop; the run still terminates.
	waitFor(t, func() bool { return store.status(v.Run.ID) == classify.RunCompleted })
}

func TestCancelAfterTerminalSkipsRemoteCall(t *testing.T) {
	classifier := &fakeBulkClassifier{
		handle: classify.BulkRunHandle{RunID: "bulk-9", Status: classify.RunPending},
		polls:  []pollReply{{snap: terminalSnapshot()}},
	}
	store := newMemRunStore()
	o := newOrchestrator(t, classifier, store, newMemBlobs())

	v, err := o.StartRun(context.Background(), "analyst-1", "catalog.csv", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("StartRun() error: %v", err)
	}
	waitFor(t, func() bool { return store.status(v.Run.ID) == classify.RunCompleted })

	cancelled, err := o.Cancel(context.Background(), v.Run.ID)
	if err != nil {
		t.Fatalf("Cancel() error: %v", err)
	}
	if cancelled.Run.Status != classify.RunCompleted {
		t.Errorf("status after cancel = %s, want completed", cancelled.Run.Status)
	}

	classifier.mu.Lock()
	defer classifier.mu.Unlock()
	if classifier.cancelCalls != 0 {
		t.Errorf("remote cancel calls = %d, want 0 for terminal run", classifier.cancelCalls)
	}
}

func TestCancelUnknownRun(t *testing.T) {
	o := newOrchestrator(t, &fakeBulkClassifier{}, newMemRunStore(), newMemBlobs())

	if _, err := o.Cancel(context.Background(), uuid.New()); !errors.Is(err, runs.ErrNotLive) {
		t.Errorf("Cancel() error = %v, want ErrNotLive", err)
	}
}

func TestClarifyItemForwardsAnswers(t *testing.T) {
	classifier := &fakeBulkClassifier{
		handle: classify.BulkRunHandle{RunID: "bulk-9", Status: classify.RunPending},
		polls:  []pollReply{{snap: &classify.BulkRun{RunID: "bulk-9", Status: classify.RunProcessing}}},
	}
	o := newOrchestrator(t, classifier, newMemRunStore(), newMemBlobs())

	v, err := o.StartRun(context.Background(), "analyst-1", "catalog.csv", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("StartRun() error: %v", err)
	}

	if err := o.ClarifyItem(context.Background(), v.Run.ID, "item-2", []string{"knit"}); err != nil {
		t.Fatalf("ClarifyItem() error: %v", err)
	}

	classifier.mu.Lock()
	defer classifier.mu.Unlock()
	if len(classifier.clarified) != 1 {
		t.Fatalf("clarify calls = %d, want 1", len(classifier.clarified))
	}
	want := []string{"bulk-9", "item-2", "knit"}
	for i, field := range want {
		if classifier.clarified[0][i] != field {
			t.Errorf("clarify call = %v, want %v", classifier.clarified[0], want)
			break
		}
	}
}

func TestExport(t *testing.T) {
	classifier := &fakeBulkClassifier{
		handle: classify.BulkRunHandle{RunID: "bulk-9", Status: classify.RunPending},
		polls:  []pollReply{{snap: terminalSnapshot()}},
	}
	store := newMemRunStore()
	o := newOrchestrator(t, classifier, store, newMemBlobs())

	v, err := o.StartRun(context.Background(), "analyst-1", "catalog.csv", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("StartRun() error: %v", err)
	}
	waitFor(t, func() bool { return store.status(v.Run.ID) == classify.RunCompleted })

	var buf bytes.Buffer
	if err := o.Export(context.Background(), v.Run.ID, &buf); err != nil {
		t.Fatalf("Export() error: %v", err)
	}

	want := "row_number,product,status,hts_code,confidence,tariff_rate,origin,materials,cost,error\n" +
		"1,water bottle,completed,7323.93.0000,97,2%,VN,,4.20,\n" +
		"2,wool scarf,exception,6214.20.0000,61,,,wool,,\n" +
		"3,,error,,,,,,,unreadable row\n"
	if got := buf.String(); got != want {
		t.Errorf("Export() =\n%s\nwant\n%s", got, want)
	}
}

func TestExportBeforeTerminal(t *testing.T) {
	classifier := &fakeBulkClassifier{
		handle: classify.BulkRunHandle{RunID: "bulk-9", Status: classify.RunPending},
		polls:  []pollReply{{snap: &classify.BulkRun{RunID: "bulk-9", Status: classify.RunProcessing}}},
	}
	o := newOrchestrator(t, classifier, newMemRunStore(), newMemBlobs())

	v, err := o.StartRun(context.Background(), "analyst-1", "catalog.csv", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("StartRun() error: %v", err)
	}

	var buf bytes.Buffer
	if err := o.Export(context.Background(), v.Run.ID, &buf); !errors.Is(err, runs.ErrNotTerminal) {
		t.Errorf("Export() error = %v, want ErrNotTerminal", err)
	}
}

func TestSourceFileRoundTrip(t *testing.T) {
	classifier := &fakeBulkClassifier{
		handle: classify.BulkRunHandle{RunID: "bulk-9", Status: classify.RunPending},
		polls:  []pollReply{{snap: &classify.BulkRun{RunID: "bulk-9", Status: classify.RunProcessing}}},
	}
	o := newOrchestrator(t, classifier, newMemRunStore(), newMemBlobs())

	content := "name,origin\nbottle,VN\n"
	v, err := o.StartRun(context.Background(), "analyst-1", "catalog.csv", strings.NewReader(content))
	if err != nil {
		t.Fatalf("StartRun() error: %v", err)
	}

	result, name, err := o.SourceFile(context.Background(), v.Run.ID)
	if err != nil {
		t.Fatalf("SourceFile() error: %v", err)
	}
	defer result.Body.Close()

	if name != "catalog.csv" {
		t.Errorf("file name = %q, want catalog.csv", name)
	}
	data, err := io.ReadAll(result.Body)
	if err != nil {
		t.Fatalf("read source: %v", err)
	}
	if string(data) != content {
		t.Errorf("source content = %q, want %q", data, content)
	}
}
