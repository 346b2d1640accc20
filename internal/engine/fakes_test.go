package engine_test

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/rhinocodelab/idms-v3/internal/activity"
	"github.com/rhinocodelab/idms-v3/internal/classifications"
	"github.com/rhinocodelab/idms-v3/internal/classifier"
	"github.com/rhinocodelab/idms-v3/internal/documents"
	"github.com/rhinocodelab/idms-v3/internal/engine"
	"github.com/rhinocodelab/idms-v3/internal/queue"
	"github.com/rhinocodelab/idms-v3/internal/workflows"
	"github.com/rhinocodelab/idms-v3/pkg/pagination"
)

var fixedNow = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

// fakeClock reports a fixed time and hands every interval wait to the test
// through waits, so a receive marks the end of one runner cycle.
type fakeClock struct {
	waits chan chan time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{waits: make(chan chan time.Time, 16)}
}

func (c *fakeClock) Now() time.Time {
	return fixedNow
}

func (c *fakeClock) After(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	c.waits <- ch
	return ch
}

// cycle blocks until a runner reaches its interval wait and returns the
// channel that ends the wait.
func (c *fakeClock) cycle(t *testing.T) chan time.Time {
	t.Helper()
	select {
	case ch := <-c.waits:
		return ch
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not complete a cycle")
		return nil
	}
}

type memWorkflows struct {
	mu    sync.Mutex
	items map[uuid.UUID]*workflows.Workflow
}

func newMemWorkflows() *memWorkflows {
	return &memWorkflows{items: make(map[uuid.UUID]*workflows.Workflow)}
}

func (m *memWorkflows) List(_ context.Context, page pagination.PageRequest, _ workflows.Filters) (*pagination.PageResult[workflows.Workflow], error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []workflows.Workflow
	for _, wf := range m.items {
		out = append(out, *wf)
	}
	result := pagination.NewPageResult(out, len(out), 1, max(page.PageSize, 1))
	return &result, nil
}

func (m *memWorkflows) Find(_ context.Context, id uuid.UUID) (*workflows.Workflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	wf, ok := m.items[id]
	if !ok {
		return nil, workflows.ErrNotFound
	}
	cp := *wf
	return &cp, nil
}

func (m *memWorkflows) FindByStatus(_ context.Context, status workflows.Status) ([]workflows.Workflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []workflows.Workflow
	for _, wf := range m.items {
		if wf.Status == status {
			out = append(out, *wf)
		}
	}
	return out, nil
}

func (m *memWorkflows) Create(_ context.Context, cmd workflows.CreateCommand) (*workflows.Workflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, wf := range m.items {
		if wf.SourcePath == cmd.SourcePath {
			return nil, workflows.ErrDuplicateSource
		}
	}

	wf := &workflows.Workflow{
		ID:              uuid.New(),
		Name:            cmd.Name,
		SourcePath:      cmd.SourcePath,
		IntervalSeconds: cmd.IntervalSeconds,
		Status:          workflows.StatusStopped,
		OwnerID:         cmd.OwnerID,
		CreatedAt:       fixedNow,
		UpdatedAt:       fixedNow,
	}
	m.items[wf.ID] = wf
	cp := *wf
	return &cp, nil
}

func (m *memWorkflows) Update(_ context.Context, id uuid.UUID, cmd workflows.UpdateCommand) (*workflows.Workflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	wf, ok := m.items[id]
	if !ok {
		return nil, workflows.ErrNotFound
	}
	wf.Name = cmd.Name
	wf.SourcePath = cmd.SourcePath
	wf.IntervalSeconds = cmd.IntervalSeconds
	cp := *wf
	return &cp, nil
}

func (m *memWorkflows) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.items[id]; !ok {
		return workflows.ErrNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *memWorkflows) SetStatus(_ context.Context, id uuid.UUID, status workflows.Status, msg *string) (*workflows.Workflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	wf, ok := m.items[id]
	if !ok {
		return nil, workflows.ErrNotFound
	}
	wf.Status = status
	wf.ErrorMessage = msg
	cp := *wf
	return &cp, nil
}

func (m *memWorkflows) RecordScan(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	wf, ok := m.items[id]
	if !ok {
		return workflows.ErrNotFound
	}
	wf.LastScanAt = &at
	return nil
}

func (m *memWorkflows) clearScan(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[id].LastScanAt = nil
}

func (m *memWorkflows) RecordOutcome(_ context.Context, id uuid.UUID, succeeded bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	wf, ok := m.items[id]
	if !ok {
		return workflows.ErrNotFound
	}
	if succeeded {
		wf.ProcessedCount++
	} else {
		wf.FailedCount++
	}
	return nil
}

// memQueue enforces the same guarded transitions as the SQL store and
// tracks the peak number of processing items per workflow.
type memQueue struct {
	mu    sync.Mutex
	seq   int64
	items []*queue.Item

	processing map[uuid.UUID]int
	peak       map[uuid.UUID]int

	// releaseErrs fails that many Release calls before the store applies them.
	releaseErrs int
}

func newMemQueue() *memQueue {
	return &memQueue{
		processing: make(map[uuid.UUID]int),
		peak:       make(map[uuid.UUID]int),
	}
}

func (m *memQueue) find(id uuid.UUID) *queue.Item {
	for _, it := range m.items {
		if it.ID == id {
			return it
		}
	}
	return nil
}

func (m *memQueue) List(_ context.Context, _ pagination.PageRequest, filters queue.Filters) (*pagination.PageResult[queue.Item], error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []queue.Item
	for _, it := range m.items {
		if filters.WorkflowID != nil && it.WorkflowID != *filters.WorkflowID {
			continue
		}
		if filters.Status != nil && it.Status != *filters.Status {
			continue
		}
		out = append(out, *it)
	}
	result := pagination.NewPageResult(out, len(out), 1, max(len(out), 1))
	return &result, nil
}

func (m *memQueue) Find(_ context.Context, id uuid.UUID) (*queue.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	it := m.find(id)
	if it == nil {
		return nil, queue.ErrNotFound
	}
	cp := *it
	return &cp, nil
}

func (m *memQueue) Exists(_ context.Context, workflowID uuid.UUID, checksum string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return slices.ContainsFunc(m.items, func(it *queue.Item) bool {
		return it.WorkflowID == workflowID && it.Checksum == checksum
	}), nil
}

func (m *memQueue) Enqueue(_ context.Context, cmd queue.EnqueueCommand) (*queue.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, it := range m.items {
		if it.WorkflowID == cmd.WorkflowID && it.Checksum == cmd.Checksum {
			return nil, queue.ErrDuplicate
		}
	}

	m.seq++
	it := &queue.Item{
		ID:           uuid.New(),
		Seq:          m.seq,
		WorkflowID:   cmd.WorkflowID,
		FilePath:     cmd.FilePath,
		FileName:     cmd.FileName,
		FileSize:     cmd.FileSize,
		Checksum:     cmd.Checksum,
		Status:       queue.StatusPending,
		DiscoveredAt: fixedNow,
		UpdatedAt:    fixedNow,
	}
	m.items = append(m.items, it)
	cp := *it
	return &cp, nil
}

func (m *memQueue) NextPending(_ context.Context, workflowID uuid.UUID, afterSeq int64) (*queue.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, it := range m.items {
		if it.WorkflowID == workflowID && it.Status == queue.StatusPending && it.Seq > afterSeq {
			cp := *it
			return &cp, nil
		}
	}
	return nil, queue.ErrNotFound
}

func (m *memQueue) move(id uuid.UUID, next queue.Status, apply func(*queue.Item)) (*queue.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	it := m.find(id)
	if it == nil {
		return nil, queue.ErrNotFound
	}
	if !it.Status.CanTransition(next) {
		return nil, queue.ErrInvalidTransition
	}

	if it.Status == queue.StatusProcessing {
		m.processing[it.WorkflowID]--
	}
	if next == queue.StatusProcessing {
		m.processing[it.WorkflowID]++
		m.peak[it.WorkflowID] = max(m.peak[it.WorkflowID], m.processing[it.WorkflowID])
	}

	it.Status = next
	if apply != nil {
		apply(it)
	}
	cp := *it
	return &cp, nil
}

func (m *memQueue) Claim(_ context.Context, id uuid.UUID) (*queue.Item, error) {
	return m.move(id, queue.StatusProcessing, nil)
}

func (m *memQueue) Attach(_ context.Context, id, classificationID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	it := m.find(id)
	if it == nil {
		return queue.ErrNotFound
	}
	it.ClassificationID = &classificationID
	return nil
}

func (m *memQueue) Complete(_ context.Context, id uuid.UUID, processedPath string) (*queue.Item, error) {
	return m.move(id, queue.StatusCompleted, func(it *queue.Item) {
		it.ProcessedPath = &processedPath
		it.ErrorMessage = nil
	})
}

func (m *memQueue) Release(_ context.Context, id uuid.UUID, reason string) (*queue.Item, error) {
	m.mu.Lock()
	if m.releaseErrs > 0 {
		m.releaseErrs--
		m.mu.Unlock()
		return nil, fmt.Errorf("connection reset")
	}
	m.mu.Unlock()

	return m.move(id, queue.StatusPending, func(it *queue.Item) {
		it.RetryCount++
		it.ErrorMessage = &reason
	})
}

func (m *memQueue) Fail(_ context.Context, id uuid.UUID, reason string) (*queue.Item, error) {
	return m.move(id, queue.StatusFailed, func(it *queue.Item) {
		it.RetryCount++
		it.ErrorMessage = &reason
	})
}

func (m *memQueue) Retry(_ context.Context, id uuid.UUID) (*queue.Item, error) {
	return m.move(id, queue.StatusPending, nil)
}

func (m *memQueue) RecoverProcessing(_ context.Context) ([]queue.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []queue.Item
	for _, it := range m.items {
		if it.Status == queue.StatusProcessing {
			it.Status = queue.StatusPending
			m.processing[it.WorkflowID]--
			out = append(out, *it)
		}
	}
	return out, nil
}

func (m *memQueue) RecoverWorkflow(_ context.Context, workflowID uuid.UUID) ([]queue.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []queue.Item
	for _, it := range m.items {
		if it.WorkflowID == workflowID && it.Status == queue.StatusProcessing {
			it.Status = queue.StatusPending
			m.processing[it.WorkflowID]--
			out = append(out, *it)
		}
	}
	return out, nil
}

func (m *memQueue) Stats(_ context.Context, _ time.Time) (queue.Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var s queue.Stats
	for _, it := range m.items {
		switch it.Status {
		case queue.StatusCompleted:
			s.ProcessedToday++
		case queue.StatusPending:
			s.Pending++
		case queue.StatusProcessing:
			s.Processing++
		case queue.StatusFailed:
			s.Failed++
		}
	}
	return s, nil
}

func (m *memQueue) byWorkflow(id uuid.UUID) []queue.Item {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []queue.Item
	for _, it := range m.items {
		if it.WorkflowID == id {
			out = append(out, *it)
		}
	}
	return out
}

func (m *memQueue) peakProcessing(id uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peak[id]
}

func (m *memQueue) seed(it queue.Item) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	it.Seq = m.seq
	if it.Status == queue.StatusProcessing {
		m.processing[it.WorkflowID]++
	}
	m.items = append(m.items, &it)
}

type memActivity struct {
	mu      sync.Mutex
	entries []activity.RecordCommand
}

func (m *memActivity) Record(_ context.Context, cmd activity.RecordCommand) (*activity.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = append(m.entries, cmd)
	return &activity.Entry{
		ID:          uuid.New(),
		WorkflowID:  cmd.WorkflowID,
		QueueItemID: cmd.QueueItemID,
		Level:       cmd.Level,
		Message:     cmd.Message,
		CreatedAt:   fixedNow,
	}, nil
}

func (m *memActivity) List(_ context.Context, _ pagination.PageRequest, filters activity.Filters) (*pagination.PageResult[activity.Entry], error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []activity.Entry
	for _, cmd := range m.entries {
		if filters.WorkflowID != nil && cmd.WorkflowID != *filters.WorkflowID {
			continue
		}
		out = append(out, activity.Entry{WorkflowID: cmd.WorkflowID, Level: cmd.Level, Message: cmd.Message})
	}
	result := pagination.NewPageResult(out, len(out), 1, max(len(out), 1))
	return &result, nil
}

func (m *memActivity) levels(workflowID uuid.UUID) []activity.Level {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []activity.Level
	for _, cmd := range m.entries {
		if cmd.WorkflowID == workflowID {
			out = append(out, cmd.Level)
		}
	}
	return out
}

type memClassifications struct {
	mu        sync.Mutex
	records   map[uuid.UUID]classifications.Classification
	createErr error
}

func newMemClassifications() *memClassifications {
	return &memClassifications{records: make(map[uuid.UUID]classifications.Classification)}
}

func (m *memClassifications) Handler() *classifications.Handler { return nil }

func (m *memClassifications) List(context.Context, pagination.PageRequest, classifications.Filters) (*pagination.PageResult[classifications.Classification], error) {
	return nil, fmt.Errorf("not implemented")
}

func (m *memClassifications) Summary(context.Context, *uuid.UUID) (*classifications.Summary, error) {
	return nil, fmt.Errorf("not implemented")
}

func (m *memClassifications) Find(_ context.Context, id uuid.UUID) (*classifications.Classification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.records[id]
	if !ok {
		return nil, classifications.ErrNotFound
	}
	return &c, nil
}

func (m *memClassifications) Create(_ context.Context, cmd classifications.CreateCommand) (*classifications.Classification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.createErr != nil {
		return nil, m.createErr
	}

	c := classifications.Classification{
		ID:               uuid.New(),
		WorkflowID:       cmd.WorkflowID,
		QueueItemID:      cmd.QueueItemID,
		Filename:         cmd.Filename,
		DocumentType:     cmd.DocumentType,
		CriticalityLevel: cmd.CriticalityLevel,
		Confidence:       cmd.Confidence,
		StorageKey:       cmd.StorageKey,
		ModelName:        cmd.ModelName,
		ClassifiedAt:     fixedNow,
	}
	m.records[c.ID] = c
	return &c, nil
}

func (m *memClassifications) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[id]; !ok {
		return classifications.ErrNotFound
	}
	delete(m.records, id)
	return nil
}

func (m *memClassifications) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

type memDocuments struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newMemDocuments() *memDocuments {
	return &memDocuments{blobs: make(map[string][]byte)}
}

func (m *memDocuments) Handler() *documents.Handler { return nil }

func (m *memDocuments) Upload(_ context.Context, cmd documents.UploadCommand) (*documents.Reference, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := fmt.Sprintf("documents/%s/%s/%s", cmd.WorkflowID, cmd.QueueItemID, cmd.Filename)
	m.blobs[key] = cmd.Data
	return &documents.Reference{
		Key:         key,
		ContentType: cmd.ContentType,
		SizeBytes:   int64(len(cmd.Data)),
		UploadedAt:  fixedNow,
	}, nil
}

func (m *memDocuments) Open(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, ok := m.blobs[key]
	if !ok {
		return nil, documents.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memDocuments) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.blobs, key)
	return nil
}

func (m *memDocuments) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.blobs)
}

type fakeClassifier struct {
	classifyFn func(ctx context.Context, in classifier.Input) (*classifier.Result, error)
}

func (f *fakeClassifier) Classify(ctx context.Context, in classifier.Input) (*classifier.Result, error) {
	if f.classifyFn != nil {
		return f.classifyFn(ctx, in)
	}
	return &classifier.Result{
		DocumentType:     "invoice",
		CriticalityLevel: "high",
		Confidence:       0.9,
		Model:            "test-model",
	}, nil
}

type harness struct {
	clock           *fakeClock
	workflows       *memWorkflows
	queue           *memQueue
	activity        *memActivity
	classifications *memClassifications
	documents       *memDocuments
	classifier      *fakeClassifier
	sup             *engine.Supervisor
}

func newHarness(t *testing.T, cfg engine.Config) *harness {
	t.Helper()

	h := &harness{
		clock:           newFakeClock(),
		workflows:       newMemWorkflows(),
		queue:           newMemQueue(),
		activity:        &memActivity{},
		classifications: newMemClassifications(),
		documents:       newMemDocuments(),
		classifier:      &fakeClassifier{},
	}

	sup, err := engine.New(engine.Runtime{
		Workflows:       h.workflows,
		Queue:           h.queue,
		Activity:        h.activity,
		Classifications: h.classifications,
		Documents:       h.documents,
		Classifier:      h.classifier,
		Clock:           h.clock,
		Meter:           noop.NewMeterProvider(),
		Logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, cfg, pagination.Config{DefaultPageSize: 20, MaxPageSize: 100})
	if err != nil {
		t.Fatalf("new supervisor: %v", err)
	}
	h.sup = sup

	return h
}

func (h *harness) createWorkflow(t *testing.T, name, dir string) *workflows.Workflow {
	t.Helper()

	wf, err := h.sup.CreateWorkflow(context.Background(), workflows.CreateCommand{
		Name:            name,
		SourcePath:      dir,
		IntervalSeconds: 10,
		OwnerID:         "owner-1",
	})
	if err != nil {
		t.Fatalf("create workflow: %v", err)
	}
	return wf
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
