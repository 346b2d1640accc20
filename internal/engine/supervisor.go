package engine

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rhinocodelab/idms-v3/internal/activity"
	"github.com/rhinocodelab/idms-v3/internal/queue"
	"github.com/rhinocodelab/idms-v3/internal/workflows"
	"github.com/rhinocodelab/idms-v3/pkg/lifecycle"
	"github.com/rhinocodelab/idms-v3/pkg/pagination"
)

// System is the workflow lifecycle contract exposed to the API layer.
type System interface {
	Handler() *Handler

	// Register wires startup reconciliation and shutdown draining into lc.
	// Reconciliation waits for every channel in deps to close.
	Register(lc *lifecycle.Coordinator, deps ...<-chan struct{})

	ListWorkflows(ctx context.Context, page pagination.PageRequest, filters workflows.Filters) (*pagination.PageResult[workflows.Workflow], error)
	FindWorkflow(ctx context.Context, id uuid.UUID) (*workflows.Workflow, error)
	CreateWorkflow(ctx context.Context, cmd workflows.CreateCommand) (*workflows.Workflow, error)
	// UpdateWorkflow returns ErrConflict while the workflow is running.
	UpdateWorkflow(ctx context.Context, id uuid.UUID, cmd workflows.UpdateCommand) (*workflows.Workflow, error)
	// DeleteWorkflow returns ErrConflict while the workflow is running.
	DeleteWorkflow(ctx context.Context, id uuid.UUID) error

	// StartWorkflow launches a runner. The capacity check and slot
	// reservation happen atomically with the transition to running.
	StartWorkflow(ctx context.Context, id uuid.UUID) (*workflows.Workflow, error)
	// StopWorkflow requests a graceful stop and blocks until the runner has
	// finished its current item and recorded the stopped status.
	StopWorkflow(ctx context.Context, id uuid.UUID) (*workflows.Workflow, error)

	ListQueue(ctx context.Context, page pagination.PageRequest, filters queue.Filters) (*pagination.PageResult[queue.Item], error)
	// RetryItem resets a failed item to pending without resetting its retry count.
	RetryItem(ctx context.Context, id uuid.UUID) (*queue.Item, error)

	ListActivity(ctx context.Context, page pagination.PageRequest, filters activity.Filters) (*pagination.PageResult[activity.Entry], error)
	Dashboard(ctx context.Context) (*Dashboard, error)
}

// Supervisor owns the running workflow runners.
type Supervisor struct {
	rt         Runtime
	cfg        Config
	scanner    *Scanner
	processor  *Processor
	metrics    *metrics
	logger     *slog.Logger
	pagination pagination.Config

	mu      sync.Mutex
	base    context.Context
	running map[uuid.UUID]*runner
	closing bool
	ready   atomic.Bool
}

// New creates a Supervisor. Runners use a background context until Register
// binds them to the lifecycle context.
func New(rt Runtime, cfg Config, pagination pagination.Config) (*Supervisor, error) {
	if rt.Clock == nil {
		rt.Clock = SystemClock()
	}
	if cfg.HashWorkers <= 0 {
		cfg.HashWorkers = 4
	}
	if cfg.ItemTimeout <= 0 {
		cfg.ItemTimeout = 5 * time.Minute
	}

	m, err := newMetrics(rt.Meter)
	if err != nil {
		return nil, fmt.Errorf("create engine metrics: %w", err)
	}

	logger := rt.Logger.With("system", "engine")

	return &Supervisor{
		rt:     rt,
		cfg:    cfg,
		logger: logger,
		scanner: &Scanner{
			queue:    rt.Queue,
			activity: rt.Activity,
			workers:  cfg.HashWorkers,
			maxSize:  cfg.MaxFileSize,
			metrics:  m,
			logger:   logger.With("component", "scanner"),
		},
		processor: &Processor{
			workflows:       rt.Workflows,
			queue:           rt.Queue,
			activity:        rt.Activity,
			classifications: rt.Classifications,
			documents:       rt.Documents,
			classifier:      rt.Classifier,
			clock:           rt.Clock,
			timeout:         cfg.ItemTimeout,
			metrics:         m,
			logger:          logger.With("component", "processor"),
		},
		metrics:    m,
		pagination: pagination,
		base:       context.Background(),
		running:    make(map[uuid.UUID]*runner),
	}, nil
}

func (s *Supervisor) Handler() *Handler {
	return NewHandler(s, s.logger, s.pagination)
}

func (s *Supervisor) Register(lc *lifecycle.Coordinator, deps ...<-chan struct{}) {
	s.logger.Info("starting engine", "max_concurrent", MaxConcurrent)

	s.mu.Lock()
	s.base = lc.Context()
	s.mu.Unlock()

	lc.RegisterReadiness("engine", lifecycle.ReadinessFunc(s.ready.Load))

	lc.OnStartup(func() {
		for _, dep := range deps {
			select {
			case <-dep:
			case <-lc.Context().Done():
				return
			}
		}

		if err := s.reconcile(lc.Context()); err != nil {
			s.logger.Error("engine reconciliation failed", "error", err)
			return
		}

		s.ready.Store(true)
		s.logger.Info("engine ready")
	})

	lc.OnDrain(s.shutdown)
}

// reconcile repairs state left by an unclean exit: items stuck in
// processing return to pending, and workflows still marked running are
// resumed or stopped depending on configuration.
func (s *Supervisor) reconcile(ctx context.Context) error {
	recovered, err := s.rt.Queue.RecoverProcessing(ctx)
	if err != nil {
		return fmt.Errorf("recover processing items: %w", err)
	}

	for _, item := range recovered {
		s.logger.Warn("recovered interrupted item",
			"workflow_id", item.WorkflowID,
			"item_id", item.ID,
			"file", item.FilePath,
		)
		record(ctx, s.rt.Activity, s.logger, activity.RecordCommand{
			WorkflowID:  item.WorkflowID,
			QueueItemID: &item.ID,
			Level:       activity.LevelWarning,
			Message:     "Processing interrupted by restart, returned to queue",
			FilePath:    item.FilePath,
		})
	}

	stale, err := s.rt.Workflows.FindByStatus(ctx, workflows.StatusRunning)
	if err != nil {
		return fmt.Errorf("find running workflows: %w", err)
	}

	for _, wf := range stale {
		if s.cfg.ResumeOnStartup {
			_, err := s.StartWorkflow(ctx, wf.ID)
			if err == nil {
				s.logger.Info("workflow resumed", "workflow_id", wf.ID, "name", wf.Name)
				continue
			}
			s.logger.Warn("workflow resume failed", "workflow_id", wf.ID, "error", err)
		}

		msg := "stopped by restart"
		if _, err := s.rt.Workflows.SetStatus(ctx, wf.ID, workflows.StatusStopped, &msg); err != nil {
			return fmt.Errorf("stop workflow %s: %w", wf.ID, err)
		}
		s.logger.Info("workflow stopped by restart", "workflow_id", wf.ID, "name", wf.Name)
	}

	return nil
}

// shutdown stops accepting starts and waits for every runner to exit.
func (s *Supervisor) shutdown() {
	s.mu.Lock()
	s.closing = true
	runners := slices.Collect(maps.Values(s.running))
	s.mu.Unlock()

	s.logger.Info("draining workflow runners", "count", len(runners))

	var wg sync.WaitGroup
	for _, r := range runners {
		r.requestStop(reasonShutdown)
		wg.Go(func() { <-r.done })
	}
	wg.Wait()

	s.logger.Info("workflow runners drained")
}

func (s *Supervisor) ListWorkflows(
	ctx context.Context,
	page pagination.PageRequest,
	filters workflows.Filters,
) (*pagination.PageResult[workflows.Workflow], error) {
	return s.rt.Workflows.List(ctx, page, filters)
}

func (s *Supervisor) FindWorkflow(ctx context.Context, id uuid.UUID) (*workflows.Workflow, error) {
	return s.rt.Workflows.Find(ctx, id)
}

func (s *Supervisor) CreateWorkflow(ctx context.Context, cmd workflows.CreateCommand) (*workflows.Workflow, error) {
	return s.rt.Workflows.Create(ctx, cmd)
}

func (s *Supervisor) UpdateWorkflow(ctx context.Context, id uuid.UUID, cmd workflows.UpdateCommand) (*workflows.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureIdle(ctx, id); err != nil {
		return nil, err
	}
	return s.rt.Workflows.Update(ctx, id, cmd)
}

func (s *Supervisor) DeleteWorkflow(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureIdle(ctx, id); err != nil {
		return err
	}
	return s.rt.Workflows.Delete(ctx, id)
}

// ensureIdle rejects changes to a workflow that has a runner or is still
// marked running in the store, such as one awaiting resume. Callers hold s.mu.
func (s *Supervisor) ensureIdle(ctx context.Context, id uuid.UUID) error {
	if _, ok := s.running[id]; ok {
		return ErrConflict
	}
	wf, err := s.rt.Workflows.Find(ctx, id)
	if err != nil {
		return err
	}
	if wf.Status == workflows.StatusRunning {
		return ErrConflict
	}
	return nil
}

func (s *Supervisor) StartWorkflow(ctx context.Context, id uuid.UUID) (*workflows.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closing {
		return nil, ErrShuttingDown
	}
	if _, ok := s.running[id]; ok {
		return nil, ErrConflict
	}
	if len(s.running) >= MaxConcurrent {
		return nil, ErrCapacityExceeded
	}

	wf, err := s.rt.Workflows.Find(ctx, id)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(wf.SourcePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, wf.SourcePath, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrSourceUnavailable, wf.SourcePath)
	}

	wf, err = s.rt.Workflows.SetStatus(ctx, id, workflows.StatusRunning, nil)
	if err != nil {
		return nil, err
	}

	r := newRunner(id)
	s.running[id] = r
	s.metrics.running.Add(ctx, 1, workflowAttr(id))
	go s.run(s.base, r)

	record(ctx, s.rt.Activity, s.logger, activity.RecordCommand{
		WorkflowID: id,
		Level:      activity.LevelInfo,
		Message:    "Workflow started",
		FilePath:   wf.SourcePath,
		Details:    map[string]any{"interval_seconds": wf.IntervalSeconds},
	})

	return wf, nil
}

func (s *Supervisor) StopWorkflow(ctx context.Context, id uuid.UUID) (*workflows.Workflow, error) {
	s.mu.Lock()
	r, ok := s.running[id]
	s.mu.Unlock()

	if !ok {
		wf, err := s.rt.Workflows.Find(ctx, id)
		if err != nil {
			return nil, err
		}
		if wf.Status == workflows.StatusStopped {
			return wf, nil
		}
		// no runner owns it; clear a stale running, paused, or error status
		return s.rt.Workflows.SetStatus(ctx, id, workflows.StatusStopped, nil)
	}

	r.requestStop(reasonStopped)

	select {
	case <-r.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return s.rt.Workflows.Find(ctx, id)
}

func (s *Supervisor) ListQueue(
	ctx context.Context,
	page pagination.PageRequest,
	filters queue.Filters,
) (*pagination.PageResult[queue.Item], error) {
	return s.rt.Queue.List(ctx, page, filters)
}

func (s *Supervisor) RetryItem(ctx context.Context, id uuid.UUID) (*queue.Item, error) {
	item, err := s.rt.Queue.Retry(ctx, id)
	if err != nil {
		return nil, err
	}

	record(ctx, s.rt.Activity, s.logger, activity.RecordCommand{
		WorkflowID:  item.WorkflowID,
		QueueItemID: &item.ID,
		Level:       activity.LevelInfo,
		Message:     "Item reset for retry",
		FilePath:    item.FilePath,
		Details:     map[string]any{"retry_count": item.RetryCount},
	})

	return item, nil
}

func (s *Supervisor) ListActivity(
	ctx context.Context,
	page pagination.PageRequest,
	filters activity.Filters,
) (*pagination.PageResult[activity.Entry], error) {
	return s.rt.Activity.List(ctx, page, filters)
}

func (s *Supervisor) Dashboard(ctx context.Context) (*Dashboard, error) {
	s.mu.Lock()
	active := len(s.running)
	s.mu.Unlock()

	stats, err := s.rt.Queue.Stats(ctx, startOfDay(s.rt.Clock.Now()))
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}

	return &Dashboard{
		ActiveWorkflows: active,
		MaxConcurrent:   MaxConcurrent,
		ProcessedToday:  stats.ProcessedToday,
		Pending:         stats.Pending,
		Processing:      stats.Processing,
		Failed:          stats.Failed,
	}, nil
}

// Running reports whether a runner currently owns the workflow.
func (s *Supervisor) Running(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.running[id]
	return ok
}

var _ System = (*Supervisor)(nil)
