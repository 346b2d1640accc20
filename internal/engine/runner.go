package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rhinocodelab/idms-v3/internal/activity"
	"github.com/rhinocodelab/idms-v3/internal/queue"
	"github.com/rhinocodelab/idms-v3/internal/workflows"
)

// retryDelay paces the loop when the workflow record cannot be loaded.
const retryDelay = workflows.MinIntervalSeconds * time.Second

type stopReason int

const (
	reasonStopped stopReason = iota + 1
	reasonShutdown
)

type exitKind int

const (
	exitStopped exitKind = iota
	exitShutdown
	exitTerminal
	exitFatal
)

type exit struct {
	kind exitKind
	err  error
	file string
}

// runner is the handle the supervisor keeps for one running workflow.
// done is closed after the final status write.
type runner struct {
	id       uuid.UUID
	stop     chan struct{}
	stopOnce sync.Once
	reason   stopReason
	done     chan struct{}
}

func newRunner(id uuid.UUID) *runner {
	return &runner{
		id:   id,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// requestStop signals the loop to exit after the current item. The first
// reason wins.
func (r *runner) requestStop(reason stopReason) {
	r.stopOnce.Do(func() {
		r.reason = reason
		close(r.stop)
	})
}

func (r *runner) stopping() bool {
	select {
	case <-r.stop:
		return true
	default:
		return false
	}
}

// stopped reports the exit for a requested stop. Only valid once stop is closed.
func (r *runner) stopped() exit {
	if r.reason == reasonShutdown {
		return exit{kind: exitShutdown}
	}
	return exit{kind: exitStopped}
}

func (s *Supervisor) run(ctx context.Context, r *runner) {
	s.finish(ctx, r, s.loop(ctx, r))
}

// loop repeats scan, drain, and wait until a stop request, shutdown, or a
// terminal item failure.
func (s *Supervisor) loop(ctx context.Context, r *runner) exit {
	logger := s.logger.With("workflow_id", r.id)

	for {
		if r.stopping() {
			return r.stopped()
		}
		if ctx.Err() != nil {
			return exit{kind: exitShutdown}
		}

		wf, err := s.rt.Workflows.Find(ctx, r.id)
		if err != nil {
			if errors.Is(err, workflows.ErrNotFound) {
				return exit{kind: exitFatal, err: err}
			}
			logger.Error("load workflow failed", "error", err)
			if ex, done := s.wait(ctx, r, retryDelay); done {
				return ex
			}
			continue
		}

		s.reclaim(ctx, wf.ID)

		drain, scanned := true, true
		if _, err := s.scanner.Scan(ctx, wf); err != nil {
			scanned = false
			switch {
			case errors.Is(err, ErrSourceUnavailable):
				drain = false
				record(ctx, s.rt.Activity, s.logger, activity.RecordCommand{
					WorkflowID: wf.ID,
					Level:      activity.LevelError,
					Message:    "Source folder unavailable",
					FilePath:   wf.SourcePath,
					Details:    map[string]any{"error": err.Error()},
				})
			case ctx.Err() != nil:
				return exit{kind: exitShutdown}
			default:
				logger.Error("scan failed", "error", err)
			}
		}

		if drain {
			if ex, done := s.drain(ctx, r, wf); done {
				return ex
			}
		}

		if scanned {
			if err := s.rt.Workflows.RecordScan(ctx, wf.ID, s.rt.Clock.Now()); err != nil && ctx.Err() == nil {
				logger.Warn("record scan failed", "error", err)
			}
		}

		if ex, done := s.wait(ctx, r, wf.Interval()); done {
			return ex
		}
	}
}

// drain processes pending items one at a time in discovery order. Items
// released for retry during this pass sit behind the cursor and wait for the
// next cycle.
func (s *Supervisor) drain(ctx context.Context, r *runner, wf *workflows.Workflow) (exit, bool) {
	var cursor int64

	for {
		if r.stopping() {
			return r.stopped(), true
		}
		if ctx.Err() != nil {
			return exit{kind: exitShutdown}, true
		}

		item, err := s.rt.Queue.NextPending(ctx, wf.ID, cursor)
		if err != nil {
			if !errors.Is(err, queue.ErrNotFound) && ctx.Err() == nil {
				s.logger.Error("next pending item failed", "workflow_id", wf.ID, "error", err)
			}
			return exit{}, false
		}
		cursor = item.Seq

		if err := s.processor.Process(ctx, item); err != nil {
			if errors.Is(err, ErrRetriesExhausted) {
				return exit{kind: exitTerminal, err: err, file: item.FileName}, true
			}
			s.logger.Error("process item failed",
				"workflow_id", wf.ID,
				"item_id", item.ID,
				"error", err,
			)
			return exit{}, false
		}
	}
}

// reclaim returns items this workflow left in processing to pending. The
// runner is the only writer for its workflow, so any such item belongs to a
// run whose final status write failed. The retry count is left as is.
func (s *Supervisor) reclaim(ctx context.Context, id uuid.UUID) {
	items, err := s.rt.Queue.RecoverWorkflow(ctx, id)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Warn("reclaim processing items failed", "workflow_id", id, "error", err)
		}
		return
	}
	for _, it := range items {
		record(ctx, s.rt.Activity, s.logger, activity.RecordCommand{
			WorkflowID:  id,
			QueueItemID: &it.ID,
			Level:       activity.LevelWarning,
			Message:     "Reverted unsettled item to pending",
			FilePath:    it.FilePath,
			Details:     map[string]any{"retry_count": it.RetryCount},
		})
	}
}

func (s *Supervisor) wait(ctx context.Context, r *runner, d time.Duration) (exit, bool) {
	select {
	case <-r.stop:
		return r.stopped(), true
	case <-ctx.Done():
		return exit{kind: exitShutdown}, true
	case <-s.rt.Clock.After(d):
		return exit{}, false
	}
}

// finish persists the exit status, then releases the runner slot. A
// shutdown leaves the workflow marked running so the next start resumes it.
func (s *Supervisor) finish(ctx context.Context, r *runner, ex exit) {
	ctx = context.WithoutCancel(ctx)
	logger := s.logger.With("workflow_id", r.id)

	if ex.kind != exitShutdown {
		s.reclaim(ctx, r.id)
	}

	switch ex.kind {
	case exitStopped:
		if _, err := s.rt.Workflows.SetStatus(ctx, r.id, workflows.StatusStopped, nil); err != nil {
			logger.Error("set stopped status failed", "error", err)
		}
		record(ctx, s.rt.Activity, s.logger, activity.RecordCommand{
			WorkflowID: r.id,
			Level:      activity.LevelInfo,
			Message:    "Workflow stopped",
		})

	case exitTerminal:
		msg := fmt.Sprintf("max retries reached for file %s", ex.file)
		record(ctx, s.rt.Activity, s.logger, activity.RecordCommand{
			WorkflowID: r.id,
			Level:      activity.LevelError,
			Message:    "Workflow stopped: " + msg,
		})
		if _, err := s.rt.Workflows.SetStatus(ctx, r.id, workflows.StatusStopped, &msg); err != nil {
			logger.Error("set stopped status failed", "error", err)
		}

	case exitFatal:
		msg := ex.err.Error()
		logger.Error("workflow runner failed", "error", ex.err)
		if _, err := s.rt.Workflows.SetStatus(ctx, r.id, workflows.StatusError, &msg); err != nil &&
			!errors.Is(err, workflows.ErrNotFound) {
			logger.Error("set error status failed", "error", err)
		}

	case exitShutdown:
		logger.Info("workflow runner interrupted by shutdown")
	}

	s.mu.Lock()
	delete(s.running, r.id)
	s.mu.Unlock()

	s.metrics.running.Add(ctx, -1, workflowAttr(r.id))
	close(r.done)
}
