package engine

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rhinocodelab/idms-v3/internal/activity"
	"github.com/rhinocodelab/idms-v3/internal/queue"
	"github.com/rhinocodelab/idms-v3/internal/workflows"
	"github.com/rhinocodelab/idms-v3/pkg/formatting"
)

// Scanner lists a workflow's source directory and queues files whose
// content has not been seen by that workflow before.
type Scanner struct {
	queue    queue.System
	activity activity.System
	workers  int
	maxSize  int64
	metrics  *metrics
	logger   *slog.Logger
}

type candidate struct {
	path     string
	name     string
	modTime  time.Time
	size     int64
	checksum string
}

// Scan runs one discovery pass over wf's source directory and returns the
// items it enqueued, oldest file first. Subdirectories are not traversed.
func (s *Scanner) Scan(ctx context.Context, wf *workflows.Workflow) ([]queue.Item, error) {
	candidates, err := s.list(wf.SourcePath)
	if err != nil {
		return nil, err
	}

	if err := s.hash(ctx, candidates); err != nil {
		return nil, err
	}

	var added []queue.Item
	for _, c := range candidates {
		if c.checksum == "" {
			continue
		}

		exists, err := s.queue.Exists(ctx, wf.ID, c.checksum)
		if err != nil {
			return added, fmt.Errorf("check %s: %w", c.name, err)
		}
		if exists {
			continue
		}

		item, err := s.queue.Enqueue(ctx, queue.EnqueueCommand{
			WorkflowID: wf.ID,
			FilePath:   c.path,
			FileName:   c.name,
			FileSize:   c.size,
			Checksum:   c.checksum,
		})
		if err != nil {
			if errors.Is(err, queue.ErrDuplicate) {
				continue
			}
			return added, fmt.Errorf("enqueue %s: %w", c.name, err)
		}

		record(ctx, s.activity, s.logger, activity.RecordCommand{
			WorkflowID:  wf.ID,
			QueueItemID: &item.ID,
			Level:       activity.LevelInfo,
			Message:     "File added to queue",
			FilePath:    c.path,
			Details: map[string]any{
				"checksum":  c.checksum,
				"file_size": c.size,
			},
		})

		added = append(added, *item)
	}

	s.metrics.scans.Add(ctx, 1, workflowAttr(wf.ID))
	if len(added) > 0 {
		s.metrics.discovered.Add(ctx, int64(len(added)), workflowAttr(wf.ID))
	}

	return added, nil
}

func (s *Scanner) list(dir string) ([]candidate, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, dir, err)
	}

	var candidates []candidate
	for _, e := range entries {
		if !e.Type().IsRegular() || !Accepted(e.Name()) {
			continue
		}

		info, err := e.Info()
		if err != nil {
			// removed between listing and stat
			continue
		}

		if s.maxSize > 0 && info.Size() > s.maxSize {
			s.logger.Warn("file exceeds size limit",
				"file", e.Name(),
				"size", formatting.FormatBytes(info.Size(), 1),
				"limit", formatting.FormatBytes(s.maxSize, 1),
			)
			continue
		}

		candidates = append(candidates, candidate{
			path:    filepath.Join(dir, e.Name()),
			name:    e.Name(),
			modTime: info.ModTime(),
			size:    info.Size(),
		})
	}

	slices.SortFunc(candidates, func(a, b candidate) int {
		if c := a.modTime.Compare(b.modTime); c != 0 {
			return c
		}
		return cmp.Compare(a.name, b.name)
	})

	return candidates, nil
}

// hash fills in checksums concurrently. A file that cannot be read is
// logged and left without a checksum so the next scan retries it.
func (s *Scanner) hash(ctx context.Context, candidates []candidate) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(s.workers, 1))

	for i := range candidates {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			sum, size, err := Checksum(candidates[i].path)
			if err != nil {
				s.logger.Warn("checksum failed", "file", candidates[i].path, "error", err)
				return nil
			}

			candidates[i].checksum = sum
			candidates[i].size = size
			return nil
		})
	}

	return g.Wait()
}

// record appends an activity entry. A failed write is logged with the
// entry's content and never interrupts the caller.
func record(ctx context.Context, sys activity.System, logger *slog.Logger, cmd activity.RecordCommand) {
	if _, err := sys.Record(ctx, cmd); err != nil {
		logger.Error("activity record failed",
			"workflow_id", cmd.WorkflowID,
			"level", cmd.Level,
			"message", cmd.Message,
			"file", cmd.FilePath,
			"error", err,
		)
	}
}
