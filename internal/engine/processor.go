package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/rhinocodelab/idms-v3/internal/activity"
	"github.com/rhinocodelab/idms-v3/internal/classifications"
	"github.com/rhinocodelab/idms-v3/internal/classifier"
	"github.com/rhinocodelab/idms-v3/internal/documents"
	"github.com/rhinocodelab/idms-v3/internal/queue"
	"github.com/rhinocodelab/idms-v3/internal/workflows"
)

// Processor drives one queue item through classification, upload, record
// creation, and rename, and applies the retry policy on failure.
type Processor struct {
	workflows       workflows.System
	queue           queue.System
	activity        activity.System
	classifications classifications.System
	documents       documents.System
	classifier      classifier.System
	clock           Clock
	timeout         time.Duration
	metrics         *metrics
	logger          *slog.Logger
}

// settleAttempts bounds the retries of the status write that ends a run.
const (
	settleAttempts = 3
	settleDelay    = 200 * time.Millisecond
)

type outcome struct {
	result         *classifier.Result
	classification *classifications.Classification
	document       *documents.Reference
	processedPath  string
}

// Process claims item and runs it to a settled state. It returns nil when
// the item completed, was released for retry, or was claimed elsewhere, and
// an error wrapping ErrRetriesExhausted when the item failed terminally.
//
// Once claimed, the item's work is detached from ctx cancellation so a stop
// request never leaves it in processing; ItemTimeout bounds it instead.
func (p *Processor) Process(ctx context.Context, item *queue.Item) error {
	claimed, err := p.queue.Claim(ctx, item.ID)
	if err != nil {
		if errors.Is(err, queue.ErrInvalidTransition) || errors.Is(err, queue.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("claim %s: %w", item.FileName, err)
	}

	ctx = context.WithoutCancel(ctx)
	started := p.clock.Now()
	defer func() {
		p.metrics.observeItem(ctx, claimed.WorkflowID, started, p.clock.Now())
	}()

	record(ctx, p.activity, p.logger, activity.RecordCommand{
		WorkflowID:  claimed.WorkflowID,
		QueueItemID: &claimed.ID,
		Level:       activity.LevelInfo,
		Message:     "Processing",
		FilePath:    claimed.FilePath,
		Details:     map[string]any{"attempt": claimed.RetryCount + 1},
	})

	runCtx, cancel := context.WithTimeout(ctx, p.timeout)
	out, runErr := p.run(runCtx, claimed)
	cancel()

	if runErr == nil {
		return p.complete(ctx, claimed, out)
	}

	return p.fail(ctx, claimed, runErr)
}

func (p *Processor) run(ctx context.Context, item *queue.Item) (*outcome, error) {
	data, err := os.ReadFile(item.FilePath)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	contentType := http.DetectContentType(data)

	result, err := p.classifier.Classify(ctx, classifier.Input{
		Data:        data,
		Filename:    item.FileName,
		ContentType: contentType,
	})
	if err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}

	ref, err := p.documents.Upload(ctx, documents.UploadCommand{
		Data:             data,
		Filename:         item.FileName,
		ContentType:      contentType,
		WorkflowID:       item.WorkflowID,
		QueueItemID:      item.ID,
		Checksum:         item.Checksum,
		DocumentType:     result.DocumentType,
		CriticalityLevel: result.CriticalityLevel,
	})
	if err != nil {
		return nil, fmt.Errorf("upload: %w", err)
	}

	c, err := p.classifications.Create(ctx, classifications.CreateCommand{
		WorkflowID:       item.WorkflowID,
		QueueItemID:      item.ID,
		Filename:         item.FileName,
		DocumentType:     result.DocumentType,
		CriticalityLevel: result.CriticalityLevel,
		Confidence:       result.Confidence,
		Rationale:        result.Rationale,
		StorageKey:       ref.Key,
		ContentType:      ref.ContentType,
		SizeBytes:        ref.SizeBytes,
		ModelName:        result.Model,
	})
	if err != nil {
		p.removeDocument(ctx, ref.Key)
		return nil, fmt.Errorf("record classification: %w", err)
	}

	if err := p.queue.Attach(ctx, item.ID, c.ID); err != nil {
		p.discard(ctx, c.ID, ref.Key)
		return nil, fmt.Errorf("attach classification: %w", err)
	}

	processed, err := RenameProcessed(item.FilePath, p.clock.Now())
	if err != nil {
		p.discard(ctx, c.ID, ref.Key)
		return nil, err
	}

	return &outcome{
		result:         result,
		classification: c,
		document:       ref,
		processedPath:  processed,
	}, nil
}

func (p *Processor) complete(ctx context.Context, item *queue.Item, out *outcome) error {
	err := p.settle(ctx, item, "complete", func(ctx context.Context) error {
		_, err := p.queue.Complete(ctx, item.ID, out.processedPath)
		return err
	})
	if err != nil {
		// restore the source so a retry can read it again
		if rerr := os.Rename(out.processedPath, item.FilePath); rerr != nil {
			p.logger.Error("restore renamed file failed",
				"file", out.processedPath,
				"error", rerr,
			)
		}
		p.discard(ctx, out.classification.ID, out.document.Key)
		return p.fail(ctx, item, fmt.Errorf("complete: %w", err))
	}

	if err := p.workflows.RecordOutcome(ctx, item.WorkflowID, true); err != nil {
		p.logger.Warn("record outcome failed", "workflow_id", item.WorkflowID, "error", err)
	}

	record(ctx, p.activity, p.logger, activity.RecordCommand{
		WorkflowID:  item.WorkflowID,
		QueueItemID: &item.ID,
		Level:       activity.LevelSuccess,
		Message:     fmt.Sprintf("Processed %s", item.FileName),
		FilePath:    out.processedPath,
		Details: map[string]any{
			"document_type":     out.result.DocumentType,
			"criticality_level": out.result.CriticalityLevel,
			"classification_id": out.classification.ID.String(),
			"processed_path":    out.processedPath,
			"storage_key":       out.document.Key,
		},
	})

	p.metrics.completed.Add(ctx, 1, workflowAttr(item.WorkflowID))
	return nil
}

// fail applies the retry policy. The activity entry is written before the
// status change so the log never lags the queue.
func (p *Processor) fail(ctx context.Context, item *queue.Item, cause error) error {
	retries := item.RetryCount + 1
	reason := cause.Error()

	if retries < MaxRetries {
		record(ctx, p.activity, p.logger, activity.RecordCommand{
			WorkflowID:  item.WorkflowID,
			QueueItemID: &item.ID,
			Level:       activity.LevelWarning,
			Message:     fmt.Sprintf("Processing failed (attempt %d of %d), will retry", retries, MaxRetries),
			FilePath:    item.FilePath,
			Details:     map[string]any{"error": reason, "retry_count": retries},
		})

		err := p.settle(ctx, item, "release", func(ctx context.Context) error {
			_, err := p.queue.Release(ctx, item.ID, reason)
			return err
		})
		if err != nil {
			return fmt.Errorf("release %s: %w", item.FileName, err)
		}

		p.metrics.retried.Add(ctx, 1, workflowAttr(item.WorkflowID))
		return nil
	}

	record(ctx, p.activity, p.logger, activity.RecordCommand{
		WorkflowID:  item.WorkflowID,
		QueueItemID: &item.ID,
		Level:       activity.LevelError,
		Message:     fmt.Sprintf("Processing failed after %d attempts", MaxRetries),
		FilePath:    item.FilePath,
		Details:     map[string]any{"error": reason, "retry_count": retries},
	})

	err := p.settle(ctx, item, "fail", func(ctx context.Context) error {
		_, err := p.queue.Fail(ctx, item.ID, reason)
		return err
	})
	if err != nil {
		return fmt.Errorf("fail %s: %w", item.FileName, err)
	}

	if err := p.workflows.RecordOutcome(ctx, item.WorkflowID, false); err != nil {
		p.logger.Warn("record outcome failed", "workflow_id", item.WorkflowID, "error", err)
	}

	p.metrics.failed.Add(ctx, 1, workflowAttr(item.WorkflowID))
	return fmt.Errorf("%w: %s", ErrRetriesExhausted, item.FileName)
}

// settle retries the write that moves item out of processing. A guarded
// transition that no longer matches is final and is not retried.
func (p *Processor) settle(ctx context.Context, item *queue.Item, op string, write func(context.Context) error) error {
	var err error
	for attempt := 1; attempt <= settleAttempts; attempt++ {
		err = write(ctx)
		if err == nil || errors.Is(err, queue.ErrInvalidTransition) || errors.Is(err, queue.ErrNotFound) {
			return err
		}
		p.logger.Warn("settle item failed",
			"op", op,
			"item_id", item.ID,
			"attempt", attempt,
			"error", err,
		)
		if attempt < settleAttempts {
			time.Sleep(settleDelay * time.Duration(attempt))
		}
	}
	return err
}

// discard removes the classification record and stored document produced
// by a run that could not complete. It runs even when the item deadline
// has already passed.
func (p *Processor) discard(ctx context.Context, classificationID uuid.UUID, key string) {
	ctx = context.WithoutCancel(ctx)
	if err := p.classifications.Delete(ctx, classificationID); err != nil &&
		!errors.Is(err, classifications.ErrNotFound) {
		p.logger.Warn("discard classification failed",
			"classification_id", classificationID,
			"error", err,
		)
	}
	p.removeDocument(ctx, key)
}

func (p *Processor) removeDocument(ctx context.Context, key string) {
	ctx = context.WithoutCancel(ctx)
	if err := p.documents.Remove(ctx, key); err != nil {
		p.logger.Warn("remove document failed", "key", key, "error", err)
	}
}
