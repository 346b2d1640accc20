package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rhinocodelab/idms-v3/pkg/pagination"
	"github.com/rhinocodelab/idms-v3/pkg/query"
	"github.com/rhinocodelab/idms-v3/pkg/repository"
)

type repo struct {
	db         *sql.DB
	logger     *slog.Logger
	pagination pagination.Config
}

// New creates a PostgreSQL-backed queue store.
func New(db *sql.DB, logger *slog.Logger, pagination pagination.Config) System {
	return &repo{
		db:         db,
		logger:     logger.With("system", "queue"),
		pagination: pagination,
	}
}

func (r *repo) List(
	ctx context.Context,
	page pagination.PageRequest,
	filters Filters,
) (*pagination.PageResult[Item], error) {
	page.Normalize(r.pagination)

	qb := query.
		NewBuilder(projection, defaultSort).
		WhereSearch(page.Search, "FileName", "FilePath")

	filters.Apply(qb)

	if len(page.Sort) > 0 {
		qb.OrderByFields(page.Sort)
	}

	result, err := repository.QueryPage(ctx, r.db, qb, page, scanItem)
	if err != nil {
		return nil, fmt.Errorf("list queue items: %w", err)
	}
	return result, nil
}

func (r *repo) Find(ctx context.Context, id uuid.UUID) (*Item, error) {
	q, args := query.NewBuilder(projection).BuildSingle("ID", id)

	i, err := repository.QueryOne(ctx, r.db, q, args, scanItem)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &i, nil
}

func (r *repo) Exists(ctx context.Context, workflowID uuid.UUID, checksum string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(
		ctx,
		"SELECT EXISTS (SELECT 1 FROM queue_items WHERE workflow_id = $1 AND checksum = $2)",
		workflowID, checksum,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check queue item: %w", err)
	}
	return exists, nil
}

func (r *repo) Enqueue(ctx context.Context, cmd EnqueueCommand) (*Item, error) {
	q := returningItem(`
		INSERT INTO queue_items(id, workflow_id, file_path, file_name, file_size, checksum, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT ON CONSTRAINT queue_items_workflow_checksum_key DO NOTHING
		RETURNING *`)

	args := []any{
		uuid.New(),
		cmd.WorkflowID,
		cmd.FilePath,
		cmd.FileName,
		cmd.FileSize,
		cmd.Checksum,
		StatusPending,
	}

	i, err := repository.QueryOne(ctx, r.db, q, args, scanItem)
	if err != nil {
		// DO NOTHING yields no row for a duplicate pair.
		return nil, repository.MapError(err, ErrDuplicate, ErrDuplicate)
	}

	r.logger.Debug("queue item enqueued", "id", i.ID, "workflow_id", i.WorkflowID, "file", i.FileName)
	return &i, nil
}

func (r *repo) NextPending(ctx context.Context, workflowID uuid.UUID, afterSeq int64) (*Item, error) {
	q, args := query.
		NewBuilder(projection, query.SortField{Field: "Seq"}).
		WhereEquals("WorkflowID", workflowID).
		WhereEquals("Status", StatusPending).
		WhereAfter("Seq", afterSeq).
		BuildSingleOrNull()

	i, err := repository.QueryOne(ctx, r.db, q, args, scanItem)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &i, nil
}

func (r *repo) Claim(ctx context.Context, id uuid.UUID) (*Item, error) {
	return r.transition(ctx, id, `
		UPDATE queue_items
		SET status = 'processing', updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING *`)
}

func (r *repo) Attach(ctx context.Context, id, classificationID uuid.UUID) error {
	err := repository.ExecExpectOne(
		ctx, r.db,
		`UPDATE queue_items
		 SET classification_id = $1, updated_at = NOW()
		 WHERE id = $2 AND status = 'processing'`,
		classificationID, id,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return r.classify(ctx, id)
	}
	return err
}

func (r *repo) Complete(ctx context.Context, id uuid.UUID, processedPath string) (*Item, error) {
	return r.transition(ctx, id, `
		UPDATE queue_items
		SET status = 'completed', processed_path = $2, error_message = NULL, updated_at = NOW()
		WHERE id = $1 AND status = 'processing'
		RETURNING *`, processedPath)
}

func (r *repo) Release(ctx context.Context, id uuid.UUID, reason string) (*Item, error) {
	return r.transition(ctx, id, `
		UPDATE queue_items
		SET status = 'pending', retry_count = retry_count + 1, error_message = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'processing'
		RETURNING *`, reason)
}

func (r *repo) Fail(ctx context.Context, id uuid.UUID, reason string) (*Item, error) {
	return r.transition(ctx, id, `
		UPDATE queue_items
		SET status = 'failed', retry_count = retry_count + 1, error_message = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'processing'
		RETURNING *`, reason)
}

func (r *repo) Retry(ctx context.Context, id uuid.UUID) (*Item, error) {
	i, err := r.transition(ctx, id, `
		UPDATE queue_items
		SET status = 'pending', updated_at = NOW()
		WHERE id = $1 AND status = 'failed'
		RETURNING *`)
	if err != nil {
		return nil, err
	}

	r.logger.Info("queue item reset for retry", "id", id, "retry_count", i.RetryCount)
	return i, nil
}

func (r *repo) RecoverProcessing(ctx context.Context) ([]Item, error) {
	q := returningItem(`
		UPDATE queue_items
		SET status = 'pending', updated_at = NOW()
		WHERE status = 'processing'
		RETURNING *`)

	items, err := repository.QueryMany(ctx, r.db, q, nil, scanItem)
	if err != nil {
		return nil, fmt.Errorf("recover processing items: %w", err)
	}
	return items, nil
}

func (r *repo) RecoverWorkflow(ctx context.Context, workflowID uuid.UUID) ([]Item, error) {
	q := returningItem(`
		UPDATE queue_items
		SET status = 'pending', updated_at = NOW()
		WHERE status = 'processing' AND workflow_id = $1
		RETURNING *`)

	items, err := repository.QueryMany(ctx, r.db, q, []any{workflowID}, scanItem)
	if err != nil {
		return nil, fmt.Errorf("recover workflow items: %w", err)
	}
	return items, nil
}

func (r *repo) Stats(ctx context.Context, since time.Time) (Stats, error) {
	var s Stats
	err := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'completed' AND updated_at >= $1),
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'processing'),
			COUNT(*) FILTER (WHERE status = 'failed')
		FROM queue_items`,
		since,
	).Scan(&s.ProcessedToday, &s.Pending, &s.Processing, &s.Failed)
	if err != nil {
		return Stats{}, fmt.Errorf("queue stats: %w", err)
	}
	return s, nil
}

// transition runs a guarded status update. When no row matches, the item is
// looked up to distinguish a missing item from one in the wrong state.
func (r *repo) transition(ctx context.Context, id uuid.UUID, stmt string, args ...any) (*Item, error) {
	i, err := repository.QueryOne(ctx, r.db, returningItem(stmt), append([]any{id}, args...), scanItem)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, r.classify(ctx, id)
		}
		return nil, err
	}
	return &i, nil
}

func (r *repo) classify(ctx context.Context, id uuid.UUID) error {
	if _, err := r.Find(ctx, id); err != nil {
		return err
	}
	return ErrInvalidTransition
}
