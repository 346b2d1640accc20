package workflows

import (
	"context"
	"database/sql"
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

// New creates a PostgreSQL-backed workflow repository.
func New(db *sql.DB, logger *slog.Logger, pagination pagination.Config) System {
	return &repo{
		db:         db,
		logger:     logger.With("system", "workflows"),
		pagination: pagination,
	}
}

func (r *repo) List(
	ctx context.Context,
	page pagination.PageRequest,
	filters Filters,
) (*pagination.PageResult[Workflow], error) {
	page.Normalize(r.pagination)

	qb := query.
		NewBuilder(projection, defaultSort).
		WhereSearch(page.Search, "Name", "SourcePath")

	filters.Apply(qb)

	if len(page.Sort) > 0 {
		qb.OrderByFields(page.Sort)
	}

	result, err := repository.QueryPage(ctx, r.db, qb, page, scanWorkflow)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	return result, nil
}

func (r *repo) Find(ctx context.Context, id uuid.UUID) (*Workflow, error) {
	q, args := query.
		NewBuilder(projection).
		WhereEquals("Deleted", false).
		BuildSingle("ID", id)

	w, err := repository.QueryOne(ctx, r.db, q, args, scanWorkflow)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicateSource)
	}
	return &w, nil
}

func (r *repo) FindByStatus(ctx context.Context, status Status) ([]Workflow, error) {
	q, args := query.
		NewBuilder(projection, query.SortField{Field: "CreatedAt"}).
		WhereEquals("Deleted", false).
		WhereEquals("Status", status).
		Build()

	items, err := repository.QueryMany(ctx, r.db, q, args, scanWorkflow)
	if err != nil {
		return nil, fmt.Errorf("query workflows by status: %w", err)
	}
	return items, nil
}

func (r *repo) Create(ctx context.Context, cmd CreateCommand) (*Workflow, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	q := `
		INSERT INTO workflows(id, name, source_path, interval_seconds, status, owner_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		` + returning

	args := []any{
		uuid.New(),
		cmd.Name,
		cmd.SourcePath,
		cmd.IntervalSeconds,
		StatusStopped,
		cmd.OwnerID,
	}

	w, err := repository.QueryOne(ctx, r.db, q, args, scanWorkflow)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicateSource)
	}

	r.logger.Info("workflow created", "id", w.ID, "name", w.Name, "source_path", w.SourcePath)
	return &w, nil
}

func (r *repo) Update(ctx context.Context, id uuid.UUID, cmd UpdateCommand) (*Workflow, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	q := `
		UPDATE workflows
		SET name = $1, source_path = $2, interval_seconds = $3, updated_at = NOW()
		WHERE id = $4 AND NOT deleted
		` + returning

	args := []any{cmd.Name, cmd.SourcePath, cmd.IntervalSeconds, id}

	w, err := repository.QueryOne(ctx, r.db, q, args, scanWorkflow)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicateSource)
	}

	r.logger.Info("workflow updated", "id", w.ID)
	return &w, nil
}

func (r *repo) Delete(ctx context.Context, id uuid.UUID) error {
	err := repository.ExecExpectOne(
		ctx, r.db,
		`UPDATE workflows
		 SET deleted = TRUE, status = $1, updated_at = NOW()
		 WHERE id = $2 AND NOT deleted`,
		StatusStopped, id,
	)
	if err != nil {
		return repository.MapError(err, ErrNotFound, ErrDuplicateSource)
	}

	r.logger.Info("workflow deleted", "id", id)
	return nil
}

func (r *repo) SetStatus(ctx context.Context, id uuid.UUID, status Status, errorMessage *string) (*Workflow, error) {
	q := `
		UPDATE workflows
		SET status = $1, error_message = $2, updated_at = NOW()
		WHERE id = $3 AND NOT deleted
		` + returning

	w, err := repository.QueryOne(ctx, r.db, q, []any{status, errorMessage, id}, scanWorkflow)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicateSource)
	}

	r.logger.Info("workflow status changed", "id", id, "status", status)
	return &w, nil
}

func (r *repo) RecordScan(ctx context.Context, id uuid.UUID, at time.Time) error {
	err := repository.ExecExpectOne(
		ctx, r.db,
		"UPDATE workflows SET last_scan_at = $1, updated_at = NOW() WHERE id = $2",
		at, id,
	)
	return repository.MapError(err, ErrNotFound, ErrDuplicateSource)
}

func (r *repo) RecordOutcome(ctx context.Context, id uuid.UUID, succeeded bool) error {
	q := "UPDATE workflows SET failed_count = failed_count + 1, updated_at = NOW() WHERE id = $1"
	if succeeded {
		q = "UPDATE workflows SET processed_count = processed_count + 1, updated_at = NOW() WHERE id = $1"
	}

	err := repository.ExecExpectOne(ctx, r.db, q, id)
	return repository.MapError(err, ErrNotFound, ErrDuplicateSource)
}
