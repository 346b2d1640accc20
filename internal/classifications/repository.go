package classifications

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

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

// New creates a classification repository implementing the System interface.
func New(db *sql.DB, logger *slog.Logger, pagination pagination.Config) System {
	return &repo{
		db:         db,
		logger:     logger.With("system", "classifications"),
		pagination: pagination,
	}
}

func (r *repo) Handler() *Handler {
	return NewHandler(r, r.logger, r.pagination)
}

func (r *repo) List(
	ctx context.Context,
	page pagination.PageRequest,
	filters Filters,
) (*pagination.PageResult[Classification], error) {
	page.Normalize(r.pagination)

	qb := query.
		NewBuilder(projection, defaultSort).
		WhereSearch(page.Search, "Filename", "DocumentType", "Rationale")

	filters.Apply(qb)

	if len(page.Sort) > 0 {
		qb.OrderByFields(page.Sort)
	}

	result, err := repository.QueryPage(ctx, r.db, qb, page, scanClassification)
	if err != nil {
		return nil, fmt.Errorf("list classifications: %w", err)
	}
	return result, nil
}

func (r *repo) Find(ctx context.Context, id uuid.UUID) (*Classification, error) {
	q, args := query.NewBuilder(projection).BuildSingle("ID", id)

	c, err := repository.QueryOne(ctx, r.db, q, args, scanClassification)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &c, nil
}

func (r *repo) Summary(ctx context.Context, workflowID *uuid.UUID) (*Summary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT document_type, criticality_level, COUNT(*)
		FROM classifications
		WHERE $1::uuid IS NULL OR workflow_id = $1
		GROUP BY document_type, criticality_level`,
		workflowID,
	)
	if err != nil {
		return nil, fmt.Errorf("summarize classifications: %w", err)
	}
	defer rows.Close()

	s := newSummary()
	for rows.Next() {
		var (
			docType, level string
			n              int
		)
		if err := rows.Scan(&docType, &level, &n); err != nil {
			return nil, fmt.Errorf("scan classification summary: %w", err)
		}
		s.add(docType, level, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("summarize classifications: %w", err)
	}
	return s, nil
}

func (r *repo) Create(ctx context.Context, cmd CreateCommand) (*Classification, error) {
	q := `
		INSERT INTO classifications(
			id, workflow_id, queue_item_id, filename, document_type, criticality_level,
			confidence, rationale, storage_key, content_type, size_bytes, model_name
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		` + returning

	args := []any{
		uuid.New(),
		cmd.WorkflowID,
		cmd.QueueItemID,
		cmd.Filename,
		cmd.DocumentType,
		cmd.CriticalityLevel,
		cmd.Confidence,
		cmd.Rationale,
		cmd.StorageKey,
		cmd.ContentType,
		cmd.SizeBytes,
		cmd.ModelName,
	}

	c, err := repository.QueryOne(ctx, r.db, q, args, scanClassification)
	if err != nil {
		if repository.IsForeignKeyViolation(err) {
			return nil, ErrWorkflow
		}
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	r.logger.Info("document classified",
		"id", c.ID,
		"queue_item_id", c.QueueItemID,
		"document_type", c.DocumentType,
		"criticality_level", c.CriticalityLevel,
	)
	return &c, nil
}

func (r *repo) Delete(ctx context.Context, id uuid.UUID) error {
	err := repository.ExecExpectOne(ctx, r.db, "DELETE FROM classifications WHERE id = $1", id)
	if err != nil {
		return repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	r.logger.Info("classification deleted", "id", id)
	return nil
}
