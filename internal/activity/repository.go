package activity

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

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

// New creates a PostgreSQL-backed activity log.
func New(db *sql.DB, logger *slog.Logger, pagination pagination.Config) System {
	return &repo{
		db:         db,
		logger:     logger.With("system", "activity"),
		pagination: pagination,
	}
}

func (r *repo) Record(ctx context.Context, cmd RecordCommand) (*Entry, error) {
	if _, err := ParseLevel(string(cmd.Level)); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cmd.Message) == "" {
		return nil, fmt.Errorf("%w: message required", ErrInvalid)
	}

	var details []byte
	if len(cmd.Details) > 0 {
		b, err := json.Marshal(cmd.Details)
		if err != nil {
			return nil, fmt.Errorf("marshal details: %w", err)
		}
		details = b
	}

	var filePath *string
	if cmd.FilePath != "" {
		filePath = &cmd.FilePath
	}

	q := `
		INSERT INTO workflow_logs(id, workflow_id, queue_item_id, level, message, file_path, details)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, workflow_id, queue_item_id, level, message, file_path, details, created_at`

	args := []any{
		uuid.New(),
		cmd.WorkflowID,
		cmd.QueueItemID,
		cmd.Level,
		cmd.Message,
		filePath,
		details,
	}

	e, err := repository.QueryOne(ctx, r.db, q, args, scanEntry)
	if err != nil {
		return nil, fmt.Errorf("record activity: %w", err)
	}

	r.logger.LogAttrs(ctx, cmd.Level.Slog(), cmd.Message, cmd.attrs()...)
	return &e, nil
}

func (r *repo) List(
	ctx context.Context,
	page pagination.PageRequest,
	filters Filters,
) (*pagination.PageResult[Entry], error) {
	page.Normalize(r.pagination)

	qb := query.
		NewBuilder(projection, defaultSort).
		WhereSearch(page.Search, "Message", "FilePath")

	filters.Apply(qb)

	if len(page.Sort) > 0 {
		qb.OrderByFields(page.Sort)
	}

	result, err := repository.QueryPage(ctx, r.db, qb, page, scanEntry)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	return result, nil
}
