package queue

import (
	"fmt"
	"net/url"

	"github.com/google/uuid"

	"github.com/rhinocodelab/idms-v3/pkg/query"
	"github.com/rhinocodelab/idms-v3/pkg/repository"
)

var projection = query.
	NewProjectionMap("public", "queue_items", "q").
	Project("id", "ID").
	Project("seq", "Seq").
	Project("workflow_id", "WorkflowID").
	Project("file_path", "FilePath").
	Project("file_name", "FileName").
	Project("file_size", "FileSize").
	Project("checksum", "Checksum").
	Project("status", "Status").
	Project("retry_count", "RetryCount").
	Project("classification_id", "ClassificationID").
	Project("processed_path", "ProcessedPath").
	Project("error_message", "ErrorMessage").
	Project("discovered_at", "DiscoveredAt").
	Project("updated_at", "UpdatedAt").
	Join("public", "workflows", "w", "INNER JOIN", "w.id = q.workflow_id").
	Project("name", "WorkflowName")

var defaultSort = query.SortField{
	Field:      "Seq",
	Descending: true,
}

// returningItem wraps a data-modifying statement ending in RETURNING * so the
// affected rows are read back through the full projection.
func returningItem(stmt string) string {
	return fmt.Sprintf(
		"WITH q AS (%s) SELECT %s FROM q INNER JOIN public.workflows w ON w.id = q.workflow_id",
		stmt,
		projection.Columns(),
	)
}

// Filters contains optional filtering criteria for queue item queries.
type Filters struct {
	WorkflowID *uuid.UUID `json:"workflow_id,omitempty"`
	Status     *Status    `json:"status,omitempty"`
	FileName   *string    `json:"file_name,omitempty"`
}

// Apply adds filter conditions to a query builder.
func (f Filters) Apply(b *query.Builder) *query.Builder {
	return b.
		WhereEquals("WorkflowID", f.WorkflowID).
		WhereEquals("Status", f.Status).
		WhereContains("FileName", f.FileName)
}

// FiltersFromQuery extracts filter values from URL query parameters. A
// malformed workflow_id or status yields ErrInvalidFilter.
func FiltersFromQuery(values url.Values) (Filters, error) {
	var f Filters

	if w := values.Get("workflow_id"); w != "" {
		id, err := uuid.Parse(w)
		if err != nil {
			return Filters{}, fmt.Errorf("%w: workflow_id %q", ErrInvalidFilter, w)
		}
		f.WorkflowID = &id
	}

	if s := values.Get("status"); s != "" {
		st, err := ParseStatus(s)
		if err != nil {
			return Filters{}, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
		}
		f.Status = &st
	}

	if n := values.Get("file_name"); n != "" {
		f.FileName = &n
	}

	return f, nil
}

func scanItem(s repository.Scanner) (Item, error) {
	var i Item
	err := s.Scan(
		&i.ID,
		&i.Seq,
		&i.WorkflowID,
		&i.FilePath,
		&i.FileName,
		&i.FileSize,
		&i.Checksum,
		&i.Status,
		&i.RetryCount,
		&i.ClassificationID,
		&i.ProcessedPath,
		&i.ErrorMessage,
		&i.DiscoveredAt,
		&i.UpdatedAt,
		&i.WorkflowName,
	)
	return i, err
}
