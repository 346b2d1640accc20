package workflows

import (
	"net/url"

	"github.com/rhinocodelab/idms-v3/pkg/query"
	"github.com/rhinocodelab/idms-v3/pkg/repository"
)

var projection = query.
	NewProjectionMap("public", "workflows", "w").
	Project("id", "ID").
	Project("name", "Name").
	Project("source_path", "SourcePath").
	Project("interval_seconds", "IntervalSeconds").
	Project("status", "Status").
	Project("owner_id", "OwnerID").
	Project("processed_count", "ProcessedCount").
	Project("failed_count", "FailedCount").
	Project("last_scan_at", "LastScanAt").
	Project("error_message", "ErrorMessage").
	Project("created_at", "CreatedAt").
	Project("updated_at", "UpdatedAt").
	Hidden("deleted", "Deleted")

// returning mirrors the projection column order for INSERT/UPDATE ... RETURNING.
const returning = `RETURNING id, name, source_path, interval_seconds, status, owner_id,
	processed_count, failed_count, last_scan_at, error_message, created_at, updated_at`

var defaultSort = query.SortField{
	Field:      "CreatedAt",
	Descending: true,
}

// Filters contains optional filtering criteria for workflow queries.
type Filters struct {
	Status  *Status `json:"status,omitempty"`
	OwnerID *string `json:"owner_id,omitempty"`
	Name    *string `json:"name,omitempty"`
}

// Apply adds filter conditions to a query builder. Soft-deleted workflows are always excluded.
func (f Filters) Apply(b *query.Builder) *query.Builder {
	return b.
		WhereEquals("Deleted", false).
		WhereEquals("Status", f.Status).
		WhereEquals("OwnerID", f.OwnerID).
		WhereContains("Name", f.Name)
}

// FiltersFromQuery extracts filter values from URL query parameters. An
// unknown status yields ErrInvalid.
func FiltersFromQuery(values url.Values) (Filters, error) {
	var f Filters

	if s := values.Get("status"); s != "" {
		st, err := ParseStatus(s)
		if err != nil {
			return Filters{}, err
		}
		f.Status = &st
	}

	if o := values.Get("owner_id"); o != "" {
		f.OwnerID = &o
	}

	if n := values.Get("name"); n != "" {
		f.Name = &n
	}

	return f, nil
}

func scanWorkflow(s repository.Scanner) (Workflow, error) {
	var w Workflow
	err := s.Scan(
		&w.ID,
		&w.Name,
		&w.SourcePath,
		&w.IntervalSeconds,
		&w.Status,
		&w.OwnerID,
		&w.ProcessedCount,
		&w.FailedCount,
		&w.LastScanAt,
		&w.ErrorMessage,
		&w.CreatedAt,
		&w.UpdatedAt,
	)
	return w, err
}
