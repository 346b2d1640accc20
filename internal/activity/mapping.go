package activity

import (
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/rhinocodelab/idms-v3/pkg/query"
	"github.com/rhinocodelab/idms-v3/pkg/repository"
)

var projection = query.
	NewProjectionMap("public", "workflow_logs", "l").
	Project("id", "ID").
	Project("workflow_id", "WorkflowID").
	Project("queue_item_id", "QueueItemID").
	Project("level", "Level").
	Project("message", "Message").
	Project("file_path", "FilePath").
	Project("details", "Details").
	Project("created_at", "CreatedAt")

var defaultSort = query.SortField{
	Field:      "CreatedAt",
	Descending: true,
}

// Filters contains optional filtering criteria for activity queries.
type Filters struct {
	WorkflowID  *uuid.UUID `json:"workflow_id,omitempty"`
	QueueItemID *uuid.UUID `json:"queue_item_id,omitempty"`
	Level       *Level     `json:"level,omitempty"`
	Since       *time.Time `json:"since,omitempty"`
}

// Apply adds filter conditions to a query builder.
func (f Filters) Apply(b *query.Builder) *query.Builder {
	return b.
		WhereEquals("WorkflowID", f.WorkflowID).
		WhereEquals("QueueItemID", f.QueueItemID).
		WhereEquals("Level", f.Level).
		WhereSince("CreatedAt", f.Since)
}

// FiltersFromQuery extracts filter values from URL query parameters.
// Since accepts RFC 3339 timestamps. Malformed values yield ErrInvalid.
func FiltersFromQuery(values url.Values) (Filters, error) {
	var f Filters

	if w := values.Get("workflow_id"); w != "" {
		id, err := uuid.Parse(w)
		if err != nil {
			return Filters{}, fmt.Errorf("%w: workflow_id %q", ErrInvalid, w)
		}
		f.WorkflowID = &id
	}

	if q := values.Get("queue_item_id"); q != "" {
		id, err := uuid.Parse(q)
		if err != nil {
			return Filters{}, fmt.Errorf("%w: queue_item_id %q", ErrInvalid, q)
		}
		f.QueueItemID = &id
	}

	if l := values.Get("level"); l != "" {
		level, err := ParseLevel(l)
		if err != nil {
			return Filters{}, err
		}
		f.Level = &level
	}

	if s := values.Get("since"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return Filters{}, fmt.Errorf("%w: since %q", ErrInvalid, s)
		}
		f.Since = &t
	}

	return f, nil
}

func scanEntry(s repository.Scanner) (Entry, error) {
	var (
		e       Entry
		details []byte
	)

	err := s.Scan(
		&e.ID,
		&e.WorkflowID,
		&e.QueueItemID,
		&e.Level,
		&e.Message,
		&e.FilePath,
		&details,
		&e.CreatedAt,
	)
	if err != nil {
		return e, err
	}

	if len(details) > 0 {
		e.Details = details
	}
	return e, nil
}
