package classifications

import (
	"fmt"
	"net/url"

	"github.com/google/uuid"

	"github.com/rhinocodelab/idms-v3/pkg/query"
	"github.com/rhinocodelab/idms-v3/pkg/repository"
)

var projection = query.
	NewProjectionMap("public", "classifications", "c").
	Project("id", "ID").
	Project("workflow_id", "WorkflowID").
	Project("queue_item_id", "QueueItemID").
	Project("filename", "Filename").
	Project("document_type", "DocumentType").
	Project("criticality_level", "CriticalityLevel").
	Project("confidence", "Confidence").
	Project("rationale", "Rationale").
	Project("storage_key", "StorageKey").
	Project("content_type", "ContentType").
	Project("size_bytes", "SizeBytes").
	Project("model_name", "ModelName").
	Project("classified_at", "ClassifiedAt")

const returning = `RETURNING id, workflow_id, queue_item_id, filename, document_type,
	criticality_level, confidence, rationale, storage_key, content_type, size_bytes,
	model_name, classified_at`

var defaultSort = query.SortField{
	Field:      "ClassifiedAt",
	Descending: true,
}

// Filters contains optional filtering criteria for classification queries.
// Nil fields are ignored. All fields use exact matching.
type Filters struct {
	WorkflowID       *uuid.UUID `json:"workflow_id,omitempty"`
	QueueItemID      *uuid.UUID `json:"queue_item_id,omitempty"`
	DocumentType     *string    `json:"document_type,omitempty"`
	CriticalityLevel *string    `json:"criticality_level,omitempty"`
}

// Apply adds filter conditions to a query builder.
func (f Filters) Apply(b *query.Builder) *query.Builder {
	return b.
		WhereEquals("WorkflowID", f.WorkflowID).
		WhereEquals("QueueItemID", f.QueueItemID).
		WhereEquals("DocumentType", f.DocumentType).
		WhereEquals("CriticalityLevel", f.CriticalityLevel)
}

// FiltersFromQuery extracts filter values from URL query parameters. A
// malformed id yields ErrInvalidID.
func FiltersFromQuery(values url.Values) (Filters, error) {
	var f Filters

	if w := values.Get("workflow_id"); w != "" {
		id, err := uuid.Parse(w)
		if err != nil {
			return Filters{}, fmt.Errorf("%w: workflow_id %q", ErrInvalidID, w)
		}
		f.WorkflowID = &id
	}

	if q := values.Get("queue_item_id"); q != "" {
		id, err := uuid.Parse(q)
		if err != nil {
			return Filters{}, fmt.Errorf("%w: queue_item_id %q", ErrInvalidID, q)
		}
		f.QueueItemID = &id
	}

	if d := values.Get("document_type"); d != "" {
		f.DocumentType = &d
	}

	if c := values.Get("criticality_level"); c != "" {
		f.CriticalityLevel = &c
	}

	return f, nil
}

func scanClassification(s repository.Scanner) (Classification, error) {
	var c Classification
	err := s.Scan(
		&c.ID,
		&c.WorkflowID,
		&c.QueueItemID,
		&c.Filename,
		&c.DocumentType,
		&c.CriticalityLevel,
		&c.Confidence,
		&c.Rationale,
		&c.StorageKey,
		&c.ContentType,
		&c.SizeBytes,
		&c.ModelName,
		&c.ClassifiedAt,
	)
	return c, err
}
