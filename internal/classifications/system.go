package classifications

import (
	"context"

	"github.com/google/uuid"

	"github.com/rhinocodelab/idms-v3/pkg/pagination"
)

// System defines the classification record store. Records are written once
// by the ingestion engine and are otherwise read-only except for deletion.
type System interface {
	Handler() *Handler

	List(ctx context.Context, page pagination.PageRequest, filters Filters) (*pagination.PageResult[Classification], error)
	Find(ctx context.Context, id uuid.UUID) (*Classification, error)
	// Summary counts records by document type and criticality, optionally
	// scoped to one workflow.
	Summary(ctx context.Context, workflowID *uuid.UUID) (*Summary, error)

	Create(ctx context.Context, cmd CreateCommand) (*Classification, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
