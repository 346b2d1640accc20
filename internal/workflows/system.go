package workflows

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/rhinocodelab/idms-v3/pkg/pagination"
)

// System defines the persistence contract for workflows. Lifecycle rules
// (running conflicts, capacity) are enforced by the caller.
type System interface {
	List(ctx context.Context, page pagination.PageRequest, filters Filters) (*pagination.PageResult[Workflow], error)
	Find(ctx context.Context, id uuid.UUID) (*Workflow, error)
	FindByStatus(ctx context.Context, status Status) ([]Workflow, error)

	Create(ctx context.Context, cmd CreateCommand) (*Workflow, error)
	Update(ctx context.Context, id uuid.UUID, cmd UpdateCommand) (*Workflow, error)
	Delete(ctx context.Context, id uuid.UUID) error

	// SetStatus transitions the workflow and records errorMessage (nil clears it).
	SetStatus(ctx context.Context, id uuid.UUID, status Status, errorMessage *string) (*Workflow, error)
	// RecordScan stamps the completion time of a scan cycle.
	RecordScan(ctx context.Context, id uuid.UUID, at time.Time) error
	// RecordOutcome increments the processed or failed counter.
	RecordOutcome(ctx context.Context, id uuid.UUID, succeeded bool) error
}
