package queue

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/rhinocodelab/idms-v3/pkg/pagination"
)

// System defines the queue store contract. Every status change is a single
// guarded UPDATE, so an item only moves along the transitions Status.CanTransition allows.
type System interface {
	List(ctx context.Context, page pagination.PageRequest, filters Filters) (*pagination.PageResult[Item], error)
	Find(ctx context.Context, id uuid.UUID) (*Item, error)

	// Exists reports whether checksum has ever been queued for the workflow.
	Exists(ctx context.Context, workflowID uuid.UUID, checksum string) (bool, error)
	// Enqueue inserts a pending item. Returns ErrDuplicate when the
	// (workflow, checksum) pair already exists.
	Enqueue(ctx context.Context, cmd EnqueueCommand) (*Item, error)
	// NextPending returns the oldest pending item with a sequence greater than
	// afterSeq. Returns ErrNotFound when none remain.
	NextPending(ctx context.Context, workflowID uuid.UUID, afterSeq int64) (*Item, error)

	Claim(ctx context.Context, id uuid.UUID) (*Item, error)
	Attach(ctx context.Context, id, classificationID uuid.UUID) error
	Complete(ctx context.Context, id uuid.UUID, processedPath string) (*Item, error)
	// Release returns a processing item to pending and increments its retry count.
	Release(ctx context.Context, id uuid.UUID, reason string) (*Item, error)
	// Fail marks a processing item terminally failed and increments its retry count.
	Fail(ctx context.Context, id uuid.UUID, reason string) (*Item, error)
	// Retry resets a failed item to pending without touching its retry count.
	Retry(ctx context.Context, id uuid.UUID) (*Item, error)

	// RecoverProcessing reverts every processing item to pending.
	RecoverProcessing(ctx context.Context) ([]Item, error)
	// RecoverWorkflow reverts the workflow's processing items to pending.
	// Only the workflow's own runner may call it.
	RecoverWorkflow(ctx context.Context, workflowID uuid.UUID) ([]Item, error)
	Stats(ctx context.Context, since time.Time) (Stats, error)
}
