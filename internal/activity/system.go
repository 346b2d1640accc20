package activity

import (
	"context"

	"github.com/rhinocodelab/idms-v3/pkg/pagination"
)

// System defines the activity log contract. Entries are never updated or deleted.
type System interface {
	// Record appends an entry and mirrors it to the service log.
	Record(ctx context.Context, cmd RecordCommand) (*Entry, error)
	List(ctx context.Context, page pagination.PageRequest, filters Filters) (*pagination.PageResult[Entry], error)
}
