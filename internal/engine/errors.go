package engine

import (
	"errors"
	"net/http"

	"github.com/rhinocodelab/idms-v3/internal/activity"
	"github.com/rhinocodelab/idms-v3/internal/queue"
	"github.com/rhinocodelab/idms-v3/internal/workflows"
)

// Engine errors.
var (
	ErrSourceUnavailable = errors.New("source location unavailable")
	ErrConflict          = errors.New("workflow is running")
	ErrCapacityExceeded  = errors.New("maximum number of running workflows reached")
	ErrRetriesExhausted  = errors.New("item retry limit reached")
	ErrShuttingDown      = errors.New("engine is shutting down")
)

// MapHTTPStatus maps engine and domain errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrConflict), errors.Is(err, ErrCapacityExceeded):
		return http.StatusConflict
	case errors.Is(err, ErrSourceUnavailable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrShuttingDown):
		return http.StatusServiceUnavailable
	case errors.Is(err, workflows.ErrNotFound),
		errors.Is(err, workflows.ErrDuplicateSource),
		errors.Is(err, workflows.ErrInvalid):
		return workflows.MapHTTPStatus(err)
	case errors.Is(err, queue.ErrNotFound),
		errors.Is(err, queue.ErrInvalidTransition),
		errors.Is(err, queue.ErrDuplicate):
		return queue.MapHTTPStatus(err)
	}
	return activity.MapHTTPStatus(err)
}
