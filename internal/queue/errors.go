package queue

import (
	"errors"
	"net/http"
)

// Domain errors for queue operations.
var (
	ErrNotFound          = errors.New("queue item not found")
	ErrDuplicate         = errors.New("file already queued for workflow")
	ErrInvalidTransition = errors.New("queue item status does not permit this transition")
	ErrInvalidFilter     = errors.New("invalid queue filter")
)

// MapHTTPStatus maps queue domain errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicate), errors.Is(err, ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidFilter):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
