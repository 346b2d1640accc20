package classifications

import (
	"errors"
	"net/http"
)

// Domain errors for classification operations.
var (
	ErrNotFound  = errors.New("classification not found")
	ErrDuplicate = errors.New("classification already exists")
	ErrWorkflow  = errors.New("classification references an unknown workflow")
	ErrInvalidID = errors.New("invalid classification id")
)

// MapHTTPStatus maps classification domain errors to appropriate HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, ErrWorkflow):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrInvalidID):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
