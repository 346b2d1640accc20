package activity

import (
	"errors"
	"net/http"
)

// Domain errors for activity operations.
var (
	ErrNotFound = errors.New("activity entry not found")
	ErrInvalid  = errors.New("invalid activity entry")
)

// MapHTTPStatus maps activity domain errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalid):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
