package documents

import (
	"errors"
	"net/http"

	"github.com/rhinocodelab/idms-v3/pkg/storage"
)

// Domain errors for document operations.
var (
	ErrNotFound    = errors.New("document not found")
	ErrInvalidFile = errors.New("invalid file")
	ErrInvalidKey  = errors.New("invalid document key")
)

// MapHTTPStatus maps document errors to HTTP status codes, deferring to the
// storage layer for anything it raised.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidFile), errors.Is(err, ErrInvalidKey):
		return http.StatusBadRequest
	}
	return storage.MapHTTPStatus(err)
}
