package classifier

import (
	"errors"
	"fmt"
	"strings"
)

// Errors returned by the classification client.
var (
	ErrEmptyInput    = errors.New("classifier: empty input")
	ErrEmptyResponse = errors.New("classifier: empty response")
	ErrRejected      = errors.New("classifier: request rejected")
)

type statusError struct {
	StatusCode int
	Body       string
	cause      error
}

func (e *statusError) Error() string {
	return fmt.Sprintf("classifier: http %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

// Unwrap exposes the library error, plus ErrRejected for client errors
// that will not succeed on retry.
func (e *statusError) Unwrap() []error {
	errs := []error{e.cause}
	if !e.retryable() {
		errs = append(errs, ErrRejected)
	}
	return errs
}

func (e *statusError) retryable() bool {
	return e.StatusCode == 408 || e.StatusCode == 429 || e.StatusCode >= 500
}
