// Package workflows implements the workflow domain: persisted definitions of
// watched source directories and their scan schedule, status, and counters.
package workflows

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MinIntervalSeconds is the shortest permitted scan interval.
const MinIntervalSeconds = 10

// Status is the lifecycle state of a workflow.
type Status string

const (
	StatusStopped Status = "stopped"
	StatusRunning Status = "running"
	StatusPaused  Status = "paused"
	StatusError   Status = "error"
)

// ParseStatus validates s against the known workflow statuses.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusStopped, StatusRunning, StatusPaused, StatusError:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown workflow status %q", ErrInvalid, s)
}

// Scan implements sql.Scanner, rejecting values outside the enumeration.
func (s *Status) Scan(src any) error {
	var raw string
	switch v := src.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("scan workflow status: unsupported type %T", src)
	}

	st, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// Value implements driver.Valuer.
func (s Status) Value() (driver.Value, error) {
	return string(s), nil
}

// Workflow is a watched source directory processed on a fixed interval.
type Workflow struct {
	ID              uuid.UUID  `json:"id"`
	Name            string     `json:"name"`
	SourcePath      string     `json:"source_path"`
	IntervalSeconds int        `json:"interval_seconds"`
	Status          Status     `json:"status"`
	OwnerID         string     `json:"owner_id"`
	ProcessedCount  int        `json:"processed_count"`
	FailedCount     int        `json:"failed_count"`
	LastScanAt      *time.Time `json:"last_scan_at"`
	ErrorMessage    *string    `json:"error_message"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Interval returns the scan interval as a duration.
func (w *Workflow) Interval() time.Duration {
	return time.Duration(w.IntervalSeconds) * time.Second
}

// CreateCommand carries the fields required to define a workflow.
type CreateCommand struct {
	Name            string `json:"name" validate:"required,max=200"`
	SourcePath      string `json:"source_path" validate:"required"`
	IntervalSeconds int    `json:"interval_seconds" validate:"min=10"`
	OwnerID         string `json:"owner_id" validate:"required"`
}

// UpdateCommand replaces the editable fields of a stopped workflow.
type UpdateCommand struct {
	Name            string `json:"name" validate:"required,max=200"`
	SourcePath      string `json:"source_path" validate:"required"`
	IntervalSeconds int    `json:"interval_seconds" validate:"min=10"`
}
