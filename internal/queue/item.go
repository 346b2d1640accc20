// Package queue implements the durable per-workflow record of discovered files
// and their processing status.
package queue

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the processing state of a queue item.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// ParseStatus validates s against the known queue item statuses.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return st, nil
	}
	return "", fmt.Errorf("unknown queue status %q", s)
}

// CanTransition reports whether an item in status s may move to next.
// Completed items never transition again; failed items only return to
// pending through an explicit retry.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusCompleted || next == StatusPending || next == StatusFailed
	case StatusFailed:
		return next == StatusPending
	}
	return false
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
		return fmt.Errorf("scan queue status: unsupported type %T", src)
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

// Item is one file discovered by a workflow, tracked from discovery through
// its terminal outcome.
type Item struct {
	ID               uuid.UUID  `json:"id"`
	Seq              int64      `json:"seq"`
	WorkflowID       uuid.UUID  `json:"workflow_id"`
	FilePath         string     `json:"file_path"`
	FileName         string     `json:"file_name"`
	FileSize         int64      `json:"file_size"`
	Checksum         string     `json:"checksum"`
	Status           Status     `json:"status"`
	RetryCount       int        `json:"retry_count"`
	ClassificationID *uuid.UUID `json:"classification_id"`
	ProcessedPath    *string    `json:"processed_path"`
	ErrorMessage     *string    `json:"error_message"`
	DiscoveredAt     time.Time  `json:"discovered_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	WorkflowName     string     `json:"workflow_name"`
}

// EnqueueCommand describes a newly discovered file.
type EnqueueCommand struct {
	WorkflowID uuid.UUID
	FilePath   string
	FileName   string
	FileSize   int64
	Checksum   string
}

// Stats aggregates queue counts for the dashboard.
type Stats struct {
	ProcessedToday int `json:"processed_today"`
	Pending        int `json:"pending"`
	Processing     int `json:"processing"`
	Failed         int `json:"failed"`
}
