// Package activity implements the append-only per-workflow activity log.
package activity

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Level is the severity of an activity entry.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// ParseLevel validates s against the known levels.
func ParseLevel(s string) (Level, error) {
	switch l := Level(s); l {
	case LevelInfo, LevelSuccess, LevelWarning, LevelError:
		return l, nil
	}
	return "", fmt.Errorf("%w: unknown level %q", ErrInvalid, s)
}

// Slog maps the level onto the service log levels. Success entries log at info.
func (l Level) Slog() slog.Level {
	switch l {
	case LevelWarning:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Scan implements sql.Scanner.
func (l *Level) Scan(src any) error {
	var raw string
	switch v := src.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("scan activity level: unsupported type %T", src)
	}

	parsed, err := ParseLevel(raw)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// Value implements driver.Valuer.
func (l Level) Value() (driver.Value, error) {
	return string(l), nil
}

// Entry is an immutable activity record.
type Entry struct {
	ID          uuid.UUID       `json:"id"`
	WorkflowID  uuid.UUID       `json:"workflow_id"`
	QueueItemID *uuid.UUID      `json:"queue_item_id"`
	Level       Level           `json:"level"`
	Message     string          `json:"message"`
	FilePath    *string         `json:"file_path"`
	Details     json.RawMessage `json:"details,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// RecordCommand describes an entry to append.
type RecordCommand struct {
	WorkflowID  uuid.UUID
	QueueItemID *uuid.UUID
	Level       Level
	Message     string
	FilePath    string
	Details     map[string]any
}

// attrs renders the command as slog attributes for the service log mirror.
func (c RecordCommand) attrs() []slog.Attr {
	attrs := []slog.Attr{slog.String("workflow_id", c.WorkflowID.String())}
	if c.QueueItemID != nil {
		attrs = append(attrs, slog.String("queue_item_id", c.QueueItemID.String()))
	}
	if c.FilePath != "" {
		attrs = append(attrs, slog.String("file", c.FilePath))
	}
	for k, v := range c.Details {
		attrs = append(attrs, slog.Any(k, v))
	}
	return attrs
}
