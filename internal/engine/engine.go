// Package engine runs the auto-ingestion workflows: a supervisor owning at
// most MaxConcurrent runners, each polling one source folder, queueing new
// files by checksum, and draining its queue serially through the processor.
package engine

import (
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/rhinocodelab/idms-v3/internal/activity"
	"github.com/rhinocodelab/idms-v3/internal/classifications"
	"github.com/rhinocodelab/idms-v3/internal/classifier"
	"github.com/rhinocodelab/idms-v3/internal/documents"
	"github.com/rhinocodelab/idms-v3/internal/queue"
	"github.com/rhinocodelab/idms-v3/internal/workflows"
)

const (
	// MaxConcurrent is the number of workflows allowed to run at once.
	MaxConcurrent = 2
	// MaxRetries is the number of failed attempts after which an item is terminal.
	MaxRetries = 3
)

var extensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
}

// Accepted reports whether name carries an ingestible extension.
func Accepted(name string) bool {
	return extensions[strings.ToLower(filepath.Ext(name))]
}

// Config holds engine tuning.
type Config struct {
	HashWorkers     int
	ItemTimeout     time.Duration
	ResumeOnStartup bool
	// MaxFileSize skips larger files during discovery. Zero disables the limit.
	MaxFileSize int64
}

// Runtime bundles the collaborators the engine drives.
type Runtime struct {
	Workflows       workflows.System
	Queue           queue.System
	Activity        activity.System
	Classifications classifications.System
	Documents       documents.System
	Classifier      classifier.System
	Clock           Clock
	Meter           metric.MeterProvider
	Logger          *slog.Logger
}

// Dashboard aggregates the counts shown on the overview screen.
type Dashboard struct {
	ActiveWorkflows int `json:"active_workflows"`
	MaxConcurrent   int `json:"max_concurrent"`
	ProcessedToday  int `json:"processed_today"`
	Pending         int `json:"pending"`
	Processing      int `json:"processing"`
	Failed          int `json:"failed"`
}
