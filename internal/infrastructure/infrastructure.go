// Package infrastructure provides core service initialization for application startup.
// It assembles common dependencies (logging, database, storage) that domain systems require.
package infrastructure

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/rhinocodelab/idms-v3/internal/config"
	"github.com/rhinocodelab/idms-v3/internal/migrations"
	"github.com/rhinocodelab/idms-v3/pkg/database"
	"github.com/rhinocodelab/idms-v3/pkg/lifecycle"
	"github.com/rhinocodelab/idms-v3/pkg/logging"
	"github.com/rhinocodelab/idms-v3/pkg/storage"
	"github.com/rhinocodelab/idms-v3/pkg/telemetry"
)

// ErrLocked is returned by Start when another process holds the instance lock.
var ErrLocked = errors.New("another instance holds the ingestion lock")

// Infrastructure holds the core systems required by all domain modules.
// It provides a single point of initialization for lifecycle coordination,
// logging, database access, file storage, and metrics.
type Infrastructure struct {
	Lifecycle *lifecycle.Coordinator
	Logger    *slog.Logger
	Database  database.System
	Storage   storage.System
	Telemetry telemetry.System
	Meter     metric.MeterProvider

	lock      *flock.Flock
	logCloser io.Closer
}

// New creates an Infrastructure from the application configuration.
// It initializes all systems but does not start them; call Start separately.
func New(cfg *config.Config) (*Infrastructure, error) {
	lc := lifecycle.New()

	logger, closer, err := logging.New(&cfg.Logging, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}

	db, err := database.New(&cfg.Database, logger, migrations.FS)
	if err != nil {
		closer.Close()
		return nil, fmt.Errorf("database init failed: %w", err)
	}

	store, err := storage.New(&cfg.Storage, logger)
	if err != nil {
		closer.Close()
		return nil, fmt.Errorf("storage init failed: %w", err)
	}

	tel, err := telemetry.New(&cfg.Metrics, cfg.Version, logger)
	if err != nil {
		closer.Close()
		return nil, fmt.Errorf("telemetry init failed: %w", err)
	}
	otel.SetMeterProvider(tel.MeterProvider())

	return &Infrastructure{
		Lifecycle: lc,
		Logger:    logger,
		Database:  db,
		Storage:   store,
		Telemetry: tel,
		Meter:     tel.MeterProvider(),
		lock:      flock.New(filepath.Clean(cfg.Ingest.LockFile)),
		logCloser: closer,
	}, nil
}

// Start acquires the instance lock, then registers all infrastructure
// systems with the lifecycle coordinator. Only one process may run the
// workflow engine against a given lock file.
func (i *Infrastructure) Start() error {
	ok, err := i.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrLocked, i.lock.Path())
	}

	i.Lifecycle.OnShutdown(func() {
		<-i.Lifecycle.Context().Done()
		if err := i.lock.Unlock(); err != nil {
			i.Logger.Warn("release lock failed", "path", i.lock.Path(), "error", err)
		}
	})

	if err := i.Database.Start(i.Lifecycle); err != nil {
		i.lock.Unlock()
		return fmt.Errorf("database start failed: %w", err)
	}
	if err := i.Storage.Start(i.Lifecycle); err != nil {
		i.lock.Unlock()
		return fmt.Errorf("storage start failed: %w", err)
	}
	if err := i.Telemetry.Start(i.Lifecycle); err != nil {
		i.lock.Unlock()
		return fmt.Errorf("telemetry start failed: %w", err)
	}

	i.Logger.Info("infrastructure started", "lock", i.lock.Path())
	return nil
}

// Close releases the log file. Call after the lifecycle has shut down.
func (i *Infrastructure) Close() error {
	return i.logCloser.Close()
}
