// Package database provides PostgreSQL connection management with lifecycle coordination.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/rhinocodelab/idms-v3/pkg/lifecycle"
)

// System manages database connections and lifecycle coordination.
type System interface {
	// Connection returns the underlying database connection pool.
	Connection() *sql.DB
	// Start registers startup and shutdown hooks with the lifecycle coordinator.
	Start(lc *lifecycle.Coordinator) error
	// Ready reports whether the startup ping (and migration, when enabled) succeeded.
	Ready() bool
	// Started is closed once the startup hook has finished, successfully or not.
	Started() <-chan struct{}
}

type database struct {
	conn        *sql.DB
	logger      *slog.Logger
	connTimeout time.Duration
	url         string
	migrations  fs.FS
	autoMigrate bool

	ready     atomic.Bool
	started   chan struct{}
	startOnce sync.Once
}

// New creates a database system with the given configuration.
// It calls sql.Open to validate the DSN and configure pool parameters,
// but does not establish a connection until Start is called. When
// cfg.AutoMigrate is set, migrations (a directory of golang-migrate SQL
// files at the root of the FS) are applied during startup.
func New(cfg *Config, logger *slog.Logger, migrations fs.FS) (System, error) {
	db, err := sql.Open("pgx", cfg.Dsn())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetimeDuration())

	return &database{
		conn:        db,
		logger:      logger.With("system", "database"),
		connTimeout: cfg.ConnTimeoutDuration(),
		url:         cfg.URL(),
		migrations:  migrations,
		autoMigrate: cfg.AutoMigrate && migrations != nil,
		started:     make(chan struct{}),
	}, nil
}

func (d *database) Connection() *sql.DB {
	return d.conn
}

func (d *database) Ready() bool {
	return d.ready.Load()
}

func (d *database) Started() <-chan struct{} {
	return d.started
}

func (d *database) Start(lc *lifecycle.Coordinator) error {
	d.logger.Info("starting database connection")
	lc.RegisterReadiness("database", d)

	lc.OnStartup(func() {
		defer d.startOnce.Do(func() { close(d.started) })

		if err := d.connect(lc.Context()); err != nil {
			d.logger.Error("database startup failed", "error", err)
			return
		}

		d.ready.Store(true)
		d.logger.Info("database connection established")
	})

	lc.OnShutdown(func() {
		<-lc.Context().Done()
		d.logger.Info("closing database connection")

		if err := d.conn.Close(); err != nil {
			d.logger.Error("database close failed", "error", err)
			return
		}

		d.logger.Info("database connection closed")
	})

	return nil
}

func (d *database) connect(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, d.connTimeout)
	defer cancel()

	if err := d.conn.PingContext(pingCtx); err != nil {
		return fmt.Errorf("%w: ping: %w", ErrNotReady, err)
	}

	if !d.autoMigrate {
		return nil
	}

	version, err := Migrate(d.url, d.migrations)
	if err != nil {
		return err
	}
	d.logger.Info("database migrations applied", "version", version)
	return nil
}
