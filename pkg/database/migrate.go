package database

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	_ "github.com/golang-migrate/migrate/v4/database/postgres"
)

// NewMigrator builds a golang-migrate instance reading SQL files from the root
// of fsys and applying them to the database at the postgres:// URL.
// The caller must Close the migrator.
func NewMigrator(url string, fsys fs.FS) (*migrate.Migrate, error) {
	source, err := iofs.New(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("create migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, url)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	return m, nil
}

// Migrate applies all pending up migrations and returns the resulting schema version.
func Migrate(url string, fsys fs.FS) (uint, error) {
	m, err := NewMigrator(url, fsys)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrMigrationFailed, err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("%w: %w", ErrMigrationFailed, err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return 0, fmt.Errorf("%w: read version: %w", ErrMigrationFailed, err)
	}
	if dirty {
		return version, fmt.Errorf("%w: schema version %d is dirty", ErrMigrationFailed, version)
	}

	return version, nil
}
