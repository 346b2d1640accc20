package database

import "errors"

var (
	// ErrNotReady indicates the database connection has not been established.
	ErrNotReady = errors.New("database not ready")
	// ErrMigrationFailed indicates schema migrations could not be applied.
	ErrMigrationFailed = errors.New("database migration failed")
)
