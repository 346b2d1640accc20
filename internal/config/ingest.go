package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rhinocodelab/idms-v3/pkg/formatting"
)

const (
	EnvIngestLockFile        = "IDMS_INGEST_LOCK_FILE"
	EnvIngestResumeOnStartup = "IDMS_INGEST_RESUME_ON_STARTUP"
	EnvIngestHashWorkers     = "IDMS_INGEST_HASH_WORKERS"
	EnvIngestItemTimeout     = "IDMS_INGEST_ITEM_TIMEOUT"
	EnvIngestMaxFileSize     = "IDMS_INGEST_MAX_FILE_SIZE"
)

// IngestConfig holds workflow engine settings. The concurrency cap and retry
// limit are fixed and not configurable.
type IngestConfig struct {
	// LockFile guards against two engine processes sharing one database.
	LockFile        string `toml:"lock_file"`
	ResumeOnStartup bool   `toml:"resume_on_startup"`
	HashWorkers     int    `toml:"hash_workers"`
	ItemTimeout     string `toml:"item_timeout"`
	MaxFileSize     string `toml:"max_file_size"`
}

// ItemTimeoutDuration returns ItemTimeout as a time.Duration.
func (c *IngestConfig) ItemTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.ItemTimeout)
	return d
}

// MaxFileSizeBytes returns MaxFileSize as a byte count.
func (c *IngestConfig) MaxFileSizeBytes() int64 {
	n, _ := formatting.ParseBytes(c.MaxFileSize)
	return n
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *IngestConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay. ResumeOnStartup only turns on.
func (c *IngestConfig) Merge(overlay *IngestConfig) {
	if overlay.LockFile != "" {
		c.LockFile = overlay.LockFile
	}
	if overlay.ResumeOnStartup {
		c.ResumeOnStartup = true
	}
	if overlay.HashWorkers != 0 {
		c.HashWorkers = overlay.HashWorkers
	}
	if overlay.ItemTimeout != "" {
		c.ItemTimeout = overlay.ItemTimeout
	}
	if overlay.MaxFileSize != "" {
		c.MaxFileSize = overlay.MaxFileSize
	}
}

func (c *IngestConfig) loadDefaults() {
	if c.LockFile == "" {
		c.LockFile = "idms.lock"
	}
	if c.HashWorkers == 0 {
		c.HashWorkers = 4
	}
	if c.ItemTimeout == "" {
		c.ItemTimeout = "5m"
	}
	if c.MaxFileSize == "" {
		c.MaxFileSize = "25MB"
	}
}

func (c *IngestConfig) loadEnv() {
	if v := os.Getenv(EnvIngestLockFile); v != "" {
		c.LockFile = v
	}
	if v := os.Getenv(EnvIngestResumeOnStartup); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.ResumeOnStartup = b
		}
	}
	if v := os.Getenv(EnvIngestHashWorkers); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.HashWorkers = n
		}
	}
	if v := os.Getenv(EnvIngestItemTimeout); v != "" {
		c.ItemTimeout = v
	}
	if v := os.Getenv(EnvIngestMaxFileSize); v != "" {
		c.MaxFileSize = v
	}
}

func (c *IngestConfig) validate() error {
	if c.HashWorkers < 1 {
		return fmt.Errorf("hash_workers must be positive, got %d", c.HashWorkers)
	}
	d, err := time.ParseDuration(c.ItemTimeout)
	if err != nil {
		return fmt.Errorf("invalid item_timeout: %w", err)
	}
	if d <= 0 {
		return fmt.Errorf("item_timeout must be positive")
	}
	if _, err := formatting.ParseBytes(c.MaxFileSize); err != nil {
		return fmt.Errorf("invalid max_file_size: %w", err)
	}
	return nil
}
