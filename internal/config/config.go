package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/rhinocodelab/idms-v3/pkg/database"
	"github.com/rhinocodelab/idms-v3/pkg/logging"
	"github.com/rhinocodelab/idms-v3/pkg/storage"
	"github.com/rhinocodelab/idms-v3/pkg/telemetry"
)

const (
	BaseConfigFile       = "config.toml"
	OverlayConfigPattern = "config.%s.toml"

	EnvIDMSEnv             = "IDMS_ENV"
	EnvIDMSConfig          = "IDMS_CONFIG"
	EnvIDMSShutdownTimeout = "IDMS_SHUTDOWN_TIMEOUT"
	EnvIDMSVersion         = "IDMS_VERSION"
)

var databaseEnv = &database.Env{
	Host:            "IDMS_DB_HOST",
	Port:            "IDMS_DB_PORT",
	Name:            "IDMS_DB_NAME",
	User:            "IDMS_DB_USER",
	Password:        "IDMS_DB_PASSWORD",
	SSLMode:         "IDMS_DB_SSL_MODE",
	MaxOpenConns:    "IDMS_DB_MAX_OPEN_CONNS",
	MaxIdleConns:    "IDMS_DB_MAX_IDLE_CONNS",
	ConnMaxLifetime: "IDMS_DB_CONN_MAX_LIFETIME",
	ConnTimeout:     "IDMS_DB_CONN_TIMEOUT",
	AutoMigrate:     "IDMS_DB_AUTO_MIGRATE",
}

var storageEnv = &storage.Env{
	ContainerName:    "IDMS_STORAGE_CONTAINER_NAME",
	ConnectionString: "IDMS_STORAGE_CONNECTION_STRING",
	AccountURL:       "IDMS_STORAGE_ACCOUNT_URL",
	MaxRetries:       "IDMS_STORAGE_MAX_RETRIES",
	KeyPrefix:        "IDMS_STORAGE_KEY_PREFIX",
}

var metricsEnv = &telemetry.Env{
	Exporter: "IDMS_METRICS_EXPORTER",
	Path:     "IDMS_METRICS_PATH",
}

var loggingEnv = &logging.Env{
	Level:  "IDMS_LOG_LEVEL",
	Format: "IDMS_LOG_FORMAT",
	File:   "IDMS_LOG_FILE",
}

// Config is the root configuration for the ingestion service.
type Config struct {
	Server          ServerConfig     `toml:"server"`
	Logging         logging.Config   `toml:"logging"`
	Database        database.Config  `toml:"database"`
	Storage         storage.Config   `toml:"storage"`
	Metrics         telemetry.Config `toml:"metrics"`
	API             APIConfig        `toml:"api"`
	Ingest          IngestConfig     `toml:"ingest"`
	Classifier      ClassifierConfig `toml:"classifier"`
	ShutdownTimeout string           `toml:"shutdown_timeout"`
	Version         string           `toml:"version"`
}

// Env returns the IDMS_ENV value, defaulting to "local".
func (c *Config) Env() string {
	if env := os.Getenv(EnvIDMSEnv); env != "" {
		return env
	}
	return "local"
}

// ShutdownTimeoutDuration returns ShutdownTimeout as a time.Duration.
func (c *Config) ShutdownTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.ShutdownTimeout)
	return d
}

// Load reads the base config (if present), applies any environment overlay,
// and finalizes all values. If no config.toml exists, defaults and environment
// variables provide all configuration. IDMS_CONFIG replaces the base file path.
func Load() (*Config, error) {
	return LoadFile(baseConfigPath())
}

// LoadFile is Load with an explicit base config path. The overlay is
// resolved next to the base file.
func LoadFile(path string) (*Config, error) {
	cfg := &Config{}

	if _, err := os.Stat(path); err == nil {
		loaded, err := load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if overlay := overlayPath(path); overlay != "" {
		o, err := load(overlay)
		if err != nil {
			return nil, fmt.Errorf("load overlay %s: %w", overlay, err)
		}
		cfg.Merge(o)
	}

	if err := cfg.finalize(); err != nil {
		return nil, fmt.Errorf("finalize config: %w", err)
	}

	return cfg, nil
}

// Merge overwrites non-zero fields from overlay across all sub-configs.
func (c *Config) Merge(overlay *Config) {
	if overlay.ShutdownTimeout != "" {
		c.ShutdownTimeout = overlay.ShutdownTimeout
	}
	if overlay.Version != "" {
		c.Version = overlay.Version
	}
	c.Server.Merge(&overlay.Server)
	c.Logging.Merge(&overlay.Logging)
	c.Database.Merge(&overlay.Database)
	c.Storage.Merge(&overlay.Storage)
	c.Metrics.Merge(&overlay.Metrics)
	c.API.Merge(&overlay.API)
	c.Ingest.Merge(&overlay.Ingest)
	c.Classifier.Merge(&overlay.Classifier)
}

func (c *Config) finalize() error {
	c.loadDefaults()
	c.loadEnv()

	if err := c.validate(); err != nil {
		return err
	}
	if err := c.Server.Finalize(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.Logging.Finalize(loggingEnv); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if err := c.Database.Finalize(databaseEnv); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := c.Storage.Finalize(storageEnv); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if err := c.Metrics.Finalize(metricsEnv); err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	if err := c.API.Finalize(); err != nil {
		return fmt.Errorf("api: %w", err)
	}
	if err := c.Ingest.Finalize(); err != nil {
		return fmt.Errorf("ingest: %w", err)
	}
	if err := c.Classifier.Finalize(); err != nil {
		return fmt.Errorf("classifier: %w", err)
	}
	return nil
}

func (c *Config) loadDefaults() {
	if c.ShutdownTimeout == "" {
		c.ShutdownTimeout = "30s"
	}
	if c.Version == "" {
		c.Version = "0.1.0"
	}
}

func (c *Config) loadEnv() {
	if v := os.Getenv(EnvIDMSShutdownTimeout); v != "" {
		c.ShutdownTimeout = v
	}
	if v := os.Getenv(EnvIDMSVersion); v != "" {
		c.Version = v
	}
}

func (c *Config) validate() error {
	if _, err := time.ParseDuration(c.ShutdownTimeout); err != nil {
		return fmt.Errorf("invalid shutdown_timeout: %w", err)
	}
	return nil
}

func load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return &cfg, nil
}

func baseConfigPath() string {
	if v := os.Getenv(EnvIDMSConfig); v != "" {
		return v
	}
	return BaseConfigFile
}

func overlayPath(base string) string {
	env := os.Getenv(EnvIDMSEnv)
	if env == "" {
		return ""
	}

	path := filepath.Join(filepath.Dir(base), fmt.Sprintf(OverlayConfigPattern, env))
	if _, err := os.Stat(path); err == nil {
		return path
	}
	return ""
}
