package telemetry

import (
	"fmt"
	"os"
	"strings"
)

// Supported metric exporters.
const (
	ExporterPrometheus = "prometheus"
	ExporterNone       = "none"
)

// Config selects the metric exporter and where the scrape endpoint is served.
type Config struct {
	Exporter    string `toml:"exporter"`
	Path        string `toml:"path"`
	ServiceName string `toml:"service_name"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	Exporter string
	Path     string
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *Config) Finalize(env *Env) error {
	c.loadDefaults()
	if env != nil {
		c.loadEnv(env)
	}
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *Config) Merge(overlay *Config) {
	if overlay.Exporter != "" {
		c.Exporter = overlay.Exporter
	}
	if overlay.Path != "" {
		c.Path = overlay.Path
	}
	if overlay.ServiceName != "" {
		c.ServiceName = overlay.ServiceName
	}
}

func (c *Config) loadDefaults() {
	if c.Exporter == "" {
		c.Exporter = ExporterPrometheus
	}
	if c.Path == "" {
		c.Path = "/metrics"
	}
	if c.ServiceName == "" {
		c.ServiceName = "idms"
	}
}

func (c *Config) loadEnv(env *Env) {
	if env.Exporter != "" {
		if v := os.Getenv(env.Exporter); v != "" {
			c.Exporter = v
		}
	}
	if env.Path != "" {
		if v := os.Getenv(env.Path); v != "" {
			c.Path = v
		}
	}
}

func (c *Config) validate() error {
	c.Exporter = strings.ToLower(c.Exporter)

	switch c.Exporter {
	case ExporterPrometheus, ExporterNone:
	default:
		return fmt.Errorf("invalid exporter %q: want %s or %s", c.Exporter, ExporterPrometheus, ExporterNone)
	}
	if !strings.HasPrefix(c.Path, "/") || strings.Count(c.Path, "/") != 1 {
		return fmt.Errorf("path must be a single-level absolute path, got %q", c.Path)
	}
	return nil
}
