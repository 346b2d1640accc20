// Package pagination carries page requests and results between handlers and
// the query builder.
package pagination

import (
	"errors"
	"fmt"
	"os"
	"strconv"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Config bounds the page sizes a client may request.
type Config struct {
	DefaultPageSize int `toml:"default_page_size"`
	MaxPageSize     int `toml:"max_page_size"`
}

// ConfigEnv names the environment variables read by Finalize.
type ConfigEnv struct {
	DefaultPageSize string
	MaxPageSize     string
}

// Finalize fills defaults, applies env overrides, then validates.
// A malformed env value is an error rather than being ignored.
func (c *Config) Finalize(env *ConfigEnv) error {
	if c.DefaultPageSize == 0 {
		c.DefaultPageSize = DefaultPageSize
	}
	if c.MaxPageSize == 0 {
		c.MaxPageSize = MaxPageSize
	}

	if env != nil {
		if err := errors.Join(
			envInt(env.DefaultPageSize, &c.DefaultPageSize),
			envInt(env.MaxPageSize, &c.MaxPageSize),
		); err != nil {
			return err
		}
	}

	return c.validate()
}

// Merge copies the positive sizes from overlay.
func (c *Config) Merge(overlay *Config) {
	if overlay.DefaultPageSize > 0 {
		c.DefaultPageSize = overlay.DefaultPageSize
	}
	if overlay.MaxPageSize > 0 {
		c.MaxPageSize = overlay.MaxPageSize
	}
}

func (c *Config) validate() error {
	var errs []error
	if c.DefaultPageSize < 1 {
		errs = append(errs, fmt.Errorf("default_page_size must be positive, got %d", c.DefaultPageSize))
	}
	if c.MaxPageSize < 1 {
		errs = append(errs, fmt.Errorf("max_page_size must be positive, got %d", c.MaxPageSize))
	}
	if len(errs) == 0 && c.DefaultPageSize > c.MaxPageSize {
		errs = append(errs, fmt.Errorf(
			"default_page_size %d exceeds max_page_size %d",
			c.DefaultPageSize, c.MaxPageSize,
		))
	}
	return errors.Join(errs...)
}

func envInt(name string, dst *int) error {
	if name == "" {
		return nil
	}
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %q is not an integer", name, v)
	}
	*dst = n
	return nil
}
