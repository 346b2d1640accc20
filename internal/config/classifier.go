package config

import (
	"fmt"
	"maps"
	"net/url"
	"os"
	"strconv"
	"time"
)

const (
	EnvClassifierBaseURL            = "IDMS_CLASSIFIER_BASE_URL"
	EnvClassifierAPIKey             = "IDMS_CLASSIFIER_API_KEY"
	EnvClassifierModel              = "IDMS_CLASSIFIER_MODEL"
	EnvClassifierTimeout            = "IDMS_CLASSIFIER_TIMEOUT"
	EnvClassifierMaxAttempts        = "IDMS_CLASSIFIER_MAX_ATTEMPTS"
	EnvClassifierDefaultCriticality = "IDMS_CLASSIFIER_DEFAULT_CRITICALITY"
)

// ClassifierConfig holds the classification model endpoint settings.
type ClassifierConfig struct {
	BaseURL     string `toml:"base_url"`
	APIKey      string `toml:"api_key"`
	Model       string `toml:"model"`
	Prompt      string `toml:"prompt"`
	Timeout     string `toml:"timeout"`
	MaxAttempts int    `toml:"max_attempts"`
	RetryDelay  string `toml:"retry_delay"`

	// Criticality maps document types to the criticality level recorded for them.
	Criticality        map[string]string `toml:"criticality"`
	DefaultCriticality string            `toml:"default_criticality"`
}

// TimeoutDuration returns Timeout as a time.Duration.
func (c *ClassifierConfig) TimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	return d
}

// RetryDelayDuration returns RetryDelay as a time.Duration.
func (c *ClassifierConfig) RetryDelayDuration() time.Duration {
	d, _ := time.ParseDuration(c.RetryDelay)
	return d
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *ClassifierConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay. Criticality entries are
// merged key by key.
func (c *ClassifierConfig) Merge(overlay *ClassifierConfig) {
	if overlay.BaseURL != "" {
		c.BaseURL = overlay.BaseURL
	}
	if overlay.APIKey != "" {
		c.APIKey = overlay.APIKey
	}
	if overlay.Model != "" {
		c.Model = overlay.Model
	}
	if overlay.Prompt != "" {
		c.Prompt = overlay.Prompt
	}
	if overlay.Timeout != "" {
		c.Timeout = overlay.Timeout
	}
	if overlay.MaxAttempts != 0 {
		c.MaxAttempts = overlay.MaxAttempts
	}
	if overlay.RetryDelay != "" {
		c.RetryDelay = overlay.RetryDelay
	}
	if len(overlay.Criticality) > 0 {
		if c.Criticality == nil {
			c.Criticality = make(map[string]string, len(overlay.Criticality))
		}
		maps.Copy(c.Criticality, overlay.Criticality)
	}
	if overlay.DefaultCriticality != "" {
		c.DefaultCriticality = overlay.DefaultCriticality
	}
}

func (c *ClassifierConfig) loadDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.openai.com/v1"
	}
	if c.Model == "" {
		c.Model = "gpt-4o-mini"
	}
	if c.Timeout == "" {
		c.Timeout = "60s"
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 2
	}
	if c.RetryDelay == "" {
		c.RetryDelay = "2s"
	}
	if c.DefaultCriticality == "" {
		c.DefaultCriticality = "medium"
	}
}

func (c *ClassifierConfig) loadEnv() {
	if v := os.Getenv(EnvClassifierBaseURL); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv(EnvClassifierAPIKey); v != "" {
		c.APIKey = v
	}
	if v := os.Getenv(EnvClassifierModel); v != "" {
		c.Model = v
	}
	if v := os.Getenv(EnvClassifierTimeout); v != "" {
		c.Timeout = v
	}
	if v := os.Getenv(EnvClassifierMaxAttempts); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxAttempts = n
		}
	}
	if v := os.Getenv(EnvClassifierDefaultCriticality); v != "" {
		c.DefaultCriticality = v
	}
}

func (c *ClassifierConfig) validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid base_url: %q", c.BaseURL)
	}
	if _, err := time.ParseDuration(c.Timeout); err != nil {
		return fmt.Errorf("invalid timeout: %w", err)
	}
	if _, err := time.ParseDuration(c.RetryDelay); err != nil {
		return fmt.Errorf("invalid retry_delay: %w", err)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be positive, got %d", c.MaxAttempts)
	}
	return nil
}
