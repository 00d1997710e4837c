// Package config loads and validates the tool configuration from a
// YAML file, with CIRCLECI_* environment variables overriding the
// credential fields.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

const (
	// DefaultServer is the CircleCI API server used when none is
	// configured.
	DefaultServer = "https://circleci.com"

	// DefaultLogLevel is the default logging level.
	DefaultLogLevel = "info"

	// DefaultMaxAttempts bounds the retry loop per API request.
	DefaultMaxAttempts = 5

	// DefaultInitialInterval is the first backoff delay.
	DefaultInitialInterval = "500ms"

	// DefaultMaxInterval caps the exponential backoff delay.
	DefaultMaxInterval = "30s"

	// DefaultRequestTimeout is the per-request HTTP timeout.
	DefaultRequestTimeout = "30s"

	// DefaultDetailConcurrency is the number of workflow-detail fetches
	// run in parallel during backfill.
	DefaultDetailConcurrency = 4
)

// Config is the root configuration.
type Config struct {
	Global   GlobalConfig   `yaml:"global" mapstructure:"global"`
	CircleCI CircleCIConfig `yaml:"circleci" mapstructure:"circleci"`
	Fetch    FetchConfig    `yaml:"fetch" mapstructure:"fetch"`
}

// GlobalConfig contains global application settings.
type GlobalConfig struct {
	LogLevel string `yaml:"log_level" mapstructure:"log_level"`
}

// CircleCIConfig contains API access settings. Token and ProjectSlug
// may come from the CIRCLECI_TOKEN / CIRCLECI_PROJECT_SLUG environment
// variables instead of the file.
type CircleCIConfig struct {
	Server            string           `yaml:"server" mapstructure:"server"`
	Token             string           `yaml:"token" mapstructure:"token"`
	ProjectSlug       string           `yaml:"project_slug" mapstructure:"project_slug"`
	RequestsPerSecond float64          `yaml:"requests_per_second,omitempty" mapstructure:"requests_per_second"`
	Retry             RetryConfig      `yaml:"retry,omitempty" mapstructure:"retry"`
	RequestLog        RequestLogConfig `yaml:"request_log,omitempty" mapstructure:"request_log"`
}

// RetryConfig configures the per-request retry policy. Each client
// carries its own policy so clients with different policies can
// coexist.
type RetryConfig struct {
	MaxAttempts     int    `yaml:"max_attempts,omitempty" mapstructure:"max_attempts"`
	InitialInterval string `yaml:"initial_interval,omitempty" mapstructure:"initial_interval"`
	MaxInterval     string `yaml:"max_interval,omitempty" mapstructure:"max_interval"`
	RequestTimeout  string `yaml:"request_timeout,omitempty" mapstructure:"request_timeout"`
}

// RequestLogConfig configures the optional request/response side log.
// Details selects the logged granularity: request, status_code,
// response_body.
type RequestLogConfig struct {
	Path    string   `yaml:"path,omitempty" mapstructure:"path"`
	Details []string `yaml:"details,omitempty" mapstructure:"details"`
}

// FetchConfig contains fetch-engine settings.
type FetchConfig struct {
	DetailConcurrency int `yaml:"detail_concurrency,omitempty" mapstructure:"detail_concurrency"`
}

// Load reads the configuration file at path (optional) and applies
// environment overrides and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if path != "" {
		v.SetConfigFile(path)

		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	envBindings := map[string]string{
		"circleci.server":       "CIRCLECI_SERVER",
		"circleci.token":        "CIRCLECI_TOKEN",
		"circleci.project_slug": "CIRCLECI_PROJECT_SLUG",
	}
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("binding %s: %w", env, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// applyDefaults sets default values for unspecified options.
func (c *Config) applyDefaults() {
	if c.Global.LogLevel == "" {
		c.Global.LogLevel = DefaultLogLevel
	}

	if c.CircleCI.Server == "" {
		c.CircleCI.Server = DefaultServer
	}

	if c.CircleCI.Retry.MaxAttempts == 0 {
		c.CircleCI.Retry.MaxAttempts = DefaultMaxAttempts
	}

	if c.CircleCI.Retry.InitialInterval == "" {
		c.CircleCI.Retry.InitialInterval = DefaultInitialInterval
	}

	if c.CircleCI.Retry.MaxInterval == "" {
		c.CircleCI.Retry.MaxInterval = DefaultMaxInterval
	}

	if c.CircleCI.Retry.RequestTimeout == "" {
		c.CircleCI.Retry.RequestTimeout = DefaultRequestTimeout
	}

	if c.Fetch.DetailConcurrency == 0 {
		c.Fetch.DetailConcurrency = DefaultDetailConcurrency
	}
}

// validRequestLogDetails is the set of accepted request-log detail
// selectors.
var validRequestLogDetails = map[string]struct{}{
	"request":       {},
	"status_code":   {},
	"response_body": {},
}

// Validate checks the configuration for errors. API access fields are
// required; commands that never touch the API (combine, filter) use
// ValidateLocal instead.
func (c *Config) Validate() error {
	if err := c.ValidateLocal(); err != nil {
		return err
	}

	if c.CircleCI.Token == "" {
		return fmt.Errorf("circleci.token is required (or set CIRCLECI_TOKEN)")
	}

	if c.CircleCI.ProjectSlug == "" {
		return fmt.Errorf("circleci.project_slug is required (or set CIRCLECI_PROJECT_SLUG)")
	}

	if c.CircleCI.Retry.MaxAttempts < 1 {
		return fmt.Errorf("circleci.retry.max_attempts must be at least 1")
	}

	for _, field := range []struct{ name, value string }{
		{"circleci.retry.initial_interval", c.CircleCI.Retry.InitialInterval},
		{"circleci.retry.max_interval", c.CircleCI.Retry.MaxInterval},
		{"circleci.retry.request_timeout", c.CircleCI.Retry.RequestTimeout},
	} {
		if _, err := time.ParseDuration(field.value); err != nil {
			return fmt.Errorf("%s: invalid duration %q", field.name, field.value)
		}
	}

	for _, d := range c.CircleCI.RequestLog.Details {
		if _, ok := validRequestLogDetails[d]; !ok {
			return fmt.Errorf("circleci.request_log.details: unknown detail %q", d)
		}
	}

	if c.CircleCI.RequestsPerSecond < 0 {
		return fmt.Errorf("circleci.requests_per_second must not be negative")
	}

	return nil
}

// ValidateLocal checks only the settings used by commands that operate
// on local files.
func (c *Config) ValidateLocal() error {
	if c.Fetch.DetailConcurrency < 1 {
		return fmt.Errorf("fetch.detail_concurrency must be at least 1")
	}

	return nil
}
