package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/ethpandaops/workflowoor/pkg/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, config.DefaultServer, cfg.CircleCI.Server)
	assert.Equal(t, config.DefaultLogLevel, cfg.Global.LogLevel)
	assert.Equal(t, config.DefaultMaxAttempts, cfg.CircleCI.Retry.MaxAttempts)
	assert.Equal(t, config.DefaultInitialInterval, cfg.CircleCI.Retry.InitialInterval)
	assert.Equal(t, config.DefaultMaxInterval, cfg.CircleCI.Retry.MaxInterval)
	assert.Equal(t, config.DefaultRequestTimeout, cfg.CircleCI.Retry.RequestTimeout)
	assert.Equal(t, config.DefaultDetailConcurrency, cfg.Fetch.DetailConcurrency)
}

func TestLoad_FromFile(t *testing.T) {
	path := writeConfig(t, `
global:
  log_level: debug
circleci:
  server: https://circleci.example.com
  token: file-token
  project_slug: gh/acme/widgets
  requests_per_second: 2.5
  retry:
    max_attempts: 7
    initial_interval: 250ms
  request_log:
    path: /tmp/requests.log
    details:
      - request
      - status_code
fetch:
  detail_concurrency: 8
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Global.LogLevel)
	assert.Equal(t, "https://circleci.example.com", cfg.CircleCI.Server)
	assert.Equal(t, "file-token", cfg.CircleCI.Token)
	assert.Equal(t, "gh/acme/widgets", cfg.CircleCI.ProjectSlug)
	assert.Equal(t, 2.5, cfg.CircleCI.RequestsPerSecond)
	assert.Equal(t, 7, cfg.CircleCI.Retry.MaxAttempts)
	assert.Equal(t, "250ms", cfg.CircleCI.Retry.InitialInterval)
	assert.Equal(t, config.DefaultMaxInterval, cfg.CircleCI.Retry.MaxInterval)
	assert.Equal(t, "/tmp/requests.log", cfg.CircleCI.RequestLog.Path)
	assert.Equal(t, []string{"request", "status_code"}, cfg.CircleCI.RequestLog.Details)
	assert.Equal(t, 8, cfg.Fetch.DetailConcurrency)

	require.NoError(t, cfg.Validate())
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, `
circleci:
  token: file-token
  project_slug: gh/acme/widgets
`)

	t.Setenv("CIRCLECI_TOKEN", "env-token")
	t.Setenv("CIRCLECI_SERVER", "https://ci.internal.example.com")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env-token", cfg.CircleCI.Token)
	assert.Equal(t, "https://ci.internal.example.com", cfg.CircleCI.Server)
	assert.Equal(t, "gh/acme/widgets", cfg.CircleCI.ProjectSlug)
}

func TestLoad_EnvironmentOnly(t *testing.T) {
	t.Setenv("CIRCLECI_TOKEN", "env-token")
	t.Setenv("CIRCLECI_PROJECT_SLUG", "gh/acme/widgets")

	cfg, err := config.Load("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "env-token", cfg.CircleCI.Token)
	assert.Equal(t, "gh/acme/widgets", cfg.CircleCI.ProjectSlug)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *config.Config {
		cfg, err := config.Load("")
		require.NoError(t, err)

		cfg.CircleCI.Token = "token"
		cfg.CircleCI.ProjectSlug = "gh/acme/widgets"

		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(c *config.Config) {},
		},
		{
			name:    "missing token",
			mutate:  func(c *config.Config) { c.CircleCI.Token = "" },
			wantErr: "circleci.token",
		},
		{
			name:    "missing project slug",
			mutate:  func(c *config.Config) { c.CircleCI.ProjectSlug = "" },
			wantErr: "circleci.project_slug",
		},
		{
			name:    "negative retry attempts",
			mutate:  func(c *config.Config) { c.CircleCI.Retry.MaxAttempts = -1 },
			wantErr: "max_attempts",
		},
		{
			name:    "bad interval",
			mutate:  func(c *config.Config) { c.CircleCI.Retry.InitialInterval = "soon" },
			wantErr: "initial_interval",
		},
		{
			name:    "bad request log detail",
			mutate:  func(c *config.Config) { c.CircleCI.RequestLog.Details = []string{"headers"} },
			wantErr: "unknown detail",
		},
		{
			name:    "negative rate",
			mutate:  func(c *config.Config) { c.CircleCI.RequestsPerSecond = -1 },
			wantErr: "requests_per_second",
		},
		{
			name:    "zero detail concurrency",
			mutate:  func(c *config.Config) { c.Fetch.DetailConcurrency = 0 },
			wantErr: "detail_concurrency",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)

				return
			}

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_YAMLRoundTrip(t *testing.T) {
	want := &config.Config{
		Global: config.GlobalConfig{LogLevel: "warn"},
		CircleCI: config.CircleCIConfig{
			Server:            "https://circleci.example.com",
			Token:             "token",
			ProjectSlug:       "gh/acme/widgets",
			RequestsPerSecond: 1.5,
			Retry: config.RetryConfig{
				MaxAttempts:     4,
				InitialInterval: "100ms",
				MaxInterval:     "10s",
				RequestTimeout:  "15s",
			},
			RequestLog: config.RequestLogConfig{
				Path:    "/tmp/requests.log",
				Details: []string{"request"},
			},
		},
		Fetch: config.FetchConfig{DetailConcurrency: 2},
	}

	encoded, err := yaml.Marshal(want)
	require.NoError(t, err)

	got, err := config.Load(writeConfig(t, string(encoded)))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestValidateLocal_SkipsAPICredentials(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	// No token, no slug. Local commands never touch the API.
	require.NoError(t, cfg.ValidateLocal())
}
