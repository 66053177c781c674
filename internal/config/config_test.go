package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  read_timeout: 10s
upstream:
  base_url: https://llm.internal
  api_key: sk-test
  timeout: 30s
store:
  backend: redis
  redis:
    addr: redis.internal:6379
    namespace: gw
fail_open:
  rate_limits: false
  daily_cap: true
logging:
  level: debug
  format: text
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "https://llm.internal", cfg.Upstream.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Upstream.Timeout)
	assert.Equal(t, "redis", cfg.Store.Backend)
	assert.Equal(t, "redis.internal:6379", cfg.Store.Redis.Addr)
	assert.Equal(t, "gw", cfg.Store.Redis.Namespace)
	assert.False(t, cfg.FailOpen.RateLimits)
	assert.True(t, cfg.FailOpen.DailyCap)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadFromFile_DefaultsFillGaps(t *testing.T) {
	path := writeConfig(t, `
upstream:
  base_url: https://llm.internal
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, 60*time.Second, cfg.Upstream.Timeout)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadFromFile_ExpandsEnv(t *testing.T) {
	t.Setenv("TEST_UPSTREAM_KEY", "sk-from-env")
	path := writeConfig(t, `
upstream:
  base_url: https://llm.internal
  api_key: ${TEST_UPSTREAM_KEY}
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-from-env", cfg.Upstream.APIKey)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid defaults", func(*Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.Port = 99999 }, "invalid server port"},
		{"missing base url", func(c *Config) { c.Upstream.BaseURL = "" }, "base_url is required"},
		{"zero timeout", func(c *Config) { c.Upstream.Timeout = 0 }, "timeout must be positive"},
		{"unknown backend", func(c *Config) { c.Store.Backend = "dynamo" }, "unknown store backend"},
		{"redis without addr", func(c *Config) {
			c.Store.Backend = "redis"
			c.Store.Redis.Addr = ""
		}, "store.redis"},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "unknown logging level"},
		{"missing policy dir", func(c *Config) { c.Policy.Dir = "/does/not/exist" }, "policy.dir"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestLoadFromFile_MissingFile(t *testing.T) {
	_, err := LoadFromFile("/does/not/exist.yaml")
	assert.Error(t, err)
}
