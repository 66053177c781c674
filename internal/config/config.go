// Package config loads the gateway configuration from YAML with
// environment variable expansion and defaults.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gatewarden/gatewarden/internal/store"
)

// Config is the complete gateway configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Store    StoreConfig    `yaml:"store"`
	Policy   PolicyConfig   `yaml:"policy"`
	FailOpen FailOpenConfig `yaml:"fail_open"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// UpstreamConfig points at the single provider this gateway fronts.
type UpstreamConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// StoreConfig selects and configures the shared store backend.
type StoreConfig struct {
	// Backend is "redis" or "memory". Memory is single-instance only.
	Backend string            `yaml:"backend"`
	Redis   store.RedisConfig `yaml:"redis"`
}

// PolicyConfig locates governance policy files.
type PolicyConfig struct {
	// Dir holds policy YAML files. Empty means the built-in default
	// policy with no hot reload.
	Dir string `yaml:"dir"`
	// Watch enables reloading when files in Dir change.
	Watch bool `yaml:"watch"`
}

// FailOpenConfig controls behavior when the shared store is down. Each
// enforcement degrades independently.
type FailOpenConfig struct {
	RateLimits bool `yaml:"rate_limits"`
	DailyCap   bool `yaml:"daily_cap"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 120 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Upstream: UpstreamConfig{
			BaseURL: "https://api.openai.com",
			Timeout: 60 * time.Second,
		},
		Store: StoreConfig{
			Backend: "memory",
			Redis:   store.DefaultRedisConfig(),
		},
		Policy: PolicyConfig{
			Watch: true,
		},
		FailOpen: FailOpenConfig{
			RateLimits: true,
			DailyCap:   true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadFromFile reads and parses a YAML configuration file. Environment
// variables in the form ${VAR_NAME} are expanded before parsing.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Upstream.BaseURL == "" {
		return fmt.Errorf("upstream.base_url is required")
	}
	if c.Upstream.Timeout <= 0 {
		return fmt.Errorf("upstream.timeout must be positive")
	}

	switch c.Store.Backend {
	case "redis":
		if c.Store.Redis.Addr == "" && len(c.Store.Redis.ClusterAddrs) == 0 && len(c.Store.Redis.SentinelAddrs) == 0 {
			return fmt.Errorf("store.redis: an addr, cluster_addrs, or sentinel_addrs is required")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown logging level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "", "json", "text":
	default:
		return fmt.Errorf("unknown logging format %q", c.Logging.Format)
	}

	if c.Policy.Dir != "" {
		info, err := os.Stat(c.Policy.Dir)
		if err != nil {
			return fmt.Errorf("policy.dir: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("policy.dir %q is not a directory", c.Policy.Dir)
		}
	}
	return nil
}
