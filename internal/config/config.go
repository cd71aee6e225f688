// Package config provides the sdispatch server configuration loaded from
// environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Suhaibinator/SDispatch/pkg/pipeline"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap/zapcore"
)

// Prefix is prepended to every variable name, e.g. SDISPATCH_ADDR.
const Prefix = "SDISPATCH"

const logPrefix = "config:Load"

// Config holds sdispatch server configuration.
type Config struct {
	// Listener
	Addr            string        `envconfig:"ADDR" default:":8080"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`

	// Per request limits; zero disables them.
	Timeout     time.Duration `envconfig:"TIMEOUT" default:"5s"`
	MaxBodySize int64         `envconfig:"MAX_BODY_SIZE" default:"1048576"`

	// Manifest is a YAML, JSON or TOML file declaring routes and hooks. The
	// built-in demo routes are served when empty.
	Manifest string `envconfig:"MANIFEST"`

	// PostHooksOnError is "always" or "on-success".
	PostHooksOnError string `envconfig:"POST_HOOKS_ON_ERROR" default:"always"`

	// Rate limiting of the demo routes; RateLimit 0 disables it.
	RateLimit  int           `envconfig:"RATE_LIMIT" default:"100"`
	RateWindow time.Duration `envconfig:"RATE_WINDOW" default:"1m"`

	// Observability
	MetricsPath   string   `envconfig:"METRICS_PATH" default:"/metrics"`
	EnableMetrics bool     `envconfig:"ENABLE_METRICS" default:"true"`
	EnableTraceID bool     `envconfig:"ENABLE_TRACE_ID" default:"true"`
	CORSOrigins   []string `envconfig:"CORS_ORIGINS"`

	// Logging
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var c Config
	if err := envconfig.Process(Prefix, &c); err != nil {
		return nil, fmt.Errorf("%s - %w", logPrefix, err)
	}
	return &c, nil
}

// Validate checks the configuration before serving.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%s - %s_ADDR is required", logPrefix, Prefix)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("%s - %s_TIMEOUT must not be negative", logPrefix, Prefix)
	}
	if c.MaxBodySize < 0 {
		return fmt.Errorf("%s - %s_MAX_BODY_SIZE must not be negative", logPrefix, Prefix)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("%s - %s_SHUTDOWN_TIMEOUT must be positive", logPrefix, Prefix)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("%s - %s_RATE_LIMIT must not be negative", logPrefix, Prefix)
	}
	if c.RateLimit > 0 && c.RateWindow <= 0 {
		return fmt.Errorf("%s - %s_RATE_WINDOW must be positive when rate limiting", logPrefix, Prefix)
	}
	if c.EnableMetrics && !strings.HasPrefix(c.MetricsPath, "/") {
		return fmt.Errorf("%s - %s_METRICS_PATH must start with /", logPrefix, Prefix)
	}
	if _, err := c.PostHookPolicy(); err != nil {
		return fmt.Errorf("%s - %s_POST_HOOKS_ON_ERROR: %w", logPrefix, Prefix, err)
	}
	if _, err := c.Level(); err != nil {
		return fmt.Errorf("%s - %s_LOG_LEVEL: %w", logPrefix, Prefix, err)
	}
	return nil
}

// PostHookPolicy parses PostHooksOnError.
func (c *Config) PostHookPolicy() (pipeline.PostHookPolicy, error) {
	return pipeline.ParsePostHookPolicy(c.PostHooksOnError)
}

// Level parses LogLevel.
func (c *Config) Level() (zapcore.Level, error) {
	return zapcore.ParseLevel(c.LogLevel)
}
