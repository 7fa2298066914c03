// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Upload    UploadConfig
	Paths     PathsConfig
	Guess     GuessConfig
	Rate      RateLimitConfig
	Security  SecurityConfig
	Logging   LoggingConfig
	Retention RetentionConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8787)
	Port int `env:"SERVER_PORT" default:"8787"`

	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout covers report rendering for large runs (default: 5m)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"5m"`

	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for non-run requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds the run index connection settings.
type DatabaseConfig struct {
	// URL selects the run index backend: postgres:// or postgresql:// for
	// PostgreSQL, sqlite:<path> for an embedded SQLite file.
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" default:"sqlite:runs/index.db"`

	MaxConns int `env:"DB_MAX_CONNS" default:"10"`
	MinConns int `env:"DB_MIN_CONNS" default:"1"`

	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// UploadConfig holds CSV upload and run execution settings.
type UploadConfig struct {
	// MaxFileSize is the maximum allowed upload size, e.g. 26214400 or 25MB.
	MaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" default:"25MB" unit:"bytes"`

	// MaxConcurrent is the maximum number of validation runs in flight (default: 5)
	MaxConcurrent int `env:"UPLOAD_MAX_CONCURRENT" default:"5"`

	// MaxWaitTime is how long a run waits for a free slot (default: 30s)
	MaxWaitTime time.Duration `env:"UPLOAD_MAX_WAIT_TIME" default:"30s"`

	// Timeout bounds a single validation run (default: 10m)
	Timeout time.Duration `env:"UPLOAD_TIMEOUT" default:"10m"`
}

// PathsConfig holds the on-disk locations for rule files, mappings and runs.
type PathsConfig struct {
	RulesDir    string `env:"RULES_DIR" default:"rules"`
	MappingsDir string `env:"MAPPINGS_DIR" default:"mappings"`
	RunsDir     string `env:"RUNS_DIR" default:"runs"`
}

// GuessConfig holds mapping guesser settings.
type GuessConfig struct {
	// SampleLimit is how many rows per column feed the guessers (default: 2000)
	SampleLimit int `env:"GUESS_SAMPLE_LIMIT" default:"2000"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// RunLimit is requests per minute for run and upload endpoints (default: 10)
	RunLimit int `env:"RATE_LIMIT_RUNS" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`

	// RequireAPIKey protects the /api routes with X-API-Key
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	APIKeys []string `env:"API_KEYS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// RetentionConfig controls pruning of old run directories.
type RetentionConfig struct {
	// Days is how long run directories are kept; 0 disables pruning (default: 90)
	Days int `env:"RUN_RETENTION_DAYS" default:"90"`

	// CheckInterval is how often the retention job runs (default: 24h)
	CheckInterval time.Duration `env:"RUN_RETENTION_CHECK_INTERVAL" default:"24h"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// Cutoff returns the oldest run time kept at now, and false when
// retention is disabled.
func (c *RetentionConfig) Cutoff(now time.Time) (time.Time, bool) {
	if c.Days <= 0 {
		return time.Time{}, false
	}
	return now.AddDate(0, 0, -c.Days), true
}
