// Package config loads the unenroll tool's settings from environment
// variables with defaults, and validates them before a run starts.
package config

import "time"

// Config holds all tool configuration.
// All settings can be configured via environment variables.
type Config struct {
	Database DatabaseConfig
	Logging  LoggingConfig
	Run      RunConfig
}

// DatabaseConfig holds store connection settings.
type DatabaseConfig struct {
	// Driver selects the store backend: postgres or sqlite (default: postgres)
	Driver string `env:"DB_DRIVER" default:"postgres"`

	// URL is the PostgreSQL connection string, or the SQLite file path (required)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	// MaxConns is the maximum number of pooled connections (default: 4)
	MaxConns int `env:"DB_MAX_CONNS" default:"4"`

	// MinConns is the minimum number of connections to keep open (default: 1)
	MinConns int `env:"DB_MIN_CONNS" default:"1"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// Migrate creates missing tables on startup (default: false)
	Migrate bool `env:"DB_MIGRATE" default:"false"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// RunConfig holds batch processing settings.
type RunConfig struct {
	// MutationTimeout bounds a single unenroll call; 0 disables it (default: 0s)
	MutationTimeout time.Duration `env:"UNENROLL_MUTATION_TIMEOUT" default:"0s"`

	// MaxFileSize is the maximum accepted input size in bytes (default: 100MB)
	MaxFileSize int64 `env:"UNENROLL_MAX_FILE_SIZE" default:"104857600"`

	// ReportPath is where the per-row outcome CSV is written, if set
	ReportPath string `env:"UNENROLL_REPORT_PATH"`
}
