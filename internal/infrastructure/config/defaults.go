package config

import "time"

const (
	DefaultHTTPPort          = "8080"
	DefaultShutdownTimeout   = 10 * time.Second
	DefaultPGMaxConns        = 5
	DefaultPGMinConns        = 1
	DefaultSQLMaxOpenConns   = 10
	DefaultSQLMaxIdleConns   = 5
	DefaultSQLConnLifetime   = 5 * time.Minute
	DefaultMaxCommitAttempts = 10
	DefaultIdempotencyTTL    = 24 * time.Hour
)
