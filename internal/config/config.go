package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	infraconfig "trackstore/internal/infrastructure/config"
)

const (
	StoragePG          = "pg"
	StoragePostgresSQL = "postgres-sql"
	StorageMySQL       = "mysql"
	StorageMemory      = "memory"
)

type Config struct {
	// Common
	Env      string
	LogLevel string
	// API
	Port string
	// Storage
	Storage     string
	DatabaseURL string
	MySQLDSN    string
	// Unit of work
	MaxCommitAttempts int
	RetryInterval     time.Duration
	// Redis (idempotency)
	IdempotencyBackend string
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	RedisTTL           time.Duration
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func atoiDef(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

// Load reads environment variables and applies defaults.
func Load() Config {
	return Config{
		Env:                getEnv("ENV", "local"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		Port:               getEnv("PORT", infraconfig.DefaultHTTPPort),
		Storage:            getEnv("STORAGE", StoragePG),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		MySQLDSN:           getEnv("MYSQL_DSN", ""),
		MaxCommitAttempts:  atoiDef(getEnv("UOW_MAX_COMMIT_ATTEMPTS", ""), infraconfig.DefaultMaxCommitAttempts),
		RetryInterval:      time.Duration(atoiDef(getEnv("UOW_RETRY_INTERVAL_MS", "0"), 0)) * time.Millisecond,
		IdempotencyBackend: getEnv("IDEMPOTENCY_BACKEND", "redis"),
		RedisAddr:          getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		RedisDB:            atoiDef(getEnv("REDIS_DB", "0"), 0),
		RedisTTL:           time.Duration(atoiDef(getEnv("IDEMPOTENCY_TTL_MS", ""), int(infraconfig.DefaultIdempotencyTTL/time.Millisecond))) * time.Millisecond,
	}
}

// Validate reports settings that cannot work together.
func (c Config) Validate() error {
	switch c.Storage {
	case StoragePG, StoragePostgresSQL:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for STORAGE=%s", c.Storage)
		}
	case StorageMySQL:
		if c.MySQLDSN == "" {
			return fmt.Errorf("MYSQL_DSN is required for STORAGE=%s", c.Storage)
		}
	case StorageMemory:
	default:
		return fmt.Errorf("unknown STORAGE %q", c.Storage)
	}
	if c.MaxCommitAttempts < 0 {
		return fmt.Errorf("UOW_MAX_COMMIT_ATTEMPTS must be >= 0, got %d", c.MaxCommitAttempts)
	}
	switch c.IdempotencyBackend {
	case "redis", "none":
	default:
		return fmt.Errorf("unknown IDEMPOTENCY_BACKEND %q", c.IdempotencyBackend)
	}
	return nil
}
