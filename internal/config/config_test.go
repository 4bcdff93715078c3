package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"STORAGE", "UOW_MAX_COMMIT_ATTEMPTS", "UOW_RETRY_INTERVAL_MS", "IDEMPOTENCY_TTL_MS", "PORT"} {
		t.Setenv(k, "")
	}
	cfg := Load()
	require.Equal(t, StoragePG, cfg.Storage)
	require.Equal(t, "8080", cfg.Port)
	require.Equal(t, 10, cfg.MaxCommitAttempts)
	require.Zero(t, cfg.RetryInterval)
	require.Equal(t, 24*time.Hour, cfg.RedisTTL)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STORAGE", "memory")
	t.Setenv("UOW_MAX_COMMIT_ATTEMPTS", "0")
	t.Setenv("UOW_RETRY_INTERVAL_MS", "25")
	cfg := Load()
	require.Equal(t, StorageMemory, cfg.Storage)
	require.Equal(t, 0, cfg.MaxCommitAttempts)
	require.Equal(t, 25*time.Millisecond, cfg.RetryInterval)
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"pg needs url", Config{Storage: StoragePG, IdempotencyBackend: "none"}, false},
		{"pg", Config{Storage: StoragePG, DatabaseURL: "postgres://x", IdempotencyBackend: "none"}, true},
		{"mysql needs dsn", Config{Storage: StorageMySQL, IdempotencyBackend: "none"}, false},
		{"unknown storage", Config{Storage: "mongo", IdempotencyBackend: "none"}, false},
		{"negative attempts", Config{Storage: StorageMemory, MaxCommitAttempts: -1, IdempotencyBackend: "none"}, false},
		{"unknown idempotency", Config{Storage: StorageMemory, IdempotencyBackend: "etcd"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.ok {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
			}
		})
	}
}
