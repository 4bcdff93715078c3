package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"trackstore/internal/application"
	"trackstore/internal/config"
	infraconfig "trackstore/internal/infrastructure/config"
	"trackstore/internal/infrastructure/logx"
	"trackstore/internal/infrastructure/memstore"
	"trackstore/internal/infrastructure/metrics"
	"trackstore/internal/infrastructure/pg"
	redisstore "trackstore/internal/infrastructure/redis"
	"trackstore/internal/infrastructure/sqlstore"
	"trackstore/internal/model"

	"go.uber.org/zap"
)

var ErrMissingDBURL = errors.New("database url is required")

// Storage is a session factory plus its readiness probe and cleanup.
type Storage struct {
	Sessions application.SessionFactory
	Ping     func(ctx context.Context) error
	Close    func()
}

func ProvideLogger() *zap.Logger { return logx.L() }

func ProvideConfig() config.Config { return config.Load() }

// ProvideStorage opens the backend selected by STORAGE and applies its schema.
func ProvideStorage(ctx context.Context, log *zap.Logger, cfg config.Config) (Storage, error) {
	switch cfg.Storage {
	case config.StoragePG:
		if cfg.DatabaseURL == "" {
			return Storage{}, ErrMissingDBURL
		}
		db, err := pg.Connect(ctx, cfg.DatabaseURL, log)
		if err != nil {
			return Storage{}, err
		}
		if err := pg.RunMigrations(ctx, db); err != nil {
			db.Close()
			return Storage{}, err
		}
		cleanup := func() {
			log.Info("closing pg")
			db.Close()
		}
		return Storage{Sessions: db, Ping: db.Ping, Close: cleanup}, nil
	case config.StoragePostgresSQL, config.StorageMySQL:
		return provideSQLStorage(ctx, log, cfg)
	case config.StorageMemory:
		log.Warn("using in-memory storage; data is lost on restart")
		return Storage{Sessions: memstore.New(log), Close: func() {}}, nil
	default:
		return Storage{}, fmt.Errorf("unknown STORAGE %q", cfg.Storage)
	}
}

func provideSQLStorage(ctx context.Context, log *zap.Logger, cfg config.Config) (Storage, error) {
	sc := sqlstore.Config{
		Driver:          "postgres",
		DSN:             cfg.DatabaseURL,
		MaxOpenConns:    infraconfig.DefaultSQLMaxOpenConns,
		MaxIdleConns:    infraconfig.DefaultSQLMaxIdleConns,
		ConnMaxLifetime: infraconfig.DefaultSQLConnLifetime,
	}
	if cfg.Storage == config.StorageMySQL {
		sc.Driver, sc.DSN = "mysql", cfg.MySQLDSN
	}
	if sc.DSN == "" {
		return Storage{}, ErrMissingDBURL
	}
	if sc.Driver == "postgres" {
		if err := pg.MigrateURL(ctx, sc.DSN); err != nil {
			return Storage{}, err
		}
	}
	st, err := sqlstore.Open(ctx, sc, log)
	if err != nil {
		return Storage{}, err
	}
	if sc.Driver == "mysql" {
		if err := sqlstore.MigrateMySQL(st.DB()); err != nil {
			_ = st.Close()
			return Storage{}, err
		}
	}
	cleanup := func() {
		log.Info("closing sql", zap.String("driver", sc.Driver))
		_ = st.Close()
	}
	return Storage{Sessions: st, Ping: st.Ping, Close: cleanup}, nil
}

// ProvideIdempotency returns the Redis store, or a no-op when IDEMPOTENCY_BACKEND=none.
func ProvideIdempotency(ctx context.Context, log *zap.Logger, cfg config.Config) (application.IdempotencyStore, func(), error) {
	if cfg.IdempotencyBackend != "redis" {
		return application.NoopIdempotency{}, func() {}, nil
	}
	client, err := redisstore.Dial(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, func() {}, fmt.Errorf("redis: %w", err)
	}
	cleanup := func() {
		log.Info("closing redis")
		_ = client.Close()
	}
	return redisstore.New(client, cfg.RedisTTL), cleanup, nil
}

func ProvideUnitOfWorkFactory(sessions application.SessionFactory, reg *metrics.Registry, log *zap.Logger, cfg config.Config) application.UnitOfWorkFactory {
	return application.NewUnitOfWorkFactory(sessions, model.New(),
		application.WithLogger(log),
		application.WithObserver(reg),
		application.WithMaxCommitAttempts(cfg.MaxCommitAttempts),
		application.WithRetryInterval(cfg.RetryInterval),
	)
}

func ProvideAccountService(newUoW application.UnitOfWorkFactory, idem application.IdempotencyStore, log *zap.Logger) *application.AccountService {
	return application.NewAccountService(newUoW, idem, application.WithServiceLogger(log))
}
