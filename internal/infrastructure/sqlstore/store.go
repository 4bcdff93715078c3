// Package sqlstore runs sessions over database/sql, for MySQL (go-sql-driver)
// and PostgreSQL (lib/pq). Every session owns one pooled connection.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"trackstore/internal/application"
	"trackstore/internal/domain"
	"trackstore/internal/infrastructure/relational"
	"trackstore/internal/tracking"

	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

type Config struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type Store struct {
	db      *sql.DB
	dialect relational.Dialect
	log     *zap.Logger
}

// DialectFor maps a database/sql driver name to its SQL dialect.
func DialectFor(driver string) (relational.Dialect, error) {
	switch driver {
	case "mysql":
		return relational.MySQL, nil
	case "postgres", "pgx":
		return relational.Postgres, nil
	default:
		return 0, fmt.Errorf("unsupported driver %q", driver)
	}
}

// Open connects and verifies the connection. MySQL DSNs are normalized with
// NormalizeMySQLDSN first.
func Open(ctx context.Context, cfg Config, log *zap.Logger) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN is required")
	}
	dialect, err := DialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}
	dsn := cfg.DSN
	if dialect == relational.MySQL {
		if dsn, err = NormalizeMySQLDSN(dsn); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return New(db, dialect, log), nil
}

// NormalizeMySQLDSN turns on parseTime, so DATETIME columns scan into
// time.Time, and clientFoundRows, so an UPDATE that matches a row without
// changing it still reports one affected row.
func NormalizeMySQLDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.ClientFoundRows = true
	return cfg.FormatDSN(), nil
}

func New(db *sql.DB, dialect relational.Dialect, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{db: db, dialect: dialect, log: log.With(zap.String("store", "sql"), zap.Stringer("dialect", dialect))}
}

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) NewSession(ctx context.Context) (application.Session, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	return &Session{conn: conn, dialect: s.dialect, tracker: tracking.NewTracker(), log: s.log}, nil
}

type Session struct {
	conn    *sql.Conn
	dialect relational.Dialect
	tracker *tracking.Tracker
	log     *zap.Logger
	closed  bool
}

var _ application.Session = (*Session)(nil)

func (s *Session) Tracker() *tracking.Tracker { return s.tracker }

func (s *Session) Find(ctx context.Context, m tracking.Mapping, key any) (domain.Entity, error) {
	e, err := relational.Find(ctx, sqlDB{s.conn}, s.dialect, m, key)
	if errors.Is(err, relational.ErrNoRows) {
		return nil, application.ErrNotFound
	}
	return e, err
}

func (s *Session) Flush(ctx context.Context) error {
	pending := s.tracker.Pending()
	log := s.log.With(zap.String("operation", "Flush"), zap.Int("entries", len(pending)))
	log.Debug("sql.flush_start")

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		log.Error("sql.begin_failed", zap.Error(err))
		return fmt.Errorf("begin: %w", err)
	}
	conflicts, err := relational.Apply(ctx, sqlDB{tx}, s.dialect, pending)
	if err != nil {
		_ = tx.Rollback()
		log.Error("sql.flush_failed", zap.Error(err))
		return err
	}
	if len(conflicts) > 0 {
		_ = tx.Rollback()
		log.Info("sql.flush_conflict", zap.Int("conflicts", len(conflicts)))
		return &application.ConcurrencyConflictError{Entries: conflicts}
	}
	if err := tx.Commit(); err != nil {
		log.Error("sql.commit_failed", zap.Error(err))
		return fmt.Errorf("commit: %w", err)
	}
	log.Debug("sql.flush_success")
	return nil
}

func (s *Session) DatabaseValues(ctx context.Context, e *tracking.Entry) (tracking.Snapshot, error) {
	values, err := relational.DatabaseValues(ctx, sqlDB{s.conn}, s.dialect, e)
	if errors.Is(err, relational.ErrNoRows) {
		return nil, application.ErrNotFound
	}
	return values, err
}

func (s *Session) Exec(ctx context.Context, statement string, args ...any) (int64, error) {
	log := s.log.With(zap.String("operation", "Exec"), zap.String("sql", statement))
	n, err := sqlDB{s.conn}.Exec(ctx, statement, args...)
	if err != nil {
		log.Error("sql.exec_failed", zap.Error(err))
		return 0, err
	}
	log.Info("sql.exec_success", zap.Int64("rows_affected", n))
	return n, nil
}

// Close returns the session's connection to the pool.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.conn.Close()
}

type execQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// sqlDB adapts *sql.Conn and *sql.Tx to relational.DB.
type sqlDB struct{ q execQuerier }

func (d sqlDB) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := d.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (d sqlDB) QueryRow(ctx context.Context, query string, args ...any) relational.Row {
	return sqlRow{d.q.QueryRowContext(ctx, query, args...)}
}

type sqlRow struct{ row *sql.Row }

func (r sqlRow) Scan(dest ...any) error {
	err := r.row.Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return relational.ErrNoRows
	}
	return err
}
