package pg

import (
	"context"
	"errors"
	"fmt"

	"trackstore/internal/application"
	"trackstore/internal/domain"
	"trackstore/internal/infrastructure/relational"
	"trackstore/internal/tracking"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

var ErrSessionClosed = errors.New("pg: session closed")

// NewSession acquires a pooled connection that the session holds until Close.
func (d *DB) NewSession(ctx context.Context) (application.Session, error) {
	conn, err := d.Pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	return &Session{conn: conn, tracker: tracking.NewTracker(), log: d.log}, nil
}

type Session struct {
	conn    *pgxpool.Conn
	tracker *tracking.Tracker
	log     *zap.Logger
}

var _ application.Session = (*Session)(nil)

func (s *Session) Tracker() *tracking.Tracker { return s.tracker }

func (s *Session) Find(ctx context.Context, m tracking.Mapping, key any) (domain.Entity, error) {
	if s.conn == nil {
		return nil, ErrSessionClosed
	}
	e, err := relational.Find(ctx, pgxDB{s.conn}, relational.Postgres, m, key)
	if errors.Is(err, relational.ErrNoRows) {
		return nil, application.ErrNotFound
	}
	return e, err
}

func (s *Session) Flush(ctx context.Context) error {
	if s.conn == nil {
		return ErrSessionClosed
	}
	pending := s.tracker.Pending()
	log := s.log.With(zap.String("operation", "Flush"), zap.Int("entries", len(pending)))

	tx, err := s.conn.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		log.Error("pg.begin_failed", zap.Error(err))
		return fmt.Errorf("begin: %w", err)
	}
	conflicts, err := relational.Apply(ctx, pgxDB{tx}, relational.Postgres, pending)
	if err != nil {
		_ = tx.Rollback(ctx)
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			log.Error("pg.flush_failed", zap.String("code", pgErr.Code), zap.String("constraint", pgErr.ConstraintName), zap.Error(err))
		} else {
			log.Error("pg.flush_failed", zap.Error(err))
		}
		return err
	}
	if len(conflicts) > 0 {
		_ = tx.Rollback(ctx)
		log.Info("pg.flush_conflict", zap.Int("conflicts", len(conflicts)))
		return &application.ConcurrencyConflictError{Entries: conflicts}
	}
	if err := tx.Commit(ctx); err != nil {
		log.Error("pg.commit_failed", zap.Error(err))
		return fmt.Errorf("commit: %w", err)
	}
	log.Debug("pg.flush_success")
	return nil
}

func (s *Session) DatabaseValues(ctx context.Context, e *tracking.Entry) (tracking.Snapshot, error) {
	if s.conn == nil {
		return nil, ErrSessionClosed
	}
	values, err := relational.DatabaseValues(ctx, pgxDB{s.conn}, relational.Postgres, e)
	if errors.Is(err, relational.ErrNoRows) {
		return nil, application.ErrNotFound
	}
	return values, err
}

func (s *Session) Exec(ctx context.Context, statement string, args ...any) (int64, error) {
	if s.conn == nil {
		return 0, ErrSessionClosed
	}
	n, err := pgxDB{s.conn}.Exec(ctx, statement, args...)
	if err != nil {
		s.log.Error("pg.exec_failed", zap.String("sql", statement), zap.Error(err))
		return 0, err
	}
	s.log.Info("pg.exec_success", zap.String("sql", statement), zap.Int64("rows_affected", n))
	return n, nil
}

// Close releases the connection back to the pool. It is safe to call twice;
// later calls on the session return ErrSessionClosed.
func (s *Session) Close() error {
	if s.conn != nil {
		s.conn.Release()
		s.conn = nil
	}
	return nil
}

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// pgxDB adapts a pooled connection or a transaction to relational.DB.
type pgxDB struct{ q pgxQuerier }

func (d pgxDB) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := d.q.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (d pgxDB) QueryRow(ctx context.Context, query string, args ...any) relational.Row {
	return pgxRow{d.q.QueryRow(ctx, query, args...)}
}

type pgxRow struct{ row pgx.Row }

func (r pgxRow) Scan(dest ...any) error {
	err := r.row.Scan(dest...)
	if errors.Is(err, pgx.ErrNoRows) {
		return relational.ErrNoRows
	}
	return err
}
