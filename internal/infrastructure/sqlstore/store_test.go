package sqlstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"trackstore/internal/application"
	"trackstore/internal/domain"
	"trackstore/internal/infrastructure/relational"
	"trackstore/internal/model"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/require"
)

const (
	selectAccount = "SELECT id, owner, balance, frozen, version, updated_at FROM accounts WHERE id = ?"
	updateAccount = "UPDATE accounts SET owner = ?, balance = ?, frozen = ?, version = ?, updated_at = ? WHERE id = ? AND version = ?"
	insertAccount = "INSERT INTO accounts (id, owner, balance, frozen, version, updated_at) VALUES (?, ?, ?, ?, ?, ?)"
)

var accountCols = []string{"id", "owner", "balance", "frozen", "version", "updated_at"}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db, relational.MySQL, nil), mock
}

func TestDialectFor(t *testing.T) {
	d, err := DialectFor("mysql")
	require.NoError(t, err)
	require.Equal(t, relational.MySQL, d)
	d, err = DialectFor("postgres")
	require.NoError(t, err)
	require.Equal(t, relational.Postgres, d)
	_, err = DialectFor("sqlite")
	require.Error(t, err)
}

func TestOpen_RequiresDSN(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "mysql"}, nil)
	require.Error(t, err)
}

func TestNormalizeMySQLDSN(t *testing.T) {
	dsn, err := NormalizeMySQLDSN("app:secret@tcp(db:3306)/trackstore")
	require.NoError(t, err)
	cfg, err := mysql.ParseDSN(dsn)
	require.NoError(t, err)
	require.True(t, cfg.ParseTime)
	require.True(t, cfg.ClientFoundRows)
	require.Equal(t, "app", cfg.User)
	require.Equal(t, "db:3306", cfg.Addr)
	require.Equal(t, "trackstore", cfg.DBName)

	dsn, err = NormalizeMySQLDSN("app@tcp(db:3306)/trackstore?parseTime=false&loc=UTC")
	require.NoError(t, err)
	cfg, err = mysql.ParseDSN(dsn)
	require.NoError(t, err)
	require.True(t, cfg.ParseTime)
	require.Equal(t, time.UTC, cfg.Loc)

	_, err = NormalizeMySQLDSN("app@tcp(db:3306)trackstore")
	require.Error(t, err)

	_, err = Open(context.Background(), Config{Driver: "mysql", DSN: "app@tcp(db:3306)trackstore"}, nil)
	require.ErrorContains(t, err, "parse mysql dsn")
}

func TestFlush_CommitsInOneTransaction(t *testing.T) {
	st, mock := newMockStore(t)
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(insertAccount).
		WithArgs("a", "ann", int64(10), false, int64(1), now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(updateAccount).
		WithArgs("bob", int64(5), false, int64(4), now, "b", int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	s, err := st.NewSession(ctx)
	require.NoError(t, err)
	defer s.Close()

	added := &domain.Account{ID: "a", Owner: "ann", Balance: 10, Version: 1, UpdatedAt: now}
	changed := &domain.Account{ID: "b", Owner: "bob", Balance: 5, Version: 3, UpdatedAt: now}
	_, err = s.Tracker().Track(added, model.AccountMapping{}, domain.StateAdded)
	require.NoError(t, err)
	_, err = s.Tracker().Track(changed, model.AccountMapping{}, domain.StateModified)
	require.NoError(t, err)

	require.NoError(t, s.Flush(ctx))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFlush_ConflictRollsBack(t *testing.T) {
	st, mock := newMockStore(t)
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(updateAccount).
		WithArgs("bob", int64(5), false, int64(4), now, "b", int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	s, err := st.NewSession(ctx)
	require.NoError(t, err)
	defer s.Close()

	changed := &domain.Account{ID: "b", Owner: "bob", Balance: 5, Version: 3, UpdatedAt: now}
	_, err = s.Tracker().Track(changed, model.AccountMapping{}, domain.StateModified)
	require.NoError(t, err)

	err = s.Flush(ctx)
	var conflict *application.ConcurrencyConflictError
	require.ErrorAs(t, err, &conflict)
	require.Len(t, conflict.Entries, 1)
	require.Equal(t, "b", conflict.Entries[0].Key())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFlush_ErrorRollsBack(t *testing.T) {
	st, mock := newMockStore(t)
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	boom := errors.New("duplicate entry")

	mock.ExpectBegin()
	mock.ExpectExec(insertAccount).
		WithArgs("a", "ann", int64(10), false, int64(1), now).
		WillReturnError(boom)
	mock.ExpectRollback()

	s, err := st.NewSession(ctx)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Tracker().Track(&domain.Account{ID: "a", Owner: "ann", Balance: 10, Version: 1, UpdatedAt: now}, model.AccountMapping{}, domain.StateAdded)
	require.NoError(t, err)

	err = s.Flush(ctx)
	require.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFind(t *testing.T) {
	st, mock := newMockStore(t)
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(selectAccount).WithArgs("a").
		WillReturnRows(sqlmock.NewRows(accountCols).AddRow("a", "ann", int64(10), false, int64(2), now))
	mock.ExpectQuery(selectAccount).WithArgs("zz").
		WillReturnRows(sqlmock.NewRows(accountCols))

	s, err := st.NewSession(ctx)
	require.NoError(t, err)
	defer s.Close()

	e, err := s.Find(ctx, model.AccountMapping{}, "a")
	require.NoError(t, err)
	require.Equal(t, &domain.Account{ID: "a", Owner: "ann", Balance: 10, Version: 2, UpdatedAt: now}, e)

	_, err = s.Find(ctx, model.AccountMapping{}, "zz")
	require.ErrorIs(t, err, application.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteRaw_ReturnsRowsAffected(t *testing.T) {
	st, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectExec("UPDATE t SET x=? WHERE id=?").
		WithArgs(int64(5), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	u := application.NewUnitOfWork(st, model.New())
	defer u.Dispose()
	_, err := application.Open[*domain.Account](ctx, u, domain.TargetDefault)
	require.NoError(t, err)

	n, err := u.ExecuteRaw(ctx, "UPDATE t SET x=? WHERE id=?", domain.TargetDefault, int64(5), int64(1))
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitWithConflictRetry_RebaselinesFromDatabase(t *testing.T) {
	st, mock := newMockStore(t)
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(selectAccount).WithArgs("a").
		WillReturnRows(sqlmock.NewRows(accountCols).AddRow("a", "ann", int64(10), false, int64(1), now))
	// another writer bumped the row to version 2
	mock.ExpectBegin()
	mock.ExpectExec(updateAccount).
		WithArgs("anna", int64(10), false, int64(2), now, "a", int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()
	mock.ExpectQuery(selectAccount).WithArgs("a").
		WillReturnRows(sqlmock.NewRows(accountCols).AddRow("a", "other", int64(7), false, int64(2), now))
	mock.ExpectBegin()
	mock.ExpectExec(updateAccount).
		WithArgs("anna", int64(10), false, int64(3), now, "a", int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	u := application.NewUnitOfWork(st, model.New())
	defer u.Dispose()
	accounts, err := application.Open[*domain.Account](ctx, u, domain.TargetDefault)
	require.NoError(t, err)

	a, err := accounts.Find(ctx, "a")
	require.NoError(t, err)
	a.Owner = "anna"
	require.NoError(t, u.MarkModified(a))

	require.NoError(t, u.CommitWithConflictRetry(ctx))
	require.Equal(t, int64(3), a.Version)
	require.Equal(t, int64(10), a.Balance)
	require.NoError(t, mock.ExpectationsWereMet())
}
