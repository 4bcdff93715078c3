package memstore_test

import (
	"context"
	"testing"

	"trackstore/internal/application"
	"trackstore/internal/domain"
	"trackstore/internal/infrastructure/memstore"
	"trackstore/internal/model"

	"github.com/stretchr/testify/require"
)

func seed(store *memstore.Store, accts ...*domain.Account) {
	for _, a := range accts {
		store.Put(model.AccountMapping{}, a)
	}
}

func newUoW(store *memstore.Store, opts ...application.Option) *application.TransactionalUnitOfWork {
	return application.NewUnitOfWork(store, model.New(), opts...)
}

func TestScenario_TwoAccountsCommitOnce(t *testing.T) {
	ctx := context.Background()
	store := memstore.New(nil)
	seed(store,
		&domain.Account{ID: "a", Owner: "ann", Balance: 10, Version: 1},
		&domain.Account{ID: "b", Owner: "bob", Balance: 20, Version: 1},
		&domain.Account{ID: "c", Owner: "cid", Balance: 30, Version: 1},
	)

	u := newUoW(store)
	defer u.Dispose()
	accounts, err := application.Open[*domain.Account](ctx, u, domain.TargetDefault)
	require.NoError(t, err)

	a, err := accounts.Find(ctx, "a")
	require.NoError(t, err)
	b, err := accounts.Find(ctx, "b")
	require.NoError(t, err)
	a.Owner, b.Owner = "ann2", "bob2"
	require.NoError(t, u.MarkModified(a))
	require.NoError(t, u.MarkModified(b))
	require.NoError(t, u.CommitOnce(ctx))

	reader := newUoW(store)
	defer reader.Dispose()
	readAccounts, err := application.Open[*domain.Account](ctx, reader, domain.TargetDefault)
	require.NoError(t, err)
	for id, owner := range map[string]string{"a": "ann2", "b": "bob2", "c": "cid"} {
		got, err := readAccounts.Find(ctx, id)
		require.NoError(t, err)
		require.Equal(t, owner, got.Owner)
	}
	row, ok := store.Row("accounts", "c")
	require.True(t, ok)
	require.Equal(t, int64(1), row["version"])
	row, ok = store.Row("accounts", "a")
	require.True(t, ok)
	require.Equal(t, int64(2), row["version"])
}

func TestConflict_NothingPersisted(t *testing.T) {
	ctx := context.Background()
	store := memstore.New(nil)
	seed(store,
		&domain.Account{ID: "a", Owner: "ann", Version: 1},
		&domain.Account{ID: "b", Owner: "bob", Version: 1},
	)

	u := newUoW(store)
	defer u.Dispose()
	accounts, err := application.Open[*domain.Account](ctx, u, domain.TargetDefault)
	require.NoError(t, err)
	a, _ := accounts.Find(ctx, "a")
	b, _ := accounts.Find(ctx, "b")

	// another writer moves b ahead
	seed(store, &domain.Account{ID: "b", Owner: "other", Version: 2})

	a.Owner, b.Owner = "mine-a", "mine-b"
	require.NoError(t, u.MarkModified(a))
	require.NoError(t, u.MarkModified(b))
	err = u.CommitOnce(ctx)

	var conflict *application.ConcurrencyConflictError
	require.ErrorAs(t, err, &conflict)
	require.Len(t, conflict.Entries, 1)
	require.Equal(t, "b", conflict.Entries[0].Key())

	row, _ := store.Row("accounts", "a")
	require.Equal(t, "ann", row["owner"])
	row, _ = store.Row("accounts", "b")
	require.Equal(t, "other", row["owner"])
}

func TestCommitWithConflictRetry_ClientWins(t *testing.T) {
	ctx := context.Background()
	store := memstore.New(nil)
	seed(store, &domain.Account{ID: "a", Owner: "ann", Balance: 5, Version: 1})

	u := newUoW(store)
	defer u.Dispose()
	accounts, err := application.Open[*domain.Account](ctx, u, domain.TargetDefault)
	require.NoError(t, err)
	a, err := accounts.Find(ctx, "a")
	require.NoError(t, err)

	seed(store, &domain.Account{ID: "a", Owner: "theirs", Balance: 7, Version: 4})

	a.Owner = "mine"
	require.NoError(t, u.MarkModified(a))
	require.NoError(t, u.CommitWithConflictRetry(ctx))

	row, _ := store.Row("accounts", "a")
	require.Equal(t, "mine", row["owner"])
	require.Equal(t, int64(5), row["balance"])
	require.Equal(t, int64(5), row["version"])
	require.Equal(t, int64(5), a.Version)
}

func TestAddAndRemove(t *testing.T) {
	ctx := context.Background()
	store := memstore.New(nil)

	u := newUoW(store)
	accounts, err := application.Open[*domain.Account](ctx, u, domain.TargetDefault)
	require.NoError(t, err)
	a := &domain.Account{ID: "a", Owner: "ann", Version: 1}
	require.NoError(t, accounts.Add(a))
	require.NoError(t, u.CommitOnce(ctx))
	_, ok := store.Row("accounts", "a")
	require.True(t, ok)

	require.NoError(t, accounts.Remove(a))
	require.NoError(t, u.CommitOnce(ctx))
	_, ok = store.Row("accounts", "a")
	require.False(t, ok)
	require.NoError(t, u.Dispose())
}

func TestAdd_DuplicateKeyIsPersistenceError(t *testing.T) {
	ctx := context.Background()
	store := memstore.New(nil)
	seed(store, &domain.Account{ID: "a", Version: 1})

	u := newUoW(store)
	defer u.Dispose()
	accounts, err := application.Open[*domain.Account](ctx, u, domain.TargetDefault)
	require.NoError(t, err)
	require.NoError(t, accounts.Add(&domain.Account{ID: "a", Version: 1}))

	var perr *application.PersistenceError
	require.ErrorAs(t, u.CommitOnce(ctx), &perr)
}

func TestExecuteRaw_RegisteredStatement(t *testing.T) {
	ctx := context.Background()
	store := memstore.New(nil)
	seed(store,
		&domain.Account{ID: "a", Owner: "ann", Version: 1},
		&domain.Account{ID: "b", Owner: "ann", Version: 1},
	)
	const freeze = "UPDATE accounts SET frozen = true WHERE owner = ?"
	store.HandleStatement(freeze, func(tables memstore.Tables, args []any) (int64, error) {
		var n int64
		for _, row := range tables["accounts"] {
			if row["owner"] == args[0] {
				row["frozen"] = true
				n++
			}
		}
		return n, nil
	})

	u := newUoW(store)
	defer u.Dispose()
	_, err := application.Open[*domain.Account](ctx, u, domain.TargetDefault)
	require.NoError(t, err)

	n, err := u.ExecuteRaw(ctx, freeze, domain.TargetDefault, "ann")
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	_, err = u.ExecuteRaw(ctx, "DROP TABLE accounts", domain.TargetDefault)
	require.ErrorIs(t, err, memstore.ErrUnsupportedStatement)
}
