package application

import (
	"context"
	"testing"

	"trackstore/internal/domain"
	"trackstore/internal/model"
	"trackstore/internal/tracking"

	"github.com/stretchr/testify/require"
)

func Test_Transfer_ConflictIsNotRetried(t *testing.T) {
	t.Parallel()
	f := &countingFactory{session: newFakeSession()}
	s := f.session
	s.rows["a"] = &domain.Account{ID: "a", Balance: 10, Version: 1}
	s.rows["b"] = &domain.Account{ID: "b", Version: 1}
	s.flushFn = func(_ int, pending []*tracking.Entry) error { return conflictOn(pending[:1]) }

	svc := NewAccountService(NewUnitOfWorkFactory(f, model.New()), &fakeIdem{})
	_, err := svc.Transfer(context.Background(), "a", "b", 5, nil)
	require.ErrorIs(t, err, ErrConflict)
	require.Equal(t, 1, s.flushCalls)
	require.Equal(t, 1, s.closed)
}
