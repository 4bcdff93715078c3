package application

import (
	"context"
	"errors"
	"fmt"

	"trackstore/internal/domain"

	"go.uber.org/zap"
)

type AccountService struct {
	newUoW UnitOfWorkFactory
	idem   IdempotencyStore
	clock  Clock
	idgen  IDGen
	log    *zap.Logger
}

type ServiceOption func(*AccountService)

func WithClock(c Clock) ServiceOption { return func(s *AccountService) { s.clock = c } }

func WithIDGen(g IDGen) ServiceOption { return func(s *AccountService) { s.idgen = g } }

func WithServiceLogger(l *zap.Logger) ServiceOption {
	return func(s *AccountService) { s.log = l }
}

func NewAccountService(newUoW UnitOfWorkFactory, idem IdempotencyStore, opts ...ServiceOption) *AccountService {
	s := &AccountService{newUoW: newUoW, idem: idem}
	for _, opt := range opts {
		opt(s)
	}
	if s.idem == nil {
		s.idem = NoopIdempotency{}
	}
	if s.clock == nil {
		s.clock = realClock{}
	}
	if s.idgen == nil {
		s.idgen = defaultIDGen{}
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	return s
}

// withUoW runs fn inside a fresh unit of work and disposes it afterwards.
func (s *AccountService) withUoW(fn func(u *TransactionalUnitOfWork) error) (err error) {
	u := s.newUoW()
	defer func() {
		if derr := u.Dispose(); derr != nil && err == nil {
			err = derr
		}
	}()
	return fn(u)
}

func (s *AccountService) CreateAccount(ctx context.Context, owner string, initial int64) (domain.Account, error) {
	if initial < 0 {
		return domain.Account{}, domain.ErrInvalidAmount
	}
	acct := &domain.Account{ID: s.idgen.New(), Balance: initial, Version: 1}
	if err := acct.Rename(owner, s.clock.Now()); err != nil {
		return domain.Account{}, err
	}
	err := s.withUoW(func(u *TransactionalUnitOfWork) error {
		accounts, err := Open[*domain.Account](ctx, u, domain.TargetDefault)
		if err != nil {
			return err
		}
		if err := accounts.Add(acct); err != nil {
			return err
		}
		return u.CommitOnce(ctx)
	})
	if err != nil {
		return domain.Account{}, err
	}
	return *acct, nil
}

func (s *AccountService) GetAccount(ctx context.Context, id string) (domain.Account, error) {
	var out domain.Account
	err := s.withUoW(func(u *TransactionalUnitOfWork) error {
		accounts, err := Open[*domain.Account](ctx, u, domain.TargetDefault)
		if err != nil {
			return err
		}
		acct, err := accounts.Find(ctx, id)
		if err != nil {
			return err
		}
		out = *acct
		return nil
	})
	return out, err
}

// RenameAccount overwrites the owner. Concurrent writers lose to the last rename.
func (s *AccountService) RenameAccount(ctx context.Context, id, owner string) (domain.Account, error) {
	var out domain.Account
	err := s.withUoW(func(u *TransactionalUnitOfWork) error {
		accounts, err := Open[*domain.Account](ctx, u, domain.TargetDefault)
		if err != nil {
			return err
		}
		acct, err := accounts.Find(ctx, id)
		if err != nil {
			return err
		}
		if err := acct.Rename(owner, s.clock.Now()); err != nil {
			return err
		}
		if err := u.MarkModified(acct); err != nil {
			return err
		}
		if err := u.CommitWithConflictRetry(ctx); err != nil {
			return err
		}
		out = *acct
		return nil
	})
	return out, err
}

// SetFrozen freezes or unfreezes an account. Like renames, the last writer wins.
func (s *AccountService) SetFrozen(ctx context.Context, id string, frozen bool) (domain.Account, error) {
	var out domain.Account
	err := s.withUoW(func(u *TransactionalUnitOfWork) error {
		accounts, err := Open[*domain.Account](ctx, u, domain.TargetDefault)
		if err != nil {
			return err
		}
		acct, err := accounts.Find(ctx, id)
		if err != nil {
			return err
		}
		acct.SetFrozen(frozen, s.clock.Now())
		if err := u.MarkModified(acct); err != nil {
			return err
		}
		if err := u.CommitWithConflictRetry(ctx); err != nil {
			return err
		}
		out = *acct
		return nil
	})
	return out, err
}

// Transfer moves amount between two accounts and records the ledger row in the
// same flush. A concurrent balance change fails the transfer with ErrConflict
// instead of being overwritten.
func (s *AccountService) Transfer(ctx context.Context, fromID, toID string, amount int64, idem *string) (domain.Transfer, error) {
	if fromID == toID {
		return domain.Transfer{}, domain.ErrSameAccount
	}
	reserved := ""
	if idem != nil && *idem != "" {
		key := "transfer:" + *idem
		ok, err := s.idem.TryReserve(ctx, key)
		if err != nil {
			return domain.Transfer{}, fmt.Errorf("reserve idempotency key: %w", err)
		}
		if !ok {
			return domain.Transfer{}, ErrDuplicateRequest
		}
		reserved = key
	}

	now := s.clock.Now()
	tr := &domain.Transfer{ID: s.idgen.New(), FromID: fromID, ToID: toID, Amount: amount, CreatedAt: now}
	err := s.withUoW(func(u *TransactionalUnitOfWork) error {
		accounts, err := Open[*domain.Account](ctx, u, domain.TargetDefault)
		if err != nil {
			return err
		}
		transfers, err := Open[*domain.Transfer](ctx, u, domain.TargetDefault)
		if err != nil {
			return err
		}
		from, err := accounts.Find(ctx, fromID)
		if err != nil {
			return err
		}
		to, err := accounts.Find(ctx, toID)
		if err != nil {
			return err
		}
		if err := from.Withdraw(amount, now); err != nil {
			return err
		}
		if err := to.Deposit(amount, now); err != nil {
			return err
		}
		for _, a := range []*domain.Account{from, to} {
			if err := u.MarkModified(a); err != nil {
				return err
			}
		}
		if err := transfers.Add(tr); err != nil {
			return err
		}
		return u.CommitOnce(ctx)
	})
	if err != nil && reserved != "" {
		s.release(ctx, reserved)
	}
	var conflict *ConcurrencyConflictError
	if errors.As(err, &conflict) {
		s.log.Info("transfer_conflict", zap.String("from", fromID), zap.String("to", toID))
		return domain.Transfer{}, fmt.Errorf("%w: %v", ErrConflict, err)
	}
	if err != nil {
		return domain.Transfer{}, err
	}
	return *tr, nil
}

func (s *AccountService) release(ctx context.Context, key string) {
	r, ok := s.idem.(IdempotencyReleaser)
	if !ok {
		return
	}
	if err := r.Release(ctx, key); err != nil {
		s.log.Warn("idempotency_release_failed", zap.String("key", key), zap.Error(err))
	}
}

// CloseAccount deletes an account with a zero balance.
func (s *AccountService) CloseAccount(ctx context.Context, id string) error {
	err := s.withUoW(func(u *TransactionalUnitOfWork) error {
		accounts, err := Open[*domain.Account](ctx, u, domain.TargetDefault)
		if err != nil {
			return err
		}
		acct, err := accounts.Find(ctx, id)
		if err != nil {
			return err
		}
		if acct.Balance != 0 {
			return domain.ErrAccountNotEmpty
		}
		if err := accounts.Remove(acct); err != nil {
			return err
		}
		return u.CommitOnce(ctx)
	})
	var conflict *ConcurrencyConflictError
	if errors.As(err, &conflict) {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}
