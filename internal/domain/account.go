package domain

import (
	"math"
	"strings"
	"time"
)

type Account struct {
	ID        string
	Owner     string
	Balance   int64
	Frozen    bool
	Version   int64
	UpdatedAt time.Time
}

func (a *Account) EntityKey() any { return a.ID }

func (a *Account) GetVersion() int64 { return a.Version }

func (a *Account) SetVersion(v int64) { a.Version = v }

func (a *Account) Rename(owner string, now time.Time) error {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return ErrInvalidOwner
	}
	a.Owner = owner
	a.UpdatedAt = now
	return nil
}

// SetFrozen blocks or unblocks balance changes.
func (a *Account) SetFrozen(frozen bool, now time.Time) {
	a.Frozen = frozen
	a.UpdatedAt = now
}

func (a *Account) Withdraw(amount int64, now time.Time) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if a.Frozen {
		return ErrAccountFrozen
	}
	if a.Balance < amount {
		return ErrInsufficientFunds
	}
	a.Balance -= amount
	a.UpdatedAt = now
	return nil
}

func (a *Account) Deposit(amount int64, now time.Time) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if a.Frozen {
		return ErrAccountFrozen
	}
	if amount > math.MaxInt64-a.Balance {
		return ErrBalanceOverflow
	}
	a.Balance += amount
	a.UpdatedAt = now
	return nil
}
