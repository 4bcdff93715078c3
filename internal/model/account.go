package model

import (
	"trackstore/internal/domain"
	"trackstore/internal/tracking"
)

var accountColumns = []string{"id", "owner", "balance", "frozen", "version", "updated_at"}

// AccountMapping maps domain.Account onto the accounts table.
type AccountMapping struct{}

var _ tracking.Mapping = AccountMapping{}

func (AccountMapping) Table() string         { return "accounts" }
func (AccountMapping) KeyColumn() string     { return "id" }
func (AccountMapping) VersionColumn() string { return "version" }
func (AccountMapping) Columns() []string     { return accountColumns }
func (AccountMapping) New() domain.Entity    { return &domain.Account{} }

func (AccountMapping) Values(e domain.Entity) []any {
	a := e.(*domain.Account)
	return []any{a.ID, a.Owner, a.Balance, a.Frozen, a.Version, a.UpdatedAt}
}

func (AccountMapping) ScanTargets(e domain.Entity) []any {
	a := e.(*domain.Account)
	return []any{&a.ID, &a.Owner, &a.Balance, &a.Frozen, &a.Version, &a.UpdatedAt}
}
