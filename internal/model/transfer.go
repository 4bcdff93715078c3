package model

import (
	"trackstore/internal/domain"
	"trackstore/internal/tracking"
)

var transferColumns = []string{"id", "from_id", "to_id", "amount", "created_at"}

// TransferMapping maps domain.Transfer onto the transfers table. Transfers are
// never updated, so they carry no version column.
type TransferMapping struct{}

var _ tracking.Mapping = TransferMapping{}

func (TransferMapping) Table() string         { return "transfers" }
func (TransferMapping) KeyColumn() string     { return "id" }
func (TransferMapping) VersionColumn() string { return "" }
func (TransferMapping) Columns() []string     { return transferColumns }
func (TransferMapping) New() domain.Entity    { return &domain.Transfer{} }

func (TransferMapping) Values(e domain.Entity) []any {
	t := e.(*domain.Transfer)
	return []any{t.ID, t.FromID, t.ToID, t.Amount, t.CreatedAt}
}

func (TransferMapping) ScanTargets(e domain.Entity) []any {
	t := e.(*domain.Transfer)
	return []any{&t.ID, &t.FromID, &t.ToID, &t.Amount, &t.CreatedAt}
}
