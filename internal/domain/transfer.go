package domain

import "time"

// Transfer is an append-only ledger row written alongside the two balance updates.
type Transfer struct {
	ID        string
	FromID    string
	ToID      string
	Amount    int64
	CreatedAt time.Time
}

func (t *Transfer) EntityKey() any { return t.ID }
