// Package model registers the entity kinds the service persists.
package model

import "trackstore/internal/tracking"

func New() *tracking.Model {
	return tracking.NewModel(AccountMapping{}, TransferMapping{})
}
