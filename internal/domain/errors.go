package domain

import "errors"

var (
	ErrInvalidOwner      = errors.New("invalid owner")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrAccountFrozen     = errors.New("account frozen")
	ErrSameAccount       = errors.New("transfer to same account")
	ErrAccountNotEmpty   = errors.New("account balance is not zero")
	ErrBalanceOverflow   = errors.New("balance overflow")
)
