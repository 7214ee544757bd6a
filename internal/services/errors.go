package services

import "errors"

// Failure taxonomy surfaced by the transfer engine and the stores. Handlers
// map these to HTTP statuses; anything unrecognized is treated as internal.
var (
	ErrInvalidAmount     = errors.New("amount must be a positive integer")
	ErrNotAuthorized     = errors.New("role policy denies this operation")
	ErrTargetNotFound    = errors.New("target account not found")
	ErrTargetNotEligible = errors.New("destination must be a player account")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrDuplicateTransfer = errors.New("duplicate transfer")
	ErrAccountNotFound   = errors.New("account not found")
	ErrInviteNotFound    = errors.New("invite token not found or expired")
)
