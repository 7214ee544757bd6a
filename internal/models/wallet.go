package models

import "time"

// Wallet is the single balance record for an account, in the smallest
// currency unit. Balance never goes negative; debits that would drive it
// below zero are rejected at the store level.
type Wallet struct {
	UserID         string    `json:"user_id" db:"user_id"`
	Balance        int64     `json:"balance" db:"balance"`
	InitialCapital *int64    `json:"initial_capital,omitempty" db:"initial_capital"` // display-only P&L baseline
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}
