package models

import "time"

const (
	KindMint   = "mint"
	KindDebit  = "debit"
	KindCredit = "credit"
)

// Movement is one immutable ledger row. A mint writes one row; a transfer
// writes a debit/credit pair sharing a correlation id.
type Movement struct {
	ID            int64     `json:"id" db:"id"`
	TS            time.Time `json:"ts" db:"ts"`
	Kind          string    `json:"kind" db:"kind"`
	Amount        int64     `json:"amount" db:"amount"` // always positive; kind carries the sign
	ActorID       string    `json:"actor_id" db:"actor_id"`
	FromUser      *string   `json:"from_user,omitempty" db:"from_user"`
	ToUser        *string   `json:"to_user,omitempty" db:"to_user"`
	CorrelationID *string   `json:"correlation_id,omitempty" db:"correlation_id"`
	Note          string    `json:"note" db:"note"`
}
