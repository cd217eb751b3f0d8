package models

import (
	"time"
)

// Account holds a user's prepaid balance. Balance is stored in minor
// currency units and is only ever mutated through the ledger service.
type Account struct {
	ID              int64     `json:"id" db:"id"`
	ExternalUserRef string    `json:"external_user_ref" db:"external_user_ref"`
	Balance         int64     `json:"balance" db:"balance"`
	TrialConsumed   bool      `json:"trial_consumed" db:"trial_consumed"`
	Version         int       `json:"version" db:"version"` // for optimistic locking
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

type LedgerEntry struct {
	ID        int64     `json:"id" db:"id"`
	AccountID int64     `json:"account_id" db:"account_id"`
	Amount    int64     `json:"amount" db:"amount"`         // signed, minor units
	EntryType string    `json:"entry_type" db:"entry_type"` // DEPOSIT, PURCHASE, REFUND, ADJUSTMENT
	Reference string    `json:"reference" db:"reference"`
	Balance   int64     `json:"balance" db:"balance"` // running balance after the entry
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
