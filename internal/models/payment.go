package models

import (
	"time"
)

// Payment states. A record transitions from Pending to exactly one of
// Succeeded or Failed; terminal states never transition again.
const (
	PaymentPending   = "PENDING"
	PaymentSucceeded = "SUCCEEDED"
	PaymentFailed    = "FAILED"
)

// Payment methods.
const (
	MethodProvider  = "provider"  // confirmed by the external payment provider
	MethodSynthetic = "synthetic" // synthesized locally while the provider was down
)

type PaymentRecord struct {
	ID           int64      `json:"id" db:"id"`
	AccountID    int64      `json:"account_id" db:"account_id"`
	Amount       int64      `json:"amount" db:"amount"` // minor units
	ExternalRef  string     `json:"external_ref" db:"external_ref"`
	Status       string     `json:"status" db:"status"`
	Method       string     `json:"method" db:"method"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	ReconciledAt *time.Time `json:"reconciled_at,omitempty" db:"reconciled_at"`
}
