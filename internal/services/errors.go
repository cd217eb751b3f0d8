package services

import (
	"errors"
	"fmt"
)

// Validation errors are returned to the caller synchronously and never
// retried automatically.
var (
	ErrAccountNotFound  = errors.New("account not found")
	ErrTariffNotFound   = errors.New("tariff not found")
	ErrTrialAlreadyUsed = errors.New("trial tariff already used")
	ErrPaymentNotFound  = errors.New("payment not found")
)

// ErrReconcileInProgress means another reconciliation currently holds the
// lock for the same payment reference.
var ErrReconcileInProgress = errors.New("reconciliation already in progress")

// InsufficientFundsError reports how much more the account would need for
// the debit to succeed. The balance is left unchanged.
type InsufficientFundsError struct {
	Shortfall int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: short %d", e.Shortfall)
}

// PaymentProviderError wraps a transient provider-side failure. The local
// payment record stays pending and a later reconciliation retries it.
type PaymentProviderError struct {
	Op  string
	Err error
}

func (e *PaymentProviderError) Error() string {
	return fmt.Sprintf("payment provider %s failed: %v", e.Op, e.Err)
}

func (e *PaymentProviderError) Unwrap() error { return e.Err }

// PersistenceFault marks a storage failure that aborted an operation after
// money may already have moved. The entitlement engine compensates the
// debit before surfacing it.
type PersistenceFault struct {
	Op  string
	Err error
}

func (e *PersistenceFault) Error() string {
	return fmt.Sprintf("persistence fault during %s: %v", e.Op, e.Err)
}

func (e *PersistenceFault) Unwrap() error { return e.Err }
