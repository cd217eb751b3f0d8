package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vpnvault/backend/internal/audit"
	"github.com/vpnvault/backend/internal/models"
)

// Ledger entry types.
const (
	EntryDeposit    = "DEPOSIT"
	EntryPurchase   = "PURCHASE"
	EntryRefund     = "REFUND"
	EntryAdjustment = "ADJUSTMENT"
)

// LedgerService owns account balances. Every movement goes through a row
// lock on the account, writes a ledger entry with the running balance, and
// bumps the optimistic version. Operations on the same account serialize;
// different accounts proceed independently.
type LedgerService struct {
	db    *sql.DB
	audit *audit.Logger
}

func NewLedgerService(db *sql.DB) *LedgerService {
	return &LedgerService{
		db:    db,
		audit: audit.NewLogger(),
	}
}

// Credit increases an account balance. Amount must be positive.
func (s *LedgerService) Credit(ctx context.Context, accountID, amount int64, entryType, reference string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	newBalance, err := s.CreditTx(ctx, tx, accountID, amount, entryType, reference)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}

	s.audit.LogMovement(entryType, reference, accountID, amount, newBalance)
	return newBalance, nil
}

// Debit decreases an account balance only if it covers the amount;
// otherwise it fails with InsufficientFundsError and no side effects.
func (s *LedgerService) Debit(ctx context.Context, accountID, amount int64, entryType, reference string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	newBalance, err := s.DebitTx(ctx, tx, accountID, amount, entryType, reference)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}

	s.audit.LogMovement(entryType, reference, accountID, -amount, newBalance)
	return newBalance, nil
}

// CreditTx applies a credit inside an existing transaction.
func (s *LedgerService) CreditTx(ctx context.Context, tx *sql.Tx, accountID, amount int64, entryType, reference string) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("credit amount must be positive, got %d", amount)
	}

	account, err := s.lockAccount(ctx, tx, accountID)
	if err != nil {
		return 0, err
	}

	newBalance := account.Balance + amount
	if err := s.createLedgerEntry(ctx, tx, accountID, amount, entryType, reference, newBalance); err != nil {
		return 0, err
	}

	if err := s.updateAccountBalance(ctx, tx, accountID, newBalance, account.Version); err != nil {
		return 0, err
	}

	return newBalance, nil
}

// DebitTx applies a debit inside an existing transaction.
func (s *LedgerService) DebitTx(ctx context.Context, tx *sql.Tx, accountID, amount int64, entryType, reference string) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("debit amount must be positive, got %d", amount)
	}

	account, err := s.lockAccount(ctx, tx, accountID)
	if err != nil {
		return 0, err
	}

	if account.Balance < amount {
		return 0, &InsufficientFundsError{Shortfall: amount - account.Balance}
	}

	newBalance := account.Balance - amount
	if err := s.createLedgerEntry(ctx, tx, accountID, -amount, entryType, reference, newBalance); err != nil {
		return 0, err
	}

	if err := s.updateAccountBalance(ctx, tx, accountID, newBalance, account.Version); err != nil {
		return 0, err
	}

	return newBalance, nil
}

// GetOrCreateAccount resolves an account by its external user reference,
// creating it with a zero balance on first sight.
func (s *LedgerService) GetOrCreateAccount(ctx context.Context, externalUserRef string) (*models.Account, error) {
	account := &models.Account{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, external_user_ref, balance, trial_consumed, version, created_at, updated_at
		FROM accounts
		WHERE external_user_ref = $1
	`, externalUserRef).Scan(&account.ID, &account.ExternalUserRef, &account.Balance,
		&account.TrialConsumed, &account.Version, &account.CreatedAt, &account.UpdatedAt)

	if err == nil {
		return account, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	// ON CONFLICT covers a concurrent first request for the same user.
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO accounts (external_user_ref, balance, trial_consumed, version, created_at, updated_at)
		VALUES ($1, 0, FALSE, 0, NOW(), NOW())
		ON CONFLICT (external_user_ref) DO UPDATE SET updated_at = NOW()
		RETURNING id, external_user_ref, balance, trial_consumed, version, created_at, updated_at
	`, externalUserRef).Scan(&account.ID, &account.ExternalUserRef, &account.Balance,
		&account.TrialConsumed, &account.Version, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		return nil, err
	}

	return account, nil
}

// GetAccount fetches an account by id.
func (s *LedgerService) GetAccount(ctx context.Context, accountID int64) (*models.Account, error) {
	account := &models.Account{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, external_user_ref, balance, trial_consumed, version, created_at, updated_at
		FROM accounts
		WHERE id = $1
	`, accountID).Scan(&account.ID, &account.ExternalUserRef, &account.Balance,
		&account.TrialConsumed, &account.Version, &account.CreatedAt, &account.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return account, nil
}

func (s *LedgerService) lockAccount(ctx context.Context, tx *sql.Tx, accountID int64) (*models.Account, error) {
	account := &models.Account{}
	err := tx.QueryRowContext(ctx, `
		SELECT id, balance, trial_consumed, version, updated_at
		FROM accounts
		WHERE id = $1
		FOR UPDATE
	`, accountID).Scan(&account.ID, &account.Balance, &account.TrialConsumed, &account.Version, &account.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return account, nil
}

func (s *LedgerService) createLedgerEntry(ctx context.Context, tx *sql.Tx, accountID, amount int64, entryType, reference string, balance int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_entries (account_id, amount, entry_type, reference, balance, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		accountID, amount, entryType, reference, balance, time.Now())
	return err
}

func (s *LedgerService) updateAccountBalance(ctx context.Context, tx *sql.Tx, accountID, newBalance int64, version int) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET balance = $1, version = version + 1, updated_at = $2
		WHERE id = $3 AND version = $4`,
		newBalance, time.Now(), accountID, version)

	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return fmt.Errorf("optimistic lock failed for account %d", accountID)
	}

	return nil
}
