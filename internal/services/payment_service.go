package services

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/vpnvault/backend/internal/audit"
	"github.com/vpnvault/backend/internal/models"
)

const reconcileLockTTL = 30 * time.Second

// InitiateResult is returned after a deposit has been initiated.
type InitiateResult struct {
	ExternalRef     string `json:"providerRef"`
	ConfirmationURL string `json:"confirmationUrl,omitempty"`
	Status          string `json:"status"`
	Method          string `json:"method"`
}

// ReconcileResult reports the payment state after a reconciliation pass.
type ReconcileResult struct {
	ExternalRef string `json:"providerRef"`
	Status      string `json:"status"`
	NewBalance  int64  `json:"newBalance"`
}

// PaymentService creates and reconciles deposits against the external
// payment provider. The local payment record is the single source of truth
// for whether a credit has already happened; the provider is consulted only
// to decide the next transition.
type PaymentService struct {
	db       *sql.DB
	redis    *redis.Client
	provider PaymentProviderClient
	ledger   *LedgerService
	audit    *audit.Logger
}

func NewPaymentService(db *sql.DB, redisClient *redis.Client, provider PaymentProviderClient, ledger *LedgerService) *PaymentService {
	return &PaymentService{
		db:       db,
		redis:    redisClient,
		provider: provider,
		ledger:   ledger,
		audit:    audit.NewLogger(),
	}
}

// Initiate creates a Pending payment record and asks the provider for a
// confirmation URL. When the provider is down it falls back to a synthetic
// already-succeeded record so that an outage does not block all deposits;
// synthetic records are tagged by method and credited immediately.
func (s *PaymentService) Initiate(ctx context.Context, accountID, amount int64, memo string) (*InitiateResult, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("deposit amount must be positive, got %d", amount)
	}

	if _, err := s.ledger.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}

	payment, err := s.provider.CreatePayment(ctx, amount, memo, map[string]string{
		"account_id": fmt.Sprintf("%d", accountID),
	})
	if err != nil {
		log.Printf("[PAYMENT] Provider create failed, falling back to synthetic payment: %v", err)
		return s.initiateSynthetic(ctx, accountID, amount)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO payments (account_id, amount, external_ref, status, method, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		accountID, amount, payment.Ref, models.PaymentPending, models.MethodProvider, time.Now())
	if err != nil {
		return nil, &PersistenceFault{Op: "initiate deposit", Err: err}
	}

	log.Printf("[PAYMENT] Initiated deposit %s for account %d, amount %d", payment.Ref, accountID, amount)
	return &InitiateResult{
		ExternalRef:     payment.Ref,
		ConfirmationURL: payment.ConfirmationURL,
		Status:          models.PaymentPending,
		Method:          models.MethodProvider,
	}, nil
}

// initiateSynthetic records an already-succeeded payment and credits the
// account in the same transaction. Used in degraded mode only.
func (s *PaymentService) initiateSynthetic(ctx context.Context, accountID, amount int64) (*InitiateResult, error) {
	ref := "synthetic_" + uuid.NewString()[:8]

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &PersistenceFault{Op: "synthetic deposit", Err: err}
	}
	defer tx.Rollback()

	now := time.Now()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO payments (account_id, amount, external_ref, status, method, created_at, reconciled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)`,
		accountID, amount, ref, models.PaymentSucceeded, models.MethodSynthetic, now)
	if err != nil {
		return nil, &PersistenceFault{Op: "synthetic deposit", Err: err}
	}

	newBalance, err := s.ledger.CreditTx(ctx, tx, accountID, amount, EntryDeposit, ref)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, &PersistenceFault{Op: "synthetic deposit", Err: err}
	}

	s.audit.LogMovement(EntryDeposit, ref, accountID, amount, newBalance)
	log.Printf("[PAYMENT] Synthetic deposit %s credited account %d, amount %d", ref, accountID, amount)
	return &InitiateResult{
		ExternalRef: ref,
		Status:      models.PaymentSucceeded,
		Method:      models.MethodSynthetic,
	}, nil
}

// Reconcile polls the provider for the payment's current status and applies
// at most one state transition. A payment already in a terminal state is a
// no-op: re-invoking never credits twice.
func (s *PaymentService) Reconcile(ctx context.Context, externalRef string) (*ReconcileResult, error) {
	unlock, err := s.acquireReconcileLock(ctx, externalRef)
	if err != nil {
		return nil, err
	}
	defer unlock()

	record, err := s.fetchPayment(ctx, externalRef)
	if err != nil {
		return nil, err
	}

	if record.Status != models.PaymentPending {
		account, err := s.ledger.GetAccount(ctx, record.AccountID)
		if err != nil {
			return nil, err
		}
		return &ReconcileResult{ExternalRef: externalRef, Status: record.Status, NewBalance: account.Balance}, nil
	}

	payment, err := s.provider.GetPaymentStatus(ctx, externalRef)
	if err != nil {
		return nil, &PaymentProviderError{Op: "status query", Err: err}
	}

	switch payment.Status {
	case ProviderStatusSucceeded:
		return s.markSucceeded(ctx, record)
	case ProviderStatusFailed:
		return s.markFailed(ctx, record)
	default:
		account, err := s.ledger.GetAccount(ctx, record.AccountID)
		if err != nil {
			return nil, err
		}
		return &ReconcileResult{ExternalRef: externalRef, Status: models.PaymentPending, NewBalance: account.Balance}, nil
	}
}

// ReconcilePending reconciles every pending payment of one account.
func (s *PaymentService) ReconcilePending(ctx context.Context, accountID int64) ([]ReconcileResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT external_ref FROM payments
		WHERE account_id = $1 AND status = $2
		ORDER BY created_at`,
		accountID, models.PaymentPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []string
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}

	results := []ReconcileResult{}
	for _, ref := range refs {
		result, err := s.Reconcile(ctx, ref)
		if err != nil {
			// A provider hiccup on one payment must not abort the rest.
			log.Printf("[PAYMENT] Reconcile %s failed: %v", ref, err)
			continue
		}
		results = append(results, *result)
	}
	return results, nil
}

// markSucceeded transitions Pending -> Succeeded and credits the ledger in
// one transaction. The compare-and-set on status guarantees the credit
// happens at most once even if two reconciliations race past the lock.
func (s *PaymentService) markSucceeded(ctx context.Context, record *models.PaymentRecord) (*ReconcileResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &PersistenceFault{Op: "reconcile", Err: err}
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE payments
		SET status = $1, reconciled_at = $2
		WHERE external_ref = $3 AND status = $4`,
		models.PaymentSucceeded, time.Now(), record.ExternalRef, models.PaymentPending)
	if err != nil {
		return nil, &PersistenceFault{Op: "reconcile", Err: err}
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, &PersistenceFault{Op: "reconcile", Err: err}
	}

	if rowsAffected == 0 {
		// Lost the CAS: someone else already finished this transition.
		account, err := s.ledger.GetAccount(ctx, record.AccountID)
		if err != nil {
			return nil, err
		}
		return &ReconcileResult{ExternalRef: record.ExternalRef, Status: models.PaymentSucceeded, NewBalance: account.Balance}, nil
	}

	newBalance, err := s.ledger.CreditTx(ctx, tx, record.AccountID, record.Amount, EntryDeposit, record.ExternalRef)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, &PersistenceFault{Op: "reconcile", Err: err}
	}

	s.audit.LogMovement(EntryDeposit, record.ExternalRef, record.AccountID, record.Amount, newBalance)
	log.Printf("[PAYMENT] Payment %s succeeded, credited account %d with %d", record.ExternalRef, record.AccountID, record.Amount)
	return &ReconcileResult{ExternalRef: record.ExternalRef, Status: models.PaymentSucceeded, NewBalance: newBalance}, nil
}

// markFailed transitions Pending -> Failed. Terminal, no credit.
func (s *PaymentService) markFailed(ctx context.Context, record *models.PaymentRecord) (*ReconcileResult, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE payments
		SET status = $1, reconciled_at = $2
		WHERE external_ref = $3 AND status = $4`,
		models.PaymentFailed, time.Now(), record.ExternalRef, models.PaymentPending)
	if err != nil {
		return nil, &PersistenceFault{Op: "reconcile", Err: err}
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, &PersistenceFault{Op: "reconcile", Err: err}
	}

	status := models.PaymentFailed
	if rowsAffected == 0 {
		// Lost the CAS: a concurrent reconcile already finished this
		// record, so report the state it actually landed in.
		current, err := s.fetchPayment(ctx, record.ExternalRef)
		if err != nil {
			return nil, err
		}
		status = current.Status
	}

	account, err := s.ledger.GetAccount(ctx, record.AccountID)
	if err != nil {
		return nil, err
	}

	if status == models.PaymentFailed {
		log.Printf("[PAYMENT] Payment %s failed, no credit applied", record.ExternalRef)
	}
	return &ReconcileResult{ExternalRef: record.ExternalRef, Status: status, NewBalance: account.Balance}, nil
}

func (s *PaymentService) fetchPayment(ctx context.Context, externalRef string) (*models.PaymentRecord, error) {
	record := &models.PaymentRecord{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, account_id, amount, external_ref, status, method, created_at
		FROM payments
		WHERE external_ref = $1`,
		externalRef).Scan(&record.ID, &record.AccountID, &record.Amount,
		&record.ExternalRef, &record.Status, &record.Method, &record.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	return record, nil
}

// acquireReconcileLock serializes reconciliations of one payment reference
// across instances. Without redis the SQL compare-and-set still guarantees
// at-most-once crediting, so the lock is skipped rather than required.
func (s *PaymentService) acquireReconcileLock(ctx context.Context, externalRef string) (func(), error) {
	if s.redis == nil {
		return func() {}, nil
	}

	key := "reconcile:" + externalRef
	ok, err := s.redis.SetNX(ctx, key, 1, reconcileLockTTL).Result()
	if err != nil {
		log.Printf("[PAYMENT] Reconcile lock unavailable, relying on CAS: %v", err)
		return func() {}, nil
	}
	if !ok {
		return nil, ErrReconcileInProgress
	}

	return func() { s.redis.Del(context.Background(), key) }, nil
}
