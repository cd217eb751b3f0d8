package services

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/vpnvault/backend/internal/audit"
	"github.com/vpnvault/backend/internal/config"
	"github.com/vpnvault/backend/internal/models"
)

// PurchaseResult is the outcome of a successful purchase. Degraded mirrors
// !AccessKey.Provisioned: the sale went through but the credential is a
// placeholder until the remote key service recovers.
type PurchaseResult struct {
	Subscription *models.Subscription `json:"subscription"`
	AccessKey    *models.AccessKey    `json:"accessKey"`
	Degraded     bool                 `json:"degraded"`
}

// EntitlementService orchestrates tariff purchases:
// validate -> debit -> provision -> commit. The debit and the trial flag
// check-and-set share one transaction under the account row lock; the
// subscription commit runs in a second transaction after provisioning, and
// a storage fault there is compensated by an equal credit before the error
// is surfaced.
type EntitlementService struct {
	db          *sql.DB
	ledger      *LedgerService
	provisioner *ProvisionerService
	catalog     *config.TariffCatalog
	audit       *audit.Logger
}

func NewEntitlementService(db *sql.DB, ledger *LedgerService, provisioner *ProvisionerService, catalog *config.TariffCatalog) *EntitlementService {
	return &EntitlementService{
		db:          db,
		ledger:      ledger,
		provisioner: provisioner,
		catalog:     catalog,
		audit:       audit.NewLogger(),
	}
}

// Purchase buys a tariff for an account.
func (s *EntitlementService) Purchase(ctx context.Context, accountID int64, tariffID string) (*PurchaseResult, error) {
	tariff, ok := s.catalog.Get(tariffID)
	if !ok {
		return nil, ErrTariffNotFound
	}

	purchaseRef := "purchase_" + uuid.NewString()[:8]

	account, err := s.debit(ctx, accountID, tariff, purchaseRef)
	if err != nil {
		return nil, err
	}

	// Provisioning cannot fail the purchase; it only decides Degraded.
	keyName := fmt.Sprintf("%s-%s", account.ExternalUserRef, tariff.ID)
	issued := s.provisioner.Issue(ctx, keyName, tariff.DataLimitBytes)

	result, err := s.commit(ctx, accountID, tariff, purchaseRef, issued)
	if err != nil {
		s.compensate(ctx, accountID, tariff, purchaseRef)
		return nil, err
	}

	s.audit.LogPurchase(purchaseRef, accountID, tariff.ID, tariff.Price, result.Degraded)
	log.Printf("[ENTITLEMENT] Purchase %s committed for account %d, tariff %s, degraded=%v",
		purchaseRef, accountID, tariff.ID, result.Degraded)
	return result, nil
}

// debit validates eligibility and moves the money. The account row lock
// serializes concurrent purchases on the same account, so two trials can
// never both pass the trial check and two debits can never both observe
// the same balance.
func (s *EntitlementService) debit(ctx context.Context, accountID int64, tariff models.Tariff, purchaseRef string) (*models.Account, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &PersistenceFault{Op: "purchase debit", Err: err}
	}
	defer tx.Rollback()

	account, err := s.lockAccountForPurchase(ctx, tx, accountID)
	if err != nil {
		return nil, err
	}

	if tariff.IsTrial && account.TrialConsumed {
		return nil, ErrTrialAlreadyUsed
	}

	if tariff.Price > 0 {
		if _, err := s.ledger.DebitTx(ctx, tx, accountID, tariff.Price, EntryPurchase, purchaseRef); err != nil {
			return nil, err
		}
	}

	if tariff.IsTrial {
		if _, err := tx.ExecContext(ctx, `
			UPDATE accounts SET trial_consumed = TRUE, updated_at = $1 WHERE id = $2`,
			time.Now(), accountID); err != nil {
			return nil, &PersistenceFault{Op: "purchase debit", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, &PersistenceFault{Op: "purchase debit", Err: err}
	}

	return account, nil
}

// commit persists the Subscription and its AccessKey as one atomic write.
func (s *EntitlementService) commit(ctx context.Context, accountID int64, tariff models.Tariff, purchaseRef string, issued *IssuedKey) (*PurchaseResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &PersistenceFault{Op: "purchase commit", Err: err}
	}
	defer tx.Rollback()

	now := time.Now()
	sub := &models.Subscription{
		AccountID: accountID,
		TariffID:  tariff.ID,
		PricePaid: tariff.Price,
		StartAt:   now,
		EndAt:     now.AddDate(0, 0, tariff.DurationDays),
		Active:    true,
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO subscriptions (account_id, tariff_id, price_paid, start_at, end_at, active)
		VALUES ($1, $2, $3, $4, $5, TRUE)
		RETURNING id`,
		sub.AccountID, sub.TariffID, sub.PricePaid, sub.StartAt, sub.EndAt).Scan(&sub.ID)
	if err != nil {
		return nil, &PersistenceFault{Op: "purchase commit", Err: err}
	}

	key := &models.AccessKey{
		SubscriptionID: sub.ID,
		ExternalKeyRef: issued.ExternalKeyRef,
		AccessSecret:   issued.AccessSecret,
		Provisioned:    issued.Provisioned,
		Active:         true,
		CreatedAt:      now,
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO access_keys (subscription_id, external_key_ref, access_secret, provisioned, active, created_at)
		VALUES ($1, $2, $3, $4, TRUE, $5)
		RETURNING id`,
		key.SubscriptionID, key.ExternalKeyRef, key.AccessSecret, key.Provisioned, key.CreatedAt).Scan(&key.ID)
	if err != nil {
		return nil, &PersistenceFault{Op: "purchase commit", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return nil, &PersistenceFault{Op: "purchase commit", Err: err}
	}

	return &PurchaseResult{
		Subscription: sub,
		AccessKey:    key,
		Degraded:     !issued.Provisioned,
	}, nil
}

// compensate refunds a committed debit after a failed subscription commit,
// so no purchase both charges the user and leaves nothing behind. The
// trial flag is reset in the same pass.
func (s *EntitlementService) compensate(ctx context.Context, accountID int64, tariff models.Tariff, purchaseRef string) {
	if tariff.Price > 0 {
		if _, err := s.ledger.Credit(ctx, accountID, tariff.Price, EntryRefund, purchaseRef); err != nil {
			// The refund itself failed; nothing automatic left to do.
			s.audit.LogError(purchaseRef, accountID, fmt.Errorf("compensation credit failed: %w", err))
			return
		}
	}

	if tariff.IsTrial {
		if _, err := s.db.ExecContext(ctx, `
			UPDATE accounts SET trial_consumed = FALSE, updated_at = $1 WHERE id = $2`,
			time.Now(), accountID); err != nil {
			s.audit.LogError(purchaseRef, accountID, fmt.Errorf("trial flag reset failed: %w", err))
		}
	}

	log.Printf("[ENTITLEMENT] Purchase %s compensated for account %d", purchaseRef, accountID)
}

// ListActiveKeys returns the active access keys of an account.
func (s *EntitlementService) ListActiveKeys(ctx context.Context, accountID int64) ([]models.AccessKey, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT k.id, k.subscription_id, k.external_key_ref, k.access_secret, k.provisioned, k.active, k.created_at
		FROM access_keys k
		INNER JOIN subscriptions s ON s.id = k.subscription_id
		WHERE s.account_id = $1 AND k.active = TRUE AND s.active = TRUE
		ORDER BY k.created_at DESC`,
		accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := []models.AccessKey{}
	for rows.Next() {
		var key models.AccessKey
		if err := rows.Scan(&key.ID, &key.SubscriptionID, &key.ExternalKeyRef,
			&key.AccessSecret, &key.Provisioned, &key.Active, &key.CreatedAt); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// ListSubscriptions returns an account's subscriptions, newest first.
func (s *EntitlementService) ListSubscriptions(ctx context.Context, accountID int64, activeOnly bool) ([]models.Subscription, error) {
	query := `
		SELECT id, account_id, tariff_id, price_paid, start_at, end_at, active
		FROM subscriptions
		WHERE account_id = $1`
	if activeOnly {
		query += ` AND active = TRUE`
	}
	query += ` ORDER BY start_at DESC`

	rows, err := s.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	subs := []models.Subscription{}
	for rows.Next() {
		var sub models.Subscription
		if err := rows.Scan(&sub.ID, &sub.AccountID, &sub.TariffID, &sub.PricePaid,
			&sub.StartAt, &sub.EndAt, &sub.Active); err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// RevokeSubscription deactivates a subscription and its key ahead of its
// end date, then best-effort revokes the remote credential.
func (s *EntitlementService) RevokeSubscription(ctx context.Context, subscriptionID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &PersistenceFault{Op: "revoke subscription", Err: err}
	}
	defer tx.Rollback()

	var keyRef string
	err = tx.QueryRowContext(ctx, `
		SELECT external_key_ref FROM access_keys WHERE subscription_id = $1`,
		subscriptionID).Scan(&keyRef)
	if err != nil && err != sql.ErrNoRows {
		return &PersistenceFault{Op: "revoke subscription", Err: err}
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE subscriptions SET active = FALSE WHERE id = $1`, subscriptionID); err != nil {
		return &PersistenceFault{Op: "revoke subscription", Err: err}
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE access_keys SET active = FALSE WHERE subscription_id = $1`, subscriptionID); err != nil {
		return &PersistenceFault{Op: "revoke subscription", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return &PersistenceFault{Op: "revoke subscription", Err: err}
	}

	if keyRef != "" {
		s.provisioner.Revoke(ctx, keyRef)
	}
	return nil
}

func (s *EntitlementService) lockAccountForPurchase(ctx context.Context, tx *sql.Tx, accountID int64) (*models.Account, error) {
	account := &models.Account{}
	err := tx.QueryRowContext(ctx, `
		SELECT id, external_user_ref, balance, trial_consumed, version
		FROM accounts
		WHERE id = $1
		FOR UPDATE`,
		accountID).Scan(&account.ID, &account.ExternalUserRef, &account.Balance,
		&account.TrialConsumed, &account.Version)

	if err == sql.ErrNoRows {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return account, nil
}
