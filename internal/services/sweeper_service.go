package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/vpnvault/backend/internal/config"
)

// expiredSubscription is one row of the sweep working set.
type expiredSubscription struct {
	SubscriptionID  int64
	AccountID       int64
	ExternalUserRef string
	TariffID        string
	KeyRef          sql.NullString
}

// SweeperService deactivates subscriptions past their end date and revokes
// their credentials. Each subscription is processed independently: a failed
// remote revoke or notification never blocks the local deactivation, which
// is authoritative, and never aborts the rest of the batch. Re-running the
// sweep is a no-op for already-deactivated rows.
type SweeperService struct {
	db          *sql.DB
	redis       *redis.Client
	provisioner *ProvisionerService
	notifier    Notifier
	cfg         *config.SweeperConfig
}

func NewSweeperService(db *sql.DB, redisClient *redis.Client, provisioner *ProvisionerService, notifier Notifier) *SweeperService {
	return &SweeperService{
		db:          db,
		redis:       redisClient,
		provisioner: provisioner,
		notifier:    notifier,
		cfg:         config.LoadSweeperConfig(),
	}
}

// Start runs the sweep on a fixed period until the context is cancelled.
// Each run completes before the next tick is considered, so runs never
// overlap themselves.
func (s *SweeperService) Start(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	log.Printf("[SWEEPER] Started, interval %s", s.cfg.Interval)
	for {
		select {
		case <-ctx.Done():
			log.Println("[SWEEPER] Stopped")
			return
		case <-ticker.C:
			if _, err := s.RunSweep(ctx); err != nil {
				log.Printf("[SWEEPER] Sweep failed: %v", err)
			}
		}
	}
}

// RunSweep performs one pass and returns how many subscriptions it
// deactivated.
func (s *SweeperService) RunSweep(ctx context.Context) (int, error) {
	expired, err := s.fetchExpired(ctx)
	if err != nil {
		return 0, err
	}

	deactivated := 0
	for _, sub := range expired {
		done, err := s.deactivate(ctx, sub.SubscriptionID)
		if err != nil {
			log.Printf("[SWEEPER] Deactivate subscription %d failed: %v", sub.SubscriptionID, err)
			continue
		}
		if !done {
			// A concurrent pass got there first; it owns the revoke and
			// the notification.
			continue
		}
		deactivated++

		if sub.KeyRef.Valid && sub.KeyRef.String != "" {
			s.provisioner.Revoke(ctx, sub.KeyRef.String)
		}

		s.notify(ctx, sub)
	}

	log.Printf("[SWEEPER] Sweep complete: %d expired, %d deactivated", len(expired), deactivated)
	return deactivated, nil
}

func (s *SweeperService) fetchExpired(ctx context.Context) ([]expiredSubscription, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.account_id, a.external_user_ref, s.tariff_id, k.external_key_ref
		FROM subscriptions s
		INNER JOIN accounts a ON a.id = s.account_id
		LEFT JOIN access_keys k ON k.subscription_id = s.id AND k.active = TRUE AND k.provisioned = TRUE
		WHERE s.active = TRUE AND s.end_at < $1
		ORDER BY s.end_at`,
		time.Now())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	expired := []expiredSubscription{}
	for rows.Next() {
		var sub expiredSubscription
		if err := rows.Scan(&sub.SubscriptionID, &sub.AccountID, &sub.ExternalUserRef,
			&sub.TariffID, &sub.KeyRef); err != nil {
			return nil, err
		}
		expired = append(expired, sub)
	}
	return expired, rows.Err()
}

// deactivate flips the subscription and its key off in one transaction.
// Returns false without error when the active guard shows another pass
// already handled the row, so the caller neither counts nor re-notifies.
func (s *SweeperService) deactivate(ctx context.Context, subscriptionID int64) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE subscriptions SET active = FALSE WHERE id = $1 AND active = TRUE`,
		subscriptionID)
	if err != nil {
		return false, err
	}

	if n, err := result.RowsAffected(); err != nil {
		return false, err
	} else if n == 0 {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE access_keys SET active = FALSE WHERE subscription_id = $1`,
		subscriptionID); err != nil {
		return false, err
	}

	return true, tx.Commit()
}

// notify tells the user their subscription expired. Best effort: errors
// are logged and the event is queued to redis for out-of-band delivery
// when direct delivery fails.
func (s *SweeperService) notify(ctx context.Context, sub expiredSubscription) {
	text := "Your VPN subscription has expired. Renew it to restore access."

	if s.notifier != nil {
		if err := s.notifier.Send(ctx, sub.ExternalUserRef, text); err == nil {
			return
		} else {
			log.Printf("[SWEEPER] Notify %s failed: %v", sub.ExternalUserRef, err)
		}
	}

	if s.redis == nil {
		return
	}
	payload, err := json.Marshal(map[string]any{
		"external_user_ref": sub.ExternalUserRef,
		"subscription_id":   sub.SubscriptionID,
		"tariff_id":         sub.TariffID,
		"text":              text,
	})
	if err != nil {
		return
	}
	if err := s.redis.RPush(ctx, "notify_queue", payload).Err(); err != nil {
		log.Printf("[SWEEPER] Queue notification failed: %v", err)
	}
}
