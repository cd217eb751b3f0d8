package services

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/vpnvault/backend/internal/config"
)

const keyCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// IssuedKey is the outcome of a provisioning attempt. Provisioned is false
// when the remote service was unreachable and the key is a local
// placeholder.
type IssuedKey struct {
	ExternalKeyRef string
	AccessSecret   string
	Provisioned    bool
}

// ProvisionerService issues and revokes credentials on the remote key
// service. Issuance never fails the caller: after one retry it falls back
// to a placeholder so a provider outage cannot lose a sale.
type ProvisionerService struct {
	db      *sql.DB
	client  KeyProviderClient
	cfg     *config.OutlineConfig
	catalog *config.TariffCatalog
}

func NewProvisionerService(db *sql.DB, client KeyProviderClient, cfg *config.OutlineConfig, catalog *config.TariffCatalog) *ProvisionerService {
	return &ProvisionerService{
		db:      db,
		client:  client,
		cfg:     cfg,
		catalog: catalog,
	}
}

// Issue requests a credential from the remote service, retrying once after
// a short backoff, and synthesizes a placeholder on persistent failure.
func (s *ProvisionerService) Issue(ctx context.Context, name string, dataLimitBytes int64) *IssuedKey {
	key, err := s.client.CreateKey(ctx, name, dataLimitBytes)
	if err != nil {
		log.Printf("[PROVISIONER] Create key failed, retrying: %v", err)
		select {
		case <-time.After(s.cfg.RetryBackoff):
		case <-ctx.Done():
			return s.placeholder(name)
		}
		key, err = s.client.CreateKey(ctx, name, dataLimitBytes)
	}

	if err != nil {
		log.Printf("[PROVISIONER] Create key failed after retry, issuing placeholder: %v", err)
		return s.placeholder(name)
	}

	return &IssuedKey{
		ExternalKeyRef: key.ID,
		AccessSecret:   key.AccessURL,
		Provisioned:    true,
	}
}

// Revoke deletes the credential on the remote service. Best effort:
// failures are logged, never propagated.
func (s *ProvisionerService) Revoke(ctx context.Context, externalKeyRef string) {
	if err := s.client.DeleteKey(ctx, externalKeyRef); err != nil {
		log.Printf("[PROVISIONER] Revoke %s failed (will remain orphaned remotely): %v", externalKeyRef, err)
	}
}

// SyncProvisioned repairs active placeholder keys. For each one it rebuilds
// the remote key name from the owning subscription, adopts a matching remote
// key if one already exists, and otherwise creates it. Returns how many rows
// were repaired.
func (s *ProvisionerService) SyncProvisioned(ctx context.Context) (int, error) {
	remote, err := s.client.ListKeys(ctx)
	if err != nil {
		return 0, fmt.Errorf("list remote keys: %w", err)
	}

	byName := make(map[string]RemoteKey, len(remote))
	for _, key := range remote {
		byName[key.Name] = key
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT k.id, a.external_user_ref, s.tariff_id
		FROM access_keys k
		INNER JOIN subscriptions s ON s.id = k.subscription_id
		INNER JOIN accounts a ON a.id = s.account_id
		WHERE k.provisioned = FALSE AND k.active = TRUE AND s.active = TRUE`)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	type pending struct {
		keyID    int64
		name     string
		tariffID string
	}
	var placeholders []pending
	for rows.Next() {
		var p pending
		var userRef string
		if err := rows.Scan(&p.keyID, &userRef, &p.tariffID); err != nil {
			return 0, err
		}
		p.name = fmt.Sprintf("%s-%s", userRef, p.tariffID)
		placeholders = append(placeholders, p)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	repaired := 0
	for _, p := range placeholders {
		key, ok := byName[p.name]
		if !ok {
			// The repaired key must carry the same data allowance the
			// purchase would have set.
			var limit int64
			if tariff, found := s.catalog.Get(p.tariffID); found {
				limit = tariff.DataLimitBytes
			}
			created, err := s.client.CreateKey(ctx, p.name, limit)
			if err != nil {
				// Still down for this one; later syncs will retry.
				log.Printf("[PROVISIONER] Repair of key %d failed: %v", p.keyID, err)
				continue
			}
			key = *created
		}

		if _, err := s.db.ExecContext(ctx, `
			UPDATE access_keys
			SET provisioned = TRUE, external_key_ref = $1, access_secret = $2
			WHERE id = $3 AND provisioned = FALSE`,
			key.ID, key.AccessURL, p.keyID); err != nil {
			return repaired, err
		}
		repaired++
	}

	if repaired > 0 {
		log.Printf("[PROVISIONER] Repaired %d placeholder keys", repaired)
	}
	return repaired, nil
}

// placeholder builds a locally synthesized connection string in the same
// shape as a real one. It does not route traffic; the purchase result is
// flagged degraded so the caller can tell the user.
func (s *ProvisionerService) placeholder(name string) *IssuedKey {
	password := make([]byte, 32)
	for i := range password {
		password[i] = keyCharset[rand.Intn(len(keyCharset))]
	}
	host := s.cfg.FallbackHosts[rand.Intn(len(s.cfg.FallbackHosts))]

	return &IssuedKey{
		ExternalKeyRef: "local_" + uuid.NewString()[:8],
		AccessSecret:   fmt.Sprintf("ss://chacha20-ietf-poly1305:%s@%s:443/?outline=1#%s", password, host, name),
		Provisioned:    false,
	}
}
