package services

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"image/png"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/skip2/go-qrcode"
)

// KeyQRService renders an access key's connection secret as a QR code so
// VPN clients can import it by scanning.
type KeyQRService struct {
	db    *sql.DB
	redis *redis.Client
}

func NewKeyQRService(db *sql.DB, redisClient *redis.Client) *KeyQRService {
	return &KeyQRService{
		db:    db,
		redis: redisClient,
	}
}

// GenerateKeyQR returns a base64 PNG of the key's connection secret. The
// key must belong to the account and be active. Rendered images are cached
// briefly in redis.
func (s *KeyQRService) GenerateKeyQR(ctx context.Context, accountID, keyID int64) (string, error) {
	cacheKey := fmt.Sprintf("keyqr:%d:%d", accountID, keyID)
	if s.redis != nil {
		if cached, err := s.redis.Get(ctx, cacheKey).Result(); err == nil {
			return cached, nil
		}
	}

	var secret string
	err := s.db.QueryRowContext(ctx, `
		SELECT k.access_secret
		FROM access_keys k
		INNER JOIN subscriptions s ON s.id = k.subscription_id
		WHERE k.id = $1 AND s.account_id = $2 AND k.active = TRUE`,
		keyID, accountID).Scan(&secret)

	if err == sql.ErrNoRows {
		return "", errors.New("access key not found")
	}
	if err != nil {
		return "", err
	}

	qr, err := qrcode.New(secret, qrcode.Medium)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(256)); err != nil {
		return "", err
	}

	qrImage := base64.StdEncoding.EncodeToString(buf.Bytes())

	if s.redis != nil {
		s.redis.Set(ctx, cacheKey, qrImage, 5*time.Minute)
	}

	return qrImage, nil
}
