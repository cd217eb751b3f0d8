package models

import (
	"time"
)

// Tariff is a static catalog entry; it is configured, not persisted.
type Tariff struct {
	ID             string `json:"id"`
	DisplayName    string `json:"displayName"`
	Price          int64  `json:"price"` // minor units
	DurationDays   int    `json:"durationDays"`
	DataLimitBytes int64  `json:"dataLimitBytes"`
	IsTrial        bool   `json:"isTrial"`
}

// Subscription is a time-boxed VPN entitlement. EndAt >= StartAt always.
type Subscription struct {
	ID        int64     `json:"id" db:"id"`
	AccountID int64     `json:"account_id" db:"account_id"`
	TariffID  string    `json:"tariff_id" db:"tariff_id"`
	PricePaid int64     `json:"price_paid" db:"price_paid"`
	StartAt   time.Time `json:"start_at" db:"start_at"`
	EndAt     time.Time `json:"end_at" db:"end_at"`
	Active    bool      `json:"active" db:"active"`
}

// AccessKey is the credential handed to the end user; one per subscription.
// Provisioned is false when the key is a local placeholder issued while the
// remote key service was unreachable.
type AccessKey struct {
	ID             int64     `json:"id" db:"id"`
	SubscriptionID int64     `json:"subscription_id" db:"subscription_id"`
	ExternalKeyRef string    `json:"external_key_ref" db:"external_key_ref"`
	AccessSecret   string    `json:"access_secret" db:"access_secret"`
	Provisioned    bool      `json:"provisioned" db:"provisioned"`
	Active         bool      `json:"active" db:"active"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}
