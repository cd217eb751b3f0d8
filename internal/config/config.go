package config

import (
	"os"
	"strconv"
	"time"
)

// ProviderConfig covers the external payment provider API.
type ProviderConfig struct {
	BaseURL   string
	ShopID    string
	SecretKey string
	ReturnURL string
	Currency  string
	Timeout   time.Duration
}

// OutlineConfig covers the remote access-key management API.
type OutlineConfig struct {
	APIURL        string
	APIKey        string
	Timeout       time.Duration
	RetryBackoff  time.Duration
	InsecureTLS   bool // Outline management APIs commonly use self-signed certs
	FallbackHosts []string
}

// SweeperConfig controls the subscription expiry sweep.
type SweeperConfig struct {
	Interval time.Duration
}

func LoadProviderConfig() *ProviderConfig {
	return &ProviderConfig{
		BaseURL:   getEnv("PAYMENT_API_URL", "https://api.yookassa.ru/v3"),
		ShopID:    getEnv("PAYMENT_SHOP_ID", ""),
		SecretKey: getEnv("PAYMENT_SECRET_KEY", ""),
		ReturnURL: getEnv("PAYMENT_RETURN_URL", "https://t.me/vpnvault_bot"),
		Currency:  getEnv("PAYMENT_CURRENCY", "RUB"),
		Timeout:   getEnvAsDuration("PAYMENT_TIMEOUT", 15*time.Second),
	}
}

func LoadOutlineConfig() *OutlineConfig {
	return &OutlineConfig{
		APIURL:        getEnv("OUTLINE_API_URL", ""),
		APIKey:        getEnv("OUTLINE_API_KEY", ""),
		Timeout:       getEnvAsDuration("OUTLINE_TIMEOUT", 10*time.Second),
		RetryBackoff:  getEnvAsDuration("OUTLINE_RETRY_BACKOFF", 2*time.Second),
		InsecureTLS:   getEnvAsBool("OUTLINE_INSECURE_TLS", true),
		FallbackHosts: []string{"us.vpnvault.io", "de.vpnvault.io", "sg.vpnvault.io"},
	}
}

func LoadSweeperConfig() *SweeperConfig {
	return &SweeperConfig{
		Interval: getEnvAsDuration("SWEEP_INTERVAL", 24*time.Hour),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if boolVal, err := strconv.ParseBool(val); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			return duration
		}
	}
	return defaultVal
}
