package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/vpnvault/backend/internal/config"
)

// Provider-side payment statuses.
const (
	ProviderStatusPending   = "pending"
	ProviderStatusSucceeded = "succeeded"
	ProviderStatusFailed    = "canceled"
)

// ProviderPayment is what the external provider reports about a payment.
type ProviderPayment struct {
	Ref             string
	Status          string
	Amount          int64
	ConfirmationURL string
}

// PaymentProviderClient is the external payment provider contract.
type PaymentProviderClient interface {
	CreatePayment(ctx context.Context, amount int64, memo string, metadata map[string]string) (*ProviderPayment, error)
	GetPaymentStatus(ctx context.Context, ref string) (*ProviderPayment, error)
}

// HTTPPaymentProvider implements PaymentProviderClient against a
// YooMoney-style REST API.
type HTTPPaymentProvider struct {
	cfg    *config.ProviderConfig
	client *http.Client
}

func NewHTTPPaymentProvider(cfg *config.ProviderConfig) *HTTPPaymentProvider {
	return &HTTPPaymentProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

func (p *HTTPPaymentProvider) CreatePayment(ctx context.Context, amount int64, memo string, metadata map[string]string) (*ProviderPayment, error) {
	payload := map[string]any{
		"amount": map[string]string{
			"value":    fmt.Sprintf("%d.%02d", amount/100, amount%100),
			"currency": p.cfg.Currency,
		},
		"capture":     true,
		"description": memo,
		"confirmation": map[string]string{
			"type":       "redirect",
			"return_url": p.cfg.ReturnURL,
		},
		"metadata": metadata,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/payments", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(p.cfg.ShopID, p.cfg.SecretKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotence-Key", uuid.NewString())

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("provider returned status %d", resp.StatusCode)
	}

	var result struct {
		ID           string `json:"id"`
		Status       string `json:"status"`
		Confirmation struct {
			ConfirmationURL string `json:"confirmation_url"`
		} `json:"confirmation"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	log.Printf("[PROVIDER] Created payment %s, status: %s", result.ID, result.Status)
	return &ProviderPayment{
		Ref:             result.ID,
		Status:          result.Status,
		Amount:          amount,
		ConfirmationURL: result.Confirmation.ConfirmationURL,
	}, nil
}

func (p *HTTPPaymentProvider) GetPaymentStatus(ctx context.Context, ref string) (*ProviderPayment, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.BaseURL+"/payments/"+ref, nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(p.cfg.ShopID, p.cfg.SecretKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("provider returned status %d", resp.StatusCode)
	}

	var result struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		Amount struct {
			Value string `json:"value"`
		} `json:"amount"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &ProviderPayment{Ref: result.ID, Status: result.Status}, nil
}
