package services

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/vpnvault/backend/internal/config"
)

// RemoteKey is an access key as reported by the remote key service.
type RemoteKey struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AccessURL string `json:"accessUrl"`
	Port      int    `json:"port,omitempty"`
	Method    string `json:"method,omitempty"`
}

// KeyProviderClient is the remote access-key service contract (Outline
// management API).
type KeyProviderClient interface {
	CreateKey(ctx context.Context, name string, limitBytes int64) (*RemoteKey, error)
	DeleteKey(ctx context.Context, keyRef string) error
	ListKeys(ctx context.Context) ([]RemoteKey, error)
}

// OutlineClient talks to an Outline server's management API.
type OutlineClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewOutlineClient(cfg *config.OutlineConfig) *OutlineClient {
	transport := http.DefaultTransport
	if cfg.InsecureTLS {
		transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}
	return &OutlineClient{
		baseURL: strings.TrimRight(cfg.APIURL, "/"),
		apiKey:  cfg.APIKey,
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
	}
}

func (c *OutlineClient) CreateKey(ctx context.Context, name string, limitBytes int64) (*RemoteKey, error) {
	payload := map[string]any{"name": name}
	if limitBytes > 0 {
		payload["limit"] = map[string]int64{"bytes": limitBytes}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/access-keys", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("key service returned status %d", resp.StatusCode)
	}

	var key RemoteKey
	if err := json.NewDecoder(resp.Body).Decode(&key); err != nil {
		return nil, err
	}

	log.Printf("[OUTLINE] Created key %s (%s)", key.ID, name)
	return &key, nil
}

func (c *OutlineClient) DeleteKey(ctx context.Context, keyRef string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/access-keys/"+keyRef, nil)
	if err != nil {
		return err
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("key service returned status %d", resp.StatusCode)
	}

	log.Printf("[OUTLINE] Deleted key %s", keyRef)
	return nil
}

func (c *OutlineClient) ListKeys(ctx context.Context) ([]RemoteKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/access-keys", nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("key service returned status %d", resp.StatusCode)
	}

	var result struct {
		AccessKeys []RemoteKey `json:"accessKeys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return result.AccessKeys, nil
}

func (c *OutlineClient) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
}
