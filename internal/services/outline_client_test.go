package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/vpnvault/backend/internal/config"
)

func newTestOutlineServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *OutlineClient) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewOutlineClient(&config.OutlineConfig{
		APIURL:  server.URL,
		APIKey:  "test-api-key",
		Timeout: 2 * time.Second,
	})
	return server, client
}

func TestOutlineClient_CreateKey(t *testing.T) {
	t.Run("creates a key", func(t *testing.T) {
		_, client := newTestOutlineServer(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/access-keys", r.URL.Path)
			assert.Equal(t, "Bearer test-api-key", r.Header.Get("Authorization"))

			var payload map[string]any
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			assert.Equal(t, "tg_12345-1month", payload["name"])

			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(RemoteKey{ID: "7", Name: "tg_12345-1month", AccessURL: "ss://real-key"})
		})

		key, err := client.CreateKey(context.Background(), "tg_12345-1month", 0)
		assert.NoError(t, err)
		assert.Equal(t, "7", key.ID)
		assert.Equal(t, "ss://real-key", key.AccessURL)
	})

	t.Run("unexpected status", func(t *testing.T) {
		_, client := newTestOutlineServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})

		_, err := client.CreateKey(context.Background(), "tg_12345-1month", 0)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "status 500")
	})
}

func TestOutlineClient_DeleteKey(t *testing.T) {
	_, client := newTestOutlineServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/access-keys/7", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	})

	err := client.DeleteKey(context.Background(), "7")
	assert.NoError(t, err)
}

func TestOutlineClient_ListKeys(t *testing.T) {
	_, client := newTestOutlineServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/access-keys", r.URL.Path)
		json.NewEncoder(w).Encode(map[string][]RemoteKey{
			"accessKeys": {
				{ID: "7", Name: "tg_12345-1month", AccessURL: "ss://real-key"},
				{ID: "8", Name: "tg_67890-trial", AccessURL: "ss://trial-key"},
			},
		})
	})

	keys, err := client.ListKeys(context.Background())
	assert.NoError(t, err)
	assert.Len(t, keys, 2)
	assert.Equal(t, "tg_67890-trial", keys[1].Name)
}
