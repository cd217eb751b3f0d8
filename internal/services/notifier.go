package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/viper"
)

// Notifier delivers a short message to a user. Only the expiry sweeper
// uses it and failures are swallowed there, so implementations may be
// best-effort.
type Notifier interface {
	Send(ctx context.Context, accountExternalRef, text string) error
}

// TelegramNotifier sends messages through the Telegram Bot API; the
// account's external user reference is the chat id.
type TelegramNotifier struct {
	token  string
	client *http.Client
}

func NewTelegramNotifier() *TelegramNotifier {
	return &TelegramNotifier{
		token:  viper.GetString("telegram.bot_token"),
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (n *TelegramNotifier) Send(ctx context.Context, accountExternalRef, text string) error {
	payload, err := json.Marshal(map[string]string{
		"chat_id": accountExternalRef,
		"text":    text,
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", n.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("notifier returned status %d", resp.StatusCode)
	}
	return nil
}
