package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// maxTelegramMessage is the bot API's hard message length limit.
const maxTelegramMessage = 4096

// Telegram is the universal fallback channel: a bot-API client used for
// fallback notifications, confirmation questions, and escalation updates.
type Telegram struct {
	token   string
	chatID  string
	baseURL string
	client  *http.Client
}

// NewTelegram creates a Telegram notifier. An empty token or chat id
// yields a notifier whose Notify always fails, which surfaces as a
// configuration problem at first use rather than at startup.
func NewTelegram(token, chatID string, client *http.Client) *Telegram {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Telegram{
		token:   token,
		chatID:  chatID,
		baseURL: "https://api.telegram.org",
		client:  client,
	}
}

// SetBaseURL overrides the bot API host, for tests.
func (t *Telegram) SetBaseURL(url string) {
	t.baseURL = url
}

// Configured reports whether credentials are present.
func (t *Telegram) Configured() bool {
	return t.token != "" && t.chatID != ""
}

// Notify sends one message on the fallback channel. Messages over the
// API limit are truncated.
func (t *Telegram) Notify(ctx context.Context, message string) error {
	if !t.Configured() {
		return fmt.Errorf("telegram not configured")
	}

	if len(message) > maxTelegramMessage {
		message = message[:maxTelegramMessage-20] + "\n...truncated"
	}

	body, err := json.Marshal(map[string]any{
		"chat_id":                  t.chatID,
		"text":                     message,
		"disable_web_page_preview": true,
	})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API status %d", resp.StatusCode)
	}
	return nil
}

var _ Notifier = (*Telegram)(nil)
