package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// WebhookMessage is the payload accepted by Slack incoming webhooks
type WebhookMessage struct {
	Text string `json:"text"`
}

// Webhook posts messages to a single incoming-webhook URL
type Webhook struct {
	url    string
	client *http.Client
	logger zerolog.Logger
}

// NewWebhook creates a webhook client with the given request timeout
func NewWebhook(url string, timeout time.Duration, logger zerolog.Logger) *Webhook {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger.With().Str("comp", "webhook").Logger(),
	}
}

// Post sends text as one message. Delivery is attempted once.
func (w *Webhook) Post(ctx context.Context, text string) error {
	payload, err := json.Marshal(WebhookMessage{Text: text})
	if err != nil {
		return fmt.Errorf("encoding webhook message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	w.logger.Debug().Int("bytes", len(payload)).Msg("webhook delivered")
	return nil
}
