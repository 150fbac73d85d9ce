// Package notifier delivers human-readable event messages to external
// channels. Delivery failures are reported to the caller but never block or
// fail the operation that triggered them.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

type Notifier interface {
	Notify(ctx context.Context, content string) error
}

// NopNotifier discards every message. Used when no webhook is configured so
// callers never need a nil check.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, string) error { return nil }

// DiscordNotifier posts messages to a Discord webhook.
type DiscordNotifier struct {
	WebhookURL string

	// Client is used for webhook delivery. A nil Client falls back to a
	// 10 second timeout client.
	Client *http.Client
}

func (d *DiscordNotifier) Notify(ctx context.Context, content string) error {
	if d.WebhookURL == "" {
		return fmt.Errorf("webhook URL is not set")
	}

	payload := map[string]string{"content": content}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook failed with status %d", resp.StatusCode)
	}

	return nil
}

func (d *DiscordNotifier) httpClient() *http.Client {
	if d.Client != nil {
		return d.Client
	}

	return &http.Client{Timeout: 10 * time.Second}
}
