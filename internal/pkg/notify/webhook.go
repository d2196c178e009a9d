package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/vincentgaul/VintScout/internal/model"
	"github.com/vincentgaul/VintScout/internal/vinted"
)

// WebhookChannel POSTs the digest as JSON to a caller-supplied URL.
type WebhookChannel struct {
	http   *http.Client
	logger *slog.Logger
}

func NewWebhookChannel(logger *slog.Logger) *WebhookChannel {
	return &WebhookChannel{
		http:   &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

func (c *WebhookChannel) Name() string { return "webhook" }

type webhookPayload struct {
	AlertID   string        `json:"alert_id"`
	AlertName string        `json:"alert_name"`
	NewItems  []vinted.Item `json:"new_items"`
	Count     int           `json:"count"`
	SentAt    time.Time     `json:"sent_at"`
}

func (c *WebhookChannel) Send(ctx context.Context, alert *model.Alert, items []vinted.Item, settings ChannelSettings) error {
	if settings.URL == "" {
		c.logger.Warn("webhook url empty, skip notification",
			slog.String("alert_id", alert.ID))
		return nil
	}

	body, err := json.Marshal(webhookPayload{
		AlertID:   alert.ID,
		AlertName: alert.Name,
		NewItems:  items,
		Count:     len(items),
		SentAt:    time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, settings.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "VintScout-Webhook/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("webhook status %d: %s", resp.StatusCode, snippet)
	}
	return nil
}
