// Package notify delivers new-listing digests over the channels an alert
// has configured: email, telegram and webhooks.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vincentgaul/VintScout/internal/model"
	"github.com/vincentgaul/VintScout/internal/vinted"
)

// Channel delivers one digest over one transport.
type Channel interface {
	Name() string
	Send(ctx context.Context, alert *model.Alert, items []vinted.Item, settings ChannelSettings) error
}

// ChannelSettings is the per-alert configuration for one channel, decoded
// from the alert's notification config JSON.
type ChannelSettings struct {
	Enabled bool   `json:"enabled"`
	Address string `json:"address,omitempty"` // email recipient
	ChatID  string `json:"chat_id,omitempty"` // telegram chat
	URL     string `json:"url,omitempty"`     // webhook target
}

type alertChannels map[string]ChannelSettings

// NotifiedMarker stamps delivered ledger entries.
type NotifiedMarker interface {
	MarkNotified(ctx context.Context, alertID string, itemIDs []string, at time.Time) error
}

// Fanout dispatches a digest to every enabled channel. One channel failing
// never blocks the others; the combined error is reported but callers treat
// delivery as best effort.
type Fanout struct {
	channels []Channel
	marker   NotifiedMarker
	logger   *slog.Logger
}

func NewFanout(logger *slog.Logger, marker NotifiedMarker, channels ...Channel) *Fanout {
	return &Fanout{
		channels: channels,
		marker:   marker,
		logger:   logger.With(slog.String("component", "notify")),
	}
}

// Notify reads the alert's channel config and delivers the digest on every
// enabled channel. Entries that went out on at least one channel get their
// notified_at stamped.
func (f *Fanout) Notify(ctx context.Context, alert *model.Alert, items []vinted.Item) error {
	if len(items) == 0 {
		return nil
	}

	cfg := alertChannels{}
	if alert.NotificationConfig != "" {
		if err := json.Unmarshal([]byte(alert.NotificationConfig), &cfg); err != nil {
			return fmt.Errorf("notification config for alert %s: %w", alert.ID, err)
		}
	}

	var errs []error
	delivered := false
	for _, ch := range f.channels {
		settings, ok := cfg[ch.Name()]
		if !ok || !settings.Enabled {
			continue
		}
		if err := ch.Send(ctx, alert, items, settings); err != nil {
			f.logger.Warn("channel delivery failed",
				slog.String("channel", ch.Name()),
				slog.String("alert_id", alert.ID),
				slog.String("error", err.Error()))
			errs = append(errs, fmt.Errorf("%s: %w", ch.Name(), err))
			continue
		}
		delivered = true
		f.logger.Info("digest delivered",
			slog.String("channel", ch.Name()),
			slog.String("alert_id", alert.ID),
			slog.Int("items", len(items)))
	}

	if delivered && f.marker != nil {
		ids := make([]string, 0, len(items))
		for _, item := range items {
			ids = append(ids, item.ID)
		}
		if err := f.marker.MarkNotified(ctx, alert.ID, ids, time.Now()); err != nil {
			f.logger.Warn("marking notified entries failed",
				slog.String("alert_id", alert.ID),
				slog.String("error", err.Error()))
		}
	}

	return errors.Join(errs...)
}
