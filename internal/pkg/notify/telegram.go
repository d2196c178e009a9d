package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/vincentgaul/VintScout/internal/config"
	"github.com/vincentgaul/VintScout/internal/model"
	"github.com/vincentgaul/VintScout/internal/vinted"
)

const telegramAPIBase = "https://api.telegram.org"

// TelegramChannel posts digests through the Bot API's sendMessage call.
type TelegramChannel struct {
	cfg    config.TelegramConfig
	http   *http.Client
	logger *slog.Logger
}

func NewTelegramChannel(cfg config.TelegramConfig, logger *slog.Logger) *TelegramChannel {
	if cfg.APIBase == "" {
		cfg.APIBase = telegramAPIBase
	}
	return &TelegramChannel{
		cfg:    cfg,
		http:   &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

func (c *TelegramChannel) Name() string { return "telegram" }

func (c *TelegramChannel) Send(ctx context.Context, alert *model.Alert, items []vinted.Item, settings ChannelSettings) error {
	if c.cfg.BotToken == "" {
		c.logger.Warn("telegram bot token missing, skip notification")
		return nil
	}
	if settings.ChatID == "" {
		c.logger.Warn("telegram chat id empty, skip notification",
			slog.String("alert_id", alert.ID))
		return nil
	}

	payload := map[string]any{
		"chat_id":                  settings.ChatID,
		"text":                     buildTelegramText(alert, items),
		"parse_mode":               "HTML",
		"disable_web_page_preview": len(items) > 1,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", c.cfg.APIBase, c.cfg.BotToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("telegram status %d: %s", resp.StatusCode, snippet)
	}
	return nil
}

func buildTelegramText(alert *model.Alert, items []vinted.Item) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%d new for %s</b>\n\n", len(items), escapeTelegram(alert.Name))

	// Telegram caps messages at 4096 chars; show the first few and summarize.
	const maxListed = 8
	for i, item := range items {
		if i == maxListed {
			fmt.Fprintf(&b, "… and %d more\n", len(items)-maxListed)
			break
		}
		fmt.Fprintf(&b, "• <a href=\"%s\">%s</a> · %.2f %s\n",
			item.URL, escapeTelegram(item.Title), item.Price, escapeTelegram(item.Currency))
	}
	return b.String()
}

func escapeTelegram(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}
