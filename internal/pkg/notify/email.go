package notify

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"gopkg.in/gomail.v2"

	"github.com/vincentgaul/VintScout/internal/config"
	"github.com/vincentgaul/VintScout/internal/model"
	"github.com/vincentgaul/VintScout/internal/vinted"
)

// EmailChannel sends new-listing digests over SMTP.
type EmailChannel struct {
	cfg    config.EmailConfig
	logger *slog.Logger
}

func NewEmailChannel(cfg config.EmailConfig, logger *slog.Logger) *EmailChannel {
	return &EmailChannel{cfg: cfg, logger: logger}
}

func (c *EmailChannel) Name() string { return "email" }

func (c *EmailChannel) Send(ctx context.Context, alert *model.Alert, items []vinted.Item, settings ChannelSettings) error {
	if c.cfg.SMTPHost == "" || c.cfg.FromEmail == "" {
		c.logger.Warn("email config missing, skip notification")
		return nil
	}
	to := strings.TrimSpace(settings.Address)
	if to == "" {
		c.logger.Warn("email recipient empty, skip notification",
			slog.String("alert_id", alert.ID))
		return nil
	}

	m := gomail.NewMessage()
	m.SetHeader("From", c.cfg.FromEmail)
	m.SetHeader("To", to)
	m.SetHeader("Subject", fmt.Sprintf("[VintScout] %d new for %q", len(items), alert.Name))
	m.SetBody("text/html", buildDigestHTML(alert, items))

	d := gomail.NewDialer(c.cfg.SMTPHost, c.cfg.SMTPPort, c.cfg.SMTPUser, c.cfg.SMTPPass)
	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}

func buildDigestHTML(alert *model.Alert, items []vinted.Item) string {
	var b strings.Builder
	b.WriteString(`<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8" />
<style>
  body { font-family: Arial, sans-serif; background: #f6f7fb; color: #1f2937; }
  .card { max-width: 600px; margin: 24px auto; background: #ffffff; border-radius: 12px; overflow: hidden; border: 1px solid #e5e7eb; }
  .header { background: #0f172a; color: #ffffff; padding: 16px 20px; font-size: 16px; font-weight: bold; }
  .item { padding: 16px 20px; border-bottom: 1px solid #e5e7eb; }
  .item img { max-width: 140px; border-radius: 8px; float: left; margin-right: 16px; }
  .price { font-size: 20px; font-weight: bold; color: #0f766e; }
  .meta { font-size: 13px; color: #6b7280; margin: 6px 0; }
  .cta { display: inline-block; padding: 8px 14px; background: #22c55e; color: #fff; text-decoration: none; border-radius: 8px; font-weight: bold; }
  .footer { padding: 16px 20px; font-size: 12px; color: #6b7280; }
  .clear { clear: both; }
</style>
</head>
<body>
  <div class="card">
`)
	fmt.Fprintf(&b, `    <div class="header">[VintScout] %d new listings for %s</div>
`, len(items), html.EscapeString(alert.Name))

	for _, item := range items {
		b.WriteString(`    <div class="item">` + "\n")
		if item.ImageURL != "" {
			fmt.Fprintf(&b, `      <img src="%s" alt="" />`+"\n", html.EscapeString(item.ImageURL))
		}
		fmt.Fprintf(&b, `      <div class="price">%.2f %s</div>`+"\n", item.Price, html.EscapeString(item.Currency))
		fmt.Fprintf(&b, `      <div>%s</div>`+"\n", html.EscapeString(item.Title))
		fmt.Fprintf(&b, `      <div class="meta">%s</div>`+"\n",
			html.EscapeString(strings.Trim(strings.Join([]string{item.BrandName, item.Size, item.Condition}, " · "), " ·")))
		if item.URL != "" {
			fmt.Fprintf(&b, `      <a class="cta" href="%s" target="_blank">View listing</a>`+"\n", html.EscapeString(item.URL))
		}
		b.WriteString(`      <div class="clear"></div>` + "\n    </div>\n")
	}

	fmt.Fprintf(&b, `    <div class="footer">Search: %s</div>
  </div>
</body>
</html>`, html.EscapeString(alert.SearchText))
	return b.String()
}
