package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vincentgaul/VintScout/internal/config"
	"github.com/vincentgaul/VintScout/internal/model"
	"github.com/vincentgaul/VintScout/internal/vinted"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubChannel struct {
	name  string
	err   error
	calls int
	last  []vinted.Item
}

func (s *stubChannel) Name() string { return s.name }

func (s *stubChannel) Send(ctx context.Context, alert *model.Alert, items []vinted.Item, settings ChannelSettings) error {
	s.calls++
	s.last = items
	return s.err
}

type stubMarker struct {
	mu      sync.Mutex
	alertID string
	itemIDs []string
	calls   int
}

func (m *stubMarker) MarkNotified(ctx context.Context, alertID string, itemIDs []string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.alertID = alertID
	m.itemIDs = itemIDs
	return nil
}

func digestItems() []vinted.Item {
	return []vinted.Item{
		{ID: "1", Title: "Wool coat", Price: 45.5, Currency: "EUR", URL: "https://example.test/1"},
		{ID: "2", Title: "Denim jacket", Price: 30, Currency: "EUR", URL: "https://example.test/2"},
	}
}

func TestFanout_DeliversToEnabledChannelsOnly(t *testing.T) {
	email := &stubChannel{name: "email"}
	telegram := &stubChannel{name: "telegram"}
	marker := &stubMarker{}

	f := NewFanout(testLogger(), marker, email, telegram)
	alert := &model.Alert{
		ID:   "a1",
		Name: "coats",
		NotificationConfig: `{
			"email": {"enabled": true, "address": "me@example.test"},
			"telegram": {"enabled": false, "chat_id": "42"}
		}`,
	}

	if err := f.Notify(context.Background(), alert, digestItems()); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if email.calls != 1 || len(email.last) != 2 {
		t.Errorf("email: calls=%d items=%d", email.calls, len(email.last))
	}
	if telegram.calls != 0 {
		t.Errorf("disabled telegram was called")
	}
	if marker.calls != 1 || marker.alertID != "a1" || len(marker.itemIDs) != 2 {
		t.Errorf("marker: %+v", marker)
	}
}

func TestFanout_ChannelFailureDoesNotBlockOthers(t *testing.T) {
	email := &stubChannel{name: "email", err: errors.New("smtp down")}
	webhook := &stubChannel{name: "webhook"}
	marker := &stubMarker{}

	f := NewFanout(testLogger(), marker, email, webhook)
	alert := &model.Alert{
		ID: "a1",
		NotificationConfig: `{
			"email": {"enabled": true, "address": "me@example.test"},
			"webhook": {"enabled": true, "url": "https://hooks.example.test/x"}
		}`,
	}

	err := f.Notify(context.Background(), alert, digestItems())
	if err == nil {
		t.Fatal("expected combined error for failed channel")
	}
	if webhook.calls != 1 {
		t.Errorf("webhook skipped after email failure")
	}
	// One channel succeeded, so entries still get stamped.
	if marker.calls != 1 {
		t.Errorf("marker calls = %d, want 1", marker.calls)
	}
}

func TestFanout_NoItemsNoDelivery(t *testing.T) {
	email := &stubChannel{name: "email"}
	marker := &stubMarker{}
	f := NewFanout(testLogger(), marker, email)

	alert := &model.Alert{ID: "a1", NotificationConfig: `{"email": {"enabled": true}}`}
	if err := f.Notify(context.Background(), alert, nil); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if email.calls != 0 || marker.calls != 0 {
		t.Errorf("empty digest was delivered")
	}
}

func TestFanout_BadConfigIsAnError(t *testing.T) {
	f := NewFanout(testLogger(), nil, &stubChannel{name: "email"})
	alert := &model.Alert{ID: "a1", NotificationConfig: `{not json`}
	if err := f.Notify(context.Background(), alert, digestItems()); err == nil {
		t.Fatal("expected config parse error")
	}
}

func TestWebhookChannel_PostsDigest(t *testing.T) {
	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode payload: %v", err)
		}
	}))
	defer srv.Close()

	ch := NewWebhookChannel(testLogger())
	alert := &model.Alert{ID: "a1", Name: "coats"}
	err := ch.Send(context.Background(), alert, digestItems(), ChannelSettings{Enabled: true, URL: srv.URL})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got.AlertID != "a1" || got.Count != 2 || len(got.NewItems) != 2 {
		t.Errorf("payload = %+v", got)
	}
}

func TestWebhookChannel_Non2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ch := NewWebhookChannel(testLogger())
	err := ch.Send(context.Background(), &model.Alert{ID: "a1"}, digestItems(), ChannelSettings{URL: srv.URL})
	if err == nil {
		t.Fatal("expected error on 502")
	}
}

func TestTelegramChannel_SendsMessage(t *testing.T) {
	var gotPath string
	var payload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&payload)
		_, _ = w.Write([]byte(`{"ok": true}`))
	}))
	defer srv.Close()

	ch := NewTelegramChannel(config.TelegramConfig{BotToken: "tok", APIBase: srv.URL}, testLogger())
	alert := &model.Alert{ID: "a1", Name: "coats"}
	err := ch.Send(context.Background(), alert, digestItems(), ChannelSettings{ChatID: "42"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if gotPath != "/bottok/sendMessage" {
		t.Errorf("path = %q", gotPath)
	}
	if payload["chat_id"] != "42" {
		t.Errorf("chat_id = %v", payload["chat_id"])
	}
	text, _ := payload["text"].(string)
	if text == "" {
		t.Error("empty message text")
	}
}

func TestTelegramChannel_MissingTokenSkips(t *testing.T) {
	ch := NewTelegramChannel(config.TelegramConfig{}, testLogger())
	err := ch.Send(context.Background(), &model.Alert{ID: "a1"}, digestItems(), ChannelSettings{ChatID: "42"})
	if err != nil {
		t.Fatalf("missing token should skip, not fail: %v", err)
	}
}

func TestBuildDigestHTML_EscapesContent(t *testing.T) {
	alert := &model.Alert{Name: `<script>alert("x")</script>`, SearchText: "coat & jacket"}
	items := []vinted.Item{{ID: "1", Title: `A "nice" <b>coat</b>`, Price: 10, Currency: "EUR"}}

	html := buildDigestHTML(alert, items)
	if strings.Contains(html, "<script>") {
		t.Errorf("unescaped script tag in digest")
	}
	if !strings.Contains(html, "&lt;b&gt;coat&lt;/b&gt;") {
		t.Errorf("item title not escaped")
	}
}
