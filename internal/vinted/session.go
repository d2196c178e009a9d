package vinted

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/vincentgaul/VintScout/internal/config"
	"github.com/vincentgaul/VintScout/internal/pkg/metrics"
)

// headerProfile is one internally consistent browser identity. Mixing headers
// from different browsers is itself a fingerprint, so a session picks one
// profile at random and keeps it for its whole lifetime.
type headerProfile struct {
	UserAgent      string
	Accept         string
	AcceptLanguage string
	SecChUA        string
	SecChUAMobile  string
	SecChUAPlat    string
}

var headerProfiles = []headerProfile{
	{
		UserAgent:      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		Accept:         "application/json, text/plain, */*",
		AcceptLanguage: "en-US,en;q=0.9,fr;q=0.8",
		SecChUA:        `"Chromium";v="124", "Google Chrome";v="124", "Not-A.Brand";v="99"`,
		SecChUAMobile:  "?0",
		SecChUAPlat:    `"macOS"`,
	},
	{
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
		Accept:         "application/json, text/plain, */*",
		AcceptLanguage: "en-GB,en;q=0.9,de;q=0.7",
		SecChUA:        `"Chromium";v="123", "Google Chrome";v="123", "Not-A.Brand";v="99"`,
		SecChUAMobile:  "?0",
		SecChUAPlat:    `"Windows"`,
	},
	{
		UserAgent:      "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
		Accept:         "application/json, text/plain, */*",
		AcceptLanguage: "en-US,en;q=0.8",
		SecChUA:        `"Chromium";v="122", "Google Chrome";v="122", "Not-A.Brand";v="99"`,
		SecChUAMobile:  "?0",
		SecChUAPlat:    `"Linux"`,
	},
	{
		UserAgent:      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
		Accept:         "application/json, text/plain, */*",
		AcceptLanguage: "fr-FR,fr;q=0.9,en;q=0.8",
	},
}

// session owns the HTTP state for one client: cookie jar, a fixed header
// profile and the retry machinery.
type session struct {
	baseURL string
	http    *http.Client
	profile headerProfile
	cfg     config.VintedConfig
	logger  *slog.Logger
}

func newSession(baseURL string, cfg config.VintedConfig, logger *slog.Logger) (*session, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	return &session{
		baseURL: baseURL,
		http: &http.Client{
			Timeout: cfg.Timeout,
			Jar:     jar,
		},
		profile: headerProfiles[rand.Intn(len(headerProfiles))],
		cfg:     cfg,
		logger:  logger,
	}, nil
}

// bootstrap visits the marketplace root page to collect session cookies.
// The API rejects bare requests without them. Failure is logged but not
// fatal: the upstream sometimes answers anyway.
func (s *session) bootstrap(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL, nil)
	if err != nil {
		s.logger.Warn("session bootstrap request failed", slog.String("error", err.Error()))
		return
	}
	s.applyHeaders(req)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := s.http.Do(req)
	if err != nil {
		s.logger.Warn("session bootstrap failed",
			slog.String("base_url", s.baseURL),
			slog.String("error", err.Error()))
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode != http.StatusOK {
		s.logger.Warn("session bootstrap returned non-200",
			slog.String("base_url", s.baseURL),
			slog.Int("status", resp.StatusCode))
		return
	}
	s.logger.Debug("session bootstrapped", slog.String("base_url", s.baseURL))
}

func (s *session) applyHeaders(req *http.Request) {
	req.Header.Set("User-Agent", s.profile.UserAgent)
	req.Header.Set("Accept", s.profile.Accept)
	req.Header.Set("Accept-Language", s.profile.AcceptLanguage)
	req.Header.Set("Referer", s.baseURL+"/")
	req.Header.Set("Origin", s.baseURL)
	req.Header.Set("DNT", "1")
	req.Header.Set("Sec-Fetch-Dest", "empty")
	req.Header.Set("Sec-Fetch-Mode", "cors")
	req.Header.Set("Sec-Fetch-Site", "same-origin")
	if s.profile.SecChUA != "" {
		req.Header.Set("Sec-CH-UA", s.profile.SecChUA)
		req.Header.Set("Sec-CH-UA-Mobile", s.profile.SecChUAMobile)
		req.Header.Set("Sec-CH-UA-Platform", s.profile.SecChUAPlat)
	}
}

// getJSON executes one API call under the retry state machine and decodes the
// body into out.
//
// Per attempt: transient transport failures back off 2^attempt seconds and
// retry; 429 sleeps the server's Retry-After (default from config) and
// retries within the same budget; any other >=400 is terminal immediately;
// a 2xx body that fails to decode is terminal as MalformedResponseError.
func (s *session) getJSON(ctx context.Context, endpoint string, params url.Values, out any) error {
	reqURL := s.baseURL + endpoint
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	attempts := s.cfg.MaxRetries
	if attempts <= 0 {
		attempts = 3
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		s.applyHeaders(req)

		resp, err := s.http.Do(req)
		if err != nil {
			lastErr = err
			s.logger.Warn("request transport failure",
				slog.String("endpoint", endpoint),
				slog.Int("attempt", attempt+1),
				slog.String("error", err.Error()))
			if attempt < attempts-1 {
				if serr := s.sleep(ctx, time.Duration(1<<attempt)*time.Second); serr != nil {
					return s.terminal(attempts, lastErr)
				}
			}
			continue
		}

		body, readErr := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
		resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			retryAfter := parseRetryAfter(resp.Header, s.cfg.DefaultRetryAfter)
			metrics.UpstreamRetryAfter.Observe(retryAfter.Seconds())
			lastErr = &RateLimitError{RetryAfter: retryAfter, Attempts: attempt + 1}
			s.logger.Warn("rate limited by upstream",
				slog.String("endpoint", endpoint),
				slog.Int("attempt", attempt+1),
				slog.String("retry_after", retryAfter.String()))
			if attempt < attempts-1 {
				if serr := s.sleep(ctx, retryAfter); serr != nil {
					return s.terminal(attempts, lastErr)
				}
			}
			continue
		}

		if resp.StatusCode >= 400 {
			metrics.UpstreamRequestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()
			metrics.UpstreamErrorsTotal.WithLabelValues("upstream").Inc()
			return &UpstreamError{
				StatusCode: resp.StatusCode,
				Body:       sanitizeBody(body, s.cfg.MaxDiagnosticBody),
			}
		}

		if readErr != nil {
			lastErr = readErr
			if attempt < attempts-1 {
				if serr := s.sleep(ctx, time.Duration(1<<attempt)*time.Second); serr != nil {
					return s.terminal(attempts, lastErr)
				}
			}
			continue
		}

		if err := json.Unmarshal(body, out); err != nil {
			metrics.UpstreamErrorsTotal.WithLabelValues("malformed").Inc()
			return &MalformedResponseError{Err: err}
		}

		metrics.UpstreamRequestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()
		return nil
	}

	return s.terminal(attempts, lastErr)
}

// terminal classifies a spent retry budget into the error surfaced to callers.
func (s *session) terminal(attempts int, lastErr error) error {
	switch e := lastErr.(type) {
	case *RateLimitError:
		metrics.UpstreamErrorsTotal.WithLabelValues("rate_limited").Inc()
		return &RateLimitError{RetryAfter: e.RetryAfter, Attempts: attempts}
	case nil:
		metrics.UpstreamErrorsTotal.WithLabelValues("exhausted").Inc()
		return &ExhaustedRetriesError{Attempts: attempts, Err: fmt.Errorf("no attempt completed")}
	default:
		metrics.UpstreamErrorsTotal.WithLabelValues("network").Inc()
		return &NetworkError{Attempts: attempts, Err: lastErr}
	}
}

func (s *session) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// parseRetryAfter reads a Retry-After header given in seconds, falling back
// to the configured default when absent or unparsable.
func parseRetryAfter(h http.Header, fallback time.Duration) time.Duration {
	if fallback <= 0 {
		fallback = 60 * time.Second
	}
	raw := h.Get("Retry-After")
	if raw == "" {
		return fallback
	}
	secs, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || secs <= 0 {
		return fallback
	}
	return time.Duration(secs) * time.Second
}

// sanitizeBody turns an arbitrary error body into a safe, bounded diagnostic
// string. Binary and garbled payloads are replaced with a placeholder rather
// than propagated.
func sanitizeBody(body []byte, limit int) string {
	if limit <= 0 {
		limit = 512
	}
	if len(body) == 0 {
		return "empty response body"
	}

	if json.Valid(body) {
		return truncate(string(body), limit)
	}

	if !utf8.Valid(body) || !mostlyPrintable(body) {
		return fmt.Sprintf("non-text response body (%d bytes)", len(body))
	}

	return truncate(strings.TrimSpace(string(body)), limit)
}

func mostlyPrintable(body []byte) bool {
	printable := 0
	total := 0
	for _, r := range string(body) {
		total++
		if unicode.IsPrint(r) || unicode.IsSpace(r) {
			printable++
		}
	}
	if total == 0 {
		return false
	}
	return printable*10 >= total*9
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "... (truncated)"
}
