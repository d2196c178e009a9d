// Package vinted is the read-only client for the Vinted marketplace API.
// It owns session bootstrap, anti-bot header discipline, retries and the
// normalization of wire payloads into stable domain types.
package vinted

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/vincentgaul/VintScout/internal/config"
)

// Client is a per-country marketplace client. It is safe for concurrent use.
type Client struct {
	countryCode string
	session     *session
	logger      *slog.Logger
}

// NewClient builds a client for the given country. An unknown country code is
// a construction-time error, not a scan-time surprise.
//
// baseURLOverride replaces the per-country marketplace URL. It exists for
// tests and is empty in production.
func NewClient(countryCode string, cfg config.VintedConfig, logger *slog.Logger, baseURLOverride ...string) (*Client, error) {
	countryCode = strings.ToLower(strings.TrimSpace(countryCode))
	baseURL, ok := Domains[countryCode]
	if !ok {
		return nil, fmt.Errorf("unsupported country code %q", countryCode)
	}

	if len(baseURLOverride) > 0 && baseURLOverride[0] != "" {
		baseURL = baseURLOverride[0]
	}

	log := logger.With(slog.String("component", "vinted"), slog.String("country", countryCode))
	sess, err := newSession(baseURL, cfg, log)
	if err != nil {
		return nil, err
	}

	return &Client{
		countryCode: countryCode,
		session:     sess,
		logger:      log,
	}, nil
}

// Bootstrap warms the session cookie jar. Best effort.
func (c *Client) Bootstrap(ctx context.Context) {
	c.session.bootstrap(ctx)
}

// SearchItems returns the first page of catalog results for params,
// capped at MaxPageSize and sorted newest first unless overridden.
func (c *Client) SearchItems(ctx context.Context, params SearchParams) (*SearchResult, error) {
	return c.session.searchItems(ctx, params)
}

// SearchBrands looks up brands by keyword, returning at most limit entries.
func (c *Client) SearchBrands(ctx context.Context, keyword string, limit int) ([]Brand, error) {
	return c.session.searchBrands(ctx, keyword, limit)
}

// Categories returns the catalog category tree.
func (c *Client) Categories(ctx context.Context) ([]Category, error) {
	return c.session.categories(ctx)
}

// CountryCode reports the country this client was built for.
func (c *Client) CountryCode() string {
	return c.countryCode
}

// Close releases idle transport connections.
func (c *Client) Close() {
	c.session.http.CloseIdleConnections()
}
