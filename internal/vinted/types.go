package vinted

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Domains maps a 2-letter country code to the base URL of the marketplace
// site serving it.
// An alert's country decides which domain every one of its requests hits.
var Domains = map[string]string{
	"fr": "https://www.vinted.fr",
	"de": "https://www.vinted.de",
	"uk": "https://www.vinted.co.uk",
	"pl": "https://www.vinted.pl",
	"es": "https://www.vinted.es",
	"it": "https://www.vinted.it",
	"be": "https://www.vinted.be",
	"nl": "https://www.vinted.nl",
	"at": "https://www.vinted.at",
	"cz": "https://www.vinted.cz",
	"lt": "https://www.vinted.lt",
	"lu": "https://www.vinted.lu",
	"pt": "https://www.vinted.pt",
	"se": "https://www.vinted.se",
	"us": "https://www.vinted.com",
	"ro": "https://www.vinted.ro",
	"gr": "https://www.vinted.gr",
	"hr": "https://www.vinted.hr",
	"hu": "https://www.vinted.hu",
	"sk": "https://www.vinted.sk",
	"si": "https://www.vinted.si",
	"fi": "https://www.vinted.fi",
	"dk": "https://www.vinted.dk",
	"ee": "https://www.vinted.ee",
	"lv": "https://www.vinted.lv",
	"ie": "https://www.vinted.ie",
}

// Sort orders accepted by the search endpoint.
const (
	OrderNewestFirst     = "newest_first"
	OrderPriceLowToHigh  = "price_low_to_high"
	OrderPriceHighToLow  = "price_high_to_low"
	OrderRelevance       = "relevance"
)

// MaxPageSize is the upstream hard cap on per_page.
const MaxPageSize = 96

// NetworkError is a transport-level failure (timeout, connection reset) that
// survived the full retry budget.
type NetworkError struct {
	Attempts int
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error after %d attempts: %v", e.Attempts, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// RateLimitError is a 429 that persisted through the retry budget. RetryAfter
// carries the last server-directed delay.
type RateLimitError struct {
	RetryAfter time.Duration
	Attempts   int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited after %d attempts, retry after %s", e.Attempts, e.RetryAfter)
}

// UpstreamError is a non-2xx, non-429 response. Body is a truncated, sanitized
// diagnostic; raw binary payloads never reach the caller.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned HTTP %d: %s", e.StatusCode, e.Body)
}

// MalformedResponseError is a 2xx response whose body failed to parse as the
// expected JSON shape. Not retried: a persistently malformed body will not fix
// itself within one call.
type MalformedResponseError struct {
	Err error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed upstream response: %v", e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// ExhaustedRetriesError wraps the last cause when the attempt budget is spent
// without a more specific terminal classification.
type ExhaustedRetriesError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedRetriesError) Error() string {
	return fmt.Sprintf("exhausted %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedRetriesError) Unwrap() error { return e.Err }

// Item is one marketplace listing, reduced to the fields the ledger and the
// notifier need.
type Item struct {
	ID        string
	Title     string
	Price     float64
	Currency  string
	URL       string
	ImageURL  string
	BrandName string
	Size      string
	Condition string
}

// Pagination describes the search result window.
type Pagination struct {
	TotalEntries int `json:"total_entries"`
	CurrentPage  int `json:"current_page"`
	TotalPages   int `json:"total_pages"`
	PerPage      int `json:"per_page"`
}

// SearchResult is the outcome of one item search call.
type SearchResult struct {
	Items      []Item
	Pagination Pagination
}

// Brand mirrors an entry from the brand search endpoint.
type Brand struct {
	ID             int64  `json:"id"`
	Title          string `json:"title"`
	Slug           string `json:"slug"`
	Path           string `json:"path"`
	ItemCount      int    `json:"item_count"`
	FavouriteCount int    `json:"favourite_count"`
}

// Category is one node of the marketplace catalog tree.
type Category struct {
	ID        int64      `json:"id"`
	Title     string     `json:"title"`
	ItemCount int        `json:"item_count"`
	Children  []Category `json:"children"`
}

// UnmarshalJSON reads the upstream shape, where nested nodes arrive under
// "catalogs" rather than "children".
func (c *Category) UnmarshalJSON(data []byte) error {
	type wire struct {
		ID        int64      `json:"id"`
		Title     string     `json:"title"`
		ItemCount int        `json:"item_count"`
		Catalogs  []Category `json:"catalogs"`
	}
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	c.ID = w.ID
	c.Title = w.Title
	c.ItemCount = w.ItemCount
	c.Children = w.Catalogs
	return nil
}

// rawItem is the wire shape of a listing. The price field has shipped as a
// bare number, a quoted string and an {amount, currency_code} object at
// different times, so it gets a forgiving decoder.
type rawItem struct {
	ID         json.Number  `json:"id"`
	Title      string       `json:"title"`
	Price      listingPrice `json:"price"`
	Currency   string       `json:"currency"`
	URL        string       `json:"url"`
	Photo      *rawPhoto    `json:"photo"`
	BrandTitle string       `json:"brand_title"`
	SizeTitle  string       `json:"size_title"`
	Status     string       `json:"status"`
}

type rawPhoto struct {
	URL string `json:"url"`
}

type listingPrice struct {
	Amount   float64
	Currency string
}

func (p *listingPrice) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return nil
	}

	if data[0] == '{' {
		var obj struct {
			Amount       json.Number `json:"amount"`
			CurrencyCode string      `json:"currency_code"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		amount, err := obj.Amount.Float64()
		if err != nil {
			return fmt.Errorf("price amount %q: %w", obj.Amount, err)
		}
		p.Amount = amount
		p.Currency = obj.CurrencyCode
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		amount, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("price string %q: %w", s, err)
		}
		p.Amount = amount
		return nil
	}

	var amount float64
	if err := json.Unmarshal(data, &amount); err != nil {
		return err
	}
	p.Amount = amount
	return nil
}

func (r rawItem) toItem(fallbackCurrency string) Item {
	currency := r.Price.Currency
	if currency == "" {
		currency = r.Currency
	}
	if currency == "" {
		currency = fallbackCurrency
	}

	item := Item{
		ID:        r.ID.String(),
		Title:     r.Title,
		Price:     r.Price.Amount,
		Currency:  currency,
		URL:       r.URL,
		BrandName: r.BrandTitle,
		Size:      r.SizeTitle,
		Condition: r.Status,
	}
	if r.Photo != nil {
		item.ImageURL = r.Photo.URL
	}
	return item
}
