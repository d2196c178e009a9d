// Package scanner runs single alert evaluations: query the marketplace,
// diff against the seen-item ledger, persist the outcome and hand new
// listings to the notifier.
package scanner

import (
	"context"
	"log/slog"
	"time"

	"github.com/vincentgaul/VintScout/internal/model"
	"github.com/vincentgaul/VintScout/internal/pkg/metrics"
	"github.com/vincentgaul/VintScout/internal/vinted"
)

// Searcher is the slice of the marketplace client a scan needs.
type Searcher interface {
	SearchItems(ctx context.Context, params vinted.SearchParams) (*vinted.SearchResult, error)
}

// ClientProvider resolves a Searcher for an alert's country.
type ClientProvider interface {
	ClientFor(ctx context.Context, countryCode string) (Searcher, error)
}

// Ledger is the novelty store a scan writes through.
type Ledger interface {
	InsertIfAbsent(ctx context.Context, entry *model.SeenItem) (bool, error)
}

// AlertRecorder persists per-alert scan bookkeeping.
type AlertRecorder interface {
	RecordScan(ctx context.Context, alertID string, checkedAt time.Time, foundCount int) error
}

// Notifier delivers new listings for an alert. Implementations must not
// block past their own timeouts; delivery failures never fail the scan.
type Notifier interface {
	Notify(ctx context.Context, alert *model.Alert, items []vinted.Item) error
}

// RateLimiter gates outbound marketplace traffic.
type RateLimiter interface {
	Acquire(ctx context.Context) error
}

// Outcome is the result of one scan attempt.
type Outcome struct {
	AlertID    string
	Success    bool
	FoundTotal int
	NewItems   []vinted.Item
	Err        error
}

// Scanner evaluates alerts one at a time. It owns no scheduling state and
// no SQL; persistence goes through the injected stores.
type Scanner struct {
	clients  ClientProvider
	ledger   Ledger
	alerts   AlertRecorder
	notifier Notifier
	limiter  RateLimiter
	pageSize int
	logger   *slog.Logger
}

func New(clients ClientProvider, ledger Ledger, alerts AlertRecorder, notifier Notifier, limiter RateLimiter, pageSize int, logger *slog.Logger) *Scanner {
	if pageSize <= 0 || pageSize > vinted.MaxPageSize {
		pageSize = vinted.MaxPageSize
	}
	return &Scanner{
		clients:  clients,
		ledger:   ledger,
		alerts:   alerts,
		notifier: notifier,
		limiter:  limiter,
		pageSize: pageSize,
		logger:   logger.With(slog.String("component", "scanner")),
	}
}

// Scan evaluates one alert. The returned Outcome always carries the final
// state; a non-nil Outcome.Err means the marketplace query failed, in which
// case the alert's bookkeeping is still advanced so it rejoins the queue at
// its normal cadence instead of retrying hot.
func (s *Scanner) Scan(ctx context.Context, alert *model.Alert) *Outcome {
	start := time.Now()
	out := &Outcome{AlertID: alert.ID}
	log := s.logger.With(slog.String("alert_id", alert.ID), slog.String("alert_name", alert.Name))

	defer func() {
		metrics.ScanDuration.Observe(time.Since(start).Seconds())
		if out.Success {
			metrics.ScansTotal.WithLabelValues("success").Inc()
		} else {
			metrics.ScansTotal.WithLabelValues("failure").Inc()
		}
	}()

	client, err := s.clients.ClientFor(ctx, alert.CountryCode)
	if err != nil {
		out.Err = err
		s.recordFailure(ctx, alert, log, err)
		return out
	}

	if s.limiter != nil {
		if err := s.limiter.Acquire(ctx); err != nil {
			out.Err = err
			s.recordFailure(ctx, alert, log, err)
			return out
		}
	}

	result, err := client.SearchItems(ctx, s.searchParams(alert))
	if err != nil {
		out.Err = err
		s.recordFailure(ctx, alert, log, err)
		return out
	}
	out.FoundTotal = len(result.Items)

	checkedAt := time.Now().UTC()
	for _, item := range result.Items {
		entry := &model.SeenItem{
			AlertID:   alert.ID,
			ItemID:    item.ID,
			Title:     item.Title,
			Price:     item.Price,
			Currency:  item.Currency,
			URL:       item.URL,
			ImageURL:  item.ImageURL,
			BrandName: item.BrandName,
			Size:      item.Size,
			Condition: item.Condition,
		}
		inserted, err := s.ledger.InsertIfAbsent(ctx, entry)
		if err != nil {
			log.Error("ledger write failed",
				slog.String("item_id", item.ID),
				slog.String("error", err.Error()))
			continue
		}
		if inserted {
			out.NewItems = append(out.NewItems, item)
		}
	}

	if err := s.alerts.RecordScan(ctx, alert.ID, checkedAt, len(out.NewItems)); err != nil {
		log.Error("scan bookkeeping failed", slog.String("error", err.Error()))
	}

	out.Success = true
	metrics.NewItemsTotal.Add(float64(len(out.NewItems)))
	log.Info("scan complete",
		slog.Int("found", out.FoundTotal),
		slog.Int("new", len(out.NewItems)),
		slog.Duration("elapsed", time.Since(start)))

	if len(out.NewItems) > 0 && s.notifier != nil {
		if err := s.notifier.Notify(ctx, alert, out.NewItems); err != nil {
			log.Warn("notification delivery failed", slog.String("error", err.Error()))
		}
	}

	return out
}

// recordFailure advances last_checked_at with a zero found count so a
// broken alert keeps its place in the rotation.
func (s *Scanner) recordFailure(ctx context.Context, alert *model.Alert, log *slog.Logger, cause error) {
	log.Warn("scan failed", slog.String("error", cause.Error()))
	if err := s.alerts.RecordScan(ctx, alert.ID, time.Now().UTC(), 0); err != nil {
		log.Error("scan bookkeeping failed after error", slog.String("error", err.Error()))
	}
}

func (s *Scanner) searchParams(alert *model.Alert) vinted.SearchParams {
	return vinted.SearchParams{
		Text:         alert.SearchText,
		BrandIDs:     alert.BrandIDList(),
		CatalogIDs:   alert.CatalogIDList(),
		SizeIDs:      alert.SizeIDList(),
		ConditionIDs: alert.ConditionIDList(),
		PriceFrom:    alert.PriceMin,
		PriceTo:      alert.PriceMax,
		Currency:     alert.Currency,
		Order:        vinted.OrderNewestFirst,
		PerPage:      s.pageSize,
		Page:         1,
	}
}
