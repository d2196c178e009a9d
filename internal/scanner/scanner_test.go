package scanner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/vincentgaul/VintScout/internal/model"
	"github.com/vincentgaul/VintScout/internal/vinted"
)

type fakeSearcher struct {
	result *vinted.SearchResult
	err    error
	calls  int
}

func (f *fakeSearcher) SearchItems(ctx context.Context, params vinted.SearchParams) (*vinted.SearchResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeProvider struct {
	searcher Searcher
	err      error
	country  string
}

func (f *fakeProvider) ClientFor(ctx context.Context, countryCode string) (Searcher, error) {
	f.country = countryCode
	if f.err != nil {
		return nil, f.err
	}
	return f.searcher, nil
}

type fakeLedger struct {
	mu      sync.Mutex
	seen    map[string]bool
	failFor map[string]error
}

func newFakeLedger(preseen ...string) *fakeLedger {
	l := &fakeLedger{seen: make(map[string]bool), failFor: make(map[string]error)}
	for _, id := range preseen {
		l.seen[id] = true
	}
	return l
}

func (l *fakeLedger) InsertIfAbsent(ctx context.Context, entry *model.SeenItem) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.failFor[entry.ItemID]; err != nil {
		return false, err
	}
	if l.seen[entry.ItemID] {
		return false, nil
	}
	l.seen[entry.ItemID] = true
	return true, nil
}

type fakeRecorder struct {
	alertID    string
	checkedAt  time.Time
	foundCount int
	calls      int
}

func (r *fakeRecorder) RecordScan(ctx context.Context, alertID string, checkedAt time.Time, foundCount int) error {
	r.calls++
	r.alertID = alertID
	r.checkedAt = checkedAt
	r.foundCount = foundCount
	return nil
}

type fakeNotifier struct {
	items []vinted.Item
	calls int
	err   error
}

func (n *fakeNotifier) Notify(ctx context.Context, alert *model.Alert, items []vinted.Item) error {
	n.calls++
	n.items = items
	return n.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testAlert() *model.Alert {
	min := 10.0
	return &model.Alert{
		ID:          "alert-1",
		Name:        "wool coats",
		CountryCode: "fr",
		SearchText:  "wool coat",
		BrandIDs:    "7,9",
		PriceMin:    &min,
		Currency:    "EUR",
	}
}

func items(ids ...string) []vinted.Item {
	out := make([]vinted.Item, 0, len(ids))
	for _, id := range ids {
		out = append(out, vinted.Item{ID: id, Title: "item " + id, Price: 20, Currency: "EUR"})
	}
	return out
}

func TestScan_NewItemsThenNoneOnRepeat(t *testing.T) {
	searcher := &fakeSearcher{result: &vinted.SearchResult{Items: items("a", "b", "c")}}
	provider := &fakeProvider{searcher: searcher}
	ledger := newFakeLedger()
	recorder := &fakeRecorder{}
	notifier := &fakeNotifier{}

	s := New(provider, ledger, recorder, notifier, nil, 96, testLogger())
	alert := testAlert()

	out := s.Scan(context.Background(), alert)
	if !out.Success || out.Err != nil {
		t.Fatalf("first scan failed: %+v", out)
	}
	if len(out.NewItems) != 3 || out.FoundTotal != 3 {
		t.Fatalf("first scan: new=%d found=%d, want 3/3", len(out.NewItems), out.FoundTotal)
	}
	if recorder.foundCount != 3 || recorder.alertID != "alert-1" {
		t.Errorf("bookkeeping: %+v", recorder)
	}
	if notifier.calls != 1 || len(notifier.items) != 3 {
		t.Errorf("notifier: calls=%d items=%d", notifier.calls, len(notifier.items))
	}
	if provider.country != "fr" {
		t.Errorf("client country = %q", provider.country)
	}

	// Same listings again: nothing is new, notifier stays quiet.
	out = s.Scan(context.Background(), alert)
	if !out.Success {
		t.Fatalf("second scan failed: %+v", out)
	}
	if len(out.NewItems) != 0 || out.FoundTotal != 3 {
		t.Errorf("second scan: new=%d found=%d, want 0/3", len(out.NewItems), out.FoundTotal)
	}
	if recorder.foundCount != 0 {
		t.Errorf("second scan bookkeeping foundCount = %d, want 0", recorder.foundCount)
	}
	if notifier.calls != 1 {
		t.Errorf("notifier called again with no new items: calls=%d", notifier.calls)
	}
}

func TestScan_PartiallySeenResult(t *testing.T) {
	searcher := &fakeSearcher{result: &vinted.SearchResult{Items: items("a", "b", "c")}}
	s := New(&fakeProvider{searcher: searcher}, newFakeLedger("a", "c"), &fakeRecorder{}, nil, nil, 96, testLogger())

	out := s.Scan(context.Background(), testAlert())
	if len(out.NewItems) != 1 || out.NewItems[0].ID != "b" {
		t.Fatalf("new items = %+v, want just b", out.NewItems)
	}
}

func TestScan_SearchFailureStillAdvancesBookkeeping(t *testing.T) {
	wantErr := &vinted.RateLimitError{RetryAfter: time.Minute, Attempts: 3}
	searcher := &fakeSearcher{err: wantErr}
	recorder := &fakeRecorder{}
	notifier := &fakeNotifier{}

	s := New(&fakeProvider{searcher: searcher}, newFakeLedger(), recorder, notifier, nil, 96, testLogger())
	before := time.Now().UTC()
	out := s.Scan(context.Background(), testAlert())

	if out.Success {
		t.Fatal("scan reported success despite search failure")
	}
	var rle *vinted.RateLimitError
	if !errors.As(out.Err, &rle) {
		t.Fatalf("err = %v, want *vinted.RateLimitError", out.Err)
	}
	if recorder.calls != 1 || recorder.foundCount != 0 {
		t.Errorf("failure bookkeeping: %+v", recorder)
	}
	if recorder.checkedAt.Before(before) {
		t.Errorf("checkedAt not advanced: %v", recorder.checkedAt)
	}
	if notifier.calls != 0 {
		t.Errorf("notifier called on failed scan")
	}
}

func TestScan_UnknownCountryFails(t *testing.T) {
	recorder := &fakeRecorder{}
	s := New(&fakeProvider{err: errors.New("unsupported country")}, newFakeLedger(), recorder, nil, nil, 96, testLogger())

	out := s.Scan(context.Background(), testAlert())
	if out.Success || out.Err == nil {
		t.Fatalf("expected failure, got %+v", out)
	}
	if recorder.calls != 1 {
		t.Errorf("bookkeeping not advanced on client error")
	}
}

func TestScan_LedgerErrorSkipsItemButContinues(t *testing.T) {
	searcher := &fakeSearcher{result: &vinted.SearchResult{Items: items("a", "b")}}
	ledger := newFakeLedger()
	ledger.failFor["a"] = errors.New("deadlock")

	s := New(&fakeProvider{searcher: searcher}, ledger, &fakeRecorder{}, nil, nil, 96, testLogger())
	out := s.Scan(context.Background(), testAlert())

	if !out.Success {
		t.Fatalf("scan failed: %+v", out)
	}
	if len(out.NewItems) != 1 || out.NewItems[0].ID != "b" {
		t.Errorf("new items = %+v, want just b", out.NewItems)
	}
}

func TestScan_NotifierFailureDoesNotFailScan(t *testing.T) {
	searcher := &fakeSearcher{result: &vinted.SearchResult{Items: items("a")}}
	notifier := &fakeNotifier{err: errors.New("smtp down")}

	s := New(&fakeProvider{searcher: searcher}, newFakeLedger(), &fakeRecorder{}, notifier, nil, 96, testLogger())
	out := s.Scan(context.Background(), testAlert())

	if !out.Success || out.Err != nil {
		t.Fatalf("scan failed on notifier error: %+v", out)
	}
	if notifier.calls != 1 {
		t.Errorf("notifier calls = %d", notifier.calls)
	}
}

type blockedLimiter struct{}

func (blockedLimiter) Acquire(ctx context.Context) error { return context.DeadlineExceeded }

func TestScan_RateLimiterAbortFails(t *testing.T) {
	searcher := &fakeSearcher{result: &vinted.SearchResult{Items: items("a")}}
	recorder := &fakeRecorder{}

	s := New(&fakeProvider{searcher: searcher}, newFakeLedger(), recorder, nil, blockedLimiter{}, 96, testLogger())
	out := s.Scan(context.Background(), testAlert())

	if out.Success || !errors.Is(out.Err, context.DeadlineExceeded) {
		t.Fatalf("expected limiter abort, got %+v", out)
	}
	if searcher.calls != 0 {
		t.Errorf("search ran despite limiter abort")
	}
	if recorder.calls != 1 {
		t.Errorf("bookkeeping not advanced on limiter abort")
	}
}

func TestSearchParams_FromAlert(t *testing.T) {
	s := New(&fakeProvider{}, newFakeLedger(), &fakeRecorder{}, nil, nil, 48, testLogger())
	alert := testAlert()
	alert.CatalogIDs = "1904"
	alert.ConditionIDs = "1,2"

	params := s.searchParams(alert)
	if params.Text != "wool coat" {
		t.Errorf("text = %q", params.Text)
	}
	if len(params.BrandIDs) != 2 || params.BrandIDs[0] != 7 {
		t.Errorf("brand ids = %v", params.BrandIDs)
	}
	if len(params.CatalogIDs) != 1 || params.CatalogIDs[0] != 1904 {
		t.Errorf("catalog ids = %v", params.CatalogIDs)
	}
	if len(params.ConditionIDs) != 2 {
		t.Errorf("condition ids = %v", params.ConditionIDs)
	}
	if params.PriceFrom == nil || *params.PriceFrom != 10.0 {
		t.Errorf("price from = %v", params.PriceFrom)
	}
	if params.PriceTo != nil {
		t.Errorf("price to = %v, want nil", params.PriceTo)
	}
	if params.PerPage != 48 || params.Page != 1 || params.Order != vinted.OrderNewestFirst {
		t.Errorf("paging = %+v", params)
	}
}
