// Package scheduler drives the polling loop: a fixed tick sweeps active
// alerts, jitters their cadence and dispatches due ones onto a bounded
// worker pool.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/vincentgaul/VintScout/internal/config"
	"github.com/vincentgaul/VintScout/internal/model"
	"github.com/vincentgaul/VintScout/internal/pkg/metrics"
	"github.com/vincentgaul/VintScout/internal/pkg/queue"
	"github.com/vincentgaul/VintScout/internal/scanner"
	"github.com/vincentgaul/VintScout/internal/vinted"
)

// ErrAlertNotFound is returned by RunAlertNow for an unknown alert id.
var ErrAlertNotFound = errors.New("alert not found")

// ErrAlertBusy is returned by RunAlertNow when the alert's scan lock stays
// held for the whole wait window.
var ErrAlertBusy = errors.New("alert scan already in progress")

// ErrStopped is returned by RunAlertNow once the worker pool has shut down.
var ErrStopped = errors.New("scheduler stopped")

// AlertSource lists and resolves the alerts the scheduler drives.
type AlertSource interface {
	ListActive(ctx context.Context) ([]model.Alert, error)
	Get(ctx context.Context, id, userID string) (*model.Alert, error)
}

// AlertScanner evaluates one alert.
type AlertScanner interface {
	Scan(ctx context.Context, alert *model.Alert) *scanner.Outcome
}

// Locker provides per-alert mutual exclusion across scheduler ticks and
// on-demand runs, including runs on other instances.
type Locker interface {
	Acquire(ctx context.Context, alertID string) (bool, error)
	Release(ctx context.Context, alertID string) error
}

// RunResult is the outcome of an on-demand scan, shaped for the API layer.
type RunResult struct {
	Success       bool          `json:"success"`
	NewItemsCount int           `json:"new_items_count"`
	Items         []vinted.Item `json:"items,omitempty"`
	Error         string        `json:"error,omitempty"`
}

// Scheduler owns the tick loop and the worker pool.
type Scheduler struct {
	alerts  AlertSource
	scanner AlertScanner
	locker  Locker
	pool    *queue.Queue
	cfg     config.ScannerConfig
	logger  *slog.Logger

	mu  sync.Mutex
	rng *rand.Rand

	stopOnce   sync.Once
	cancel     context.CancelFunc
	poolCancel context.CancelFunc
	loopDone   chan struct{}
}

func New(alerts AlertSource, sc AlertScanner, locker Locker, cfg config.ScannerConfig, logger *slog.Logger) *Scheduler {
	log := logger.With(slog.String("component", "scheduler"))
	return &Scheduler{
		alerts:   alerts,
		scanner:  sc,
		locker:   locker,
		pool:     queue.New(log, cfg.WorkerPoolSize, cfg.QueueCapacity),
		cfg:      cfg,
		logger:   log,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		loopDone: make(chan struct{}),
	}
}

// Start launches the worker pool and the tick loop. It returns immediately;
// the loop runs until Stop or ctx cancellation.
//
// Workers run on their own context so that cancelling ctx stops the tick
// loop without killing in-flight scans; those get the drain window in Stop.
func (s *Scheduler) Start(ctx context.Context) {
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	poolCtx, poolCancel := context.WithCancel(context.Background())
	s.poolCancel = poolCancel
	s.pool.Start(poolCtx)

	go s.run(loopCtx)
	s.logger.Info("scheduler started",
		slog.String("tick", s.cfg.TickInterval.String()),
		slog.Int("workers", s.cfg.WorkerPoolSize))
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.loopDone)

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	// First sweep right away rather than one tick late.
	s.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler loop stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep evaluates every active alert's cadence and enqueues the due ones.
// Jitter is drawn fresh per evaluation, so an alert that misses one tick by
// a hair may come due on the next.
func (s *Scheduler) sweep(ctx context.Context) {
	alerts, err := s.alerts.ListActive(ctx)
	if err != nil {
		s.logger.Error("listing active alerts failed", slog.String("error", err.Error()))
		return
	}

	now := time.Now().UTC()
	due := 0
	for i := range alerts {
		alert := alerts[i]
		if !s.isDue(&alert, now) {
			continue
		}
		due++
		if !s.pool.Enqueue(s.scanJob(alert)) {
			s.logger.Warn("scan dropped, worker queue full",
				slog.String("alert_id", alert.ID),
				slog.Int("capacity", s.pool.Cap()))
		}
	}

	metrics.AlertsDue.Set(float64(due))
	metrics.SchedulerQueueDepth.Set(float64(s.pool.Len()))
	if due > 0 {
		s.logger.Debug("sweep complete",
			slog.Int("active", len(alerts)),
			slog.Int("due", due))
	}
}

func (s *Scheduler) isDue(alert *model.Alert, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return IsDue(alert, now, s.cfg.MinCheckInterval, s.rng)
}

// scanJob wraps one alert scan with the per-alert lock. Losing the lock is
// not an error: someone else is already scanning this alert.
func (s *Scheduler) scanJob(alert model.Alert) queue.Job {
	return func(ctx context.Context) error {
		ok, err := s.locker.Acquire(ctx, alert.ID)
		if err != nil {
			return err
		}
		if !ok {
			metrics.ScanLockContention.Inc()
			s.logger.Debug("scan lock held elsewhere, skipping",
				slog.String("alert_id", alert.ID))
			return nil
		}
		defer func() {
			if err := s.locker.Release(ctx, alert.ID); err != nil {
				s.logger.Warn("scan lock release failed",
					slog.String("alert_id", alert.ID),
					slog.String("error", err.Error()))
			}
		}()

		out := s.scanner.Scan(ctx, &alert)
		if out.Err != nil {
			s.logger.Warn("scheduled scan failed",
				slog.String("alert_id", alert.ID),
				slog.String("error", out.Err.Error()))
		}
		return nil
	}
}

// RunAlertNow scans one alert immediately, bypassing the cadence check but
// not the per-alert lock or the worker pool. It waits briefly for a held
// lock before giving up with ErrAlertBusy; the scan itself runs on a pool
// worker so on-demand runs share the scheduled runs' concurrency budget.
func (s *Scheduler) RunAlertNow(ctx context.Context, alertID, userID string) (*RunResult, error) {
	if s.pool.IsClosed() {
		return nil, ErrStopped
	}

	alert, err := s.alerts.Get(ctx, alertID, userID)
	if err != nil {
		return nil, ErrAlertNotFound
	}

	acquired := false
	deadline := time.Now().Add(3 * time.Second)
	for {
		ok, err := s.locker.Acquire(ctx, alert.ID)
		if err != nil {
			return nil, err
		}
		if ok {
			acquired = true
			break
		}
		if time.Now().After(deadline) {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
	if !acquired {
		metrics.ScanLockContention.Inc()
		return nil, ErrAlertBusy
	}
	defer func() {
		if err := s.locker.Release(ctx, alert.ID); err != nil {
			s.logger.Warn("scan lock release failed",
				slog.String("alert_id", alert.ID),
				slog.String("error", err.Error()))
		}
	}()

	outCh := make(chan *scanner.Outcome, 1)
	err = s.pool.EnqueueBlocking(ctx, func(jobCtx context.Context) error {
		outCh <- s.scanner.Scan(jobCtx, alert)
		return nil
	})
	if err != nil {
		return nil, err
	}

	var out *scanner.Outcome
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case out = <-outCh:
	}

	res := &RunResult{
		Success:       out.Success,
		NewItemsCount: len(out.NewItems),
		Items:         out.NewItems,
	}
	if out.Err != nil {
		res.Error = out.Err.Error()
	}
	return res, nil
}

// Stats exposes the worker pool counters.
func (s *Scheduler) Stats() queue.Stats {
	return s.pool.Snapshot()
}

// Stop halts the tick loop and drains in-flight scans, waiting at most the
// configured drain timeout.
func (s *Scheduler) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
			<-s.loopDone
		}
		err = s.pool.ShutdownWithTimeout(s.cfg.DrainTimeout)
		if s.poolCancel != nil {
			s.poolCancel()
		}
	})
	return err
}
