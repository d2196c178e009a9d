package ratelimit

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(s.Close)

	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestLimiter_AllowsWithinBurst(t *testing.T) {
	rdb := newTestRedis(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	l := New(rdb, logger, "test:ratelimit", 10, 3)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := l.Acquire(ctx); err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Fatalf("burst allowance should not block, took %s", elapsed)
	}
}

func TestLimiter_BlocksWhenExhausted(t *testing.T) {
	rdb := newTestRedis(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	l := New(rdb, logger, "test:ratelimit", 5, 1)
	ctx := context.Background()

	if err := l.Acquire(ctx); err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	start := time.Now()
	if err := l.Acquire(ctx); err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	// Refill rate is 5/s, so the second token needs roughly 200ms.
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Fatalf("expected second acquire to wait, took %s", elapsed)
	}
}

func TestLimiter_AbortsOnContextCancel(t *testing.T) {
	rdb := newTestRedis(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	l := New(rdb, logger, "test:ratelimit", 0.1, 1)
	ctx := context.Background()

	if err := l.Acquire(ctx); err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	shortCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if err := l.Acquire(shortCtx); err != ErrWaitAborted {
		t.Fatalf("expected ErrWaitAborted, got %v", err)
	}
}

func TestLimiter_NilAndDisabled(t *testing.T) {
	var l *Limiter
	if err := l.Acquire(context.Background()); err != nil {
		t.Fatalf("nil limiter should allow: %v", err)
	}

	rdb := newTestRedis(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	disabled := New(rdb, logger, "test:ratelimit", 0, 0)
	if err := disabled.Acquire(context.Background()); err != nil {
		t.Fatalf("disabled limiter should allow: %v", err)
	}
}
