package scanlock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLocker(t *testing.T) *Locker {
	t.Helper()
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(s.Close)

	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, time.Minute)
}

func TestLocker_AcquireRelease(t *testing.T) {
	l := newTestLocker(t)
	ctx := context.Background()

	ok, err := l.Acquire(ctx, "alert-1")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if !ok {
		t.Fatalf("expected first acquire to win")
	}

	ok, err = l.Acquire(ctx, "alert-1")
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if ok {
		t.Fatalf("expected second acquire to lose while held")
	}

	// Different alert is independent.
	ok, err = l.Acquire(ctx, "alert-2")
	if err != nil {
		t.Fatalf("other alert acquire: %v", err)
	}
	if !ok {
		t.Fatalf("lock must be keyed per alert")
	}

	if err := l.Release(ctx, "alert-1"); err != nil {
		t.Fatalf("release: %v", err)
	}
	ok, err = l.Acquire(ctx, "alert-1")
	if err != nil {
		t.Fatalf("reacquire: %v", err)
	}
	if !ok {
		t.Fatalf("expected acquire to succeed after release")
	}
}

func TestLocker_ExactlyOneWinnerUnderRace(t *testing.T) {
	l := newTestLocker(t)
	ctx := context.Background()

	const contenders = 32
	var winners atomic.Int64
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			ok, err := l.Acquire(ctx, "alert-race")
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			if ok {
				winners.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if got := winners.Load(); got != 1 {
		t.Fatalf("expected exactly one winner, got %d", got)
	}
}

func TestLocker_NilIsNoop(t *testing.T) {
	var l *Locker
	ok, err := l.Acquire(context.Background(), "alert-1")
	if err != nil || !ok {
		t.Fatalf("nil locker should be a no-op, got ok=%v err=%v", ok, err)
	}
	if err := l.Release(context.Background(), "alert-1"); err != nil {
		t.Fatalf("nil release: %v", err)
	}
}
