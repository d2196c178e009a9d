package scanlock

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "vintscout:scan:lock:"

// Locker provides per-alert mutual exclusion for scans.
//
// A scheduled tick and a manual "run now" for the same alert must never run
// concurrently: both would see overlapping result sets and double-count the
// alert's found counters. The lock is advisory and TTL-bounded so a crashed
// scan cannot wedge an alert forever.
type Locker struct {
	rdb *redis.Client
	ttl time.Duration
}

// New creates a locker. TTL must exceed the longest plausible scan; it
// defaults to five minutes.
func New(rdb *redis.Client, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Locker{rdb: rdb, ttl: ttl}
}

// Acquire attempts to take the scan lock for an alert. Exactly one of any
// number of concurrent callers observes true.
func (l *Locker) Acquire(ctx context.Context, alertID string) (bool, error) {
	if l == nil || l.rdb == nil || alertID == "" {
		return true, nil
	}
	ok, err := l.rdb.SetNX(ctx, keyPrefix+alertID, "1", l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("scanlock setnx: %w", err)
	}
	return ok, nil
}

// Release frees the scan lock for an alert.
func (l *Locker) Release(ctx context.Context, alertID string) error {
	if l == nil || l.rdb == nil || alertID == "" {
		return nil
	}
	if err := l.rdb.Del(ctx, keyPrefix+alertID).Err(); err != nil {
		return fmt.Errorf("scanlock del: %w", err)
	}
	return nil
}
