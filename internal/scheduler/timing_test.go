package scheduler

import (
	"math/rand"
	"testing"
	"time"

	"github.com/vincentgaul/VintScout/internal/model"
)

func TestJitter_StaysWithinBand(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	interval := 10 * time.Minute
	floor := 5 * time.Minute

	lo := time.Duration(float64(interval) * 0.8)
	hi := time.Duration(float64(interval) * 1.2)

	var sawLowHalf, sawHighHalf bool
	for i := 0; i < 10000; i++ {
		got := Jitter(interval, floor, rng)
		if got < lo || got > hi {
			t.Fatalf("jitter %v outside [%v, %v]", got, lo, hi)
		}
		if got < interval {
			sawLowHalf = true
		} else {
			sawHighHalf = true
		}
	}
	if !sawLowHalf || !sawHighHalf {
		t.Error("jitter never varied across the band")
	}
}

func TestJitter_ClampsToFloor(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	floor := 5 * time.Minute

	for i := 0; i < 1000; i++ {
		if got := Jitter(2*time.Minute, floor, rng); got < floor {
			t.Fatalf("jitter %v below floor %v", got, floor)
		}
	}

	// Zero interval falls back to the floor band.
	for i := 0; i < 1000; i++ {
		if got := Jitter(0, floor, rng); got < floor {
			t.Fatalf("zero-interval jitter %v below floor %v", got, floor)
		}
	}
}

func TestIsDue(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	now := time.Now().UTC()
	floor := 5 * time.Minute

	neverChecked := &model.Alert{CheckIntervalMinutes: 30}
	if !IsDue(neverChecked, now, floor, rng) {
		t.Error("never-checked alert should be due")
	}

	justChecked := now.Add(-time.Minute)
	fresh := &model.Alert{CheckIntervalMinutes: 30, LastCheckedAt: &justChecked}
	if IsDue(fresh, now, floor, rng) {
		t.Error("freshly checked alert should not be due")
	}

	// Past 1.2x the interval the jittered deadline has always passed.
	longAgo := now.Add(-37 * time.Minute)
	stale := &model.Alert{CheckIntervalMinutes: 30, LastCheckedAt: &longAgo}
	for i := 0; i < 100; i++ {
		if !IsDue(stale, now, floor, rng) {
			t.Fatal("alert past the full jitter band should be due")
		}
	}
}
