package scheduler

import (
	"math/rand"
	"time"

	"github.com/vincentgaul/VintScout/internal/model"
)

// Jitter spreads an alert's configured interval over [0.8m, 1.2m] so a fleet
// of alerts created together does not thunder against the marketplace on the
// same tick. The result never drops below floor. A fresh value is drawn for
// every evaluation.
func Jitter(interval, floor time.Duration, rng *rand.Rand) time.Duration {
	if interval <= 0 {
		interval = floor
	}
	spread := 0.8 + 0.4*rng.Float64()
	jittered := time.Duration(float64(interval) * spread)
	if jittered < floor {
		return floor
	}
	return jittered
}

// IsDue reports whether the alert should be scanned now. A never-checked
// alert is always due; otherwise it is due once the jittered interval has
// elapsed since the last check.
func IsDue(alert *model.Alert, now time.Time, floor time.Duration, rng *rand.Rand) bool {
	if alert.LastCheckedAt == nil {
		return true
	}
	interval := time.Duration(alert.CheckIntervalMinutes) * time.Minute
	return now.Sub(*alert.LastCheckedAt) >= Jitter(interval, floor, rng)
}
