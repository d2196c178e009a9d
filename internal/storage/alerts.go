// Package storage holds the gorm-backed persistence layer: alert records,
// the seen-item ledger and the state transitions the rest of the engine
// builds on.
package storage

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/vincentgaul/VintScout/internal/model"
)

// ErrNotFound is returned when an alert id does not resolve to a row, or
// resolves to a row owned by someone else.
var ErrNotFound = errors.New("alert not found")

// AlertStore is the persistence surface for alert records.
type AlertStore struct {
	db *gorm.DB
}

func NewAlertStore(db *gorm.DB) *AlertStore {
	return &AlertStore{db: db}
}

func (s *AlertStore) Create(ctx context.Context, alert *model.Alert) error {
	return s.db.WithContext(ctx).Create(alert).Error
}

// Get fetches one alert. When userID is non-empty the lookup is scoped to
// that owner and a foreign alert reads as ErrNotFound.
func (s *AlertStore) Get(ctx context.Context, id, userID string) (*model.Alert, error) {
	q := s.db.WithContext(ctx).Where("id = ?", id)
	if userID != "" {
		q = q.Where("user_id = ?", userID)
	}
	var alert model.Alert
	if err := q.First(&alert).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &alert, nil
}

// ListByUser returns the user's alerts, most recently created first.
func (s *AlertStore) ListByUser(ctx context.Context, userID string) ([]model.Alert, error) {
	var alerts []model.Alert
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&alerts).Error
	return alerts, err
}

// ListActive returns every active alert, for the scheduler's due sweep.
func (s *AlertStore) ListActive(ctx context.Context) ([]model.Alert, error) {
	var alerts []model.Alert
	err := s.db.WithContext(ctx).
		Where("is_active = ?", true).
		Find(&alerts).Error
	return alerts, err
}

// Update persists the given alert fields.
func (s *AlertStore) Update(ctx context.Context, alert *model.Alert) error {
	return s.db.WithContext(ctx).Save(alert).Error
}

// Delete removes the alert and, through the cascade, its ledger.
func (s *AlertStore) Delete(ctx context.Context, id, userID string) error {
	q := s.db.WithContext(ctx).Where("id = ?", id)
	if userID != "" {
		q = q.Where("user_id = ?", userID)
	}
	res := q.Delete(&model.Alert{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetActive flips the alert's active flag. A transition from inactive to
// active purges the seen-item ledger and clears last_checked_at in the same
// transaction, so the next scan starts from a clean slate and every current
// listing reads as new again.
func (s *AlertStore) SetActive(ctx context.Context, id, userID string, active bool) (*model.Alert, error) {
	var alert model.Alert
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Where("id = ?", id)
		if userID != "" {
			q = q.Where("user_id = ?", userID)
		}
		if err := q.First(&alert).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		reactivating := active && !alert.IsActive
		alert.IsActive = active
		if reactivating {
			if err := tx.Where("alert_id = ?", alert.ID).Delete(&model.SeenItem{}).Error; err != nil {
				return err
			}
			alert.LastCheckedAt = nil
			alert.LastFoundCount = 0
		}
		return tx.Save(&alert).Error
	})
	if err != nil {
		return nil, err
	}
	return &alert, nil
}

// RecordScan advances the alert's scan bookkeeping. It runs after every
// attempt, successful or not: last_checked_at always moves forward so a
// failing alert does not wedge itself at the front of the due queue.
func (s *AlertStore) RecordScan(ctx context.Context, alertID string, checkedAt time.Time, foundCount int) error {
	updates := map[string]any{
		"last_checked_at":  checkedAt.UTC(),
		"last_found_count": foundCount,
	}
	if foundCount > 0 {
		updates["total_found_count"] = gorm.Expr("total_found_count + ?", foundCount)
	}
	return s.db.WithContext(ctx).
		Model(&model.Alert{}).
		Where("id = ?", alertID).
		Updates(updates).Error
}
