package storage

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vincentgaul/VintScout/internal/model"
)

// Ledger records which listings each alert has already surfaced. The
// (alert_id, item_id) unique index is the source of truth for novelty;
// concurrent writers race through the database, not through memory.
type Ledger struct {
	db *gorm.DB
}

func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// Exists reports whether the alert has already seen the given listing.
func (l *Ledger) Exists(ctx context.Context, alertID, itemID string) (bool, error) {
	var count int64
	err := l.db.WithContext(ctx).
		Model(&model.SeenItem{}).
		Where("alert_id = ? AND item_id = ?", alertID, itemID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// InsertIfAbsent writes the entry unless the (alert_id, item_id) pair is
// already present. Returns true when this call inserted the row, so exactly
// one of any set of concurrent callers observes the listing as new.
func (l *Ledger) InsertIfAbsent(ctx context.Context, entry *model.SeenItem) (bool, error) {
	res := l.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "alert_id"}, {Name: "item_id"}},
			DoNothing: true,
		}).
		Create(entry)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// List returns the alert's ledger entries, newest first.
func (l *Ledger) List(ctx context.Context, alertID string, limit, offset int) ([]model.SeenItem, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var entries []model.SeenItem
	err := l.db.WithContext(ctx).
		Where("alert_id = ?", alertID).
		Order("found_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&entries).Error
	return entries, err
}

// Count returns the number of ledger entries for the alert.
func (l *Ledger) Count(ctx context.Context, alertID string) (int64, error) {
	var count int64
	err := l.db.WithContext(ctx).
		Model(&model.SeenItem{}).
		Where("alert_id = ?", alertID).
		Count(&count).Error
	return count, err
}

// Purge drops every ledger entry for the alert.
func (l *Ledger) Purge(ctx context.Context, alertID string) error {
	return l.db.WithContext(ctx).
		Where("alert_id = ?", alertID).
		Delete(&model.SeenItem{}).Error
}

// MarkNotified stamps notified_at on the given entries after a delivery.
func (l *Ledger) MarkNotified(ctx context.Context, alertID string, itemIDs []string, at time.Time) error {
	if len(itemIDs) == 0 {
		return nil
	}
	return l.db.WithContext(ctx).
		Model(&model.SeenItem{}).
		Where("alert_id = ? AND item_id IN ?", alertID, itemIDs).
		Update("notified_at", at.UTC()).Error
}
