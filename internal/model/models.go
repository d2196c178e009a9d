package model

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Alert is a saved marketplace search with scheduling metadata.
//
// Each alert is checked periodically by the scanner; everything it has ever
// found is recorded as SeenItem rows so a listing is reported at most once.
type Alert struct {
	ID     string `gorm:"type:varchar(36);primaryKey"`
	UserID string `gorm:"type:varchar(36);index"`

	Name        string `gorm:"size:255;not null"` // user-facing label, e.g. "Nike Sneakers France"
	CountryCode string `gorm:"size:2;not null;index"`

	SearchText string `gorm:"size:500"`

	// Filter IDs are stored comma-separated alongside display names,
	// mirroring what the marketplace API expects (IDs) and what the UI
	// renders (names).
	BrandIDs     string `gorm:"type:text"`
	BrandNames   string `gorm:"type:text"`
	CatalogIDs   string `gorm:"type:text"`
	CatalogNames string `gorm:"type:text"`
	SizeIDs      string `gorm:"type:text"`
	ConditionIDs string `gorm:"type:text"`
	ColorIDs     string `gorm:"type:text"`

	PriceMin *float64
	PriceMax *float64
	Currency string `gorm:"size:3;not null;default:EUR"`

	// JSON blob selecting notification channels, e.g.
	// {"email":{"enabled":true,"address":"x@y"},"telegram":{"enabled":true,"chat_id":"123"}}
	NotificationConfig string `gorm:"type:text"`

	CheckIntervalMinutes int  `gorm:"not null;default:15"`
	IsActive             bool `gorm:"not null;default:true"`

	CreatedAt      time.Time
	UpdatedAt      time.Time
	LastCheckedAt  *time.Time
	LastFoundCount int `gorm:"not null;default:0"`
	// Count of seen items ever created since the last reactivation,
	// monotonic between reactivations.
	TotalFoundCount int `gorm:"not null;default:0"`

	User      *User      `gorm:"foreignKey:UserID"`
	SeenItems []SeenItem `gorm:"foreignKey:AlertID;constraint:OnDelete:CASCADE"`
}

// BeforeCreate assigns a UUID primary key when none was provided.
func (a *Alert) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// BrandIDList returns the comma-separated brand IDs as integers.
func (a *Alert) BrandIDList() []int { return SplitIDs(a.BrandIDs) }

// CatalogIDList returns the comma-separated catalog IDs as integers.
func (a *Alert) CatalogIDList() []int { return SplitIDs(a.CatalogIDs) }

// SizeIDList returns the comma-separated size IDs as integers.
func (a *Alert) SizeIDList() []int { return SplitIDs(a.SizeIDs) }

// ConditionIDList returns the comma-separated condition IDs as integers.
func (a *Alert) ConditionIDList() []int { return SplitIDs(a.ConditionIDs) }

// SplitIDs parses a comma-separated ID string, skipping blanks and garbage.
func SplitIDs(s string) []int {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed == "" {
			continue
		}
		id, err := strconv.Atoi(trimmed)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out
}

// JoinIDs renders an ID slice back into the comma-separated storage form.
func JoinIDs(ids []int) string {
	if len(ids) == 0 {
		return ""
	}
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, strconv.Itoa(id))
	}
	return strings.Join(parts, ",")
}

// SeenItem is one durable row per (alert, marketplace item) pair ever observed.
//
// The unique index on (alert_id, item_id) is the at-most-once gate: concurrent
// writers racing on the same pair produce exactly one row. Rows are deleted
// only when the alert is deleted or reactivated.
type SeenItem struct {
	ID      string `gorm:"type:varchar(36);primaryKey"`
	AlertID string `gorm:"type:varchar(36);not null;uniqueIndex:idx_alert_item,priority:1"`
	ItemID  string `gorm:"size:50;not null;uniqueIndex:idx_alert_item,priority:2"`

	Title    string  `gorm:"size:500;not null"`
	Price    float64 `gorm:"not null"`
	Currency string  `gorm:"size:3;not null;default:EUR"`

	URL      string `gorm:"type:text;not null"`
	ImageURL string `gorm:"type:text"`

	BrandName string `gorm:"size:255"`
	Size      string `gorm:"size:50"`
	Condition string `gorm:"size:50"`

	FoundAt    time.Time  `gorm:"not null;index"`
	NotifiedAt *time.Time // set by the notifier once delivery succeeded
}

// BeforeCreate assigns a UUID primary key and stamps FoundAt.
func (s *SeenItem) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.FoundAt.IsZero() {
		s.FoundAt = time.Now().UTC()
	}
	return nil
}
