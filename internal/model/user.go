package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User owns alerts. Passwords are bcrypt hashes.
type User struct {
	ID        string `gorm:"type:varchar(36);primaryKey"`
	Email     string `gorm:"type:varchar(191);uniqueIndex;not null"`
	Password  string `gorm:"not null"`
	CreatedAt time.Time

	Alerts []Alert `gorm:"foreignKey:UserID"`
}

// BeforeCreate assigns a UUID primary key when none was provided.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}
