package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type User struct {
	ID           string  `gorm:"primaryKey;size:36"`
	Name         string  `gorm:"not null"`
	Email        string  `gorm:"uniqueIndex;size:191;not null"`
	PasswordHash string  `gorm:"not null" json:"-"` // Don't expose password hash
	Role         Role    `gorm:"size:16;not null;default:user"`
	City         *string `gorm:"size:128"` // Required for admins, ignored for others
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}
