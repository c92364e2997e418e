package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Event struct {
	ID          string `gorm:"primaryKey;size:36"`
	Title       string `gorm:"not null"`
	Description string
	Date        time.Time `gorm:"not null;index"`
	City        string    `gorm:"size:128;not null"`
	CityKey     string    `gorm:"size:128;index" json:"-"`
	Location    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (e *Event) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.CityKey = CityKey(e.City)
	return nil
}
