package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SignupType says whether a record is tied to an event or to a personal contact.
type SignupType string

const (
	SignupTypePersonal SignupType = "personal"
	SignupTypeEvent    SignupType = "event"
)

func (t SignupType) Valid() bool {
	return t == SignupTypePersonal || t == SignupTypeEvent
}

type Category string

const (
	CategorySignup       Category = "signup"
	CategoryConversation Category = "conversation"
)

func (c Category) Valid() bool {
	return c == CategorySignup || c == CategoryConversation
}

// Signup is a signup or conversation entry. City is copied at creation and
// never recomputed.
type Signup struct {
	ID         string     `gorm:"primaryKey;size:36"`
	UserID     string     `gorm:"size:36;not null;index"`
	User       User       `gorm:"foreignKey:UserID"`
	EventID    *string    `gorm:"size:36;index"`
	Event      *Event     `gorm:"foreignKey:EventID;constraint:OnDelete:SET NULL"`
	Type       SignupType `gorm:"size:16;not null"`
	Category   Category   `gorm:"size:16;not null;default:signup"`
	PersonName string     `gorm:"not null"`
	Timestamp  time.Time
	City       *string   `gorm:"size:128"`
	CityKey    string    `gorm:"size:128;index" json:"-"`
	CreatedAt  time.Time `gorm:"index"`
	UpdatedAt  time.Time
}

func (s *Signup) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.City != nil {
		s.CityKey = CityKey(*s.City)
	}
	return nil
}
