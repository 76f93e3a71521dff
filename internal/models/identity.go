package models

import (
	"time"

	"github.com/google/uuid"
)

// Identity is an enrolled person. ID doubles as the classifier label.
type Identity struct {
	ID          int64     `json:"id" db:"id" gorm:"primaryKey;autoIncrement"`
	ExternalKey string    `json:"external_key" db:"external_key" gorm:"uniqueIndex;not null"`
	Name        string    `json:"name" db:"name" gorm:"not null"`
	Email       string    `json:"email,omitempty" db:"email"`
	Phone       string    `json:"phone,omitempty" db:"phone"`
	Department  string    `json:"department,omitempty" db:"department"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Sample is one stored enrollment face crop.
type Sample struct {
	ID         uuid.UUID `json:"id" db:"id" gorm:"type:text;primaryKey"`
	IdentityID int64     `json:"identity_id" db:"identity_id" gorm:"index;not null"`
	ObjectKey  string    `json:"object_key" db:"object_key" gorm:"not null"`
	Width      int       `json:"width" db:"width"`
	Height     int       `json:"height" db:"height"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
