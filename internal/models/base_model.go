package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BaseModel is embedded by mutable records keyed by a random UUID string.
// IDs are stored as char(36) so the same schema migrates on SQLite,
// Postgres and MySQL.
type BaseModel struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (m *BaseModel) BeforeCreate(*gorm.DB) error {
	assignID(&m.ID)
	return nil
}

// assignID fills an empty primary key; caller supplied IDs are kept.
func assignID(id *string) {
	if *id == "" {
		*id = uuid.NewString()
	}
}
