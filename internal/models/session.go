package models

import (
	"time"

	"gorm.io/gorm"
)

// Session binds an opaque bearer token to a user until ExpiresAt.
// Rows are never updated after insert.
type Session struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	UserID    string    `gorm:"size:36;not null;index" json:"user_id"`
	User      *User     `gorm:"foreignKey:UserID" json:"-"`
	Token     string    `gorm:"column:session_token;uniqueIndex;size:128;not null" json:"-"`
	IPAddress string    `gorm:"size:64" json:"ip_address"`
	UserAgent string    `gorm:"size:512" json:"user_agent"`
	ExpiresAt time.Time `gorm:"index;not null" json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName keeps the historical table name.
func (Session) TableName() string {
	return "user_sessions"
}

func (s *Session) BeforeCreate(*gorm.DB) error {
	assignID(&s.ID)
	return nil
}
