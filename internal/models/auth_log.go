package models

import "time"

const (
	AuthActionLogin  = "login"
	AuthActionLogout = "logout"
)

// AuthLog is an append-only record of an authentication attempt.
// Username is free text with no foreign key so attempts against unknown
// accounts stay auditable.
type AuthLog struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Username  string    `gorm:"size:255;index" json:"username"`
	Action    string    `gorm:"size:16;not null" json:"action"`
	IPAddress string    `gorm:"size:64" json:"ip_address"`
	UserAgent string    `gorm:"size:512" json:"user_agent"`
	Success   bool      `gorm:"not null" json:"success"`
	Message   string    `gorm:"size:255" json:"message"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}
