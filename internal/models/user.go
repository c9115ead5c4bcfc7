package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// User is an account that can authenticate against the dashboard.
// Accounts are never hard-deleted; deactivation flips IsActive.
type User struct {
	BaseModel

	Username     string `gorm:"uniqueIndex;size:64;not null" json:"username"`
	UsernameKey  string `gorm:"column:username_key;uniqueIndex;size:64" json:"-"`
	Email        string `gorm:"uniqueIndex;size:255;not null" json:"email"`
	PasswordHash string `gorm:"column:password_hash;not null" json:"-"`
	Role         Role   `gorm:"size:16;not null;default:viewer" json:"role"`
	IsActive     bool   `gorm:"not null" json:"is_active"`

	FailedAttempts int        `gorm:"not null;default:0" json:"-"`
	LockedUntil    *time.Time `json:"-"`

	LastLoginAt *time.Time `json:"last_login_at"`
	LastLoginIP string     `gorm:"size:64" json:"last_login_ip"`

	Sessions []Session `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

// UsernameKeyOf normalises a username for uniqueness and lookup.
func UsernameKeyOf(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// BeforeCreate assigns the ID and derives UsernameKey when the caller left it empty.
func (u *User) BeforeCreate(*gorm.DB) error {
	assignID(&u.ID)
	if u.UsernameKey == "" {
		u.UsernameKey = UsernameKeyOf(u.Username)
	}
	return nil
}

// IsLocked reports whether the account is inside a lockout window at now.
func (u *User) IsLocked(now time.Time) bool {
	return u.LockedUntil != nil && u.LockedUntil.After(now)
}
