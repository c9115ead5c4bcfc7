package models

import "time"

// APICredential stores the encrypted API key for one upstream service.
type APICredential struct {
	ID          uint      `gorm:"primaryKey;autoIncrement" json:"-"`
	ServiceName string    `gorm:"uniqueIndex;size:64;not null" json:"service_name"`
	Ciphertext  string    `gorm:"column:api_key;type:text;not null" json:"-"`
	IsActive    bool      `gorm:"not null" json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName keeps the historical table name.
func (APICredential) TableName() string {
	return "api_configs"
}
