package models

import "time"

// Setting is a key/value configuration row editable by administrators.
type Setting struct {
	Key         string    `gorm:"column:setting_key;primaryKey;size:128" json:"key"`
	Value       string    `gorm:"column:setting_value;type:text;not null" json:"value"`
	Description string    `gorm:"size:255" json:"description"`
	UpdatedAt   time.Time `json:"updated_at"`
}
