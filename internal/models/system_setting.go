package models

import "time"

// SystemSetting is a key/value row for installation state, such as the generated cookie
// secret, that has to outlive a restart.
type SystemSetting struct {
	Key       string    `gorm:"primaryKey;size:128" json:"key"`
	Value     string    `gorm:"type:text;not null" json:"-"`
	UpdatedAt time.Time `json:"updated_at"`
	CreatedAt time.Time `json:"created_at"`
}

func (SystemSetting) TableName() string { return "system_settings" }
