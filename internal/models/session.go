package models

import "time"

// Session is a server-side sign-in. ID is the SHA-256 hex digest of the cookie token;
// the raw token is never stored.
type Session struct {
	ID        string    `gorm:"primaryKey;size:64" json:"-"`
	UserID    string    `gorm:"size:36;not null;index" json:"user_id"`
	User      *User     `gorm:"foreignKey:UserID" json:"user,omitempty"`
	IPAddress string    `json:"ip_address"`
	UserAgent string    `json:"user_agent"`
	ExpiresAt time.Time `gorm:"not null;index" json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`

	// Renewed is set by validation when the expiry was extended during this request.
	Renewed bool `gorm:"-" json:"-"`
}
