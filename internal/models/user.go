package models

import (
	"time"

	"github.com/charlesng35/clubhouse/internal/membership"
)

// User is a club member. Members sign in by email; there are no passwords.
type User struct {
	BaseModel

	Email          string            `gorm:"uniqueIndex;not null" json:"email"`
	SecondaryEmail string            `json:"secondary_email,omitempty"`
	Name           string            `json:"name"`
	IsAdmin        bool              `gorm:"default:false" json:"is_admin"`
	Status         membership.Status `gorm:"type:varchar(32);not null;index" json:"status"`

	// QRToken is the opaque check-in token; NULL until first requested.
	QRToken *string `gorm:"uniqueIndex" json:"-"`

	Sessions []Session `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`

	LastLoginAt *time.Time `json:"last_login_at"`
	LastLoginIP string     `json:"-"`
}
