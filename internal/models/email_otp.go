package models

import "time"

// EmailOTP is a pending one-time code mailed to an address. Rows are deleted once used.
type EmailOTP struct {
	BaseModel

	Email     string    `gorm:"not null;index:idx_email_otp_email_purpose" json:"email"`
	Purpose   string    `gorm:"size:32;not null;index:idx_email_otp_email_purpose" json:"purpose"`
	Code      string    `gorm:"not null" json:"-"`
	ExpiresAt time.Time `gorm:"not null;index" json:"expires_at"`
}
