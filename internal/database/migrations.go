package database

import (
	"strings"

	"gorm.io/gorm"

	"github.com/charlesng35/clubhouse/internal/membership"
	"github.com/charlesng35/clubhouse/internal/models"
)

// SeedOptions controls the rows created on start-up.
type SeedOptions struct {
	// AdminEmails are promoted to administrators, created as active members when absent.
	AdminEmails []string
}

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Session{},
		&models.EmailOTP{},
		&models.Meeting{},
		&models.MeetingAttendance{},
		&models.AuditLog{},
		&models.SystemSetting{},
	)
}

// SeedData ensures configured administrators exist.
func SeedData(db *gorm.DB, opts SeedOptions) error {
	for _, raw := range opts.AdminEmails {
		email := strings.ToLower(strings.TrimSpace(raw))
		if email == "" {
			continue
		}

		admin := models.User{
			Email:   email,
			IsAdmin: true,
			Status:  membership.StatusActive,
		}
		if err := db.Where(models.User{Email: email}).Attrs(admin).FirstOrCreate(&models.User{}).Error; err != nil {
			return err
		}
		if err := db.Model(&models.User{}).Where("email = ?", email).Update("is_admin", true).Error; err != nil {
			return err
		}
	}
	return nil
}
