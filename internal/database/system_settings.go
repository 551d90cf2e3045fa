package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/clubhouse/internal/models"
)

// CookieSecretSetting keeps the generated cookie sealing key stable across restarts.
const CookieSecretSetting = "security.cookie_secret"

var errNilDB = errors.New("system settings: db is nil")

// GetSystemSetting returns the stored value for key, or "" when there is none.
func GetSystemSetting(ctx context.Context, db *gorm.DB, key string) (string, error) {
	if db == nil {
		return "", errNilDB
	}
	if key == "" {
		return "", nil
	}
	var setting models.SystemSetting
	err := db.WithContext(ctx).Where(&models.SystemSetting{Key: key}).Take(&setting).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return "", nil
	case err != nil:
		return "", fmt.Errorf("system settings: get %q: %w", key, err)
	}
	return setting.Value, nil
}

// UpsertSystemSetting stores value under key, replacing any previous value.
func UpsertSystemSetting(ctx context.Context, db *gorm.DB, key, value string) error {
	return writeSetting(ctx, db, key, value, clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	})
}

func writeSetting(ctx context.Context, db *gorm.DB, key, value string, onConflict clause.OnConflict) error {
	if db == nil {
		return errNilDB
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("system settings: key is required")
	}
	record := models.SystemSetting{Key: key, Value: value}
	if err := db.WithContext(ctx).Clauses(onConflict).Create(&record).Error; err != nil {
		return fmt.Errorf("system settings: write %q: %w", key, err)
	}
	return nil
}

// ResolveCookieSecret settles which cookie secret this installation uses. A configured
// secret is stored and wins. Otherwise the candidate is only inserted when nothing is
// stored yet, so instances starting together all read back the same first writer.
func ResolveCookieSecret(ctx context.Context, db *gorm.DB, candidate string, configured bool) (string, error) {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return "", errors.New("system settings: cookie secret is empty")
	}
	if configured {
		if err := UpsertSystemSetting(ctx, db, CookieSecretSetting, candidate); err != nil {
			return "", err
		}
		return candidate, nil
	}

	if err := writeSetting(ctx, db, CookieSecretSetting, candidate, clause.OnConflict{DoNothing: true}); err != nil {
		return "", err
	}
	stored, err := GetSystemSetting(ctx, db, CookieSecretSetting)
	if err != nil {
		return "", err
	}
	if stored = strings.TrimSpace(stored); stored != "" {
		return stored, nil
	}
	return "", errors.New("system settings: stored cookie secret is empty")
}
