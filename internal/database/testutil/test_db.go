// Package testutil opens throwaway databases for package tests.
package testutil

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/clubhouse/internal/database"
)

type Option func(*options)

type options struct {
	migrate bool
}

// WithAutoMigrate creates the full schema after opening.
func WithAutoMigrate() Option {
	return func(o *options) { o.migrate = true }
}

// MustOpenTestDB opens a private in-memory SQLite database named after a fresh uuid, so
// parallel tests never share rows. It is closed when the test ends.
func MustOpenTestDB(t *testing.T, opts ...Option) *gorm.DB {
	t.Helper()

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	db, err := database.Open(database.Config{
		Driver: "sqlite",
		DSN:    "file:test-" + uuid.NewString() + "?mode=memory&cache=shared&_foreign_keys=1",
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if o.migrate {
		require.NoError(t, database.AutoMigrate(db))
	}
	return db
}
