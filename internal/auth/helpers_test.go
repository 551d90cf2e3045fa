package auth

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/clubhouse/internal/database/testutil"
	"github.com/charlesng35/clubhouse/internal/membership"
	"github.com/charlesng35/clubhouse/internal/models"
)

var testEpoch = time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC)

func openAuthTestDB(t *testing.T) (*gorm.DB, clockwork.FakeClock) {
	t.Helper()
	return testutil.MustOpenTestDB(t, testutil.WithAutoMigrate()), clockwork.NewFakeClockAt(testEpoch)
}

func createTestUser(t *testing.T, db *gorm.DB, name string) *models.User {
	t.Helper()

	user := &models.User{
		Email:  name + "@example.com",
		Name:   name,
		Status: membership.StatusActive,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}
