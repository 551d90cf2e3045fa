package auth

import (
	"context"
	"encoding/base64"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/clubhouse/internal/models"
)

func TestEnsureTokenIsStable(t *testing.T) {
	db, _ := openAuthTestDB(t)
	store := NewQRTokenStore(db)
	user := createTestUser(t, db, "qr")
	ctx := context.Background()

	token, err := store.EnsureToken(ctx, user.ID)
	require.NoError(t, err)

	raw, err := base64.RawURLEncoding.DecodeString(token)
	require.NoError(t, err)
	require.Len(t, raw, OpaqueTokenBytes)

	again, err := store.EnsureToken(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, token, again)

	var stored models.User
	require.NoError(t, db.Take(&stored, "id = ?", user.ID).Error)
	require.NotNil(t, stored.QRToken)
	require.Equal(t, token, *stored.QRToken)
}

func TestEnsureTokenUnknownOwner(t *testing.T) {
	db, _ := openAuthTestDB(t)
	store := NewQRTokenStore(db)

	_, err := store.EnsureToken(context.Background(), "missing")
	require.ErrorIs(t, err, ErrOwnerNotFound)

	_, err = store.RegenerateToken(context.Background(), "missing")
	require.ErrorIs(t, err, ErrOwnerNotFound)
}

func TestEnsureTokenConcurrentFirstCallsConverge(t *testing.T) {
	db, _ := openAuthTestDB(t)
	store := NewQRTokenStore(db)
	user := createTestUser(t, db, "race")

	const callers = 8
	var (
		wg     sync.WaitGroup
		tokens = make([]string, callers)
		errs   = make([]error, callers)
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = store.EnsureToken(context.Background(), user.ID)
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, tokens[0], tokens[i])
	}

	owner, err := store.VerifyToken(context.Background(), tokens[0])
	require.NoError(t, err)
	require.Equal(t, user.ID, owner)
}

func TestEnsureTokenConditionalWriteKeepsWinner(t *testing.T) {
	db, _ := openAuthTestDB(t)
	store := NewQRTokenStore(db)
	user := createTestUser(t, db, "loser")

	// Simulate a concurrent caller whose write lands between our read and write.
	store.generate = func() (string, error) {
		require.NoError(t, db.Model(&models.User{}).Where("id = ?", user.ID).Update("qr_token", "winner").Error)
		return "loser", nil
	}

	token, err := store.EnsureToken(context.Background(), user.ID)
	require.NoError(t, err)
	require.Equal(t, "winner", token)
}

func TestRegenerateTokenInvalidatesPrevious(t *testing.T) {
	db, _ := openAuthTestDB(t)
	store := NewQRTokenStore(db)
	user := createTestUser(t, db, "regen")
	ctx := context.Background()

	first, err := store.EnsureToken(ctx, user.ID)
	require.NoError(t, err)

	second, err := store.RegenerateToken(ctx, user.ID)
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	_, err = store.VerifyToken(ctx, first)
	require.ErrorIs(t, err, ErrInvalidOrExpiredToken)

	owner, err := store.VerifyToken(ctx, second)
	require.NoError(t, err)
	require.Equal(t, user.ID, owner)

	current, err := store.EnsureToken(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, second, current)
}

func TestVerifyTokenMisses(t *testing.T) {
	db, _ := openAuthTestDB(t)
	store := NewQRTokenStore(db)
	createTestUser(t, db, "nobody")

	_, err := store.VerifyToken(context.Background(), "")
	require.ErrorIs(t, err, ErrInvalidOrExpiredToken)

	_, err = store.VerifyToken(context.Background(), "unknown-token")
	require.ErrorIs(t, err, ErrInvalidOrExpiredToken)
}

func TestShareTokenStoreUsesMeetings(t *testing.T) {
	db, _ := openAuthTestDB(t)
	store := NewShareTokenStore(db)
	qr := NewQRTokenStore(db)
	ctx := context.Background()

	meeting := &models.Meeting{Title: "Annual general meeting"}
	require.NoError(t, db.Create(meeting).Error)
	require.Equal(t, "share", store.Kind())

	token, err := store.EnsureToken(ctx, meeting.ID)
	require.NoError(t, err)

	owner, err := store.VerifyToken(ctx, token)
	require.NoError(t, err)
	require.Equal(t, meeting.ID, owner)

	_, err = qr.VerifyToken(ctx, token)
	require.ErrorIs(t, err, ErrInvalidOrExpiredToken, "token families are independent")
}
