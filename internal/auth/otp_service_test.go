package auth

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/clubhouse/internal/models"
)

func TestCreateEmailOTPNormalisesAndReplaces(t *testing.T) {
	db, svc, clock := setupOTPService(t)
	ctx := context.Background()

	first, err := svc.CreateEmailOTP(ctx, "  Member@Example.COM ", PurposeSignin)
	require.NoError(t, err)
	require.Equal(t, "member@example.com", first.Email)
	require.Len(t, first.Code, 8)
	require.WithinDuration(t, clock.Now().Add(10*time.Minute), first.ExpiresAt, time.Second)

	second, err := svc.CreateEmailOTP(ctx, "member@example.com", PurposeSignin)
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)

	other, err := svc.CreateEmailOTP(ctx, "member@example.com", PurposeSecondaryEmail)
	require.NoError(t, err)

	var ids []string
	require.NoError(t, db.Model(&models.EmailOTP{}).Order("purpose").Pluck("id", &ids).Error)
	require.ElementsMatch(t, []string{second.ID, other.ID}, ids, "a new code replaces the previous one for the same purpose only")
}

func TestCreateEmailOTPRejectsBadInput(t *testing.T) {
	_, svc, _ := setupOTPService(t)

	_, err := svc.CreateEmailOTP(context.Background(), " ", PurposeSignin)
	require.Error(t, err)

	_, err = svc.CreateEmailOTP(context.Background(), "member@example.com", "password_reset")
	require.Error(t, err)
}

func TestVerifyConsumesCode(t *testing.T) {
	_, svc, _ := setupOTPService(t)
	ctx := context.Background()

	otp, err := svc.CreateEmailOTP(ctx, "member@example.com", PurposeSignin)
	require.NoError(t, err)

	verified, err := svc.Verify(ctx, otp.ID, PurposeSignin, otp.Code)
	require.NoError(t, err)
	require.Equal(t, "member@example.com", verified.Email)

	_, err = svc.Verify(ctx, otp.ID, PurposeSignin, otp.Code)
	require.ErrorIs(t, err, ErrInvalidOrExpiredToken, "codes are single use")
}

func TestVerifyWrongCodeKeepsPendingCode(t *testing.T) {
	_, svc, _ := setupOTPService(t)
	ctx := context.Background()

	otp, err := svc.CreateEmailOTP(ctx, "member@example.com", PurposeSignin)
	require.NoError(t, err)

	_, err = svc.Verify(ctx, otp.ID, PurposeSignin, wrongCode(otp.Code))
	require.ErrorIs(t, err, ErrInvalidOrExpiredToken)
	require.NotErrorIs(t, err, ErrOTPExpired)

	_, err = svc.Verify(ctx, otp.ID, PurposeSecondaryEmail, otp.Code)
	require.ErrorIs(t, err, ErrInvalidOrExpiredToken, "purpose must match")

	_, err = svc.Verify(ctx, otp.ID, PurposeSignin, "")
	require.ErrorIs(t, err, ErrInvalidOrExpiredToken)

	_, err = svc.Verify(ctx, otp.ID, PurposeSignin, otp.Code)
	require.NoError(t, err)
}

func TestVerifyExpiredCodeIsDeleted(t *testing.T) {
	db, svc, clock := setupOTPService(t)
	ctx := context.Background()

	otp, err := svc.CreateEmailOTP(ctx, "member@example.com", PurposeSignin)
	require.NoError(t, err)

	clock.Advance(10 * time.Minute)
	_, err = svc.Verify(ctx, otp.ID, PurposeSignin, otp.Code)
	require.ErrorIs(t, err, ErrInvalidOrExpiredToken)
	require.ErrorIs(t, err, ErrOTPExpired)

	var count int64
	require.NoError(t, db.Model(&models.EmailOTP{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestVerifyUnknownID(t *testing.T) {
	_, svc, _ := setupOTPService(t)

	_, err := svc.Verify(context.Background(), "missing", PurposeSignin, "12345678")
	require.ErrorIs(t, err, ErrInvalidOrExpiredToken)
	require.NotErrorIs(t, err, ErrOTPExpired)
}

func TestVerifyConcurrentSingleUse(t *testing.T) {
	_, svc, _ := setupOTPService(t)
	ctx := context.Background()

	otp, err := svc.CreateEmailOTP(ctx, "member@example.com", PurposeSignin)
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		success atomic.Int32
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Verify(ctx, otp.ID, PurposeSignin, otp.Code); err == nil {
				success.Add(1)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), success.Load())
}

func TestIssueOrReuse(t *testing.T) {
	_, svc, clock := setupOTPService(t)
	ctx := context.Background()

	issued, reused, err := svc.IssueOrReuse(ctx, "", "member@example.com", PurposeSignin)
	require.NoError(t, err)
	require.False(t, reused)

	again, reused, err := svc.IssueOrReuse(ctx, issued.ID, "MEMBER@example.com", PurposeSignin)
	require.NoError(t, err)
	require.True(t, reused)
	require.Equal(t, issued.ID, again.ID)
	require.Equal(t, issued.Code, again.Code)

	switched, reused, err := svc.IssueOrReuse(ctx, issued.ID, "someone@example.com", PurposeSignin)
	require.NoError(t, err)
	require.False(t, reused, "a different address gets its own code")
	require.NotEqual(t, issued.ID, switched.ID)

	clock.Advance(11 * time.Minute)
	fresh, reused, err := svc.IssueOrReuse(ctx, switched.ID, "someone@example.com", PurposeSignin)
	require.NoError(t, err)
	require.False(t, reused, "expired codes are replaced")
	require.NotEqual(t, switched.ID, fresh.ID)

	stale, reused, err := svc.IssueOrReuse(ctx, "no-such-id", "member@example.com", PurposeSignin)
	require.NoError(t, err)
	require.False(t, reused)
	require.NotEmpty(t, stale.ID)
}

func TestGetReturnsOnlyPendingCodes(t *testing.T) {
	_, svc, clock := setupOTPService(t)
	ctx := context.Background()

	otp, err := svc.CreateEmailOTP(ctx, "member@example.com", PurposeSecondaryEmail)
	require.NoError(t, err)

	got, err := svc.Get(ctx, otp.ID)
	require.NoError(t, err)
	require.Equal(t, PurposeSecondaryEmail, got.Purpose)

	clock.Advance(10 * time.Minute)
	_, err = svc.Get(ctx, otp.ID)
	require.ErrorIs(t, err, ErrInvalidOrExpiredToken)
}

func TestOTPCleanupExpired(t *testing.T) {
	_, svc, clock := setupOTPService(t)
	ctx := context.Background()

	_, err := svc.CreateEmailOTP(ctx, "old@example.com", PurposeSignin)
	require.NoError(t, err)

	clock.Advance(5 * time.Minute)
	recent, err := svc.CreateEmailOTP(ctx, "new@example.com", PurposeSignin)
	require.NoError(t, err)

	clock.Advance(5 * time.Minute)
	removed, err := svc.CleanupExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), removed)

	_, err = svc.Get(ctx, recent.ID)
	require.NoError(t, err)
}

func TestNewOTPServiceRejectsUnsupportedDigits(t *testing.T) {
	db, _ := openAuthTestDB(t)

	_, err := NewOTPService(db, OTPConfig{Digits: 7})
	require.Error(t, err)

	svc, err := NewOTPService(db, OTPConfig{Digits: 6})
	require.NoError(t, err)
	otp, err := svc.CreateEmailOTP(context.Background(), "member@example.com", PurposeSignin)
	require.NoError(t, err)
	require.Len(t, otp.Code, 6)
}

func setupOTPService(t *testing.T) (*gorm.DB, *OTPService, clockwork.FakeClock) {
	t.Helper()

	db, clock := openAuthTestDB(t)
	svc, err := NewOTPService(db, OTPConfig{Clock: clock.Now})
	require.NoError(t, err)
	return db, svc, clock
}

func wrongCode(code string) string {
	b := []byte(code)
	if b[0] == '9' {
		b[0] = '0'
	} else {
		b[0]++
	}
	return string(b)
}
