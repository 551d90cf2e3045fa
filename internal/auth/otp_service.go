package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/clubhouse/internal/models"
	"github.com/charlesng35/clubhouse/pkg/crypto"
	"github.com/charlesng35/clubhouse/pkg/metrics"
)

// OTP purposes. A code issued for one purpose never verifies for another.
const (
	PurposeSignin         = "signin"
	PurposeSecondaryEmail = "secondary_email"
)

const (
	DefaultOTPTTL    = 10 * time.Minute
	DefaultOTPDigits = 8
)

// OTPConfig describes tunable behaviour for the OTPService.
type OTPConfig struct {
	TTL    time.Duration
	Digits int
	Clock  func() time.Time
}

// OTPService issues and verifies single-use numeric codes sent by email.
type OTPService struct {
	db     *gorm.DB
	ttl    time.Duration
	digits int
	now    func() time.Time
}

// NewOTPService constructs an OTP store backed by the provided database.
func NewOTPService(db *gorm.DB, cfg OTPConfig) (*OTPService, error) {
	if db == nil {
		return nil, errors.New("otp service: db is required")
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultOTPTTL
	}

	digits := cfg.Digits
	if digits == 0 {
		digits = DefaultOTPDigits
	}
	if digits != 6 && digits != 8 {
		return nil, fmt.Errorf("otp service: unsupported code length %d", digits)
	}

	clock := time.Now
	if cfg.Clock != nil {
		clock = cfg.Clock
	}

	return &OTPService{db: db, ttl: ttl, digits: digits, now: clock}, nil
}

// NormalizeEmail trims and lower-cases an address so lookups are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidPurpose reports whether purpose is a known OTP purpose.
func ValidPurpose(purpose string) bool {
	return purpose == PurposeSignin || purpose == PurposeSecondaryEmail
}

// CreateEmailOTP replaces any pending code for email and purpose with a fresh one.
func (s *OTPService) CreateEmailOTP(ctx context.Context, email, purpose string) (*models.EmailOTP, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, errors.New("otp service: email is required")
	}
	if !ValidPurpose(purpose) {
		return nil, fmt.Errorf("otp service: unknown purpose %q", purpose)
	}

	code, err := crypto.GenerateNumericCode(s.digits)
	if err != nil {
		return nil, fmt.Errorf("otp service: generate code: %w", err)
	}

	otp := &models.EmailOTP{
		Email:     email,
		Purpose:   purpose,
		Code:      code,
		ExpiresAt: s.now().UTC().Add(s.ttl),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("email = ? AND purpose = ?", email, purpose).Delete(&models.EmailOTP{}).Error; err != nil {
			return err
		}
		return tx.Create(otp).Error
	})
	if err != nil {
		return nil, storeError("otp service: create otp", err)
	}

	metrics.OTPIssued.WithLabelValues(purpose, "issued").Inc()
	return otp, nil
}

// IssueOrReuse returns the pending code referenced by existingID when it is still valid for
// the same email and purpose; otherwise it issues a new one. The boolean reports reuse, in
// which case the caller must not send the code again.
func (s *OTPService) IssueOrReuse(ctx context.Context, existingID, email, purpose string) (*models.EmailOTP, bool, error) {
	if existingID = strings.TrimSpace(existingID); existingID != "" {
		otp, err := s.Get(ctx, existingID)
		switch {
		case err == nil:
			if otp.Email == NormalizeEmail(email) && otp.Purpose == purpose {
				metrics.OTPIssued.WithLabelValues(purpose, "reused").Inc()
				return otp, true, nil
			}
		case errors.Is(err, ErrInvalidOrExpiredToken):
		default:
			return nil, false, err
		}
	}

	otp, err := s.CreateEmailOTP(ctx, email, purpose)
	if err != nil {
		return nil, false, err
	}
	return otp, false, nil
}

// Get returns a pending, unexpired code. Expired rows are deleted when encountered.
func (s *OTPService) Get(ctx context.Context, id string) (*models.EmailOTP, error) {
	otp, err := s.lookup(ctx, id)
	if err != nil {
		if errors.Is(err, ErrOTPExpired) {
			return nil, ErrInvalidOrExpiredToken
		}
		return nil, err
	}
	return otp, nil
}

// Verify consumes the code identified by id when code matches and it has not expired.
// Every failure matches ErrInvalidOrExpiredToken; a lapsed code additionally matches
// ErrOTPExpired and is deleted. A wrong code leaves the row in place.
func (s *OTPService) Verify(ctx context.Context, id, purpose, code string) (*models.EmailOTP, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrInvalidOrExpiredToken
	}

	otp, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if otp.Purpose != purpose {
		return nil, ErrInvalidOrExpiredToken
	}
	if !crypto.ConstantTimeEqual(otp.Code, code) {
		return nil, ErrInvalidOrExpiredToken
	}

	result := s.db.WithContext(ctx).Where("id = ?", otp.ID).Delete(&models.EmailOTP{})
	if result.Error != nil {
		return nil, storeError("otp service: consume otp", result.Error)
	}
	// A concurrent verification consumed it first.
	if result.RowsAffected == 0 {
		return nil, ErrInvalidOrExpiredToken
	}
	return otp, nil
}

// Delete removes a pending code. Missing rows are ignored.
func (s *OTPService) Delete(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return nil
	}
	if err := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.EmailOTP{}).Error; err != nil {
		return storeError("otp service: delete otp", err)
	}
	return nil
}

// CleanupExpired removes codes at or past their expiry and returns how many were deleted.
func (s *OTPService) CleanupExpired(ctx context.Context) (int64, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	result := s.db.WithContext(ctx).
		Where("expires_at <= ?", s.now().UTC()).
		Delete(&models.EmailOTP{})
	if result.Error != nil {
		return 0, storeError("otp service: cleanup expired otps", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *OTPService) lookup(ctx context.Context, id string) (*models.EmailOTP, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrInvalidOrExpiredToken
	}

	var otp models.EmailOTP
	err := s.db.WithContext(ctx).Take(&otp, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidOrExpiredToken
	}
	if err != nil {
		return nil, storeError("otp service: find otp", err)
	}

	if !s.now().UTC().Before(otp.ExpiresAt) {
		if err := s.Delete(ctx, otp.ID); err != nil {
			return nil, err
		}
		return &otp, ErrOTPExpired
	}
	return &otp, nil
}
