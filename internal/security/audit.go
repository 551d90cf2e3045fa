package security

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/clubhouse/internal/app"
	"github.com/charlesng35/clubhouse/internal/membership"
	"github.com/charlesng35/clubhouse/internal/models"
)

// CheckStatus captures the outcome of a security audit check.
type CheckStatus string

const (
	StatusPass CheckStatus = "pass"
	StatusWarn CheckStatus = "warn"
	StatusFail CheckStatus = "fail"
)

// Check contains the result of a single audit verification.
type Check struct {
	ID          string      `json:"id"`
	Status      CheckStatus `json:"status"`
	Message     string      `json:"message"`
	Remediation string      `json:"remediation,omitempty"`
	Details     any         `json:"details,omitempty"`
}

// Result aggregates all checks with a simple status summary.
type Result struct {
	CheckedAt time.Time      `json:"checked_at"`
	Checks    []Check        `json:"checks"`
	Summary   map[string]int `json:"summary"`
}

const maxRecommendedSessionTTL = 90 * 24 * time.Hour

// AuditService evaluates the deployed access controls. Missing inputs degrade
// individual checks to warnings.
type AuditService struct {
	db  *gorm.DB
	cfg *app.Config
	now func() time.Time
}

func NewAuditService(db *gorm.DB, cfg *app.Config) *AuditService {
	return &AuditService{db: db, cfg: cfg, now: time.Now}
}

// WithClock overrides the clock stamped on results.
func (s *AuditService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Run executes all audit checks and returns their outcome.
func (s *AuditService) Run(ctx context.Context) Result {
	if ctx == nil {
		ctx = context.Background()
	}

	checks := []Check{
		s.checkActiveAdmin(ctx),
		s.checkCookieSecret(),
		s.checkSecureCookies(),
		s.checkSessionLifetime(),
		s.checkOTPLifetime(),
	}

	summary := map[string]int{
		string(StatusPass): 0,
		string(StatusWarn): 0,
		string(StatusFail): 0,
	}
	for _, check := range checks {
		summary[string(check.Status)]++
	}

	return Result{
		CheckedAt: s.now().UTC(),
		Checks:    checks,
		Summary:   summary,
	}
}

func (s *AuditService) checkActiveAdmin(ctx context.Context) Check {
	const id = "active_admin_present"
	if s.db == nil {
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     "Database unavailable, unable to confirm an administrator exists.",
			Remediation: "Ensure database connectivity before running the audit.",
		}
	}

	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("is_admin = ? AND status = ?", true, membership.StatusActive).
		Count(&count).Error; err != nil {
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     fmt.Sprintf("Could not count administrators: %v", err),
			Remediation: "Retry after resolving database errors.",
		}
	}

	if count == 0 {
		return Check{
			ID:          id,
			Status:      StatusFail,
			Message:     "No active administrator found.",
			Remediation: "List at least one address in auth.admin_emails and restart.",
		}
	}

	return Check{
		ID:      id,
		Status:  StatusPass,
		Message: "Active administrator present.",
		Details: map[string]any{"count": count},
	}
}

func (s *AuditService) checkCookieSecret() Check {
	const id = "cookie_secret"
	if s.cfg == nil {
		return configMissing(id)
	}

	if _, err := s.cfg.Security.CookieKey(); err != nil {
		return Check{
			ID:          id,
			Status:      StatusFail,
			Message:     err.Error(),
			Remediation: "Set CLUBHOUSE_SECURITY_COOKIE_SECRET to 32 random bytes encoded as hex or base64.",
		}
	}

	return Check{ID: id, Status: StatusPass, Message: "Cookie sealing key configured."}
}

func (s *AuditService) checkSecureCookies() Check {
	const id = "secure_cookies"
	if s.cfg == nil {
		return configMissing(id)
	}

	if s.cfg.Server.IsDevelopment() {
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     "Development mode issues cookies without the Secure attribute.",
			Remediation: "Set server.environment to production when serving over HTTPS.",
		}
	}

	return Check{ID: id, Status: StatusPass, Message: "Cookies are marked Secure."}
}

func (s *AuditService) checkSessionLifetime() Check {
	const id = "session_lifetime"
	if s.cfg == nil {
		return configMissing(id)
	}

	settings := s.cfg.Auth.SessionServiceConfig()
	details := map[string]any{
		"ttl":          settings.TTL.String(),
		"renew_window": settings.RenewWindow.String(),
	}

	switch {
	case settings.RenewWindow > settings.TTL:
		return Check{
			ID:          id,
			Status:      StatusFail,
			Message:     "Session renew window exceeds the session lifetime.",
			Remediation: "Set auth.session.renew_window to at most auth.session.ttl.",
			Details:     details,
		}
	case settings.TTL > maxRecommendedSessionTTL:
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     fmt.Sprintf("Session lifetime (%s) exceeds recommended maximum (%s).", settings.TTL, maxRecommendedSessionTTL),
			Remediation: "Reduce auth.session.ttl to limit exposure of stolen cookies.",
			Details:     details,
		}
	default:
		return Check{
			ID:      id,
			Status:  StatusPass,
			Message: fmt.Sprintf("Session lifetime is %s.", settings.TTL),
			Details: details,
		}
	}
}

func (s *AuditService) checkOTPLifetime() Check {
	const id = "otp_lifetime"
	if s.cfg == nil {
		return configMissing(id)
	}

	settings := s.cfg.Auth.OTPServiceConfig()
	details := map[string]any{"ttl": settings.TTL.String(), "digits": settings.Digits}

	if settings.Digits < 8 || settings.TTL > 15*time.Minute {
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     "Sign-in codes are short or long-lived.",
			Remediation: "Use 8 digit codes valid for at most 15 minutes.",
			Details:     details,
		}
	}

	return Check{
		ID:      id,
		Status:  StatusPass,
		Message: fmt.Sprintf("Sign-in codes have %d digits and expire after %s.", settings.Digits, settings.TTL),
		Details: details,
	}
}

func configMissing(id string) Check {
	return Check{
		ID:          id,
		Status:      StatusWarn,
		Message:     "Configuration not loaded.",
		Remediation: "Load configuration before running the security audit.",
	}
}
