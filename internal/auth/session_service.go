package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/clubhouse/internal/models"
	"github.com/charlesng35/clubhouse/pkg/crypto"
	"github.com/charlesng35/clubhouse/pkg/metrics"
)

const (
	// DefaultSessionTTL is the lifetime a session receives on creation and on renewal.
	DefaultSessionTTL = 30 * 24 * time.Hour
	// DefaultRenewWindow is how close to expiry a validated session must be before it is extended.
	DefaultRenewWindow = 15 * 24 * time.Hour
	// DefaultSessionTokenBytes is the entropy of a raw session token.
	DefaultSessionTokenBytes = 24
)

// SessionConfig describes tunable behaviour for the SessionService.
type SessionConfig struct {
	TTL         time.Duration
	RenewWindow time.Duration
	TokenBytes  int
	Clock       func() time.Time
}

// SessionMetadata captures contextual information about the client.
type SessionMetadata struct {
	IPAddress string
	UserAgent string
}

// SessionService issues and validates server-side sessions. Only the SHA-256 digest of the
// cookie token is stored, so a database leak does not expose usable tokens.
type SessionService struct {
	db          *gorm.DB
	ttl         time.Duration
	renewWindow time.Duration
	tokenBytes  int
	now         func() time.Time
}

// NewSessionService constructs a session manager backed by the provided database.
func NewSessionService(db *gorm.DB, cfg SessionConfig) (*SessionService, error) {
	if db == nil {
		return nil, errors.New("session service: db is required")
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}

	window := cfg.RenewWindow
	if window <= 0 {
		window = DefaultRenewWindow
	}
	if window > ttl {
		return nil, errors.New("session service: renew window must not exceed the session ttl")
	}

	length := cfg.TokenBytes
	if length <= 0 {
		length = DefaultSessionTokenBytes
	}

	clock := time.Now
	if cfg.Clock != nil {
		clock = cfg.Clock
	}

	return &SessionService{
		db:          db,
		ttl:         ttl,
		renewWindow: window,
		tokenBytes:  length,
		now:         clock,
	}, nil
}

// TTL returns the lifetime applied on creation and renewal.
func (s *SessionService) TTL() time.Duration { return s.ttl }

// Now reads the clock session expiry is computed against.
func (s *SessionService) Now() time.Time { return s.now() }

// CreateSession stores a new session for userID and returns the raw token for the cookie.
func (s *SessionService) CreateSession(ctx context.Context, userID string, meta SessionMetadata) (string, *models.Session, error) {
	if strings.TrimSpace(userID) == "" {
		return "", nil, errors.New("session service: user id is required")
	}

	raw, err := crypto.GenerateToken(s.tokenBytes)
	if err != nil {
		return "", nil, err
	}

	now := s.now().UTC()
	session := &models.Session{
		ID:        crypto.HashToken(raw),
		UserID:    userID,
		IPAddress: strings.TrimSpace(meta.IPAddress),
		UserAgent: strings.TrimSpace(meta.UserAgent),
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	}

	if err := s.db.WithContext(ctx).Create(session).Error; err != nil {
		return "", nil, storeError("session service: create session", err)
	}

	metrics.ActiveSessions.Inc()
	return raw, session, nil
}

// ValidateSessionToken resolves a raw cookie token into its session and user. Expired
// sessions are deleted on sight. Sessions within the renewal window are extended to a full
// TTL and reported with Renewed set.
func (s *SessionService) ValidateSessionToken(ctx context.Context, raw string) (*models.Session, *models.User, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil, ErrInvalidOrExpiredToken
	}

	id := crypto.HashToken(raw)

	var session models.Session
	err := s.db.WithContext(ctx).Preload("User").Take(&session, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		metrics.TokenVerifications.WithLabelValues("session", "miss").Inc()
		return nil, nil, ErrInvalidOrExpiredToken
	}
	if err != nil {
		return nil, nil, storeError("session service: find session", err)
	}

	now := s.now().UTC()
	if !now.Before(session.ExpiresAt) {
		if err := s.InvalidateSession(ctx, session.ID); err != nil {
			return nil, nil, err
		}
		metrics.TokenVerifications.WithLabelValues("session", "expired").Inc()
		return nil, nil, ErrInvalidOrExpiredToken
	}
	if session.User == nil {
		metrics.TokenVerifications.WithLabelValues("session", "miss").Inc()
		return nil, nil, ErrInvalidOrExpiredToken
	}

	if !now.Before(session.ExpiresAt.Add(-s.renewWindow)) {
		expiresAt := now.Add(s.ttl)
		if err := s.db.WithContext(ctx).
			Model(&models.Session{}).
			Where("id = ?", session.ID).
			Update("expires_at", expiresAt).Error; err != nil {
			return nil, nil, storeError("session service: renew session", err)
		}
		session.ExpiresAt = expiresAt
		session.Renewed = true
	}

	metrics.TokenVerifications.WithLabelValues("session", "hit").Inc()
	return &session, session.User, nil
}

// InvalidateSession deletes a session. Deleting an absent session is not an error.
func (s *SessionService) InvalidateSession(ctx context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return nil
	}

	result := s.db.WithContext(ctx).Where("id = ?", sessionID).Delete(&models.Session{})
	if result.Error != nil {
		return storeError("session service: delete session", result.Error)
	}
	if result.RowsAffected > 0 {
		metrics.ActiveSessions.Sub(float64(result.RowsAffected))
	}
	return nil
}

// InvalidateUserSessions deletes every session belonging to userID.
func (s *SessionService) InvalidateUserSessions(ctx context.Context, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return nil
	}

	result := s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.Session{})
	if result.Error != nil {
		return storeError("session service: delete user sessions", result.Error)
	}
	if result.RowsAffected > 0 {
		metrics.ActiveSessions.Sub(float64(result.RowsAffected))
	}
	return nil
}

// CleanupExpired removes sessions at or past their expiry and returns how many were deleted.
func (s *SessionService) CleanupExpired(ctx context.Context) (int64, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	result := s.db.WithContext(ctx).
		Where("expires_at <= ?", s.now().UTC()).
		Delete(&models.Session{})
	if result.Error != nil {
		return 0, storeError("session service: cleanup expired sessions", result.Error)
	}

	if _, err := s.SyncActiveSessions(ctx); err != nil {
		return result.RowsAffected, err
	}
	return result.RowsAffected, nil
}

// SyncActiveSessions recounts unexpired sessions and sets the active-session gauge from the
// stored rows, so the gauge stays correct across restarts and multiple instances.
func (s *SessionService) SyncActiveSessions(ctx context.Context) (int64, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	var active int64
	if err := s.db.WithContext(ctx).
		Model(&models.Session{}).
		Where("expires_at > ?", s.now().UTC()).
		Count(&active).Error; err != nil {
		return 0, storeError("session service: count active sessions", err)
	}

	metrics.ActiveSessions.Set(float64(active))
	return active, nil
}
