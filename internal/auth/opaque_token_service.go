package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/charlesng35/clubhouse/internal/models"
	"github.com/charlesng35/clubhouse/pkg/crypto"
	"github.com/charlesng35/clubhouse/pkg/metrics"
)

// OpaqueTokenBytes is the entropy of QR and share tokens.
const OpaqueTokenBytes = 32

// OpaqueTokenStore manages a long-lived bearer token stored in a unique column of an owner
// row. Tokens never expire; they change only when regenerated.
type OpaqueTokenStore struct {
	db       *gorm.DB
	kind     string
	column   string
	newModel func() any
	generate func() (string, error)
}

// NewQRTokenStore returns the store for member check-in tokens (users.qr_token).
func NewQRTokenStore(db *gorm.DB) *OpaqueTokenStore {
	return newOpaqueTokenStore(db, "qr", "qr_token", func() any { return &models.User{} })
}

// NewShareTokenStore returns the store for meeting share links (meetings.share_token).
func NewShareTokenStore(db *gorm.DB) *OpaqueTokenStore {
	return newOpaqueTokenStore(db, "share", "share_token", func() any { return &models.Meeting{} })
}

func newOpaqueTokenStore(db *gorm.DB, kind, column string, newModel func() any) *OpaqueTokenStore {
	return &OpaqueTokenStore{
		db:       db,
		kind:     kind,
		column:   column,
		newModel: newModel,
		generate: func() (string, error) { return crypto.GenerateToken(OpaqueTokenBytes) },
	}
}

// Kind names the token family for logs and metrics.
func (s *OpaqueTokenStore) Kind() string { return s.kind }

// EnsureToken returns the owner's token, creating one on first use. The first write only
// lands when the column is still empty, so concurrent callers converge on a single token.
func (s *OpaqueTokenStore) EnsureToken(ctx context.Context, ownerID string) (string, error) {
	token, err := s.current(ctx, ownerID)
	if err != nil || token != "" {
		return token, err
	}

	candidate, err := s.generate()
	if err != nil {
		return "", err
	}

	cond := fmt.Sprintf("id = ? AND (%s IS NULL OR %s = '')", s.column, s.column)
	if err := s.db.WithContext(ctx).
		Model(s.newModel()).
		Where(cond, ownerID).
		Update(s.column, candidate).Error; err != nil {
		return "", storeError("opaque token: "+s.kind+": assign", err)
	}

	token, err = s.current(ctx, ownerID)
	if err != nil {
		return "", err
	}
	if token == "" {
		return "", storeError("opaque token: "+s.kind+": assign", errors.New("token not persisted"))
	}
	return token, nil
}

// RegenerateToken replaces the owner's token unconditionally. The previous token stops
// verifying immediately.
func (s *OpaqueTokenStore) RegenerateToken(ctx context.Context, ownerID string) (string, error) {
	if strings.TrimSpace(ownerID) == "" {
		return "", ErrOwnerNotFound
	}

	token, err := s.generate()
	if err != nil {
		return "", err
	}

	result := s.db.WithContext(ctx).
		Model(s.newModel()).
		Where("id = ?", ownerID).
		Update(s.column, token)
	if result.Error != nil {
		return "", storeError("opaque token: "+s.kind+": regenerate", result.Error)
	}
	if result.RowsAffected == 0 {
		return "", ErrOwnerNotFound
	}
	return token, nil
}

// VerifyToken resolves a token to its owner id by exact match.
func (s *OpaqueTokenStore) VerifyToken(ctx context.Context, token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		metrics.TokenVerifications.WithLabelValues(s.kind, "miss").Inc()
		return "", ErrInvalidOrExpiredToken
	}

	var ids []string
	if err := s.db.WithContext(ctx).
		Model(s.newModel()).
		Where(s.column+" = ?", token).
		Limit(1).
		Pluck("id", &ids).Error; err != nil {
		return "", storeError("opaque token: "+s.kind+": verify", err)
	}
	if len(ids) == 0 {
		metrics.TokenVerifications.WithLabelValues(s.kind, "miss").Inc()
		return "", ErrInvalidOrExpiredToken
	}

	metrics.TokenVerifications.WithLabelValues(s.kind, "hit").Inc()
	return ids[0], nil
}

func (s *OpaqueTokenStore) current(ctx context.Context, ownerID string) (string, error) {
	if strings.TrimSpace(ownerID) == "" {
		return "", ErrOwnerNotFound
	}

	var tokens []sql.NullString
	if err := s.db.WithContext(ctx).
		Model(s.newModel()).
		Where("id = ?", ownerID).
		Limit(1).
		Pluck(s.column, &tokens).Error; err != nil {
		return "", storeError("opaque token: "+s.kind+": read", err)
	}
	if len(tokens) == 0 {
		return "", ErrOwnerNotFound
	}
	return tokens[0].String, nil
}
