package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/clubhouse/internal/membership"
	"github.com/charlesng35/clubhouse/internal/models"
)

// MemberListOptions filters and paginates the member directory.
type MemberListOptions struct {
	Page     int
	PageSize int
	Status   membership.Status
	Query    string
}

// StatusChange describes an administrator moving a member to a new status.
type StatusChange struct {
	ActorID   string
	UserID    string
	Target    membership.Status
	IPAddress string
	UserAgent string
}

// MemberService manages member records and their lifecycle.
type MemberService struct {
	db    *gorm.DB
	audit *AuditService
	now   func() time.Time
}

// NewMemberService constructs a MemberService. audit may be nil.
func NewMemberService(db *gorm.DB, audit *AuditService) (*MemberService, error) {
	if db == nil {
		return nil, errors.New("member service: db is required")
	}
	return &MemberService{db: db, audit: audit, now: time.Now}, nil
}

// Get returns a member by id.
func (s *MemberService) Get(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ensureContext(ctx)).Take(&user, "id = ?", strings.TrimSpace(id)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrMemberNotFound
	}
	if err != nil {
		return nil, storeError("member service: get member", err)
	}
	return &user, nil
}

// FindOrCreateByEmail returns the member owning email, creating one awaiting payment on
// first sign-in. The boolean reports creation.
func (s *MemberService) FindOrCreateByEmail(ctx context.Context, email string) (*models.User, bool, error) {
	ctx = ensureContext(ctx)
	email = normaliseEmail(email)
	if email == "" {
		return nil, false, errors.New("member service: email is required")
	}

	user, err := s.findByEmail(ctx, email)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, ErrMemberNotFound) {
		return nil, false, err
	}

	user = &models.User{
		Email:  email,
		Status: membership.StatusAwaitingPayment,
	}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		// Two first sign-ins raced; the other insert won.
		if isUniqueConstraintError(err) {
			existing, findErr := s.findByEmail(ctx, email)
			if findErr == nil {
				return existing, false, nil
			}
		}
		return nil, false, storeError("member service: create member", err)
	}

	recordAudit(s.audit, ctx, AuditEntry{
		UserID:   &user.ID,
		Action:   "member.create",
		Resource: "users",
		Result:   AuditResultSuccess,
		Metadata: map[string]any{"email": email},
	})
	return user, true, nil
}

// RecordLogin stamps the member's last sign-in.
func (s *MemberService) RecordLogin(ctx context.Context, userID, ip string) error {
	now := s.now().UTC()
	err := s.db.WithContext(ensureContext(ctx)).
		Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{"last_login_at": now, "last_login_ip": strings.TrimSpace(ip)}).Error
	if err != nil {
		return storeError("member service: record login", err)
	}
	return nil
}

// SetSecondaryEmail stores a verified secondary address for the member.
func (s *MemberService) SetSecondaryEmail(ctx context.Context, userID, email string) (*models.User, error) {
	ctx = ensureContext(ctx)
	email = normaliseEmail(email)
	if email == "" {
		return nil, errors.New("member service: email is required")
	}

	user, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Email == email {
		return nil, ErrEmailInUse
	}
	if other, err := s.findByEmail(ctx, email); err == nil && other.ID != user.ID {
		return nil, ErrEmailInUse
	} else if err != nil && !errors.Is(err, ErrMemberNotFound) {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Model(user).Update("secondary_email", email).Error; err != nil {
		return nil, storeError("member service: set secondary email", err)
	}
	user.SecondaryEmail = email

	recordAudit(s.audit, ctx, AuditEntry{
		UserID:   &user.ID,
		Action:   "member.secondary_email",
		Resource: "users",
		Result:   AuditResultSuccess,
		Metadata: map[string]any{"secondary_email": email},
	})
	return user, nil
}

// List returns members ordered by email.
func (s *MemberService) List(ctx context.Context, opts MemberListOptions) ([]models.User, int64, error) {
	page, perPage := PageBounds(opts.Page, opts.PageSize)

	query := s.db.WithContext(ensureContext(ctx)).Model(&models.User{})
	if opts.Status != "" {
		query = query.Where("status = ?", opts.Status)
	}
	if q := strings.ToLower(strings.TrimSpace(opts.Query)); q != "" {
		like := "%" + q + "%"
		query = query.Where("LOWER(email) LIKE ? OR LOWER(name) LIKE ?", like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, storeError("member service: count members", err)
	}

	var users []models.User
	if err := query.
		Order("email ASC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&users).Error; err != nil {
		return nil, 0, storeError("member service: list members", err)
	}
	return users, total, nil
}

// ChangeStatus applies an administrator-requested status transition. The update only lands
// when the stored status still equals the one the transition was validated against.
func (s *MemberService) ChangeStatus(ctx context.Context, change StatusChange) (*models.User, error) {
	ctx = ensureContext(ctx)

	user, err := s.Get(ctx, change.UserID)
	if err != nil {
		return nil, err
	}

	from := user.Status
	entry := AuditEntry{
		UserID:    stringPtr(change.ActorID),
		Action:    "member.status_change",
		Resource:  "users:" + user.ID,
		IPAddress: change.IPAddress,
		UserAgent: change.UserAgent,
		Metadata:  map[string]any{"from": string(from), "to": string(change.Target)},
	}

	if _, err := membership.ValidateTransition(from, change.Target); err != nil {
		entry.Result = AuditResultFailure
		recordAudit(s.audit, ctx, entry)
		return nil, err
	}

	result := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ? AND status = ?", user.ID, from).
		Update("status", change.Target)
	if result.Error != nil {
		return nil, storeError("member service: change status", result.Error)
	}
	if result.RowsAffected == 0 {
		entry.Result = AuditResultFailure
		recordAudit(s.audit, ctx, entry)
		return nil, ErrStatusChanged
	}

	user.Status = change.Target
	entry.Result = AuditResultSuccess
	recordAudit(s.audit, ctx, entry)
	return user, nil
}

func (s *MemberService) findByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Take(&user, "email = ?", email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrMemberNotFound
	}
	if err != nil {
		return nil, storeError("member service: find member", err)
	}
	return &user, nil
}
