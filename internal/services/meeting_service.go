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

// MeetingInput carries the fields an administrator supplies for a meeting.
type MeetingInput struct {
	Title    string
	StartsAt time.Time
}

// MeetingService manages meetings and attendance.
type MeetingService struct {
	db    *gorm.DB
	audit *AuditService
	now   func() time.Time
}

// NewMeetingService constructs a MeetingService. audit may be nil.
func NewMeetingService(db *gorm.DB, audit *AuditService) (*MeetingService, error) {
	if db == nil {
		return nil, errors.New("meeting service: db is required")
	}
	return &MeetingService{db: db, audit: audit, now: time.Now}, nil
}

func (s *MeetingService) Create(ctx context.Context, createdBy string, input MeetingInput) (*models.Meeting, error) {
	ctx = ensureContext(ctx)

	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, errors.New("meeting service: title is required")
	}

	meeting := &models.Meeting{
		Title:     title,
		StartsAt:  input.StartsAt.UTC(),
		CreatedBy: strings.TrimSpace(createdBy),
	}
	if err := s.db.WithContext(ctx).Create(meeting).Error; err != nil {
		return nil, storeError("meeting service: create meeting", err)
	}

	recordAudit(s.audit, ctx, AuditEntry{
		UserID:   stringPtr(createdBy),
		Action:   "meeting.create",
		Resource: "meetings:" + meeting.ID,
		Result:   AuditResultSuccess,
		Metadata: map[string]any{"title": title},
	})
	return meeting, nil
}

// List returns meetings, most recent first.
func (s *MeetingService) List(ctx context.Context) ([]models.Meeting, error) {
	var meetings []models.Meeting
	if err := s.db.WithContext(ensureContext(ctx)).Order("starts_at DESC").Find(&meetings).Error; err != nil {
		return nil, storeError("meeting service: list meetings", err)
	}
	return meetings, nil
}

func (s *MeetingService) Get(ctx context.Context, id string) (*models.Meeting, error) {
	var meeting models.Meeting
	err := s.db.WithContext(ensureContext(ctx)).Take(&meeting, "id = ?", strings.TrimSpace(id)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrMeetingNotFound
	}
	if err != nil {
		return nil, storeError("meeting service: get meeting", err)
	}
	return &meeting, nil
}

// CheckIn records userID as attending meetingID. Repeated check-ins return the existing
// record; the boolean reports whether a new one was created. Only active members may attend.
func (s *MeetingService) CheckIn(ctx context.Context, meetingID, userID, adminID string) (*models.MeetingAttendance, bool, error) {
	ctx = ensureContext(ctx)

	if _, err := s.Get(ctx, meetingID); err != nil {
		return nil, false, err
	}

	var user models.User
	if err := s.db.WithContext(ctx).Take(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, ErrMemberNotFound
		}
		return nil, false, storeError("meeting service: get member", err)
	}
	if user.Status != membership.StatusActive {
		return nil, false, ErrMemberNotActive
	}

	if existing, err := s.findAttendance(ctx, meetingID, userID); err == nil {
		return existing, false, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, storeError("meeting service: find attendance", err)
	}

	attendance := &models.MeetingAttendance{
		MeetingID:   meetingID,
		UserID:      userID,
		CheckedInBy: strings.TrimSpace(adminID),
		CheckedInAt: s.now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(attendance).Error; err != nil {
		if isUniqueConstraintError(err) {
			if existing, findErr := s.findAttendance(ctx, meetingID, userID); findErr == nil {
				return existing, false, nil
			}
		}
		return nil, false, storeError("meeting service: check in", err)
	}

	recordAudit(s.audit, ctx, AuditEntry{
		UserID:   stringPtr(adminID),
		Action:   "meeting.check_in",
		Resource: "meetings:" + meetingID,
		Result:   AuditResultSuccess,
		Metadata: map[string]any{"member_id": userID},
	})
	return attendance, true, nil
}

// Attendance lists the members checked in to a meeting in check-in order.
func (s *MeetingService) Attendance(ctx context.Context, meetingID string) ([]models.MeetingAttendance, error) {
	ctx = ensureContext(ctx)

	if _, err := s.Get(ctx, meetingID); err != nil {
		return nil, err
	}

	var records []models.MeetingAttendance
	if err := s.db.WithContext(ctx).
		Preload("User").
		Where("meeting_id = ?", meetingID).
		Order("checked_in_at ASC").
		Find(&records).Error; err != nil {
		return nil, storeError("meeting service: list attendance", err)
	}
	return records, nil
}

func (s *MeetingService) findAttendance(ctx context.Context, meetingID, userID string) (*models.MeetingAttendance, error) {
	var record models.MeetingAttendance
	if err := s.db.WithContext(ctx).Take(&record, "meeting_id = ? AND user_id = ?", meetingID, userID).Error; err != nil {
		return nil, err
	}
	return &record, nil
}
