package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/clubhouse/internal/membership"
)

func TestMeetingCreateListGet(t *testing.T) {
	db := openServiceTestDB(t)
	svc, err := NewMeetingService(db, nil)
	require.NoError(t, err)
	ctx := context.Background()

	admin := createMember(t, db, "admin@example.com", membership.StatusActive)
	early, err := svc.Create(ctx, admin.ID, MeetingInput{Title: " Spring social ", StartsAt: time.Date(2024, 3, 1, 18, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	require.Equal(t, "Spring social", early.Title)

	late, err := svc.Create(ctx, admin.ID, MeetingInput{Title: "AGM", StartsAt: time.Date(2024, 6, 1, 18, 0, 0, 0, time.UTC)})
	require.NoError(t, err)

	meetings, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, meetings, 2)
	require.Equal(t, late.ID, meetings[0].ID)

	got, err := svc.Get(ctx, early.ID)
	require.NoError(t, err)
	require.Equal(t, admin.ID, got.CreatedBy)

	_, err = svc.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrMeetingNotFound)

	_, err = svc.Create(ctx, admin.ID, MeetingInput{Title: "  "})
	require.Error(t, err)
}

func TestMeetingCheckInIsIdempotent(t *testing.T) {
	db := openServiceTestDB(t)
	svc, err := NewMeetingService(db, nil)
	require.NoError(t, err)
	ctx := context.Background()

	admin := createMember(t, db, "admin@example.com", membership.StatusActive)
	member := createMember(t, db, "member@example.com", membership.StatusActive)
	meeting, err := svc.Create(ctx, admin.ID, MeetingInput{Title: "Club night", StartsAt: time.Now()})
	require.NoError(t, err)

	first, created, err := svc.CheckIn(ctx, meeting.ID, member.ID, admin.ID)
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, admin.ID, first.CheckedInBy)

	second, created, err := svc.CheckIn(ctx, meeting.ID, member.ID, admin.ID)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, first.ID, second.ID)

	records, err := svc.Attendance(ctx, meeting.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.NotNil(t, records[0].User)
	require.Equal(t, member.Email, records[0].User.Email)
}

func TestMeetingCheckInRequiresActiveMember(t *testing.T) {
	db := openServiceTestDB(t)
	svc, err := NewMeetingService(db, nil)
	require.NoError(t, err)
	ctx := context.Background()

	admin := createMember(t, db, "admin@example.com", membership.StatusActive)
	pending := createMember(t, db, "pending@example.com", membership.StatusAwaitingPayment)
	meeting, err := svc.Create(ctx, admin.ID, MeetingInput{Title: "Club night", StartsAt: time.Now()})
	require.NoError(t, err)

	_, _, err = svc.CheckIn(ctx, meeting.ID, pending.ID, admin.ID)
	require.ErrorIs(t, err, ErrMemberNotActive)

	_, _, err = svc.CheckIn(ctx, meeting.ID, "missing", admin.ID)
	require.ErrorIs(t, err, ErrMemberNotFound)

	_, _, err = svc.CheckIn(ctx, "missing", pending.ID, admin.ID)
	require.ErrorIs(t, err, ErrMeetingNotFound)

	_, err = svc.Attendance(ctx, "missing")
	require.ErrorIs(t, err, ErrMeetingNotFound)
}
