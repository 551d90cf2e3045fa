package services

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	iauth "github.com/charlesng35/clubhouse/internal/auth"
	"github.com/charlesng35/clubhouse/internal/membership"
	"github.com/charlesng35/clubhouse/internal/models"
)

func TestFindOrCreateByEmail(t *testing.T) {
	db := openServiceTestDB(t)
	svc, err := NewMemberService(db, nil)
	require.NoError(t, err)
	ctx := context.Background()

	user, created, err := svc.FindOrCreateByEmail(ctx, " New.Member@Example.com ")
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, "new.member@example.com", user.Email)
	require.Equal(t, membership.StatusAwaitingPayment, user.Status)

	again, created, err := svc.FindOrCreateByEmail(ctx, "new.member@example.com")
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, user.ID, again.ID)

	_, _, err = svc.FindOrCreateByEmail(ctx, "  ")
	require.Error(t, err)
}

func TestChangeStatusFollowsTransitionTable(t *testing.T) {
	db := openServiceTestDB(t)
	audit, err := NewAuditService(db)
	require.NoError(t, err)
	svc, err := NewMemberService(db, audit)
	require.NoError(t, err)
	ctx := context.Background()

	admin := createMember(t, db, "admin@example.com", membership.StatusActive)
	member := createMember(t, db, "member@example.com", membership.StatusAwaitingPayment)

	updated, err := svc.ChangeStatus(ctx, StatusChange{ActorID: admin.ID, UserID: member.ID, Target: membership.StatusAwaitingApproval})
	require.NoError(t, err)
	require.Equal(t, membership.StatusAwaitingApproval, updated.Status)

	_, err = svc.ChangeStatus(ctx, StatusChange{ActorID: admin.ID, UserID: member.ID, Target: membership.StatusResigned})
	require.ErrorIs(t, err, membership.ErrInvalidTransition)

	_, err = svc.ChangeStatus(ctx, StatusChange{ActorID: admin.ID, UserID: member.ID, Target: membership.StatusAwaitingApproval})
	require.ErrorIs(t, err, membership.ErrInvalidTransition, "self transitions are rejected")

	var stored models.User
	require.NoError(t, db.Take(&stored, "id = ?", member.ID).Error)
	require.Equal(t, membership.StatusAwaitingApproval, stored.Status)

	logs, total, err := audit.List(ctx, AuditListOptions{Filters: AuditFilters{Action: "member.status_change"}})
	require.NoError(t, err)
	require.Equal(t, int64(3), total)
	require.Len(t, logs, 3)

	_, err = svc.ChangeStatus(ctx, StatusChange{ActorID: admin.ID, UserID: "missing", Target: membership.StatusActive})
	require.ErrorIs(t, err, ErrMemberNotFound)
}

func TestChangeStatusConcurrentRequestsApplyOnce(t *testing.T) {
	db := openServiceTestDB(t)
	svc, err := NewMemberService(db, nil)
	require.NoError(t, err)

	member := createMember(t, db, "member@example.com", membership.StatusAwaitingApproval)

	targets := []membership.Status{
		membership.StatusActive, membership.StatusActive,
		membership.StatusActive, membership.StatusActive,
	}
	var (
		wg   sync.WaitGroup
		wins atomic.Int32
		errs = make(chan error, len(targets))
	)
	for _, target := range targets {
		wg.Add(1)
		go func(target membership.Status) {
			defer wg.Done()
			_, err := svc.ChangeStatus(context.Background(), StatusChange{UserID: member.ID, Target: target})
			if err == nil {
				wins.Add(1)
				return
			}
			errs <- err
		}(target)
	}
	wg.Wait()
	close(errs)

	require.Equal(t, int32(1), wins.Load())
	for err := range errs {
		require.ErrorIs(t, err, membership.ErrInvalidTransition)
	}
}

func TestSetSecondaryEmail(t *testing.T) {
	db := openServiceTestDB(t)
	svc, err := NewMemberService(db, nil)
	require.NoError(t, err)
	ctx := context.Background()

	member := createMember(t, db, "member@example.com", membership.StatusActive)
	createMember(t, db, "taken@example.com", membership.StatusActive)

	updated, err := svc.SetSecondaryEmail(ctx, member.ID, "Work@Example.com")
	require.NoError(t, err)
	require.Equal(t, "work@example.com", updated.SecondaryEmail)

	_, err = svc.SetSecondaryEmail(ctx, member.ID, "taken@example.com")
	require.ErrorIs(t, err, ErrEmailInUse)

	_, err = svc.SetSecondaryEmail(ctx, member.ID, "member@example.com")
	require.ErrorIs(t, err, ErrEmailInUse)
}

func TestListMembers(t *testing.T) {
	db := openServiceTestDB(t)
	svc, err := NewMemberService(db, nil)
	require.NoError(t, err)
	ctx := context.Background()

	createMember(t, db, "b@example.com", membership.StatusActive)
	createMember(t, db, "a@example.com", membership.StatusActive)
	createMember(t, db, "c@example.com", membership.StatusAwaitingPayment)

	all, total, err := svc.List(ctx, MemberListOptions{})
	require.NoError(t, err)
	require.Equal(t, int64(3), total)
	require.Equal(t, "a@example.com", all[0].Email)

	active, total, err := svc.List(ctx, MemberListOptions{Status: membership.StatusActive})
	require.NoError(t, err)
	require.Equal(t, int64(2), total)
	require.Len(t, active, 2)

	found, total, err := svc.List(ctx, MemberListOptions{Query: "C@"})
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	require.Equal(t, "c@example.com", found[0].Email)

	paged, total, err := svc.List(ctx, MemberListOptions{Page: 2, PageSize: 2})
	require.NoError(t, err)
	require.Equal(t, int64(3), total)
	require.Len(t, paged, 1)
}

func TestRecordLogin(t *testing.T) {
	db := openServiceTestDB(t)
	svc, err := NewMemberService(db, nil)
	require.NoError(t, err)

	member := createMember(t, db, "member@example.com", membership.StatusActive)
	require.NoError(t, svc.RecordLogin(context.Background(), member.ID, "192.0.2.4"))

	stored, err := svc.Get(context.Background(), member.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastLoginAt)
	require.Equal(t, "192.0.2.4", stored.LastLoginIP)
}

func TestServicesReportStoreFailuresAsUnavailable(t *testing.T) {
	db := openServiceTestDB(t)
	members, err := NewMemberService(db, nil)
	require.NoError(t, err)
	meetings, err := NewMeetingService(db, nil)
	require.NoError(t, err)
	member := createMember(t, db, "member@example.com", membership.StatusActive)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	ctx := context.Background()
	_, err = members.Get(ctx, member.ID)
	require.ErrorIs(t, err, iauth.ErrStoreUnavailable)

	_, _, err = members.List(ctx, MemberListOptions{})
	require.ErrorIs(t, err, iauth.ErrStoreUnavailable)

	_, _, err = members.FindOrCreateByEmail(ctx, "new@example.com")
	require.ErrorIs(t, err, iauth.ErrStoreUnavailable)

	_, err = meetings.List(ctx)
	require.ErrorIs(t, err, iauth.ErrStoreUnavailable)

	_, err = meetings.Get(ctx, "missing")
	require.ErrorIs(t, err, iauth.ErrStoreUnavailable)
	require.NotErrorIs(t, err, ErrMeetingNotFound)
}
