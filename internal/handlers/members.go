package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/charlesng35/clubhouse/internal/auth"
	"github.com/charlesng35/clubhouse/internal/membership"
	"github.com/charlesng35/clubhouse/internal/middleware"
	"github.com/charlesng35/clubhouse/internal/models"
	"github.com/charlesng35/clubhouse/internal/ratelimit"
	"github.com/charlesng35/clubhouse/internal/services"
	appErrors "github.com/charlesng35/clubhouse/pkg/errors"
	"github.com/charlesng35/clubhouse/pkg/response"
)

// MemberAdminHandler exposes the administrator member directory, status workflow and
// QR check-in verification.
type MemberAdminHandler struct {
	members  *services.MemberService
	meetings *services.MeetingService
	qr       *iauth.OpaqueTokenStore
	limiters *ratelimit.Registry
}

func NewMemberAdminHandler(members *services.MemberService, meetings *services.MeetingService, qr *iauth.OpaqueTokenStore, limiters *ratelimit.Registry) (*MemberAdminHandler, error) {
	if members == nil || meetings == nil || qr == nil {
		return nil, errors.New("member admin handler: member, meeting and qr services are required")
	}
	return &MemberAdminHandler{members: members, meetings: meetings, qr: qr, limiters: limiters}, nil
}

// GET /api/admin/members
func (h *MemberAdminHandler) List(c *gin.Context) {
	page, perPage := services.PageBounds(parseIntQuery(c, "page", 1), parseIntQuery(c, "per_page", 50))

	opts := services.MemberListOptions{Page: page, PageSize: perPage, Query: c.Query("q")}
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		status, err := membership.ParseStatus(raw)
		if err != nil {
			respondError(c, err)
			return
		}
		opts.Status = status
	}

	users, total, err := h.members.List(c.Request.Context(), opts)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Paginated(c, users, page, perPage, total)
}

type statusChangeRequest struct {
	Status string `json:"status" validate:"required"`
}

// PATCH /api/admin/members/:id/status
func (h *MemberAdminHandler) ChangeStatus(c *gin.Context) {
	admin, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req statusChangeRequest
	if !bindAndValidate(c, &req) {
		return
	}
	target, err := membership.ParseStatus(req.Status)
	if err != nil {
		respondError(c, err)
		return
	}

	user, err := h.members.ChangeStatus(c.Request.Context(), services.StatusChange{
		ActorID:   admin.ID,
		UserID:    c.Param("id"),
		Target:    target,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"user":        user,
		"next_states": membership.Next(user.Status),
	})
}

type verifyQRRequest struct {
	Token     string `json:"token" validate:"required,max=128"`
	MeetingID string `json:"meeting_id" validate:"omitempty,uuid"`
}

type verifyQRResponse struct {
	Member     *models.User              `json:"member"`
	Attendance *models.MeetingAttendance `json:"attendance,omitempty"`
	CheckedIn  bool                      `json:"checked_in"`
}

// POST /api/admin/qr/verify
func (h *MemberAdminHandler) VerifyQR(c *gin.Context) {
	admin, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req verifyQRRequest
	if !bindAndValidate(c, &req) {
		return
	}
	if !middleware.Allow(c, h.limiters.Get(ratelimit.TokenVerify), admin.ID) {
		return
	}

	ctx := c.Request.Context()
	memberID, err := h.qr.VerifyToken(ctx, req.Token)
	if err != nil {
		if errors.Is(err, iauth.ErrInvalidOrExpiredToken) {
			response.Error(c, appErrors.ErrNotFound)
			return
		}
		respondError(c, err)
		return
	}

	member, err := h.members.Get(ctx, memberID)
	if err != nil {
		respondError(c, err)
		return
	}

	payload := verifyQRResponse{Member: member}
	if req.MeetingID != "" {
		attendance, created, err := h.meetings.CheckIn(ctx, req.MeetingID, member.ID, admin.ID)
		if err != nil {
			respondError(c, err)
			return
		}
		payload.Attendance = attendance
		payload.CheckedIn = created
	}

	response.Success(c, http.StatusOK, payload)
}
