package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	iauth "github.com/charlesng35/clubhouse/internal/auth"
	"github.com/charlesng35/clubhouse/internal/middleware"
	"github.com/charlesng35/clubhouse/internal/ratelimit"
	"github.com/charlesng35/clubhouse/internal/services"
	appErrors "github.com/charlesng35/clubhouse/pkg/errors"
	"github.com/charlesng35/clubhouse/pkg/response"
)

// MeetingHandler covers meeting administration and the member-facing shared view.
type MeetingHandler struct {
	meetings *services.MeetingService
	share    *iauth.OpaqueTokenStore
	limiters *ratelimit.Registry
	baseURL  string
}

func NewMeetingHandler(meetings *services.MeetingService, share *iauth.OpaqueTokenStore, limiters *ratelimit.Registry, baseURL string) (*MeetingHandler, error) {
	if meetings == nil || share == nil {
		return nil, errors.New("meeting handler: meeting service and share store are required")
	}
	return &MeetingHandler{
		meetings: meetings,
		share:    share,
		limiters: limiters,
		baseURL:  strings.TrimRight(strings.TrimSpace(baseURL), "/"),
	}, nil
}

type createMeetingRequest struct {
	Title    string    `json:"title" validate:"required,max=200"`
	StartsAt time.Time `json:"starts_at" validate:"required"`
}

// POST /api/admin/meetings
func (h *MeetingHandler) Create(c *gin.Context) {
	admin, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req createMeetingRequest
	if !bindAndValidate(c, &req) {
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		response.Error(c, appErrors.NewBadRequest("title is required"))
		return
	}

	meeting, err := h.meetings.Create(c.Request.Context(), admin.ID, services.MeetingInput{
		Title:    req.Title,
		StartsAt: req.StartsAt,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, meeting)
}

// GET /api/admin/meetings
func (h *MeetingHandler) List(c *gin.Context) {
	meetings, err := h.meetings.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, meetings)
}

// GET /api/admin/meetings/:id/attendance
func (h *MeetingHandler) Attendance(c *gin.Context) {
	records, err := h.meetings.Attendance(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, records)
}

// POST /api/admin/meetings/:id/share
func (h *MeetingHandler) Share(c *gin.Context) {
	meeting, err := h.meetings.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	token, err := h.share.EnsureToken(c.Request.Context(), meeting.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, h.sharePayload(token))
}

// POST /api/admin/meetings/:id/share/regenerate
func (h *MeetingHandler) RegenerateShare(c *gin.Context) {
	token, err := h.share.RegenerateToken(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, h.sharePayload(token))
}

// GET /api/shared/meetings/:token
func (h *MeetingHandler) Shared(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if !middleware.Allow(c, h.limiters.Get(ratelimit.TokenVerify), user.ID) {
		return
	}

	ctx := c.Request.Context()
	meetingID, err := h.share.VerifyToken(ctx, c.Param("token"))
	if err != nil {
		if errors.Is(err, iauth.ErrInvalidOrExpiredToken) {
			response.Error(c, appErrors.ErrNotFound)
			return
		}
		respondError(c, err)
		return
	}

	meeting, err := h.meetings.Get(ctx, meetingID)
	if err != nil {
		respondError(c, err)
		return
	}
	records, err := h.meetings.Attendance(ctx, meetingID)
	if err != nil {
		respondError(c, err)
		return
	}

	attendees := make([]sharedAttendee, 0, len(records))
	for _, record := range records {
		attendee := sharedAttendee{MemberID: record.UserID, CheckedInAt: record.CheckedInAt}
		if record.User != nil {
			attendee.Name = record.User.Name
		}
		attendees = append(attendees, attendee)
	}

	response.Success(c, http.StatusOK, gin.H{
		"id":         meeting.ID,
		"title":      meeting.Title,
		"starts_at":  meeting.StartsAt,
		"attendance": attendees,
	})
}

// sharedAttendee is the attendance row shown to link holders. Contact details stay private.
type sharedAttendee struct {
	MemberID    string    `json:"member_id"`
	Name        string    `json:"name"`
	CheckedInAt time.Time `json:"checked_in_at"`
}

func (h *MeetingHandler) sharePayload(token string) gin.H {
	return gin.H{
		"token": token,
		"url":   h.baseURL + "/meetings/shared/" + token,
	}
}
