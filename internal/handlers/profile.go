package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	iauth "github.com/charlesng35/clubhouse/internal/auth"
	"github.com/charlesng35/clubhouse/internal/middleware"
	"github.com/charlesng35/clubhouse/internal/ratelimit"
	"github.com/charlesng35/clubhouse/internal/security"
	"github.com/charlesng35/clubhouse/internal/services"
	appErrors "github.com/charlesng35/clubhouse/pkg/errors"
	"github.com/charlesng35/clubhouse/pkg/response"
)

// ProfileHandler serves the signed-in member's own account endpoints.
type ProfileHandler struct {
	auth    *AuthHandler
	members *services.MemberService
}

func NewProfileHandler(auth *AuthHandler, members *services.MemberService) (*ProfileHandler, error) {
	if auth == nil || members == nil {
		return nil, errors.New("profile handler: auth handler and member service are required")
	}
	return &ProfileHandler{auth: auth, members: members}, nil
}

type secondaryEmailRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
}

// POST /api/me/secondary-email
func (h *ProfileHandler) RequestSecondaryEmail(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req secondaryEmailRequest
	if !bindAndValidate(c, &req) {
		return
	}
	email := iauth.NormalizeEmail(req.Email)
	if email == user.Email {
		response.Error(c, appErrors.ErrEmailInUse)
		return
	}

	if !middleware.Allow(c, h.auth.limiters.Get(ratelimit.SigninEmail), email) {
		return
	}

	existing := security.GetCookie(c.Request, security.OTPIDCookie)
	otp, reused, err := h.auth.otps.IssueOrReuse(c.Request.Context(), existing, email, iauth.PurposeSecondaryEmail)
	if err != nil {
		respondError(c, err)
		return
	}
	if !reused {
		if err := h.auth.codes.send(c, otp, iauth.PurposeSecondaryEmail); err != nil {
			_ = h.auth.otps.Delete(c.Request.Context(), otp.ID)
			respondError(c, err)
			return
		}
	}

	if err := h.auth.cookies.SetPending(c.Writer, otp.ID, email, h.auth.now()); err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusAccepted, pendingResponse{Sent: !reused, ExpiresAt: otp.ExpiresAt})
}

// POST /api/me/secondary-email/verify
func (h *ProfileHandler) VerifySecondaryEmail(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req verifyCodeRequest
	if !bindAndValidate(c, &req) {
		return
	}

	otpID, email, ok := h.auth.cookies.Pending(c.Request)
	if !ok {
		response.Error(c, appErrors.ErrInvalidCode)
		return
	}
	if !middleware.Allow(c, h.auth.limiters.Get(ratelimit.OTPVerify), otpID) {
		return
	}

	ctx := c.Request.Context()
	otp, err := h.auth.otps.Verify(ctx, otpID, iauth.PurposeSecondaryEmail, req.Code)
	if err != nil {
		h.auth.rejectCode(c, err, email, iauth.PurposeSecondaryEmail)
		return
	}

	updated, err := h.members.SetSecondaryEmail(ctx, user.ID, otp.Email)
	if err != nil {
		respondError(c, err)
		return
	}

	h.auth.cookies.ClearPending(c.Writer)
	response.Success(c, http.StatusOK, gin.H{"user": updated, "verified_at": h.auth.now().UTC()})
}
