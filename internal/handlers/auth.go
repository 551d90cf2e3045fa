package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	iauth "github.com/charlesng35/clubhouse/internal/auth"
	"github.com/charlesng35/clubhouse/internal/middleware"
	"github.com/charlesng35/clubhouse/internal/models"
	"github.com/charlesng35/clubhouse/internal/ratelimit"
	"github.com/charlesng35/clubhouse/internal/security"
	"github.com/charlesng35/clubhouse/internal/services"
	appErrors "github.com/charlesng35/clubhouse/pkg/errors"
	"github.com/charlesng35/clubhouse/pkg/logger"
	"github.com/charlesng35/clubhouse/pkg/mail"
	"github.com/charlesng35/clubhouse/pkg/metrics"
	"github.com/charlesng35/clubhouse/pkg/response"
)

// AuthDeps bundles what the email sign-in flow needs.
type AuthDeps struct {
	Sessions *iauth.SessionService
	OTPs     *iauth.OTPService
	Members  *services.MemberService
	Cookies  *security.CookieManager
	Limiters *ratelimit.Registry
	Mailer   mail.Mailer
	MailFrom string
	Clock    func() time.Time
}

// AuthHandler manages the passwordless sign-in flow (signin/verify/logout/me).
type AuthHandler struct {
	sessions *iauth.SessionService
	otps     *iauth.OTPService
	members  *services.MemberService
	cookies  *security.CookieManager
	limiters *ratelimit.Registry
	codes    *codeMailer
	now      func() time.Time
}

func NewAuthHandler(deps AuthDeps) (*AuthHandler, error) {
	if deps.Sessions == nil || deps.OTPs == nil || deps.Members == nil || deps.Cookies == nil {
		return nil, errors.New("auth handler: sessions, otps, members and cookies are required")
	}
	if deps.Mailer == nil {
		return nil, errors.New("auth handler: mailer is required")
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	return &AuthHandler{
		sessions: deps.Sessions,
		otps:     deps.OTPs,
		members:  deps.Members,
		cookies:  deps.Cookies,
		limiters: deps.Limiters,
		codes:    &codeMailer{mailer: deps.Mailer, from: deps.MailFrom},
		now:      now,
	}, nil
}

type signinRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
}

type verifyCodeRequest struct {
	Code string `json:"code" validate:"required,digits,min=6,max=8"`
}

type pendingResponse struct {
	Sent      bool      `json:"sent"`
	ExpiresAt time.Time `json:"expires_at"`
}

// POST /api/auth/signin
func (h *AuthHandler) Signin(c *gin.Context) {
	var req signinRequest
	if !bindAndValidate(c, &req) {
		return
	}
	email := iauth.NormalizeEmail(req.Email)

	if !middleware.Allow(c, h.limiters.Get(ratelimit.SigninIP), c.ClientIP()) ||
		!middleware.Allow(c, h.limiters.Get(ratelimit.SigninEmail), email) {
		return
	}

	existing := security.GetCookie(c.Request, security.OTPIDCookie)
	otp, reused, err := h.otps.IssueOrReuse(c.Request.Context(), existing, email, iauth.PurposeSignin)
	if err != nil {
		respondError(c, err)
		return
	}

	if !reused {
		if err := h.codes.send(c, otp, iauth.PurposeSignin); err != nil {
			_ = h.otps.Delete(c.Request.Context(), otp.ID)
			respondError(c, err)
			return
		}
	}

	if err := h.cookies.SetPending(c.Writer, otp.ID, email, h.now()); err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, http.StatusAccepted, pendingResponse{Sent: !reused, ExpiresAt: otp.ExpiresAt})
}

// POST /api/auth/signin/verify
func (h *AuthHandler) Verify(c *gin.Context) {
	var req verifyCodeRequest
	if !bindAndValidate(c, &req) {
		return
	}

	otpID, email, ok := h.cookies.Pending(c.Request)
	if !ok {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		response.Error(c, appErrors.ErrInvalidCode)
		return
	}

	if !middleware.Allow(c, h.limiters.Get(ratelimit.OTPVerify), otpID) ||
		!middleware.Allow(c, h.limiters.Get(ratelimit.SigninIP), c.ClientIP()) {
		return
	}

	ctx := c.Request.Context()
	otp, err := h.otps.Verify(ctx, otpID, iauth.PurposeSignin, req.Code)
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		h.rejectCode(c, err, email, iauth.PurposeSignin)
		return
	}

	user, created, err := h.members.FindOrCreateByEmail(ctx, otp.Email)
	if err != nil {
		respondError(c, err)
		return
	}

	raw, session, err := h.sessions.CreateSession(ctx, user.ID, iauth.SessionMetadata{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.members.RecordLogin(ctx, user.ID, c.ClientIP()); err != nil {
		logger.WithModule("auth").Warn("record login failed", zap.String("user_id", user.ID), zap.Error(err))
	}

	redirect := h.cookies.ReturnTo(c.Request)
	h.cookies.SetSession(c.Writer, raw, session.ExpiresAt, h.now())
	h.cookies.ClearPending(c.Writer)
	h.cookies.ClearReturnTo(c.Writer)

	metrics.AuthAttempts.WithLabelValues("success").Inc()
	response.Success(c, http.StatusOK, gin.H{
		"user":     user,
		"created":  created,
		"redirect": redirect,
	})
}

// rejectCode renders the uniform invalid-code response. When the pending code lapsed, a
// fresh one is issued and mailed so the member only has to check their inbox again.
func (h *AuthHandler) rejectCode(c *gin.Context, err error, email, purpose string) {
	if errors.Is(err, iauth.ErrStoreUnavailable) {
		respondError(c, err)
		return
	}

	if errors.Is(err, iauth.ErrOTPExpired) {
		ctx := c.Request.Context()
		fresh, issueErr := h.otps.CreateEmailOTP(ctx, email, purpose)
		if issueErr == nil {
			issueErr = h.codes.send(c, fresh, purpose)
		}
		if issueErr == nil {
			issueErr = h.cookies.SetPending(c.Writer, fresh.ID, email, h.now())
		}
		if issueErr != nil {
			logger.WithModule("auth").Warn("reissue expired code failed", zap.String("purpose", purpose), zap.Error(issueErr))
		}
	}

	response.Error(c, appErrors.ErrInvalidCode)
}

// POST /api/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	if session, ok := middleware.CurrentSession(c); ok {
		if err := h.sessions.InvalidateSession(c.Request.Context(), session.ID); err != nil {
			respondError(c, err)
			return
		}
	}
	h.cookies.ClearSession(c.Writer)
	response.Success(c, http.StatusOK, gin.H{"message": "signed out"})
}

// GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	session, _ := middleware.CurrentSession(c)
	payload := gin.H{"user": user}
	if session != nil {
		payload["session_expires_at"] = session.ExpiresAt
	}
	response.Success(c, http.StatusOK, payload)
}

type codeMailer struct {
	mailer mail.Mailer
	from   string
}

func (m *codeMailer) send(c *gin.Context, otp *models.EmailOTP, purpose string) error {
	subject := "Your sign-in code"
	intro := "Use this code to sign in"
	if purpose == iauth.PurposeSecondaryEmail {
		subject = "Confirm your secondary email"
		intro = "Use this code to confirm this address"
	}

	msg := mail.Message{
		From:    m.from,
		To:      []string{otp.Email},
		Subject: subject,
		Body:    fmt.Sprintf("%s: %s\n\nThe code expires at %s.", intro, otp.Code, otp.ExpiresAt.UTC().Format(time.RFC1123)),
	}
	if err := m.mailer.Send(c.Request.Context(), msg); err != nil {
		return fmt.Errorf("send %s code: %w", purpose, err)
	}
	return nil
}
