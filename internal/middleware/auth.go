package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	iauth "github.com/charlesng35/clubhouse/internal/auth"
	"github.com/charlesng35/clubhouse/internal/models"
	"github.com/charlesng35/clubhouse/internal/security"
	appErrors "github.com/charlesng35/clubhouse/pkg/errors"
	"github.com/charlesng35/clubhouse/pkg/logger"
	"github.com/charlesng35/clubhouse/pkg/response"
)

const (
	CtxUserKey      = "authUser"
	CtxUserIDKey    = "userID"
	CtxSessionKey   = "authSession"
	CtxSessionIDKey = "sessionID"
	ctxSessionErr   = "authSessionError"
)

// Session resolves the session cookie on every request. A valid session populates the
// context; a renewed one gets its cookie refreshed; an invalid one gets its cookie cleared.
// Requests without a cookie pass through untouched.
func Session(sessions *iauth.SessionService, cookies *security.CookieManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := cookies.SessionToken(c.Request)
		if raw == "" {
			c.Next()
			return
		}

		session, user, err := sessions.ValidateSessionToken(c.Request.Context(), raw)
		switch {
		case err == nil:
			if session.Renewed {
				cookies.SetSession(c.Writer, raw, session.ExpiresAt, sessions.Now())
			}
			c.Set(CtxSessionKey, session)
			c.Set(CtxSessionIDKey, session.ID)
			c.Set(CtxUserKey, user)
			c.Set(CtxUserIDKey, user.ID)
		case errors.Is(err, iauth.ErrInvalidOrExpiredToken):
			cookies.ClearSession(c.Writer)
		default:
			// keep the cookie: the session may still be valid once the store recovers
			logger.WithModule("auth").Error("session lookup failed", zap.Error(err))
			c.Set(ctxSessionErr, err)
		}

		c.Next()
	}
}

// RequireSession rejects anonymous requests. Browser navigations (GET requests that accept
// HTML) are redirected to signinPath with the original path remembered in return_to; every
// other request receives 401. A nil now falls back to the wall clock.
func RequireSession(cookies *security.CookieManager, signinPath string, now func() time.Time) gin.HandlerFunc {
	if now == nil {
		now = time.Now
	}
	return func(c *gin.Context) {
		if _, ok := CurrentUser(c); ok {
			c.Next()
			return
		}

		if _, failed := c.Get(ctxSessionErr); failed {
			response.Error(c, appErrors.ErrStoreUnavailable)
			c.Abort()
			return
		}

		if wantsHTML(c.Request) {
			cookies.SetReturnTo(c.Writer, c.Request.URL.RequestURI(), now())
			c.Redirect(http.StatusSeeOther, signinPath)
			c.Abort()
			return
		}

		response.Error(c, appErrors.ErrUnauthorized)
		c.Abort()
	}
}

// RequireAdmin rejects members without the admin flag. It must run after RequireSession.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if !user.IsAdmin {
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}

// CurrentUser returns the member attached by Session.
func CurrentUser(c *gin.Context) (*models.User, bool) {
	value, ok := c.Get(CtxUserKey)
	if !ok {
		return nil, false
	}
	user, ok := value.(*models.User)
	return user, ok && user != nil
}

// CurrentSession returns the session attached by Session.
func CurrentSession(c *gin.Context) (*models.Session, bool) {
	value, ok := c.Get(CtxSessionKey)
	if !ok {
		return nil, false
	}
	session, ok := value.(*models.Session)
	return session, ok && session != nil
}

func wantsHTML(r *http.Request) bool {
	if r.Method != http.MethodGet {
		return false
	}
	if strings.HasPrefix(r.URL.Path, "/api/") {
		return false
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}
