package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/clubhouse/internal/auditctx"
)

// AuditActor records the client address, user agent and signed-in member on the request
// context so services can attribute audit entries. It must run after Session.
func AuditActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := auditctx.Actor{
			IPAddress: c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		}
		if user, ok := CurrentUser(c); ok {
			actor.UserID = user.ID
			actor.Email = user.Email
		}
		c.Request = c.Request.WithContext(auditctx.WithActor(c.Request.Context(), actor))
		c.Next()
	}
}
