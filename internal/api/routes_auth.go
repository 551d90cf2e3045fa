package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/clubhouse/internal/handlers"
	"github.com/charlesng35/clubhouse/internal/middleware"
	"github.com/charlesng35/clubhouse/internal/ratelimit"
)

func registerAuthRoutes(engine *gin.Engine, h *handlers.AuthHandler, limiters *ratelimit.Registry, requireSession gin.HandlerFunc) {
	// exhausted clients are turned away before their body is parsed
	earlyExit := middleware.RateLimitCheck(limiters.Get(ratelimit.SigninIP), middleware.ClientIPKey)

	auth := engine.Group("/api/auth")
	{
		auth.POST("/signin", earlyExit, h.Signin)
		auth.POST("/signin/verify", earlyExit, h.Verify)
		auth.POST("/logout", h.Logout)
		auth.GET("/me", requireSession, h.Me)
	}
}
