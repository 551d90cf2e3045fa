package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appErrors "github.com/charlesng35/clubhouse/pkg/errors"
	"github.com/charlesng35/clubhouse/pkg/logger"
	"github.com/charlesng35/clubhouse/pkg/response"
)

// Recovery turns a handler panic into the generic 500 envelope. The panic value is logged
// with a stack trace but never echoed to the client.
func Recovery() gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, recovered any) {
		logger.WithModule("http").Error("handler panic",
			zap.String("method", c.Request.Method),
			zap.String("route", routeLabel(c)),
			zap.Any("panic", recovered),
			zap.Stack("stack"),
		)
		response.Error(c, appErrors.ErrInternalServer)
		c.Abort()
	})
}

// NotFoundHandler renders unknown routes in the standard error envelope.
func NotFoundHandler(c *gin.Context) {
	response.Error(c, appErrors.ErrNotFound.WithMessage(fmt.Sprintf("route %s not found", c.Request.URL.Path)))
}

// routeLabel is the matched route template, so tokens embedded in paths stay out of logs
// and metric labels.
func routeLabel(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return "unmatched"
}
