package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/clubhouse/internal/handlers"
)

func registerMeetingRoutes(api, admin *gin.RouterGroup, h *handlers.MeetingHandler) {
	meetings := admin.Group("/meetings")
	{
		meetings.POST("", h.Create)
		meetings.GET("", h.List)
		meetings.GET("/:id/attendance", h.Attendance)
		meetings.POST("/:id/share", h.Share)
		meetings.POST("/:id/share/regenerate", h.RegenerateShare)
	}

	api.GET("/shared/meetings/:token", h.Shared)
}
