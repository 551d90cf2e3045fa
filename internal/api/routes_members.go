package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/clubhouse/internal/handlers"
)

func registerMemberRoutes(admin *gin.RouterGroup, deps Deps) error {
	h, err := handlers.NewMemberAdminHandler(deps.Members, deps.Meetings, deps.QRTokens, deps.Limiters)
	if err != nil {
		return err
	}

	admin.POST("/qr/verify", h.VerifyQR)

	members := admin.Group("/members")
	{
		members.GET("", h.List)
		members.PATCH("/:id/status", h.ChangeStatus)
	}
	return nil
}
