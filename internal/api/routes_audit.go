package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/clubhouse/internal/handlers"
	"github.com/charlesng35/clubhouse/internal/security"
)

func registerAuditRoutes(admin *gin.RouterGroup, deps Deps) error {
	h, err := handlers.NewAuditHandler(deps.Audit, security.NewAuditService(deps.DB, deps.Config))
	if err != nil {
		return err
	}

	admin.GET("/audit", h.List)
	admin.GET("/security/audit", h.Posture)
	return nil
}
