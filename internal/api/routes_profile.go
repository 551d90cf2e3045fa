package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/clubhouse/internal/handlers"
)

func registerProfileRoutes(api *gin.RouterGroup, auth *handlers.AuthHandler, deps Deps) error {
	profileHandler, err := handlers.NewProfileHandler(auth, deps.Members)
	if err != nil {
		return err
	}
	qrHandler, err := handlers.NewQRHandler(deps.QRTokens)
	if err != nil {
		return err
	}

	me := api.Group("/me")
	{
		me.POST("/secondary-email", profileHandler.RequestSecondaryEmail)
		me.POST("/secondary-email/verify", profileHandler.VerifySecondaryEmail)
		me.GET("/qr", qrHandler.Image)
		me.GET("/qr/token", qrHandler.Token)
		me.POST("/qr/regenerate", qrHandler.Regenerate)
	}
	return nil
}
