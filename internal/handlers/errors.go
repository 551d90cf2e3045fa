package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	iauth "github.com/charlesng35/clubhouse/internal/auth"
	"github.com/charlesng35/clubhouse/internal/membership"
	"github.com/charlesng35/clubhouse/internal/services"
	appErrors "github.com/charlesng35/clubhouse/pkg/errors"
	"github.com/charlesng35/clubhouse/pkg/logger"
	"github.com/charlesng35/clubhouse/pkg/response"
)

// respondError maps domain errors onto the API taxonomy. Unexpected errors are logged and
// rendered as a bare 500.
func respondError(c *gin.Context, err error) {
	var appErr *appErrors.AppError
	switch {
	case errors.As(err, &appErr):
		response.Error(c, appErr)
	case errors.Is(err, iauth.ErrStoreUnavailable):
		logger.WithModule("http").Error("store unavailable", zap.String("path", c.FullPath()), zap.Error(err))
		response.Error(c, appErrors.ErrStoreUnavailable)
	case errors.Is(err, membership.ErrInvalidTransition):
		response.Error(c, appErrors.ErrInvalidTransition.WithMessage(err.Error()))
	case errors.Is(err, membership.ErrUnknownStatus):
		response.Error(c, appErrors.NewBadRequest(err.Error()))
	case errors.Is(err, services.ErrMemberNotFound),
		errors.Is(err, services.ErrMeetingNotFound),
		errors.Is(err, iauth.ErrOwnerNotFound):
		response.Error(c, appErrors.ErrNotFound)
	case errors.Is(err, services.ErrEmailInUse):
		response.Error(c, appErrors.ErrEmailInUse)
	case errors.Is(err, services.ErrMemberNotActive):
		response.Error(c, appErrors.ErrMemberNotActive)
	default:
		logger.WithModule("http").Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		response.Error(c, appErrors.ErrInternalServer)
	}
}
