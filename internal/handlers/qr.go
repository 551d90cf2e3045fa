package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/skip2/go-qrcode"

	iauth "github.com/charlesng35/clubhouse/internal/auth"
	"github.com/charlesng35/clubhouse/internal/middleware"
	appErrors "github.com/charlesng35/clubhouse/pkg/errors"
	"github.com/charlesng35/clubhouse/pkg/response"
)

const qrImageSize = 256

// QRHandler serves the member's check-in QR code. The code encodes the raw opaque token,
// which administrators scan and submit to the verify endpoint.
type QRHandler struct {
	tokens *iauth.OpaqueTokenStore
}

func NewQRHandler(tokens *iauth.OpaqueTokenStore) (*QRHandler, error) {
	if tokens == nil {
		return nil, errors.New("qr handler: token store is required")
	}
	return &QRHandler{tokens: tokens}, nil
}

// GET /api/me/qr
func (h *QRHandler) Image(c *gin.Context) {
	token, ok := h.ensure(c)
	if !ok {
		return
	}

	png, err := qrcode.Encode(token, qrcode.Medium, qrImageSize)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}

// GET /api/me/qr/token
func (h *QRHandler) Token(c *gin.Context) {
	token, ok := h.ensure(c)
	if !ok {
		return
	}
	response.Success(c, http.StatusOK, gin.H{"token": token})
}

// POST /api/me/qr/regenerate
func (h *QRHandler) Regenerate(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	token, err := h.tokens.RegenerateToken(c.Request.Context(), user.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"token": token})
}

func (h *QRHandler) ensure(c *gin.Context) (string, bool) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return "", false
	}
	token, err := h.tokens.EnsureToken(c.Request.Context(), user.ID)
	if err != nil {
		respondError(c, err)
		return "", false
	}
	return token, true
}
