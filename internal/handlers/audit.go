package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/clubhouse/internal/security"
	"github.com/charlesng35/clubhouse/internal/services"
	"github.com/charlesng35/clubhouse/pkg/response"
)

// AuditHandler serves the administrator audit views: the persisted activity log and the
// live security posture checks.
type AuditHandler struct {
	log     *services.AuditService
	posture *security.AuditService
}

func NewAuditHandler(log *services.AuditService, posture *security.AuditService) (*AuditHandler, error) {
	if log == nil || posture == nil {
		return nil, errors.New("audit handler: audit log and posture services are required")
	}
	return &AuditHandler{log: log, posture: posture}, nil
}

// GET /api/admin/audit
func (h *AuditHandler) List(c *gin.Context) {
	page, per := services.PageBounds(parseIntQuery(c, "page", 1), parseIntQuery(c, "per_page", 50))

	filters := services.AuditFilters{
		UserID:   c.Query("user_id"),
		Action:   c.Query("action"),
		Result:   c.Query("result"),
		Resource: c.Query("resource"),
		Since:    parseTimeQuery(c, "since"),
		Until:    parseTimeQuery(c, "until"),
	}

	logs, total, err := h.log.List(c.Request.Context(), services.AuditListOptions{Page: page, PageSize: per, Filters: filters})
	if err != nil {
		respondError(c, err)
		return
	}

	response.Paginated(c, logs, page, per, total)
}

// GET /api/admin/security/audit
func (h *AuditHandler) Posture(c *gin.Context) {
	response.Success(c, http.StatusOK, h.posture.Run(c.Request.Context()))
}

// parseTimeQuery reads an RFC 3339 timestamp; malformed values are ignored.
func parseTimeQuery(c *gin.Context, key string) *time.Time {
	raw := c.Query(key)
	if raw == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil
	}
	return &t
}
