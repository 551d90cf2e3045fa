// Package response renders the JSON envelope shared by every API endpoint.
package response

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	appErrors "github.com/charlesng35/clubhouse/pkg/errors"
)

// Response is the envelope: exactly one of Data or Error is set.
type Response struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
	Meta    *Meta      `json:"meta,omitempty"`
}

type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Meta carries pagination details for list endpoints.
type Meta struct {
	Page       int `json:"page,omitempty"`
	PerPage    int `json:"per_page,omitempty"`
	Total      int `json:"total,omitempty"`
	TotalPages int `json:"total_pages,omitempty"`
}

func Success(c *gin.Context, statusCode int, data any) {
	c.JSON(statusCode, Response{Success: true, Data: data})
}

// Paginated writes a 200 list response with pagination meta derived from total.
func Paginated(c *gin.Context, data any, page, perPage int, total int64) {
	meta := &Meta{Page: page, PerPage: perPage, Total: int(total)}
	if perPage > 0 && total > 0 {
		meta.TotalPages = int((total + int64(perPage) - 1) / int64(perPage))
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: data, Meta: meta})
}

// Error renders err through the error taxonomy. Anything that is not an AppError
// becomes a bare 500 so internal details never reach the client.
func Error(c *gin.Context, err error) {
	appErr := appErrors.FromError(err)
	if appErr == nil {
		appErr = appErrors.ErrInternalServer
	}
	status := appErr.StatusCode
	if status == 0 {
		status = http.StatusInternalServerError
	}
	c.JSON(status, Response{Error: &ErrorInfo{Code: appErr.Code, Message: appErr.Message}})
}

// RateLimited writes a 429 with a whole-second Retry-After hint and aborts the chain.
func RateLimited(c *gin.Context, retryAfter time.Duration) {
	seconds := max(int(retryAfter.Round(time.Second).Seconds()), 1)
	c.Header("Retry-After", strconv.Itoa(seconds))
	Error(c, appErrors.ErrRateLimit)
	c.Abort()
}
