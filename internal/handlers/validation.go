package handlers

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	appErrors "github.com/charlesng35/clubhouse/pkg/errors"
	"github.com/charlesng35/clubhouse/pkg/response"
	appValidator "github.com/charlesng35/clubhouse/pkg/validator"
)

// Messages per validator tag; %[1]s is the field, %[2]s the tag parameter.
var validationMessages = map[string]string{
	"required": "%[1]s is required",
	"email":    "%[1]s must be a valid email address",
	"min":      "%[1]s must be at least %[2]s characters",
	"max":      "%[1]s must be at most %[2]s characters",
	"uuid":     "%[1]s must be a valid UUID",
	"digits":   "%[1]s must contain only digits",
	"oneof":    "%[1]s must be one of: %[2]s",
}

// bindAndValidate decodes the JSON body into dest and validates it, writing a 400 and
// returning false on failure.
func bindAndValidate[T any](c *gin.Context, dest *T) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.NewBadRequest("invalid JSON payload"))
		return false
	}
	if err := appValidator.ValidateStruct(dest); err != nil {
		response.Error(c, appErrors.NewBadRequest(formatValidationError(err)))
		return false
	}
	return true
}

func formatValidationError(err error) string {
	var failures appValidator.ValidationErrors
	if !errors.As(err, &failures) || len(failures) == 0 {
		return "invalid request payload"
	}

	messages := make([]string, 0, len(failures))
	for _, failure := range failures {
		field := strings.ToLower(strings.ReplaceAll(failure.Field, "_", " "))
		if field == "" {
			field = "field"
		}
		if format, ok := validationMessages[failure.Tag]; ok {
			messages = append(messages, fmt.Sprintf(format, field, failure.Param))
			continue
		}
		rule := failure.Tag
		if failure.Param != "" {
			rule += "=" + failure.Param
		}
		messages = append(messages, fmt.Sprintf("%s failed validation: %s", field, rule))
	}
	return strings.Join(messages, "; ")
}

// parseIntQuery returns the integer query parameter key, or fallback when absent or malformed.
func parseIntQuery(c *gin.Context, key string, fallback int) int {
	parsed, err := strconv.Atoi(strings.TrimSpace(c.Query(key)))
	if err != nil {
		return fallback
	}
	return parsed
}
