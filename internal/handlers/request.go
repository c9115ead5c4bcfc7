package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/sentinelsoc/sentinel/internal/lookup"
	"github.com/sentinelsoc/sentinel/internal/models"
	appErrors "github.com/sentinelsoc/sentinel/pkg/errors"
	"github.com/sentinelsoc/sentinel/pkg/response"
	appValidator "github.com/sentinelsoc/sentinel/pkg/validator"
)

func init() {
	if err := appValidator.RegisterEnum("service", lookup.ServiceNames()...); err != nil {
		panic(fmt.Sprintf("register service validation: %v", err))
	}
}

// requestContext returns the request's context, or Background when a handler
// is invoked without an *http.Request.
func requestContext(c *gin.Context) context.Context {
	if c == nil || c.Request == nil {
		return context.Background()
	}
	return c.Request.Context()
}

// bindAndValidate decodes the JSON body into dest and runs struct rules. On
// failure the 400 envelope has already been written.
func bindAndValidate[T any](c *gin.Context, dest *T) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.NewBadRequest("invalid JSON payload"))
		return false
	}
	if err := appValidator.ValidateStruct(dest); err != nil {
		response.Error(c, appErrors.NewBadRequest(describeViolations(err)))
		return false
	}
	return true
}

var violationText = map[string]func(field, param string) string{
	"required": func(f, _ string) string { return f + " is required" },
	"email":    func(f, _ string) string { return f + " must be a valid email address" },
	"min":      func(f, p string) string { return fmt.Sprintf("%s must be at least %s characters", f, p) },
	"max":      func(f, p string) string { return fmt.Sprintf("%s must be at most %s characters", f, p) },
	"role": func(f, _ string) string {
		return f + " must be one of: " + strings.Join(models.RoleNames(), ", ")
	},
	"service": func(f, _ string) string {
		return f + " must be one of: " + strings.Join(lookup.ServiceNames(), ", ")
	},
	"printascii": func(f, _ string) string { return f + " contains invalid characters" },
	"excludes":   func(f, _ string) string { return f + " contains invalid characters" },
}

func describeViolations(err error) string {
	ve, ok := err.(appValidator.ValidationErrors)
	if !ok || len(ve) == 0 {
		return "invalid request payload"
	}

	messages := make([]string, 0, len(ve))
	for _, v := range ve {
		field := "field"
		if v.Field != "" {
			field = strings.ToLower(strings.ReplaceAll(v.Field, "_", " "))
		}
		if text, known := violationText[v.Tag]; known {
			messages = append(messages, text(field, v.Param))
			continue
		}
		if v.Param != "" {
			messages = append(messages, fmt.Sprintf("%s failed validation: %s=%s", field, v.Tag, v.Param))
		} else {
			messages = append(messages, fmt.Sprintf("%s failed validation: %s", field, v.Tag))
		}
	}
	return strings.Join(messages, "; ")
}

// intQuery parses an integer query parameter, returning fallback when absent or malformed.
func intQuery(c *gin.Context, key string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(c.Query(key)))
	if err != nil {
		return fallback
	}
	return n
}
