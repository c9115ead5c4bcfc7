package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/sentinelsoc/sentinel/internal/models"
	"github.com/sentinelsoc/sentinel/pkg/errors"
	"github.com/sentinelsoc/sentinel/pkg/metrics"
	"github.com/sentinelsoc/sentinel/pkg/response"
)

// RequireRole allows the request through only when the authenticated user
// holds one of roles. It must run after SessionAuth.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			response.Abort(c, errors.ErrUnauthorized)
			return
		}

		for _, role := range roles {
			if user.Role == role {
				metrics.AuthorizationChecks.WithLabelValues("allowed").Inc()
				c.Next()
				return
			}
		}

		metrics.AuthorizationChecks.WithLabelValues("denied").Inc()
		response.Abort(c, errors.ErrForbidden)
	}
}
