package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sentinelsoc/sentinel/internal/auditctx"
	"github.com/sentinelsoc/sentinel/pkg/errors"
	"github.com/sentinelsoc/sentinel/pkg/logger"
	"github.com/sentinelsoc/sentinel/pkg/response"
)

// Recovery turns a handler panic into the generic 500 envelope. The panic
// value is logged with the acting user but never written to the client.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			fields := append(auditctx.Fields(c.Request.Context()),
				zap.String("method", c.Request.Method),
				zap.String("route", routeLabel(c)),
				zap.Any("panic", rec),
				zap.Stack("stack"),
			)
			logger.WithModule("http").Error("handler panicked", fields...)
			response.Abort(c, errors.ErrInternalServer)
		}()
		c.Next()
	}
}

var errRouteNotFound = errors.New(errors.KindNotFound, "ROUTE_NOT_FOUND", "Endpoint not found", http.StatusNotFound)

// NotFoundHandler answers unknown routes with the JSON error envelope.
func NotFoundHandler(c *gin.Context) {
	response.Error(c, errRouteNotFound)
}
