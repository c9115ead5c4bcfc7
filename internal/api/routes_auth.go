package api

import (
	"github.com/gin-gonic/gin"

	"github.com/sentinelsoc/sentinel/internal/handlers"
	"github.com/sentinelsoc/sentinel/internal/middleware"
	"github.com/sentinelsoc/sentinel/internal/models"
)

type authRouteDeps struct {
	Handler      *handlers.AuthHandler
	LoginLimiter *middleware.RateLimiter
}

func registerAuthRoutes(engine *gin.Engine, api *gin.RouterGroup, deps authRouteDeps) {
	auth := engine.Group("/api/auth")
	{
		auth.POST("/login", deps.LoginLimiter.Middleware(), deps.Handler.Login)
		// Logout works with or without a valid session.
		auth.POST("/logout", deps.Handler.Logout)
	}

	api.GET("/auth/check", deps.Handler.Check)
	api.GET("/auth/logs", middleware.RequireRole(models.RoleAdmin), deps.Handler.Logs)
}
