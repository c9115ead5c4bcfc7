package api

import (
	"github.com/gin-gonic/gin"

	"github.com/sentinelsoc/sentinel/internal/handlers"
	"github.com/sentinelsoc/sentinel/internal/middleware"
	"github.com/sentinelsoc/sentinel/internal/models"
)

func registerConfigRoutes(api *gin.RouterGroup, keys *handlers.APIKeyHandler, settings *handlers.SettingsHandler, audit *handlers.SecurityAuditHandler, backups *handlers.BackupHandler) {
	config := api.Group("/config")
	config.Use(middleware.RequireRole(models.RoleAdmin))
	{
		config.GET("/apis", keys.List)
		config.GET("/api", keys.Get)
		config.POST("/api", keys.Save)
		config.PUT("/api/toggle", keys.Toggle)
		config.DELETE("/api", keys.Delete)
		config.GET("/stats", keys.Stats)

		config.GET("/settings", settings.List)
		config.POST("/setting", settings.Set)

		config.GET("/security-audit", audit.Run)

		config.POST("/backup", backups.Create)
		config.DELETE("/cleanup", backups.Cleanup)
	}
}
