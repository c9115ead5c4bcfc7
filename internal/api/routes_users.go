package api

import (
	"github.com/gin-gonic/gin"

	"github.com/sentinelsoc/sentinel/internal/handlers"
	"github.com/sentinelsoc/sentinel/internal/middleware"
	"github.com/sentinelsoc/sentinel/internal/models"
)

func registerUserRoutes(api *gin.RouterGroup, handler *handlers.UserHandler) {
	users := api.Group("/users")
	users.Use(middleware.RequireRole(models.RoleAdmin))
	{
		users.GET("", handler.List)
		users.POST("", handler.Create)
		users.PUT("/:id/active", handler.SetActive)
	}
}
