package api

import (
	"github.com/gin-gonic/gin"

	"github.com/sentinelsoc/sentinel/internal/handlers"
)

// Lookups are open to every authenticated role.
func registerLookupRoutes(api *gin.RouterGroup, handler *handlers.LookupHandler) {
	lookup := api.Group("/lookup")
	{
		lookup.GET("", handler.Lookup)
		lookup.POST("/bulk", handler.Bulk)
	}
}
