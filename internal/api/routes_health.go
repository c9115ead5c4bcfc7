package api

import (
	"github.com/gin-gonic/gin"

	"github.com/sentinelsoc/sentinel/internal/handlers"
	"github.com/sentinelsoc/sentinel/internal/monitoring"
)

func registerHealthRoutes(r *gin.Engine, probes *monitoring.Probes) {
	health := handlers.Health(probes)
	r.GET("/health", health)
	r.GET("/api/health", health)

	ready := handlers.Readiness(probes)
	r.GET("/health/ready", ready)
	r.GET("/api/health/ready", ready)
}
