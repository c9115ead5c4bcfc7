package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sentinelsoc/sentinel/internal/monitoring"
	"github.com/sentinelsoc/sentinel/pkg/response"
)

// Health reports "ok" while every probe is up. A degraded dependency keeps the
// server in rotation; a down one answers 503.
func Health(probes *monitoring.Probes) gin.HandlerFunc {
	return func(c *gin.Context) {
		report := evaluate(c, probes)
		switch report.Status {
		case monitoring.StatusDown:
			c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "status": "unavailable"})
		case monitoring.StatusDegraded:
			c.JSON(http.StatusOK, gin.H{"success": false, "status": "degraded"})
		default:
			response.Fields(c, http.StatusOK, gin.H{"status": "ok"})
		}
	}
}

// Readiness returns the full probe report.
func Readiness(probes *monitoring.Probes) gin.HandlerFunc {
	return func(c *gin.Context) {
		report := evaluate(c, probes)
		status := http.StatusOK
		if report.Status == monitoring.StatusDown {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, report)
	}
}

func evaluate(c *gin.Context, probes *monitoring.Probes) monitoring.HealthReport {
	if probes == nil {
		return monitoring.HealthReport{Success: true, Status: monitoring.StatusUp}
	}
	return probes.Evaluate(requestContext(c))
}
