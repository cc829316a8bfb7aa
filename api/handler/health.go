package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pageshot-ai/pageshot/models"
)

// Health returns a handler for GET /api/v1/health.
func Health(engineNames []string, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := "healthy"
		if len(engineNames) == 0 {
			status = "degraded"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:  status,
			Uptime:  time.Since(startTime).Round(time.Second).String(),
			Engines: engineNames,
			Version: "0.1.0",
		})
	}
}
