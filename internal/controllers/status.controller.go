package controllers

import (
	"net/http"
	"time"

	"deskbridge/internal/services"

	"github.com/gin-gonic/gin"
)

// Health reports liveness together with connected views and running monitors
func Health(hub *services.WebSocketHub, monitor *services.ProcessMonitor) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "ok",
			"views":       hub.Views(),
			"connections": hub.ConnectionCount(),
			"monitors":    monitor.Active(),
			"timestamp":   time.Now(),
		})
	}
}
