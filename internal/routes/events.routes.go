package routes

import (
	"deskbridge/internal/controllers"
	"deskbridge/internal/middleware"

	"github.com/gin-gonic/gin"
)

// RegisterEventRoutes registers the websocket endpoint views connect to for events
func RegisterEventRoutes(r *gin.Engine, deps Dependencies, security *middleware.SecurityLogger, handlers ...gin.HandlerFunc) {
	ws := controllers.NewWebSocketController(
		deps.Hub,
		deps.Dispatcher,
		deps.Auth,
		security,
		deps.Config.Server.AllowedOrigins,
		deps.Config.Auth.Required,
		deps.Logger,
	)

	r.GET("/ws", append(handlers, ws.HandleWebSocket)...)
}
