package routes

import (
	"deskbridge/internal/controllers"

	"github.com/gin-gonic/gin"
)

func RegisterStatusRoutes(r *gin.Engine, deps Dependencies) {
	r.GET("/healthz", controllers.Health(deps.Hub, deps.Monitor))
}
