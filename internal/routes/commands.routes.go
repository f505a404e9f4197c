package routes

import (
	"deskbridge/internal/controllers"

	"github.com/gin-gonic/gin"
)

func RegisterCommandRoutes(r *gin.Engine, deps Dependencies, handlers ...gin.HandlerFunc) {
	r.GET("/commands", controllers.ListCommands(deps.Dispatcher))

	invoke := r.Group("/invoke", handlers...)
	{
		invoke.POST("/:command", controllers.InvokeCommand(deps.Dispatcher))
	}
}
