package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/taskboard/internal/handlers"
)

func registerTaskRoutes(api *gin.RouterGroup, handler *handlers.TaskHandler) {
	tasks := api.Group("/tasks")
	{
		tasks.GET("", handler.List)
		tasks.POST("", handler.Create)
		tasks.GET("/:id", handler.Get)
		tasks.GET("/:id/subtasks", handler.Subtasks)
		tasks.PATCH("/:id", handler.Update)
		tasks.DELETE("/:id", handler.Delete)
	}
}
