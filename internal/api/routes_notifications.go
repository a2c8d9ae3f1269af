package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/taskboard/internal/handlers"
	"github.com/charlesng35/taskboard/internal/middleware"
	"github.com/charlesng35/taskboard/internal/models"
)

func registerNotificationRoutes(api *gin.RouterGroup, handler *handlers.NotificationHandler) {
	group := api.Group("/notifications")
	{
		group.GET("", handler.List)
		group.GET("/unread-count", handler.UnreadCount)
		group.POST("/read-all", handler.MarkAllRead)
		group.POST("/broadcast", middleware.RequireRole(models.UserRoleAdmin), handler.Broadcast)
		group.POST("/:id/read", handler.MarkRead)
		group.DELETE("/:id", handler.Delete)
	}
}
