package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/taskboard/internal/handlers"
	"github.com/charlesng35/taskboard/internal/middleware"
	"github.com/charlesng35/taskboard/internal/models"
)

type insightHandlers struct {
	Export    *handlers.ExportHandler
	Analytics *handlers.AnalyticsHandler
	Activity  *handlers.ActivityHandler
}

func registerInsightRoutes(api *gin.RouterGroup, h insightHandlers) {
	api.GET("/export/tasks", h.Export.Tasks)

	analytics := api.Group("/analytics")
	{
		analytics.GET("/tasks", h.Analytics.Tasks)
		analytics.GET("/teams/:id", h.Analytics.Team)
		analytics.GET("/me", h.Analytics.Me)
	}

	api.GET("/activity", middleware.RequireRole(models.UserRoleAdmin), h.Activity.List)
}
