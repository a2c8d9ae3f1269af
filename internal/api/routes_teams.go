package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/taskboard/internal/handlers"
)

// Team management rights depend on membership, so the service decides instead of a role gate.
func registerTeamRoutes(api *gin.RouterGroup, handler *handlers.TeamHandler) {
	teams := api.Group("/teams")
	{
		teams.GET("", handler.List)
		teams.POST("", handler.Create)
		teams.GET("/:id", handler.Get)
		teams.PATCH("/:id", handler.Update)
		teams.DELETE("/:id", handler.Delete)
		teams.POST("/:id/members", handler.AddMember)
		teams.PATCH("/:id/members/:userID", handler.UpdateMemberRole)
		teams.DELETE("/:id/members/:userID", handler.RemoveMember)
	}
}
