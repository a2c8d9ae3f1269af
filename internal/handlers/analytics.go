package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/taskboard/internal/services"
	"github.com/charlesng35/taskboard/pkg/response"
)

type AnalyticsHandler struct {
	svc *services.AnalyticsService
}

func NewAnalyticsHandler(svc *services.AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{svc: svc}
}

// GET /api/analytics/tasks
func (h *AnalyticsHandler) Tasks(c *gin.Context) {
	actorID, ok := currentUserID(c)
	if !ok {
		return
	}

	result, err := h.svc.TaskAnalytics(requestContext(c), actorID, strings.TrimSpace(c.Query("team_id")), parseIntQuery(c, "days", 0))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}

// GET /api/analytics/teams/:id
func (h *AnalyticsHandler) Team(c *gin.Context) {
	actorID, ok := currentUserID(c)
	if !ok {
		return
	}

	result, err := h.svc.TeamAnalytics(requestContext(c), actorID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}

// GET /api/analytics/me
func (h *AnalyticsHandler) Me(c *gin.Context) {
	actorID, ok := currentUserID(c)
	if !ok {
		return
	}

	result, err := h.svc.UserAnalytics(requestContext(c), actorID, parseIntQuery(c, "days", 0))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}
