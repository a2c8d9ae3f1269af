package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/taskboard/internal/services"
	"github.com/charlesng35/taskboard/pkg/response"
)

type ExportHandler struct {
	svc *services.ExportService
}

func NewExportHandler(svc *services.ExportService) *ExportHandler {
	return &ExportHandler{svc: svc}
}

// GET /api/export/tasks
func (h *ExportHandler) Tasks(c *gin.Context) {
	actorID, ok := currentUserID(c)
	if !ok {
		return
	}

	result, err := h.svc.ExportTasks(requestContext(c), actorID, services.ExportOptions{
		Format:   c.DefaultQuery("format", services.ExportFormatCSV),
		Statuses: queryList(c, "status"),
		TeamID:   strings.TrimSpace(c.Query("team_id")),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, result.Filename, result.ContentType, result.Body)
}
