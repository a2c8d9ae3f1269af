package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/taskboard/internal/services"
	"github.com/charlesng35/taskboard/pkg/response"
)

// ActivityHandler lists the audit trail for administrators.
type ActivityHandler struct {
	svc *services.AuditService
}

func NewActivityHandler(svc *services.AuditService) *ActivityHandler {
	return &ActivityHandler{svc: svc}
}

// GET /api/activity
func (h *ActivityHandler) List(c *gin.Context) {
	since, err := parseTimeQuery(c, "since")
	if err != nil {
		response.Error(c, err)
		return
	}
	until, err := parseTimeQuery(c, "until")
	if err != nil {
		response.Error(c, err)
		return
	}

	opts := services.AuditListOptions{
		Page:     parseIntQuery(c, "page", 1),
		PageSize: parseIntQuery(c, "page_size", 50),
		Filters: services.AuditFilters{
			UserID:   strings.TrimSpace(c.Query("user_id")),
			Action:   strings.TrimSpace(c.Query("action")),
			Result:   strings.TrimSpace(c.Query("result")),
			Resource: strings.TrimSpace(c.Query("resource")),
			Since:    since,
			Until:    until,
		},
	}

	logs, total, err := h.svc.List(requestContext(c), opts)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, logs, response.NewMeta(pageOf(opts.Page), pageSizeOf(opts.PageSize), total))
}
