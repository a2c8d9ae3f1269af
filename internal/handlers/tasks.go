package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/taskboard/internal/services"
	"github.com/charlesng35/taskboard/pkg/errors"
	"github.com/charlesng35/taskboard/pkg/response"
)

// TaskHandler exposes task CRUD and search.
type TaskHandler struct {
	svc *services.TaskService
}

type createTaskRequest struct {
	Title          string     `json:"title" validate:"required,max=255"`
	Description    string     `json:"description" validate:"omitempty,max=10000"`
	Priority       string     `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	Status         string     `json:"status" validate:"omitempty,oneof=todo in_progress in_review completed archived"`
	Category       string     `json:"category" validate:"omitempty,oneof=bug feature improvement documentation maintenance research other"`
	EstimatedHours *float64   `json:"estimated_hours" validate:"omitempty,gte=0"`
	DueDate        *time.Time `json:"due_date"`
	AssigneeID     *string    `json:"assignee_id"`
	TeamID         *string    `json:"team_id"`
	ParentTaskID   *string    `json:"parent_task_id"`
}

type updateTaskRequest struct {
	Title           *string    `json:"title" validate:"omitempty,max=255"`
	Description     *string    `json:"description" validate:"omitempty,max=10000"`
	Priority        *string    `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	Status          *string    `json:"status" validate:"omitempty,oneof=todo in_progress in_review completed archived"`
	Category        *string    `json:"category" validate:"omitempty,oneof=bug feature improvement documentation maintenance research other"`
	EstimatedHours  *float64   `json:"estimated_hours" validate:"omitempty,gte=0"`
	ActualHours     *float64   `json:"actual_hours" validate:"omitempty,gte=0"`
	ProgressPercent *int       `json:"progress_percent" validate:"omitempty,gte=0,lte=100"`
	DueDate         *time.Time `json:"due_date"`
	ClearDueDate    bool       `json:"clear_due_date"`
	AssigneeID      *string    `json:"assignee_id"`
	TeamID          *string    `json:"team_id"`
}

func NewTaskHandler(svc *services.TaskService) *TaskHandler {
	return &TaskHandler{svc: svc}
}

// GET /api/tasks
func (h *TaskHandler) List(c *gin.Context) {
	actorID, ok := currentUserID(c)
	if !ok {
		return
	}

	dueFrom, err := parseTimeQuery(c, "due_from")
	if err != nil {
		response.Error(c, err)
		return
	}
	dueTo, err := parseTimeQuery(c, "due_to")
	if err != nil {
		response.Error(c, err)
		return
	}

	opts := services.SearchTasksOptions{
		Page:      parseIntQuery(c, "page", 1),
		PageSize:  parseIntQuery(c, "page_size", 20),
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
		Filters: services.TaskFilters{
			Statuses:   queryList(c, "status"),
			Priorities: queryList(c, "priority"),
			Categories: queryList(c, "category"),
			AssigneeID: strings.TrimSpace(c.Query("assignee_id")),
			TeamID:     strings.TrimSpace(c.Query("team_id")),
			OwnerID:    strings.TrimSpace(c.Query("owner_id")),
			IsOverdue:  parseBoolQuery(c, "is_overdue"),
			IsArchived: parseBoolQuery(c, "is_archived"),
			Query:      strings.TrimSpace(c.Query("search")),
			DueFrom:    dueFrom,
			DueTo:      dueTo,
		},
	}

	tasks, total, err := h.svc.Search(requestContext(c), actorID, opts)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, tasks, response.NewMeta(pageOf(opts.Page), pageSizeOf(opts.PageSize), total))
}

// GET /api/tasks/:id
func (h *TaskHandler) Get(c *gin.Context) {
	actorID, ok := currentUserID(c)
	if !ok {
		return
	}

	task, err := h.svc.Get(requestContext(c), actorID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, task)
}

// GET /api/tasks/:id/subtasks
func (h *TaskHandler) Subtasks(c *gin.Context) {
	actorID, ok := currentUserID(c)
	if !ok {
		return
	}

	tasks, err := h.svc.Subtasks(requestContext(c), actorID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, tasks)
}

// POST /api/tasks
func (h *TaskHandler) Create(c *gin.Context) {
	actorID, ok := currentUserID(c)
	if !ok {
		return
	}

	var body createTaskRequest
	if !bindAndValidate(c, &body) {
		return
	}
	if strings.TrimSpace(body.Title) == "" {
		response.Error(c, errors.NewBadRequest("title is required"))
		return
	}

	task, err := h.svc.Create(requestContext(c), actorID, services.CreateTaskInput{
		Title:          body.Title,
		Description:    body.Description,
		Priority:       body.Priority,
		Status:         body.Status,
		Category:       body.Category,
		EstimatedHours: body.EstimatedHours,
		DueDate:        body.DueDate,
		AssigneeID:     body.AssigneeID,
		TeamID:         body.TeamID,
		ParentTaskID:   body.ParentTaskID,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, task)
}

// PATCH /api/tasks/:id
func (h *TaskHandler) Update(c *gin.Context) {
	actorID, ok := currentUserID(c)
	if !ok {
		return
	}

	var body updateTaskRequest
	if !bindAndValidate(c, &body) {
		return
	}
	if body == (updateTaskRequest{}) {
		response.Error(c, errors.NewBadRequest("no fields provided for update"))
		return
	}

	task, err := h.svc.Update(requestContext(c), actorID, c.Param("id"), services.UpdateTaskInput{
		Title:           body.Title,
		Description:     body.Description,
		Priority:        body.Priority,
		Status:          body.Status,
		Category:        body.Category,
		EstimatedHours:  body.EstimatedHours,
		ActualHours:     body.ActualHours,
		ProgressPercent: body.ProgressPercent,
		DueDate:         body.DueDate,
		ClearDueDate:    body.ClearDueDate,
		AssigneeID:      body.AssigneeID,
		TeamID:          body.TeamID,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, task)
}

// DELETE /api/tasks/:id
func (h *TaskHandler) Delete(c *gin.Context) {
	actorID, ok := currentUserID(c)
	if !ok {
		return
	}

	if err := h.svc.Delete(requestContext(c), actorID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}
