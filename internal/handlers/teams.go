package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/taskboard/internal/services"
	"github.com/charlesng35/taskboard/pkg/errors"
	"github.com/charlesng35/taskboard/pkg/response"
)

type TeamHandler struct {
	svc *services.TeamService
}

type createTeamRequest struct {
	Name        string `json:"name" validate:"required,min=2,max=128"`
	Description string `json:"description" validate:"omitempty,max=512"`
}

type updateTeamRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=2,max=128"`
	Description *string `json:"description" validate:"omitempty,max=512"`
	IsActive    *bool   `json:"is_active"`
}

type addTeamMemberRequest struct {
	UserID string `json:"user_id" validate:"required"`
	Role   string `json:"role" validate:"omitempty,oneof=owner admin member viewer"`
}

type updateTeamMemberRequest struct {
	Role string `json:"role" validate:"required,oneof=owner admin member viewer"`
}

func NewTeamHandler(svc *services.TeamService) *TeamHandler {
	return &TeamHandler{svc: svc}
}

// GET /api/teams
func (h *TeamHandler) List(c *gin.Context) {
	actorID, ok := currentUserID(c)
	if !ok {
		return
	}

	opts := services.ListTeamsOptions{
		Page:     parseIntQuery(c, "page", 1),
		PageSize: parseIntQuery(c, "page_size", 20),
		Query:    strings.TrimSpace(c.Query("search")),
	}
	teams, total, err := h.svc.List(requestContext(c), actorID, opts)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, teams, response.NewMeta(pageOf(opts.Page), pageSizeOf(opts.PageSize), total))
}

// GET /api/teams/:id
func (h *TeamHandler) Get(c *gin.Context) {
	actorID, ok := currentUserID(c)
	if !ok {
		return
	}

	team, err := h.svc.Get(requestContext(c), actorID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, team)
}

// POST /api/teams
func (h *TeamHandler) Create(c *gin.Context) {
	actorID, ok := currentUserID(c)
	if !ok {
		return
	}

	var body createTeamRequest
	if !bindAndValidate(c, &body) {
		return
	}

	team, err := h.svc.Create(requestContext(c), actorID, services.CreateTeamInput{
		Name:        body.Name,
		Description: body.Description,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, team)
}

// PATCH /api/teams/:id
func (h *TeamHandler) Update(c *gin.Context) {
	actorID, ok := currentUserID(c)
	if !ok {
		return
	}

	var body updateTeamRequest
	if !bindAndValidate(c, &body) {
		return
	}
	if body.Name == nil && body.Description == nil && body.IsActive == nil {
		response.Error(c, errors.NewBadRequest("no fields provided for update"))
		return
	}
	if body.Name != nil && strings.TrimSpace(*body.Name) == "" {
		response.Error(c, errors.NewBadRequest("name must not be empty"))
		return
	}

	team, err := h.svc.Update(requestContext(c), actorID, c.Param("id"), services.UpdateTeamInput{
		Name:        body.Name,
		Description: body.Description,
		IsActive:    body.IsActive,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, team)
}

// DELETE /api/teams/:id
func (h *TeamHandler) Delete(c *gin.Context) {
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

// POST /api/teams/:id/members
func (h *TeamHandler) AddMember(c *gin.Context) {
	actorID, ok := currentUserID(c)
	if !ok {
		return
	}

	var body addTeamMemberRequest
	if !bindAndValidate(c, &body) {
		return
	}

	member, err := h.svc.AddMember(requestContext(c), actorID, c.Param("id"), strings.TrimSpace(body.UserID), body.Role)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, member)
}

// PATCH /api/teams/:id/members/:userID
func (h *TeamHandler) UpdateMemberRole(c *gin.Context) {
	actorID, ok := currentUserID(c)
	if !ok {
		return
	}

	var body updateTeamMemberRequest
	if !bindAndValidate(c, &body) {
		return
	}

	member, err := h.svc.UpdateMemberRole(requestContext(c), actorID, c.Param("id"), c.Param("userID"), body.Role)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, member)
}

// DELETE /api/teams/:id/members/:userID
func (h *TeamHandler) RemoveMember(c *gin.Context) {
	actorID, ok := currentUserID(c)
	if !ok {
		return
	}

	if err := h.svc.RemoveMember(requestContext(c), actorID, c.Param("id"), c.Param("userID")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"removed": true})
}
