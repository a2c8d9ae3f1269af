package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/taskboard/internal/services"
	"github.com/charlesng35/taskboard/pkg/errors"
	"github.com/charlesng35/taskboard/pkg/response"
)

// UserHandler exposes user profile and administration endpoints.
type UserHandler struct {
	svc *services.UserService
}

type updateUserRequest struct {
	Email     *string `json:"email" validate:"omitempty,email,max=255"`
	FullName  *string `json:"full_name" validate:"omitempty,max=255"`
	Bio       *string `json:"bio" validate:"omitempty,max=2000"`
	AvatarURL *string `json:"avatar_url" validate:"omitempty,url,max=512"`
	Password  *string `json:"password" validate:"omitempty,min=8,max=128"`
	Role      *string `json:"role" validate:"omitempty,oneof=admin manager member viewer"`
	IsActive  *bool   `json:"is_active"`
}

func NewUserHandler(svc *services.UserService) *UserHandler {
	return &UserHandler{svc: svc}
}

// GET /api/users
func (h *UserHandler) List(c *gin.Context) {
	opts := services.ListUsersOptions{
		Page:     parseIntQuery(c, "page", 1),
		PageSize: parseIntQuery(c, "page_size", 20),
		Filters: services.UserFilters{
			Role:     strings.TrimSpace(c.Query("role")),
			IsActive: parseBoolQuery(c, "is_active"),
			Query:    strings.TrimSpace(c.Query("search")),
		},
	}

	users, total, err := h.svc.List(requestContext(c), opts)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, users, response.NewMeta(pageOf(opts.Page), pageSizeOf(opts.PageSize), total))
}

// GET /api/users/:id
func (h *UserHandler) Get(c *gin.Context) {
	actorID, ok := currentUserID(c)
	if !ok {
		return
	}

	user, err := h.svc.Get(requestContext(c), actorID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, user)
}

// PATCH /api/users/:id
func (h *UserHandler) Update(c *gin.Context) {
	actorID, ok := currentUserID(c)
	if !ok {
		return
	}

	var body updateUserRequest
	if !bindAndValidate(c, &body) {
		return
	}
	if body == (updateUserRequest{}) {
		response.Error(c, errors.NewBadRequest("no fields provided for update"))
		return
	}

	user, err := h.svc.Update(requestContext(c), actorID, c.Param("id"), services.UpdateUserInput{
		Email:     body.Email,
		FullName:  body.FullName,
		Bio:       body.Bio,
		AvatarURL: body.AvatarURL,
		Password:  body.Password,
		Role:      body.Role,
		IsActive:  body.IsActive,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, user)
}

// DELETE /api/users/:id
func (h *UserHandler) Delete(c *gin.Context) {
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

// pageOf and pageSizeOf mirror the services' pagination clamps for response metadata.
func pageOf(page int) int {
	if page < 1 {
		return 1
	}
	return page
}

func pageSizeOf(size int) int {
	switch {
	case size < 1:
		return 20
	case size > 100:
		return 100
	}
	return size
}
