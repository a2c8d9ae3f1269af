package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/taskboard/internal/notifications"
	"github.com/charlesng35/taskboard/internal/services"
	"github.com/charlesng35/taskboard/pkg/errors"
	"github.com/charlesng35/taskboard/pkg/logger"
	"github.com/charlesng35/taskboard/pkg/response"
)

// NotificationHandler exposes the notification inbox of the current user.
type NotificationHandler struct {
	dispatcher *notifications.Dispatcher
	users      *services.UserService
}

type broadcastRequest struct {
	Title   string `json:"title" validate:"required,max=255"`
	Message string `json:"message" validate:"required,max=2000"`
}

// NewNotificationHandler constructs a notification handler.
func NewNotificationHandler(dispatcher *notifications.Dispatcher, users *services.UserService) *NotificationHandler {
	return &NotificationHandler{dispatcher: dispatcher, users: users}
}

// List returns the current user's notifications, newest first.
func (h *NotificationHandler) List(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	unreadOnly := false
	if v := parseBoolQuery(c, "unread_only"); v != nil {
		unreadOnly = *v
	}

	result, err := h.dispatcher.List(requestContext(c), notifications.ListInput{
		UserID:     userID,
		UnreadOnly: unreadOnly,
		Page:       parseIntQuery(c, "page", 1),
		PageSize:   parseIntQuery(c, "page_size", notifications.DefaultPageSize),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}

// UnreadCount reports how many notifications are still unread.
func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	count, err := h.dispatcher.UnreadCount(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"unread_count": count})
}

// MarkRead flags one notification as read.
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	record, err := h.dispatcher.MarkRead(requestContext(c), strings.TrimSpace(c.Param("id")), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, record)
}

// MarkAllRead flags every unread notification as read.
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	updated, err := h.dispatcher.MarkAllRead(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"updated": updated})
}

// Delete removes a notification.
func (h *NotificationHandler) Delete(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	if err := h.dispatcher.Delete(requestContext(c), strings.TrimSpace(c.Param("id")), userID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// Broadcast sends a system notification to every active user.
func (h *NotificationHandler) Broadcast(c *gin.Context) {
	var body broadcastRequest
	if !bindAndValidate(c, &body) {
		return
	}

	ctx := requestContext(c)
	recipients, err := h.users.ActiveUserIDs(ctx)
	if err != nil {
		response.Error(c, err)
		return
	}

	inputs := make([]notifications.CreateInput, 0, len(recipients))
	for _, id := range recipients {
		inputs = append(inputs, notifications.System(id, body.Title, body.Message))
	}

	created, err := h.dispatcher.CreateAll(ctx, inputs...)
	if err != nil {
		logger.WithModule("notifications").Warn("broadcast partially failed",
			zap.Int("created", created),
			zap.Int("recipients", len(recipients)),
			zap.Error(err),
		)
		if created == 0 && len(recipients) > 0 {
			response.Error(c, errors.Wrap(err, "Broadcast failed"))
			return
		}
	}

	response.Success(c, http.StatusOK, gin.H{"recipients": len(recipients), "created": created})
}
