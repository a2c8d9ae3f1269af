package handlers

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/taskboard/internal/auditctx"
	"github.com/charlesng35/taskboard/internal/middleware"
	"github.com/charlesng35/taskboard/pkg/errors"
	"github.com/charlesng35/taskboard/pkg/response"
)

// requestContext returns the request context tagged with the caller's address and user agent,
// so activity log entries written by services record where a change came from.
func requestContext(c *gin.Context) context.Context {
	if c == nil || c.Request == nil {
		return context.Background()
	}
	return auditctx.WithClient(c.Request.Context(), auditctx.Client{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
}

// currentUserID returns the authenticated user's ID, writing a 401 when it is missing.
func currentUserID(c *gin.Context) (string, bool) {
	userID := strings.TrimSpace(c.GetString(middleware.CtxUserIDKey))
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return "", false
	}
	return userID, true
}
