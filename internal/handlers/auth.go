package handlers

import (
	stdErrors "errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	iauth "github.com/charlesng35/taskboard/internal/auth"
	"github.com/charlesng35/taskboard/internal/middleware"
	"github.com/charlesng35/taskboard/internal/models"
	"github.com/charlesng35/taskboard/internal/services"
	"github.com/charlesng35/taskboard/pkg/errors"
	"github.com/charlesng35/taskboard/pkg/logger"
	"github.com/charlesng35/taskboard/pkg/response"
)

// ErrInvalidRefreshToken covers every refresh failure so clients cannot probe session state.
var ErrInvalidRefreshToken = errors.New("INVALID_REFRESH_TOKEN", "Refresh token is invalid or expired", http.StatusUnauthorized)

// AuthHandler serves registration, login and session management.
type AuthHandler struct {
	authn    *iauth.Authenticator
	sessions *iauth.SessionService
	users    *services.UserService
	audit    *services.AuditService
}

type registerRequest struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=8,max=128"`
	FullName string `json:"full_name" validate:"omitempty,max=255"`
}

type loginRequest struct {
	Identifier string `json:"identifier" validate:"required"`
	Password   string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=128"`
}

type authResponse struct {
	iauth.TokenPair
	User *models.User `json:"user"`
}

// NewAuthHandler wires the auth endpoints. audit may be nil.
func NewAuthHandler(authn *iauth.Authenticator, sessions *iauth.SessionService, users *services.UserService, audit *services.AuditService) *AuthHandler {
	return &AuthHandler{authn: authn, sessions: sessions, users: users, audit: audit}
}

// POST /api/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var body registerRequest
	if !bindAndValidate(c, &body) {
		return
	}

	user, err := h.authn.Register(requestContext(c), iauth.RegisterInput{
		Username: body.Username,
		Email:    body.Email,
		Password: body.Password,
		FullName: body.FullName,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	h.respondWithSession(c, http.StatusCreated, user, "auth.register")
}

// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var body loginRequest
	if !bindAndValidate(c, &body) {
		return
	}

	user, err := h.authn.Authenticate(requestContext(c), iauth.Credentials{
		Identifier: body.Identifier,
		Password:   body.Password,
		IPAddress:  c.ClientIP(),
	})
	if err != nil {
		h.record(c, services.AuditEntry{
			Username: strings.TrimSpace(body.Identifier),
			Action:   "auth.login",
			Resource: "session",
			Result:   "failure",
		})
		response.Error(c, err)
		return
	}

	h.respondWithSession(c, http.StatusOK, user, "auth.login")
}

// POST /api/auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	var body refreshRequest
	if !bindAndValidate(c, &body) {
		return
	}

	tokens, _, err := h.sessions.RefreshSession(requestContext(c), body.RefreshToken)
	if err != nil {
		if isSessionError(err) {
			response.Error(c, ErrInvalidRefreshToken)
			return
		}
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, tokens)
}

// POST /api/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	if sessionID := c.GetString(middleware.CtxSessionIDKey); sessionID != "" {
		err := h.sessions.RevokeSession(requestContext(c), sessionID)
		if err != nil && !isSessionError(err) {
			response.Error(c, err)
			return
		}
	}

	h.record(c, services.AuditEntry{UserID: &userID, Action: "auth.logout", Resource: "session", Result: "success"})
	response.Success(c, http.StatusOK, gin.H{"logged_out": true})
}

// GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	user, err := h.users.GetByID(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, user)
}

// POST /api/auth/password
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var body changePasswordRequest
	if !bindAndValidate(c, &body) {
		return
	}

	ctx := requestContext(c)
	if err := h.authn.ChangePassword(ctx, userID, body.CurrentPassword, body.NewPassword); err != nil {
		response.Error(c, err)
		return
	}
	// Existing refresh tokens stop working once the password changes.
	if err := h.sessions.RevokeUserSessions(ctx, userID); err != nil {
		response.Error(c, err)
		return
	}

	h.record(c, services.AuditEntry{UserID: &userID, Action: "auth.change_password", Resource: "user:" + userID, Result: "success"})
	response.Success(c, http.StatusOK, gin.H{"password_changed": true})
}

func (h *AuthHandler) respondWithSession(c *gin.Context, status int, user *models.User, action string) {
	tokens, _, err := h.sessions.CreateSession(requestContext(c), user, iauth.SessionMetadata{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	userID := user.ID
	h.record(c, services.AuditEntry{
		UserID:   &userID,
		Username: user.Username,
		Action:   action,
		Resource: "session",
		Result:   "success",
	})
	response.Success(c, status, authResponse{TokenPair: tokens, User: user})
}

func (h *AuthHandler) record(c *gin.Context, entry services.AuditEntry) {
	if h.audit == nil {
		return
	}
	if err := h.audit.Log(requestContext(c), entry); err != nil {
		logger.WithModule("http").Warn("record auth activity", zap.String("action", entry.Action), zap.Error(err))
	}
}

func isSessionError(err error) bool {
	return stdErrors.Is(err, iauth.ErrSessionNotFound) ||
		stdErrors.Is(err, iauth.ErrSessionRevoked) ||
		stdErrors.Is(err, iauth.ErrSessionExpired) ||
		stdErrors.Is(err, iauth.ErrSessionInvalidToken) ||
		stdErrors.Is(err, iauth.ErrSessionUserInactive)
}
