package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	iauth "github.com/charlesng35/taskboard/internal/auth"
	"github.com/charlesng35/taskboard/internal/realtime"
	"github.com/charlesng35/taskboard/pkg/logger"
)

// CloseUnauthenticated is the close code sent when a live connection fails authentication.
const CloseUnauthenticated = 4001

// RealtimeHandler upgrades HTTP connections into authenticated live notification streams.
type RealtimeHandler struct {
	registry *realtime.Registry
	jwt      *iauth.JWTService
	upgrader *websocket.Upgrader
	opts     realtime.ConnOptions
	log      *zap.Logger
}

// NewRealtimeHandler builds the live channel handler.
func NewRealtimeHandler(registry *realtime.Registry, jwt *iauth.JWTService, upgrader *websocket.Upgrader, opts realtime.ConnOptions) *RealtimeHandler {
	if upgrader == nil {
		upgrader = realtime.NewUpgrader(nil)
	}
	return &RealtimeHandler{
		registry: registry,
		jwt:      jwt,
		upgrader: upgrader,
		opts:     opts,
		log:      logger.WithModule("realtime"),
	}
}

// Notifications serves GET /ws/notifications?token=. The socket is upgraded before the
// token is checked so authentication failures reach the client as close frames.
func (h *RealtimeHandler) Notifications(c *gin.Context) {
	socket, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		h.log.Debug("live upgrade failed", zap.Error(err))
		return
	}

	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		realtime.CloseWithCode(socket, CloseUnauthenticated, "Missing token")
		return
	}

	claims, err := h.jwt.ValidateAccessToken(token)
	if err != nil || strings.TrimSpace(claims.UserID) == "" {
		realtime.CloseWithCode(socket, CloseUnauthenticated, "Invalid token")
		return
	}

	conn := realtime.NewWSConn(socket, h.registry, claims.UserID, h.opts)
	h.registry.Connect(conn, claims.UserID)
	conn.Run()
}
