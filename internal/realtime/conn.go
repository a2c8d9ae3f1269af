package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// DefaultWriteTimeout bounds every frame written to the socket.
	DefaultWriteTimeout = 10 * time.Second
	// DefaultSendBuffer is the per-connection outbound queue size.
	DefaultSendBuffer = 64

	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// ErrSendBufferFull is reported when a connection's outbound queue is saturated.
var ErrSendBufferFull = errors.New("realtime: send buffer full")

// ConnOptions tunes a WebSocket connection.
type ConnOptions struct {
	SendBuffer   int
	WriteTimeout time.Duration
	Logger       *zap.Logger
}

type frame struct {
	kind    int
	payload []byte
}

// WSConn adapts a gorilla WebSocket to the Conn interface. Pushes are queued and
// written by a dedicated goroutine, so Send never blocks on the network.
type WSConn struct {
	socket    *websocket.Conn
	registry  *Registry
	userID    string
	writeWait time.Duration
	log       *zap.Logger

	send chan frame
	done chan struct{}
	once sync.Once
}

// NewWSConn wraps an upgraded socket for userID. Closing it unregisters it from registry.
func NewWSConn(socket *websocket.Conn, registry *Registry, userID string, opts ConnOptions) *WSConn {
	buffer := opts.SendBuffer
	if buffer <= 0 {
		buffer = DefaultSendBuffer
	}
	writeWait := opts.WriteTimeout
	if writeWait <= 0 {
		writeWait = DefaultWriteTimeout
	}
	log := opts.Logger
	if log == nil {
		log = registry.log
	}

	return &WSConn{
		socket:    socket,
		registry:  registry,
		userID:    userID,
		writeWait: writeWait,
		log:       log.With(zap.String("user_id", userID)),
		send:      make(chan frame, buffer),
		done:      make(chan struct{}),
	}
}

// UserID returns the identity the connection was authenticated as.
func (c *WSConn) UserID() string {
	return c.userID
}

// Send queues msg for delivery. A saturated queue closes the connection.
func (c *WSConn) Send(_ context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode live message: %w", err)
	}

	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}

	select {
	case c.send <- frame{kind: websocket.TextMessage, payload: payload}:
		return nil
	case <-c.done:
		return ErrConnectionClosed
	default:
		c.log.Warn("closing slow live connection", zap.Int("buffer", cap(c.send)))
		c.shutdown(websocket.CloseTryAgainLater, "send buffer full")
		return ErrSendBufferFull
	}
}

// Close sends a going-away close frame and releases the connection.
func (c *WSConn) Close() error {
	c.shutdown(websocket.CloseGoingAway, "server shutting down")
	return nil
}

// Run pumps the socket until the peer disconnects or the connection is closed.
// It blocks and always unregisters the connection before returning.
func (c *WSConn) Run() {
	go c.writeLoop()
	c.readLoop()
}

func (c *WSConn) readLoop() {
	defer c.shutdown(websocket.CloseNormalClosure, "")

	c.socket.SetReadLimit(maxMessageSize)
	_ = c.socket.SetReadDeadline(time.Now().Add(pongWait))
	c.socket.SetPongHandler(func(string) error {
		return c.socket.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		kind, payload, err := c.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.log.Debug("live connection closed unexpectedly", zap.Error(err))
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		if strings.TrimSpace(string(payload)) == "ping" {
			select {
			case c.send <- frame{kind: websocket.TextMessage, payload: []byte("pong")}:
			default:
			}
		}
	}
}

func (c *WSConn) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.shutdown(websocket.CloseNormalClosure, "")
	}()

	for {
		select {
		case f := <-c.send:
			_ = c.socket.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := c.socket.WriteMessage(f.kind, f.payload); err != nil {
				c.log.Debug("live write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.socket.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := c.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *WSConn) shutdown(code int, reason string) {
	c.once.Do(func() {
		close(c.done)
		c.registry.Disconnect(c, c.userID)
		// the close frame may wait on a slow peer; callers on the push path must not
		go func() {
			if code != websocket.CloseNormalClosure || reason != "" {
				_ = c.socket.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(c.writeWait))
			}
			_ = c.socket.Close()
		}()
	})
}

// CloseWithCode writes a close frame to a socket that was never registered and closes it.
func CloseWithCode(socket *websocket.Conn, code int, reason string) {
	_ = socket.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(DefaultWriteTimeout))
	_ = socket.Close()
}

// NewUpgrader builds a WebSocket upgrader accepting same-origin, loopback and the
// supplied origins. A "*" entry accepts any origin.
func NewUpgrader(allowedOrigins []string) *websocket.Upgrader {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		origin = strings.TrimSpace(origin)
		if origin == "*" {
			allowed["*"] = struct{}{}
			continue
		}
		if host := hostWithoutPort(origin); host != "" {
			allowed[strings.ToLower(host)] = struct{}{}
		}
	}

	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			if _, ok := allowed["*"]; ok {
				return true
			}
			originHost := strings.ToLower(hostWithoutPort(origin))
			if originHost == strings.ToLower(hostWithoutPort(r.Host)) || isLoopback(originHost) {
				return true
			}
			_, ok := allowed[originHost]
			return ok
		},
	}
}

func hostWithoutPort(host string) string {
	host = strings.TrimSpace(host)
	if host == "" {
		return ""
	}

	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		parsed, err := http.NewRequest(http.MethodGet, host, nil)
		if err == nil {
			return hostWithoutPort(parsed.URL.Host)
		}
	}

	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

func isLoopback(host string) bool {
	ip := net.ParseIP(host)
	if ip != nil {
		return ip.IsLoopback()
	}
	return strings.EqualFold(host, "localhost")
}
