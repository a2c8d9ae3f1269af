package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func startLiveServer(t *testing.T, reg *Registry, userID string, opts ConnOptions) string {
	t.Helper()

	upgrader := NewUpgrader(nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		socket, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn := NewWSConn(socket, reg, userID, opts)
		reg.Connect(conn, userID)
		conn.Run()
	}))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestWSConnRepliesPongToPing(t *testing.T) {
	reg, _ := newObservedRegistry(t)
	client := dial(t, startLiveServer(t, reg, "u1", ConnOptions{}))

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte("hello")))
	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte("ping")))

	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	kind, payload, err := client.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, kind)
	require.Equal(t, "pong", string(payload))
}

func TestWSConnDeliversRegistryPush(t *testing.T) {
	reg, _ := newObservedRegistry(t)
	client := dial(t, startLiveServer(t, reg, "u1", ConnOptions{}))

	require.Eventually(t, func() bool { return reg.ConnectionCount("u1") == 1 }, 2*time.Second, 10*time.Millisecond)

	msg := Message{Type: MessageTypeNotification, Data: map[string]any{"id": "n1", "title": "Task Updated"}}
	require.Equal(t, 1, reg.SendToUser(context.Background(), "u1", msg))

	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := client.ReadMessage()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(payload, &decoded))
	require.Equal(t, "notification", decoded["type"])
	require.Equal(t, "n1", decoded["data"].(map[string]any)["id"])
}

func TestWSConnUnregistersWhenClientCloses(t *testing.T) {
	reg, _ := newObservedRegistry(t)
	client := dial(t, startLiveServer(t, reg, "u1", ConnOptions{}))

	require.Eventually(t, func() bool { return reg.IsConnected("u1") }, 2*time.Second, 10*time.Millisecond)

	_ = client.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	_ = client.Close()

	require.Eventually(t, func() bool { return !reg.IsConnected("u1") }, 2*time.Second, 10*time.Millisecond)
}

func TestWSConnSendAfterCloseReportsClosed(t *testing.T) {
	reg, _ := newObservedRegistry(t)
	dial(t, startLiveServer(t, reg, "u1", ConnOptions{}))

	require.Eventually(t, func() bool { return reg.IsConnected("u1") }, 2*time.Second, 10*time.Millisecond)

	var conn *WSConn
	for _, c := range reg.snapshot("u1") {
		conn = c.(*WSConn)
	}
	require.NotNil(t, conn)
	require.Equal(t, "u1", conn.UserID())

	require.NoError(t, conn.Close())
	require.False(t, reg.IsConnected("u1"))
	require.ErrorIs(t, conn.Send(context.Background(), Message{Type: "notification"}), ErrConnectionClosed)
}

func TestUpgraderCheckOrigin(t *testing.T) {
	upgrader := NewUpgrader([]string{"https://app.example.com"})

	cases := map[string]bool{
		"":                         true,
		"http://localhost:5173":    true,
		"https://app.example.com":  true,
		"https://api.example.com":  true,
		"https://evil.example.org": false,
	}
	for origin, want := range cases {
		req := httptest.NewRequest(http.MethodGet, "http://api.example.com/ws/notifications", nil)
		if origin != "" {
			req.Header.Set("Origin", origin)
		}
		require.Equal(t, want, upgrader.CheckOrigin(req), origin)
	}

	require.True(t, NewUpgrader([]string{"*"}).CheckOrigin(func() *http.Request {
		req := httptest.NewRequest(http.MethodGet, "http://api.example.com/ws", nil)
		req.Header.Set("Origin", "https://anything.test")
		return req
	}()))
}
