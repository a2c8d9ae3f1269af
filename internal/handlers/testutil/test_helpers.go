package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/taskboard/internal/api"
	"github.com/charlesng35/taskboard/internal/app"
	iauth "github.com/charlesng35/taskboard/internal/auth"
	sharedtestutil "github.com/charlesng35/taskboard/internal/database/testutil"
	"github.com/charlesng35/taskboard/internal/models"
	"github.com/charlesng35/taskboard/internal/notifications"
	"github.com/charlesng35/taskboard/internal/realtime"
	"github.com/charlesng35/taskboard/pkg/crypto"
	"github.com/charlesng35/taskboard/pkg/response"
)

const testJWTSecret = "test-suite-super-secret-key-32-bytes!!"

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T          *testing.T
	DB         *gorm.DB
	Router     *gin.Engine
	JWT        *iauth.JWTService
	Registry   *realtime.Registry
	Dispatcher *notifications.Dispatcher
	Services   api.Services
}

// NewEnv provisions a fresh handler test environment with migrations applied.
// Live pushes go straight to the local registry.
func NewEnv(t *testing.T) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithSeedData())

	cfg := &app.Config{
		Auth: app.AuthConfig{
			JWT: app.JWTSettings{
				Secret: testJWTSecret,
				Issuer: "test-suite",
				TTL:    time.Hour,
			},
			Session: app.SessionSettings{
				RefreshTTL:    24 * time.Hour,
				RefreshLength: 48,
			},
		},
		Realtime: app.RealtimeConfig{SendBuffer: 8, WriteTimeout: time.Second},
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	require.NoError(t, err)
	sessionSvc, err := iauth.NewSessionService(db, jwtSvc, cfg.Auth.SessionServiceConfig())
	require.NoError(t, err)
	authn, err := iauth.NewAuthenticator(db, cfg.Auth.AuthenticatorConfig())
	require.NoError(t, err)

	registry := realtime.NewRegistry()
	t.Cleanup(registry.Close)

	store, err := notifications.NewGormStore(db)
	require.NoError(t, err)
	dispatcher, err := notifications.NewDispatcher(store, registry)
	require.NoError(t, err)

	svc, err := api.NewServices(db, dispatcher)
	require.NoError(t, err)

	router, err := api.NewRouter(api.Dependencies{
		DB:            db,
		Config:        cfg,
		JWT:           jwtSvc,
		Sessions:      sessionSvc,
		Authenticator: authn,
		Registry:      registry,
		Dispatcher:    dispatcher,
		Services:      svc,
	})
	require.NoError(t, err)

	return &Env{
		T:          t,
		DB:         db,
		Router:     router,
		JWT:        jwtSvc,
		Registry:   registry,
		Dispatcher: dispatcher,
		Services:   svc,
	}
}

// CreateUser inserts an active user with the given role and a random username.
func (e *Env) CreateUser(role, password string) *models.User {
	e.T.Helper()

	username := role + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	hashed, err := crypto.HashPassword(password)
	require.NoError(e.T, err)

	user := &models.User{
		Username: username,
		Email:    username + "@example.com",
		Password: hashed,
		Role:     role,
		IsActive: true,
	}
	require.NoError(e.T, e.DB.Create(user).Error)
	return user
}

// CreateAdmin inserts an active admin user.
func (e *Env) CreateAdmin(password string) *models.User {
	e.T.Helper()
	return e.CreateUser(models.UserRoleAdmin, password)
}

// UserPayload captures the subset of user fields returned from auth endpoints.
type UserPayload struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	IsActive bool   `json:"is_active"`
}

// LoginResult bundles the JSON response from POST /api/auth/login.
type LoginResult struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	TokenType    string      `json:"token_type"`
	ExpiresIn    int         `json:"expires_in"`
	User         UserPayload `json:"user"`
}

// Login authenticates with username or email and returns the issued token pair.
func (e *Env) Login(identifier, password string) LoginResult {
	e.T.Helper()

	payload := map[string]string{
		"identifier": identifier,
		"password":   password,
	}

	w := e.Request(http.MethodPost, "/api/auth/login", payload, "")
	require.Equal(e.T, http.StatusOK, w.Code, w.Body.String())

	resp := DecodeResponse(e.T, w)
	require.True(e.T, resp.Success, w.Body.String())

	var result LoginResult
	DecodeInto(e.T, resp.Data, &result)
	require.NotEmpty(e.T, result.AccessToken)
	require.NotEmpty(e.T, result.RefreshToken)
	require.Greater(e.T, result.ExpiresIn, 0)

	return result
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
	Meta    *response.Meta      `json:"meta"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// Request executes an HTTP request against the test router, applying JSON encoding and auth headers automatically.
func (e *Env) Request(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.T.Helper()

	var buf *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	} else {
		buf = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}

// DialLive starts a real HTTP server for the router and opens the live notification socket.
// An empty token omits the query parameter.
func (e *Env) DialLive(token string) *websocket.Conn {
	e.T.Helper()

	server := httptest.NewServer(e.Router)
	e.T.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/notifications"
	if token != "" {
		url += "?token=" + token
	}

	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(e.T, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	e.T.Cleanup(func() { _ = conn.Close() })
	return conn
}

// WaitForConnections blocks until userID has n registered live connections.
func (e *Env) WaitForConnections(userID string, n int) {
	e.T.Helper()
	require.Eventually(e.T, func() bool {
		return e.Registry.ConnectionCount(userID) == n
	}, 2*time.Second, 10*time.Millisecond)
}
