package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/taskboard/internal/app"
	iauth "github.com/charlesng35/taskboard/internal/auth"
	"github.com/charlesng35/taskboard/internal/cache"
	testutil "github.com/charlesng35/taskboard/internal/database/testutil"
	"github.com/charlesng35/taskboard/internal/notifications"
	"github.com/charlesng35/taskboard/internal/realtime"
)

func newTestDependencies(t *testing.T, cfg *app.Config) Dependencies {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())

	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{Secret: "router-secret", Issuer: "test", AccessTokenTTL: 15 * time.Minute})
	require.NoError(t, err)
	sessions, err := iauth.NewSessionService(db, jwtSvc, iauth.SessionConfig{})
	require.NoError(t, err)
	authn, err := iauth.NewAuthenticator(db, iauth.AuthenticatorConfig{})
	require.NoError(t, err)

	registry := realtime.NewRegistry()
	t.Cleanup(registry.Close)

	store, err := notifications.NewGormStore(db)
	require.NoError(t, err)
	dispatcher, err := notifications.NewDispatcher(store, registry)
	require.NoError(t, err)

	svc, err := NewServices(db, dispatcher)
	require.NoError(t, err)

	return Dependencies{
		DB:            db,
		Config:        cfg,
		JWT:           jwtSvc,
		Sessions:      sessions,
		Authenticator: authn,
		Registry:      registry,
		Dispatcher:    dispatcher,
		RateStore:     cache.NewDatabaseStore(db),
		Services:      svc,
	}
}

func serve(router *gin.Engine, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	router.ServeHTTP(rec, req)
	return rec
}

func TestNewRouterValidatesDependencies(t *testing.T) {
	_, err := NewRouter(Dependencies{})
	require.Error(t, err)

	deps := newTestDependencies(t, &app.Config{})
	deps.Services.Tasks = nil
	_, err = NewRouter(deps)
	require.ErrorContains(t, err, "domain services")
}

func TestRouterPublicAndProtectedRoutes(t *testing.T) {
	router, err := NewRouter(newTestDependencies(t, &app.Config{}))
	require.NoError(t, err)

	rec := serve(router, http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Contains(t, rec.Body.String(), `"database":"ok"`)
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	for _, path := range []string{"/api/auth/me", "/api/users", "/api/tasks", "/api/notifications/unread-count", "/api/activity"} {
		rec = serve(router, http.MethodGet, path)
		require.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}

	// Metrics are off unless enabled.
	rec = serve(router, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouterMetricsEndpoint(t *testing.T) {
	cfg := &app.Config{
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "internal/metrics"},
		},
	}
	router, err := NewRouter(newTestDependencies(t, cfg))
	require.NoError(t, err)

	rec := serve(router, http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(router, http.MethodGet, "/internal/metrics")
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	require.True(t, strings.Contains(body, `taskboard_api_latency_seconds_count{method="GET",path="/health",status="200"}`), body)
}

func TestRouterRateLimit(t *testing.T) {
	cfg := &app.Config{
		Server: app.ServerConfig{
			RateLimit: app.RateLimitConfig{Requests: 2, Window: time.Minute},
		},
	}
	router, err := NewRouter(newTestDependencies(t, cfg))
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		rec := serve(router, http.MethodGet, "/health")
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := serve(router, http.MethodGet, "/health")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))
}
