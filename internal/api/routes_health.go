package api

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/charlesng35/taskboard/internal/handlers"
	"github.com/charlesng35/taskboard/internal/realtime"
)

const defaultMetricsEndpoint = "/metrics"

// registerOpsRoutes mounts the unauthenticated endpoints: health, metrics and the live channel.
// The live channel authenticates through its token query parameter.
func registerOpsRoutes(r *gin.Engine, deps Dependencies) {
	cfg := deps.Config

	r.GET("/health", handlers.Health(deps.DB, deps.Registry))

	live := handlers.NewRealtimeHandler(
		deps.Registry,
		deps.JWT,
		realtime.NewUpgrader(cfg.Server.CORSOrigins),
		cfg.Realtime.ConnOptions(),
	)
	r.GET("/ws/notifications", live.Notifications)

	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := strings.TrimSpace(cfg.Monitoring.Prometheus.Endpoint)
		if endpoint == "" {
			endpoint = defaultMetricsEndpoint
		}
		if !strings.HasPrefix(endpoint, "/") {
			endpoint = "/" + endpoint
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}
}
