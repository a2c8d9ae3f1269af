package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records authentication attempts by result (success|failure).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskboard_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"result"},
	)

	// ActiveSessions tracks active refresh sessions (not expired/revoked).
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "taskboard_active_sessions",
			Help: "Number of active sessions",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "taskboard_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// LiveConnections tracks open live notification connections across all users.
	LiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "taskboard_live_connections",
			Help: "Number of registered live connections",
		},
	)

	// LivePushes counts per-connection push attempts by result (delivered|closed|failed).
	LivePushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskboard_live_pushes_total",
			Help: "Total number of live notification pushes per connection",
		},
		[]string{"result"},
	)

	// NotificationsCreated counts persisted notifications by kind.
	NotificationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskboard_notifications_created_total",
			Help: "Total number of notifications persisted",
		},
		[]string{"kind"},
	)

	// MaintenanceRuns counts background job executions by job and result (success|failure).
	MaintenanceRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskboard_maintenance_runs_total",
			Help: "Total number of maintenance job runs",
		},
		[]string{"job", "result"},
	)
)
