package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/charlesng35/taskboard/internal/app"
	iauth "github.com/charlesng35/taskboard/internal/auth"
	"github.com/charlesng35/taskboard/internal/cache"
	"github.com/charlesng35/taskboard/internal/handlers"
	"github.com/charlesng35/taskboard/internal/middleware"
	"github.com/charlesng35/taskboard/internal/notifications"
	"github.com/charlesng35/taskboard/internal/realtime"
	"github.com/charlesng35/taskboard/internal/services"
)

// Services groups the domain services exposed over HTTP.
type Services struct {
	Users     *services.UserService
	Teams     *services.TeamService
	Tasks     *services.TaskService
	Audit     *services.AuditService
	Export    *services.ExportService
	Analytics *services.AnalyticsService
}

// Dependencies carries everything the router needs. RateStore may be nil, which disables
// rate limiting.
type Dependencies struct {
	DB            *gorm.DB
	Config        *app.Config
	JWT           *iauth.JWTService
	Sessions      *iauth.SessionService
	Authenticator *iauth.Authenticator
	Registry      *realtime.Registry
	Dispatcher    *notifications.Dispatcher
	RateStore     cache.Store
	Services      Services
}

func (d Dependencies) validate() error {
	switch {
	case d.DB == nil:
		return fmt.Errorf("database handle must be provided")
	case d.Config == nil:
		return fmt.Errorf("config must be provided")
	case d.JWT == nil:
		return fmt.Errorf("jwt service must be provided")
	case d.Sessions == nil:
		return fmt.Errorf("session service must be provided")
	case d.Authenticator == nil:
		return fmt.Errorf("authenticator must be provided")
	case d.Registry == nil:
		return fmt.Errorf("connection registry must be provided")
	case d.Dispatcher == nil:
		return fmt.Errorf("notification dispatcher must be provided")
	}

	svc := d.Services
	if svc.Users == nil || svc.Teams == nil || svc.Tasks == nil || svc.Audit == nil || svc.Export == nil || svc.Analytics == nil {
		return fmt.Errorf("all domain services must be provided")
	}
	return nil
}

// NewRouter builds the Gin engine, wires middleware and registers every route.
func NewRouter(deps Dependencies) (*gin.Engine, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	cfg := deps.Config

	r := gin.New()

	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.CORSOrigins...))
	if deps.RateStore != nil && cfg.Server.RateLimit.Requests > 0 {
		r.Use(middleware.RateLimit(deps.RateStore, cfg.Server.RateLimit.Requests, cfg.Server.RateLimit.Window))
	}

	registerOpsRoutes(r, deps)

	api := r.Group("/api")
	api.Use(middleware.Auth(deps.JWT))

	registerAuthRoutes(r, api, handlers.NewAuthHandler(deps.Authenticator, deps.Sessions, deps.Services.Users, deps.Services.Audit))
	registerUserRoutes(api, handlers.NewUserHandler(deps.Services.Users))
	registerTeamRoutes(api, handlers.NewTeamHandler(deps.Services.Teams))
	registerTaskRoutes(api, handlers.NewTaskHandler(deps.Services.Tasks))
	registerNotificationRoutes(api, handlers.NewNotificationHandler(deps.Dispatcher, deps.Services.Users))
	registerInsightRoutes(api, insightHandlers{
		Export:    handlers.NewExportHandler(deps.Services.Export),
		Analytics: handlers.NewAnalyticsHandler(deps.Services.Analytics),
		Activity:  handlers.NewActivityHandler(deps.Services.Audit),
	})

	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
