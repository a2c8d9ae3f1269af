package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/taskboard/internal/api"
	"github.com/charlesng35/taskboard/internal/app"
	"github.com/charlesng35/taskboard/internal/app/maintenance"
	iauth "github.com/charlesng35/taskboard/internal/auth"
	"github.com/charlesng35/taskboard/internal/cache"
	"github.com/charlesng35/taskboard/internal/database"
	"github.com/charlesng35/taskboard/internal/notifications"
	"github.com/charlesng35/taskboard/internal/realtime"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB         *gorm.DB
	Redis      *redis.Client
	Registry   *realtime.Registry
	Dispatcher *notifications.Dispatcher
	Cleaner    *maintenance.Cleaner
	Router     *gin.Engine

	stopRelay context.CancelFunc
	relayDone chan struct{}
}

// bootstrapRuntime initialises the database, the optional Redis relay, services and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, generated map[string]bool, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg, log)
	if err != nil {
		return nil, err
	}
	if err := app.PersistRuntimeSecrets(ctx, stack.DB, cfg, generated); err != nil {
		return nil, err
	}

	dbStore := cache.NewDatabaseStore(stack.DB)
	var rateStore cache.Store = dbStore

	if cfg.Cache.Redis.Enabled {
		if stack.Redis, err = cache.NewRedisClient(ctx, cfg.Cache.RedisClientConfig()); err != nil {
			log.Warn("redis unavailable; falling back to single-instance operation", zap.Error(err))
			stack.Redis = nil
		} else {
			log.Info("redis connected", zap.String("addr", cfg.Cache.Redis.Address))
		}
	}

	stack.Registry = realtime.NewRegistry(realtime.WithLogger(log.Named("realtime")))

	var sender notifications.Sender = stack.Registry
	sessionCfg := cfg.Auth.SessionServiceConfig()
	if stack.Redis != nil {
		redisStore := cache.NewRedisStore(stack.Redis)
		rateStore = redisStore
		sessionCfg.Cache = iauth.NewSessionCache(redisStore)

		relay := realtime.NewRelay(stack.Redis, cfg.Realtime.Channel(), stack.Registry)
		sender = relay
		stack.startRelay(relay, log)
	}

	store, err := notifications.NewGormStore(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise notification store: %w", err)
	}
	stack.Dispatcher, err = notifications.NewDispatcher(store, sender)
	if err != nil {
		return nil, fmt.Errorf("initialise notification dispatcher: %w", err)
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}
	sessionSvc, err := iauth.NewSessionService(stack.DB, jwtSvc, sessionCfg)
	if err != nil {
		return nil, fmt.Errorf("initialise session service: %w", err)
	}
	authn, err := iauth.NewAuthenticator(stack.DB, cfg.Auth.AuthenticatorConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise authenticator: %w", err)
	}

	svc, err := api.NewServices(stack.DB, stack.Dispatcher)
	if err != nil {
		return nil, fmt.Errorf("initialise services: %w", err)
	}

	stack.Cleaner = maintenance.NewCleaner(maintenance.Dependencies{
		Reminders:     svc.Tasks,
		Notifications: stack.Dispatcher,
		Sessions:      sessionSvc,
		Activity:      svc.Audit,
		Cache:         dbStore,
	},
		maintenance.WithScanSchedule(cfg.Notifications.ScanSchedule),
		maintenance.WithPurgeSchedule(cfg.Notifications.PurgeSchedule),
		maintenance.WithDueSoonWindow(cfg.Notifications.DueSoonWindow),
		maintenance.WithNotificationRetentionDays(cfg.Notifications.RetentionDays),
		maintenance.WithActivityRetentionDays(cfg.Notifications.ActivityRetentionDays),
	)
	if err := stack.Cleaner.Start(); err != nil {
		return nil, fmt.Errorf("start maintenance jobs: %w", err)
	}

	stack.Router, err = api.NewRouter(api.Dependencies{
		DB:            stack.DB,
		Config:        cfg,
		JWT:           jwtSvc,
		Sessions:      sessionSvc,
		Authenticator: authn,
		Registry:      stack.Registry,
		Dispatcher:    stack.Dispatcher,
		RateStore:     rateStore,
		Services:      svc,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

func (s *runtimeStack) startRelay(relay *realtime.Relay, log *zap.Logger) {
	relayCtx, cancel := context.WithCancel(context.Background())
	s.stopRelay = cancel
	s.relayDone = make(chan struct{})

	go func() {
		defer close(s.relayDone)
		if err := relay.Run(relayCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("realtime relay stopped", zap.Error(err))
		}
	}()
}

// Shutdown stops background jobs, closes live connections and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Cleaner != nil {
		select {
		case <-s.Cleaner.Stop().Done():
		case <-ctx.Done():
			log.Warn("maintenance jobs still running at shutdown")
		}
	}

	if s.stopRelay != nil {
		s.stopRelay()
		select {
		case <-s.relayDone:
		case <-ctx.Done():
		}
	}

	if s.Registry != nil {
		s.Registry.Close()
	}

	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			log.Warn("redis shutdown", zap.Error(err))
		}
	}

	if s.DB != nil {
		if err := database.Close(s.DB); err != nil {
			log.Warn("failed to close database", zap.Error(err))
		}
	}
}

func initialiseDatabase(cfg *app.Config, log *zap.Logger) (*gorm.DB, error) {
	dbCfg := cfg.Database.ConnectionConfig()
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrateAndSeed(db); err != nil {
		_ = database.Close(db)
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log.Info("database connected", zap.String("driver", dbCfg.Driver))
	return db, nil
}
