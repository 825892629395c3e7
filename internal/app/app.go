package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/lexiflow/core/internal/config"
	"github.com/lexiflow/core/internal/database"
	"github.com/lexiflow/core/internal/middleware"
	pkgcron "github.com/lexiflow/core/internal/pkg/cron"
	pkgredis "github.com/lexiflow/core/internal/pkg/redis"
	"github.com/lexiflow/core/internal/pkg/tracing"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// App holds all application dependencies.
type App struct {
	cfg         *config.AppConfig
	router      *gin.Engine
	db          *gorm.DB
	rc          *pkgredis.Client
	logger      *zap.Logger
	startedAt   time.Time
	sched       *pkgcron.Scheduler
	cancel      context.CancelFunc
	stopTracing func(context.Context) error
}

// New initializes the application: tracing → DB → Redis → routes.
func New(ctx context.Context, logger *zap.Logger, cfg *config.AppConfig) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	stopTracing := tracing.Init(ctx, cfg.Tracing, cfg.Env, logger)

	db, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	rc, err := pkgredis.Connect(ctx, cfg.Redis.URLValue())
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}

	if cfg.IsDev() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	if cfg.Tracing.Enabled {
		router.Use(otelgin.Middleware(cfg.Tracing.ServiceName))
	}
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.Debug(cfg.IsDev()))
	router.Use(middleware.Logger(logger))
	router.Use(cors.New(corsConfig(cfg)))

	app := &App{
		cfg:         cfg,
		router:      router,
		db:          db,
		rc:          rc,
		logger:      logger,
		startedAt:   time.Now(),
		sched:       pkgcron.New(logger.Named("CronService")),
		stopTracing: stopTracing,
	}
	if err := app.registerRoutes(); err != nil {
		_ = rc.Close()
		return nil, err
	}

	jobsCtx, cancel := context.WithCancel(context.Background())
	app.cancel = cancel
	app.sched.Start(jobsCtx)
	// Sessions that ended while the server was down are cleared at boot.
	go func() { _ = app.sched.RunNow(jobsCtx, "prune_sessions") }()
	return app, nil
}

// Addr returns the listen address.
func (a *App) Addr() string { return fmt.Sprintf(":%d", a.cfg.Port) }

// Router returns the HTTP handler.
func (a *App) Router() http.Handler { return a.router }

// Shutdown releases connections and flushes pending spans.
func (a *App) Shutdown(ctx context.Context) {
	a.cancel()
	if err := a.stopTracing(ctx); err != nil {
		a.logger.Warn("tracing shutdown", zap.Error(err))
	}
	if err := a.rc.Close(); err != nil {
		a.logger.Warn("redis close", zap.Error(err))
	}
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
