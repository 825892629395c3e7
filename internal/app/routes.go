package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lexiflow/core/internal/database"
	"github.com/lexiflow/core/internal/middleware"
	"github.com/lexiflow/core/internal/modules/ai"
	"github.com/lexiflow/core/internal/modules/analyses"
	"github.com/lexiflow/core/internal/modules/auth"
	"github.com/lexiflow/core/internal/modules/health"
	"github.com/lexiflow/core/internal/modules/sessions"
	"github.com/lexiflow/core/internal/modules/vocabulary"
	"github.com/lexiflow/core/internal/modules/web"
	pkgcron "github.com/lexiflow/core/internal/pkg/cron"
	jwtpkg "github.com/lexiflow/core/internal/pkg/jwt"
	"github.com/lexiflow/core/internal/pkg/querycache"
	sessionpkg "github.com/lexiflow/core/internal/pkg/session"
	"go.uber.org/zap"
)

const (
	authRateLimit        = 10
	authRateWindow       = time.Minute
	sessionPruneInterval = 6 * time.Hour
)

func (a *App) registerRoutes() error {
	r := a.router
	cfg := a.cfg
	log := a.logger

	signer, err := jwtpkg.NewSigner(cfg.JWTSecret)
	if err != nil {
		return fmt.Errorf("jwt: %w", err)
	}
	cache := querycache.New(a.rc, querycache.Options{
		TTL: cfg.Cache.TTL,
		Retry: querycache.RetryPolicy{
			MaxAttempts:     cfg.Cache.Retry.MaxAttempts,
			InitialInterval: cfg.Cache.Retry.InitialInterval,
			MaxInterval:     cfg.Cache.Retry.MaxInterval,
		},
		Disabled: cfg.Cache.Disable,
		Logger:   log.Named("QueryCache"),
	})

	// Shared services
	sessionMgr := sessionpkg.NewManager(a.db, signer, cfg.SessionTTL)
	authSvc := auth.NewService(a.db, sessionMgr, cache, cfg.Usage.DefaultTier, log.Named("AuthService"))
	sessionSvc := sessions.NewService(a.db, cache, log.Named("SessionService"))
	analysisSvc := analyses.NewService(a.db, sessionSvc, cache, log.Named("AnalysisService"))
	vocabularySvc := vocabulary.NewService(a.db, cache, log.Named("VocabularyService"))
	aiSvc := ai.NewService(
		ai.NewRegistry(cfg.AI, log.Named("AIService")),
		ai.NewMeter(a.rc.Raw(), cfg.Usage, authSvc),
		analysisSvc,
		cfg.AI.Timeout,
		log.Named("AIService"),
	)
	authMW := middleware.Auth(authSvc)
	a.registerJobs(sessionMgr)

	api := r.Group("/api")
	api.Use(middleware.OptionalAuth(authSvc))
	api.Use(middleware.Idempotence(a.rc.Raw()))

	appInfo := gin.H{"name": cfg.Tracing.ServiceName, "version": "1.0.0"}
	api.GET("", func(c *gin.Context) { c.JSON(http.StatusOK, appInfo) })
	api.GET("/uptime", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"uptime_ms": time.Since(a.startedAt).Milliseconds()})
	})

	health.NewHandler(map[string]health.Pinger{
		"database": func(ctx context.Context) error { return database.Ping(ctx, a.db) },
		"redis":    a.rc.Ping,
	}, log.Named("Health")).WithJobs(a.sched).RegisterRoutes(api)

	limiter := middleware.RateLimit(a.rc.Raw(), "auth", authRateLimit, authRateWindow, log.Named("RateLimit"))
	auth.NewHandler(authSvc).RegisterRoutes(api, authMW, limiter)
	ai.NewHandler(aiSvc).RegisterRoutes(api, authMW)
	sessions.NewHandler(sessionSvc).RegisterRoutes(api, authMW)
	analyses.NewHandler(analysisSvc).RegisterRoutes(api, authMW)
	vocabulary.NewHandler(vocabularySvc).RegisterRoutes(api, authMW)

	// Pages and unmatched routes
	web.NewHandler(cfg.StaticDir, middleware.NewGuard(cfg.Guard), authSvc).RegisterRoutes(r)
	return nil
}

// registerJobs schedules background maintenance.
func (a *App) registerJobs(mgr *sessionpkg.Manager) {
	log := a.logger.Named("CronService")
	a.sched.Register(pkgcron.Job{
		Name:     "prune_sessions",
		Interval: sessionPruneInterval,
		Timeout:  time.Minute,
		Fn: func(ctx context.Context) error {
			n, err := mgr.Prune(ctx, time.Now())
			if err != nil {
				return err
			}
			if n > 0 {
				log.Info("pruned ended sessions", zap.Int64("count", n))
			}
			return nil
		},
	})
}
