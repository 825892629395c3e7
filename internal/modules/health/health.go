package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lexiflow/core/internal/pkg/cron"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const checkTimeout = 2 * time.Second

// Pinger is a dependency whose reachability is reported.
type Pinger func(ctx context.Context) error

// JobLister reports the state of background jobs.
type JobLister interface {
	Snapshot() []cron.Snapshot
}

type Handler struct {
	checks map[string]Pinger
	jobs   JobLister
	log    *zap.Logger
}

// NewHandler reports on the named dependencies. A nil Pinger is skipped.
func NewHandler(checks map[string]Pinger, log *zap.Logger) *Handler {
	kept := make(map[string]Pinger, len(checks))
	for name, p := range checks {
		if p != nil {
			kept[name] = p
		}
	}
	return &Handler{checks: kept, log: log}
}

// WithJobs adds GET /health/jobs listing the scheduler's jobs.
func (h *Handler) WithJobs(jobs JobLister) *Handler {
	h.jobs = jobs
	return h
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/health", h.health)
	if h.jobs != nil {
		rg.GET("/health/jobs", h.listJobs)
	}
}

// Check pings every dependency concurrently and reports each one's state.
func (h *Handler) Check(ctx context.Context) (bool, map[string]bool) {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	results := make([]bool, len(names))

	var g errgroup.Group
	for i, name := range names {
		ping := h.checks[name]
		g.Go(func() error {
			if err := ping(ctx); err != nil {
				h.log.Warn("health check failed", zap.String("dependency", name), zap.Error(err))
				return nil
			}
			results[i] = true
			return nil
		})
	}
	_ = g.Wait()

	ok := true
	out := make(map[string]bool, len(names))
	for i, name := range names {
		out[name] = results[i]
		ok = ok && results[i]
	}
	return ok, out
}

func (h *Handler) health(c *gin.Context) {
	ok, deps := h.Check(c.Request.Context())
	status, code := "ok", http.StatusOK
	if !ok {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	body := gin.H{"status": status, "timestamp": time.Now().UTC().Format(time.RFC3339)}
	for name, up := range deps {
		body[name] = up
	}
	c.JSON(code, body)
}

func (h *Handler) listJobs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"jobs": h.jobs.Snapshot()})
}
