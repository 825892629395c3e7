// Package web serves the browser application behind the page guard.
package web

import (
	"fmt"
	"html"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/lexiflow/core/internal/middleware"
	"github.com/lexiflow/core/internal/pkg/apperr"
	"github.com/lexiflow/core/internal/pkg/response"
)

const placeholder = `<!doctype html>
<html><head><meta charset="utf-8"><title>LexiFlow</title></head>
<body><main><h1>LexiFlow</h1><p>%s</p></main></body></html>
`

type Handler struct {
	dir      string
	guard    *middleware.Guard
	sessions middleware.SessionResolver
}

// NewHandler serves files from dir, falling back to dir/index.html for
// client-side routes. An empty dir serves a placeholder page.
func NewHandler(dir string, guard *middleware.Guard, sessions middleware.SessionResolver) *Handler {
	return &Handler{dir: strings.TrimSpace(dir), guard: guard, sessions: sessions}
}

// RegisterRoutes installs the page handler for every path no API route matched.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.NoRoute(middleware.PageGuard(h.guard, h.sessions), h.serve)
}

func (h *Handler) serve(c *gin.Context) {
	path := c.Request.URL.Path
	if strings.HasPrefix(path, "/api/") || path == "/api" {
		response.Abort(c, apperr.NotFound("Route not found"))
		return
	}
	if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
		response.Abort(c, apperr.NotFound("Route not found"))
		return
	}

	if h.dir == "" {
		h.placeholder(c, path)
		return
	}
	if file, ok := h.resolve(path); ok {
		if strings.HasPrefix(path, "/assets/") {
			c.Header("Cache-Control", "public, max-age=31536000")
		}
		c.File(file)
		return
	}
	if filepath.Ext(path) != "" {
		response.Abort(c, apperr.NotFound("File not found"))
		return
	}
	index := filepath.Join(h.dir, "index.html")
	if _, err := os.Stat(index); err != nil {
		h.placeholder(c, path)
		return
	}
	c.Header("Cache-Control", "no-cache")
	c.File(index)
}

// resolve maps a request path to a regular file inside dir.
func (h *Handler) resolve(path string) (string, bool) {
	root, err := filepath.Abs(h.dir)
	if err != nil {
		return "", false
	}
	rel := strings.TrimPrefix(filepath.Clean("/"+path), "/")
	if rel == "" {
		return "", false
	}
	target := filepath.Join(root, rel)
	if !strings.HasPrefix(target, root+string(os.PathSeparator)) {
		return "", false
	}
	info, err := os.Stat(target)
	if err != nil || info.IsDir() {
		return "", false
	}
	return target, true
}

func (h *Handler) placeholder(c *gin.Context, path string) {
	body := fmt.Sprintf(placeholder, html.EscapeString(path))
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(body))
}
