package app

import (
	"net/url"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/lexiflow/core/internal/config"
	"github.com/lexiflow/core/internal/middleware"
)

// corsConfig allows every origin in development, otherwise only the
// configured allowed_origins patterns. Without configured origins a
// production server answers any origin but never with credentials.
func corsConfig(cfg *config.AppConfig) cors.Config {
	cc := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middleware.IdempotenceHeader},
		ExposeHeaders:    []string{"Content-Length", "Retry-After"},
		AllowCredentials: true,
	}
	switch {
	case cfg.IsDev():
		cc.AllowOriginFunc = func(string) bool { return true }
	case len(cfg.AllowedOrigins) > 0:
		patterns := cfg.AllowedOrigins
		cc.AllowOriginFunc = func(origin string) bool {
			host := extractOriginHost(origin)
			for _, pattern := range patterns {
				if matchOriginPattern(pattern, host) {
					return true
				}
			}
			return false
		}
	default:
		cc.AllowAllOrigins = true
		cc.AllowCredentials = false
	}
	return cc
}

// extractOriginHost returns the "host[:port]" portion of an origin URL.
func extractOriginHost(origin string) string {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return origin
	}
	return u.Host
}

// matchOriginPattern reports whether host matches the given wildcard pattern:
// exact, "*.example.com" or "localhost:*".
func matchOriginPattern(pattern, host string) bool {
	if pattern == host {
		return true
	}
	if strings.HasPrefix(pattern, "*.") {
		return strings.HasSuffix(host, pattern[1:])
	}
	if strings.HasSuffix(pattern, ":*") {
		return strings.HasPrefix(host, pattern[:len(pattern)-1])
	}
	return false
}
