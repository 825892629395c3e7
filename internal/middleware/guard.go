package middleware

import (
	"context"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/lexiflow/core/internal/config"
)

// PathClass is how the guard treats a navigation target.
type PathClass int

const (
	PathUnrestricted PathClass = iota
	PathExempt
	PathProtected
	PathAuthOnly
	PathLanding
)

// Decision is the outcome of evaluating one navigation.
type Decision struct {
	Class    PathClass
	Redirect string // empty means let the request through
}

// SessionResolver returns the identity behind a cookie token, or nil when
// the token is absent or unusable.
type SessionResolver interface {
	Session(ctx context.Context, token string) (*Identity, error)
}

// Guard gates page navigations by authentication state.
type Guard struct {
	cfg config.GuardConfig
}

func NewGuard(cfg config.GuardConfig) *Guard {
	return &Guard{cfg: cfg}
}

// Classify reports which rule set applies to path after cleaning it.
func (g *Guard) Classify(raw string) PathClass {
	path := cleanPath(raw)
	for _, p := range g.cfg.ExemptPrefixes {
		if strings.HasPrefix(path, p) {
			return PathExempt
		}
	}
	if path == g.cfg.LandingPath {
		return PathLanding
	}
	for _, p := range g.cfg.AuthOnlyPaths {
		if path == p {
			return PathAuthOnly
		}
	}
	for _, p := range g.cfg.ProtectedPrefixes {
		if matchesSegmentPrefix(path, p) {
			return PathProtected
		}
	}
	return PathUnrestricted
}

// Decide evaluates a navigation to path (with its raw query) for a caller.
func (g *Guard) Decide(path, rawQuery string, authenticated bool) Decision {
	class := g.Classify(path)
	switch class {
	case PathProtected:
		if !authenticated {
			target := cleanPath(path)
			if rawQuery != "" {
				target += "?" + rawQuery
			}
			return Decision{Class: class, Redirect: g.cfg.SignInPath + "?redirect=" + url.QueryEscape(target)}
		}
	case PathAuthOnly, PathLanding:
		if authenticated {
			return Decision{Class: class, Redirect: g.cfg.HomePath}
		}
	}
	return Decision{Class: class}
}

// PageGuard applies Decide to page requests using the session cookie.
func PageGuard(g *Guard, sessions SessionResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if g.Classify(path) == PathExempt {
			c.Next()
			return
		}

		authenticated := false
		if raw, err := c.Cookie(CookieName); err == nil {
			if id, err := sessions.Session(c.Request.Context(), NormalizeToken(raw)); err == nil && id != nil {
				setIdentity(c, id)
				authenticated = true
			}
		}

		d := g.Decide(path, c.Request.URL.RawQuery, authenticated)
		if d.Redirect != "" {
			c.Redirect(http.StatusTemporaryRedirect, d.Redirect)
			c.Abort()
			return
		}
		c.Next()
	}
}

// cleanPath collapses repeated slashes and dot segments.
func cleanPath(p string) string {
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

func matchesSegmentPrefix(path, prefix string) bool {
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		return false
	}
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}
