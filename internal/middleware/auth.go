package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/lexiflow/core/internal/pkg/apperr"
	"github.com/lexiflow/core/internal/pkg/response"
)

const (
	ContextKeyUserID = "user_id"
	ContextKeySID    = "session_id"

	// CookieName carries the session token for browser page requests.
	CookieName = "lexiflow-token"
)

// Identity is the authenticated caller.
type Identity struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id,omitempty"`
}

// TokenVerifier resolves a raw token into an identity. An error means the
// token is present but unusable (malformed, expired or revoked).
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (*Identity, error)
}

// Auth rejects requests without a valid token.
func Auth(v TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			response.Abort(c, apperr.AuthRequired())
			return
		}
		id, err := v.VerifyToken(c.Request.Context(), token)
		if err != nil || id == nil || id.UserID == "" {
			response.Abort(c, apperr.AuthInvalid(err))
			return
		}
		setIdentity(c, id)
		c.Next()
	}
}

// OptionalAuth sets the identity if a valid token is present, but does not block the request.
func OptionalAuth(v TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := extractToken(c); token != "" {
			verifyInto(c, v, token)
		}
		c.Next()
	}
}

// CookieAuth is OptionalAuth that also accepts the session cookie. Only
// the session endpoint and sign-out use it; other API routes take bearer
// tokens alone.
func CookieAuth(v TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			if raw, err := c.Cookie(CookieName); err == nil {
				token = NormalizeToken(raw)
			}
		}
		if token != "" {
			verifyInto(c, v, token)
		}
		c.Next()
	}
}

func verifyInto(c *gin.Context, v TokenVerifier, token string) {
	if id, err := v.VerifyToken(c.Request.Context(), token); err == nil && id != nil && id.UserID != "" {
		setIdentity(c, id)
	}
}

func setIdentity(c *gin.Context, id *Identity) {
	c.Set(ContextKeyUserID, id.UserID)
	if id.SessionID != "" {
		c.Set(ContextKeySID, id.SessionID)
	}
}

// CurrentUserID extracts the authenticated user ID from context.
func CurrentUserID(c *gin.Context) string {
	v, _ := c.Get(ContextKeyUserID)
	id, _ := v.(string)
	return id
}

// CurrentSessionID extracts the authenticated session ID from context.
func CurrentSessionID(c *gin.Context) string {
	v, _ := c.Get(ContextKeySID)
	id, _ := v.(string)
	return id
}

// IsAuthenticated returns true if the request has a valid auth token.
func IsAuthenticated(c *gin.Context) bool {
	return CurrentUserID(c) != ""
}

func extractToken(c *gin.Context) string {
	return NormalizeToken(c.GetHeader("Authorization"))
}

// NormalizeToken trims spaces and strips optional Bearer prefix.
func NormalizeToken(raw string) string {
	token := strings.TrimSpace(raw)
	if token == "" {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		return strings.TrimSpace(token[7:])
	}
	return token
}
