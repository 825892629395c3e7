package auth

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lexiflow/core/internal/middleware"
	"github.com/lexiflow/core/internal/pkg/apperr"
	"github.com/lexiflow/core/internal/pkg/response"
	"github.com/lexiflow/core/internal/pkg/validate"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts /auth. limiter guards the credential endpoints.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW, limiter gin.HandlerFunc) {
	a := rg.Group("/auth")

	a.POST("/signup", limiter, response.Handle(h.signUp))
	a.POST("/signin", limiter, response.Handle(h.signIn))
	a.POST("/signout", middleware.CookieAuth(h.svc), response.Handle(h.signOut))
	a.GET("/session", middleware.CookieAuth(h.svc), response.Handle(h.session))
	a.GET("/user", authMW, response.Handle(h.user))

	s := a.Group("/sessions", authMW)
	s.GET("", response.Handle(h.listSessions))
	s.DELETE("/:id", response.Handle(h.revokeSession))
	s.DELETE("", response.Handle(h.revokeOtherSessions))
}

func (h *Handler) signUp(c *gin.Context) response.Outcome {
	var req SignUpRequest
	if err := validate.Bind(c, &req); err != nil {
		return response.Fail(err)
	}
	u, token, err := h.svc.SignUp(c.Request.Context(), &req, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		if errors.Is(err, errEmailTaken) {
			return response.Fail(apperr.Conflict("Email already registered"))
		}
		return response.Fail(err)
	}
	h.setCookie(c, token)
	return response.Created(authResponse{Token: token, ExpiresAt: time.Now().Add(h.svc.SessionTTL()), User: toView(u)})
}

func (h *Handler) signIn(c *gin.Context) response.Outcome {
	var req SignInRequest
	if err := validate.Bind(c, &req); err != nil {
		return response.Fail(err)
	}
	u, token, err := h.svc.SignIn(c.Request.Context(), &req, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		if errors.Is(err, errBadCredentials) {
			return response.Fail(apperr.New(apperr.KindAuthInvalid, "Invalid email or password"))
		}
		return response.Fail(err)
	}
	h.setCookie(c, token)
	return response.OK(authResponse{Token: token, ExpiresAt: time.Now().Add(h.svc.SessionTTL()), User: toView(u)})
}

func (h *Handler) signOut(c *gin.Context) response.Outcome {
	if uid := middleware.CurrentUserID(c); uid != "" {
		if err := h.svc.SignOut(c.Request.Context(), uid, middleware.CurrentSessionID(c)); err != nil {
			return response.Fail(err)
		}
	}
	clearCookie(c)
	return response.OK(gin.H{"signed_out": true})
}

// session never fails on a missing or stale token; it reports user: null.
func (h *Handler) session(c *gin.Context) response.Outcome {
	uid := middleware.CurrentUserID(c)
	if uid == "" {
		return response.OK(gin.H{"user": nil})
	}
	u, err := h.svc.User(c.Request.Context(), uid)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return response.OK(gin.H{"user": nil})
		}
		return response.Fail(err)
	}
	return response.OK(gin.H{"user": toView(u), "session_id": middleware.CurrentSessionID(c)})
}

func (h *Handler) user(c *gin.Context) response.Outcome {
	u, err := h.svc.User(c.Request.Context(), middleware.CurrentUserID(c))
	if err != nil {
		return response.Fail(err)
	}
	return response.OK(toView(u))
}

func (h *Handler) listSessions(c *gin.Context) response.Outcome {
	rows, err := h.svc.ListSessions(c.Request.Context(), middleware.CurrentUserID(c))
	if err != nil {
		return response.Fail(err)
	}
	current := middleware.CurrentSessionID(c)
	out := make([]sessionView, 0, len(rows))
	for _, r := range rows {
		out = append(out, sessionView{
			ID:        r.ID,
			IP:        r.IP,
			UA:        r.UA,
			CreatedAt: r.CreatedAt,
			UpdatedAt: r.UpdatedAt,
			ExpiresAt: r.ExpiresAt,
			Current:   r.ID == current,
		})
	}
	return response.OK(out)
}

func (h *Handler) revokeSession(c *gin.Context) response.Outcome {
	if err := h.svc.RevokeSession(c.Request.Context(), middleware.CurrentUserID(c), c.Param("id")); err != nil {
		return response.Fail(err)
	}
	return response.OK(gin.H{"revoked": c.Param("id")})
}

func (h *Handler) revokeOtherSessions(c *gin.Context) response.Outcome {
	if err := h.svc.RevokeOtherSessions(c.Request.Context(), middleware.CurrentUserID(c), middleware.CurrentSessionID(c)); err != nil {
		return response.Fail(err)
	}
	return response.OK(gin.H{"revoked_others": true})
}

func (h *Handler) setCookie(c *gin.Context, token string) {
	secure := c.Request.TLS != nil
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.CookieName, token, int(h.svc.SessionTTL().Seconds()), "/", "", secure, true)
}

func clearCookie(c *gin.Context) {
	secure := c.Request.TLS != nil
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.CookieName, "", -1, "/", "", secure, true)
}
