package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/lexiflow/core/internal/config"
	"github.com/lexiflow/core/internal/middleware"
)

func TestMatchOriginPattern(t *testing.T) {
	cases := []struct {
		pattern, host string
		want          bool
	}{
		{"app.example.com", "app.example.com", true},
		{"*.example.com", "app.example.com", true},
		{"*.example.com", "example.com", false},
		{"*.example.com", "evil-example.com", false},
		{"localhost:*", "localhost:5173", true},
		{"localhost:*", "localhostile:80", false},
		{"app.example.com", "other.example.com", false},
	}
	for _, tc := range cases {
		if got := matchOriginPattern(tc.pattern, tc.host); got != tc.want {
			t.Errorf("matchOriginPattern(%q, %q) = %v", tc.pattern, tc.host, got)
		}
	}
}

func TestCORSConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Env = "production"
	cfg.AllowedOrigins = []string{"*.lexiflow.app"}

	allow := corsConfig(&cfg).AllowOriginFunc
	if !allow("https://www.lexiflow.app") {
		t.Fatal("configured origin rejected")
	}
	if allow("https://lexiflow.evil.com") {
		t.Fatal("foreign origin allowed")
	}

	cfg.Env = "development"
	if !corsConfig(&cfg).AllowOriginFunc("http://anything.test") {
		t.Fatal("development should allow any origin")
	}

	cfg.AllowedOrigins = nil
	cfg.Env = "production"
	cc := corsConfig(&cfg)
	if cc.AllowCredentials || !cc.AllowAllOrigins {
		t.Fatalf("unconfigured production cors = %+v", cc)
	}
}

type staticVerifier map[string]string

func (v staticVerifier) VerifyToken(_ context.Context, token string) (*middleware.Identity, error) {
	if uid, ok := v[token]; ok {
		return &middleware.Identity{UserID: uid}, nil
	}
	return nil, errors.New("unknown token")
}

func TestCrossOriginCookieRequestRejected(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := config.Default()
	cfg.Env = "production"

	verifier := staticVerifier{"victim-token": "victim"}
	r := gin.New()
	r.Use(cors.New(corsConfig(&cfg)))
	r.GET("/api/vocabulary/words", middleware.Auth(verifier), func(c *gin.Context) {
		c.String(http.StatusOK, "words of "+middleware.CurrentUserID(c))
	})

	req := httptest.NewRequest(http.MethodGet, "/api/vocabulary/words", nil)
	req.Header.Set("Origin", "https://evil.example")
	req.AddCookie(&http.Cookie{Name: middleware.CookieName, Value: "victim-token"})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("cookie-only status = %d body = %s", w.Code, w.Body.String())
	}
	if w.Header().Get("Access-Control-Allow-Credentials") == "true" {
		t.Fatal("credentials allowed for an arbitrary origin")
	}

	req = httptest.NewRequest(http.MethodGet, "/api/vocabulary/words", nil)
	req.Header.Set("Origin", "https://evil.example")
	req.Header.Set("Authorization", "Bearer victim-token")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("bearer status = %d", w.Code)
	}
}
