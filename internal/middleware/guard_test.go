package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/lexiflow/core/internal/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestGuardDecide(t *testing.T) {
	g := NewGuard(config.Default().Guard)

	cases := []struct {
		name     string
		path     string
		query    string
		authed   bool
		redirect string
	}{
		{"protected anonymous", "/dashboard", "", false, "/auth/signin?redirect=%2Fdashboard"},
		{"protected nested anonymous", "/vocabulary/words/1", "", false, "/auth/signin?redirect=%2Fvocabulary%2Fwords%2F1"},
		{"protected keeps query", "/sessions", "page=2", false, "/auth/signin?redirect=%2Fsessions%3Fpage%3D2"},
		{"protected authed", "/dashboard", "", true, ""},
		{"lookalike prefix", "/dashboards", "", false, ""},
		{"signin anonymous", "/auth/signin", "", false, ""},
		{"signin authed", "/auth/signin", "", true, "/dashboard"},
		{"signup authed", "/auth/signup", "", true, "/dashboard"},
		{"landing authed", "/", "", true, "/dashboard"},
		{"landing anonymous", "/", "", false, ""},
		{"api exempt", "/api/vocabulary/words", "", false, ""},
		{"static exempt", "/static/app.js", "", false, ""},
		{"public page", "/about", "", false, ""},
		{"double slash", "//dashboard", "", false, "/auth/signin?redirect=%2Fdashboard"},
		{"dot segments", "/dashboard/../dashboard", "", false, "/auth/signin?redirect=%2Fdashboard"},
		{"escape from public", "/about/../settings", "", false, "/auth/signin?redirect=%2Fsettings"},
		{"escape from exempt", "/assets/../dashboard", "", false, "/auth/signin?redirect=%2Fdashboard"},
		{"trailing slash", "/auth/signin/", "", true, "/dashboard"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := g.Decide(tc.path, tc.query, tc.authed)
			if d.Redirect != tc.redirect {
				t.Fatalf("redirect = %q, want %q", d.Redirect, tc.redirect)
			}
		})
	}
}

type fakeResolver struct {
	ids map[string]*Identity
}

func (f fakeResolver) Session(_ context.Context, token string) (*Identity, error) {
	return f.ids[token], nil
}

func (f fakeResolver) VerifyToken(_ context.Context, token string) (*Identity, error) {
	if id, ok := f.ids[token]; ok {
		return id, nil
	}
	return nil, errors.New("unknown token")
}

func TestPageGuardRedirects(t *testing.T) {
	resolver := fakeResolver{ids: map[string]*Identity{"good": {UserID: "u1"}}}
	r := gin.New()
	r.Use(PageGuard(NewGuard(config.Default().Guard), resolver))
	r.GET("/*path", func(c *gin.Context) { c.String(http.StatusOK, "page") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	if w.Code != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "/auth/signin?redirect=%2Fdashboard" {
		t.Fatalf("location = %q", loc)
	}

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "good"})
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("authed status = %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/auth/signin", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "good"})
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusTemporaryRedirect || w.Header().Get("Location") != "/dashboard" {
		t.Fatalf("signin authed: status=%d location=%q", w.Code, w.Header().Get("Location"))
	}

	req = httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "stale"})
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusTemporaryRedirect {
		t.Fatalf("stale cookie status = %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/about/../dashboard", nil))
	if w.Code != http.StatusTemporaryRedirect || w.Header().Get("Location") != "/auth/signin?redirect=%2Fdashboard" {
		t.Fatalf("dot segments: status=%d location=%q", w.Code, w.Header().Get("Location"))
	}
}
