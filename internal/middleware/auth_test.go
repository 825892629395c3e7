package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func newAuthRouter() *gin.Engine {
	resolver := fakeResolver{ids: map[string]*Identity{"good": {UserID: "u1", SessionID: "s1"}}}
	r := gin.New()
	r.GET("/private", Auth(resolver), func(c *gin.Context) {
		c.String(http.StatusOK, CurrentUserID(c)+"/"+CurrentSessionID(c))
	})
	r.GET("/optional", OptionalAuth(resolver), func(c *gin.Context) {
		c.String(http.StatusOK, CurrentUserID(c))
	})
	return r
}

func TestAuthMiddleware(t *testing.T) {
	r := newAuthRouter()

	cases := []struct {
		name   string
		header string
		status int
		errMsg string
	}{
		{"missing", "", http.StatusUnauthorized, "Authentication required"},
		{"invalid", "Bearer nope", http.StatusUnauthorized, "Invalid or expired token"},
		{"valid", "Bearer good", http.StatusOK, ""},
		{"valid lowercase scheme", "bearer   good", http.StatusOK, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/private", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tc.status {
				t.Fatalf("status = %d, want %d", w.Code, tc.status)
			}
			if tc.errMsg == "" {
				if w.Body.String() != "u1/s1" {
					t.Fatalf("body = %q", w.Body.String())
				}
				return
			}
			var body map[string]any
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatal(err)
			}
			if body["success"] != false || body["error"] != tc.errMsg {
				t.Fatalf("body = %v", body)
			}
			if _, ok := body["data"]; ok {
				t.Fatal("error envelope must not carry data")
			}
		})
	}
}

func TestAuthIgnoresCookie(t *testing.T) {
	r := newAuthRouter()
	req := httptest.NewRequest(http.MethodGet, "/private", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "good"})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("cookie-only status = %d", w.Code)
	}
}

func TestCookieAuth(t *testing.T) {
	resolver := fakeResolver{ids: map[string]*Identity{"good": {UserID: "u1"}, "other": {UserID: "u2"}}}
	r := gin.New()
	r.GET("/session", CookieAuth(resolver), func(c *gin.Context) {
		c.String(http.StatusOK, CurrentUserID(c))
	})

	cases := []struct {
		name, header, cookie, want string
	}{
		{"none", "", "", ""},
		{"cookie", "", "good", "u1"},
		{"stale cookie", "", "stale", ""},
		{"header wins", "Bearer other", "good", "u2"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/session", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		if tc.cookie != "" {
			req.AddCookie(&http.Cookie{Name: CookieName, Value: tc.cookie})
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusOK || w.Body.String() != tc.want {
			t.Errorf("%s: status=%d body=%q", tc.name, w.Code, w.Body.String())
		}
	}
}

func TestOptionalAuth(t *testing.T) {
	r := newAuthRouter()
	for header, want := range map[string]string{"": "", "Bearer nope": "", "Bearer good": "u1"} {
		req := httptest.NewRequest(http.MethodGet, "/optional", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusOK || w.Body.String() != want {
			t.Fatalf("header %q: status=%d body=%q", header, w.Code, w.Body.String())
		}
	}
}

func TestNormalizeToken(t *testing.T) {
	for in, want := range map[string]string{
		"":              "",
		"  abc ":        "abc",
		"Bearer abc":    "abc",
		"BEARER  abc  ": "abc",
	} {
		if got := NormalizeToken(in); got != want {
			t.Errorf("NormalizeToken(%q) = %q, want %q", in, got, want)
		}
	}
}
