package analyses

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/lexiflow/core/internal/middleware"
	"github.com/lexiflow/core/internal/models"
	"github.com/lexiflow/core/internal/modules/sessions"
	"github.com/lexiflow/core/internal/pkg/apperr"
	"github.com/lexiflow/core/internal/pkg/testutil"
	"gorm.io/gorm"
)

type envelope struct {
	Success    bool            `json:"success"`
	Data       json.RawMessage `json:"data"`
	Error      string          `json:"error"`
	Pagination *struct {
		Total int64 `json:"total"`
	} `json:"pagination"`
	Details *struct {
		Field      string `json:"field"`
		Constraint string `json:"constraint"`
	} `json:"details"`
}

func asUser(c *gin.Context) {
	c.Set(middleware.ContextKeyUserID, c.GetHeader("X-Test-User"))
	c.Next()
}

func newTestService(t *testing.T) (*Service, *gorm.DB, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := testutil.DB(t)
	log := testutil.Logger(t)
	svc := NewService(db, sessions.NewService(db, nil, log), nil, log)

	r := gin.New()
	NewHandler(svc).RegisterRoutes(r.Group("/api"), asUser)
	return svc, db, r
}

func do(t *testing.T, r http.Handler, user, method, path string, body any) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-User", user)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return w.Code, env
}

func seedSession(t *testing.T, db *gorm.DB, user string) string {
	t.Helper()
	s := models.LearningSession{UserID: user, Title: "study", Status: models.SessionStatusActive, Settings: []byte(`{}`)}
	if err := db.Create(&s).Error; err != nil {
		t.Fatal(err)
	}
	return s.ID
}

func TestRecorderOwnership(t *testing.T) {
	svc, db, _ := newTestService(t)
	ctx := context.Background()
	sid := seedSession(t, db, "alice")

	if err := svc.EnsureSession(ctx, "alice", sid); err != nil {
		t.Fatalf("owner rejected: %v", err)
	}
	if err := svc.EnsureSession(ctx, "bob", sid); !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("non-owner: %v", err)
	}

	id, err := svc.SaveAnalysis(ctx, "alice", sid, "word", "run", json.RawMessage(`{"word":"run"}`), "m", "p", 12)
	if err != nil || id == "" {
		t.Fatalf("save: %q %v", id, err)
	}
	got, err := svc.Get(ctx, "alice", id)
	if err != nil {
		t.Fatal(err)
	}
	if got.SessionID == nil || *got.SessionID != sid || string(got.Result) != `{"word":"run"}` || got.TokensUsed != 12 {
		t.Fatalf("stored = %+v", got)
	}
}

func TestSaveListFilter(t *testing.T) {
	_, db, r := newTestService(t)
	sid := seedSession(t, db, "alice")

	inputs := []gin.H{
		{"kind": "word", "input": "run", "result": gin.H{"w": 1}, "session_id": sid},
		{"kind": "sentence", "input": "I run fast.", "result": gin.H{"s": 1}},
		{"kind": "word", "input": "walk", "result": gin.H{"w": 2}},
	}
	for _, in := range inputs {
		if code, env := do(t, r, "alice", http.MethodPost, "/api/analyses", in); code != http.StatusCreated {
			t.Fatalf("save %v: %d %s", in, code, env.Error)
		}
	}

	_, env := do(t, r, "alice", http.MethodGet, "/api/analyses?kind=word", nil)
	if env.Pagination == nil || env.Pagination.Total != 2 {
		t.Fatalf("kind filter: %+v", env.Pagination)
	}
	_, env = do(t, r, "alice", http.MethodGet, "/api/analyses?session_id="+sid, nil)
	var rows []models.Analysis
	_ = json.Unmarshal(env.Data, &rows)
	if len(rows) != 1 || rows[0].Input != "run" {
		t.Fatalf("session filter: %+v", rows)
	}
	_, env = do(t, r, "bob", http.MethodGet, "/api/analyses", nil)
	if env.Pagination.Total != 0 {
		t.Fatalf("bob sees %d analyses", env.Pagination.Total)
	}

	if code, _ := do(t, r, "alice", http.MethodGet, "/api/analyses?kind=poem", nil); code != http.StatusBadRequest {
		t.Fatalf("bad kind: %d", code)
	}
	if code, _ := do(t, r, "alice", http.MethodGet, "/api/analyses?session_id=nope", nil); code != http.StatusBadRequest {
		t.Fatalf("bad session id: %d", code)
	}
}

func TestSaveValidation(t *testing.T) {
	_, db, r := newTestService(t)
	sid := seedSession(t, db, "alice")

	cases := []struct {
		body       gin.H
		status     int
		field      string
		constraint string
	}{
		{gin.H{"kind": "poem", "input": "x", "result": gin.H{}}, 400, "kind", "oneof"},
		{gin.H{"kind": "word", "input": "x"}, 400, "result", "required"},
		{gin.H{"kind": "word", "input": "x", "result": []int{1}}, 400, "result", "format"},
		{gin.H{"kind": "word", "input": strings.Repeat("a", 5001), "result": gin.H{}}, 400, "input", "max_length"},
		{gin.H{"kind": "word", "input": "x", "result": gin.H{}, "session_id": sid}, 404, "", ""},
	}
	for _, tc := range cases {
		code, env := do(t, r, "bob", http.MethodPost, "/api/analyses", tc.body)
		if code != tc.status {
			t.Fatalf("%v: %d %s", tc.body, code, env.Error)
		}
		if tc.field == "" {
			continue
		}
		if env.Details == nil || env.Details.Field != tc.field || env.Details.Constraint != tc.constraint {
			t.Fatalf("%v: details = %+v", tc.body, env.Details)
		}
	}
}

func TestDeleteIsOwnerOnly(t *testing.T) {
	svc, _, r := newTestService(t)
	id, err := svc.SaveAnalysis(context.Background(), "alice", "", "word", "run", json.RawMessage(`{}`), "", "", 0)
	if err != nil {
		t.Fatal(err)
	}

	if code, _ := do(t, r, "bob", http.MethodDelete, "/api/analyses/"+id, nil); code != http.StatusNotFound {
		t.Fatalf("non-owner delete: %d", code)
	}
	if code, _ := do(t, r, "alice", http.MethodDelete, "/api/analyses/"+id, nil); code != http.StatusOK {
		t.Fatalf("owner delete: %d", code)
	}
	if code, _ := do(t, r, "alice", http.MethodGet, "/api/analyses/"+id, nil); code != http.StatusNotFound {
		t.Fatalf("get after delete: %d", code)
	}
}
