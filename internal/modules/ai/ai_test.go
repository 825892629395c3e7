package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/lexiflow/core/internal/config"
	"github.com/lexiflow/core/internal/middleware"
	"github.com/lexiflow/core/internal/pkg/apperr"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type fakeGenerator struct {
	generate  func(ctx context.Context, p Prompt) (*Completion, error)
	chunks    []string
	streamErr error

	mu    sync.Mutex
	calls int
	last  Prompt
}

func (f *fakeGenerator) called(p Prompt) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.last = p
}

func (f *fakeGenerator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeGenerator) Generate(ctx context.Context, p Prompt) (*Completion, error) {
	f.called(p)
	if f.generate != nil {
		return f.generate(ctx, p)
	}
	return &Completion{Text: `{"word":"run"}`, Model: "fake-1", Provider: "fake", TokensUsed: 42}, nil
}

func (f *fakeGenerator) Stream(ctx context.Context, p Prompt, onDelta func(string)) (*Completion, error) {
	f.called(p)
	var full strings.Builder
	for _, c := range f.chunks {
		full.WriteString(c)
		onDelta(c)
	}
	if f.streamErr != nil {
		return nil, f.streamErr
	}
	return &Completion{Text: full.String(), Model: "fake-1", Provider: "fake", TokensUsed: 7}, nil
}

func (f *fakeGenerator) Embed(_ context.Context, text string) (*Embedding, error) {
	f.called(Prompt{User: text})
	return &Embedding{Vector: []float64{0.1, 0.2, 0.3}, Model: "fake-embed", Provider: "fake", TokensUsed: 3}, nil
}

type fixedTier string

func (t fixedTier) TierOf(context.Context, string) (string, error) { return string(t), nil }

type fakeRecorder struct {
	owned map[string]string // session id -> user id
	saved int
}

func (r *fakeRecorder) EnsureSession(_ context.Context, userID, sessionID string) error {
	if r.owned[sessionID] != userID {
		return apperr.NotFound("Session not found")
	}
	return nil
}

func (r *fakeRecorder) SaveAnalysis(context.Context, string, string, string, string, json.RawMessage, string, string, int64) (string, error) {
	r.saved++
	return "analysis-1", nil
}

const (
	testUser    = "user-1"
	testSession = "6f1c1a52-8f0e-4c55-9d0e-2a4c5b9e0f11"
)

type harness struct {
	router   *gin.Engine
	gen      *fakeGenerator
	recorder *fakeRecorder
	mr       *miniredis.Miniredis
	meter    *Meter
}

func newHarness(t *testing.T, tier string, usage config.UsageConfig) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	gen := &fakeGenerator{}
	reg := NewRegistry(config.AIConfig{}, zap.NewNop())
	reg.Register(config.AIProvider{ID: "fake", Type: "openai", DefaultModel: "fake-1"}, gen)

	meter := NewMeter(rdb, usage, fixedTier(tier))
	rec := &fakeRecorder{owned: map[string]string{testSession: testUser}}
	svc := NewService(reg, meter, rec, time.Second, zap.NewNop())

	r := gin.New()
	fakeAuth := func(c *gin.Context) {
		c.Set(middleware.ContextKeyUserID, testUser)
		c.Next()
	}
	NewHandler(svc).RegisterRoutes(r.Group("/api"), fakeAuth)
	return &harness{router: r, gen: gen, recorder: rec, mr: mr, meter: meter}
}

func defaultUsage() config.UsageConfig {
	return config.Default().Usage
}

func (h *harness) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	out := map[string]any{}
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w, out
}

func TestAnalyzeWordForwardsResult(t *testing.T) {
	h := newHarness(t, "free", defaultUsage())

	w, body := h.do(t, http.MethodPost, "/api/ai/analyze/word", gin.H{"word": "  run ", "sentence_context": "I run daily."})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"data":{"word":"run"}`) {
		t.Fatalf("result not forwarded verbatim: %s", w.Body.String())
	}
	meta, _ := body["metadata"].(map[string]any)
	if meta["model"] != "fake-1" || meta["provider"] != "fake" || meta["tokensUsed"] != float64(42) {
		t.Fatalf("metadata = %v", meta)
	}
	if meta["remainingRequests"] != float64(49) {
		t.Fatalf("remainingRequests = %v", meta["remainingRequests"])
	}
	if _, ok := meta["timestamp"]; !ok {
		t.Fatal("timestamp missing")
	}
	if !strings.Contains(h.gen.last.User, "<<<WORD\nrun\nWORD") {
		t.Fatalf("prompt did not carry trimmed word: %q", h.gen.last.User)
	}

	q, err := h.meter.Check(context.Background(), testUser)
	if err != nil {
		t.Fatal(err)
	}
	if q.UsedRequests != 1 || q.UsedTokens != 42 {
		t.Fatalf("usage = %+v", q)
	}
}

func TestAnalyzeValidationBoundaries(t *testing.T) {
	h := newHarness(t, "free", defaultUsage())

	cases := []struct {
		name       string
		path       string
		body       gin.H
		status     int
		field      string
		constraint string
	}{
		{"paragraph 49", "/api/ai/analyze/paragraph", gin.H{"paragraph": strings.Repeat("a", 49)}, 400, "paragraph", "min_length"},
		{"paragraph 50", "/api/ai/analyze/paragraph", gin.H{"paragraph": strings.Repeat("a", 50)}, 200, "", ""},
		{"paragraph 5000", "/api/ai/analyze/paragraph", gin.H{"paragraph": strings.Repeat("a", 5000)}, 200, "", ""},
		{"paragraph 5001", "/api/ai/analyze/paragraph", gin.H{"paragraph": strings.Repeat("a", 5001)}, 400, "paragraph", "max_length"},
		{"maxItems 0", "/api/ai/analyze/sentence", gin.H{"sentence": "I run.", "maxItems": 0}, 400, "maxItems", "range"},
		{"maxItems 11", "/api/ai/analyze/sentence", gin.H{"sentence": "I run.", "maxItems": 11}, 400, "maxItems", "range"},
		{"maxItems 10", "/api/ai/analyze/sentence", gin.H{"sentence": "I run.", "maxItems": 10}, 200, "", ""},
		{"word missing", "/api/ai/analyze/word", gin.H{}, 400, "word", "required"},
		{"word too long", "/api/ai/analyze/word", gin.H{"word": strings.Repeat("w", 101)}, 400, "word", "max_length"},
		{"context too long", "/api/ai/analyze/word", gin.H{"word": "run", "context": strings.Repeat("c", 1001)}, 400, "context", "max_length"},
		{"bad session id", "/api/ai/analyze/word", gin.H{"word": "run", "session_id": "nope"}, 400, "session_id", "format"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w, body := h.do(t, http.MethodPost, tc.path, tc.body)
			if w.Code != tc.status {
				t.Fatalf("status = %d, want %d: %s", w.Code, tc.status, w.Body.String())
			}
			if tc.status != 400 {
				return
			}
			if body["success"] != false {
				t.Fatalf("success = %v", body["success"])
			}
			if _, ok := body["data"]; ok {
				t.Fatal("error envelope carries data")
			}
			details, _ := body["details"].(map[string]any)
			if details["field"] != tc.field || details["constraint"] != tc.constraint {
				t.Fatalf("details = %v", details)
			}
		})
	}
}

func TestMaxItemsPassedThroughAndCapped(t *testing.T) {
	seven, big := 7, 50
	if got := (&SentenceRequest{MaxItems: &seven}).Items(); got != 7 {
		t.Fatalf("items = %d", got)
	}
	if got := (&SentenceRequest{MaxItems: &big}).Items(); got != 10 {
		t.Fatalf("items = %d", got)
	}
	if got := (&ParagraphRequest{}).Items(); got != defaultMaxItems {
		t.Fatalf("items = %d", got)
	}
}

func TestAnalyzeQuotaExceeded(t *testing.T) {
	usage := defaultUsage()
	usage.Tiers["free"] = config.TierConfig{Requests: 1, Tokens: 1000, Features: []string{"word"}}
	h := newHarness(t, "free", usage)

	if w, _ := h.do(t, http.MethodPost, "/api/ai/analyze/word", gin.H{"word": "run"}); w.Code != http.StatusOK {
		t.Fatalf("first call = %d", w.Code)
	}
	w, body := h.do(t, http.MethodPost, "/api/ai/analyze/word", gin.H{"word": "run"})
	if w.Code != http.StatusTooManyRequests || body["error"] != "AI usage limit exceeded" {
		t.Fatalf("second call = %d %v", w.Code, body)
	}
	if h.gen.callCount() != 1 {
		t.Fatalf("generator called %d times", h.gen.callCount())
	}
}

func TestAnalyzeFeatureNotInTier(t *testing.T) {
	usage := defaultUsage()
	usage.Tiers["free"] = config.TierConfig{Requests: 10, Tokens: 1000, Features: []string{"word"}}
	h := newHarness(t, "free", usage)

	w, _ := h.do(t, http.MethodPost, "/api/ai/analyze/sentence", gin.H{"sentence": "I run fast."})
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestAnalyzeSessionOwnership(t *testing.T) {
	h := newHarness(t, "free", defaultUsage())

	w, body := h.do(t, http.MethodPost, "/api/ai/analyze/word", gin.H{"word": "run", "session_id": testSession})
	if w.Code != http.StatusOK {
		t.Fatalf("owned session: %d %s", w.Code, w.Body.String())
	}
	meta, _ := body["metadata"].(map[string]any)
	if meta["analysisId"] != "analysis-1" || h.recorder.saved != 1 {
		t.Fatalf("analysis not recorded: %v", meta)
	}

	other := "0d9b3d43-3f52-4a8e-b1a3-5e0f5c3a8d21"
	w, _ = h.do(t, http.MethodPost, "/api/ai/analyze/word", gin.H{"word": "run", "session_id": other})
	if w.Code != http.StatusNotFound {
		t.Fatalf("foreign session: %d", w.Code)
	}
	if h.gen.callCount() != 1 {
		t.Fatalf("generator must not run for a foreign session, calls = %d", h.gen.callCount())
	}
}

func TestAnalyzeUpstreamFailures(t *testing.T) {
	h := newHarness(t, "free", defaultUsage())

	h.gen.generate = func(context.Context, Prompt) (*Completion, error) {
		return nil, errors.New("provider down")
	}
	w, body := h.do(t, http.MethodPost, "/api/ai/analyze/word", gin.H{"word": "run"})
	if w.Code != http.StatusBadGateway || body["error"] != "AI analysis failed" {
		t.Fatalf("provider error: %d %v", w.Code, body)
	}
	if _, ok := body["debug"]; ok {
		t.Fatal("debug must be absent outside development")
	}

	h.gen.generate = func(context.Context, Prompt) (*Completion, error) {
		return &Completion{Text: "no json here", TokensUsed: 5}, nil
	}
	w, body = h.do(t, http.MethodPost, "/api/ai/analyze/word", gin.H{"word": "run"})
	if w.Code != http.StatusBadGateway || body["error"] != "AI returned an invalid response" {
		t.Fatalf("bad payload: %d %v", w.Code, body)
	}
}

func TestCapabilityCheck(t *testing.T) {
	h := newHarness(t, "free", defaultUsage())

	w, body := h.do(t, http.MethodGet, "/api/ai/analyze/word", nil)
	if w.Code != http.StatusOK || body["available"] != true || body["remainingRequests"] != float64(50) {
		t.Fatalf("capability = %d %v", w.Code, body)
	}

	w, _ = h.do(t, http.MethodGet, "/api/ai/analyze/poem", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown kind = %d", w.Code)
	}
}

func TestGenerateRequiresFeature(t *testing.T) {
	h := newHarness(t, "free", defaultUsage())
	w, _ := h.do(t, http.MethodPost, "/api/ai/generate", gin.H{"prompt": "hello"})
	if w.Code != http.StatusForbidden {
		t.Fatalf("free tier generate = %d", w.Code)
	}
}

func TestGenerateAndStream(t *testing.T) {
	h := newHarness(t, "pro", defaultUsage())
	h.gen.generate = func(context.Context, Prompt) (*Completion, error) {
		return &Completion{Text: "hi there", Model: "fake-1", Provider: "fake", TokensUsed: 9}, nil
	}

	w, body := h.do(t, http.MethodPost, "/api/ai/generate", gin.H{"prompt": "hello"})
	data, _ := body["data"].(map[string]any)
	if w.Code != http.StatusOK || data["text"] != "hi there" {
		t.Fatalf("generate = %d %v", w.Code, body)
	}

	h.gen.chunks = []string{"hel", "lo"}
	w, _ = h.do(t, http.MethodPost, "/api/ai/generate", gin.H{"prompt": "hello", "stream": true})
	if w.Code != http.StatusOK {
		t.Fatalf("stream status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("content type = %q", ct)
	}
	out := w.Body.String()
	for _, want := range []string{"event:delta", `"text":"hel"`, `"text":"lo"`, "event:done"} {
		if !strings.Contains(out, want) {
			t.Fatalf("stream %q missing %q", out, want)
		}
	}
}

func TestEmbedding(t *testing.T) {
	h := newHarness(t, "pro", defaultUsage())
	w, body := h.do(t, http.MethodPost, "/api/ai/embedding", gin.H{"text": "run"})
	data, _ := body["data"].(map[string]any)
	if w.Code != http.StatusOK || data["dimensions"] != float64(3) {
		t.Fatalf("embedding = %d %v", w.Code, body)
	}
}

func TestStatusListsProviders(t *testing.T) {
	h := newHarness(t, "free", defaultUsage())
	_, body := h.do(t, http.MethodGet, "/api/ai/status", nil)
	data, _ := body["data"].(map[string]any)
	providers, _ := data["providers"].([]any)
	if data["available"] != true || len(providers) != 1 {
		t.Fatalf("status = %v", body)
	}
}

func TestConcurrentAnalysesRespectRequestLimit(t *testing.T) {
	usage := defaultUsage()
	usage.Tiers["free"] = config.TierConfig{Requests: 1, Tokens: 1000, Features: []string{"word"}}
	h := newHarness(t, "free", usage)
	h.gen.generate = func(context.Context, Prompt) (*Completion, error) {
		time.Sleep(50 * time.Millisecond)
		return &Completion{Text: `{"word":"run"}`, Model: "fake-1", Provider: "fake", TokensUsed: 5}, nil
	}

	const n = 10
	codes := make([]int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodPost, "/api/ai/analyze/word", strings.NewReader(`{"word":"run"}`))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			h.router.ServeHTTP(w, req)
			codes[i] = w.Code
		}(i)
	}
	wg.Wait()

	ok, limited := 0, 0
	for _, c := range codes {
		switch c {
		case http.StatusOK:
			ok++
		case http.StatusTooManyRequests:
			limited++
		}
	}
	if ok != 1 || limited != n-1 {
		t.Fatalf("ok = %d limited = %d codes = %v", ok, limited, codes)
	}
	q, err := h.meter.Check(context.Background(), testUser)
	if err != nil {
		t.Fatal(err)
	}
	if q.UsedRequests != 1 || h.gen.callCount() != 1 {
		t.Fatalf("usedRequests = %d calls = %d", q.UsedRequests, h.gen.callCount())
	}
}

func TestProviderFailureRefundsRequest(t *testing.T) {
	h := newHarness(t, "free", defaultUsage())
	h.gen.generate = func(context.Context, Prompt) (*Completion, error) {
		return nil, errors.New("provider down")
	}
	if w, _ := h.do(t, http.MethodPost, "/api/ai/analyze/word", gin.H{"word": "run"}); w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d", w.Code)
	}
	q, err := h.meter.Check(context.Background(), testUser)
	if err != nil {
		t.Fatal(err)
	}
	if q.UsedRequests != 0 || q.UsedTokens != 0 {
		t.Fatalf("usage after failure = %+v", q)
	}
}

func TestStreamFailureStillCharged(t *testing.T) {
	h := newHarness(t, "pro", defaultUsage())
	h.gen.chunks = []string{"partial ", "answer"}
	h.gen.streamErr = errors.New("connection reset")

	w, _ := h.do(t, http.MethodPost, "/api/ai/generate", gin.H{"prompt": "hello", "stream": true})
	out := w.Body.String()
	if !strings.Contains(out, "event:delta") || !strings.Contains(out, "event:error") {
		t.Fatalf("stream = %q", out)
	}

	q, err := h.meter.Check(context.Background(), testUser)
	if err != nil {
		t.Fatal(err)
	}
	want := estimateTokens("hello") + estimateTokens("partial answer")
	if q.UsedRequests != 1 || q.UsedTokens != want {
		t.Fatalf("usage = %+v, want %d tokens", q, want)
	}

	h.gen.chunks = nil
	w, body := h.do(t, http.MethodPost, "/api/ai/generate", gin.H{"prompt": "hello", "stream": true})
	if w.Code != http.StatusBadGateway || body["success"] != false {
		t.Fatalf("empty failed stream = %d %v", w.Code, body)
	}
	if q, _ = h.meter.Check(context.Background(), testUser); q.UsedRequests != 1 {
		t.Fatalf("empty failed stream charged: %+v", q)
	}
}
