package vocabulary

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/lexiflow/core/internal/middleware"
	"github.com/lexiflow/core/internal/models"
	"github.com/lexiflow/core/internal/pkg/querycache"
	pkgredis "github.com/lexiflow/core/internal/pkg/redis"
	"github.com/lexiflow/core/internal/pkg/testutil"
)

type envelope struct {
	Success    bool            `json:"success"`
	Data       json.RawMessage `json:"data"`
	Error      string          `json:"error"`
	Pagination *struct {
		Total   int64 `json:"total"`
		HasMore bool  `json:"has_more"`
	} `json:"pagination"`
	Details *struct {
		Field      string `json:"field"`
		Constraint string `json:"constraint"`
	} `json:"details"`
}

type client struct {
	t *testing.T
	r http.Handler
}

func asUser(c *gin.Context) {
	c.Set(middleware.ContextKeyUserID, c.GetHeader("X-Test-User"))
	c.Next()
}

func newClient(t *testing.T) *client {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := testutil.DB(t)

	mr := miniredis.RunT(t)
	rc, err := pkgredis.Connect(context.Background(), "redis://"+mr.Addr())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = rc.Close() })
	cache := querycache.New(rc, querycache.Options{TTL: time.Minute})

	r := gin.New()
	NewHandler(NewService(db, cache, testutil.Logger(t))).RegisterRoutes(r.Group("/api"), asUser)
	return &client{t: t, r: r}
}

func (c *client) do(user, method, path string, body any) (int, envelope) {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			c.t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-User", user)
	w := httptest.NewRecorder()
	c.r.ServeHTTP(w, req)
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		c.t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return w.Code, env
}

func (c *client) word(user string, body gin.H) models.VocabularyWord {
	c.t.Helper()
	code, env := c.do(user, http.MethodPost, "/api/vocabulary/words", body)
	if code != http.StatusCreated {
		c.t.Fatalf("create word: %d %s", code, env.Error)
	}
	var w models.VocabularyWord
	_ = json.Unmarshal(env.Data, &w)
	return w
}

func (c *client) collection(user string, body gin.H) models.VocabularyCollection {
	c.t.Helper()
	code, env := c.do(user, http.MethodPost, "/api/vocabulary/collections", body)
	if code != http.StatusCreated {
		c.t.Fatalf("create collection: %d %s", code, env.Error)
	}
	var col models.VocabularyCollection
	_ = json.Unmarshal(env.Data, &col)
	return col
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	return out
}

func TestCreateWordNormalizesAndRejectsDuplicates(t *testing.T) {
	c := newClient(t)

	w := c.word("alice", gin.H{
		"word":          "  Run ",
		"definition_en": "move fast on foot",
		"synonyms":      []string{"sprint", "  ", "dash"},
		"contexts":      []string{"I run every morning."},
	})
	if w.Word != "run" || w.DifficultyLevel != 1 || w.MasteryLevel != 0 {
		t.Fatalf("stored = %+v", w)
	}
	if len(w.Synonyms) != 2 || w.Synonyms[1] != "dash" || len(w.Contexts) != 1 {
		t.Fatalf("sub-lists = %+v", w)
	}

	code, env := c.do("alice", http.MethodPost, "/api/vocabulary/words", gin.H{"word": "run", "definition_en": "again"})
	if code != http.StatusConflict || env.Error != "Word already exists in your vocabulary" {
		t.Fatalf("duplicate: %d %q", code, env.Error)
	}
	if env.Success {
		t.Fatal("conflict reported success")
	}

	// Another user may keep the same word.
	c.word("bob", gin.H{"word": "RUN", "definition_en": "bob's run"})
}

func TestWordValidation(t *testing.T) {
	c := newClient(t)

	many := make([]string, 21)
	for i := range many {
		many[i] = "s"
	}
	cases := []struct {
		body       gin.H
		field      string
		constraint string
	}{
		{gin.H{"definition_en": "x"}, "word", "required"},
		{gin.H{"word": strings.Repeat("w", 101), "definition_en": "x"}, "word", "max_length"},
		{gin.H{"word": "run"}, "definition_en", "required"},
		{gin.H{"word": "run", "definition_en": "x", "difficulty_level": 0}, "difficulty_level", "range"},
		{gin.H{"word": "run", "definition_en": "x", "difficulty_level": 6}, "difficulty_level", "range"},
		{gin.H{"word": "run", "definition_en": "x", "mastery_level": 6}, "mastery_level", "range"},
		{gin.H{"word": "run", "definition_en": "x", "synonyms": many}, "synonyms", "max_items"},
		{gin.H{"word": "run", "definition_en": "x", "antonyms": []string{strings.Repeat("a", 501)}}, "antonyms[0]", "max_length"},
		{gin.H{"word": "run", "definition_en": "x", "collection_id": "nope"}, "collection_id", "format"},
	}
	for _, tc := range cases {
		code, env := c.do("alice", http.MethodPost, "/api/vocabulary/words", tc.body)
		if code != http.StatusBadRequest || env.Details == nil {
			t.Fatalf("%v: %d %+v", tc.body, code, env)
		}
		if env.Details.Field != tc.field || env.Details.Constraint != tc.constraint {
			t.Errorf("%v: details = %+v", tc.body, *env.Details)
		}
	}
}

func TestBatchSkipsDuplicates(t *testing.T) {
	c := newClient(t)
	c.word("alice", gin.H{"word": "run", "definition_en": "move fast"})

	code, env := c.do("alice", http.MethodPost, "/api/vocabulary/words/batch", gin.H{"words": []gin.H{
		{"word": "Run", "definition_en": "dup of existing"},
		{"word": "walk", "definition_en": "move slowly", "synonyms": []string{"stroll"}},
		{"word": " WALK", "definition_en": "dup inside batch"},
		{"word": "jump", "definition_en": "leave the ground"},
	}})
	if code != http.StatusCreated {
		t.Fatalf("batch: %d %s", code, env.Error)
	}
	res := decode[BatchResult](t, env.Data)
	if res.CreatedCount != 2 || res.SkippedCount != 2 {
		t.Fatalf("result = %+v", res)
	}
	if res.Skipped[0] != "run" || res.Skipped[1] != "walk" {
		t.Fatalf("skipped = %v", res.Skipped)
	}
	if res.Created[0].Word != "walk" || len(res.Created[0].Synonyms) != 1 {
		t.Fatalf("created = %+v", res.Created[0])
	}

	_, env = c.do("alice", http.MethodGet, "/api/vocabulary/words", nil)
	if env.Pagination.Total != 3 {
		t.Fatalf("total words = %d", env.Pagination.Total)
	}

	for _, body := range []gin.H{{"words": []gin.H{}}, {}} {
		code, env := c.do("alice", http.MethodPost, "/api/vocabulary/words/batch", body)
		if code != http.StatusBadRequest || env.Details.Field != "words" {
			t.Fatalf("empty batch %v: %d %+v", body, code, env.Details)
		}
	}
	tooMany := make([]gin.H, 101)
	for i := range tooMany {
		tooMany[i] = gin.H{"word": "w", "definition_en": "d"}
	}
	code, env = c.do("alice", http.MethodPost, "/api/vocabulary/words/batch", gin.H{"words": tooMany})
	if code != http.StatusBadRequest || env.Details.Constraint != "max_items" {
		t.Fatalf("101 words: %d %+v", code, env.Details)
	}
}

func TestListFiltersAndSearch(t *testing.T) {
	c := newClient(t)
	for i, w := range []string{"apple", "apricot", "banana", "blueberry"} {
		c.word("alice", gin.H{"word": w, "definition_en": "fruit", "difficulty_level": i%2 + 1, "mastery_level": i})
	}

	cases := []struct {
		query string
		want  []string
	}{
		{"search=AP&order_by=word&order=asc", []string{"apple", "apricot"}},
		{"difficulty=2&order_by=word&order=asc", []string{"apricot", "blueberry"}},
		{"min_mastery=1&max_mastery=2&order_by=word&order=asc", []string{"apricot", "banana"}},
		{"order_by=mastery_level&limit=1", []string{"blueberry"}},
		{"search=a%25&order_by=word&order=asc", []string{"apple", "apricot"}},
	}
	for _, tc := range cases {
		code, env := c.do("alice", http.MethodGet, "/api/vocabulary/words?"+tc.query, nil)
		if code != http.StatusOK {
			t.Fatalf("%s: %d %s", tc.query, code, env.Error)
		}
		rows := decode[[]models.VocabularyWord](t, env.Data)
		got := make([]string, len(rows))
		for i, r := range rows {
			got[i] = r.Word
		}
		if strings.Join(got, ",") != strings.Join(tc.want, ",") {
			t.Errorf("%s: got %v, want %v", tc.query, got, tc.want)
		}
	}

	for _, q := range []string{"difficulty=6", "min_mastery=-1", "order_by=definition_en", "order=sideways", "limit=0"} {
		if code, _ := c.do("alice", http.MethodGet, "/api/vocabulary/words?"+q, nil); code != http.StatusBadRequest {
			t.Errorf("%s: %d", q, code)
		}
	}
}

func TestUpdateReviewAndOwnership(t *testing.T) {
	c := newClient(t)
	w := c.word("alice", gin.H{"word": "run", "definition_en": "move fast", "synonyms": []string{"sprint"}, "antonyms": []string{"walk"}})
	path := "/api/vocabulary/words/" + w.ID

	// Warm the cached detail so the update has to invalidate it.
	c.do("alice", http.MethodGet, path, nil)

	code, env := c.do("alice", http.MethodPatch, path, gin.H{"definition_en": "go quickly", "synonyms": []string{"dash", "race"}})
	if code != http.StatusOK {
		t.Fatalf("update: %d %s", code, env.Error)
	}
	_, env = c.do("alice", http.MethodGet, path, nil)
	got := decode[models.VocabularyWord](t, env.Data)
	if got.DefinitionEN != "go quickly" || strings.Join(got.Synonyms, ",") != "dash,race" || len(got.Antonyms) != 1 {
		t.Fatalf("after update = %+v", got)
	}

	for i, want := range []int{1, 2, 1} {
		correct := i < 2
		code, env := c.do("alice", http.MethodPost, path+"/review", gin.H{"correct": correct})
		if code != http.StatusOK {
			t.Fatalf("review: %d %s", code, env.Error)
		}
		got := decode[models.VocabularyWord](t, env.Data)
		if got.MasteryLevel != want || got.ReviewCount != i+1 || got.LastReviewedAt == nil {
			t.Fatalf("review %d: mastery=%d count=%d", i, got.MasteryLevel, got.ReviewCount)
		}
	}
	if code, env := c.do("alice", http.MethodPost, path+"/review", gin.H{}); code != http.StatusBadRequest || env.Details.Field != "correct" {
		t.Fatalf("review without answer: %d", code)
	}

	for _, m := range []string{http.MethodGet, http.MethodPatch, http.MethodDelete} {
		code, env := c.do("mallory", m, path, gin.H{"definition_en": "stolen"})
		if code != http.StatusNotFound || env.Error != "Word not found" {
			t.Fatalf("%s by non-owner: %d %q", m, code, env.Error)
		}
	}
	if code, _ := c.do("mallory", http.MethodPost, path+"/review", gin.H{"correct": true}); code != http.StatusNotFound {
		t.Fatalf("review by non-owner: %d", code)
	}

	if code, _ := c.do("alice", http.MethodDelete, path, nil); code != http.StatusOK {
		t.Fatalf("delete: %d", code)
	}
	if code, _ := c.do("alice", http.MethodGet, path, nil); code != http.StatusNotFound {
		t.Fatalf("get after delete: %d", code)
	}
}

func TestReviewClampsMastery(t *testing.T) {
	c := newClient(t)
	low := c.word("alice", gin.H{"word": "low", "definition_en": "d"})
	high := c.word("alice", gin.H{"word": "high", "definition_en": "d", "mastery_level": 5})

	_, env := c.do("alice", http.MethodPost, "/api/vocabulary/words/"+low.ID+"/review", gin.H{"correct": false})
	if got := decode[models.VocabularyWord](t, env.Data); got.MasteryLevel != 0 {
		t.Fatalf("mastery below zero: %d", got.MasteryLevel)
	}
	_, env = c.do("alice", http.MethodPost, "/api/vocabulary/words/"+high.ID+"/review", gin.H{"correct": true})
	if got := decode[models.VocabularyWord](t, env.Data); got.MasteryLevel != 5 {
		t.Fatalf("mastery above five: %d", got.MasteryLevel)
	}
}

func TestCollections(t *testing.T) {
	c := newClient(t)
	private := c.collection("alice", gin.H{"name": " Verbs "})
	public := c.collection("alice", gin.H{"name": "Travel", "collection_type": "topic", "is_public": true})
	if private.Name != "Verbs" || private.CollectionType != models.CollectionTypeCustom {
		t.Fatalf("private = %+v", private)
	}

	code, env := c.do("alice", http.MethodPost, "/api/vocabulary/collections", gin.H{"name": "x", "collection_type": "playlist"})
	if code != http.StatusBadRequest || env.Details.Constraint != "oneof" {
		t.Fatalf("bad type: %d %+v", code, env.Details)
	}

	w := c.word("alice", gin.H{"word": "go", "definition_en": "move", "collection_id": public.ID})
	if code, _ := c.do("bob", http.MethodPost, "/api/vocabulary/words", gin.H{"word": "go", "definition_en": "x", "collection_id": public.ID}); code != http.StatusForbidden {
		t.Fatalf("word into foreign collection: %d", code)
	}

	// Visibility: public collections and their words are readable by others.
	if code, _ := c.do("bob", http.MethodGet, "/api/vocabulary/collections/"+private.ID, nil); code != http.StatusNotFound {
		t.Fatalf("private visible to bob: %d", code)
	}
	code, env = c.do("bob", http.MethodGet, "/api/vocabulary/collections/"+public.ID+"/words", nil)
	if code != http.StatusOK || env.Pagination.Total != 1 {
		t.Fatalf("public words: %d %+v", code, env.Pagination)
	}
	_, env = c.do("bob", http.MethodGet, "/api/vocabulary/collections?include_public=true", nil)
	if env.Pagination.Total != 1 {
		t.Fatalf("bob's listing with public = %d", env.Pagination.Total)
	}
	_, env = c.do("alice", http.MethodGet, "/api/vocabulary/collections", nil)
	if env.Pagination.Total != 2 {
		t.Fatalf("alice's listing = %d", env.Pagination.Total)
	}

	// Writes: missing is 404, someone else's is 403.
	if code, _ := c.do("bob", http.MethodPatch, "/api/vocabulary/collections/"+public.ID, gin.H{"name": "mine"}); code != http.StatusForbidden {
		t.Fatalf("foreign update: %d", code)
	}
	if code, _ := c.do("bob", http.MethodDelete, "/api/vocabulary/collections/"+public.ID, nil); code != http.StatusForbidden {
		t.Fatalf("foreign delete: %d", code)
	}
	missing := "00000000-0000-4000-8000-000000000000"
	if code, _ := c.do("alice", http.MethodPatch, "/api/vocabulary/collections/"+missing, gin.H{"name": "x"}); code != http.StatusNotFound {
		t.Fatalf("missing update: %d", code)
	}

	code, env = c.do("alice", http.MethodPatch, "/api/vocabulary/collections/"+public.ID, gin.H{"is_public": false})
	if code != http.StatusOK || decode[models.VocabularyCollection](t, env.Data).IsPublic {
		t.Fatalf("unpublish: %d", code)
	}

	if code, _ := c.do("alice", http.MethodDelete, "/api/vocabulary/collections/"+public.ID, nil); code != http.StatusOK {
		t.Fatalf("delete: %d", code)
	}
	_, env = c.do("alice", http.MethodGet, "/api/vocabulary/words/"+w.ID, nil)
	if got := decode[models.VocabularyWord](t, env.Data); got.CollectionID != nil {
		t.Fatalf("word still attached to %v", *got.CollectionID)
	}
}

func TestStats(t *testing.T) {
	c := newClient(t)
	c.collection("alice", gin.H{"name": "Verbs"})
	a := c.word("alice", gin.H{"word": "a", "definition_en": "d", "mastery_level": 5, "difficulty_level": 3})
	c.word("alice", gin.H{"word": "b", "definition_en": "d", "mastery_level": 1})

	_, env := c.do("alice", http.MethodGet, "/api/vocabulary/stats", nil)
	st := decode[Stats](t, env.Data)
	if st.TotalWords != 2 || st.MasteredWords != 1 || st.Collections != 1 || st.ByDifficulty[3] != 1 || st.ByMastery[1] != 1 {
		t.Fatalf("stats = %+v", st)
	}
	if st.AverageMastery != 3 || st.WordsAddedLast7d != 2 || st.ReviewedWords != 0 {
		t.Fatalf("stats = %+v", st)
	}

	// Reviews invalidate the cached summary.
	c.do("alice", http.MethodPost, "/api/vocabulary/words/"+a.ID+"/review", gin.H{"correct": false})
	_, env = c.do("alice", http.MethodGet, "/api/vocabulary/stats", nil)
	st = decode[Stats](t, env.Data)
	if st.ReviewedWords != 1 || st.TotalReviews != 1 || st.MasteredWords != 0 {
		t.Fatalf("stats after review = %+v", st)
	}
}
