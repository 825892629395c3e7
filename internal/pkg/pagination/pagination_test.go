package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/lexiflow/core/internal/pkg/apperr"
)

func ctxWithQuery(raw string) *gin.Context {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/?"+raw, nil)
	return c
}

func TestFromContextDefaults(t *testing.T) {
	q, err := FromContext(ctxWithQuery(""))
	if err != nil {
		t.Fatal(err)
	}
	if q.Limit != DefaultLimit || q.Offset != 0 {
		t.Fatalf("got %+v", q)
	}
}

func TestFromContextBounds(t *testing.T) {
	for _, raw := range []string{"limit=0", "limit=101", "limit=abc", "offset=-1", "offset=x"} {
		_, err := FromContext(ctxWithQuery(raw))
		if !apperr.IsKind(err, apperr.KindValidationFailed) {
			t.Errorf("%s: expected validation error, got %v", raw, err)
		}
	}

	q, err := FromContext(ctxWithQuery("limit=100&offset=40"))
	if err != nil {
		t.Fatal(err)
	}
	if q.Limit != 100 || q.Offset != 40 {
		t.Fatalf("got %+v", q)
	}
}
