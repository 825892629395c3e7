package pagination

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/lexiflow/core/internal/pkg/apperr"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Query holds parsed pagination parameters.
type Query struct {
	Limit  int
	Offset int
}

// FromContext parses limit/offset query parameters. Out-of-range values are
// rejected rather than clamped.
func FromContext(c *gin.Context) (Query, error) {
	q := Query{Limit: DefaultLimit}

	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > MaxLimit {
			return Query{}, apperr.Validation("limit", "range", "limit must be between 1 and 100")
		}
		q.Limit = v
	}
	if raw := strings.TrimSpace(c.Query("offset")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			return Query{}, apperr.Validation("offset", "range", "offset must be 0 or greater")
		}
		q.Offset = v
	}
	return q, nil
}
