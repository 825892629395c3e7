package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lexiflow/core/internal/pkg/apperr"
	"github.com/lexiflow/core/internal/pkg/response"
	"github.com/redis/go-redis/v9"
)

const (
	IdempotenceHeader = "X-Idempotency-Key"
	idempotenceTTL    = 60 * time.Second
)

// Idempotence rejects a repeated POST carrying the same idempotency key for
// the same caller while the first is in flight or shortly after it succeeded.
// Requests without the header pass through.
func Idempotence(rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rdb == nil || c.Request.Method != http.MethodPost {
			c.Next()
			return
		}
		key := strings.TrimSpace(c.GetHeader(IdempotenceHeader))
		if key == "" {
			c.Next()
			return
		}

		h := sha256.Sum256([]byte(CurrentUserID(c) + "|" + c.Request.URL.Path + "|" + key))
		redisKey := "lexiflow:idempotence:" + hex.EncodeToString(h[:])
		ctx := c.Request.Context()

		ok, err := rdb.SetNX(ctx, redisKey, "0", idempotenceTTL).Result()
		if err != nil {
			c.Next()
			return
		}
		if !ok {
			msg := "Duplicate request: already processed"
			if val, gerr := rdb.Get(ctx, redisKey).Result(); gerr == nil && val == "0" {
				msg = "Duplicate request: still processing"
			} else if gerr != nil && !errors.Is(gerr, redis.Nil) {
				c.Next()
				return
			}
			response.Abort(c, apperr.Conflict(msg))
			return
		}

		c.Next()

		status := c.Writer.Status()
		if status >= 200 && status < 300 {
			rdb.Set(ctx, redisKey, "1", redis.KeepTTL)
		} else {
			rdb.Del(ctx, redisKey)
		}
	}
}
