package middleware

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lexiflow/core/internal/pkg/apperr"
	"github.com/lexiflow/core/internal/pkg/response"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RateLimit enforces a fixed-window request limit per client IP for
// anonymous callers. Redis errors fail open.
func RateLimit(rdb *redis.Client, scope string, max int64, window time.Duration, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rdb == nil || IsAuthenticated(c) {
			c.Next()
			return
		}

		ip := c.ClientIP()
		if ip == "" {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		bucket := time.Now().UnixNano() / int64(window)
		key := fmt.Sprintf("lexiflow:rate_limit:%s:%s:%d", scope, ip, bucket)

		count, err := rdb.Incr(ctx, key).Result()
		if err != nil {
			log.Warn("rate limit unavailable", zap.Error(err))
			c.Next()
			return
		}
		if count == 1 {
			rdb.PExpire(ctx, key, window+time.Second)
		}

		if count > max {
			c.Header("Retry-After", strconv.Itoa(int(window.Seconds())+1))
			response.Abort(c, apperr.New(apperr.KindQuotaExceeded, "Too many requests, slow down"))
			return
		}

		c.Next()
	}
}
