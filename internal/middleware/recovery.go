package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/lexiflow/core/internal/pkg/apperr"
	"github.com/lexiflow/core/internal/pkg/response"
	"go.uber.org/zap"
)

// Recovery turns a panic into the Internal error envelope.
func Recovery(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic recovered",
					zap.Any("panic", r),
					zap.String("path", c.Request.URL.Path),
					zap.ByteString("stack", debug.Stack()),
				)
				response.Abort(c, apperr.Internal(fmt.Errorf("panic: %v", r)))
			}
		}()
		c.Next()
	}
}

// Debug exposes raw error causes in envelopes when enabled.
func Debug(enabled bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if enabled {
			response.EnableDebug(c)
		}
		c.Next()
	}
}
