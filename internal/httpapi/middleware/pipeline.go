package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/first-seller/ozon-assist/internal/common"
	"github.com/first-seller/ozon-assist/internal/store/redisstore"
)

const RequestIDHeader = "X-Request-ID"

// RequestID assigns every request an id, propagating a client-supplied one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(RequestIDHeader, id)
		c.Set(RequestIDHeader, id)
		c.Next()
	}
}

// Recovery converts panics into the standard 500 envelope and logs them with
// the request id.
func Recovery(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic recovered",
					zap.Any("panic", r),
					zap.String("path", c.Request.URL.Path),
					zap.String("request_id", c.GetString(RequestIDHeader)),
				)
				common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
				c.Abort()
			}
		}()
		c.Next()
	}
}

// AccessLog records one structured line per request.
func AccessLog(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("request_id", c.GetString(RequestIDHeader)),
		)
	}
}

// RateLimit applies a fixed request budget per client IP per window. The
// counters live in redis ahead of any auth or data access; on a redis failure
// the request proceeds (fail-open) and the error is logged.
func RateLimit(store *redisstore.Store, max int, window time.Duration, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		count, err := store.IncrWindow(c.Request.Context(), c.ClientIP(), window)
		if err != nil {
			log.Warn("rate limit store unavailable", zap.Error(err))
			c.Next()
			return
		}
		if count > int64(max) {
			common.Fail(c, http.StatusTooManyRequests, 42901, "too many requests, try again later")
			c.Abort()
			return
		}
		c.Next()
	}
}
