package middleware

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/clubhouse/internal/ratelimit"
	"github.com/charlesng35/clubhouse/pkg/logger"
	"github.com/charlesng35/clubhouse/pkg/metrics"
	"github.com/charlesng35/clubhouse/pkg/response"
)

// KeyFunc derives the limiter key for a request.
type KeyFunc func(c *gin.Context) string

// ClientIPKey keys limiters by the client address gin resolves through trusted proxies.
func ClientIPKey(c *gin.Context) string {
	return c.ClientIP()
}

// RateLimitCheck rejects requests whose bucket is already empty without spending a token.
// It lets exhausted clients fail before the body is parsed; the handler still calls Allow
// right before the side effect.
func RateLimitCheck(limiter *ratelimit.TokenBucket, key KeyFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}
		k := key(c)
		if !limiter.Check(k, 1) {
			reject(c, limiter, k)
			return
		}
		c.Next()
	}
}

// RateLimit spends one token per request.
func RateLimit(limiter *ratelimit.TokenBucket, key KeyFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !Allow(c, limiter, key(c)) {
			return
		}
		c.Next()
	}
}

// Allow consumes one token for key. On exhaustion it writes the 429 response, aborts the
// chain and returns false. A nil limiter always allows.
func Allow(c *gin.Context, limiter *ratelimit.TokenBucket, key string) bool {
	if limiter == nil {
		return true
	}
	if limiter.Consume(key, 1) {
		return true
	}
	reject(c, limiter, key)
	return false
}

func reject(c *gin.Context, limiter *ratelimit.TokenBucket, key string) {
	metrics.RateLimitRejections.WithLabelValues(limiter.Name()).Inc()
	logger.WithModule("ratelimit").Debug("request rejected",
		zap.String("limiter", limiter.Name()),
		zap.String("path", c.FullPath()),
		zap.String("client_ip", c.ClientIP()),
	)
	response.RateLimited(c, limiter.RetryAfter(key, 1))
}
