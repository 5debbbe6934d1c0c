package middleware

import (
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"kaiden-app/internal/infra/metrics"
	"kaiden-app/internal/infra/ratelimit"
)

type RateLimitConfig struct {
	Route   string
	Rate    float64
	Burst   int
	Limiter ratelimit.Limiter
	Metrics *metrics.Metrics
	Log     *zap.Logger
}

// RateLimit applies a token bucket per user (or client IP when anonymous).
// Limiter failures let the request through.
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *gin.Context) {
		if cfg.Limiter == nil || cfg.Rate <= 0 || cfg.Burst <= 0 {
			c.Next()
			return
		}

		key := "ip:" + c.ClientIP()
		if uid := c.GetUint("user_id"); uid != 0 {
			key = "user:" + strconv.FormatUint(uint64(uid), 10)
		}
		res, err := cfg.Limiter.Allow(c.Request.Context(), cfg.Route+":"+key, cfg.Rate, cfg.Burst)
		if err != nil {
			log.Warn("rate limiter unavailable", zap.String("route", cfg.Route), zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		cfg.Metrics.RateLimit(cfg.Route, res.Allowed)
		if !res.Allowed {
			retry := int(math.Ceil(res.RetryAfter.Seconds()))
			if retry < 1 {
				retry = 1
			}
			c.Header("Retry-After", strconv.Itoa(retry))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests"})
			return
		}
		c.Next()
	}
}
