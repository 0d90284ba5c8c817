package middleware

import (
	"github.com/didip/tollbooth/v7"
	"github.com/didip/tollbooth/v7/limiter"
	"github.com/gin-gonic/gin"

	"korner-support-service/internal/apierror"
	"korner-support-service/internal/config"
)

// RateLimit throttles per client IP. Each call builds its own limiter, so
// routes that share a budget must share the returned handler.
func RateLimit(cfg config.RateLimitConfig) gin.HandlerFunc {
	if cfg.RequestsPerSecond <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	lmt := tollbooth.NewLimiter(cfg.RequestsPerSecond, &limiter.ExpirableOptions{
		DefaultExpirationTTL: cfg.TTL,
	})
	if cfg.Burst > 0 {
		lmt.SetBurst(cfg.Burst)
	}

	return func(c *gin.Context) {
		if httpError := tollbooth.LimitByRequest(lmt, c.Writer, c.Request); httpError != nil {
			abortWithError(c, apierror.New(apierror.TooManyRequests, "Too many requests, please try again later"))
			return
		}
		c.Next()
	}
}
