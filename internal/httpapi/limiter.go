package httpapi

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultRegistrationRPS   = 2
	defaultRegistrationBurst = 5
	errorCodeRateLimited     = "rate_limited"
)

// rateLimiter keeps one token bucket per client IP.
type rateLimiter struct {
	limiters sync.Map
	limit    rate.Limit
	burst    int
}

func newRateLimiter(rps float64, burst int) *rateLimiter {
	if rps <= 0 {
		rps = defaultRegistrationRPS
	}
	if burst <= 0 {
		burst = defaultRegistrationBurst
	}
	return &rateLimiter{limit: rate.Limit(rps), burst: burst}
}

func (l *rateLimiter) getLimiter(key string) *rate.Limiter {
	if v, ok := l.limiters.Load(key); ok {
		if lim, ok := v.(*rate.Limiter); ok {
			return lim
		}
	}
	lim := rate.NewLimiter(l.limit, l.burst)
	actual, loaded := l.limiters.LoadOrStore(key, lim)
	if loaded {
		if actualLim, ok := actual.(*rate.Limiter); ok {
			return actualLim
		}
	}
	return lim
}

func (l *rateLimiter) middleware(logger *zap.Logger) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		ip := ctx.ClientIP()
		if !l.getLimiter(ip).Allow() {
			logger.Warn("registration rate limit exceeded", zap.String("ip", ip))
			ctx.AbortWithStatusJSON(http.StatusTooManyRequests, errorResponse(errorCodeRateLimited, "too many registration attempts"))
			return
		}
		ctx.Next()
	}
}
