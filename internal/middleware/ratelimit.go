package middleware

import (
	"fmt"
	"math"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"github.com/clinical-decision-support-server/internal/domain"
)

const maxTrackedTenants = 10000

// TenantRateLimiter keeps one token bucket per tenant. Requests without a tenant share a
// bucket per client IP. The least recently seen buckets are evicted once the limit of
// tracked keys is reached.
type TenantRateLimiter struct {
	mu       sync.Mutex
	limiters *lru.Cache[string, *rate.Limiter]
	limit    rate.Limit
	burst    int
}

// NewTenantRateLimiter creates a limiter allowing rps requests per second per tenant
func NewTenantRateLimiter(config domain.RateLimitConfig) (*TenantRateLimiter, error) {
	if config.RequestsPerSecond <= 0 || config.Burst <= 0 {
		return nil, fmt.Errorf("rate limit requires positive requests_per_second and burst")
	}
	cache, err := lru.New[string, *rate.Limiter](maxTrackedTenants)
	if err != nil {
		return nil, fmt.Errorf("failed to create limiter cache: %w", err)
	}
	return &TenantRateLimiter{
		limiters: cache,
		limit:    rate.Limit(config.RequestsPerSecond),
		burst:    config.Burst,
	}, nil
}

// Allow consumes one token for the key
func (l *TenantRateLimiter) Allow(key string) bool {
	return l.limiter(key).Allow()
}

func (l *TenantRateLimiter) limiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if limiter, ok := l.limiters.Get(key); ok {
		return limiter
	}
	limiter := rate.NewLimiter(l.limit, l.burst)
	l.limiters.Add(key, limiter)
	return limiter
}

// Middleware rejects requests over the tenant's budget with 429
func (l *TenantRateLimiter) Middleware() gin.HandlerFunc {
	retryAfter := fmt.Sprintf("%d", int(math.Ceil(1/float64(l.limit))))

	return func(c *gin.Context) {
		key := TenantID(c)
		if key == "" {
			key = "ip:" + c.ClientIP()
		}

		if !l.Allow(key) {
			c.Header("Retry-After", retryAfter)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, domain.NewAPIError(
				domain.ErrRateLimit, "rate limit exceeded", "", c.GetString(CorrelationIDKey),
			))
			return
		}

		c.Next()
	}
}
