package middleware

import (
	"sync"

	"github.com/constructhq/construct/internal/construct"
	"github.com/constructhq/construct/internal/errs"
	"github.com/constructhq/construct/internal/server"
	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

// RateLimitMiddleware enforces declared per-construct rate limit policies.
//
// Limiters are keyed by route and shared across requests: the policy is a
// property of the construct, not of the caller. Rejections surface as 429
// and are recorded as New Relic custom events when the agent is enabled.
type RateLimitMiddleware struct {
	server *server.Server

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewRateLimitMiddleware(s *server.Server) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		server:   s,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Enforce returns middleware applying the given policy to one route. A nil
// policy yields a pass-through so call sites don't need to branch.
func (r *RateLimitMiddleware) Enforce(route string, policy *construct.RateLimitPolicy) echo.MiddlewareFunc {
	if policy == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return next
		}
	}

	limiter := r.limiterFor(route, policy)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !limiter.Allow() {
				r.recordRateLimitHit(route)
				return errs.NewRateLimitError()
			}
			return next(c)
		}
	}
}

func (r *RateLimitMiddleware) limiterFor(route string, policy *construct.RateLimitPolicy) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if limiter, ok := r.limiters[route]; ok {
		return limiter
	}

	burst := policy.Burst
	if burst <= 0 {
		burst = 1
	}

	limiter := rate.NewLimiter(rate.Limit(policy.RPS), burst)
	r.limiters[route] = limiter
	return limiter
}

func (r *RateLimitMiddleware) recordRateLimitHit(route string) {
	if r.server.LoggerService != nil && r.server.LoggerService.GetApplication() != nil {
		r.server.LoggerService.GetApplication().RecordCustomEvent("RateLimitHit", map[string]interface{}{
			"endpoint": route,
		})
	}
}
