package middleware

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"

	"github.com/studiobook/backend/config"
	"github.com/studiobook/backend/pkg/response"
)

// ActionClass groups mutating procedures into rate-limit profiles.
type ActionClass string

const (
	ClassMutate ActionClass = "mutate"
	ClassCreate ActionClass = "create"
	ClassDelete ActionClass = "delete"
	ClassBulk   ActionClass = "bulk"
)

// RateLimiter enforces sliding-window limits keyed by (user, action). The
// store is injected so single-instance deployments use process memory and
// clustered ones substitute Redis behind the same interface.
type RateLimiter struct {
	enabled  bool
	limiters map[ActionClass]*limiter.Limiter
}

// NewRateLimiter builds per-class limiters over the given store.
func NewRateLimiter(cfg config.RateLimitConfig, store limiter.Store) *RateLimiter {
	mk := func(limit int) *limiter.Limiter {
		return limiter.New(store, limiter.Rate{Period: cfg.Window, Limit: int64(limit)})
	}
	return &RateLimiter{
		enabled: cfg.Enabled,
		limiters: map[ActionClass]*limiter.Limiter{
			ClassMutate: mk(cfg.Mutate),
			ClassCreate: mk(cfg.Create),
			ClassDelete: mk(cfg.Delete),
			ClassBulk:   mk(cfg.Bulk),
		},
	}
}

// Limit returns a middleware enforcing the class's quota for the named
// action. Compose after the authenticated stage so the key is the user id;
// anonymous callers fall back to client IP.
func (rl *RateLimiter) Limit(action string, class ActionClass) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl == nil || !rl.enabled {
			c.Next()
			return
		}
		lim, ok := rl.limiters[class]
		if !ok {
			c.Next()
			return
		}
		subject := SessionFrom(c).UserID
		if subject == "" {
			subject = c.ClientIP()
		}
		lctx, err := lim.Get(c.Request.Context(), subject+":"+action)
		if err != nil {
			// Limiter store failure must not take down the API.
			c.Next()
			return
		}
		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", lctx.Limit))
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", lctx.Remaining))
		c.Header("X-RateLimit-Reset", fmt.Sprintf("%d", lctx.Reset))
		if lctx.Reached {
			retryAfter := time.Until(time.Unix(lctx.Reset, 0))
			response.TooManyRequests(c, "rate limit exceeded, try again later", retryAfter)
			c.Abort()
			return
		}
		c.Next()
	}
}
