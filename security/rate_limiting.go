package security

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"
)

type RateLimiter struct {
	redis    *redis.Client
	limit    int64
	window   time.Duration
	identify func(e *core.RequestEvent) string
}

func NewRateLimiter(redisClient *redis.Client, perMinute int) *RateLimiter {
	return &RateLimiter{
		redis:    redisClient,
		limit:    int64(perMinute),
		window:   time.Minute,
		identify: requester,
	}
}

// requester keys authenticated calls by user and anonymous ones by IP.
func requester(e *core.RequestEvent) string {
	if e.Auth != nil {
		return "user:" + e.Auth.Id
	}
	return "ip:" + e.RealIP()
}

// Middleware rejects obvious bots and callers above the per-minute budget of
// scope. Redis failures let the request through.
func (r *RateLimiter) Middleware(scope string) func(e *core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		if r.isSuspiciousUserAgent(e.Request.Header.Get("User-Agent")) {
			return apis.NewForbiddenError("Access denied", nil)
		}

		key := fmt.Sprintf("ratelimit:%s:%s", scope, r.identify(e))
		allowed, err := r.Allow(e.Request.Context(), key)
		if err != nil {
			slog.Warn("rate limiter unavailable", "key", key, "error", err)
			return e.Next()
		}
		if !allowed {
			return apis.NewTooManyRequestsError("Too many requests", nil)
		}
		return e.Next()
	}
}

// Allow counts one request against key in the current window.
func (r *RateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	count, err := r.redis.Incr(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if count == 1 {
		if err := r.redis.Expire(ctx, key, r.window).Err(); err != nil {
			return false, err
		}
	}
	return count <= r.limit, nil
}

func (r *RateLimiter) isSuspiciousUserAgent(ua string) bool {
	suspicious := []string{"bot", "crawler", "spider", "scraper"}
	for _, pattern := range suspicious {
		if strings.Contains(strings.ToLower(ua), pattern) {
			return true
		}
	}
	return false
}
