package rateLimit

import (
	"context"
	"time"

	redisadapter "github.com/robertarktes/flight-reservations/internal/adapters/redis"
)

// Booking traffic is bursty around fare promotions, so limits are
// enforced per principal first and per source address as a backstop.
const (
	userRate = 60
	ipRate   = 300
	window   = time.Minute
)

type RateLimiter struct {
	redis *redisadapter.Cache
}

func NewRateLimiter(redis *redisadapter.Cache) *RateLimiter {
	return &RateLimiter{redis: redis}
}

// AllowUser rate limits a single authenticated principal.
func (rl *RateLimiter) AllowUser(ctx context.Context, userID string) bool {
	return rl.allow(ctx, "user:"+userID, userRate)
}

// AllowIP rate limits a source address across all principals behind it.
func (rl *RateLimiter) AllowIP(ctx context.Context, addr string) bool {
	return rl.allow(ctx, "ip:"+addr, ipRate)
}

// allow is a fixed-window counter per key. Fail closed on redis errors.
func (rl *RateLimiter) allow(ctx context.Context, key string, rate int) bool {
	fullKey := "rl:" + key

	pipe := rl.redis.Client().Pipeline()
	incr := pipe.Incr(ctx, fullKey)
	pipe.Expire(ctx, fullKey, window)

	if _, err := pipe.Exec(ctx); err != nil {
		return false
	}

	return incr.Val() <= int64(rate)
}
