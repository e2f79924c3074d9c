package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// fixed-window counter; the window starts with the first hit
var limitScript = goredis.NewScript(`
	local key = KEYS[1]
	local limit = tonumber(ARGV[1])
	local window = tonumber(ARGV[2])

	local current = redis.call('GET', key)
	if current == false then
		current = 0
	else
		current = tonumber(current)
	end

	local ttl = redis.call('TTL', key)
	if ttl < 0 then
		ttl = window
	end

	if current < limit then
		redis.call('INCR', key)
		if ttl == window then
			redis.call('EXPIRE', key, window)
		end
		return {1, limit - current - 1, ttl}
	else
		return {0, 0, ttl}
	end
`)

// RateLimitResult contains the result of a rate limit check
type RateLimitResult struct {
	Allowed   bool
	Remaining int
	ResetIn   time.Duration
	Limit     int
}

// RateLimiter counts actions per key in Redis
type RateLimiter struct {
	client *goredis.Client
	prefix string
}

// NewRateLimiter creates a limiter whose keys are "ratelimit:<prefix>:<key>"
func NewRateLimiter(client *goredis.Client, prefix string) *RateLimiter {
	return &RateLimiter{
		client: client,
		prefix: prefix,
	}
}

// Allow consumes one action for key if fewer than limit happened in the window
func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (*RateLimitResult, error) {
	k := fmt.Sprintf("ratelimit:%s:%s", r.prefix, key)

	raw, err := limitScript.Run(ctx, r.client, []string{k}, limit, int(window.Seconds())).Result()
	if err != nil {
		return nil, fmt.Errorf("rate limit check failed: %w", err)
	}
	return parseLimitResult(raw, limit)
}

func parseLimitResult(raw any, limit int) (*RateLimitResult, error) {
	vals, ok := raw.([]interface{})
	if !ok || len(vals) < 3 {
		return nil, fmt.Errorf("unexpected rate limit result format")
	}

	nums := make([]int64, 3)
	for i := range nums {
		n, ok := vals[i].(int64)
		if !ok {
			return nil, fmt.Errorf("unexpected rate limit result format")
		}
		nums[i] = n
	}

	return &RateLimitResult{
		Allowed:   nums[0] == 1,
		Remaining: int(nums[1]),
		ResetIn:   time.Duration(nums[2]) * time.Second,
		Limit:     limit,
	}, nil
}
