package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// RateLimitConfig bounds how fast one party can send messages or reconnect.
type RateLimitConfig struct {
	MessageLimit  int
	MessageWindow time.Duration
	ConnectLimit  int
	ConnectWindow time.Duration
}

func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MessageLimit:  60,
		MessageWindow: 60 * time.Second,
		ConnectLimit:  20,
		ConnectWindow: 60 * time.Second,
	}
}

// RateLimiter is a fixed-window counter kept in Redis so limits hold across
// server processes.
type RateLimiter struct {
	client *goredis.Client
	config RateLimitConfig
}

type RateLimitResult struct {
	Allowed   bool
	Remaining int
	ResetIn   time.Duration
	Limit     int
}

func NewRateLimiter(client *goredis.Client, config RateLimitConfig) *RateLimiter {
	return &RateLimiter{client: client, config: config}
}

// AllowMessage checks and consumes one unit of the sender's message quota.
func (r *RateLimiter) AllowMessage(ctx context.Context, senderID string) (*RateLimitResult, error) {
	key := fmt.Sprintf("ratelimit:%s:messages", senderID)
	return r.checkLimit(ctx, key, r.config.MessageLimit, r.config.MessageWindow)
}

// AllowConnect checks and consumes one unit of the user's reconnect quota.
func (r *RateLimiter) AllowConnect(ctx context.Context, userID string) (*RateLimitResult, error) {
	key := fmt.Sprintf("ratelimit:%s:connects", userID)
	return r.checkLimit(ctx, key, r.config.ConnectLimit, r.config.ConnectWindow)
}

// checkLimit increments and checks atomically via a Lua script, so two
// concurrent requests cannot both slip under the limit.
func (r *RateLimiter) checkLimit(ctx context.Context, key string, limit int, window time.Duration) (*RateLimitResult, error) {
	script := goredis.NewScript(`
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

	result, err := script.Run(ctx, r.client, []string{key}, limit, int(window.Seconds())).Result()
	if err != nil {
		return nil, fmt.Errorf("rate limit check failed: %w", err)
	}

	resultSlice, ok := result.([]interface{})
	if !ok || len(resultSlice) < 3 {
		return nil, fmt.Errorf("unexpected rate limit result format")
	}

	return &RateLimitResult{
		Allowed:   resultSlice[0].(int64) == 1,
		Remaining: int(resultSlice[1].(int64)),
		ResetIn:   time.Duration(resultSlice[2].(int64)) * time.Second,
		Limit:     limit,
	}, nil
}

// Reset clears a single rate limit key.
func (r *RateLimiter) Reset(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

// ResetUser clears every limit tracked for a user.
func (r *RateLimiter) ResetUser(ctx context.Context, userID string) error {
	keys := []string{
		fmt.Sprintf("ratelimit:%s:messages", userID),
		fmt.Sprintf("ratelimit:%s:connects", userID),
	}
	return r.client.Del(ctx, keys...).Err()
}
