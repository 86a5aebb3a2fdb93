package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// slidingWindowScript implements trim-append-count-expire as one
// indivisible Lua script: ZREMRANGEBYSCORE drops timestamps older than
// the window, ZADD records this attempt, ZCARD reads the count, EXPIRE
// bounds the key's lifetime to the window so abandoned identities don't
// leak keys.
const slidingWindowScript = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local windowStart = tonumber(ARGV[2])
local windowSeconds = tonumber(ARGV[3])

redis.call("ZREMRANGEBYSCORE", key, "-inf", windowStart)
redis.call("ZADD", key, now, now)
local count = redis.call("ZCARD", key)
redis.call("EXPIRE", key, windowSeconds)
return count
`

// RedisLimiter is the distributed primary path: a Redis sorted set per
// identity, scored by request timestamp.
type RedisLimiter struct {
	client *redis.Client
	limit  int
	script *redis.Script
}

// NewRedisLimiter builds a limiter against an already-connected client.
// limit is the max requests per Window; Disabled(limit) callers should
// not construct this at all.
func NewRedisLimiter(client *redis.Client, limit int) *RedisLimiter {
	return &RedisLimiter{client: client, limit: limit, script: redis.NewScript(slidingWindowScript)}
}

func (r *RedisLimiter) Allow(ctx context.Context, identity string) (bool, error) {
	now := time.Now()
	windowStart := now.Add(-Window)
	key := "engrama:ratelimit:" + identity

	res, err := r.script.Run(ctx, r.client, []string{key},
		now.UnixNano(), windowStart.UnixNano(), int(Window.Seconds())).Result()
	if err != nil {
		return false, fmt.Errorf("ratelimit: redis sliding window: %w", err)
	}

	count, ok := res.(int64)
	if !ok {
		return false, fmt.Errorf("ratelimit: unexpected script result type %T", res)
	}

	return int(count) <= r.limit, nil
}

// Health pings the Redis client and reports whether it answered.
func (r *RedisLimiter) Health(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ratelimit: redis ping: %w", err)
	}
	return nil
}
