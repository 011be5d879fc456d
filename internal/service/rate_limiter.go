package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const rateLimitKeyPrefix = "ratelimit:"

// slidingWindowScript keeps one sorted-set member per accepted request,
// scored by its arrival in milliseconds. Members older than the window are
// trimmed before counting.
//
// KEYS[1] bucket, ARGV[1] now ms, ARGV[2] window ms, ARGV[3] limit,
// ARGV[4] member id. Returns {allowed, remaining, resetAt ms}.
var slidingWindowScript = redis.NewScript(`
local bucket = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', bucket, '-inf', now - window)
local used = redis.call('ZCARD', bucket)

if used >= limit then
    local first = redis.call('ZRANGE', bucket, 0, 0, 'WITHSCORES')
    local reset = now + window
    if first[2] then
        reset = tonumber(first[2]) + window
    end
    return {0, 0, reset}
end

redis.call('ZADD', bucket, now, ARGV[4])
redis.call('PEXPIRE', bucket, window)
return {1, limit - used - 1, now + window}
`)

type RateLimitResult struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// RateLimiter is a sliding window limiter shared by every API replica
// through Redis.
type RateLimiter struct {
	client redis.Scripter
	now    func() time.Time
}

func NewRateLimiter(client redis.Scripter) *RateLimiter {
	return &RateLimiter{client: client, now: time.Now}
}

// CheckLimit records one request for key and reports whether it fits in
// limit requests per window. A Redis failure lets the request through.
func (rl *RateLimiter) CheckLimit(ctx context.Context, key string, limit int, window time.Duration) RateLimitResult {
	now := rl.now()
	reply, err := slidingWindowScript.Run(ctx, rl.client,
		[]string{rateLimitKeyPrefix + key},
		now.UnixMilli(), window.Milliseconds(), limit, uuid.NewString(),
	).Int64Slice()

	if err == nil && len(reply) != 3 {
		err = redis.Nil
	}
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("rate limit check failed, allowing request")
		return RateLimitResult{Allowed: true, Remaining: limit - 1, ResetAt: now.Add(window)}
	}

	return RateLimitResult{
		Allowed:   reply[0] == 1,
		Remaining: int(reply[1]),
		ResetAt:   time.UnixMilli(reply[2]),
	}
}
