package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimit bounds message throughput toward one provider across three
// windows. Zero means unlimited for that window.
type RateLimit struct {
	PerSecond int
	PerMinute int
	PerDay    int
}

// DefaultProviderLimit is used when no per-provider limit is configured.
var DefaultProviderLimit = RateLimit{PerSecond: 50, PerMinute: 2000, PerDay: 500000}

// RateLimiter enforces provider send limits with a single Lua script, so
// check-and-increment is atomic across dispatcher instances. The GET then
// INCR pattern would race between fleet members.
type RateLimiter struct {
	redis  *redis.Client
	limits map[string]RateLimit
	script *redis.Script
}

// All three windows are checked before any counter moves; a denial leaves
// the counters untouched.
const rateLimitLua = `
local secKey = KEYS[1]
local minKey = KEYS[2]
local dayKey = KEYS[3]
local n = tonumber(ARGV[1])
local secLimit = tonumber(ARGV[2])
local minLimit = tonumber(ARGV[3])
local dayLimit = tonumber(ARGV[4])

local sec = tonumber(redis.call("GET", secKey) or "0")
local min = tonumber(redis.call("GET", minKey) or "0")
local day = tonumber(redis.call("GET", dayKey) or "0")

if secLimit > 0 and sec + n > secLimit then
    return {0, 1}
end
if minLimit > 0 and min + n > minLimit then
    return {0, 2}
end
if dayLimit > 0 and day + n > dayLimit then
    return {0, 3}
end

local v = redis.call("INCRBY", secKey, n)
if v == n then redis.call("EXPIRE", secKey, 2) end
v = redis.call("INCRBY", minKey, n)
if v == n then redis.call("EXPIRE", minKey, 120) end
v = redis.call("INCRBY", dayKey, n)
if v == n then redis.call("EXPIRE", dayKey, 90000) end

return {1, 0}
`

// NewRateLimiter creates a limiter with per-provider limits. Providers
// absent from limits fall back to DefaultProviderLimit.
func NewRateLimiter(client *redis.Client, limits map[string]RateLimit) *RateLimiter {
	return &RateLimiter{
		redis:  client,
		limits: limits,
		script: redis.NewScript(rateLimitLua),
	}
}

// Allow checks whether n sends to provider fit the current windows and
// reserves them when they do. On denial it returns the suggested wait.
// A daily-limit denial returns an error since waiting within the poll
// interval cannot help.
func (rl *RateLimiter) Allow(ctx context.Context, provider string, n int) (bool, time.Duration, error) {
	limit, ok := rl.limits[provider]
	if !ok {
		limit = DefaultProviderLimit
	}

	now := time.Now()
	keys := []string{
		fmt.Sprintf("sendlimit:%s:sec:%d", provider, now.Unix()),
		fmt.Sprintf("sendlimit:%s:min:%d", provider, now.Unix()/60),
		fmt.Sprintf("sendlimit:%s:day:%s", provider, now.Format("2006-01-02")),
	}

	res, err := rl.script.Run(ctx, rl.redis, keys,
		n, limit.PerSecond, limit.PerMinute, limit.PerDay).Slice()
	if err != nil {
		return false, 0, fmt.Errorf("rate limit check: %w", err)
	}

	if res[0].(int64) == 1 {
		return true, 0, nil
	}
	switch res[1].(int64) {
	case 1:
		return false, time.Second, nil
	case 2:
		return false, time.Duration(60-now.Second()) * time.Second, nil
	default:
		return false, 0, fmt.Errorf("daily send limit exceeded for %s", provider)
	}
}

// Usage reports the current window counters for a provider.
func (rl *RateLimiter) Usage(ctx context.Context, provider string) (map[string]int64, error) {
	now := time.Now()
	pipe := rl.redis.Pipeline()
	sec := pipe.Get(ctx, fmt.Sprintf("sendlimit:%s:sec:%d", provider, now.Unix()))
	min := pipe.Get(ctx, fmt.Sprintf("sendlimit:%s:min:%d", provider, now.Unix()/60))
	day := pipe.Get(ctx, fmt.Sprintf("sendlimit:%s:day:%s", provider, now.Format("2006-01-02")))
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		log.Printf("[RateLimiter] usage read: %v", err)
	}

	s, _ := sec.Int64()
	m, _ := min.Int64()
	d, _ := day.Int64()
	return map[string]int64{"second": s, "minute": m, "day": d}, nil
}
