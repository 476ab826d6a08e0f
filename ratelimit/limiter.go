// Package ratelimit is a fixed-window limiter shared across instances via Redis.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// INCR + PEXPIRE атомарно; возвращает {count, ttl_ms}.
var fixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

type Decision struct {
	Allowed    bool
	Count      int
	Limit      int
	RetryAfter time.Duration
}

type RedisLimiter struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisLimiter(client redis.UniversalClient, prefix string) *RedisLimiter {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = "talentvote:rate_limit"
	}
	return &RedisLimiter{client: client, prefix: prefix}
}

// Allow consumes one unit for subject within scope. A nil limiter, a nil
// client or a non-positive limit always allows.
func (l *RedisLimiter) Allow(ctx context.Context, scope, subject string, limit int, window time.Duration) (Decision, error) {
	decision := Decision{Allowed: true, Limit: limit}
	if l == nil || l.client == nil || limit <= 0 || window <= 0 {
		return decision, nil
	}
	scope = strings.TrimSpace(scope)
	subject = strings.TrimSpace(subject)
	if scope == "" || subject == "" {
		return decision, nil
	}

	windowMs := window.Milliseconds()
	if windowMs < 1000 {
		windowMs = 1000
	}

	key := Key(l.prefix, scope, subject)
	raw, err := fixedWindowScript.Run(ctx, l.client, []string{key}, windowMs).Result()
	if err != nil {
		return decision, fmt.Errorf("rate limiter script failed: %w", err)
	}

	count, ttlMs, err := parseScriptResult(raw)
	if err != nil {
		return decision, err
	}
	if ttlMs < 0 {
		ttlMs = windowMs
	}

	decision.Count = int(count)
	decision.Allowed = decision.Count <= limit
	if !decision.Allowed {
		seconds := int64(math.Ceil(float64(ttlMs) / 1000.0))
		if seconds < 1 {
			seconds = 1
		}
		decision.RetryAfter = time.Duration(seconds) * time.Second
	}
	return decision, nil
}

func Key(prefix, scope, subject string) string {
	return fmt.Sprintf("%s:%s:%s", prefix, scope, subject)
}

func parseScriptResult(raw interface{}) (int64, int64, error) {
	values, ok := raw.([]interface{})
	if !ok || len(values) != 2 {
		return 0, 0, fmt.Errorf("unexpected redis limiter response shape: %T", raw)
	}
	count, ok := values[0].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("unexpected redis limiter count type: %T", values[0])
	}
	ttl, ok := values[1].(int64)
	if !ok {
		return count, 0, fmt.Errorf("unexpected redis limiter ttl type: %T", values[1])
	}
	return count, ttl, nil
}
