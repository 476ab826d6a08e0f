package ratelimit

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllow_DisabledLimiterAlwaysAllows(t *testing.T) {
	var nilLimiter *RedisLimiter
	d, err := nilLimiter.Allow(context.Background(), "votes", "1.2.3.4", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	noClient := NewRedisLimiter(nil, "")
	d, err = noClient.Allow(context.Background(), "votes", "1.2.3.4", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, "talentvote:rate_limit", noClient.prefix)
}

func TestParseScriptResult(t *testing.T) {
	count, ttl, err := parseScriptResult([]interface{}{int64(3), int64(1500)})
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
	assert.Equal(t, int64(1500), ttl)

	_, _, err = parseScriptResult("OK")
	assert.Error(t, err)
	_, _, err = parseScriptResult([]interface{}{"3", int64(1)})
	assert.Error(t, err)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "p:votes:1.2.3.4", Key("p", "votes", "1.2.3.4"))
}

// Против настоящего Redis: TEST_REDIS_URL=redis://localhost:6379/15
func TestAllow_Redis(t *testing.T) {
	raw := os.Getenv("TEST_REDIS_URL")
	if raw == "" {
		t.Skip("TEST_REDIS_URL is not set")
	}
	opts, err := redis.ParseURL(raw)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })

	limiter := NewRedisLimiter(client, "test:rate_limit:")
	subject := fmt.Sprintf("client-%d", time.Now().UnixNano())
	ctx := context.Background()

	for i := 1; i <= 2; i++ {
		d, err := limiter.Allow(ctx, "votes", subject, 2, time.Minute)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, i, d.Count)
	}

	d, err := limiter.Allow(ctx, "votes", subject, 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.GreaterOrEqual(t, d.RetryAfter, time.Second)
	assert.LessOrEqual(t, d.RetryAfter, time.Minute)
}
