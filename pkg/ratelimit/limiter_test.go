package ratelimit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/richxcame/dispatch-core/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() config.RateLimitConfig {
	return config.RateLimitConfig{
		Enabled:        true,
		WindowSeconds:  60,
		DefaultLimit:   5,
		DefaultBurst:   0,
		AnonymousLimit: 2,
		AnonymousBurst: 0,
		RedisPrefix:    "rate-limit",
	}
}

func TestRuleFor_Defaults(t *testing.T) {
	l := NewLimiter(nil, testConfig())

	rule := l.RuleFor("POST:/trips", IdentityAuthenticated)
	assert.Equal(t, 5, rule.Limit)
	assert.Equal(t, time.Minute, rule.Window)

	anon := l.RuleFor("POST:/trips", IdentityAnonymous)
	assert.Equal(t, 2, anon.Limit)
}

func TestRuleFor_EndpointOverride(t *testing.T) {
	cfg := testConfig()
	cfg.EndpointOverrides = map[string]config.EndpointRateLimitConfig{
		"POST:/auth/request-otp": {
			AuthenticatedLimit: 3,
			AnonymousLimit:     3,
			WindowSeconds:      3600,
		},
	}
	l := NewLimiter(nil, cfg)

	rule := l.RuleFor("POST:/auth/request-otp", IdentityAnonymous)
	assert.Equal(t, 3, rule.Limit)
	assert.Equal(t, time.Hour, rule.Window)
}

func TestAllow_DisabledSkipsRedis(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false
	l := NewLimiter(nil, cfg)

	result, err := l.Allow(context.Background(), "POST:/trips", "user-1", Rule{Limit: 5, Window: time.Minute}, IdentityAuthenticated)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

// allowArgs mirrors the argument derivation inside Allow so the mock
// expectation matches byte for byte.
func allowArgs(rule Rule, nowMilli int64) []interface{} {
	windowMillis := rule.Window.Milliseconds()
	refillRate := float64(rule.Limit) / float64(windowMillis)
	capacity := float64(rule.Limit + rule.Burst)
	ttl := windowMillis * 2
	return []interface{}{nowMilli, formatFloat(refillRate), formatFloat(capacity), ttl}
}

func TestAllow_TokenAvailable(t *testing.T) {
	client, mock := redismock.NewClientMock()
	l := NewLimiter(client, testConfig())

	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l.WithNow(func() time.Time { return fixed })

	rule := Rule{Limit: 5, Burst: 0, Window: time.Minute}
	key := fmt.Sprintf("rate-limit:%s:%s", "POST:/trips", "user-1")
	sha := redis.NewScript(tokenBucketScript).Hash()
	mock.ExpectEvalSha(sha, []string{key}, allowArgs(rule, fixed.UnixMilli())...).
		SetVal([]interface{}{int64(1), int64(4), int64(0)})

	result, err := l.Allow(context.Background(), "POST:/trips", "user-1", rule, IdentityAuthenticated)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, 4, result.Remaining)
	assert.Zero(t, result.RetryAfter)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAllow_BucketExhausted(t *testing.T) {
	client, mock := redismock.NewClientMock()
	l := NewLimiter(client, testConfig())

	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l.WithNow(func() time.Time { return fixed })

	rule := Rule{Limit: 5, Burst: 0, Window: time.Minute}
	key := fmt.Sprintf("rate-limit:%s:%s", "POST:/trips", "user-1")
	sha := redis.NewScript(tokenBucketScript).Hash()
	mock.ExpectEvalSha(sha, []string{key}, allowArgs(rule, fixed.UnixMilli())...).
		SetVal([]interface{}{int64(0), int64(0), int64(12000)})

	result, err := l.Allow(context.Background(), "POST:/trips", "user-1", rule, IdentityAuthenticated)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, 0, result.Remaining)
	assert.Equal(t, 12*time.Second, result.RetryAfter)
	assert.NoError(t, mock.ExpectationsWereMet())
}
