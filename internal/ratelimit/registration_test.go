package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/eventreg/internal/config"
	identitydomain "github.com/smallbiznis/eventreg/internal/identity/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
)

func TestLimitIdleTTL(t *testing.T) {
	assert.Equal(t, time.Second, Limit{Rate: 0, Burst: 5}.idleTTL())
	assert.Equal(t, time.Second, Limit{Rate: 100, Burst: 1}.idleTTL())
	assert.Equal(t, 10*time.Second, Limit{Rate: 1, Burst: 5}.idleTTL())
	assert.Equal(t, 5*time.Second, Limit{Rate: 200, Burst: 500}.idleTTL())
}

func TestDecodeReply(t *testing.T) {
	d, err := decode([]int64{0, 0, 1500})
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 1500*time.Millisecond, d.RetryAfter)

	d, err = decode([]int64{1, 4, 0})
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 4, d.Remaining)

	_, err = decode([]int64{1})
	assert.Error(t, err)
}

func TestTokenBucketRejectsBadInput(t *testing.T) {
	assert.Nil(t, NewTokenBucket(nil))

	var bucket *TokenBucket
	_, err := bucket.Allow(context.Background(), "key", Limit{Rate: 1, Burst: 1})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestDisabledLimiterAllowsEverything(t *testing.T) {
	limiter, err := NewRegistrationLimiter(fxtest.NewLifecycle(t), config.Config{}, zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, limiter)
	assert.False(t, limiter.Enabled())

	d, err := limiter.AllowParticipant(context.Background(), identitydomain.Individual(snowflake.ID(1)))
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, err = limiter.AllowEvent(context.Background(), snowflake.ID(2))
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestEnabledLimiterValidatesConfig(t *testing.T) {
	lc := fxtest.NewLifecycle(t)

	_, err := NewRegistrationLimiter(lc, config.Config{RateLimit: config.RateLimitConfig{Enabled: true}}, zap.NewNop())
	require.Error(t, err)

	cfg := config.Config{RateLimit: config.RateLimitConfig{Enabled: true}}
	cfg.Redis.Addr = "localhost:6379"
	_, err = NewRegistrationLimiter(lc, cfg, zap.NewNop())
	assert.ErrorIs(t, err, ErrInvalidLimit)
}

func TestLimiterKeys(t *testing.T) {
	assert.Equal(t, "eventreg:ratelimit:participant:team:7", participantKey(identitydomain.Team(snowflake.ID(7))))
	assert.Equal(t, "eventreg:ratelimit:event:9", eventKey(snowflake.ID(9)))
}
