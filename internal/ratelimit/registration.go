package ratelimit

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/eventreg/internal/config"
	identitydomain "github.com/smallbiznis/eventreg/internal/identity/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const keyPrefix = "eventreg:ratelimit:"

// RegistrationLimiter throttles registration attempts before they reach the
// capacity ledger. A nil limiter allows everything.
type RegistrationLimiter struct {
	bucket      *TokenBucket
	participant Limit
	event       Limit
}

func NewRegistrationLimiter(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (*RegistrationLimiter, error) {
	rl := cfg.RateLimit
	if !rl.Enabled {
		return nil, nil
	}
	addr := strings.TrimSpace(cfg.Redis.Addr)
	if addr == "" {
		return nil, errors.New("rate limit requires REDIS_ADDR")
	}
	participant := Limit{Rate: rl.ParticipantRate, Burst: rl.ParticipantBurst}
	event := Limit{Rate: rl.EventRate, Burst: rl.EventBurst}
	if participant.validate() != nil || event.validate() != nil {
		return nil, ErrInvalidLimit
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	lc.Append(fx.StopHook(client.Close))

	log.Named("ratelimit").Info("registration rate limit enabled",
		zap.Float64("participant_rate", participant.Rate),
		zap.Int("participant_burst", participant.Burst),
		zap.Float64("event_rate", event.Rate),
		zap.Int("event_burst", event.Burst),
	)
	return &RegistrationLimiter{bucket: NewTokenBucket(client), participant: participant, event: event}, nil
}

func (l *RegistrationLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

func (l *RegistrationLimiter) AllowParticipant(ctx context.Context, participant identitydomain.Participant) (Decision, error) {
	if !l.Enabled() {
		return Decision{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, participantKey(participant), l.participant)
}

func (l *RegistrationLimiter) AllowEvent(ctx context.Context, eventID snowflake.ID) (Decision, error) {
	if !l.Enabled() {
		return Decision{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, eventKey(eventID), l.event)
}

func participantKey(participant identitydomain.Participant) string {
	return keyPrefix + "participant:" + participant.String()
}

func eventKey(eventID snowflake.ID) string {
	return keyPrefix + "event:" + eventID.String()
}
