package capacity

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/eventreg/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// compare-and-delete so a lease that outlived its TTL cannot drop a lock
// another process now owns
const unlockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

const (
	lockKeyPrefix = "eventreg:lock:event:"
	minBackoff    = 5 * time.Millisecond
	maxBackoff    = 100 * time.Millisecond
)

var ErrLockerDisabled = errors.New("distributed lock not configured")

type lockClient interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd
}

// Locker holds per-event locks in Redis so several processes sharing one
// database serialize capacity changes. A nil Locker is valid and disabled.
type Locker struct {
	client lockClient
	ttl    time.Duration
}

func NewLocker(client lockClient, ttl time.Duration) *Locker {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &Locker{client: client, ttl: ttl}
}

// ProvideLocker returns nil unless REDIS_ADDR is set.
func ProvideLocker(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) *Locker {
	addr := strings.TrimSpace(cfg.Redis.Addr)
	if addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.Redis.Password),
		DB:       cfg.Redis.DB,
	})
	lc.Append(fx.StartStopHook(
		func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("redis ping: %w", err)
			}
			log.Info("distributed event lock enabled", zap.String("addr", addr), zap.Duration("ttl", cfg.Redis.LockTTL))
			return nil
		},
		client.Close,
	))
	return NewLocker(client, cfg.Redis.LockTTL)
}

// Lease is a set of held event locks.
type Lease struct {
	locker *Locker
	keys   []string
	token  string
}

// Acquire locks every event in ids, in the order given, waiting with jittered
// backoff while another holder has one. Callers pass ids sorted so two
// acquirers cannot deadlock. On failure nothing stays locked.
func (l *Locker) Acquire(ctx context.Context, ids []snowflake.ID) (*Lease, error) {
	if l == nil {
		return nil, ErrLockerDisabled
	}
	lease := &Lease{locker: l, token: uuid.NewString()}
	for _, id := range ids {
		key := eventLockKey(id)
		if err := l.wait(ctx, key, lease.token); err != nil {
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
			_ = lease.Release(releaseCtx)
			cancel()
			return nil, err
		}
		lease.keys = append(lease.keys, key)
	}
	return lease, nil
}

func (l *Locker) wait(ctx context.Context, key, token string) error {
	backoff := minBackoff
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		switch {
		case err != nil:
			return err
		case ok:
			return nil
		}
		timer := time.NewTimer(backoff/2 + rand.N(backoff/2+1))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

// Release drops the held locks in reverse order. Keys that expired and were
// taken by someone else are left alone.
func (s *Lease) Release(ctx context.Context) error {
	if s == nil {
		return nil
	}
	var errs []error
	for i := len(s.keys) - 1; i >= 0; i-- {
		if err := s.locker.client.Eval(ctx, unlockScript, []string{s.keys[i]}, s.token).Err(); err != nil {
			errs = append(errs, fmt.Errorf("unlock %s: %w", s.keys[i], err))
		}
	}
	s.keys = nil
	return errors.Join(errs...)
}

func eventLockKey(id snowflake.ID) string {
	return lockKeyPrefix + id.String()
}
