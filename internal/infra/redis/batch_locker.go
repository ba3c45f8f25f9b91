package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/kitchen-engine/internal/batchlock"
	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultLockTTL = 10 * time.Second
	backoffStep    = 10 * time.Millisecond
	backoffMax     = 50 * time.Millisecond
	keyPrefix      = "batchlock:"
)

// releaseScript deletes the key only while it still holds our token, so an
// expired lease never frees a lock another replica has since taken.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

var _ batchlock.Locker = (*RedisBatchLocker)(nil)

// RedisBatchLocker is a per-batch lease lock backed by SET NX PX.
type RedisBatchLocker struct {
	client  *goredis.Client
	ttl     time.Duration
	maxWait time.Duration
	token   func() string
	sleep   func(ctx context.Context, d time.Duration) error
	script  *goredis.Script
}

func NewRedisBatchLocker(client *goredis.Client, ttl time.Duration) (*RedisBatchLocker, error) {
	return newRedisBatchLocker(client, ttl, uuid.NewString, sleepWithContext)
}

func newRedisBatchLocker(
	client *goredis.Client,
	ttl time.Duration,
	tokenFn func() string,
	sleepFn func(ctx context.Context, d time.Duration) error,
) (*RedisBatchLocker, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	if tokenFn == nil {
		tokenFn = uuid.NewString
	}
	if sleepFn == nil {
		sleepFn = sleepWithContext
	}

	return &RedisBatchLocker{
		client:  client,
		ttl:     ttl,
		maxWait: ttl,
		token:   tokenFn,
		sleep:   sleepFn,
		script:  releaseScript,
	}, nil
}

// TryAcquire makes a single attempt and reports whether the lease was taken.
func (l *RedisBatchLocker) TryAcquire(ctx context.Context, batchID string) (string, bool, error) {
	if l == nil || l.client == nil || l.script == nil {
		return "", false, fmt.Errorf("batch locker is not initialized")
	}

	key, err := lockKey(batchID)
	if err != nil {
		return "", false, err
	}

	if ctx == nil {
		ctx = context.Background()
	}

	token := l.token()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("failed to acquire batch lock: %w", err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Acquire polls with a linear backoff until the lease is taken, ctx ends or
// the wait exceeds the lease TTL.
func (l *RedisBatchLocker) Acquire(ctx context.Context, batchID string) (batchlock.Unlock, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	waited := time.Duration(0)
	backoff := backoffStep
	for {
		token, ok, err := l.TryAcquire(ctx, batchID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, errors.Join(batchlock.ErrContended, ctx.Err())
			}
			return nil, err
		}
		if ok {
			return l.unlocker(batchID, token), nil
		}

		if waited >= l.maxWait {
			return nil, fmt.Errorf("%w: batch %s", batchlock.ErrContended, batchID)
		}
		if err := l.sleep(ctx, backoff); err != nil {
			return nil, errors.Join(batchlock.ErrContended, err)
		}
		waited += backoff

		backoff += backoffStep
		if backoff > backoffMax {
			backoff = backoffMax
		}
	}
}

// Release drops the lease if token still owns it.
func (l *RedisBatchLocker) Release(ctx context.Context, batchID string, token string) (bool, error) {
	key, err := lockKey(batchID)
	if err != nil {
		return false, err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	deleted, err := l.script.Run(ctx, l.client, []string{key}, token).Int()
	if err != nil {
		return false, fmt.Errorf("failed to release batch lock: %w", err)
	}
	return deleted == 1, nil
}

func (l *RedisBatchLocker) unlocker(batchID string, token string) batchlock.Unlock {
	return func(ctx context.Context) error {
		_, err := l.Release(ctx, batchID, token)
		return err
	}
}

func lockKey(batchID string) (string, error) {
	trimmed := strings.TrimSpace(batchID)
	if trimmed == "" {
		return "", fmt.Errorf("batch id is required")
	}
	return keyPrefix + trimmed, nil
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
