package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"budgetwise/internal/log"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// RedisLocker obtains locks through redislock so that runs for the same key
// are serialized across every instance sharing the Redis server.
type RedisLocker struct {
	client  *redis.Client
	locker  *redislock.Client
	ttl     time.Duration
	retries int
	backoff time.Duration
	logger  *log.Logger
}

type RedisOptions struct {
	Address  string
	Password string
	DB       int
	TTL      time.Duration
	// Retries bounds how often Obtain polls a held key before giving up.
	Retries int
	Backoff time.Duration
}

func NewRedisLocker(opts RedisOptions, logger *log.Logger) *RedisLocker {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	if opts.TTL <= 0 {
		opts.TTL = 30 * time.Second
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 100 * time.Millisecond
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Address,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return &RedisLocker{
		client:  rdb,
		locker:  redislock.New(rdb),
		ttl:     opts.TTL,
		retries: opts.Retries,
		backoff: opts.Backoff,
		logger:  logger.WithComponent(log.ComponentLock),
	}
}

// Ping checks the Redis connection.
func (l *RedisLocker) Ping(ctx context.Context) error {
	if err := l.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

func (l *RedisLocker) Close() error {
	return l.client.Close()
}

func (l *RedisLocker) Obtain(ctx context.Context, key string) (Unlock, error) {
	lk, err := l.locker.Obtain(ctx, key, l.ttl, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(l.backoff), l.retries),
	})
	if err != nil {
		return nil, mapObtainError(key, err)
	}

	l.logger.DebugContext(ctx, "Lock obtained", "key", key, "ttl", l.ttl.String())
	return func(ctx context.Context) error {
		err := lk.Release(ctx)
		if errors.Is(err, redislock.ErrLockNotHeld) {
			// TTL expired before release; the key is already free.
			l.logger.WarnContext(ctx, "Lock expired before release", "key", key)
			return nil
		}
		if err != nil {
			return fmt.Errorf("release lock %s: %w", key, err)
		}
		return nil
	}, nil
}

func mapObtainError(key string, err error) error {
	if errors.Is(err, redislock.ErrNotObtained) {
		return fmt.Errorf("%w: %s", ErrLocked, key)
	}
	return fmt.Errorf("obtain lock %s: %w", key, err)
}
