package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/mtuci/autonotes-backend/pkg/logger"
)

const lockKeyPrefix = "cron:lock:"

type redisStore interface {
	Get(ctx context.Context, key string) (string, error)
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
}

// RedisLock serializes job runs across worker replicas. Each job gets its own
// key; the owner token guards against releasing a lock that expired and was
// re-acquired elsewhere.
type RedisLock struct {
	store redisStore
	owner string
	logg  *logger.Logger
}

type RedisLockParams struct {
	Store  redisStore
	Owner  string
	Logger *logger.Logger
}

func NewRedisLock(params RedisLockParams) (*RedisLock, error) {
	if params.Store == nil {
		return nil, errors.New("redis store is required")
	}
	if params.Owner == "" {
		return nil, errors.New("owner is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	return &RedisLock{
		store: params.Store,
		owner: params.Owner,
		logg:  params.Logger,
	}, nil
}

// Acquire takes the named lock for ttl. Returns false when another replica
// holds it.
func (l *RedisLock) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	ok, err := l.store.SetNX(ctx, lockKeyPrefix+name, l.owner, ttl)
	if err != nil {
		return false, fmt.Errorf("acquiring lock %s: %w", name, err)
	}
	return ok, nil
}

// Release frees the lock if this instance still owns it.
func (l *RedisLock) Release(ctx context.Context, name string) {
	key := lockKeyPrefix + name
	current, err := l.store.Get(ctx, key)
	if errors.Is(err, goredis.Nil) {
		return
	}
	if err != nil {
		l.logg.Warn(ctx, "failed to read lock owner for "+name+": "+err.Error())
		return
	}
	if current != l.owner {
		return
	}
	if err := l.store.Del(ctx, key); err != nil {
		l.logg.Warn(ctx, "failed to release lock "+name+": "+err.Error())
	}
}
