package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only if it still holds our token
const releaseScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// Locker grants a lease on a named key
type Locker interface {
	// Acquire returns ok=false when someone else holds the key
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, ok bool, err error)
}

// RedisLock is a single-instance Redis lease lock
type RedisLock struct {
	client   redis.Cmdable
	newToken func() string
}

// NewRedisLock creates a Redis lock
func NewRedisLock(client redis.Cmdable) *RedisLock {
	return &RedisLock{client: client, newToken: func() string { return uuid.NewString() }}
}

// WithTokenFunc replaces the lease token generator
func (l *RedisLock) WithTokenFunc(fn func() string) *RedisLock {
	l.newToken = fn
	return l
}

// Acquire sets key with a fresh token if it is absent
func (l *RedisLock) Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, bool, error) {
	token := l.newToken()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func(ctx context.Context) error {
		if err := l.client.Eval(ctx, releaseScript, []string{key}, token).Err(); err != nil && err != redis.Nil {
			return fmt.Errorf("release %s: %w", key, err)
		}
		return nil
	}
	return release, true, nil
}
