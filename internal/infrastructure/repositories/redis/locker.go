package redis

import (
	"context"
	"time"

	"castline/internal/core/ports"
	"castline/pkg/distributed"

	"github.com/redis/go-redis/v9"
)

// RedisLocker adapts distributed.LockManager to ports.Locker.
type RedisLocker struct {
	manager *distributed.LockManager
}

func NewRedisLocker(client redis.Cmdable, prefix string) ports.Locker {
	return &RedisLocker{manager: distributed.NewLockManager(client, prefix+"lock:")}
}

// Acquire waits up to ttl for the lock.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (ports.Unlock, error) {
	lock := l.manager.AcquireLock(key, ttl)
	if err := lock.LockWithTimeout(ctx, ttl); err != nil {
		return nil, err
	}
	return lock.Unlock, nil
}
