package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"codearena/internal/common"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
)

// Locker hands out short-lived exclusive leases. Acquire returns
// common.ErrLockFailed when another holder has the key.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Release(ctx context.Context, key, token string) (bool, error)
}

// releaseScript deletes the key only if we still hold it.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

type RedisLocker struct {
	rdb *redis.Client
}

func NewRedisLocker(rdb *redis.Client) *RedisLocker {
	return &RedisLocker{rdb: rdb}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !ok {
		return "", common.ErrLockFailed
	}
	return token, nil
}

func (l *RedisLocker) Release(ctx context.Context, key, token string) (bool, error) {
	deleted, err := releaseScript.Run(ctx, l.rdb, []string{key}, token).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to release lock %s: %w", key, err)
	}
	return deleted == 1, nil
}

// MemoryLocker is the single-process Locker used with the memory store.
type MemoryLocker struct {
	mu     sync.Mutex
	clock  clockwork.Clock
	leases map[string]lease
}

type lease struct {
	token   string
	expires time.Time
}

func NewMemoryLocker(clock clockwork.Clock) *MemoryLocker {
	return &MemoryLocker{clock: clock, leases: map[string]lease{}}
}

func (l *MemoryLocker) Acquire(_ context.Context, key string, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock.Now()
	if cur, ok := l.leases[key]; ok && now.Before(cur.expires) {
		return "", common.ErrLockFailed
	}
	token := uuid.NewString()
	l.leases[key] = lease{token: token, expires: now.Add(ttl)}
	return token, nil
}

func (l *MemoryLocker) Release(_ context.Context, key, token string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cur, ok := l.leases[key]
	if !ok || cur.token != token {
		return false, nil
	}
	delete(l.leases, key)
	return true, nil
}
