package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrJobLocked is returned when another run holds the job's lock.
var ErrJobLocked = errors.New("job is locked by another run")

// Lock is a held job lock.
type Lock interface {
	Release(ctx context.Context) error
}

// Locker hands out exclusive, expiring job locks.
type Locker interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (Lock, error)
}

const lockKeyPrefix = "lock:job:"

// releaseScript deletes the key only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisLocker coordinates jobs across nodes.
type RedisLocker struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisLocker(rdb *redis.Client, prefix string) *RedisLocker {
	return &RedisLocker{rdb: rdb, prefix: prefix}
}

func (l *RedisLocker) Acquire(ctx context.Context, name string, ttl time.Duration) (Lock, error) {
	key := l.prefix + lockKeyPrefix + name
	token := uuid.NewString()

	ok, err := l.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("setnx failed: %w", err)
	}

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobLocked, name)
	}

	return &redisLock{rdb: l.rdb, key: key, token: token}, nil
}

type redisLock struct {
	rdb   *redis.Client
	key   string
	token string
}

func (l *redisLock) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.rdb, []string{l.key}, l.token).Err(); err != nil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}

	return nil
}

// MemoryLocker coordinates jobs within one process.
type MemoryLocker struct {
	mu    sync.Mutex
	held  map[string]memoryEntry
	clock func() time.Time
}

type memoryEntry struct {
	token   string
	expires time.Time
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]memoryEntry), clock: time.Now}
}

func (l *MemoryLocker) Acquire(_ context.Context, name string, ttl time.Duration) (Lock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()

	if e, ok := l.held[name]; ok && now.Before(e.expires) {
		return nil, fmt.Errorf("%w: %s", ErrJobLocked, name)
	}

	token := uuid.NewString()
	l.held[name] = memoryEntry{token: token, expires: now.Add(ttl)}

	return &memoryLock{locker: l, name: name, token: token}, nil
}

type memoryLock struct {
	locker *MemoryLocker
	name   string
	token  string
}

func (l *memoryLock) Release(context.Context) error {
	l.locker.mu.Lock()
	defer l.locker.mu.Unlock()

	if e, ok := l.locker.held[l.name]; ok && e.token == l.token {
		delete(l.locker.held, l.name)
	}

	return nil
}
