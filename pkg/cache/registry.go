package cache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"
)

// View names a logical group of cache keys.
type View string

type keyIndex interface {
	add(ctx context.Context, view View, key string) error
	members(ctx context.Context, view View) ([]string, error)
	take(ctx context.Context, view View) ([]string, error)
	generation(ctx context.Context, view View) (uint64, error)
}

// Registry remembers which keys were written for each view so a view can
// be invalidated without scanning the backend. Every invalidation bumps the
// view's generation.
type Registry struct {
	index keyIndex
}

// NewRegistry keeps the key sets in process memory.
func NewRegistry() *Registry {
	return &Registry{index: &memoryIndex{
		views: make(map[View]map[string]struct{}),
		gens:  make(map[View]uint64),
	}}
}

// NewRedisRegistry keeps the key sets in Redis next to the cached values,
// so every process sharing r sees the same registrations.
func NewRedisRegistry(r *Redis) *Registry {
	return &Registry{index: &redisIndex{r: r}}
}

// RegistryFor returns the registry matching c's backend.
func RegistryFor(c Cache) *Registry {
	if r, ok := c.(*Redis); ok {
		return NewRedisRegistry(r)
	}

	return NewRegistry()
}

// Register records key under view.
func (r *Registry) Register(ctx context.Context, view View, key string) error {
	return r.index.add(ctx, view, key)
}

// Keys returns the keys registered under view, sorted.
func (r *Registry) Keys(ctx context.Context, view View) ([]string, error) {
	keys, err := r.index.members(ctx, view)
	if err != nil {
		return nil, err
	}

	sort.Strings(keys)

	return keys, nil
}

// Generation returns the number of times view was invalidated.
func (r *Registry) Generation(ctx context.Context, view View) (uint64, error) {
	return r.index.generation(ctx, view)
}

// Invalidate deletes every key of views from c and forgets them.
func (r *Registry) Invalidate(ctx context.Context, c Cache, views ...View) error {
	var errs []error

	for _, view := range views {
		keys, err := r.index.take(ctx, view)
		if err != nil {
			errs = append(errs, err)

			continue
		}

		if len(keys) == 0 {
			continue
		}

		if err := c.Delete(ctx, keys...); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

type memoryIndex struct {
	mu    sync.Mutex
	views map[View]map[string]struct{}
	gens  map[View]uint64
}

func (m *memoryIndex) add(_ context.Context, view View, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys, ok := m.views[view]
	if !ok {
		keys = make(map[string]struct{})
		m.views[view] = keys
	}

	keys[key] = struct{}{}

	return nil
}

func (m *memoryIndex) members(_ context.Context, view View) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return setKeys(m.views[view]), nil
}

func (m *memoryIndex) take(_ context.Context, view View) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := setKeys(m.views[view])

	delete(m.views, view)
	m.gens[view]++

	return keys, nil
}

func (m *memoryIndex) generation(_ context.Context, view View) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.gens[view], nil
}

func setKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}

	return keys
}

type redisIndex struct {
	r *Redis
}

func (x *redisIndex) setKey(view View) string {
	return x.r.key("views:" + string(view))
}

func (x *redisIndex) genKey(view View) string {
	return x.r.key("viewgen:" + string(view))
}

func (x *redisIndex) add(ctx context.Context, view View, key string) error {
	if err := x.r.rdb.SAdd(ctx, x.setKey(view), key).Err(); err != nil {
		return fmt.Errorf("sadd failed: %w", err)
	}

	return nil
}

func (x *redisIndex) members(ctx context.Context, view View) ([]string, error) {
	keys, err := x.r.rdb.SMembers(ctx, x.setKey(view)).Result()
	if err != nil {
		return nil, fmt.Errorf("smembers failed: %w", err)
	}

	return keys, nil
}

func (x *redisIndex) take(ctx context.Context, view View) ([]string, error) {
	var members *redis.StringSliceCmd

	_, err := x.r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		members = pipe.SMembers(ctx, x.setKey(view))
		pipe.Del(ctx, x.setKey(view))
		pipe.Incr(ctx, x.genKey(view))

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("view invalidation failed: %w", err)
	}

	return members.Val(), nil
}

func (x *redisIndex) generation(ctx context.Context, view View) (uint64, error) {
	v, err := x.r.rdb.Get(ctx, x.genKey(view)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}

	if err != nil {
		return 0, fmt.Errorf("get failed: %w", err)
	}

	return strconv.ParseUint(v, 10, 64)
}
