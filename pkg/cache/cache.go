// Package cache provides the dashboard cache backends and the key registry
// used for explicit invalidation.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mfreeman451/clientradar/pkg/config"
	"github.com/mfreeman451/clientradar/pkg/metrics"
)

var ErrUnknownBackend = errors.New("unknown cache backend")

// Cache stores opaque values with a TTL.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Has(ctx context.Context, key string) (bool, error)
	Close() error
}

// New builds the backend named in cfg.
func New(cfg *config.CacheConfig) (Cache, error) {
	switch cfg.Backend {
	case "", config.CacheBackendMemory:
		return NewMemory(), nil
	case config.CacheBackendRedis:
		return NewRedis(cfg.RedisURL, cfg.KeyPrefix)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

// GetJSON decodes the value at key into dst. It reports false on a miss.
func GetJSON(ctx context.Context, c Cache, key string, dst any) (bool, error) {
	raw, ok, err := c.Get(ctx, key)
	if err != nil {
		return false, err
	}

	if !ok {
		metrics.CacheRequests.WithLabelValues("miss").Inc()

		return false, nil
	}

	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("cache entry %s: %w", key, err)
	}

	metrics.CacheRequests.WithLabelValues("hit").Inc()

	return true, nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, c Cache, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache entry %s: %w", key, err)
	}

	return c.Set(ctx, key, raw, ttl)
}
