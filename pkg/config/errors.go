package config

import "errors"

var (
	errInvalidDuration = errors.New("invalid duration")

	ErrMissingDatabasePath = errors.New("database path is required")
	ErrInvalidRetention    = errors.New("retention days must be positive")
	ErrInvalidBatchSize    = errors.New("retention batch size must be positive")
	ErrInvalidCacheBackend = errors.New("unknown cache backend")
	ErrMissingRedisURL     = errors.New("redis url is required for the redis backend")
	ErrInvalidConcurrency  = errors.New("health concurrency must be positive")
	ErrInvalidFactor       = errors.New("peak concurrency factor must be within [0, 1]")
	ErrInvalidTimezone     = errors.New("invalid usage timezone")
)
