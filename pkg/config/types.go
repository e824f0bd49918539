package config

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mfreeman451/clientradar/pkg/models"
)

type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	switch value := v.(type) {
	case float64:
		// parse numeric as nanoseconds
		*d = Duration(time.Duration(value))
		return nil
	case string:
		dur, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("%w: %w", errInvalidDuration, err)
		}

		*d = Duration(dur)

		return nil
	default:
		return errInvalidDuration
	}
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the clientradar configuration document.
type Config struct {
	Database      DatabaseConfig     `json:"database"`
	HTTP          HTTPConfig         `json:"http"`
	GRPC          GRPCConfig         `json:"grpc"`
	Health        HealthConfig       `json:"health"`
	Alerts        AlertsConfig       `json:"alerts"`
	Notifications NotificationConfig `json:"notifications"`
	Usage         UsageConfig        `json:"usage"`
	Retention     RetentionConfig    `json:"retention"`
	Cache         CacheConfig        `json:"cache"`
	Performance   PerformanceConfig  `json:"performance"`
	Jobs          JobsConfig         `json:"jobs"`
	Sentry        SentryConfig       `json:"sentry"`
	Logging       LoggingConfig      `json:"logging"`
}

type DatabaseConfig struct {
	Path string `json:"path"`
}

type HTTPConfig struct {
	ListenAddr string `json:"listen_addr"`
}

type GRPCConfig struct {
	ListenAddr string                 `json:"listen_addr"`
	Security   *models.SecurityConfig `json:"security,omitempty"`
}

type HealthConfig struct {
	Timeout         Duration `json:"timeout"`
	Method          string   `json:"method"` // GET or HEAD
	UserAgent       string   `json:"user_agent"`
	Concurrency     int      `json:"concurrency"`
	InterProbeDelay Duration `json:"inter_probe_delay"`
}

type AlertsConfig struct {
	DefaultCooldownMinutes int `json:"default_cooldown_minutes"`
}

// WebhookConfig represents a webhook notification channel.
type WebhookConfig struct {
	Name     string   `json:"name"`
	URL      string   `json:"url"`
	Template string   `json:"template"`
	Secret   string   `json:"secret,omitempty"`
	Headers  []Header `json:"headers,omitempty"` // Optional custom headers
	Retries  int      `json:"retries"`
	Timeout  Duration `json:"timeout"`
}

// Header represents a custom HTTP header.
type Header struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// ShoutrrrConfig maps a channel name (email, slack, ...) to service URLs.
type ShoutrrrConfig struct {
	Name string   `json:"name"`
	URLs []string `json:"urls"`
}

type NATSConfig struct {
	URL     string `json:"url"`
	Subject string `json:"subject"`
}

type NotificationConfig struct {
	Webhooks []WebhookConfig  `json:"webhooks,omitempty"`
	Shoutrrr []ShoutrrrConfig `json:"shoutrrr,omitempty"`
	NATS     *NATSConfig      `json:"nats,omitempty"`
}

type UsageConfig struct {
	Timezone string `json:"timezone"`
	// PeakConcurrencyFactor scales unique users into the peak concurrency estimate.
	PeakConcurrencyFactor float64 `json:"peak_concurrency_factor"`
}

// Location resolves the usage timezone.
func (u UsageConfig) Location() (*time.Location, error) {
	if u.Timezone == "" {
		return time.UTC, nil
	}

	loc, err := time.LoadLocation(u.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTimezone, err)
	}

	return loc, nil
}

type RetentionConfig struct {
	RetentionDays int `json:"retention_days"`
	BatchSize     int `json:"batch_size"`
}

type CacheConfig struct {
	Backend     string   `json:"backend"` // memory or redis
	RedisURL    string   `json:"redis_url,omitempty"`
	KeyPrefix   string   `json:"key_prefix"`
	StatsTTL    Duration `json:"stats_ttl"`
	OverviewTTL Duration `json:"overview_ttl"`
}

type PerformanceConfig struct {
	SlowQueryThreshold Duration `json:"slow_query_threshold"`
	AvgQueryThreshold  Duration `json:"avg_query_threshold"`
	HitRatioTarget     float64  `json:"hit_ratio_target"`
	MemoryLimitBytes   uint64   `json:"memory_limit_bytes"`
	MemoryWarnRatio    float64  `json:"memory_warn_ratio"`
	SampleSize         int      `json:"sample_size"`
	TrackedKeys        []string `json:"tracked_keys,omitempty"`
}

type JobConfig struct {
	Enabled  *bool    `json:"enabled,omitempty"`
	Interval Duration `json:"interval"`
	Timeout  Duration `json:"timeout"`
	Attempts int      `json:"attempts"`
	Backoff  Duration `json:"backoff"`
	LockTTL  Duration `json:"lock_ttl"`
}

// IsEnabled defaults to true when unset.
func (j JobConfig) IsEnabled() bool {
	return j.Enabled == nil || *j.Enabled
}

type JobsConfig struct {
	LockBackend       string    `json:"lock_backend"` // memory or redis
	HealthCheck       JobConfig `json:"health_check"`
	ForcedHealthCheck JobConfig `json:"health_check_forced"`
	UsageAggregation  JobConfig `json:"usage_aggregation"`
	RetentionCleanup  JobConfig `json:"retention_cleanup"`
}

type SentryConfig struct {
	DSN         string `json:"dsn,omitempty"`
	Environment string `json:"environment,omitempty"`
}

type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"` // tint, text or json
}

const (
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
)

// ApplyDefaults implements Defaulter.
func (c *Config) ApplyDefaults() {
	setDefault(&c.HTTP.ListenAddr, ":8090")
	setDefault(&c.GRPC.ListenAddr, ":50060")

	setDuration(&c.Health.Timeout, 10*time.Second)
	setDefault(&c.Health.Method, "GET")
	setDefault(&c.Health.UserAgent, "clientradar-health/1.0")

	if c.Health.Concurrency == 0 {
		c.Health.Concurrency = 4
	}

	setDuration(&c.Health.InterProbeDelay, 100*time.Millisecond)

	if c.Alerts.DefaultCooldownMinutes == 0 {
		c.Alerts.DefaultCooldownMinutes = 15
	}

	if c.Usage.PeakConcurrencyFactor == 0 {
		c.Usage.PeakConcurrencyFactor = 0.3
	}

	if c.Retention.RetentionDays == 0 {
		c.Retention.RetentionDays = 90
	}

	if c.Retention.BatchSize == 0 {
		c.Retention.BatchSize = 1000
	}

	setDefault(&c.Cache.Backend, CacheBackendMemory)
	setDefault(&c.Cache.KeyPrefix, "clientradar:")
	setDuration(&c.Cache.StatsTTL, time.Minute)
	setDuration(&c.Cache.OverviewTTL, 5*time.Minute)

	setDuration(&c.Performance.SlowQueryThreshold, time.Second)
	setDuration(&c.Performance.AvgQueryThreshold, 500*time.Millisecond)

	if c.Performance.HitRatioTarget == 0 {
		c.Performance.HitRatioTarget = 0.8
	}

	if c.Performance.MemoryLimitBytes == 0 {
		c.Performance.MemoryLimitBytes = 512 << 20
	}

	if c.Performance.MemoryWarnRatio == 0 {
		c.Performance.MemoryWarnRatio = 0.8
	}

	if c.Performance.SampleSize == 0 {
		c.Performance.SampleSize = 1024
	}

	setDefault(&c.Jobs.LockBackend, CacheBackendMemory)
	c.Jobs.HealthCheck.applyDefaults(5*time.Minute, 4*time.Minute, 1)
	c.Jobs.ForcedHealthCheck.applyDefaults(24*time.Hour, 30*time.Minute, 1)
	c.Jobs.UsageAggregation.applyDefaults(24*time.Hour, time.Hour, 3)
	c.Jobs.RetentionCleanup.applyDefaults(7*24*time.Hour, 2*time.Hour, 3)

	setDefault(&c.Logging.Level, "info")
	setDefault(&c.Logging.Format, "tint")
}

func (j *JobConfig) applyDefaults(interval, timeout time.Duration, attempts int) {
	setDuration(&j.Interval, interval)
	setDuration(&j.Timeout, timeout)

	if j.Attempts == 0 {
		j.Attempts = attempts
	}

	setDuration(&j.Backoff, 30*time.Second)
	// The lock outlives the timeout so a hung run cannot overlap the next one.
	setDuration(&j.LockTTL, timeout+time.Minute)
}

// Validate implements Validator.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return ErrMissingDatabasePath
	}

	if c.Retention.RetentionDays <= 0 {
		return ErrInvalidRetention
	}

	if c.Retention.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}

	if c.Health.Concurrency <= 0 {
		return ErrInvalidConcurrency
	}

	if c.Usage.PeakConcurrencyFactor < 0 || c.Usage.PeakConcurrencyFactor > 1 {
		return ErrInvalidFactor
	}

	if _, err := c.Usage.Location(); err != nil {
		return err
	}

	for _, backend := range []string{c.Cache.Backend, c.Jobs.LockBackend} {
		switch backend {
		case CacheBackendMemory:
		case CacheBackendRedis:
			if c.Cache.RedisURL == "" {
				return ErrMissingRedisURL
			}
		default:
			return fmt.Errorf("%w: %s", ErrInvalidCacheBackend, backend)
		}
	}

	return nil
}

func setDefault(s *string, v string) {
	if *s == "" {
		*s = v
	}
}

func setDuration(d *Duration, v time.Duration) {
	if *d == 0 {
		*d = Duration(v)
	}
}
