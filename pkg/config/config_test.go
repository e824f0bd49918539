package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "clientradar.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `{"database": {"path": "/tmp/radar.db"}}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 90, cfg.Retention.RetentionDays)
	assert.Equal(t, 1000, cfg.Retention.BatchSize)
	assert.InDelta(t, 0.3, cfg.Usage.PeakConcurrencyFactor, 0.0001)
	assert.Equal(t, time.Minute, cfg.Cache.StatsTTL.Std())
	assert.Equal(t, 5*time.Minute, cfg.Cache.OverviewTTL.Std())
	assert.Equal(t, time.Second, cfg.Performance.SlowQueryThreshold.Std())
	assert.Equal(t, 10*time.Second, cfg.Health.Timeout.Std())
	assert.Equal(t, 5*time.Minute, cfg.Jobs.HealthCheck.Interval.Std())
	assert.Equal(t, 3, cfg.Jobs.UsageAggregation.Attempts)
	assert.True(t, cfg.Jobs.RetentionCleanup.IsEnabled())
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("RADAR_DB", "/var/lib/radar.db")

	path := writeConfig(t, `{"database": {"path": "${RADAR_DB}"}, "health": {"timeout": "3s"}}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/radar.db", cfg.Database.Path)
	assert.Equal(t, 3*time.Second, cfg.Health.Timeout.Std())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr error
	}{
		{
			name:    "missing database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: ErrMissingDatabasePath,
		},
		{
			name:    "negative retention",
			mutate:  func(c *Config) { c.Retention.RetentionDays = -1 },
			wantErr: ErrInvalidRetention,
		},
		{
			name:    "redis without url",
			mutate:  func(c *Config) { c.Cache.Backend = CacheBackendRedis },
			wantErr: ErrMissingRedisURL,
		},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.Jobs.LockBackend = "etcd" },
			wantErr: ErrInvalidCacheBackend,
		},
		{
			name:    "factor out of range",
			mutate:  func(c *Config) { c.Usage.PeakConcurrencyFactor = 1.5 },
			wantErr: ErrInvalidFactor,
		},
		{
			name:    "bad timezone",
			mutate:  func(c *Config) { c.Usage.Timezone = "Mars/Olympus" },
			wantErr: ErrInvalidTimezone,
		},
		{
			name:   "valid",
			mutate: func(*Config) {},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Database: DatabaseConfig{Path: "radar.db"}}
			cfg.ApplyDefaults()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}

			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestDurationUnmarshal(t *testing.T) {
	var d Duration

	require.NoError(t, d.UnmarshalJSON([]byte(`"1m30s"`)))
	assert.Equal(t, 90*time.Second, d.Std())

	require.NoError(t, d.UnmarshalJSON([]byte(`1000000000`)))
	assert.Equal(t, time.Second, d.Std())

	assert.ErrorIs(t, d.UnmarshalJSON([]byte(`true`)), errInvalidDuration)
	assert.ErrorIs(t, d.UnmarshalJSON([]byte(`"soon"`)), errInvalidDuration)
}
