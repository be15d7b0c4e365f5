package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
collector:
  request:
    url: "https://api.transport.nsw.gov.au/v1/carpark"
facilities:
  - id: "7"
    name: "Kiama"
    spots: 42
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10*time.Minute, cfg.Collector.PollInterval)
	assert.Equal(t, "05:00", cfg.Collector.WindowStart)
	assert.Equal(t, "22:00", cfg.Collector.WindowEnd)
	assert.Equal(t, "Australia/Sydney", cfg.Collector.Timezone)
	assert.Equal(t, 3, cfg.Collector.EscalateAfterFailures)
	assert.Equal(t, 10*time.Second, cfg.Collector.Request.Timeout)
	assert.Equal(t, "week", cfg.Storage.Rollover)
	assert.Equal(t, 7*24*time.Hour, cfg.Aggregation.Interval)
	assert.Equal(t, 10*time.Minute, cfg.Aggregation.BucketWidth)
	assert.Equal(t, "omit", cfg.Aggregation.PercentFullWhenUnknown)
	assert.Equal(t, 5, cfg.Aggregation.LowDataThreshold)
	assert.Equal(t, "sqlite", cfg.Database.Driver)

	require.Len(t, cfg.Facilities, 1)
	assert.Equal(t, "7", cfg.Facilities[0].ID)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestApplyDefaultsValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			"bucket narrower than poll interval",
			func(c *Config) {
				c.Collector.PollIntervalMinutes = 10
				c.Aggregation.BucketWidthMinutes = 5
			},
			"must be >= poll_interval_minutes",
		},
		{
			"bucket does not divide window",
			func(c *Config) { c.Aggregation.BucketWidthMinutes = 13 },
			"evenly divide",
		},
		{
			"window end before start",
			func(c *Config) {
				c.Collector.WindowStart = "22:00"
				c.Collector.WindowEnd = "05:00"
			},
			"must be after",
		},
		{
			"malformed window clock",
			func(c *Config) { c.Collector.WindowStart = "5am" },
			"invalid window_start",
		},
		{
			"clock out of range",
			func(c *Config) { c.Collector.WindowEnd = "24:00" },
			"invalid window_end",
		},
		{
			"unknown rollover",
			func(c *Config) { c.Storage.Rollover = "month" },
			"invalid storage rollover",
		},
		{
			"unknown percent full policy",
			func(c *Config) { c.Aggregation.PercentFullWhenUnknown = "zero" },
			"percent_full_when_unknown",
		},
		{
			"duplicate facility id",
			func(c *Config) {
				c.Facilities = []FacilityConfig{{ID: "7"}, {ID: "7"}}
			},
			"duplicate facility id",
		},
		{
			"empty facility id",
			func(c *Config) {
				c.Facilities = []FacilityConfig{{Name: "Kiama"}}
			},
			"empty id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			tt.mutate(cfg)
			err := cfg.ApplyDefaults()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestInWindow(t *testing.T) {
	cfg := &Config{}
	require.NoError(t, cfg.ApplyDefaults())

	day := func(hour, min int) time.Time {
		return time.Date(2026, 8, 25, hour, min, 0, 0, time.UTC)
	}

	assert.False(t, cfg.Collector.InWindow(day(4, 59)))
	assert.True(t, cfg.Collector.InWindow(day(5, 0)))
	assert.True(t, cfg.Collector.InWindow(day(13, 30)))
	assert.True(t, cfg.Collector.InWindow(day(21, 59)))
	assert.False(t, cfg.Collector.InWindow(day(22, 0)), "window end is exclusive")
	assert.False(t, cfg.Collector.InWindow(day(23, 30)))
}

func TestWindowMinutes(t *testing.T) {
	cfg := &Config{}
	cfg.Collector.WindowStart = "06:30"
	cfg.Collector.WindowEnd = "20:30"
	require.NoError(t, cfg.ApplyDefaults())

	assert.Equal(t, 390, cfg.Collector.WindowStartMinutes())
	assert.Equal(t, 1230, cfg.Collector.WindowEndMinutes())
}
