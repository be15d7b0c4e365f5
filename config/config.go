package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Collector   CollectorConfig   `yaml:"collector"`
	Storage     StorageConfig     `yaml:"storage"`
	Aggregation AggregationConfig `yaml:"aggregation"`
	Database    DatabaseConfig    `yaml:"database"`
	Push        PushConfig        `yaml:"push"`
	WorkerPool  WorkerPoolConfig  `yaml:"worker_pool"`
	Facilities  []FacilityConfig  `yaml:"facilities"`
}

// FacilityConfig is the static reference data for one tracked car park.
type FacilityConfig struct {
	ID        string  `yaml:"id"`
	Name      string  `yaml:"name"`
	Spots     int     `yaml:"spots"` // 0 = unknown capacity
	Suburb    string  `yaml:"suburb"`
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// CollectorConfig holds the sampling loop configuration.
type CollectorConfig struct {
	Enabled             bool          `yaml:"enabled"`
	PollIntervalMinutes int           `yaml:"poll_interval_minutes"`
	PollInterval        time.Duration `yaml:"-"` // derived from PollIntervalMinutes
	WindowStart         string        `yaml:"window_start"` // "05:00"
	WindowEnd           string        `yaml:"window_end"`   // "22:00"
	Timezone            string        `yaml:"timezone"`
	// EscalateAfterFailures is the number of consecutive failed ticks for
	// one facility before the collector escalates to a visible warning.
	EscalateAfterFailures int              `yaml:"escalate_after_failures"`
	RequestsPerSecond     float64          `yaml:"requests_per_second"`
	Request               CollectorRequest `yaml:"request"`

	windowStartMin int
	windowEndMin   int
}

// CollectorRequest defines the HTTP request for the occupancy API.
type CollectorRequest struct {
	URL            string            `yaml:"url"`
	Headers        map[string]string `yaml:"headers"`
	TimeoutSeconds int               `yaml:"timeout_seconds"`
	Timeout        time.Duration     `yaml:"-"`
	MaxRetries     uint64            `yaml:"max_retries"`
}

// StorageConfig holds the sample store configuration.
type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
	// Rollover is the partition boundary for raw sample files, "week" or
	// "day".
	Rollover string `yaml:"rollover"`
}

// AggregationConfig holds the weekly reduction configuration.
type AggregationConfig struct {
	IntervalHours      int           `yaml:"interval_hours"`
	Interval           time.Duration `yaml:"-"`
	BucketWidthMinutes int           `yaml:"bucket_width_minutes"`
	BucketWidth        time.Duration `yaml:"-"`
	// IncludeEmptyBuckets emits explicit zero-confidence records for
	// in-window buckets with no samples instead of omitting them.
	IncludeEmptyBuckets bool `yaml:"include_empty_buckets"`
	// PercentFullWhenUnknown controls percent_full for facilities with
	// unknown capacity: "omit" drops the key, "null" emits an explicit null.
	PercentFullWhenUnknown string `yaml:"percent_full_when_unknown"`
	LowDataThreshold       int    `yaml:"low_data_threshold"`
	InsightsPath           string `yaml:"insights_path"`
	RunOnStart             bool   `yaml:"run_on_start"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	Enabled    bool   `yaml:"enabled"`
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// DatabaseConfig holds the relational database used for subscriptions and
// facility reference data.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"` // "sqlite" or "postgres"
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// Load reads the configuration from the given path and applies defaults and
// validation.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.ApplyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills unset fields with their defaults and validates the
// cadence and window settings. It must be called on any Config constructed
// without Load.
func (c *Config) ApplyDefaults() error {
	if c.Server.Port <= 0 {
		c.Server.Port = 8080
	}
	if c.Server.RateLimitPerSec <= 0 {
		c.Server.RateLimitPerSec = 10
	}
	if c.Server.RateLimitBurst <= 0 {
		c.Server.RateLimitBurst = 5
	}
	if c.Server.CacheTTLSeconds <= 0 {
		c.Server.CacheTTLSeconds = 300
	}

	col := &c.Collector
	if col.PollIntervalMinutes <= 0 {
		col.PollIntervalMinutes = 10
	}
	col.PollInterval = time.Duration(col.PollIntervalMinutes) * time.Minute
	if col.WindowStart == "" {
		col.WindowStart = "05:00"
	}
	if col.WindowEnd == "" {
		col.WindowEnd = "22:00"
	}
	if col.Timezone == "" {
		col.Timezone = "Australia/Sydney"
	}
	if col.EscalateAfterFailures <= 0 {
		col.EscalateAfterFailures = 3
	}
	if col.RequestsPerSecond <= 0 {
		col.RequestsPerSecond = 5
	}
	if col.Request.TimeoutSeconds <= 0 {
		col.Request.TimeoutSeconds = 10
	}
	col.Request.Timeout = time.Duration(col.Request.TimeoutSeconds) * time.Second
	if col.Request.MaxRetries == 0 {
		col.Request.MaxRetries = 2
	}

	var err error
	if col.windowStartMin, err = parseClock(col.WindowStart); err != nil {
		return fmt.Errorf("invalid window_start: %w", err)
	}
	if col.windowEndMin, err = parseClock(col.WindowEnd); err != nil {
		return fmt.Errorf("invalid window_end: %w", err)
	}
	if col.windowEndMin <= col.windowStartMin {
		return fmt.Errorf("window_end %q must be after window_start %q", col.WindowEnd, col.WindowStart)
	}

	if c.Storage.DataDir == "" {
		c.Storage.DataDir = "./data/raw"
	}
	switch c.Storage.Rollover {
	case "":
		c.Storage.Rollover = "week"
	case "week", "day":
	default:
		return fmt.Errorf("invalid storage rollover %q: must be \"week\" or \"day\"", c.Storage.Rollover)
	}

	agg := &c.Aggregation
	if agg.IntervalHours <= 0 {
		agg.IntervalHours = 24 * 7
	}
	agg.Interval = time.Duration(agg.IntervalHours) * time.Hour
	if agg.BucketWidthMinutes <= 0 {
		agg.BucketWidthMinutes = 10
	}
	agg.BucketWidth = time.Duration(agg.BucketWidthMinutes) * time.Minute
	if agg.BucketWidthMinutes < col.PollIntervalMinutes {
		return fmt.Errorf("bucket_width_minutes %d must be >= poll_interval_minutes %d",
			agg.BucketWidthMinutes, col.PollIntervalMinutes)
	}
	window := col.windowEndMin - col.windowStartMin
	if window%agg.BucketWidthMinutes != 0 {
		return fmt.Errorf("bucket_width_minutes %d must evenly divide the %d minute operating window",
			agg.BucketWidthMinutes, window)
	}
	switch agg.PercentFullWhenUnknown {
	case "":
		agg.PercentFullWhenUnknown = "omit"
	case "omit", "null":
	default:
		return fmt.Errorf("invalid percent_full_when_unknown %q: must be \"omit\" or \"null\"", agg.PercentFullWhenUnknown)
	}
	if agg.LowDataThreshold <= 0 {
		agg.LowDataThreshold = 5
	}
	if agg.InsightsPath == "" {
		agg.InsightsPath = "./data/processed/insights.json"
	}

	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.DSN == "" && c.Database.Driver == "sqlite" {
		c.Database.DSN = "./data/parkride.db"
	}

	if c.Push.TTL <= 0 {
		c.Push.TTL = 3600
	}
	if c.WorkerPool.Size <= 0 {
		c.WorkerPool.Size = 1
	}

	seen := make(map[string]bool, len(c.Facilities))
	for _, f := range c.Facilities {
		if f.ID == "" {
			return fmt.Errorf("facility with empty id in configuration")
		}
		if seen[f.ID] {
			return fmt.Errorf("duplicate facility id %q in configuration", f.ID)
		}
		seen[f.ID] = true
	}

	return nil
}

// WindowStartMinutes returns the operating window start as minutes from
// midnight local time.
func (c *CollectorConfig) WindowStartMinutes() int { return c.windowStartMin }

// WindowEndMinutes returns the operating window end as minutes from midnight
// local time.
func (c *CollectorConfig) WindowEndMinutes() int { return c.windowEndMin }

// InWindow reports whether t falls inside the daily operating window. The
// end boundary is exclusive.
func (c *CollectorConfig) InWindow(t time.Time) bool {
	m := t.Hour()*60 + t.Minute()
	return m >= c.windowStartMin && m < c.windowEndMin
}

// Location resolves the configured collector timezone.
func (c *CollectorConfig) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// parseClock converts "HH:MM" into minutes from midnight.
func parseClock(s string) (int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("malformed clock value %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("malformed clock value %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("malformed clock value %q", s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("clock value %q out of range", s)
	}
	return h*60 + m, nil
}
