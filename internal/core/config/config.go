package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config represents the top-level application config.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Store     StoreConfig     `koanf:"store"`
	Buckets   BucketConfig    `koanf:"buckets"`
	Sync      SyncConfig      `koanf:"sync"`
	Query     QueryConfig     `koanf:"query"`
	Recommend RecommendConfig `koanf:"recommend"`
}

type ServerConfig struct {
	Port int    `koanf:"port"`
	Host string `koanf:"host"`
	Mode string `koanf:"mode"` // debug | release
}

type DatabaseConfig struct {
	DSN          string `koanf:"dsn"`
	MaxOpenConns int    `koanf:"max_open_conns"`
	MaxIdleConns int    `koanf:"max_idle_conns"`
	AutoMigrate  bool   `koanf:"auto_migrate"`
}

type StoreConfig struct {
	Backend   string `koanf:"backend"` // memory | redis
	RedisAddr string `koanf:"redis_addr"`
	RedisDB   int    `koanf:"redis_db"`
}

type BucketConfig struct {
	Width     string `koanf:"width"`     // bucket granularity, parsed on startup
	Retention string `koanf:"retention"` // queryable history
	TTL       string `koanf:"ttl"`       // cache eviction horizon, >= retention
}

type SyncConfig struct {
	Enabled         bool   `koanf:"enabled"`
	Interval        string `koanf:"interval"`
	RetryAttempts   int    `koanf:"retry_attempts"`
	BackoffMin      string `koanf:"backoff_min"`
	BackoffMax      string `koanf:"backoff_max"`
	FetchTimeout    string `koanf:"fetch_timeout"`
	InitialLookback string `koanf:"initial_lookback"`
}

type QueryConfig struct {
	Timeout string `koanf:"timeout"`
}

type RecommendConfig struct {
	Horizon    string  `koanf:"horizon"` // zero means all time
	MinRate    float64 `koanf:"min_rate"`
	MaxResults int     `koanf:"max_results"`
}

func (c BucketConfig) WidthDuration() time.Duration     { return mustDuration(c.Width) }
func (c BucketConfig) RetentionDuration() time.Duration { return mustDuration(c.Retention) }
func (c BucketConfig) TTLDuration() time.Duration       { return mustDuration(c.TTL) }

func (c SyncConfig) IntervalDuration() time.Duration        { return mustDuration(c.Interval) }
func (c SyncConfig) BackoffMinDuration() time.Duration      { return mustDuration(c.BackoffMin) }
func (c SyncConfig) BackoffMaxDuration() time.Duration      { return mustDuration(c.BackoffMax) }
func (c SyncConfig) FetchTimeoutDuration() time.Duration    { return mustDuration(c.FetchTimeout) }
func (c SyncConfig) InitialLookbackDuration() time.Duration { return mustDuration(c.InitialLookback) }

func (c QueryConfig) TimeoutDuration() time.Duration { return mustDuration(c.Timeout) }

func (c RecommendConfig) HorizonDuration() time.Duration {
	if strings.TrimSpace(c.Horizon) == "" || c.Horizon == "0" {
		return 0
	}
	return mustDuration(c.Horizon)
}

// mustDuration assumes Validate already ran; the accessors exist so wiring
// code never re-handles parse errors.
func mustDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		panic(fmt.Sprintf("unvalidated duration %q: %v", s, err))
	}
	return d
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d (must be 1-65535)", c.Server.Port)
	}
	if strings.TrimSpace(c.Server.Host) == "" {
		return fmt.Errorf("server.host is required")
	}
	if c.Server.Mode != "debug" && c.Server.Mode != "release" {
		return fmt.Errorf("invalid server.mode %q (must be debug or release)", c.Server.Mode)
	}

	if strings.TrimSpace(c.Database.DSN) == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be > 0")
	}
	if c.Database.MaxIdleConns <= 0 {
		return fmt.Errorf("database.max_idle_conns must be > 0")
	}

	if c.Store.Backend != "memory" && c.Store.Backend != "redis" {
		return fmt.Errorf("invalid store.backend %q (must be memory or redis)", c.Store.Backend)
	}
	if c.Store.Backend == "redis" && strings.TrimSpace(c.Store.RedisAddr) == "" {
		return fmt.Errorf("store.redis_addr is required when store.backend is redis")
	}

	width, err := parseDuration("buckets.width", c.Buckets.Width)
	if err != nil {
		return err
	}
	retention, err := parseDuration("buckets.retention", c.Buckets.Retention)
	if err != nil {
		return err
	}
	ttl, err := parseDuration("buckets.ttl", c.Buckets.TTL)
	if err != nil {
		return err
	}
	if retention < width {
		return fmt.Errorf("buckets.retention %q must be >= buckets.width %q", c.Buckets.Retention, c.Buckets.Width)
	}
	if ttl < retention {
		return fmt.Errorf("buckets.ttl %q must be >= buckets.retention %q", c.Buckets.TTL, c.Buckets.Retention)
	}

	if _, err := parseDuration("sync.interval", c.Sync.Interval); err != nil {
		return err
	}
	if c.Sync.RetryAttempts < 1 {
		return fmt.Errorf("sync.retry_attempts must be >= 1")
	}
	backoffMin, err := parseDuration("sync.backoff_min", c.Sync.BackoffMin)
	if err != nil {
		return err
	}
	backoffMax, err := parseDuration("sync.backoff_max", c.Sync.BackoffMax)
	if err != nil {
		return err
	}
	if backoffMin > backoffMax {
		return fmt.Errorf("sync.backoff_min %q must be <= sync.backoff_max %q", c.Sync.BackoffMin, c.Sync.BackoffMax)
	}
	if _, err := parseDuration("sync.fetch_timeout", c.Sync.FetchTimeout); err != nil {
		return err
	}
	if _, err := parseDuration("sync.initial_lookback", c.Sync.InitialLookback); err != nil {
		return err
	}

	if _, err := parseDuration("query.timeout", c.Query.Timeout); err != nil {
		return err
	}

	if c.Recommend.HorizonString() != "" {
		if _, err := parseDuration("recommend.horizon", c.Recommend.Horizon); err != nil {
			return err
		}
	}
	if c.Recommend.MinRate < 0 || c.Recommend.MinRate > 1 {
		return fmt.Errorf("recommend.min_rate %v must be in [0, 1]", c.Recommend.MinRate)
	}
	if c.Recommend.MaxResults < 1 || c.Recommend.MaxResults > 10 {
		return fmt.Errorf("recommend.max_results %d must be in [1, 10]", c.Recommend.MaxResults)
	}

	return nil
}

// HorizonString returns the horizon string, treating "0" as unset.
func (c RecommendConfig) HorizonString() string {
	s := strings.TrimSpace(c.Horizon)
	if s == "0" {
		return ""
	}
	return s
}

func parseDuration(key, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be > 0", key)
	}
	return d, nil
}

// Load parses config from defaults + file + env, then validates it.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]interface{}{
		"server.port":              8080,
		"server.host":              "0.0.0.0",
		"server.mode":              "release",
		"database.dsn":             "",
		"database.max_open_conns":  25,
		"database.max_idle_conns":  25,
		"database.auto_migrate":    true,
		"store.backend":            "memory",
		"store.redis_addr":         "",
		"store.redis_db":           0,
		"buckets.width":            "60s",
		"buckets.retention":        "24h",
		"buckets.ttl":              "25h",
		"sync.enabled":             true,
		"sync.interval":            "1m",
		"sync.retry_attempts":      3,
		"sync.backoff_min":         "100ms",
		"sync.backoff_max":         "5s",
		"sync.fetch_timeout":       "10s",
		"sync.initial_lookback":    "60m",
		"query.timeout":            "5s",
		"recommend.horizon":        "0",
		"recommend.min_rate":       0.3,
		"recommend.max_results":    3,
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider("TAGPULSE_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "TAGPULSE_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
