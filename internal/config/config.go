// Package config loads the application configuration from an optional YAML
// file and PROJCACHE_* environment variables.
package config

import (
	"errors"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-projection-cache/cache"
	"github.com/goliatone/go-projection-cache/tenancy"
	"github.com/spf13/viper"
)

const envPrefix = "PROJCACHE"

// CacheSection configures the backend and the cache facade.
type CacheSection struct {
	Backend            string        `mapstructure:"backend"`
	Capacity           int           `mapstructure:"capacity"`
	NumShards          int           `mapstructure:"num_shards"`
	MaxTTL             time.Duration `mapstructure:"max_ttl"`
	EvictionPercentage int           `mapstructure:"eviction_percentage"`
	EvictionInterval   time.Duration `mapstructure:"eviction_interval"`
	OpTimeout          time.Duration `mapstructure:"op_timeout"`
	BulkTimeout        time.Duration `mapstructure:"bulk_timeout"`
	WriteRetries       int           `mapstructure:"write_retries"`
	RetryBackoff       time.Duration `mapstructure:"retry_backoff"`
}

type RedisSection struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	ScanCount    int64         `mapstructure:"scan_count"`
}

type BreakerSection struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
	MinRequests  uint32        `mapstructure:"min_requests"`
}

type LogSection struct {
	Level   string `mapstructure:"level"`
	Service string `mapstructure:"service"`
}

// TTLSection holds the per domain entry lifetimes.
type TTLSection struct {
	Default   time.Duration `mapstructure:"default"`
	Analytics time.Duration `mapstructure:"analytics"`
	Tenant    time.Duration `mapstructure:"tenant"`
}

// Config is the full application configuration.
type Config struct {
	Cache   CacheSection   `mapstructure:"cache"`
	Redis   RedisSection   `mapstructure:"redis"`
	Breaker BreakerSection `mapstructure:"breaker"`
	Log     LogSection     `mapstructure:"log"`
	TTL     TTLSection     `mapstructure:"ttl"`
}

// Load reads path when it is not empty, or projcache.yaml from the working
// directory when present. Environment variables override file values, e.g.
// PROJCACHE_CACHE_BACKEND=redis or PROJCACHE_TTL_DEFAULT=2m.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("projcache")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to read config file").
				WithMetadata(map[string]any{"path": path})
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to decode config")
	}

	if err := cfg.CacheConfig().Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := cache.DefaultConfig()

	v.SetDefault("cache.backend", d.Backend)
	v.SetDefault("cache.capacity", d.Capacity)
	v.SetDefault("cache.num_shards", d.NumShards)
	v.SetDefault("cache.max_ttl", d.MaxTTL)
	v.SetDefault("cache.eviction_percentage", d.EvictionPercentage)
	v.SetDefault("cache.eviction_interval", d.EvictionInterval)
	v.SetDefault("cache.op_timeout", d.OpTimeout)
	v.SetDefault("cache.bulk_timeout", d.BulkTimeout)
	v.SetDefault("cache.write_retries", d.WriteRetries)
	v.SetDefault("cache.retry_backoff", d.RetryBackoff)

	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)
	v.SetDefault("redis.dial_timeout", d.Redis.DialTimeout)
	v.SetDefault("redis.read_timeout", d.Redis.ReadTimeout)
	v.SetDefault("redis.write_timeout", d.Redis.WriteTimeout)
	v.SetDefault("redis.scan_count", d.Redis.ScanCount)

	b := cache.BreakerConfig{}
	if d.Breaker != nil {
		b = *d.Breaker
	}
	v.SetDefault("breaker.enabled", b.Enabled)
	v.SetDefault("breaker.max_requests", b.MaxRequests)
	v.SetDefault("breaker.interval", b.Interval)
	v.SetDefault("breaker.timeout", b.Timeout)
	v.SetDefault("breaker.failure_ratio", b.FailureRatio)
	v.SetDefault("breaker.min_requests", b.MinRequests)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.service", "projcache")

	v.SetDefault("ttl.default", d.DefaultTTL)
	v.SetDefault("ttl.analytics", d.AnalyticsTTL)
	v.SetDefault("ttl.tenant", tenancy.DefaultTTL)
}

// CacheConfig converts the loaded sections into a cache.Config.
func (c Config) CacheConfig() cache.Config {
	breaker := cache.BreakerConfig(c.Breaker)
	return cache.Config{
		Backend:            c.Cache.Backend,
		Capacity:           c.Cache.Capacity,
		NumShards:          c.Cache.NumShards,
		MaxTTL:             c.Cache.MaxTTL,
		EvictionPercentage: c.Cache.EvictionPercentage,
		EvictionInterval:   c.Cache.EvictionInterval,
		Redis:              cache.RedisConfig(c.Redis),
		Breaker:            &breaker,
		OpTimeout:          c.Cache.OpTimeout,
		BulkTimeout:        c.Cache.BulkTimeout,
		WriteRetries:       c.Cache.WriteRetries,
		RetryBackoff:       c.Cache.RetryBackoff,
		DefaultTTL:         c.TTL.Default,
		AnalyticsTTL:       c.TTL.Analytics,
	}
}
