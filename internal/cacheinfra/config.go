package cacheinfra

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
	"github.com/viccon/sturdyc"
)

// Supported backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config holds the backend configuration.
type Config struct {
	// Backend selects the store implementation: "memory" or "redis".
	Backend string

	// Capacity defines the maximum number of entries the memory backend holds.
	// Must be greater than 0.
	Capacity int

	// NumShards determines the number of memory backend shards.
	// Must be greater than 0 and not above Capacity. Default: 256
	NumShards int

	// MaxTTL is the upper bound of any per entry ttl on the memory backend.
	// Longer ttls are clamped.
	MaxTTL time.Duration

	// EvictionPercentage specifies what percentage of entries to evict
	// when the memory backend reaches its capacity. Must be between 1-100.
	EvictionPercentage int

	// EvictionInterval sets how often expired entries are swept.
	// Zero value uses the default interval.
	EvictionInterval time.Duration

	Redis RedisConfig

	// Breaker guards the redis backend. Nil disables it.
	Breaker *BreakerConfig
}

// RedisConfig configures the redis backend.
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// ScanCount is the COUNT hint passed to SCAN during prefix deletion.
	ScanCount int64
}

// BreakerConfig configures the circuit breaker in front of a remote backend.
type BreakerConfig struct {
	Enabled bool
	// MaxRequests allowed through while half open.
	MaxRequests uint32
	// Interval after which closed state counts are cleared.
	Interval time.Duration
	// Timeout spent open before probing again.
	Timeout time.Duration
	// FailureRatio trips the breaker once MinRequests have been seen.
	FailureRatio float64
	MinRequests  uint32
}

// DefaultConfig returns a Config with sensible defaults for most use cases.
func DefaultConfig() Config {
	return Config{
		Backend:            BackendMemory,
		Capacity:           10000,
		NumShards:          256,
		MaxTTL:             24 * time.Hour,
		EvictionPercentage: 10,
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			DialTimeout:  time.Second,
			ReadTimeout:  250 * time.Millisecond,
			WriteTimeout: 250 * time.Millisecond,
			ScanCount:    500,
		},
		Breaker: DefaultBreakerConfig(),
	}
}

// DefaultBreakerConfig returns the breaker settings used for redis.
func DefaultBreakerConfig() *BreakerConfig {
	return &BreakerConfig{
		Enabled:      true,
		MaxRequests:  3,
		Interval:     time.Minute,
		Timeout:      30 * time.Second,
		FailureRatio: 0.6,
		MinRequests:  5,
	}
}

// ToSturdycOptions converts the Config to sturdyc options.
// Capacity, NumShards, MaxTTL and EvictionPercentage are passed directly to
// sturdyc.New and are not included.
func (c Config) ToSturdycOptions() []sturdyc.Option {
	var options []sturdyc.Option

	if c.EvictionInterval > 0 {
		options = append(options, sturdyc.WithEvictionInterval(c.EvictionInterval))
	}

	return options
}

// Validate checks if the configuration values are valid.
func (c Config) Validate() error {
	errs := validation.Errors{}

	err := validation.ValidateStruct(&c,
		validation.Field(&c.Backend, validation.Required, validation.In(BackendMemory, BackendRedis)),
		validation.Field(&c.Capacity, validation.Required, validation.Min(1)),
		validation.Field(&c.NumShards, validation.Required, validation.Min(1), validation.Max(c.Capacity)),
		validation.Field(&c.MaxTTL, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.EvictionPercentage, validation.Required, validation.Min(1), validation.Max(100)),
		validation.Field(&c.EvictionInterval, validation.Min(time.Duration(0))),
		validation.Field(&c.Breaker),
	)
	if err != nil {
		fieldErrs, ok := err.(validation.Errors)
		if !ok {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "cache configuration validation failed")
		}
		for field, fieldErr := range fieldErrs {
			errs[field] = fieldErr
		}
	}

	if c.Backend == BackendRedis {
		if err := validation.Validate(c.Redis.Addr, validation.Required); err != nil {
			errs["Redis.Addr"] = err
		}
		if err := validation.Validate(c.Redis.ScanCount, validation.Min(int64(0))); err != nil {
			errs["Redis.ScanCount"] = err
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return goerrors.FromOzzoValidation(errs, "invalid cache configuration")
}

// Validate checks the breaker settings when the breaker is enabled.
func (b BreakerConfig) Validate() error {
	return validation.ValidateStruct(&b,
		validation.Field(&b.MaxRequests, validation.When(b.Enabled, validation.Required)),
		validation.Field(&b.Timeout, validation.When(b.Enabled, validation.Required, validation.Min(time.Millisecond))),
		validation.Field(&b.FailureRatio, validation.When(b.Enabled,
			validation.Required,
			validation.Min(0.0).Exclusive(),
			validation.Max(1.0),
		)),
		validation.Field(&b.MinRequests, validation.When(b.Enabled, validation.Required)),
	)
}
