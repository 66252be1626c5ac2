package cache

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-projection-cache/internal/cacheinfra"
)

// Backend names accepted by Config.Backend.
const (
	BackendMemory = cacheinfra.BackendMemory
	BackendRedis  = cacheinfra.BackendRedis
)

// Config exposes cache configuration options for consumers of the cache package.
type Config struct {
	Backend            string
	Capacity           int
	NumShards          int
	MaxTTL             time.Duration
	EvictionPercentage int
	EvictionInterval   time.Duration
	Redis              RedisConfig
	Breaker            *BreakerConfig

	OpTimeout    time.Duration
	BulkTimeout  time.Duration
	WriteRetries int
	RetryBackoff time.Duration

	// DefaultTTL applies to domain entries written without an explicit ttl.
	DefaultTTL time.Duration
	// AnalyticsTTL applies to analytics snapshots.
	AnalyticsTTL time.Duration
}

// RedisConfig mirrors the redis backend options.
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	ScanCount    int64
}

// BreakerConfig mirrors the circuit breaker options.
type BreakerConfig struct {
	Enabled      bool
	MaxRequests  uint32
	Interval     time.Duration
	Timeout      time.Duration
	FailureRatio float64
	MinRequests  uint32
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() Config {
	cfg := convertFromInternal(cacheinfra.DefaultConfig())
	cfg.OpTimeout = DefaultOpTimeout
	cfg.BulkTimeout = DefaultBulkTimeout
	cfg.WriteRetries = DefaultWriteRetries
	cfg.RetryBackoff = DefaultRetryBackoff
	cfg.DefaultTTL = 300 * time.Second
	cfg.AnalyticsTTL = 3600 * time.Second
	return cfg
}

// Validate checks whether the configuration values are valid.
func (c Config) Validate() error {
	if err := c.toInternal().Validate(); err != nil {
		return err
	}

	err := validation.ValidateStruct(&c,
		validation.Field(&c.OpTimeout, validation.Required, validation.Max(5*time.Second)),
		validation.Field(&c.BulkTimeout, validation.Min(time.Duration(0))),
		validation.Field(&c.WriteRetries, validation.Min(0), validation.Max(5)),
		validation.Field(&c.RetryBackoff, validation.Min(time.Duration(0))),
		validation.Field(&c.DefaultTTL, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.AnalyticsTTL, validation.Required, validation.Min(time.Second)),
	)
	if err != nil {
		return goerrors.FromOzzoValidation(err, "invalid cache configuration")
	}
	return nil
}

// New builds a KeyedCache backed by the store cfg selects. Options passed
// after the config derived ones take precedence.
func New(cfg Config, opts ...Option) (*KeyedCache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	base := append([]Option{
		WithOpTimeout(cfg.OpTimeout),
		WithBulkTimeout(cfg.BulkTimeout),
		WithWriteRetries(cfg.WriteRetries, cfg.RetryBackoff),
	}, opts...)
	kc := NewKeyedCache(nil, base...)

	storeOpts := []cacheinfra.StoreOption{cacheinfra.WithLogger(kc.logger)}
	if kc.clock != nil {
		storeOpts = append(storeOpts, cacheinfra.WithClock(kc.clock))
	}

	store, err := cacheinfra.NewStore(cfg.toInternal(), storeOpts...)
	if err != nil {
		return nil, err
	}

	kc.store = store
	return kc, nil
}

func (c Config) toInternal() cacheinfra.Config {
	var breaker *cacheinfra.BreakerConfig
	if c.Breaker != nil {
		b := cacheinfra.BreakerConfig(*c.Breaker)
		breaker = &b
	}

	return cacheinfra.Config{
		Backend:            c.Backend,
		Capacity:           c.Capacity,
		NumShards:          c.NumShards,
		MaxTTL:             c.MaxTTL,
		EvictionPercentage: c.EvictionPercentage,
		EvictionInterval:   c.EvictionInterval,
		Redis:              cacheinfra.RedisConfig(c.Redis),
		Breaker:            breaker,
	}
}

func convertFromInternal(cfg cacheinfra.Config) Config {
	var breaker *BreakerConfig
	if cfg.Breaker != nil {
		b := BreakerConfig(*cfg.Breaker)
		breaker = &b
	}

	return Config{
		Backend:            cfg.Backend,
		Capacity:           cfg.Capacity,
		NumShards:          cfg.NumShards,
		MaxTTL:             cfg.MaxTTL,
		EvictionPercentage: cfg.EvictionPercentage,
		EvictionInterval:   cfg.EvictionInterval,
		Redis:              RedisConfig(cfg.Redis),
		Breaker:            breaker,
	}
}
