package di

import (
	"time"

	"github.com/goliatone/go-projection-cache/cache"
	"github.com/goliatone/go-projection-cache/domaincache"
	"github.com/goliatone/go-projection-cache/tenancy"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Container wires the keyed cache and the domain caches built on top of it.
// It owns the backend: call Close when done.
type Container struct {
	config    cache.Config
	logger    *zap.Logger
	metrics   *cache.Metrics
	kc        *cache.KeyedCache
	courses   *domaincache.CourseCache
	users     *domaincache.UserCache
	analytics *domaincache.AnalyticsCache
	tenantTTL time.Duration
}

type containerOptions struct {
	logger     *zap.Logger
	registerer prometheus.Registerer
	clock      cache.Clock
	store      cache.Store
	tenantTTL  time.Duration
}

// Option configures NewContainer.
type Option func(*containerOptions)

// WithLogger sets the logger shared by every component.
func WithLogger(logger *zap.Logger) Option {
	return func(o *containerOptions) { o.logger = logger }
}

// WithRegisterer registers the cache metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *containerOptions) { o.registerer = reg }
}

// WithClock sets the clock of the in-memory backend.
func WithClock(clock cache.Clock) Option {
	return func(o *containerOptions) { o.clock = clock }
}

// WithStore uses store instead of the backend selected by the config.
func WithStore(store cache.Store) Option {
	return func(o *containerOptions) { o.store = store }
}

// WithTenantTTL sets the ttl of resolvers returned by Tenants.
func WithTenantTTL(ttl time.Duration) Option {
	return func(o *containerOptions) { o.tenantTTL = ttl }
}

// NewContainer validates cfg and builds the cache stack.
func NewContainer(cfg cache.Config, opts ...Option) (*Container, error) {
	o := containerOptions{tenantTTL: tenancy.DefaultTTL}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	metrics, err := cache.NewMetrics(o.registerer)
	if err != nil {
		return nil, err
	}

	cacheOpts := []cache.Option{
		cache.WithLogger(o.logger),
		cache.WithMetrics(metrics),
		cache.WithClock(o.clock),
	}

	var kc *cache.KeyedCache
	if o.store != nil {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		kc = cache.NewKeyedCache(o.store, append([]cache.Option{
			cache.WithOpTimeout(cfg.OpTimeout),
			cache.WithBulkTimeout(cfg.BulkTimeout),
			cache.WithWriteRetries(cfg.WriteRetries, cfg.RetryBackoff),
		}, cacheOpts...)...)
	} else {
		kc, err = cache.New(cfg, cacheOpts...)
		if err != nil {
			return nil, err
		}
	}

	c := &Container{
		config:    cfg,
		logger:    o.logger,
		metrics:   metrics,
		kc:        kc,
		tenantTTL: o.tenantTTL,
	}

	if c.courses, err = domaincache.NewCourseCache(kc, cfg.DefaultTTL, o.logger); err != nil {
		return nil, c.abort(err)
	}
	if c.users, err = domaincache.NewUserCache(kc, cfg.DefaultTTL, o.logger); err != nil {
		return nil, c.abort(err)
	}
	if c.analytics, err = domaincache.NewAnalyticsCache(kc, cfg.AnalyticsTTL, o.logger); err != nil {
		return nil, c.abort(err)
	}
	return c, nil
}

// NewContainerWithDefaults builds a container over the in-memory backend
// with cache.DefaultConfig.
func NewContainerWithDefaults() (*Container, error) {
	return NewContainer(cache.DefaultConfig())
}

func (c *Container) abort(err error) error {
	_ = c.kc.Close()
	return err
}

// KeyedCache returns the shared keyed cache.
func (c *Container) KeyedCache() *cache.KeyedCache { return c.kc }

// Courses returns the course domain cache.
func (c *Container) Courses() *domaincache.CourseCache { return c.courses }

// Users returns the user domain cache.
func (c *Container) Users() *domaincache.UserCache { return c.users }

// Analytics returns the analytics domain cache.
func (c *Container) Analytics() *domaincache.AnalyticsCache { return c.analytics }

// Logger returns the container logger.
func (c *Container) Logger() *zap.Logger { return c.logger }

// Config returns the configuration the container was built with.
func (c *Container) Config() cache.Config { return c.config }

// Tenants returns a tenant resolver backed by source. Options passed here
// override the container defaults.
func (c *Container) Tenants(source tenancy.Source, opts ...tenancy.Option) (*tenancy.Resolver, error) {
	base := []tenancy.Option{
		tenancy.WithTTL(c.tenantTTL),
		tenancy.WithLogger(c.logger),
	}
	return tenancy.NewResolver(c.kc, source, append(base, opts...)...)
}

// Close releases the backend.
func (c *Container) Close() error {
	return c.kc.Close()
}

// Memoize wraps fn with the container's keyed cache.
//
// Since Go methods cannot have type parameters, this is provided as a package-level function.
// Example: Memoize(container, cache.ResultOptions{Name: "top_courses"}, topCourses)
func Memoize[R any](c *Container, opts cache.ResultOptions, fn cache.ResultFunc[R]) cache.ResultFunc[R] {
	return cache.Memoize(c.kc, opts, fn)
}
