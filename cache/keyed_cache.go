package cache

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/goliatone/go-projection-cache/internal/cacheinfra"
	"go.uber.org/zap"
)

const (
	// DefaultOpTimeout bounds a single backend round trip.
	DefaultOpTimeout = 250 * time.Millisecond
	// DefaultBulkTimeout bounds prefix deletion, which may scan the keyspace.
	DefaultBulkTimeout = 2 * time.Second
	// DefaultWriteRetries is the number of extra attempts made for a failed write.
	DefaultWriteRetries = 2
	// DefaultRetryBackoff is the base delay between write attempts.
	DefaultRetryBackoff = 25 * time.Millisecond
)

// KeyedCache is a string keyed byte store with per entry TTL.
//
// Reads never fail: a backend error is logged and reported as a miss so
// callers fall through to their source of truth. Writes are retried and
// then surface a CACHE_UNAVAILABLE error which callers may ignore.
type KeyedCache struct {
	store        Store
	logger       *zap.Logger
	metrics      *Metrics
	clock        Clock
	opTimeout    time.Duration
	bulkTimeout  time.Duration
	writeRetries int
	retryBackoff time.Duration
}

// Option configures a KeyedCache.
type Option func(*KeyedCache)

// WithLogger sets the logger used for degraded reads and failed writes.
func WithLogger(logger *zap.Logger) Option {
	return func(c *KeyedCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics records request outcomes on m. A nil m disables metrics.
func WithMetrics(m *Metrics) Option {
	return func(c *KeyedCache) { c.metrics = m }
}

// WithClock sets the clock handed to the in-memory backend by New.
func WithClock(clock Clock) Option {
	return func(c *KeyedCache) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithOpTimeout bounds each single key backend call.
func WithOpTimeout(d time.Duration) Option {
	return func(c *KeyedCache) { c.opTimeout = d }
}

// WithBulkTimeout bounds prefix deletion.
func WithBulkTimeout(d time.Duration) Option {
	return func(c *KeyedCache) { c.bulkTimeout = d }
}

// WithWriteRetries sets how many extra attempts a failed write gets and the
// base backoff between them.
func WithWriteRetries(retries int, backoff time.Duration) Option {
	return func(c *KeyedCache) {
		if retries >= 0 {
			c.writeRetries = retries
		}
		c.retryBackoff = backoff
	}
}

// NewKeyedCache wraps store.
func NewKeyedCache(store Store, opts ...Option) *KeyedCache {
	c := &KeyedCache{
		store:        store,
		logger:       zap.NewNop(),
		opTimeout:    DefaultOpTimeout,
		bulkTimeout:  DefaultBulkTimeout,
		writeRetries: DefaultWriteRetries,
		retryBackoff: DefaultRetryBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the value stored under key. Any backend failure is logged
// and reported as a miss.
func (c *KeyedCache) Get(ctx context.Context, key string) ([]byte, bool) {
	if key == "" {
		return nil, false
	}

	opCtx, cancel := c.bounded(ctx, c.opTimeout)
	defer cancel()

	start := time.Now()
	value, ok, err := c.store.Get(opCtx, key)
	c.metrics.observe("get", start)

	namespace := namespaceOf(key)
	switch {
	case err != nil:
		c.metrics.request(namespace, resultError)
		c.logger.Warn("cache read failed, serving miss",
			zap.String("key", key),
			zap.Error(err),
		)
		return nil, false
	case !ok:
		c.metrics.request(namespace, resultMiss)
		return nil, false
	}

	c.metrics.request(namespace, resultHit)
	return value, true
}

// Set stores value under key for ttl.
func (c *KeyedCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return invalidKeyError("key", key, "key must not be empty")
	}
	if ttl <= 0 {
		return invalidTTLError(key, ttl)
	}

	return c.write(ctx, "set", key, c.opTimeout, func(opCtx context.Context) error {
		return c.store.Set(opCtx, key, value, ttl)
	})
}

// Delete removes key. Deleting a missing key is not an error.
func (c *KeyedCache) Delete(ctx context.Context, key string) error {
	if key == "" {
		return invalidKeyError("key", key, "key must not be empty")
	}

	return c.write(ctx, "delete", key, c.opTimeout, func(opCtx context.Context) error {
		return c.store.Delete(opCtx, key)
	})
}

// DeleteByPrefix removes every key starting with prefix. It fails with
// UNSUPPORTED_OPERATION when the backend cannot enumerate keys.
func (c *KeyedCache) DeleteByPrefix(ctx context.Context, prefix string) error {
	deleter, err := c.PrefixDeleter()
	if err != nil {
		c.logger.Error("prefix deletion requested on backend without key enumeration",
			zap.String("prefix", prefix),
			zap.String("backend", backendName(c.store)),
		)
		return err
	}
	if prefix == "" {
		return invalidKeyError("prefix", prefix, "prefix must not be empty")
	}

	return c.write(ctx, "delete_prefix", prefix, c.bulkTimeout, func(opCtx context.Context) error {
		return deleter.DeleteByPrefix(opCtx, prefix)
	})
}

// SupportsPrefixDeletion reports whether DeleteByPrefix can succeed.
func (c *KeyedCache) SupportsPrefixDeletion() bool {
	_, ok := c.store.(PrefixDeleter)
	return ok
}

// PrefixDeleter returns the backend's prefix deletion capability, or an
// UNSUPPORTED_OPERATION error. Components that depend on prefix deletion
// call it at construction time.
func (c *KeyedCache) PrefixDeleter() (PrefixDeleter, error) {
	if deleter, ok := c.store.(PrefixDeleter); ok {
		return deleter, nil
	}
	return nil, unsupportedError("DeleteByPrefix", backendName(c.store))
}

// Logger returns the logger the cache reports through.
func (c *KeyedCache) Logger() *zap.Logger {
	return c.logger
}

// Close releases the backend when it holds resources.
func (c *KeyedCache) Close() error {
	if closer, ok := c.store.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func (c *KeyedCache) write(ctx context.Context, op, key string, timeout time.Duration, fn func(context.Context) error) error {
	var err error
	for attempt := 0; attempt <= c.writeRetries; attempt++ {
		if attempt > 0 && !sleepContext(ctx, c.retryBackoff*time.Duration(attempt)) {
			break
		}

		opCtx, cancel := c.bounded(ctx, timeout)
		start := time.Now()
		err = fn(opCtx)
		cancel()
		c.metrics.observe(op, start)

		if err == nil {
			c.metrics.write(op, resultOK)
			return nil
		}
		if cacheinfra.IsBreakerOpen(err) || ctx.Err() != nil {
			break
		}
	}

	c.metrics.write(op, resultError)
	c.logger.Warn("cache write failed",
		zap.String("op", op),
		zap.String("key", key),
		zap.Error(err),
	)
	return unavailableError(op, key, err)
}

func (c *KeyedCache) bounded(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// namespaceOf returns the leading key component, used as a metric label.
func namespaceOf(key string) string {
	if i := strings.IndexByte(key, KeySeparator[0]); i > 0 {
		return key[:i]
	}
	if i := strings.LastIndexByte(key, '_'); i > 0 {
		return key[:i]
	}
	return "other"
}

func backendName(store Store) string {
	if named, ok := store.(interface{ Name() string }); ok {
		return named.Name()
	}
	return fmt.Sprintf("%T", store)
}
