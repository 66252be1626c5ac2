package cacheinfra

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// KVStore is the single key contract every backend satisfies.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type prefixDeleter interface {
	DeleteByPrefix(ctx context.Context, prefix string) error
}

// BreakerStore fails fast while the wrapped backend keeps erroring.
type BreakerStore struct {
	inner  KVStore
	cb     *gobreaker.CircuitBreaker
	logger *zap.Logger
}

// breakerPrefixStore is returned when the wrapped store can delete by
// prefix, so the capability survives wrapping.
type breakerPrefixStore struct {
	*BreakerStore
	deleter prefixDeleter
}

// NewBreakerStore wraps inner with a circuit breaker.
func NewBreakerStore(inner KVStore, cfg BreakerConfig, opts ...StoreOption) KVStore {
	o := applyStoreOptions(opts)
	name := "cache"
	if named, ok := inner.(interface{ Name() string }); ok {
		name = named.Name()
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			o.logger.Warn("cache circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	}

	b := &BreakerStore{
		inner:  inner,
		cb:     gobreaker.NewCircuitBreaker(settings),
		logger: o.logger,
	}
	if deleter, ok := inner.(prefixDeleter); ok {
		return &breakerPrefixStore{BreakerStore: b, deleter: deleter}
	}
	return b
}

// Name reports the wrapped backend's name.
func (b *BreakerStore) Name() string { return b.cb.Name() }

// State exposes the breaker state.
func (b *BreakerStore) State() gobreaker.State { return b.cb.State() }

type getResult struct {
	value []byte
	found bool
}

func (b *BreakerStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		value, found, err := b.inner.Get(ctx, key)
		return getResult{value: value, found: found}, err
	})
	if err != nil {
		return nil, false, err
	}
	res := out.(getResult)
	return res.value, res.found, nil
}

func (b *BreakerStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.inner.Set(ctx, key, value, ttl)
	})
	return err
}

func (b *BreakerStore) Delete(ctx context.Context, key string) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.inner.Delete(ctx, key)
	})
	return err
}

// Close closes the wrapped store when it holds resources.
func (b *BreakerStore) Close() error {
	if closer, ok := b.inner.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func (b *breakerPrefixStore) DeleteByPrefix(ctx context.Context, prefix string) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.deleter.DeleteByPrefix(ctx, prefix)
	})
	return err
}

// IsBreakerOpen reports whether err was returned because the breaker
// rejected the call.
func IsBreakerOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
