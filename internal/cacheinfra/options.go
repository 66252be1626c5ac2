package cacheinfra

import (
	"time"

	"go.uber.org/zap"
)

// Clock supplies the time used for expiry checks.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type storeOptions struct {
	clock  Clock
	logger *zap.Logger
}

// StoreOption configures a backend.
type StoreOption func(*storeOptions)

// WithClock overrides the wall clock used by the memory backend.
func WithClock(clock Clock) StoreOption {
	return func(o *storeOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithLogger sets the backend logger.
func WithLogger(logger *zap.Logger) StoreOption {
	return func(o *storeOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func applyStoreOptions(opts []StoreOption) storeOptions {
	o := storeOptions{clock: systemClock{}, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
