package cacheinfra

import (
	"context"
	"strings"
	"time"

	"github.com/viccon/sturdyc"
	"go.uber.org/zap"
)

// entry carries its own deadline because sturdyc applies a single ttl to
// the whole client.
type entry struct {
	value     []byte
	expiresAt time.Time
}

// SturdycStore is the in-process backend. It can enumerate its keys and so
// supports prefix deletion.
type SturdycStore struct {
	client *sturdyc.Client[entry]
	clock  Clock
	maxTTL time.Duration
	logger *zap.Logger
}

// NewSturdycStore creates the memory backend.
// It validates the configuration and initializes a sturdyc client with the provided settings.
//
// The constructor translates Config parameters to sturdyc initialization:
// - Capacity, NumShards, MaxTTL, EvictionPercentage are passed to sturdyc.New()
// - Other options are applied via ToSturdycOptions()
func NewSturdycStore(cfg Config, opts ...StoreOption) (*SturdycStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := applyStoreOptions(opts)

	client := sturdyc.New[entry](
		cfg.Capacity,
		cfg.NumShards,
		cfg.MaxTTL,
		cfg.EvictionPercentage,
		cfg.ToSturdycOptions()...,
	)

	return &SturdycStore{
		client: client,
		clock:  o.clock,
		maxTTL: cfg.MaxTTL,
		logger: o.logger,
	}, nil
}

// Name identifies the backend in logs and errors.
func (s *SturdycStore) Name() string { return BackendMemory }

// Get returns a copy of the stored bytes. Expired entries are dropped.
func (s *SturdycStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	e, ok := s.client.Get(key)
	if !ok {
		return nil, false, nil
	}
	if !s.clock.Now().Before(e.expiresAt) {
		s.client.Delete(key)
		return nil, false, nil
	}

	return append([]byte(nil), e.value...), true, nil
}

// Set stores value until now+ttl. Ttls above MaxTTL are clamped.
func (s *SturdycStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if ttl > s.maxTTL {
		s.logger.Warn("ttl exceeds memory backend limit, clamping",
			zap.String("key", key),
			zap.Duration("ttl", ttl),
			zap.Duration("max_ttl", s.maxTTL),
		)
		ttl = s.maxTTL
	}

	s.client.Set(key, entry{
		value:     append([]byte(nil), value...),
		expiresAt: s.clock.Now().Add(ttl),
	})
	return nil
}

// Delete removes a single entry.
func (s *SturdycStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.client.Delete(key)
	return nil
}

// DeleteByPrefix removes all entries whose keys start with prefix.
func (s *SturdycStore) DeleteByPrefix(ctx context.Context, prefix string) error {
	removed := 0
	for _, key := range s.client.ScanKeys() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if strings.HasPrefix(key, prefix) {
			s.client.Delete(key)
			removed++
		}
	}

	s.logger.Debug("deleted keys by prefix",
		zap.String("prefix", prefix),
		zap.Int("removed", removed),
	)
	return nil
}

// Size returns the number of stored entries, expired or not.
func (s *SturdycStore) Size() int {
	return s.client.Size()
}
