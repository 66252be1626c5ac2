package cacheinfra

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultScanCount int64 = 500

// RedisStore is the shared backend. Prefix deletion walks the keyspace with
// SCAN, visiting every master when the client is a cluster client.
type RedisStore struct {
	client    redis.UniversalClient
	scanCount int64
	logger    *zap.Logger
}

// NewRedisClient builds a client from cfg.
func NewRedisClient(cfg RedisConfig) redis.UniversalClient {
	return redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        []string{cfg.Addr},
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
}

// NewRedisStore wraps client. scanCount <= 0 selects the default SCAN hint.
func NewRedisStore(client redis.UniversalClient, scanCount int64, opts ...StoreOption) *RedisStore {
	if scanCount <= 0 {
		scanCount = defaultScanCount
	}
	o := applyStoreOptions(opts)
	return &RedisStore{client: client, scanCount: scanCount, logger: o.logger}
}

// Name identifies the backend in logs and errors.
func (s *RedisStore) Name() string { return BackendRedis }

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return value, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

// DeleteByPrefix removes every key matching prefix*. Glob metacharacters in
// prefix are escaped.
func (s *RedisStore) DeleteByPrefix(ctx context.Context, prefix string) error {
	pattern := escapeGlob(prefix) + "*"

	if cluster, ok := s.client.(*redis.ClusterClient); ok {
		return cluster.ForEachMaster(ctx, func(ctx context.Context, node *redis.Client) error {
			return s.deleteMatching(ctx, node, pattern)
		})
	}
	return s.deleteMatching(ctx, s.client, pattern)
}

func (s *RedisStore) deleteMatching(ctx context.Context, client redis.Cmdable, pattern string) error {
	var (
		batch   = make([]string, 0, s.scanCount)
		removed int
	)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		// single key DELs keep cluster nodes free of CROSSSLOT errors
		pipe := client.Pipeline()
		for _, key := range batch {
			pipe.Del(ctx, key)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
		removed += len(batch)
		batch = batch[:0]
		return nil
	}

	iter := client.Scan(ctx, 0, pattern, s.scanCount).Iterator()
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if int64(len(batch)) >= s.scanCount {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if err := flush(); err != nil {
		return err
	}

	s.logger.Debug("deleted keys by pattern",
		zap.String("pattern", pattern),
		zap.Int("removed", removed),
	)
	return nil
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func escapeGlob(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
