package cache

import (
	"context"
	"time"
)

// Store is the byte oriented backend behind a KeyedCache.
// A missing or expired key is reported as (nil, false, nil). A non-nil
// error means the backend itself could not answer.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// PrefixDeleter is implemented by backends that can enumerate their keys.
// Backends that cannot must not implement it; KeyedCache reports the
// missing capability instead of silently deleting nothing.
type PrefixDeleter interface {
	DeleteByPrefix(ctx context.Context, prefix string) error
}

// Clock supplies the current time to expiry checks.
type Clock interface {
	Now() time.Time
}
