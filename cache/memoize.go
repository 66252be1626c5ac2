package cache

import (
	"context"
	"reflect"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultResultTimeout is the ttl of memoized results when none is given.
const DefaultResultTimeout = 300 * time.Second

// Named carries keyword style arguments. Its entries are hashed in sorted
// key order, so the order they were written in does not matter.
type Named map[string]any

// ResultFunc is a function whose results can be memoized.
type ResultFunc[R any] func(ctx context.Context, args ...any) (R, error)

// ResultOptions configures Memoize.
type ResultOptions struct {
	// Timeout is the ttl of stored results.
	Timeout time.Duration
	// KeyPrefix is prepended to every key.
	KeyPrefix string
	// Name identifies the function in keys. It defaults to the symbol name,
	// which changes when the function is renamed or moved.
	Name string
	// Codec encodes results. Defaults to DefaultCodec.
	Codec Codec
	// Serializer builds the canonical argument form that is hashed.
	Serializer KeySerializer
	// LoadTimeout bounds one invocation of the wrapped function. Defaults
	// to DefaultLoadTimeout.
	LoadTimeout time.Duration
}

// Memoize wraps fn so that results are stored in kc under
// KeyPrefix:Name:sha256(args). Errors are returned to the caller and never
// stored. Concurrent calls with equal arguments share one invocation, which
// is not cancelled when the caller that started it goes away.
//
// fn must be free of side effects that callers rely on: a hit skips the
// call entirely.
func Memoize[R any](kc *KeyedCache, opts ResultOptions, fn ResultFunc[R]) ResultFunc[R] {
	name := opts.Name
	if name == "" {
		name = funcName(reflect.ValueOf(fn))
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultResultTimeout
	}
	codec := opts.Codec
	if codec == nil {
		codec = DefaultCodec()
	}
	serializer := opts.Serializer
	if serializer == nil {
		serializer = NewDefaultKeySerializer()
	}

	var group singleflight.Group

	return func(ctx context.Context, args ...any) (R, error) {
		key := resultKey(opts.KeyPrefix, name, hashCanonical(serializer.SerializeKey(name, args...)))

		if data, ok := kc.Get(ctx, key); ok {
			var cached R
			err := codec.Unmarshal(data, &cached)
			if err == nil {
				return cached, nil
			}
			kc.logger.Warn("dropping undecodable memoized result",
				zap.String("key", key),
				zap.Error(err),
			)
			_ = kc.Delete(ctx, key)
		}

		return LoadShared(ctx, &group, key, opts.LoadTimeout, func(ctx context.Context) (R, error) {
			result, err := fn(ctx, args...)
			if err != nil {
				return result, err
			}

			data, encErr := codec.Marshal(result)
			if encErr != nil {
				kc.logger.Warn("memoized result not stored",
					zap.String("key", key),
					zap.Error(NewCodecError(key, encErr)),
				)
				return result, nil
			}
			if setErr := kc.Set(ctx, key, data, timeout); setErr != nil {
				kc.logger.Debug("memoized result not stored",
					zap.String("key", key),
					zap.Error(setErr),
				)
			}
			return result, nil
		})
	}
}

func resultKey(prefix, name, digest string) string {
	parts := make([]string, 0, 3)
	if prefix != "" {
		parts = append(parts, prefix)
	}
	parts = append(parts, name, digest)
	return strings.Join(parts, KeySeparator)
}
