// Package cache provides the keyed byte cache, key derivation and result
// memoization that the domain caches are built on.
//
// # Overview
//
// The package exports three building blocks:
//
//   - KeyedCache: string keyed values with a per entry ttl over a pluggable Store
//   - DeriveKey and KeyPrefix: collision free keys of the form prefix:id[:qualifier...]
//   - Memoize: wraps a function so its results are stored under a hash of its arguments
//
// The backing Store is chosen by Config. The in-memory backend is a sturdyc
// client with per entry expiry; the redis backend uses go-redis and is
// guarded by a circuit breaker.
//
// # Basic Usage
//
//	kc, err := cache.New(cache.DefaultConfig(), cache.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//	defer kc.Close()
//
//	key, err := cache.DeriveKey("course", courseID)
//	if err != nil {
//		return err
//	}
//	if err := kc.Set(ctx, key, payload, 5*time.Minute); err != nil {
//		logger.Warn("cache write failed", zap.Error(err))
//	}
//	payload, ok := kc.Get(ctx, key)
//
// # Failure Behavior
//
// Reads never return errors. A backend failure or timeout is logged and
// reported as a miss, so callers fall back to the primary store. Writes and
// deletes are retried with backoff and then return an error matching
// IsUnavailable. Prefix deletion returns an error matching IsUnsupported on
// backends that cannot enumerate keys.
//
// # Memoization
//
//	topCourses := cache.Memoize(kc, cache.ResultOptions{Name: "top_courses", Timeout: time.Minute},
//		func(ctx context.Context, args ...any) ([]string, error) {
//			return store.TopCourses(ctx, args[0].(string))
//		})
//
// Arguments are reduced to a canonical form by a KeySerializer and hashed
// with sha256. Basic values carry their type and maps are sorted. Values
// that implement encoding.TextMarshaler are reduced to their text even behind
// a pointer, so equal arguments produce equal keys across processes and
// distinct ones do not collide. Use Named for keyword style arguments.
// Errors are never stored.
//
// Concurrent misses on one key share a single invocation through
// LoadShared. It runs detached from the cancellation of the caller that
// started it and is bounded by ResultOptions.LoadTimeout.
package cache
