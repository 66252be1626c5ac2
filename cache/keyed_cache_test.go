package cache

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-projection-cache/pkg/testsupport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestCache(t *testing.T, store Store, opts ...Option) *KeyedCache {
	t.Helper()
	base := []Option{WithWriteRetries(2, 0)}
	return NewKeyedCache(store, append(base, opts...)...)
}

func TestKeyedCache_RoundTrip(t *testing.T) {
	ctx := context.Background()
	kc := newTestCache(t, testsupport.NewMapStore(testsupport.NewFakeClock(epoch)))

	require.NoError(t, kc.Set(ctx, "course:42", []byte("payload"), time.Minute))

	got, ok := kc.Get(ctx, "course:42")
	require.True(t, ok)
	assert.Equal(t, []byte("payload"), got)

	_, ok = kc.Get(ctx, "course:43")
	assert.False(t, ok)
}

func TestKeyedCache_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	clock := testsupport.NewFakeClock(epoch)
	kc := newTestCache(t, testsupport.NewMapStore(clock))

	ttl := 300 * time.Second
	require.NoError(t, kc.Set(ctx, "user_profile:7", []byte("v"), ttl))

	clock.Advance(ttl - time.Millisecond)
	_, ok := kc.Get(ctx, "user_profile:7")
	assert.True(t, ok, "entry must be present just before ttl elapses")

	clock.Advance(2 * time.Millisecond)
	_, ok = kc.Get(ctx, "user_profile:7")
	assert.False(t, ok, "entry must be absent just after ttl elapses")
}

func TestKeyedCache_Delete(t *testing.T) {
	ctx := context.Background()
	kc := newTestCache(t, testsupport.NewMapStore(nil))

	require.NoError(t, kc.Set(ctx, "course:1", []byte("v"), time.Minute))
	require.NoError(t, kc.Delete(ctx, "course:1"))

	_, ok := kc.Get(ctx, "course:1")
	assert.False(t, ok)

	assert.NoError(t, kc.Delete(ctx, "course:missing"), "deleting a missing key is not an error")
}

func TestKeyedCache_InvalidInput(t *testing.T) {
	ctx := context.Background()
	kc := newTestCache(t, testsupport.NewMapStore(nil))

	err := kc.Set(ctx, "", []byte("v"), time.Minute)
	assert.True(t, IsInvalidKey(err), "expected INVALID_KEY, got %v", err)

	err = kc.Set(ctx, "course:1", []byte("v"), 0)
	assert.True(t, IsInvalidTTL(err), "expected INVALID_TTL, got %v", err)

	err = kc.Set(ctx, "course:1", []byte("v"), -time.Second)
	assert.True(t, IsInvalidTTL(err))
}

func TestKeyedCache_DeleteByPrefix(t *testing.T) {
	ctx := context.Background()
	store := testsupport.NewPrefixMapStore(nil)
	kc := newTestCache(t, store)

	keys := []string{"course:1", "course:2", "course_progress:1:2", "user_profile:1"}
	for _, key := range keys {
		require.NoError(t, kc.Set(ctx, key, []byte(key), time.Minute))
	}

	require.True(t, kc.SupportsPrefixDeletion())
	require.NoError(t, kc.DeleteByPrefix(ctx, "course:"))

	for _, key := range []string{"course:1", "course:2"} {
		_, ok := kc.Get(ctx, key)
		assert.False(t, ok, "%s should be gone", key)
	}
	for _, key := range []string{"course_progress:1:2", "user_profile:1"} {
		_, ok := kc.Get(ctx, key)
		assert.True(t, ok, "%s should survive", key)
	}
}

func TestKeyedCache_DeleteByPrefixUnsupported(t *testing.T) {
	ctx := context.Background()
	store := testsupport.NewMapStore(nil)
	kc := newTestCache(t, store)

	require.NoError(t, kc.Set(ctx, "course:1", []byte("v"), time.Minute))

	assert.False(t, kc.SupportsPrefixDeletion())

	err := kc.DeleteByPrefix(ctx, "course:")
	require.Error(t, err)
	assert.True(t, IsUnsupported(err), "expected UNSUPPORTED_OPERATION, got %v", err)

	_, err = kc.PrefixDeleter()
	assert.True(t, IsUnsupported(err))

	_, ok := kc.Get(ctx, "course:1")
	assert.True(t, ok, "failed prefix deletion must not touch entries")
}

func TestKeyedCache_DegradedReadsAreMisses(t *testing.T) {
	ctx := context.Background()
	inner := testsupport.NewMapStore(nil)
	flaky := testsupport.NewFlakyStore(inner)
	kc := newTestCache(t, flaky)

	require.NoError(t, kc.Set(ctx, "course:1", []byte("v"), time.Minute))

	flaky.FailGets(true)
	value, ok := kc.Get(ctx, "course:1")
	assert.False(t, ok)
	assert.Nil(t, value)

	flaky.FailGets(false)
	_, ok = kc.Get(ctx, "course:1")
	assert.True(t, ok)
}

func TestKeyedCache_WriteRetries(t *testing.T) {
	ctx := context.Background()

	t.Run("recovers within retry budget", func(t *testing.T) {
		flaky := testsupport.NewFlakyStore(testsupport.NewMapStore(nil))
		kc := newTestCache(t, flaky)
		flaky.FailNextWrites(2)

		require.NoError(t, kc.Set(ctx, "course:1", []byte("v"), time.Minute))
		assert.Equal(t, 3, flaky.WriteAttempts)
	})

	t.Run("surfaces unavailable after retries", func(t *testing.T) {
		flaky := testsupport.NewFlakyStore(testsupport.NewMapStore(nil))
		kc := newTestCache(t, flaky)
		flaky.FailWrites(true)

		err := kc.Set(ctx, "course:1", []byte("v"), time.Minute)
		require.Error(t, err)
		assert.True(t, IsUnavailable(err), "expected CACHE_UNAVAILABLE, got %v", err)
		assert.Equal(t, 3, flaky.WriteAttempts)

		err = kc.Delete(ctx, "course:1")
		assert.True(t, IsUnavailable(err))
	})

	t.Run("cancelled context stops retrying", func(t *testing.T) {
		flaky := testsupport.NewFlakyStore(testsupport.NewMapStore(nil))
		kc := newTestCache(t, flaky, WithWriteRetries(5, time.Hour))
		flaky.FailWrites(true)

		cctx, cancel := context.WithCancel(ctx)
		cancel()

		err := kc.Set(cctx, "course:1", []byte("v"), time.Minute)
		assert.True(t, IsUnavailable(err))
		assert.Equal(t, 1, flaky.WriteAttempts)
	})
}

func TestKeyedCache_Metrics(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	metrics, err := NewMetrics(reg)
	require.NoError(t, err)

	kc := newTestCache(t, testsupport.NewMapStore(nil), WithMetrics(metrics))

	require.NoError(t, kc.Set(ctx, "course:1", []byte("v"), time.Minute))
	kc.Get(ctx, "course:1")
	kc.Get(ctx, "course:2")
	kc.Get(ctx, "tenant_subdomain_acme")

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.requests.WithLabelValues("course", resultHit)))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.requests.WithLabelValues("course", resultMiss)))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.requests.WithLabelValues("tenant_subdomain", resultMiss)))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.writes.WithLabelValues("set", resultOK)))

	_, err = NewMetrics(reg)
	assert.Error(t, err, "registering twice must fail")
}

func TestNewMetrics_NilRegisterer(t *testing.T) {
	metrics, err := NewMetrics(nil)
	require.NoError(t, err)
	assert.Nil(t, metrics)

	// nil metrics must be safe to use
	metrics.request("course", resultHit)
	metrics.write("set", resultOK)
	metrics.observe("get", time.Now())
}

func TestNamespaceOf(t *testing.T) {
	tests := map[string]string{
		"course:1":               "course",
		"course_progress:1:2":    "course_progress",
		"tenant_8f1c":            "tenant",
		"tenant_subdomain_acme":  "tenant_subdomain",
		"reports:compute:abcdef": "reports",
		"plain":                  "other",
	}
	for key, want := range tests {
		if got := namespaceOf(key); got != want {
			t.Errorf("namespaceOf(%q) = %q, want %q", key, got, want)
		}
	}
}
