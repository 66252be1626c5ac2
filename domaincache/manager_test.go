package domaincache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goliatone/go-projection-cache/cache"
	"github.com/goliatone/go-projection-cache/pkg/testsupport"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type widget struct {
	ID    string
	Name  string
	Parts []string
}

type widgetView struct {
	ID        string `msgpack:"id"`
	Name      string `msgpack:"name"`
	PartCount int    `msgpack:"part_count"`
}

func projectWidget(w widget) widgetView {
	return widgetView{ID: w.ID, Name: w.Name, PartCount: len(w.Parts)}
}

func newKeyedCache(store cache.Store) *cache.KeyedCache {
	return cache.NewKeyedCache(store, cache.WithWriteRetries(0, 0))
}

func newWidgetManager(t *testing.T, kc *cache.KeyedCache) *Manager[widget, widgetView] {
	t.Helper()
	m, err := NewManager(kc, ManagerConfig[widget, widgetView]{
		Namespace: "widget",
		Project:   projectWidget,
	})
	if err != nil {
		t.Fatalf("NewManager() unexpected error: %v", err)
	}
	return m
}

func TestManager_KeyDeterminism(t *testing.T) {
	m := newWidgetManager(t, newKeyedCache(testsupport.NewMapStore(nil)))

	a, err := m.Key("42")
	if err != nil {
		t.Fatalf("Key() unexpected error: %v", err)
	}
	b, _ := m.Key("42")
	if a != b {
		t.Errorf("Key() not deterministic: %q != %q", a, b)
	}
	if a != "widget:42" {
		t.Errorf("Key() = %q, want %q", a, "widget:42")
	}

	q1, _ := m.Key("42", "a")
	q2, _ := m.Key("42", "b")
	if q1 == q2 || q1 == a {
		t.Errorf("distinct qualifiers must derive distinct keys: %q %q %q", a, q1, q2)
	}

	if _, err := m.Key("4:2"); !cache.IsInvalidKey(err) {
		t.Errorf("expected INVALID_KEY for id with separator, got %v", err)
	}
}

func TestManager_RoundTrip(t *testing.T) {
	ctx := context.Background()
	m := newWidgetManager(t, newKeyedCache(testsupport.NewMapStore(nil)))

	w := widget{ID: "w1", Name: "sprocket", Parts: []string{"a", "b"}}
	if err := m.Cache(ctx, w); err != nil {
		t.Fatalf("Cache() unexpected error: %v", err)
	}

	got, ok, err := m.Get(ctx, "w1")
	if err != nil || !ok {
		t.Fatalf("Get() = %v, %v, %v; want hit", got, ok, err)
	}
	if got != projectWidget(w) {
		t.Errorf("Get() = %+v, want %+v", got, projectWidget(w))
	}
	if len(w.Parts) != 2 {
		t.Error("Cache() must not modify the entity")
	}
}

func TestManager_DefaultAndOverrideTTL(t *testing.T) {
	ctx := context.Background()
	clock := testsupport.NewFakeClock(epoch)
	store := testsupport.NewMapStore(clock)
	m := newWidgetManager(t, newKeyedCache(store))

	if m.TTL() != DefaultTTL {
		t.Fatalf("TTL() = %v, want %v", m.TTL(), DefaultTTL)
	}

	_ = m.Cache(ctx, widget{ID: "a"})
	_ = m.Cache(ctx, widget{ID: "b"}, WithTTL(time.Minute))

	if exp, _ := store.ExpiresAt("widget:a"); !exp.Equal(epoch.Add(DefaultTTL)) {
		t.Errorf("default ttl expiry = %v, want %v", exp, epoch.Add(DefaultTTL))
	}
	if exp, _ := store.ExpiresAt("widget:b"); !exp.Equal(epoch.Add(time.Minute)) {
		t.Errorf("override ttl expiry = %v, want %v", exp, epoch.Add(time.Minute))
	}

	clock.Advance(time.Minute + time.Second)
	if _, ok, _ := m.Get(ctx, "b"); ok {
		t.Error("entry with overridden ttl should have expired")
	}
	if _, ok, _ := m.Get(ctx, "a"); !ok {
		t.Error("entry with default ttl should still be cached")
	}
}

func TestManager_Invalidate(t *testing.T) {
	ctx := context.Background()
	m := newWidgetManager(t, newKeyedCache(testsupport.NewMapStore(nil)))

	_ = m.Cache(ctx, widget{ID: "w1"})
	if err := m.Invalidate(ctx, "w1"); err != nil {
		t.Fatalf("Invalidate() unexpected error: %v", err)
	}
	if _, ok, _ := m.Get(ctx, "w1"); ok {
		t.Error("entry must be gone after Invalidate")
	}
	if err := m.Invalidate(ctx, "w1"); err != nil {
		t.Errorf("second Invalidate() must be a no-op, got %v", err)
	}
}

func TestManager_InvalidateAll(t *testing.T) {
	ctx := context.Background()

	t.Run("prefix capable backend", func(t *testing.T) {
		store := testsupport.NewPrefixMapStore(nil)
		kc := newKeyedCache(store)
		m := newWidgetManager(t, kc)

		_ = m.Cache(ctx, widget{ID: "1"})
		_ = m.Cache(ctx, widget{ID: "2"}, WithQualifiers("x"))
		_ = kc.Set(ctx, "widgets:1", []byte("other namespace"), time.Minute)

		if err := m.InvalidateAll(ctx); err != nil {
			t.Fatalf("InvalidateAll() unexpected error: %v", err)
		}
		keys := store.Keys()
		if len(keys) != 1 || keys[0] != "widgets:1" {
			t.Errorf("remaining keys = %v, want [widgets:1]", keys)
		}
	})

	t.Run("backend without enumeration", func(t *testing.T) {
		m := newWidgetManager(t, newKeyedCache(testsupport.NewMapStore(nil)))
		if err := m.InvalidateAll(ctx); !cache.IsUnsupported(err) {
			t.Errorf("expected UNSUPPORTED_OPERATION, got %v", err)
		}
	})
}

func TestManager_RequirePrefixDeletion(t *testing.T) {
	_, err := NewManager(newKeyedCache(testsupport.NewMapStore(nil)), ManagerConfig[widget, widgetView]{
		Namespace:             "widget",
		Project:               projectWidget,
		RequirePrefixDeletion: true,
	})
	if !cache.IsUnsupported(err) {
		t.Errorf("expected UNSUPPORTED_OPERATION at construction, got %v", err)
	}

	_, err = NewManager(newKeyedCache(testsupport.NewPrefixMapStore(nil)), ManagerConfig[widget, widgetView]{
		Namespace:             "widget",
		Project:               projectWidget,
		RequirePrefixDeletion: true,
	})
	if err != nil {
		t.Errorf("unexpected error with prefix capable backend: %v", err)
	}
}

func TestNewManager_Validation(t *testing.T) {
	kc := newKeyedCache(testsupport.NewMapStore(nil))

	if _, err := NewManager[widget, widgetView](nil, ManagerConfig[widget, widgetView]{Namespace: "w", Project: projectWidget}); err == nil {
		t.Error("expected error for nil keyed cache")
	}
	if _, err := NewManager(kc, ManagerConfig[widget, widgetView]{Namespace: "bad:ns", Project: projectWidget}); !cache.IsInvalidKey(err) {
		t.Errorf("expected INVALID_KEY for namespace, got %v", err)
	}
	if _, err := NewManager(kc, ManagerConfig[widget, widgetView]{Namespace: "widget"}); err == nil {
		t.Error("expected error when project is missing and types differ")
	}
	if _, err := NewProjectionManager[widgetView](kc, "widget_view", 0, nil); err != nil {
		t.Errorf("identity projection should not need a project func: %v", err)
	}
}

func TestManager_ReflectedID(t *testing.T) {
	ctx := context.Background()
	kc := newKeyedCache(testsupport.NewMapStore(nil))

	m, err := NewManager(kc, ManagerConfig[*widget, widgetView]{
		Namespace: "widget",
		Project:   func(w *widget) widgetView { return projectWidget(*w) },
	})
	if err != nil {
		t.Fatalf("NewManager() unexpected error: %v", err)
	}

	if err := m.Cache(ctx, &widget{ID: "r1", Name: "reflected"}); err != nil {
		t.Fatalf("Cache() unexpected error: %v", err)
	}
	if got, ok, _ := m.Get(ctx, "r1"); !ok || got.Name != "reflected" {
		t.Errorf("Get() = %+v, %v", got, ok)
	}

	if err := m.Cache(ctx, nil); err == nil {
		t.Error("expected error for nil record")
	}
}

func TestManager_DegradedReads(t *testing.T) {
	ctx := context.Background()
	flaky := testsupport.NewFlakyStore(testsupport.NewMapStore(nil))
	m := newWidgetManager(t, newKeyedCache(flaky))

	_ = m.Cache(ctx, widget{ID: "w1"})
	flaky.FailGets(true)

	got, ok, err := m.Get(ctx, "w1")
	if err != nil || ok {
		t.Errorf("Get() on failing backend = %+v, %v, %v; want miss without error", got, ok, err)
	}
}

func TestManager_UndecodableEntryIsDropped(t *testing.T) {
	ctx := context.Background()
	store := testsupport.NewMapStore(nil)
	kc := newKeyedCache(store)
	m := newWidgetManager(t, kc)

	_ = kc.Set(ctx, "widget:w1", []byte{0xc1}, time.Minute)

	if _, ok, err := m.Get(ctx, "w1"); ok || err != nil {
		t.Errorf("Get() = %v, %v; want miss", ok, err)
	}
	if store.Has("widget:w1") {
		t.Error("undecodable entry should be deleted")
	}
}

func TestManager_Fetch(t *testing.T) {
	ctx := context.Background()
	m := newWidgetManager(t, newKeyedCache(testsupport.NewMapStore(nil)))

	var loads int32
	load := func(_ context.Context, id string) (widget, error) {
		atomic.AddInt32(&loads, 1)
		return widget{ID: id, Name: "loaded"}, nil
	}

	for i := 0; i < 3; i++ {
		got, err := m.Fetch(ctx, "w1", load)
		if err != nil {
			t.Fatalf("Fetch() unexpected error: %v", err)
		}
		if got.Name != "loaded" {
			t.Errorf("Fetch() = %+v", got)
		}
	}
	if loads != 1 {
		t.Errorf("loader called %d times, want 1", loads)
	}
}

func TestManager_FetchErrorNotCached(t *testing.T) {
	ctx := context.Background()
	store := testsupport.NewMapStore(nil)
	m := newWidgetManager(t, newKeyedCache(store))

	boom := errors.New("primary store down")
	calls := 0
	load := func(_ context.Context, id string) (widget, error) {
		calls++
		return widget{}, boom
	}

	for i := 0; i < 2; i++ {
		if _, err := m.Fetch(ctx, "w1", load); !errors.Is(err, boom) {
			t.Errorf("Fetch() error = %v, want %v", err, boom)
		}
	}
	if calls != 2 {
		t.Errorf("loader called %d times, want 2", calls)
	}
	if len(store.Keys()) != 0 {
		t.Errorf("nothing should be cached, found %v", store.Keys())
	}
}

func TestManager_FetchWithUnavailableBackend(t *testing.T) {
	ctx := context.Background()
	flaky := testsupport.NewFlakyStore(testsupport.NewMapStore(nil))
	flaky.FailWrites(true)
	m := newWidgetManager(t, newKeyedCache(flaky))

	got, err := m.Fetch(ctx, "w1", func(_ context.Context, id string) (widget, error) {
		return widget{ID: id, Name: "fresh"}, nil
	})
	if err != nil {
		t.Fatalf("Fetch() must not fail when the cache write fails: %v", err)
	}
	if got.Name != "fresh" {
		t.Errorf("Fetch() = %+v", got)
	}
}

func TestManager_FetchCollapsesConcurrentMisses(t *testing.T) {
	ctx := context.Background()
	m := newWidgetManager(t, newKeyedCache(testsupport.NewMapStore(nil)))

	var loads int32
	release := make(chan struct{})
	load := func(_ context.Context, id string) (widget, error) {
		atomic.AddInt32(&loads, 1)
		<-release
		return widget{ID: id}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Fetch(ctx, "hot", load); err != nil {
				t.Errorf("Fetch() unexpected error: %v", err)
			}
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := atomic.LoadInt32(&loads); n != 1 {
		t.Errorf("loader called %d times, want 1", n)
	}
}

func TestManager_FetchSurvivesCancelledFirstCaller(t *testing.T) {
	store := testsupport.NewMapStore(nil)
	m := newWidgetManager(t, newKeyedCache(store))

	started := make(chan struct{})
	release := make(chan struct{})
	var loads int32
	load := func(ctx context.Context, id string) (widget, error) {
		if atomic.AddInt32(&loads, 1) == 1 {
			close(started)
		}
		<-release
		if err := ctx.Err(); err != nil {
			return widget{}, err
		}
		return widget{ID: id, Name: "loaded"}, nil
	}

	firstCtx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := m.Fetch(firstCtx, "hot", load)
		firstErr <- err
	}()
	<-started

	secondErr := make(chan error, 1)
	var got widgetView
	go func() {
		var err error
		got, err = m.Fetch(context.Background(), "hot", load)
		secondErr <- err
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Errorf("first Fetch() error = %v, want context.Canceled", err)
	}

	close(release)
	if err := <-secondErr; err != nil {
		t.Fatalf("second Fetch() must not see the first caller's cancellation: %v", err)
	}
	if got.Name != "loaded" {
		t.Errorf("Fetch() = %+v", got)
	}
	if n := atomic.LoadInt32(&loads); n != 1 {
		t.Errorf("loader called %d times, want 1", n)
	}
	if _, ok, _ := m.Get(context.Background(), "hot"); !ok {
		t.Errorf("shared load must still be cached")
	}
}
