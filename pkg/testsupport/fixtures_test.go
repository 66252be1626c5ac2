package testsupport

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFixtureJSON(t *testing.T) {
	testData := map[string]any{
		"namespace": "course",
		"ttl":       300,
	}
	jsonData, err := json.Marshal(testData)
	if err != nil {
		t.Fatalf("failed to marshal test data: %v", err)
	}

	path := WriteTempFile(t, "fixture.json", jsonData)

	var result map[string]any
	LoadFixtureJSON(t, path, &result)

	if result["namespace"] != "course" {
		t.Errorf("expected namespace=course, got %v", result["namespace"])
	}
	if result["ttl"] != float64(300) {
		t.Errorf("expected ttl=300, got %v", result["ttl"])
	}
}

func TestWriteTempFile(t *testing.T) {
	path := WriteTempFile(t, "cache.yaml", []byte("backend: memory\n"))

	if filepath.Base(path) != "cache.yaml" {
		t.Errorf("expected file name cache.yaml, got %s", filepath.Base(path))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read temp file: %v", err)
	}
	if string(data) != "backend: memory\n" {
		t.Errorf("unexpected content %q", data)
	}
}

func TestFixturePath(t *testing.T) {
	if got := FixturePath("courses.json"); got != filepath.Join("testdata", "courses.json") {
		t.Errorf("unexpected fixture path %s", got)
	}
}

func TestFakeClock(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewFakeClock(start)

	clock.Advance(90 * time.Second)
	if want := start.Add(90 * time.Second); !clock.Now().Equal(want) {
		t.Errorf("expected %v, got %v", want, clock.Now())
	}

	clock.Set(start)
	if !clock.Now().Equal(start) {
		t.Errorf("expected clock reset to %v, got %v", start, clock.Now())
	}
}

func TestMapStore_Expiry(t *testing.T) {
	ctx := context.Background()
	clock := NewFakeClock(time.Unix(0, 0))
	store := NewMapStore(clock)

	if err := store.Set(ctx, "course:1", []byte("v"), time.Minute); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	clock.Advance(59 * time.Second)
	if _, ok, _ := store.Get(ctx, "course:1"); !ok {
		t.Error("expected entry before ttl elapsed")
	}

	clock.Advance(2 * time.Second)
	if _, ok, _ := store.Get(ctx, "course:1"); ok {
		t.Error("expected entry to expire after ttl")
	}
}

func TestPrefixMapStore_DeleteByPrefix(t *testing.T) {
	ctx := context.Background()
	store := NewPrefixMapStore(nil)

	for _, key := range []string{"course:1", "course:2", "user:1"} {
		if err := store.Set(ctx, key, []byte("v"), time.Minute); err != nil {
			t.Fatalf("set %s failed: %v", key, err)
		}
	}

	if err := store.DeleteByPrefix(ctx, "course:"); err != nil {
		t.Fatalf("delete by prefix failed: %v", err)
	}

	keys := store.Keys()
	if len(keys) != 1 || keys[0] != "user:1" {
		t.Errorf("expected only user:1 to remain, got %v", keys)
	}
}

func TestFlakyStore_FailNextWrites(t *testing.T) {
	ctx := context.Background()
	store := NewFlakyStore(NewMapStore(nil))
	store.FailNextWrites(1)

	if err := store.Set(ctx, "k", []byte("v"), time.Minute); !errors.Is(err, ErrBackendDown) {
		t.Fatalf("expected ErrBackendDown, got %v", err)
	}
	if err := store.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("expected second write to pass, got %v", err)
	}
	if store.WriteAttempts != 2 {
		t.Errorf("expected 2 write attempts, got %d", store.WriteAttempts)
	}

	store.FailGets(true)
	if _, _, err := store.Get(ctx, "k"); !errors.Is(err, ErrBackendDown) {
		t.Errorf("expected ErrBackendDown on get, got %v", err)
	}
}
