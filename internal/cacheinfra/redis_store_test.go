package cacheinfra

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedisStore(t *testing.T, scanCount int64) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(client, scanCount)
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestRedisStore_GetSet(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedisStore(t, 0)

	if err := store.Set(ctx, "tenant_abc", []byte("payload"), time.Minute); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	got, ok, err := store.Get(ctx, "tenant_abc")
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if string(got) != "payload" {
		t.Errorf("expected payload, got %q", got)
	}

	if ttl := mr.TTL("tenant_abc"); ttl != time.Minute {
		t.Errorf("expected ttl of 1m, got %v", ttl)
	}

	_, ok, err = store.Get(ctx, "tenant_missing")
	if err != nil {
		t.Errorf("a missing key must not be an error, got %v", err)
	}
	if ok {
		t.Error("expected miss")
	}
}

func TestRedisStore_Expiry(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedisStore(t, 0)

	if err := store.Set(ctx, "course:1", []byte("v"), 300*time.Second); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	mr.FastForward(299 * time.Second)
	if _, ok, _ := store.Get(ctx, "course:1"); !ok {
		t.Error("expected entry before expiry")
	}

	mr.FastForward(2 * time.Second)
	if _, ok, _ := store.Get(ctx, "course:1"); ok {
		t.Error("expected entry to expire")
	}
}

func TestRedisStore_DeleteByPrefix(t *testing.T) {
	ctx := context.Background()
	// a small scan count forces several flushes
	store, mr := newTestRedisStore(t, 2)

	keep := []string{"course:1", "analytics:t2:users:7d", "analytics:t1x:users:7d"}
	drop := []string{"analytics:t1:users:7d", "analytics:t1:revenue:7d", "analytics:t1:signups:30d", "analytics:t1:logins:1d", "analytics:t1:churn:90d"}

	for _, key := range append(append([]string{}, keep...), drop...) {
		if err := store.Set(ctx, key, []byte("v"), time.Minute); err != nil {
			t.Fatalf("set %s failed: %v", key, err)
		}
	}

	if err := store.DeleteByPrefix(ctx, "analytics:t1:"); err != nil {
		t.Fatalf("delete by prefix failed: %v", err)
	}

	for _, key := range drop {
		if mr.Exists(key) {
			t.Errorf("expected %s to be deleted", key)
		}
	}
	for _, key := range keep {
		if !mr.Exists(key) {
			t.Errorf("expected %s to remain", key)
		}
	}
}

func TestRedisStore_DeleteByPrefixEscapesGlob(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedisStore(t, 0)

	_ = store.Set(ctx, "reports:a*:1", []byte("v"), time.Minute)
	_ = store.Set(ctx, "reports:ab:1", []byte("v"), time.Minute)

	if err := store.DeleteByPrefix(ctx, "reports:a*"); err != nil {
		t.Fatalf("delete by prefix failed: %v", err)
	}

	if mr.Exists("reports:a*:1") {
		t.Error("expected literal match to be deleted")
	}
	if !mr.Exists("reports:ab:1") {
		t.Error("glob metacharacters in the prefix must be matched literally")
	}
}

func TestRedisStore_BackendErrors(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedisStore(t, 0)

	mr.SetError("ERR simulated outage")
	if _, _, err := store.Get(ctx, "course:1"); err == nil {
		t.Error("expected backend error on get")
	}
	if err := store.Set(ctx, "course:1", []byte("v"), time.Minute); err == nil {
		t.Error("expected backend error on set")
	}

	mr.SetError("")
	if err := store.Ping(ctx); err != nil {
		t.Errorf("expected ping to succeed, got %v", err)
	}
}

func TestEscapeGlob(t *testing.T) {
	tests := map[string]string{
		"course:":    "course:",
		"a*b":        `a\*b`,
		"q?[x]":      `q\?\[x\]`,
		`back\slash`: `back\\slash`,
	}
	for in, want := range tests {
		if got := escapeGlob(in); got != want {
			t.Errorf("escapeGlob(%q) = %q, want %q", in, got, want)
		}
	}
}
