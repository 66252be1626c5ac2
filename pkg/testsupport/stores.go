package testsupport

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
)

// ErrBackendDown is returned by FlakyStore while a failure is armed.
var ErrBackendDown = errors.New("testsupport: backend down")

type clock interface {
	Now() time.Time
}

type mapEntry struct {
	value     []byte
	expiresAt time.Time
}

// MapStore is an in-memory backend that cannot enumerate keys, like a
// memcached deployment. It does not implement DeleteByPrefix.
type MapStore struct {
	mu      sync.Mutex
	clock   clock
	entries map[string]mapEntry

	GetCalls    int
	SetCalls    int
	DeleteCalls int
}

// NewMapStore creates a store whose expiry is driven by c. A nil c uses
// the wall clock.
func NewMapStore(c clock) *MapStore {
	if c == nil {
		c = NewFakeClock(time.Now())
	}
	return &MapStore{clock: c, entries: make(map[string]mapEntry)}
}

func (s *MapStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.GetCalls++

	e, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !s.clock.Now().Before(e.expiresAt) {
		delete(s.entries, key)
		return nil, false, nil
	}
	return append([]byte(nil), e.value...), true, nil
}

func (s *MapStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SetCalls++

	s.entries[key] = mapEntry{
		value:     append([]byte(nil), value...),
		expiresAt: s.clock.Now().Add(ttl),
	}
	return nil
}

func (s *MapStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.DeleteCalls++

	delete(s.entries, key)
	return nil
}

// Has reports whether key is stored and unexpired.
func (s *MapStore) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	return ok && s.clock.Now().Before(e.expiresAt)
}

// Keys returns the stored keys in sorted order.
func (s *MapStore) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ExpiresAt returns the deadline recorded for key.
func (s *MapStore) ExpiresAt(key string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	return e.expiresAt, ok
}

// PrefixMapStore is a MapStore that can also delete by prefix.
type PrefixMapStore struct {
	*MapStore
	PrefixCalls int
}

// NewPrefixMapStore creates a MapStore with prefix deletion.
func NewPrefixMapStore(c clock) *PrefixMapStore {
	return &PrefixMapStore{MapStore: NewMapStore(c)}
}

func (s *PrefixMapStore) DeleteByPrefix(_ context.Context, prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PrefixCalls++

	for k := range s.entries {
		if strings.HasPrefix(k, prefix) {
			delete(s.entries, k)
		}
	}
	return nil
}

type kvStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// FlakyStore wraps a store and fails selected operations on demand.
type FlakyStore struct {
	inner kvStore

	mu            sync.Mutex
	failGets      bool
	failWrites    bool
	writeFailures int

	GetAttempts   int
	WriteAttempts int
}

// NewFlakyStore wraps inner.
func NewFlakyStore(inner kvStore) *FlakyStore {
	return &FlakyStore{inner: inner}
}

// FailGets makes every Get return ErrBackendDown while on is true.
func (s *FlakyStore) FailGets(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failGets = on
}

// FailWrites makes every Set and Delete fail while on is true.
func (s *FlakyStore) FailWrites(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWrites = on
}

// FailNextWrites makes the next n writes fail.
func (s *FlakyStore) FailNextWrites(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeFailures = n
}

func (s *FlakyStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	s.GetAttempts++
	fail := s.failGets
	s.mu.Unlock()

	if fail {
		return nil, false, ErrBackendDown
	}
	return s.inner.Get(ctx, key)
}

func (s *FlakyStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.writeGate(); err != nil {
		return err
	}
	return s.inner.Set(ctx, key, value, ttl)
}

func (s *FlakyStore) Delete(ctx context.Context, key string) error {
	if err := s.writeGate(); err != nil {
		return err
	}
	return s.inner.Delete(ctx, key)
}

func (s *FlakyStore) writeGate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.WriteAttempts++

	if s.failWrites {
		return ErrBackendDown
	}
	if s.writeFailures > 0 {
		s.writeFailures--
		return ErrBackendDown
	}
	return nil
}
