package domaincache

import (
	"context"
	"fmt"
	"reflect"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-projection-cache/cache"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultTTL is used by managers configured without a ttl.
const DefaultTTL = 300 * time.Second

// ManagerConfig describes one cached entity kind.
type ManagerConfig[E any, P any] struct {
	// Namespace is the static key prefix, e.g. "course".
	Namespace string
	// DefaultTTL applies when a call does not override it.
	DefaultTTL time.Duration
	// ID extracts the key id from an entity. When nil an ID field is read
	// through reflection.
	ID func(E) string
	// Project builds the cached projection. It must not modify the entity.
	// It may be nil only when E and P are the same type.
	Project func(E) P
	Codec   cache.Codec
	Logger  *zap.Logger
	// LoadTimeout bounds a shared load on a miss. Defaults to
	// cache.DefaultLoadTimeout.
	LoadTimeout time.Duration
	// RequirePrefixDeletion makes construction fail on backends that cannot
	// delete by prefix.
	RequirePrefixDeletion bool
}

// Manager caches projections of E under namespace:id[:qualifier...].
type Manager[E any, P any] struct {
	kc        *cache.KeyedCache
	namespace string
	ttl       time.Duration
	idOf      func(E) (string, error)
	project   func(E) P
	codec     cache.Codec
	logger    *zap.Logger
	group     singleflight.Group

	loadTimeout time.Duration
}

// NewManager validates cfg and returns a manager writing through kc.
func NewManager[E any, P any](kc *cache.KeyedCache, cfg ManagerConfig[E, P]) (*Manager[E, P], error) {
	if kc == nil {
		return nil, goerrors.New("keyed cache is required", goerrors.CategoryBadInput)
	}
	if err := cache.ValidateKeyPart("namespace", cfg.Namespace); err != nil {
		return nil, err
	}
	if cfg.RequirePrefixDeletion {
		if _, err := kc.PrefixDeleter(); err != nil {
			return nil, err
		}
	}

	m := &Manager[E, P]{
		kc:        kc,
		namespace: cfg.Namespace,
		ttl:       cfg.DefaultTTL,
		project:   cfg.Project,
		codec:     cfg.Codec,
		logger:    cfg.Logger,

		loadTimeout: cfg.LoadTimeout,
	}
	if m.ttl <= 0 {
		m.ttl = DefaultTTL
	}
	if m.codec == nil {
		m.codec = cache.DefaultCodec()
	}
	if m.logger == nil {
		m.logger = kc.Logger()
	}
	m.logger = m.logger.With(zap.String("namespace", cfg.Namespace))

	if cfg.ID != nil {
		m.idOf = func(e E) (string, error) { return cfg.ID(e), nil }
	} else {
		m.idOf = extractID[E]
	}

	if m.project == nil {
		var zero E
		if _, ok := any(zero).(P); !ok {
			return nil, goerrors.New(
				fmt.Sprintf("project function is required for namespace %q", cfg.Namespace),
				goerrors.CategoryBadInput,
			)
		}
		m.project = func(e E) P {
			p, _ := any(e).(P)
			return p
		}
	}

	return m, nil
}

// NewProjectionManager returns a manager for values that are cached as is.
func NewProjectionManager[P any](kc *cache.KeyedCache, namespace string, ttl time.Duration, logger *zap.Logger) (*Manager[P, P], error) {
	return NewManager(kc, ManagerConfig[P, P]{
		Namespace:  namespace,
		DefaultTTL: ttl,
		Logger:     logger,
	})
}

// CallOption adjusts a single cache write.
type CallOption func(*callOptions)

type callOptions struct {
	ttl        time.Duration
	qualifiers []string
}

// WithTTL overrides the manager ttl for one write.
func WithTTL(ttl time.Duration) CallOption {
	return func(o *callOptions) { o.ttl = ttl }
}

// WithQualifiers appends qualifier components to the key.
func WithQualifiers(qualifiers ...string) CallOption {
	return func(o *callOptions) { o.qualifiers = append(o.qualifiers, qualifiers...) }
}

func (m *Manager[E, P]) callOptions(opts []CallOption) callOptions {
	o := callOptions{ttl: m.ttl}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Namespace returns the key prefix.
func (m *Manager[E, P]) Namespace() string { return m.namespace }

// TTL returns the default ttl.
func (m *Manager[E, P]) TTL() time.Duration { return m.ttl }

// Key derives the key for id and qualifiers.
func (m *Manager[E, P]) Key(id string, qualifiers ...string) (string, error) {
	return cache.DeriveKey(m.namespace, id, qualifiers...)
}

// Cache projects entity and stores the projection under its id.
func (m *Manager[E, P]) Cache(ctx context.Context, entity E, opts ...CallOption) error {
	id, err := m.idOf(entity)
	if err != nil {
		return err
	}
	return m.CacheProjection(ctx, id, m.project(entity), opts...)
}

// CacheProjection stores an already computed projection.
func (m *Manager[E, P]) CacheProjection(ctx context.Context, id string, projection P, opts ...CallOption) error {
	o := m.callOptions(opts)

	key, err := m.Key(id, o.qualifiers...)
	if err != nil {
		return err
	}

	data, err := m.codec.Marshal(projection)
	if err != nil {
		return cache.NewCodecError(key, err)
	}

	if err := m.kc.Set(ctx, key, data, o.ttl); err != nil {
		return err
	}
	m.logger.Debug("cached projection", zap.String("key", key), zap.Duration("ttl", o.ttl))
	return nil
}

// Get returns the cached projection. A miss, an unreachable backend or an
// undecodable entry all report (zero, false, nil).
func (m *Manager[E, P]) Get(ctx context.Context, id string, qualifiers ...string) (P, bool, error) {
	var zero P

	key, err := m.Key(id, qualifiers...)
	if err != nil {
		return zero, false, err
	}

	data, ok := m.kc.Get(ctx, key)
	if !ok {
		return zero, false, nil
	}

	var projection P
	if err := m.codec.Unmarshal(data, &projection); err != nil {
		m.logger.Warn("dropping undecodable cache entry",
			zap.String("key", key),
			zap.Error(cache.NewCodecError(key, err)),
		)
		_ = m.kc.Delete(ctx, key)
		return zero, false, nil
	}
	return projection, true, nil
}

// Invalidate removes one entry.
func (m *Manager[E, P]) Invalidate(ctx context.Context, id string, qualifiers ...string) error {
	key, err := m.Key(id, qualifiers...)
	if err != nil {
		return err
	}
	return m.kc.Delete(ctx, key)
}

// InvalidateAll removes every entry in the namespace.
func (m *Manager[E, P]) InvalidateAll(ctx context.Context) error {
	prefix, err := cache.KeyPrefix(m.namespace)
	if err != nil {
		return err
	}
	return m.kc.DeleteByPrefix(ctx, prefix)
}

// InvalidateUnder removes every entry whose key starts with
// namespace:parts[0]:parts[1]...:
func (m *Manager[E, P]) InvalidateUnder(ctx context.Context, parts ...string) error {
	prefix, err := cache.KeyPrefix(append([]string{m.namespace}, parts...)...)
	if err != nil {
		return err
	}
	return m.kc.DeleteByPrefix(ctx, prefix)
}

// Fetch returns the cached projection for id, loading and caching it on a
// miss.
func (m *Manager[E, P]) Fetch(ctx context.Context, id string, load Loader[E]) (P, error) {
	return m.FetchWith(ctx, id, func(ctx context.Context) (E, error) {
		return load(ctx, id)
	})
}

// FetchWith is Fetch for keys with qualifiers or loaders that do not take
// the id. Concurrent misses on the same key share one load, bounded by
// LoadTimeout and detached from the cancellation of the caller that started
// it. A failed cache write is logged and the freshly loaded projection is
// still returned.
func (m *Manager[E, P]) FetchWith(ctx context.Context, id string, load func(context.Context) (E, error), opts ...CallOption) (P, error) {
	var zero P
	o := m.callOptions(opts)

	projection, ok, err := m.Get(ctx, id, o.qualifiers...)
	if err != nil {
		return zero, err
	}
	if ok {
		return projection, nil
	}

	key, _ := m.Key(id, o.qualifiers...)
	return cache.LoadShared(ctx, &m.group, key, m.loadTimeout, func(ctx context.Context) (P, error) {
		entity, err := load(ctx)
		if err != nil {
			return zero, err
		}

		projection := m.project(entity)
		if err := m.CacheProjection(ctx, id, projection, opts...); err != nil {
			m.logger.Warn("projection not cached", zap.String("key", key), zap.Error(err))
		}
		return projection, nil
	})
}

// extractID reads an ID field from a record using reflection.
func extractID[E any](record E) (string, error) {
	v := reflect.ValueOf(record)
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return "", goerrors.New("cannot extract id from nil record", goerrors.CategoryBadInput)
		}
		v = v.Elem()
	}

	if v.Kind() == reflect.Struct {
		for _, fieldName := range []string{"ID", "Id"} {
			field := v.FieldByName(fieldName)
			if field.IsValid() && field.CanInterface() {
				return fmt.Sprint(field.Interface()), nil
			}
		}
	}
	return "", goerrors.New(fmt.Sprintf("no ID field found in %T", record), goerrors.CategoryBadInput)
}
