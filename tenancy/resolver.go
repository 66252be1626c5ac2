package tenancy

import (
	"context"
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-projection-cache/cache"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultTTL is how long resolved tenants stay cached.
const DefaultTTL = 300 * time.Second

const (
	idKeyPrefix        = "tenant_"
	subdomainKeyPrefix = "tenant_subdomain_"
)

var subdomainPattern = regexp.MustCompile(`^[a-zA-Z0-9-]+$`)

// IDKey returns the canonical key, which holds the tenant record.
func IDKey(id string) string { return idKeyPrefix + id }

// SubdomainKey returns the pointer key, which holds only the tenant id.
func SubdomainKey(subdomain string) string { return subdomainKeyPrefix + subdomain }

// Resolver maps tenant ids and subdomains to active tenants.
//
// Only the id keyed entry holds the record. A subdomain entry points at an
// id and is checked against the canonical record on every read, so
// invalidating the id is enough to hide a deactivated or renamed tenant.
type Resolver struct {
	kc     *cache.KeyedCache
	source Source
	ttl    time.Duration
	codec  cache.Codec
	logger *zap.Logger
	group  singleflight.Group

	loadTimeout time.Duration
}

// Option configures a Resolver.
type Option func(*Resolver)

func WithTTL(ttl time.Duration) Option {
	return func(r *Resolver) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithLoadTimeout bounds a source lookup shared by concurrent callers.
func WithLoadTimeout(timeout time.Duration) Option {
	return func(r *Resolver) {
		if timeout > 0 {
			r.loadTimeout = timeout
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithCodec(codec cache.Codec) Option {
	return func(r *Resolver) {
		if codec != nil {
			r.codec = codec
		}
	}
}

// NewResolver creates a resolver reading through kc into source.
func NewResolver(kc *cache.KeyedCache, source Source, opts ...Option) (*Resolver, error) {
	if kc == nil || source == nil {
		return nil, goerrors.New("keyed cache and tenant source are required", goerrors.CategoryBadInput)
	}
	r := &Resolver{
		kc:     kc,
		source: source,
		ttl:    DefaultTTL,
		codec:  cache.DefaultCodec(),
		logger: kc.Logger(),

		loadTimeout: cache.DefaultLoadTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.Named("tenancy")
	return r, nil
}

// Resolve picks the id when given, then the subdomain.
func (r *Resolver) Resolve(ctx context.Context, id, subdomain string) (Tenant, error) {
	switch {
	case id != "":
		return r.ResolveByID(ctx, id)
	case subdomain != "":
		return r.ResolveBySubdomain(ctx, subdomain)
	default:
		return Tenant{}, notFound("none", "")
	}
}

// ResolveByID returns the active tenant with id. Ids that are not UUIDs
// are reported as not found without touching the cache or the store.
func (r *Resolver) ResolveByID(ctx context.Context, id string) (Tenant, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return Tenant{}, notFound("id", id)
	}
	id = parsed.String()
	key := IDKey(id)

	if t, ok := r.cached(ctx, key); ok {
		return t, nil
	}

	return cache.LoadShared(ctx, &r.group, key, r.loadTimeout, func(ctx context.Context) (Tenant, error) {
		t, err := r.source.TenantByID(ctx, id)
		if err != nil {
			return Tenant{}, r.sourceError(err, "id", id)
		}
		if !t.IsActive {
			return Tenant{}, notFound("id", id)
		}
		r.store(ctx, t)
		return t, nil
	})
}

// ResolveBySubdomain returns the active tenant serving subdomain.
func (r *Resolver) ResolveBySubdomain(ctx context.Context, subdomain string) (Tenant, error) {
	if err := validation.Validate(subdomain, validation.Required, validation.Match(subdomainPattern)); err != nil {
		return Tenant{}, notFound("subdomain", subdomain)
	}
	pointer := SubdomainKey(subdomain)

	if data, ok := r.kc.Get(ctx, pointer); ok {
		t, err := r.ResolveByID(ctx, string(data))
		if err == nil && t.Subdomain == subdomain {
			return t, nil
		}
		if err != nil && !IsNotFound(err) {
			return Tenant{}, err
		}
		r.logger.Debug("dropping stale subdomain pointer",
			zap.String("subdomain", subdomain),
			zap.String("tenant_id", string(data)),
		)
		_ = r.kc.Delete(ctx, pointer)
	}

	return cache.LoadShared(ctx, &r.group, pointer, r.loadTimeout, func(ctx context.Context) (Tenant, error) {
		t, err := r.source.TenantBySubdomain(ctx, subdomain)
		if err != nil {
			return Tenant{}, r.sourceError(err, "subdomain", subdomain)
		}
		if !t.IsActive {
			return Tenant{}, notFound("subdomain", subdomain)
		}
		r.store(ctx, t)
		return t, nil
	})
}

// Invalidate drops both the canonical entry and the subdomain pointer of t.
// Pass the record as it was before the change so a renamed subdomain is
// dropped too.
func (r *Resolver) Invalidate(ctx context.Context, t Tenant) error {
	errs := []error{r.InvalidateID(ctx, t.ID)}
	if t.Subdomain != "" {
		errs = append(errs, r.kc.Delete(ctx, SubdomainKey(t.Subdomain)))
	}
	return goerrors.Join(errs...)
}

// InvalidateID drops the canonical entry of id. Pointers to it fail
// verification on their next read.
func (r *Resolver) InvalidateID(ctx context.Context, id string) error {
	if parsed, err := uuid.Parse(id); err == nil {
		id = parsed.String()
	}
	return r.kc.Delete(ctx, IDKey(id))
}

func (r *Resolver) cached(ctx context.Context, key string) (Tenant, bool) {
	data, ok := r.kc.Get(ctx, key)
	if !ok {
		return Tenant{}, false
	}
	var t Tenant
	if err := r.codec.Unmarshal(data, &t); err != nil {
		r.logger.Warn("dropping undecodable tenant entry", zap.String("key", key), zap.Error(err))
		_ = r.kc.Delete(ctx, key)
		return Tenant{}, false
	}
	return t, t.IsActive
}

// store writes the canonical record before the pointer so a reader never
// follows a pointer to an id that was not cached yet by this call.
func (r *Resolver) store(ctx context.Context, t Tenant) {
	data, err := r.codec.Marshal(t)
	if err != nil {
		r.logger.Warn("tenant not cached", zap.String("tenant_id", t.ID), zap.Error(cache.NewCodecError(IDKey(t.ID), err)))
		return
	}
	if err := r.kc.Set(ctx, IDKey(t.ID), data, r.ttl); err != nil {
		r.logger.Debug("tenant not cached", zap.String("tenant_id", t.ID), zap.Error(err))
		return
	}
	if t.Subdomain == "" {
		return
	}
	if err := r.kc.Set(ctx, SubdomainKey(t.Subdomain), []byte(t.ID), r.ttl); err != nil {
		r.logger.Debug("subdomain pointer not cached", zap.String("subdomain", t.Subdomain), zap.Error(err))
	}
}

func (r *Resolver) sourceError(err error, lookup, value string) error {
	if IsNotFound(err) {
		return notFound(lookup, value)
	}
	return goerrors.Wrap(err, goerrors.CategoryExternal, "tenant lookup failed").
		WithMetadata(map[string]any{"lookup": lookup, "value": value})
}
