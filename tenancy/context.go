package tenancy

import (
	"context"
)

type tenantContextKey struct{}

// WithTenant attaches t to the context.
func WithTenant(ctx context.Context, t Tenant) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, tenantContextKey{}, t)
}

// FromContext returns the tenant stored by WithTenant.
func FromContext(ctx context.Context) (Tenant, bool) {
	if ctx == nil {
		return Tenant{}, false
	}
	t, ok := ctx.Value(tenantContextKey{}).(Tenant)
	return t, ok
}
