package tenancy

import (
	"net/http"

	"go.uber.org/zap"
)

// Request headers read by Middleware.
const (
	HeaderTenantID  = "X-Tenant-ID"
	HeaderSubdomain = "X-Subdomain"
)

// Middleware resolves the tenant of every request and stores it on the
// request context. Unresolved tenants get a 404 and lookup failures a 500;
// the wrapped handler only runs with a tenant in context.
func Middleware(resolver *Resolver, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			id := req.Header.Get(HeaderTenantID)
			subdomain := req.Header.Get(HeaderSubdomain)

			t, err := resolver.Resolve(req.Context(), id, subdomain)
			switch {
			case IsNotFound(err):
				http.Error(w, "Tenant not found", http.StatusNotFound)
				return
			case err != nil:
				logger.Error("tenant resolution failed",
					zap.String("tenant_id", id),
					zap.String("subdomain", subdomain),
					zap.Error(err),
				)
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}

			next.ServeHTTP(w, req.WithContext(WithTenant(req.Context(), t)))
		})
	}
}
