// Package tenancy resolves the tenant of an inbound request through the
// shared cache.
//
// Two key variants exist per tenant. tenant_{id} is canonical and holds
// the record; tenant_subdomain_{subdomain} holds only the id. A subdomain
// lookup follows the pointer and then checks that the canonical record
// still serves that subdomain and is active. A pointer that fails the
// check is dropped and the primary store is asked again.
//
// Write paths that deactivate or modify a tenant call Invalidate with the
// old record, or at least InvalidateID. Both pointer and record expire
// after DefaultTTL regardless.
//
//	resolver, _ := tenancy.NewResolver(kc, store)
//	mux.Handle("/", tenancy.Middleware(resolver, logger)(app))
package tenancy
