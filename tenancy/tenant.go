package tenancy

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
)

// TextCodeTenantNotFound marks ErrTenantNotFound.
const TextCodeTenantNotFound = "TENANT_NOT_FOUND"

// ErrTenantNotFound is returned when no active tenant matches a lookup.
var ErrTenantNotFound = goerrors.New("tenant not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeTenantNotFound)

// Subscription plans.
const (
	PlanBasic      = "basic"
	PlanPro        = "pro"
	PlanEnterprise = "enterprise"
)

// Tenant is the record resolved for an inbound request.
type Tenant struct {
	ID         string `json:"id" msgpack:"id"`
	Name       string `json:"name" msgpack:"name"`
	Subdomain  string `json:"subdomain" msgpack:"subdomain"`
	Domain     string `json:"domain,omitempty" msgpack:"domain,omitempty"`
	IsActive   bool   `json:"is_active" msgpack:"is_active"`
	PlanType   string `json:"plan_type" msgpack:"plan_type"`
	MaxUsers   int    `json:"max_users" msgpack:"max_users"`
	MaxCourses int    `json:"max_courses" msgpack:"max_courses"`
}

// Source is the primary store lookup. Both methods return only active
// tenants and report a missing one with an error that IsNotFound matches.
type Source interface {
	TenantByID(ctx context.Context, id string) (Tenant, error)
	TenantBySubdomain(ctx context.Context, subdomain string) (Tenant, error)
}

// IsNotFound reports whether err means no active tenant matched.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var target *goerrors.Error
	if goerrors.As(err, &target) && target.TextCode == TextCodeTenantNotFound {
		return true
	}
	return goerrors.IsNotFound(err)
}

func notFound(lookup, value string) error {
	return goerrors.New("tenant not found", goerrors.CategoryNotFound).
		WithTextCode(TextCodeTenantNotFound).
		WithMetadata(map[string]any{"lookup": lookup, "value": value})
}
