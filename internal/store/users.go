package store

import (
	"context"

	"github.com/goliatone/go-projection-cache/domaincache"
	"github.com/goliatone/go-projection-cache/tenancy"
)

func toUser(m UserModel) domaincache.User {
	return domaincache.User{
		ID:          m.ID,
		TenantID:    m.TenantID,
		Email:       m.Email,
		FirstName:   m.FirstName,
		LastName:    m.LastName,
		Role:        m.Role,
		Avatar:      m.Avatar,
		IsActive:    m.IsActive,
		IsSuperuser: m.IsSuperuser,
	}
}

// UserByID loads a user.
func (s *Store) UserByID(ctx context.Context, id string) (domaincache.User, error) {
	var m UserModel
	if err := s.db.NewSelect().Model(&m).Where("u.id = ?", id).Scan(ctx); err != nil {
		return domaincache.User{}, notFound("user", id, err)
	}
	return toUser(m), nil
}

func toTenant(m TenantModel) tenancy.Tenant {
	return tenancy.Tenant{
		ID:         m.ID,
		Name:       m.Name,
		Subdomain:  m.Subdomain,
		Domain:     m.Domain,
		IsActive:   m.IsActive,
		PlanType:   m.PlanType,
		MaxUsers:   m.MaxUsers,
		MaxCourses: m.MaxCourses,
	}
}

// TenantByID returns the active tenant with id.
func (s *Store) TenantByID(ctx context.Context, id string) (tenancy.Tenant, error) {
	return s.activeTenant(ctx, "t.id = ?", id)
}

// TenantBySubdomain returns the active tenant serving subdomain.
func (s *Store) TenantBySubdomain(ctx context.Context, subdomain string) (tenancy.Tenant, error) {
	return s.activeTenant(ctx, "t.subdomain = ?", subdomain)
}

func (s *Store) activeTenant(ctx context.Context, where, value string) (tenancy.Tenant, error) {
	var m TenantModel
	err := s.db.NewSelect().Model(&m).
		Where(where, value).
		Where("t.is_active = ?", true).
		Scan(ctx)
	if err != nil {
		return tenancy.Tenant{}, notFound("tenant", value, err)
	}
	return toTenant(m), nil
}

// UpdateTenant writes t and returns the record as it was before the
// change, which is what cache invalidation needs.
func (s *Store) UpdateTenant(ctx context.Context, t tenancy.Tenant) (tenancy.Tenant, error) {
	var before TenantModel
	if err := s.db.NewSelect().Model(&before).Where("t.id = ?", t.ID).Scan(ctx); err != nil {
		return tenancy.Tenant{}, notFound("tenant", t.ID, err)
	}

	m := before
	m.Name = t.Name
	m.Subdomain = t.Subdomain
	m.Domain = t.Domain
	m.IsActive = t.IsActive
	m.PlanType = t.PlanType
	m.MaxUsers = t.MaxUsers
	m.MaxCourses = t.MaxCourses

	if _, err := s.db.NewUpdate().Model(&m).WherePK().Exec(ctx); err != nil {
		return tenancy.Tenant{}, notFound("tenant", t.ID, err)
	}
	return toTenant(before), nil
}

// DeactivateTenant marks the tenant inactive and returns its previous record.
func (s *Store) DeactivateTenant(ctx context.Context, id string) (tenancy.Tenant, error) {
	var m TenantModel
	if err := s.db.NewSelect().Model(&m).Where("t.id = ?", id).Scan(ctx); err != nil {
		return tenancy.Tenant{}, notFound("tenant", id, err)
	}
	t := toTenant(m)
	t.IsActive = false
	return s.UpdateTenant(ctx, t)
}
