package domaincache

import (
	"context"
	"sort"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-projection-cache/cache"
	"go.uber.org/zap"
)

// User roles.
const (
	RoleAdmin   = "admin"
	RoleTeacher = "teacher"
	RoleStudent = "student"
)

// User is the primary store's view of a user.
type User struct {
	ID          string
	TenantID    string
	Email       string
	FirstName   string
	LastName    string
	Role        string
	Avatar      string
	IsActive    bool
	IsSuperuser bool
	// Grants are permissions given to the user directly, on top of the role.
	Grants []string
}

// FullName joins first and last name.
func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

func (u User) IsTenantAdmin() bool {
	return u.Role == RoleAdmin || u.IsSuperuser
}

func (u User) IsTeacherOrAdmin() bool {
	return u.Role == RoleAdmin || u.Role == RoleTeacher || u.IsSuperuser
}

// UserProfile is the cached shape of a user.
type UserProfile struct {
	ID               string `json:"id" msgpack:"id"`
	Email            string `json:"email" msgpack:"email"`
	FirstName        string `json:"first_name" msgpack:"first_name"`
	LastName         string `json:"last_name" msgpack:"last_name"`
	FullName         string `json:"full_name" msgpack:"full_name"`
	Role             string `json:"role" msgpack:"role"`
	Avatar           string `json:"avatar,omitempty" msgpack:"avatar,omitempty"`
	IsActive         bool   `json:"is_active" msgpack:"is_active"`
	TenantID         string `json:"tenant_id,omitempty" msgpack:"tenant_id,omitempty"`
	IsTenantAdmin    bool   `json:"is_tenant_admin" msgpack:"is_tenant_admin"`
	IsTeacherOrAdmin bool   `json:"is_teacher_or_admin" msgpack:"is_teacher_or_admin"`
}

// ProjectUserProfile builds the cached profile of u.
func ProjectUserProfile(u User) UserProfile {
	return UserProfile{
		ID:               u.ID,
		Email:            u.Email,
		FirstName:        u.FirstName,
		LastName:         u.LastName,
		FullName:         u.FullName(),
		Role:             u.Role,
		Avatar:           u.Avatar,
		IsActive:         u.IsActive,
		TenantID:         u.TenantID,
		IsTenantAdmin:    u.IsTenantAdmin(),
		IsTeacherOrAdmin: u.IsTeacherOrAdmin(),
	}
}

// UserPermissions is the cached permission set of a user.
type UserPermissions struct {
	UserID      string   `json:"user_id" msgpack:"user_id"`
	TenantID    string   `json:"tenant_id,omitempty" msgpack:"tenant_id,omitempty"`
	Role        string   `json:"role" msgpack:"role"`
	Permissions []string `json:"permissions" msgpack:"permissions"`
}

var rolePermissions = map[string][]string{
	RoleStudent: {"course.view", "course.enroll", "review.create"},
	RoleTeacher: {"course.view", "course.create", "course.update", "lesson.manage", "analytics.view"},
	RoleAdmin: {
		"course.view", "course.create", "course.update", "course.delete",
		"lesson.manage", "analytics.view", "user.manage", "tenant.manage",
	},
}

// ProjectUserPermissions derives the permission set of u from its role and
// direct grants. Inactive users get no permissions.
func ProjectUserPermissions(u User) UserPermissions {
	perms := UserPermissions{UserID: u.ID, TenantID: u.TenantID, Role: u.Role, Permissions: []string{}}
	if !u.IsActive {
		return perms
	}

	role := u.Role
	if u.IsSuperuser {
		role = RoleAdmin
	}

	seen := map[string]struct{}{}
	for _, p := range append(append([]string{}, rolePermissions[role]...), u.Grants...) {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		perms.Permissions = append(perms.Permissions, p)
	}
	sort.Strings(perms.Permissions)
	return perms
}

// Has reports whether permission is granted.
func (p UserPermissions) Has(permission string) bool {
	i := sort.SearchStrings(p.Permissions, permission)
	return i < len(p.Permissions) && p.Permissions[i] == permission
}

// UserCache groups the user related namespaces. The enrollment key is
// shared with CourseCache so InvalidateUser drops it as well.
type UserCache struct {
	profiles    *Manager[User, UserProfile]
	permissions *Manager[User, UserPermissions]
	kc          *cache.KeyedCache
	logger      *zap.Logger
}

// NewUserCache builds the user managers on kc with the given ttl.
func NewUserCache(kc *cache.KeyedCache, ttl time.Duration, logger *zap.Logger) (*UserCache, error) {
	id := func(u User) string { return u.ID }

	profiles, err := NewManager(kc, ManagerConfig[User, UserProfile]{
		Namespace:  NamespaceUserProfile,
		DefaultTTL: ttl,
		ID:         id,
		Project:    ProjectUserProfile,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	permissions, err := NewManager(kc, ManagerConfig[User, UserPermissions]{
		Namespace:  NamespaceUserPermissions,
		DefaultTTL: ttl,
		ID:         id,
		Project:    ProjectUserPermissions,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = kc.Logger()
	}
	return &UserCache{profiles: profiles, permissions: permissions, kc: kc, logger: logger}, nil
}

// Profiles exposes the profile manager for read-through use.
func (c *UserCache) Profiles() *Manager[User, UserProfile] { return c.profiles }

// Permissions exposes the permissions manager for read-through use.
func (c *UserCache) Permissions() *Manager[User, UserPermissions] { return c.permissions }

// CacheUserProfile stores the profile projection of user.
func (c *UserCache) CacheUserProfile(ctx context.Context, user User, opts ...CallOption) error {
	return c.profiles.Cache(ctx, user, opts...)
}

// GetCachedUserProfile returns the cached profile of userID, if any.
func (c *UserCache) GetCachedUserProfile(ctx context.Context, userID string) (UserProfile, bool, error) {
	return c.profiles.Get(ctx, userID)
}

// CacheUserPermissions stores the permission set derived from user.
func (c *UserCache) CacheUserPermissions(ctx context.Context, user User, opts ...CallOption) error {
	return c.permissions.Cache(ctx, user, opts...)
}

// GetCachedUserPermissions returns the cached permission set of userID, if any.
func (c *UserCache) GetCachedUserPermissions(ctx context.Context, userID string) (UserPermissions, bool, error) {
	return c.permissions.Get(ctx, userID)
}

// InvalidateUser drops the profile, permissions and enrollment entries of
// userID. Every key is attempted even when an earlier delete fails.
func (c *UserCache) InvalidateUser(ctx context.Context, userID string) error {
	keys := make([]string, 0, 3)
	for _, ns := range []string{NamespaceUserProfile, NamespaceUserPermissions, NamespaceUserEnrollments} {
		key, err := cache.DeriveKey(ns, userID)
		if err != nil {
			return err
		}
		keys = append(keys, key)
	}

	var errs []error
	for _, key := range keys {
		if err := c.kc.Delete(ctx, key); err != nil {
			c.logger.Warn("user cache entry not invalidated", zap.String("key", key), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return goerrors.Join(errs...)
}
