// Package domaincache caches typed projections of domain entities on top of
// a cache.KeyedCache.
//
// # Overview
//
// A Manager is bound to one static namespace and derives every key as
// namespace:id[:qualifier...]. It never stores entities: a pure Project
// function builds a narrow projection, and that projection is what gets
// encoded and cached. Stale projections are invalidated, never patched.
//
// The course, user and analytics caches are thin bundles of managers:
//
//	courses, _ := domaincache.NewCourseCache(kc, 5*time.Minute, logger)
//	_ = courses.CacheCourse(ctx, course)
//	p, ok, err := courses.GetCachedCourse(ctx, course.ID)
//
// # Read-through
//
// Fetch reads the cache and, on a miss, loads the entity from the primary
// store, projects it and caches it. Concurrent misses on one key share a
// single load. A Loader can be built from a go-repository-bun repository
// with RepositoryLoader.
//
// # Invalidation
//
// Write paths must invalidate after the mutation commits. Invalidating
// before the commit lets a concurrent reader repopulate the entry with the
// old data. InvalidatingWriter wraps a repository writer and runs the
// registered invalidators only once Update or Delete succeeded.
//
// Bulk invalidation (InvalidateAll, InvalidateUnder,
// AnalyticsCache.InvalidateTenantAnalytics) needs a backend that can delete
// by prefix and reports UNSUPPORTED_OPERATION otherwise. Set
// ManagerConfig.RequirePrefixDeletion to fail at construction instead.
//
// # Failure behavior
//
// Reads degrade: an unreachable backend or an undecodable entry is reported
// as a miss. Writes return CACHE_UNAVAILABLE after the keyed cache retries
// are exhausted; callers may ignore it, the primary store stays
// authoritative.
package domaincache
