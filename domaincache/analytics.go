package domaincache

import (
	"context"
	"net/url"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-projection-cache/cache"
	"go.uber.org/zap"
)

// DefaultAnalyticsTTL is longer than DefaultTTL: rollups are expensive to
// compute and change slowly.
const DefaultAnalyticsTTL = 3600 * time.Second

const dateRangeLayout = "20060102"

// DateRange formats an inclusive day range as a key component.
func DateRange(from, to time.Time) string {
	return from.UTC().Format(dateRangeLayout) + "-" + to.UTC().Format(dateRangeLayout)
}

// AnalyticsSnapshot is a computed rollup for one tenant, metric and range.
type AnalyticsSnapshot struct {
	TenantID   string             `json:"tenant_id" msgpack:"tenant_id"`
	Metric     string             `json:"metric" msgpack:"metric"`
	DateRange  string             `json:"date_range" msgpack:"date_range"`
	Values     map[string]float64 `json:"values" msgpack:"values"`
	Total      float64            `json:"total" msgpack:"total"`
	ComputedAt int64              `json:"computed_at" msgpack:"computed_at"`
}

// AnalyticsCache stores rollups under analytics:{tenant}:{metric}:{range}.
// Metric names are case sensitive and escaped, never normalised, so two
// distinct metrics never share a key.
type AnalyticsCache struct {
	rollups *Manager[AnalyticsSnapshot, AnalyticsSnapshot]
}

// NewAnalyticsCache builds the analytics manager on kc. A non-positive ttl
// selects DefaultAnalyticsTTL.
func NewAnalyticsCache(kc *cache.KeyedCache, ttl time.Duration, logger *zap.Logger) (*AnalyticsCache, error) {
	if ttl <= 0 {
		ttl = DefaultAnalyticsTTL
	}
	rollups, err := NewProjectionManager[AnalyticsSnapshot](kc, NamespaceAnalytics, ttl, logger)
	if err != nil {
		return nil, err
	}
	return &AnalyticsCache{rollups: rollups}, nil
}

// MetricKey returns the metric component used in keys. The escaping is
// reversible, so distinct metrics map to distinct components, and the
// result never contains the key separator or whitespace.
func MetricKey(metric string) string { return url.QueryEscape(metric) }

// Key derives the key of one rollup.
func (c *AnalyticsCache) Key(tenantID, metric, dateRange string) (string, error) {
	return c.rollups.Key(tenantID, MetricKey(metric), dateRange)
}

// CacheAnalytics stores s under its tenant, metric and range.
func (c *AnalyticsCache) CacheAnalytics(ctx context.Context, s AnalyticsSnapshot, opts ...CallOption) error {
	if MetricKey(s.Metric) == "" {
		return goerrors.New("analytics metric name is empty", goerrors.CategoryBadInput).
			WithTextCode(cache.TextCodeInvalidKey)
	}
	opts = append([]CallOption{WithQualifiers(MetricKey(s.Metric), s.DateRange)}, opts...)
	return c.rollups.CacheProjection(ctx, s.TenantID, s, opts...)
}

// GetCachedAnalytics returns the cached rollup, if any.
func (c *AnalyticsCache) GetCachedAnalytics(ctx context.Context, tenantID, metric, dateRange string) (AnalyticsSnapshot, bool, error) {
	return c.rollups.Get(ctx, tenantID, MetricKey(metric), dateRange)
}

// InvalidateAnalytics drops one rollup.
func (c *AnalyticsCache) InvalidateAnalytics(ctx context.Context, tenantID, metric, dateRange string) error {
	return c.rollups.Invalidate(ctx, tenantID, MetricKey(metric), dateRange)
}

// InvalidateTenantAnalytics drops every rollup of tenantID. It fails with
// UNSUPPORTED_OPERATION on backends that cannot delete by prefix.
func (c *AnalyticsCache) InvalidateTenantAnalytics(ctx context.Context, tenantID string) error {
	return c.rollups.InvalidateUnder(ctx, tenantID)
}

// FetchAnalytics returns the cached rollup or computes and caches it.
func (c *AnalyticsCache) FetchAnalytics(ctx context.Context, tenantID, metric, dateRange string, compute func(context.Context) (AnalyticsSnapshot, error)) (AnalyticsSnapshot, error) {
	return c.rollups.FetchWith(ctx, tenantID, compute, WithQualifiers(MetricKey(metric), dateRange))
}
