package store

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-projection-cache/domaincache"
)

// MetricEnrollments is the metric name of AnalyticsEnrollments snapshots.
const MetricEnrollments = "enrollments"

type courseCount struct {
	CourseID string `bun:"course_id"`
	Total    int    `bun:"total"`
}

// AnalyticsEnrollments counts the enrollments per course of tenantID made
// in [from, to).
func (s *Store) AnalyticsEnrollments(ctx context.Context, tenantID string, from, to time.Time) (domaincache.AnalyticsSnapshot, error) {
	var rows []courseCount
	err := s.db.NewSelect().Model((*EnrollmentModel)(nil)).
		ColumnExpr("e.course_id AS course_id").
		ColumnExpr("COUNT(*) AS total").
		Join("JOIN courses AS c ON c.id = e.course_id").
		Where("c.tenant_id = ?", tenantID).
		Where("e.enrolled_at >= ?", from.UTC()).
		Where("e.enrolled_at < ?", to.UTC()).
		Group("e.course_id").
		Scan(ctx, &rows)
	if err != nil {
		return domaincache.AnalyticsSnapshot{}, goerrors.Wrap(err, goerrors.CategoryInternal, "analytics query failed").
			WithMetadata(map[string]any{"tenant_id": tenantID, "metric": MetricEnrollments})
	}

	snap := domaincache.AnalyticsSnapshot{
		TenantID:   tenantID,
		Metric:     MetricEnrollments,
		DateRange:  domaincache.DateRange(from, to.Add(-time.Nanosecond)),
		Values:     make(map[string]float64, len(rows)),
		ComputedAt: time.Now().Unix(),
	}
	for _, row := range rows {
		snap.Values[row.CourseID] = float64(row.Total)
		snap.Total += float64(row.Total)
	}
	return snap, nil
}
