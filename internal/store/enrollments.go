package store

import (
	"context"
	"database/sql"
	"math"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-projection-cache/domaincache"
	"github.com/uptrace/bun"
)

// ErrCourseFull is returned by Enroll when the course reached its limit.
var ErrCourseFull = goerrors.New("course is full", goerrors.CategoryConflict).WithTextCode("COURSE_FULL")

// Enroll adds an active enrollment of userID in courseID.
func (s *Store) Enroll(ctx context.Context, userID, courseID string) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var course CourseModel
		if err := tx.NewSelect().Model(&course).Where("c.id = ?", courseID).Scan(ctx); err != nil {
			return notFound("course", courseID, err)
		}

		if course.MaxStudents != nil {
			active, err := tx.NewSelect().Model((*EnrollmentModel)(nil)).
				Where("e.course_id = ?", courseID).
				Where("e.status = ?", EnrollmentActive).
				Count(ctx)
			if err != nil {
				return aggregateError("enrollments", courseID, err)
			}
			if active >= *course.MaxStudents {
				return ErrCourseFull
			}
		}

		enrollment := &EnrollmentModel{UserID: userID, CourseID: courseID, Status: EnrollmentActive}
		if _, err := tx.NewInsert().Model(enrollment).Exec(ctx); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryConflict, "enrollment failed").
				WithMetadata(map[string]any{"user_id": userID, "course_id": courseID})
		}
		return nil
	})
}

// SetEnrollmentStatus changes the status of an existing enrollment.
func (s *Store) SetEnrollmentStatus(ctx context.Context, userID, courseID, status string) error {
	res, err := s.db.NewUpdate().Model((*EnrollmentModel)(nil)).
		Set("status = ?", status).
		Set("updated_at = ?", time.Now().UTC()).
		Where("user_id = ?", userID).
		Where("course_id = ?", courseID).
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "enrollment update failed")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("enrollment", userID+"/"+courseID, sql.ErrNoRows)
	}
	return nil
}

// UserEnrollments lists the courses userID is actively enrolled in.
func (s *Store) UserEnrollments(ctx context.Context, userID string) (domaincache.EnrollmentSummary, error) {
	summary := domaincache.EnrollmentSummary{UserID: userID, CourseIDs: []string{}}
	err := s.db.NewSelect().Model((*EnrollmentModel)(nil)).
		Column("course_id").
		Where("e.user_id = ?", userID).
		Where("e.status = ?", EnrollmentActive).
		Order("e.enrolled_at ASC").
		Scan(ctx, &summary.CourseIDs)
	if err != nil {
		return domaincache.EnrollmentSummary{}, goerrors.Wrap(err, goerrors.CategoryInternal, "enrollment lookup failed").
			WithMetadata(map[string]any{"user_id": userID})
	}
	return summary, nil
}

// CompleteLesson records that userID finished lessonID.
func (s *Store) CompleteLesson(ctx context.Context, userID, lessonID string) error {
	progress := &LessonProgressModel{UserID: userID, LessonID: lessonID, IsCompleted: true}
	_, err := s.db.NewInsert().Model(progress).
		On("CONFLICT (user_id, lesson_id) DO UPDATE").
		Set("is_completed = EXCLUDED.is_completed").
		Set("accessed_at = EXCLUDED.accessed_at").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "lesson progress update failed").
			WithMetadata(map[string]any{"user_id": userID, "lesson_id": lessonID})
	}
	return nil
}

// Progress computes the progress of userID through courseID.
func (s *Store) Progress(ctx context.Context, userID, courseID string) (domaincache.ProgressProjection, error) {
	p := domaincache.ProgressProjection{UserID: userID, CourseID: courseID}

	total, err := s.db.NewSelect().Model((*LessonModel)(nil)).
		Join("JOIN course_modules AS m ON m.id = l.module_id").
		Where("m.course_id = ?", courseID).
		Count(ctx)
	if err != nil {
		return p, aggregateError("lessons", courseID, err)
	}

	var (
		completed    int
		lastAccessed bun.NullTime
	)
	err = s.db.NewSelect().Model((*LessonProgressModel)(nil)).
		ColumnExpr("COUNT(*)").
		ColumnExpr("MAX(lp.accessed_at)").
		Join("JOIN lessons AS l ON l.id = lp.lesson_id").
		Join("JOIN course_modules AS m ON m.id = l.module_id").
		Where("m.course_id = ?", courseID).
		Where("lp.user_id = ?", userID).
		Where("lp.is_completed = ?", true).
		Scan(ctx, &completed, &lastAccessed)
	if err != nil {
		return p, aggregateError("progress", courseID, err)
	}

	p.TotalLessons = total
	p.CompletedLessons = completed
	if !lastAccessed.IsZero() {
		p.LastAccessedUnix = lastAccessed.Unix()
	}
	if total > 0 {
		p.ProgressPercentage = math.Round(float64(completed)*10000/float64(total)) / 100
	}
	return p, nil
}
