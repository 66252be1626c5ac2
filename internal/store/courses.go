package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-projection-cache/domaincache"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// CourseByID loads a course with its aggregates computed.
func (s *Store) CourseByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (domaincache.Course, error) {
	var m CourseModel
	q := s.db.NewSelect().Model(&m).Where("c.id = ?", id)
	for _, c := range criteria {
		q = c(q)
	}
	if err := q.Scan(ctx); err != nil {
		return domaincache.Course{}, notFound("course", id, err)
	}
	return s.courseAggregates(ctx, m)
}

func (s *Store) courseAggregates(ctx context.Context, m CourseModel) (domaincache.Course, error) {
	course := domaincache.Course{
		ID:               m.ID,
		TenantID:         m.TenantID,
		Title:            m.Title,
		Description:      m.Description,
		ShortDescription: m.ShortDescription,
		Thumbnail:        m.Thumbnail,
		Difficulty:       m.Difficulty,
		Status:           m.Status,
		Price:            m.Price,
		IsFree:           m.IsFree,
		EstimatedHours:   m.EstimatedHours,
		MaxStudents:      m.MaxStudents,
		InstructorID:     m.InstructorID,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}

	var instructor UserModel
	err := s.db.NewSelect().Model(&instructor).Where("u.id = ?", m.InstructorID).Scan(ctx)
	if err == nil {
		course.InstructorName = toUser(instructor).FullName()
	} else if !goerrors.Is(err, sql.ErrNoRows) {
		return domaincache.Course{}, notFound("user", m.InstructorID, err)
	}

	enrolled, err := s.db.NewSelect().Model((*EnrollmentModel)(nil)).
		Where("e.course_id = ?", m.ID).
		Where("e.status = ?", EnrollmentActive).
		Count(ctx)
	if err != nil {
		return domaincache.Course{}, aggregateError("enrollments", m.ID, err)
	}
	course.EnrolledStudentsCount = enrolled

	var avg sql64
	err = s.db.NewSelect().Model((*ReviewModel)(nil)).
		ColumnExpr("COALESCE(AVG(r.rating), 0)").
		Where("r.course_id = ?", m.ID).
		Scan(ctx, &avg)
	if err != nil {
		return domaincache.Course{}, aggregateError("reviews", m.ID, err)
	}
	course.AverageRating = math.Round(float64(avg)*100) / 100

	modules, err := s.db.NewSelect().Model((*ModuleModel)(nil)).Where("m.course_id = ?", m.ID).Count(ctx)
	if err != nil {
		return domaincache.Course{}, aggregateError("modules", m.ID, err)
	}
	course.TotalModules = modules

	lessons, err := s.db.NewSelect().Model((*LessonModel)(nil)).
		Join("JOIN course_modules AS m ON m.id = l.module_id").
		Where("m.course_id = ?", m.ID).
		Count(ctx)
	if err != nil {
		return domaincache.Course{}, aggregateError("lessons", m.ID, err)
	}
	course.TotalLessons = lessons

	return course, nil
}

// sql64 scans sqlite numeric aggregates, which come back as integer or real.
type sql64 float64

func (f *sql64) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*f = 0
	case int64:
		*f = sql64(v)
	case float64:
		*f = sql64(v)
	default:
		return goerrors.New("unexpected aggregate type", goerrors.CategoryInternal).
			WithMetadata(map[string]any{"type": fmt.Sprintf("%T", v)})
	}
	return nil
}

func aggregateError(what, courseID string, err error) error {
	return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to aggregate "+what).
		WithMetadata(map[string]any{"course_id": courseID})
}

// CourseRepository exposes courses with the read and write signatures of a
// go-repository-bun repository.
type CourseRepository struct {
	store *Store
}

// Courses returns the course repository.
func (s *Store) Courses() *CourseRepository { return &CourseRepository{store: s} }

func (r *CourseRepository) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (domaincache.Course, error) {
	return r.store.CourseByID(ctx, id, criteria...)
}

// Update writes the editable course fields and returns the reloaded course.
func (r *CourseRepository) Update(ctx context.Context, course domaincache.Course, criteria ...repository.UpdateCriteria) (domaincache.Course, error) {
	m := CourseModel{
		ID:               course.ID,
		TenantID:         course.TenantID,
		InstructorID:     course.InstructorID,
		Title:            course.Title,
		Description:      course.Description,
		ShortDescription: course.ShortDescription,
		Thumbnail:        course.Thumbnail,
		Difficulty:       course.Difficulty,
		Status:           course.Status,
		Price:            course.Price,
		IsFree:           course.IsFree,
		EstimatedHours:   course.EstimatedHours,
		MaxStudents:      course.MaxStudents,
	}

	q := r.store.db.NewUpdate().Model(&m).ExcludeColumn("created_at").WherePK()
	for _, c := range criteria {
		q = c(q)
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return domaincache.Course{}, goerrors.Wrap(err, goerrors.CategoryInternal, "course update failed").
			WithMetadata(map[string]any{"id": course.ID})
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domaincache.Course{}, notFound("course", course.ID, sql.ErrNoRows)
	}
	return r.store.CourseByID(ctx, course.ID)
}

// Delete removes the course and every row that belongs to it.
func (r *CourseRepository) Delete(ctx context.Context, course domaincache.Course) error {
	return r.store.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		modules := tx.NewSelect().Model((*ModuleModel)(nil)).ColumnExpr("m.id").Where("m.course_id = ?", course.ID)
		lessons := tx.NewSelect().Model((*LessonModel)(nil)).ColumnExpr("l.id").Where("l.module_id IN (?)", modules)

		deletes := []*bun.DeleteQuery{
			tx.NewDelete().Model((*LessonProgressModel)(nil)).Where("lesson_id IN (?)", lessons),
			tx.NewDelete().Model((*LessonModel)(nil)).Where("module_id IN (?)", modules),
			tx.NewDelete().Model((*ModuleModel)(nil)).Where("course_id = ?", course.ID),
			tx.NewDelete().Model((*EnrollmentModel)(nil)).Where("course_id = ?", course.ID),
			tx.NewDelete().Model((*ReviewModel)(nil)).Where("course_id = ?", course.ID),
			tx.NewDelete().Model((*CourseModel)(nil)).Where("id = ?", course.ID),
		}
		for _, q := range deletes {
			if _, err := q.Exec(ctx); err != nil {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "course delete failed").
					WithMetadata(map[string]any{"id": course.ID})
			}
		}
		return nil
	})
}
