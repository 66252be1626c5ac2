package domaincache

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-projection-cache/cache"
	"go.uber.org/zap"
)

// Key namespaces shared by the course and user caches.
const (
	NamespaceCourse          = "course"
	NamespaceCourseProgress  = "course_progress"
	NamespaceUserEnrollments = "user_enrollments"
	NamespaceUserProfile     = "user_profile"
	NamespaceUserPermissions = "user_permissions"
	NamespaceAnalytics       = "analytics"
)

// Course is the primary store's view of a course with its aggregates
// already computed.
type Course struct {
	ID               string
	TenantID         string
	Title            string
	Description      string
	ShortDescription string
	Thumbnail        string
	Difficulty       string
	Status           string
	Price            string
	IsFree           bool
	EstimatedHours   int
	MaxStudents      *int

	InstructorID   string
	InstructorName string

	EnrolledStudentsCount int
	AverageRating         float64
	TotalModules          int
	TotalLessons          int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsFull reports whether the course reached its enrollment limit.
func (c Course) IsFull() bool {
	if c.MaxStudents == nil {
		return false
	}
	return c.EnrolledStudentsCount >= *c.MaxStudents
}

// CourseProjection is the cached shape of a course.
type CourseProjection struct {
	ID                    string  `json:"id" msgpack:"id"`
	Title                 string  `json:"title" msgpack:"title"`
	Description           string  `json:"description" msgpack:"description"`
	ShortDescription      string  `json:"short_description" msgpack:"short_description"`
	Thumbnail             string  `json:"thumbnail,omitempty" msgpack:"thumbnail,omitempty"`
	Difficulty            string  `json:"difficulty" msgpack:"difficulty"`
	Status                string  `json:"status" msgpack:"status"`
	Price                 string  `json:"price" msgpack:"price"`
	IsFree                bool    `json:"is_free" msgpack:"is_free"`
	EstimatedHours        int     `json:"estimated_hours" msgpack:"estimated_hours"`
	InstructorID          string  `json:"instructor_id" msgpack:"instructor_id"`
	InstructorName        string  `json:"instructor_name" msgpack:"instructor_name"`
	EnrolledStudentsCount int     `json:"enrolled_students_count" msgpack:"enrolled_students_count"`
	AverageRating         float64 `json:"average_rating" msgpack:"average_rating"`
	TotalModules          int     `json:"total_modules" msgpack:"total_modules"`
	TotalLessons          int     `json:"total_lessons" msgpack:"total_lessons"`
	IsFull                bool    `json:"is_full" msgpack:"is_full"`
}

// ProjectCourse builds the cached projection of c.
func ProjectCourse(c Course) CourseProjection {
	return CourseProjection{
		ID:                    c.ID,
		Title:                 c.Title,
		Description:           c.Description,
		ShortDescription:      c.ShortDescription,
		Thumbnail:             c.Thumbnail,
		Difficulty:            c.Difficulty,
		Status:                c.Status,
		Price:                 c.Price,
		IsFree:                c.IsFree,
		EstimatedHours:        c.EstimatedHours,
		InstructorID:          c.InstructorID,
		InstructorName:        c.InstructorName,
		EnrolledStudentsCount: c.EnrolledStudentsCount,
		AverageRating:         c.AverageRating,
		TotalModules:          c.TotalModules,
		TotalLessons:          c.TotalLessons,
		IsFull:                c.IsFull(),
	}
}

// ProgressProjection is a user's progress through one course.
type ProgressProjection struct {
	UserID             string  `json:"user_id" msgpack:"user_id"`
	CourseID           string  `json:"course_id" msgpack:"course_id"`
	CompletedLessons   int     `json:"completed_lessons" msgpack:"completed_lessons"`
	TotalLessons       int     `json:"total_lessons" msgpack:"total_lessons"`
	ProgressPercentage float64 `json:"progress_percentage" msgpack:"progress_percentage"`
	LastAccessedUnix   int64   `json:"last_accessed,omitempty" msgpack:"last_accessed,omitempty"`
}

// EnrollmentSummary lists the courses a user is actively enrolled in.
type EnrollmentSummary struct {
	UserID    string   `json:"user_id" msgpack:"user_id"`
	CourseIDs []string `json:"course_ids" msgpack:"course_ids"`
}

// CourseCache groups the course related namespaces.
type CourseCache struct {
	courses     *Manager[Course, CourseProjection]
	progress    *Manager[ProgressProjection, ProgressProjection]
	enrollments *Manager[EnrollmentSummary, EnrollmentSummary]
}

// NewCourseCache builds the course managers on kc with the given ttl.
func NewCourseCache(kc *cache.KeyedCache, ttl time.Duration, logger *zap.Logger) (*CourseCache, error) {
	courses, err := NewManager(kc, ManagerConfig[Course, CourseProjection]{
		Namespace:  NamespaceCourse,
		DefaultTTL: ttl,
		ID:         func(c Course) string { return c.ID },
		Project:    ProjectCourse,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	progress, err := NewProjectionManager[ProgressProjection](kc, NamespaceCourseProgress, ttl, logger)
	if err != nil {
		return nil, err
	}

	enrollments, err := NewProjectionManager[EnrollmentSummary](kc, NamespaceUserEnrollments, ttl, logger)
	if err != nil {
		return nil, err
	}

	return &CourseCache{courses: courses, progress: progress, enrollments: enrollments}, nil
}

// Courses exposes the course manager for read-through use.
func (c *CourseCache) Courses() *Manager[Course, CourseProjection] { return c.courses }

// CacheCourse stores the projection of course.
func (c *CourseCache) CacheCourse(ctx context.Context, course Course, opts ...CallOption) error {
	return c.courses.Cache(ctx, course, opts...)
}

// GetCachedCourse returns the cached projection for courseID.
func (c *CourseCache) GetCachedCourse(ctx context.Context, courseID string) (CourseProjection, bool, error) {
	return c.courses.Get(ctx, courseID)
}

// InvalidateCourse drops the cached projection for courseID.
func (c *CourseCache) InvalidateCourse(ctx context.Context, courseID string) error {
	return c.courses.Invalidate(ctx, courseID)
}

// FetchCourse is a read-through lookup backed by load.
func (c *CourseCache) FetchCourse(ctx context.Context, courseID string, load Loader[Course]) (CourseProjection, error) {
	return c.courses.Fetch(ctx, courseID, load)
}

// CacheUserProgress stores p under course_progress:{user}:{course}.
func (c *CourseCache) CacheUserProgress(ctx context.Context, p ProgressProjection, opts ...CallOption) error {
	if err := cache.ValidateKeyPart("course_id", p.CourseID); err != nil {
		return err
	}
	opts = append([]CallOption{WithQualifiers(p.CourseID)}, opts...)
	return c.progress.CacheProjection(ctx, p.UserID, p, opts...)
}

// GetCachedUserProgress returns the cached progress of userID in courseID.
func (c *CourseCache) GetCachedUserProgress(ctx context.Context, userID, courseID string) (ProgressProjection, bool, error) {
	return c.progress.Get(ctx, userID, courseID)
}

// InvalidateUserProgress drops the cached progress of userID in courseID.
func (c *CourseCache) InvalidateUserProgress(ctx context.Context, userID, courseID string) error {
	return c.progress.Invalidate(ctx, userID, courseID)
}

// InvalidateAllUserProgress drops every cached progress entry of userID.
// It requires a backend that can delete by prefix.
func (c *CourseCache) InvalidateAllUserProgress(ctx context.Context, userID string) error {
	return c.progress.InvalidateUnder(ctx, userID)
}

// CacheUserEnrollments stores the enrollment summary of a user.
func (c *CourseCache) CacheUserEnrollments(ctx context.Context, s EnrollmentSummary, opts ...CallOption) error {
	if s.UserID == "" {
		return goerrors.New("enrollment summary without user id", goerrors.CategoryBadInput).
			WithTextCode(cache.TextCodeInvalidKey)
	}
	return c.enrollments.CacheProjection(ctx, s.UserID, s, opts...)
}

// GetCachedUserEnrollments returns the cached enrollment summary of userID.
func (c *CourseCache) GetCachedUserEnrollments(ctx context.Context, userID string) (EnrollmentSummary, bool, error) {
	return c.enrollments.Get(ctx, userID)
}

// InvalidateUserEnrollments drops the cached enrollment summary of userID.
func (c *CourseCache) InvalidateUserEnrollments(ctx context.Context, userID string) error {
	return c.enrollments.Invalidate(ctx, userID)
}

// OnEnrollment drops the entries an enrollment change makes stale: the
// course aggregates, the user's enrollment list and the user's progress in
// that course.
func (c *CourseCache) OnEnrollment(ctx context.Context, userID, courseID string) error {
	return goerrors.Join(
		c.InvalidateCourse(ctx, courseID),
		c.InvalidateUserEnrollments(ctx, userID),
		c.InvalidateUserProgress(ctx, userID, courseID),
	)
}
