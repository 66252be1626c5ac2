package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Enrollment states.
const (
	EnrollmentActive    = "active"
	EnrollmentCompleted = "completed"
	EnrollmentSuspended = "suspended"
	EnrollmentCancelled = "cancelled"
)

type TenantModel struct {
	bun.BaseModel `bun:"table:tenants,alias:t"`

	ID         string    `bun:"id,pk"`
	Name       string    `bun:"name,notnull,unique"`
	Subdomain  string    `bun:"subdomain,notnull,unique"`
	Domain     string    `bun:"domain"`
	IsActive   bool      `bun:"is_active,notnull"`
	PlanType   string    `bun:"plan_type,notnull"`
	MaxUsers   int       `bun:"max_users,notnull"`
	MaxCourses int       `bun:"max_courses,notnull"`
	CreatedAt  time.Time `bun:"created_at,notnull"`
	UpdatedAt  time.Time `bun:"updated_at,notnull"`
}

type UserModel struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID          string    `bun:"id,pk"`
	TenantID    string    `bun:"tenant_id"`
	Email       string    `bun:"email,notnull,unique"`
	FirstName   string    `bun:"first_name"`
	LastName    string    `bun:"last_name"`
	Role        string    `bun:"role,notnull"`
	Avatar      string    `bun:"avatar"`
	IsActive    bool      `bun:"is_active,notnull"`
	IsSuperuser bool      `bun:"is_superuser,notnull"`
	CreatedAt   time.Time `bun:"created_at,notnull"`
	UpdatedAt   time.Time `bun:"updated_at,notnull"`
}

type CourseModel struct {
	bun.BaseModel `bun:"table:courses,alias:c"`

	ID               string    `bun:"id,pk"`
	TenantID         string    `bun:"tenant_id,notnull"`
	InstructorID     string    `bun:"instructor_id,notnull"`
	Title            string    `bun:"title,notnull"`
	Description      string    `bun:"description"`
	ShortDescription string    `bun:"short_description"`
	Thumbnail        string    `bun:"thumbnail"`
	Difficulty       string    `bun:"difficulty,notnull"`
	Status           string    `bun:"status,notnull"`
	Price            string    `bun:"price,notnull"`
	IsFree           bool      `bun:"is_free,notnull"`
	EstimatedHours   int       `bun:"estimated_hours"`
	MaxStudents      *int      `bun:"max_students"`
	CreatedAt        time.Time `bun:"created_at,notnull"`
	UpdatedAt        time.Time `bun:"updated_at,notnull"`
}

type ModuleModel struct {
	bun.BaseModel `bun:"table:course_modules,alias:m"`

	ID        string    `bun:"id,pk"`
	CourseID  string    `bun:"course_id,notnull"`
	Title     string    `bun:"title,notnull"`
	Position  int       `bun:"position,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

type LessonModel struct {
	bun.BaseModel `bun:"table:lessons,alias:l"`

	ID        string    `bun:"id,pk"`
	ModuleID  string    `bun:"module_id,notnull"`
	Title     string    `bun:"title,notnull"`
	Position  int       `bun:"position,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

type EnrollmentModel struct {
	bun.BaseModel `bun:"table:enrollments,alias:e"`

	ID         string    `bun:"id,pk"`
	UserID     string    `bun:"user_id,notnull,unique:user_course"`
	CourseID   string    `bun:"course_id,notnull,unique:user_course"`
	Status     string    `bun:"status,notnull"`
	EnrolledAt time.Time `bun:"enrolled_at,notnull"`
	CreatedAt  time.Time `bun:"created_at,notnull"`
	UpdatedAt  time.Time `bun:"updated_at,notnull"`
}

type LessonProgressModel struct {
	bun.BaseModel `bun:"table:lesson_progress,alias:lp"`

	ID          string    `bun:"id,pk"`
	UserID      string    `bun:"user_id,notnull,unique:user_lesson"`
	LessonID    string    `bun:"lesson_id,notnull,unique:user_lesson"`
	IsCompleted bool      `bun:"is_completed,notnull"`
	AccessedAt  time.Time `bun:"accessed_at,notnull"`
	CreatedAt   time.Time `bun:"created_at,notnull"`
	UpdatedAt   time.Time `bun:"updated_at,notnull"`
}

type ReviewModel struct {
	bun.BaseModel `bun:"table:course_reviews,alias:r"`

	ID        string    `bun:"id,pk"`
	CourseID  string    `bun:"course_id,notnull,unique:user_review"`
	UserID    string    `bun:"user_id,notnull,unique:user_review"`
	Rating    int       `bun:"rating,notnull"`
	Comment   string    `bun:"comment"`
	CreatedAt time.Time `bun:"created_at,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

// allModels lists the tables in creation order.
func allModels() []any {
	return []any{
		(*TenantModel)(nil),
		(*UserModel)(nil),
		(*CourseModel)(nil),
		(*ModuleModel)(nil),
		(*LessonModel)(nil),
		(*EnrollmentModel)(nil),
		(*LessonProgressModel)(nil),
		(*ReviewModel)(nil),
	}
}

// stamp fills the id and timestamps the way every model needs them.
func stamp(query bun.Query, id *string, createdAt, updatedAt *time.Time) {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if *id == "" {
			*id = uuid.NewString()
		}
		if createdAt.IsZero() {
			*createdAt = now
		}
		*updatedAt = now
	case *bun.UpdateQuery:
		*updatedAt = now
	}
}

var (
	_ bun.BeforeAppendModelHook = (*TenantModel)(nil)
	_ bun.BeforeAppendModelHook = (*UserModel)(nil)
	_ bun.BeforeAppendModelHook = (*CourseModel)(nil)
	_ bun.BeforeAppendModelHook = (*ModuleModel)(nil)
	_ bun.BeforeAppendModelHook = (*LessonModel)(nil)
	_ bun.BeforeAppendModelHook = (*EnrollmentModel)(nil)
	_ bun.BeforeAppendModelHook = (*LessonProgressModel)(nil)
	_ bun.BeforeAppendModelHook = (*ReviewModel)(nil)
)

func (m *TenantModel) BeforeAppendModel(_ context.Context, q bun.Query) error {
	stamp(q, &m.ID, &m.CreatedAt, &m.UpdatedAt)
	return nil
}

func (m *UserModel) BeforeAppendModel(_ context.Context, q bun.Query) error {
	stamp(q, &m.ID, &m.CreatedAt, &m.UpdatedAt)
	return nil
}

func (m *CourseModel) BeforeAppendModel(_ context.Context, q bun.Query) error {
	stamp(q, &m.ID, &m.CreatedAt, &m.UpdatedAt)
	return nil
}

func (m *ModuleModel) BeforeAppendModel(_ context.Context, q bun.Query) error {
	stamp(q, &m.ID, &m.CreatedAt, &m.UpdatedAt)
	return nil
}

func (m *LessonModel) BeforeAppendModel(_ context.Context, q bun.Query) error {
	stamp(q, &m.ID, &m.CreatedAt, &m.UpdatedAt)
	return nil
}

func (m *EnrollmentModel) BeforeAppendModel(_ context.Context, q bun.Query) error {
	stamp(q, &m.ID, &m.CreatedAt, &m.UpdatedAt)
	if m.EnrolledAt.IsZero() {
		m.EnrolledAt = m.CreatedAt
	}
	return nil
}

func (m *LessonProgressModel) BeforeAppendModel(_ context.Context, q bun.Query) error {
	stamp(q, &m.ID, &m.CreatedAt, &m.UpdatedAt)
	if m.AccessedAt.IsZero() {
		m.AccessedAt = m.UpdatedAt
	}
	return nil
}

func (m *ReviewModel) BeforeAppendModel(_ context.Context, q bun.Query) error {
	stamp(q, &m.ID, &m.CreatedAt, &m.UpdatedAt)
	return nil
}
