package store

import (
	"context"
	"fmt"

	"github.com/goliatone/go-projection-cache/domaincache"
)

// Demo holds the ids created by SeedDemo.
type Demo struct {
	TenantID     string
	Subdomain    string
	InstructorID string
	StudentIDs   []string
	CourseID     string
	LessonIDs    []string
}

// SeedDemo creates one tenant with an instructor, three students and a
// "Python" course of two modules. The first two students are enrolled and
// have reviewed the course.
func (s *Store) SeedDemo(ctx context.Context) (Demo, error) {
	tenant := &TenantModel{Name: "Acme Academy", Subdomain: "acme", IsActive: true, PlanType: "pro", MaxUsers: 50, MaxCourses: 10}
	if err := s.Insert(ctx, tenant); err != nil {
		return Demo{}, err
	}

	instructor := &UserModel{TenantID: tenant.ID, Email: "ada@acme.test", FirstName: "Ada", LastName: "Lovelace", Role: domaincache.RoleTeacher, IsActive: true}
	records := []any{instructor}
	students := make([]*UserModel, 3)
	for i := range students {
		students[i] = &UserModel{
			TenantID:  tenant.ID,
			Email:     fmt.Sprintf("student%d@acme.test", i+1),
			FirstName: "Student",
			LastName:  fmt.Sprint(i + 1),
			Role:      domaincache.RoleStudent,
			IsActive:  true,
		}
		records = append(records, students[i])
	}
	if err := s.Insert(ctx, records...); err != nil {
		return Demo{}, err
	}

	maxStudents := 25
	course := &CourseModel{
		TenantID:         tenant.ID,
		InstructorID:     instructor.ID,
		Title:            "Python",
		Description:      "Python from the ground up.",
		ShortDescription: "Learn Python",
		Difficulty:       "beginner",
		Status:           "published",
		Price:            "49.99",
		EstimatedHours:   12,
		MaxStudents:      &maxStudents,
	}
	if err := s.Insert(ctx, course); err != nil {
		return Demo{}, err
	}

	demo := Demo{
		TenantID:     tenant.ID,
		Subdomain:    tenant.Subdomain,
		InstructorID: instructor.ID,
		CourseID:     course.ID,
	}
	for _, st := range students {
		demo.StudentIDs = append(demo.StudentIDs, st.ID)
	}

	for mi, lessonCount := range []int{2, 3} {
		module := &ModuleModel{CourseID: course.ID, Title: fmt.Sprintf("Module %d", mi+1), Position: mi}
		if err := s.Insert(ctx, module); err != nil {
			return Demo{}, err
		}
		for li := 0; li < lessonCount; li++ {
			lesson := &LessonModel{ModuleID: module.ID, Title: fmt.Sprintf("Lesson %d.%d", mi+1, li+1), Position: li}
			if err := s.Insert(ctx, lesson); err != nil {
				return Demo{}, err
			}
			demo.LessonIDs = append(demo.LessonIDs, lesson.ID)
		}
	}

	for i, rating := range []int{5, 4} {
		if err := s.Enroll(ctx, students[i].ID, course.ID); err != nil {
			return Demo{}, err
		}
		review := &ReviewModel{CourseID: course.ID, UserID: students[i].ID, Rating: rating}
		if err := s.Insert(ctx, review); err != nil {
			return Demo{}, err
		}
	}
	return demo, nil
}
