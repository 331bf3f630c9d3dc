package testutil

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/coursehub-backend/internal/domain"
)

func SeedUser(tb testing.TB, db *gorm.DB, email, role string) *types.User {
	tb.Helper()
	if role == "" {
		role = types.RoleStudent
	}
	u := &types.User{
		ID:        uuid.New(),
		Email:     email,
		Password:  "pw",
		FirstName: "Ada",
		LastName:  "Lovelace",
		Role:      role,
	}
	if err := db.Create(u).Error; err != nil {
		tb.Fatalf("seed user: %v", err)
	}
	return u
}

// SeedCourse creates a course with lessonCount lessons, ordered by position.
func SeedCourse(tb testing.TB, db *gorm.DB, price int64, published bool, lessonCount int) (*types.Course, []*types.Lesson) {
	tb.Helper()
	c := &types.Course{
		ID:          uuid.New(),
		Title:       "Course " + uuid.NewString()[:8],
		Description: "desc",
		Price:       price,
		Currency:    "NGN",
		Category:    "engineering",
		Level:       "beginner",
		IsPublished: published,
	}
	if err := db.Create(c).Error; err != nil {
		tb.Fatalf("seed course: %v", err)
	}
	lessons := make([]*types.Lesson, 0, lessonCount)
	for i := 0; i < lessonCount; i++ {
		l := &types.Lesson{
			ID:              uuid.New(),
			CourseID:        c.ID,
			Title:           fmt.Sprintf("Lesson %d", i+1),
			MediaURL:        fmt.Sprintf("https://media.example.com/%d.mp4", i+1),
			DurationSeconds: 600,
			Position:        i,
			IsPublished:     true,
		}
		if err := db.Create(l).Error; err != nil {
			tb.Fatalf("seed lesson: %v", err)
		}
		lessons = append(lessons, l)
	}
	return c, lessons
}

func SeedEnrollment(tb testing.TB, db *gorm.DB, userID, courseID uuid.UUID) *types.Enrollment {
	tb.Helper()
	now := time.Now().UTC()
	e := &types.Enrollment{
		ID:                 uuid.New(),
		UserID:             userID,
		CourseID:           courseID,
		CompletedLessonIDs: types.EncodeLessonIDs(nil),
		Source:             types.EnrollmentSourceFree,
		EnrolledAt:         now,
		LastAccessedAt:     now,
	}
	if err := db.Create(e).Error; err != nil {
		tb.Fatalf("seed enrollment: %v", err)
	}
	return e
}

func ReloadCourse(tb testing.TB, db *gorm.DB, id uuid.UUID) *types.Course {
	tb.Helper()
	c := &types.Course{}
	if err := db.Unscoped().Where("id = ?", id).First(c).Error; err != nil {
		tb.Fatalf("reload course: %v", err)
	}
	return c
}

func CountEnrollments(tb testing.TB, db *gorm.DB, userID, courseID uuid.UUID) int64 {
	tb.Helper()
	var n int64
	if err := db.Model(&types.Enrollment{}).Where("user_id = ? AND course_id = ?", userID, courseID).Count(&n).Error; err != nil {
		tb.Fatalf("count enrollments: %v", err)
	}
	return n
}
