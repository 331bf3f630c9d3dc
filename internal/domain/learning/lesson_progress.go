package learning

import (
	"time"

	"github.com/google/uuid"
)

type LessonProgress struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID   uuid.UUID `gorm:"type:uuid;not null;column:user_id;uniqueIndex:idx_lesson_progress_user_course_lesson,priority:1" json:"user_id"`
	CourseID uuid.UUID `gorm:"type:uuid;not null;column:course_id;uniqueIndex:idx_lesson_progress_user_course_lesson,priority:2;index" json:"course_id"`
	LessonID uuid.UUID `gorm:"type:uuid;not null;column:lesson_id;uniqueIndex:idx_lesson_progress_user_course_lesson,priority:3" json:"lesson_id"`

	Completed           bool       `gorm:"not null;column:completed" json:"completed"`
	WatchTimeSeconds    int        `gorm:"not null;column:watch_time_seconds" json:"watch_time_seconds"`
	LastPositionSeconds int        `gorm:"not null;column:last_position_seconds" json:"last_position_seconds"`
	CompletedAt         *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (LessonProgress) TableName() string { return "lesson_progress" }
