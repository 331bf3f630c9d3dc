package learning

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Lesson belongs to exactly one course and is always addressed by ID.
// Position only orders lessons for display.
type Lesson struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CourseID        uuid.UUID `gorm:"type:uuid;not null;index;column:course_id" json:"course_id"`
	Title           string    `gorm:"not null;column:title" json:"title"`
	MediaURL        string    `gorm:"column:media_url" json:"media_url"`
	DurationSeconds int       `gorm:"not null;column:duration_seconds" json:"duration_seconds"`
	Position        int       `gorm:"not null;column:position" json:"position"`
	IsPublished     bool      `gorm:"not null;column:is_published" json:"is_published"`

	CreatedAt time.Time      `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Lesson) TableName() string { return "course_lesson" }
