package learning

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Course is a catalog entry. Price is in minor currency units (kobo, cents).
// Students, Rating and Reviews are denormalized counters that only move through
// atomic deltas issued by the enrollment paths.
type Course struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Title        string     `gorm:"not null;column:title" json:"title"`
	Description  string     `gorm:"type:text;column:description" json:"description"`
	Price        int64      `gorm:"not null;column:price" json:"price"`
	Currency     string     `gorm:"not null;column:currency" json:"currency"`
	Category     string     `gorm:"column:category;index" json:"category"`
	Level        string     `gorm:"column:level" json:"level"`
	ThumbnailURL string     `gorm:"column:thumbnail_url" json:"thumbnail_url"`
	InstructorID *uuid.UUID `gorm:"type:uuid;column:instructor_id;index" json:"instructor_id,omitempty"`

	Students int64   `gorm:"not null;column:students" json:"students"`
	Rating   float64 `gorm:"not null;column:rating" json:"rating"`
	Reviews  int64   `gorm:"not null;column:reviews" json:"reviews"`

	IsPublished bool `gorm:"not null;column:is_published;index" json:"is_published"`

	Lessons []*Lesson `gorm:"foreignKey:CourseID;references:ID" json:"lessons,omitempty"`

	CreatedAt time.Time      `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Course) TableName() string { return "course" }

func (c *Course) IsFree() bool { return c != nil && c.Price == 0 }
