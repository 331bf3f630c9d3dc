package learning

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	EnrollmentSourceFree    = "free"
	EnrollmentSourcePayment = "payment"
)

// Enrollment is the single row per (user, course). The pair is unique at the
// store level; creation paths rely on that index rather than a prior read.
type Enrollment struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID   uuid.UUID `gorm:"type:uuid;not null;column:user_id;uniqueIndex:idx_enrollment_user_course,priority:1" json:"user_id"`
	CourseID uuid.UUID `gorm:"type:uuid;not null;column:course_id;uniqueIndex:idx_enrollment_user_course,priority:2;index" json:"course_id"`

	Progress           int            `gorm:"not null;column:progress" json:"progress"`
	CompletedLessonIDs datatypes.JSON `gorm:"type:jsonb;column:completed_lesson_ids" json:"completed_lesson_ids"`

	Source    string     `gorm:"not null;column:source" json:"source"`
	PaymentID *uuid.UUID `gorm:"type:uuid;column:payment_id" json:"payment_id,omitempty"`

	EnrolledAt     time.Time  `gorm:"not null;column:enrolled_at" json:"enrolled_at"`
	LastAccessedAt time.Time  `gorm:"not null;column:last_accessed_at" json:"last_accessed_at"`
	CompletedAt    *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`

	CertificateIssued   bool       `gorm:"not null;column:certificate_issued" json:"certificate_issued"`
	CertificateIssuedAt *time.Time `gorm:"column:certificate_issued_at" json:"certificate_issued_at,omitempty"`
	CertificateURL      string     `gorm:"column:certificate_url" json:"certificate_url,omitempty"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (Enrollment) TableName() string { return "enrollment" }

func (e *Enrollment) CompletedLessons() []uuid.UUID {
	out := []uuid.UUID{}
	if e == nil || len(e.CompletedLessonIDs) == 0 {
		return out
	}
	_ = json.Unmarshal(e.CompletedLessonIDs, &out)
	return out
}

// EncodeLessonIDs renders ids as a sorted JSON array so identical sets always
// serialize identically.
func EncodeLessonIDs(ids []uuid.UUID) datatypes.JSON {
	cp := append([]uuid.UUID(nil), ids...)
	sort.Slice(cp, func(i, j int) bool { return cp[i].String() < cp[j].String() })
	if cp == nil {
		cp = []uuid.UUID{}
	}
	b, _ := json.Marshal(cp)
	return datatypes.JSON(b)
}
