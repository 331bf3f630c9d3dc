package learning

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/coursehub-backend/internal/domain"
	"github.com/yungbote/coursehub-backend/internal/pkg/dbctx"
	"github.com/yungbote/coursehub-backend/internal/platform/logger"
)

type EnrollmentRepo interface {
	// CreateIfAbsent inserts row unless (user_id, course_id) already exists.
	// created is true only for the caller whose insert landed.
	CreateIfAbsent(dbc dbctx.Context, row *types.Enrollment) (created bool, err error)
	GetByUserAndCourse(dbc dbctx.Context, userID, courseID uuid.UUID) (*types.Enrollment, error)
	// GetByUserAndCourseForUpdate row-locks the enrollment; call it inside a transaction.
	GetByUserAndCourseForUpdate(dbc dbctx.Context, userID, courseID uuid.UUID) (*types.Enrollment, error)
	ListByUserID(dbc dbctx.Context, userID uuid.UUID) ([]*types.Enrollment, error)
	ListByCourseID(dbc dbctx.Context, courseID uuid.UUID) ([]*types.Enrollment, error)
	UpdateProgress(dbc dbctx.Context, id uuid.UUID, progress int, completed datatypes.JSON, accessedAt time.Time) error
	// IssueCertificate flips certificate_issued false -> true. issued is false
	// when the certificate was already issued; the flag is never cleared.
	IssueCertificate(dbc dbctx.Context, id uuid.UUID, at time.Time) (issued bool, err error)
	SetCertificateURL(dbc dbctx.Context, id uuid.UUID, url string) error
	LinkPayment(dbc dbctx.Context, id, paymentID uuid.UUID) error
	Count(dbc dbctx.Context) (int64, error)
	CountCertificates(dbc dbctx.Context) (int64, error)
	DeleteByCourseIDs(dbc dbctx.Context, courseIDs []uuid.UUID) error
}

type enrollmentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEnrollmentRepo(db *gorm.DB, baseLog *logger.Logger) EnrollmentRepo {
	return &enrollmentRepo{db: db, log: baseLog.With("repo", "EnrollmentRepo")}
}

func (r *enrollmentRepo) dbx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *enrollmentRepo) CreateIfAbsent(dbc dbctx.Context, row *types.Enrollment) (bool, error) {
	if row == nil || row.UserID == uuid.Nil || row.CourseID == uuid.Nil {
		return false, nil
	}
	now := time.Now().UTC()
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if row.EnrolledAt.IsZero() {
		row.EnrolledAt = now
	}
	if row.LastAccessedAt.IsZero() {
		row.LastAccessedAt = row.EnrolledAt
	}
	if len(row.CompletedLessonIDs) == 0 {
		row.CompletedLessonIDs = types.EncodeLessonIDs(nil)
	}
	res := r.dbx(dbc).WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "course_id"}},
			DoNothing: true,
		}).
		Create(row)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *enrollmentRepo) GetByUserAndCourse(dbc dbctx.Context, userID, courseID uuid.UUID) (*types.Enrollment, error) {
	return r.getByUserAndCourse(dbc, userID, courseID, false)
}

func (r *enrollmentRepo) GetByUserAndCourseForUpdate(dbc dbctx.Context, userID, courseID uuid.UUID) (*types.Enrollment, error) {
	return r.getByUserAndCourse(dbc, userID, courseID, true)
}

func (r *enrollmentRepo) getByUserAndCourse(dbc dbctx.Context, userID, courseID uuid.UUID, lock bool) (*types.Enrollment, error) {
	if userID == uuid.Nil || courseID == uuid.Nil {
		return nil, nil
	}
	q := r.dbx(dbc).WithContext(dbc.Ctx)
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	out := []*types.Enrollment{}
	if err := q.Where("user_id = ? AND course_id = ?", userID, courseID).
		Limit(1).
		Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *enrollmentRepo) ListByUserID(dbc dbctx.Context, userID uuid.UUID) ([]*types.Enrollment, error) {
	out := []*types.Enrollment{}
	if userID == uuid.Nil {
		return out, nil
	}
	if err := r.dbx(dbc).WithContext(dbc.Ctx).
		Where("user_id = ?", userID).
		Order("last_accessed_at DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *enrollmentRepo) ListByCourseID(dbc dbctx.Context, courseID uuid.UUID) ([]*types.Enrollment, error) {
	out := []*types.Enrollment{}
	if courseID == uuid.Nil {
		return out, nil
	}
	if err := r.dbx(dbc).WithContext(dbc.Ctx).
		Where("course_id = ?", courseID).
		Order("enrolled_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *enrollmentRepo) UpdateProgress(dbc dbctx.Context, id uuid.UUID, progress int, completed datatypes.JSON, accessedAt time.Time) error {
	res := r.dbx(dbc).WithContext(dbc.Ctx).
		Model(&types.Enrollment{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"progress":             progress,
			"completed_lesson_ids": completed,
			"last_accessed_at":     accessedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *enrollmentRepo) IssueCertificate(dbc dbctx.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := r.dbx(dbc).WithContext(dbc.Ctx).
		Model(&types.Enrollment{}).
		Where("id = ? AND certificate_issued = ?", id, false).
		Updates(map[string]interface{}{
			"certificate_issued":    true,
			"certificate_issued_at": at,
			"completed_at":          gorm.Expr("COALESCE(completed_at, ?)", at),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *enrollmentRepo) SetCertificateURL(dbc dbctx.Context, id uuid.UUID, url string) error {
	return r.dbx(dbc).WithContext(dbc.Ctx).
		Model(&types.Enrollment{}).
		Where("id = ?", id).
		Update("certificate_url", url).Error
}

func (r *enrollmentRepo) LinkPayment(dbc dbctx.Context, id, paymentID uuid.UUID) error {
	return r.dbx(dbc).WithContext(dbc.Ctx).
		Model(&types.Enrollment{}).
		Where("id = ? AND payment_id IS NULL", id).
		Update("payment_id", paymentID).Error
}

func (r *enrollmentRepo) Count(dbc dbctx.Context) (int64, error) {
	var n int64
	err := r.dbx(dbc).WithContext(dbc.Ctx).Model(&types.Enrollment{}).Count(&n).Error
	return n, err
}

func (r *enrollmentRepo) CountCertificates(dbc dbctx.Context) (int64, error) {
	var n int64
	err := r.dbx(dbc).WithContext(dbc.Ctx).Model(&types.Enrollment{}).Where("certificate_issued = ?", true).Count(&n).Error
	return n, err
}

func (r *enrollmentRepo) DeleteByCourseIDs(dbc dbctx.Context, courseIDs []uuid.UUID) error {
	if len(courseIDs) == 0 {
		return nil
	}
	return r.dbx(dbc).WithContext(dbc.Ctx).Where("course_id IN ?", courseIDs).Delete(&types.Enrollment{}).Error
}
