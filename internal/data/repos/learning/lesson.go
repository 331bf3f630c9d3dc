package learning

import (
	"database/sql"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/coursehub-backend/internal/domain"
	"github.com/yungbote/coursehub-backend/internal/pkg/dbctx"
	"github.com/yungbote/coursehub-backend/internal/platform/logger"
)

type LessonRepo interface {
	Create(dbc dbctx.Context, lessons []*types.Lesson) ([]*types.Lesson, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Lesson, error)
	ListByCourseID(dbc dbctx.Context, courseID uuid.UUID) ([]*types.Lesson, error)
	CountByCourseID(dbc dbctx.Context, courseID uuid.UUID) (int64, error)
	NextPosition(dbc dbctx.Context, courseID uuid.UUID) (int, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	SoftDeleteByIDs(dbc dbctx.Context, ids []uuid.UUID) error
	SoftDeleteByCourseIDs(dbc dbctx.Context, courseIDs []uuid.UUID) error
}

type lessonRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewLessonRepo(db *gorm.DB, baseLog *logger.Logger) LessonRepo {
	return &lessonRepo{db: db, log: baseLog.With("repo", "LessonRepo")}
}

func (r *lessonRepo) dbx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *lessonRepo) Create(dbc dbctx.Context, lessons []*types.Lesson) ([]*types.Lesson, error) {
	if len(lessons) == 0 {
		return []*types.Lesson{}, nil
	}
	for _, l := range lessons {
		if l.ID == uuid.Nil {
			l.ID = uuid.New()
		}
	}
	if err := r.dbx(dbc).WithContext(dbc.Ctx).Create(&lessons).Error; err != nil {
		return nil, err
	}
	return lessons, nil
}

func (r *lessonRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Lesson, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	out := []*types.Lesson{}
	if err := r.dbx(dbc).WithContext(dbc.Ctx).Where("id = ?", id).Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *lessonRepo) ListByCourseID(dbc dbctx.Context, courseID uuid.UUID) ([]*types.Lesson, error) {
	out := []*types.Lesson{}
	if courseID == uuid.Nil {
		return out, nil
	}
	if err := r.dbx(dbc).WithContext(dbc.Ctx).
		Where("course_id = ?", courseID).
		Order("position ASC, created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *lessonRepo) CountByCourseID(dbc dbctx.Context, courseID uuid.UUID) (int64, error) {
	var n int64
	if courseID == uuid.Nil {
		return 0, nil
	}
	if err := r.dbx(dbc).WithContext(dbc.Ctx).Model(&types.Lesson{}).Where("course_id = ?", courseID).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

func (r *lessonRepo) NextPosition(dbc dbctx.Context, courseID uuid.UUID) (int, error) {
	var maxPos sql.NullInt64
	if err := r.dbx(dbc).WithContext(dbc.Ctx).
		Model(&types.Lesson{}).
		Where("course_id = ?", courseID).
		Select("MAX(position)").
		Scan(&maxPos).Error; err != nil {
		return 0, err
	}
	if !maxPos.Valid {
		return 0, nil
	}
	return int(maxPos.Int64) + 1, nil
}

func (r *lessonRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	res := r.dbx(dbc).WithContext(dbc.Ctx).Model(&types.Lesson{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *lessonRepo) SoftDeleteByIDs(dbc dbctx.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return r.dbx(dbc).WithContext(dbc.Ctx).Where("id IN ?", ids).Delete(&types.Lesson{}).Error
}

func (r *lessonRepo) SoftDeleteByCourseIDs(dbc dbctx.Context, courseIDs []uuid.UUID) error {
	if len(courseIDs) == 0 {
		return nil
	}
	return r.dbx(dbc).WithContext(dbc.Ctx).Where("course_id IN ?", courseIDs).Delete(&types.Lesson{}).Error
}
