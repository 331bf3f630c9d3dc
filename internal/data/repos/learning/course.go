package learning

import (
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/coursehub-backend/internal/domain"
	"github.com/yungbote/coursehub-backend/internal/pkg/dbctx"
	"github.com/yungbote/coursehub-backend/internal/platform/logger"
)

type CourseFilter struct {
	PublishedOnly bool
	Category      string
	Search        string
	Limit         int
	Offset        int
}

type CourseStats struct {
	Total     int64
	Published int64
	Students  int64
}

type CourseRepo interface {
	Create(dbc dbctx.Context, courses []*types.Course) ([]*types.Course, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Course, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Course, error)
	GetByTitle(dbc dbctx.Context, title string) (*types.Course, error)
	List(dbc dbctx.Context, f CourseFilter) ([]*types.Course, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	IncrementStudents(dbc dbctx.Context, id uuid.UUID, delta int) error
	Stats(dbc dbctx.Context) (CourseStats, error)
	SoftDeleteByIDs(dbc dbctx.Context, ids []uuid.UUID) error
	FullDeleteByIDs(dbc dbctx.Context, ids []uuid.UUID) error
}

type courseRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCourseRepo(db *gorm.DB, baseLog *logger.Logger) CourseRepo {
	return &courseRepo{db: db, log: baseLog.With("repo", "CourseRepo")}
}

func (r *courseRepo) dbx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *courseRepo) Create(dbc dbctx.Context, courses []*types.Course) ([]*types.Course, error) {
	if len(courses) == 0 {
		return []*types.Course{}, nil
	}
	for _, c := range courses {
		if c.ID == uuid.Nil {
			c.ID = uuid.New()
		}
		for _, l := range c.Lessons {
			if l.ID == uuid.Nil {
				l.ID = uuid.New()
			}
			l.CourseID = c.ID
		}
	}
	if err := r.dbx(dbc).WithContext(dbc.Ctx).Create(&courses).Error; err != nil {
		return nil, err
	}
	return courses, nil
}

func (r *courseRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Course, error) {
	out := []*types.Course{}
	if len(ids) == 0 {
		return out, nil
	}
	if err := r.dbx(dbc).WithContext(dbc.Ctx).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// GetByID returns nil, nil when the course does not exist or is soft deleted.
func (r *courseRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Course, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	rows, err := r.GetByIDs(dbc, []uuid.UUID{id})
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

func (r *courseRepo) GetByTitle(dbc dbctx.Context, title string) (*types.Course, error) {
	out := []*types.Course{}
	if strings.TrimSpace(title) == "" {
		return nil, nil
	}
	if err := r.dbx(dbc).WithContext(dbc.Ctx).Where("title = ?", strings.TrimSpace(title)).Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *courseRepo) List(dbc dbctx.Context, f CourseFilter) ([]*types.Course, error) {
	out := []*types.Course{}
	q := r.dbx(dbc).WithContext(dbc.Ctx).Model(&types.Course{})
	if f.PublishedOnly {
		q = q.Where("is_published = ?", true)
	}
	if c := strings.TrimSpace(f.Category); c != "" {
		q = q.Where("category = ?", c)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		q = q.Where("LOWER(title) LIKE ?", "%"+strings.ToLower(s)+"%")
	}
	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	if err := q.Order("created_at DESC").Limit(limit).Offset(offset).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *courseRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	res := r.dbx(dbc).WithContext(dbc.Ctx).Model(&types.Course{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// IncrementStudents applies the delta in SQL so concurrent enrollments never
// lose an update.
func (r *courseRepo) IncrementStudents(dbc dbctx.Context, id uuid.UUID, delta int) error {
	if id == uuid.Nil || delta == 0 {
		return nil
	}
	res := r.dbx(dbc).WithContext(dbc.Ctx).
		Model(&types.Course{}).
		Where("id = ?", id).
		UpdateColumn("students", gorm.Expr("students + ?", delta))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *courseRepo) Stats(dbc dbctx.Context) (CourseStats, error) {
	var out CourseStats
	t := r.dbx(dbc).WithContext(dbc.Ctx)
	if err := t.Model(&types.Course{}).Count(&out.Total).Error; err != nil {
		return out, err
	}
	if err := t.Model(&types.Course{}).Where("is_published = ?", true).Count(&out.Published).Error; err != nil {
		return out, err
	}
	if err := t.Model(&types.Course{}).Select("COALESCE(SUM(students), 0)").Scan(&out.Students).Error; err != nil {
		return out, err
	}
	return out, nil
}

func (r *courseRepo) SoftDeleteByIDs(dbc dbctx.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return r.dbx(dbc).WithContext(dbc.Ctx).Where("id IN ?", ids).Delete(&types.Course{}).Error
}

func (r *courseRepo) FullDeleteByIDs(dbc dbctx.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return r.dbx(dbc).WithContext(dbc.Ctx).Unscoped().Where("id IN ?", ids).Delete(&types.Course{}).Error
}
