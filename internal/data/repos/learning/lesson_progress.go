package learning

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/coursehub-backend/internal/domain"
	"github.com/yungbote/coursehub-backend/internal/pkg/dbctx"
	"github.com/yungbote/coursehub-backend/internal/platform/logger"
)

type LessonProgressRepo interface {
	Get(dbc dbctx.Context, userID, courseID, lessonID uuid.UUID) (*types.LessonProgress, error)
	// Upsert writes row keyed by (user_id, course_id, lesson_id). An existing
	// completed_at survives replays while the lesson stays completed.
	Upsert(dbc dbctx.Context, row *types.LessonProgress) error
	ListByUserAndCourse(dbc dbctx.Context, userID, courseID uuid.UUID) ([]*types.LessonProgress, error)
	DeleteByCourseIDs(dbc dbctx.Context, courseIDs []uuid.UUID) error
}

type lessonProgressRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewLessonProgressRepo(db *gorm.DB, baseLog *logger.Logger) LessonProgressRepo {
	return &lessonProgressRepo{db: db, log: baseLog.With("repo", "LessonProgressRepo")}
}

func (r *lessonProgressRepo) dbx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *lessonProgressRepo) Get(dbc dbctx.Context, userID, courseID, lessonID uuid.UUID) (*types.LessonProgress, error) {
	out := []*types.LessonProgress{}
	if err := r.dbx(dbc).WithContext(dbc.Ctx).
		Where("user_id = ? AND course_id = ? AND lesson_id = ?", userID, courseID, lessonID).
		Limit(1).
		Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *lessonProgressRepo) Upsert(dbc dbctx.Context, row *types.LessonProgress) error {
	if row == nil {
		return nil
	}
	now := time.Now().UTC()
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	row.UpdatedAt = now
	if row.CreatedAt.IsZero() {
		row.CreatedAt = now
	}
	return r.dbx(dbc).WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "course_id"}, {Name: "lesson_id"}},
			DoUpdates: clause.Set{
				{Column: clause.Column{Name: "completed"}, Value: row.Completed},
				{Column: clause.Column{Name: "watch_time_seconds"}, Value: row.WatchTimeSeconds},
				{Column: clause.Column{Name: "last_position_seconds"}, Value: row.LastPositionSeconds},
				{Column: clause.Column{Name: "completed_at"}, Value: completedAtExpr(row)},
				{Column: clause.Column{Name: "updated_at"}, Value: now},
			},
		}).
		Create(row).Error
}

func completedAtExpr(row *types.LessonProgress) interface{} {
	if !row.Completed || row.CompletedAt == nil {
		return nil
	}
	return gorm.Expr("COALESCE(lesson_progress.completed_at, ?)", *row.CompletedAt)
}

func (r *lessonProgressRepo) ListByUserAndCourse(dbc dbctx.Context, userID, courseID uuid.UUID) ([]*types.LessonProgress, error) {
	out := []*types.LessonProgress{}
	if userID == uuid.Nil || courseID == uuid.Nil {
		return out, nil
	}
	if err := r.dbx(dbc).WithContext(dbc.Ctx).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *lessonProgressRepo) DeleteByCourseIDs(dbc dbctx.Context, courseIDs []uuid.UUID) error {
	if len(courseIDs) == 0 {
		return nil
	}
	return r.dbx(dbc).WithContext(dbc.Ctx).Where("course_id IN ?", courseIDs).Delete(&types.LessonProgress{}).Error
}
