package auth

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/coursehub-backend/internal/domain"
	"github.com/yungbote/coursehub-backend/internal/pkg/dbctx"
	"github.com/yungbote/coursehub-backend/internal/platform/logger"
)

type UserTokenRepo interface {
	Create(dbc dbctx.Context, tokens []*types.UserToken) ([]*types.UserToken, error)
	GetByAccessToken(dbc dbctx.Context, accessToken string) (*types.UserToken, error)
	GetByRefreshToken(dbc dbctx.Context, refreshToken string) (*types.UserToken, error)
	DeleteByIDs(dbc dbctx.Context, ids []uuid.UUID) error
	DeleteExpired(dbc dbctx.Context, now time.Time) (int64, error)
}

type userTokenRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUserTokenRepo(db *gorm.DB, baseLog *logger.Logger) UserTokenRepo {
	return &userTokenRepo{db: db, log: baseLog.With("repo", "UserTokenRepo")}
}

func (r *userTokenRepo) dbx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *userTokenRepo) Create(dbc dbctx.Context, tokens []*types.UserToken) ([]*types.UserToken, error) {
	if len(tokens) == 0 {
		return []*types.UserToken{}, nil
	}
	for _, t := range tokens {
		if t.ID == uuid.Nil {
			t.ID = uuid.New()
		}
	}
	if err := r.dbx(dbc).WithContext(dbc.Ctx).Create(&tokens).Error; err != nil {
		return nil, err
	}
	return tokens, nil
}

func (r *userTokenRepo) getBy(dbc dbctx.Context, column, value string) (*types.UserToken, error) {
	if value == "" {
		return nil, nil
	}
	out := []*types.UserToken{}
	if err := r.dbx(dbc).WithContext(dbc.Ctx).Where(column+" = ?", value).Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *userTokenRepo) GetByAccessToken(dbc dbctx.Context, accessToken string) (*types.UserToken, error) {
	return r.getBy(dbc, "access_token", accessToken)
}

func (r *userTokenRepo) GetByRefreshToken(dbc dbctx.Context, refreshToken string) (*types.UserToken, error) {
	return r.getBy(dbc, "refresh_token", refreshToken)
}

func (r *userTokenRepo) DeleteByIDs(dbc dbctx.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return r.dbx(dbc).WithContext(dbc.Ctx).Where("id IN ?", ids).Delete(&types.UserToken{}).Error
}

func (r *userTokenRepo) DeleteExpired(dbc dbctx.Context, now time.Time) (int64, error) {
	res := r.dbx(dbc).WithContext(dbc.Ctx).Where("expires_at < ?", now).Delete(&types.UserToken{})
	return res.RowsAffected, res.Error
}
