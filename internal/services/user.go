package services

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/coursehub-backend/internal/data/dberr"
	"github.com/yungbote/coursehub-backend/internal/data/repos"
	types "github.com/yungbote/coursehub-backend/internal/domain"
	"github.com/yungbote/coursehub-backend/internal/pkg/dbctx"
	"github.com/yungbote/coursehub-backend/internal/platform/apierr"
	"github.com/yungbote/coursehub-backend/internal/platform/logger"
)

type UserService interface {
	GetMe(dbc dbctx.Context, caller Caller) (*types.User, error)
}

type userService struct {
	db       *gorm.DB
	log      *logger.Logger
	userRepo repos.UserRepo
}

func NewUserService(db *gorm.DB, log *logger.Logger, userRepo repos.UserRepo) UserService {
	return &userService{
		db:       db,
		log:      log.With("service", "UserService"),
		userRepo: userRepo,
	}
}

func (us *userService) GetMe(dbc dbctx.Context, caller Caller) (*types.User, error) {
	if err := requireAuthenticated(caller); err != nil {
		return nil, err
	}
	users, err := us.userRepo.GetByIDs(dbc, []uuid.UUID{caller.UserID})
	if err != nil {
		return nil, dberr.Map("load user", err)
	}
	if len(users) == 0 {
		us.log.Warn("Authenticated user missing", "user_id", caller.UserID)
		return nil, apierr.Wrap(apierr.ErrNotFound, "user %s", caller.UserID)
	}
	return users[0], nil
}
