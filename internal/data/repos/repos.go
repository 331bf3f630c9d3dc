package repos

import (
	"github.com/yungbote/coursehub-backend/internal/data/repos/auth"
	"github.com/yungbote/coursehub-backend/internal/data/repos/billing"
	"github.com/yungbote/coursehub-backend/internal/data/repos/learning"
	"github.com/yungbote/coursehub-backend/internal/data/repos/user"
	"github.com/yungbote/coursehub-backend/internal/platform/logger"
	"gorm.io/gorm"
)

type UserRepo = user.UserRepo
type UserTokenRepo = auth.UserTokenRepo

type CourseRepo = learning.CourseRepo
type CourseFilter = learning.CourseFilter
type CourseStats = learning.CourseStats
type LessonRepo = learning.LessonRepo
type EnrollmentRepo = learning.EnrollmentRepo
type LessonProgressRepo = learning.LessonProgressRepo

type PaymentRepo = billing.PaymentRepo
type RevenueRow = billing.RevenueRow
type WebhookEventRepo = billing.WebhookEventRepo

func NewUserRepo(db *gorm.DB, log *logger.Logger) UserRepo { return user.NewUserRepo(db, log) }
func NewUserTokenRepo(db *gorm.DB, log *logger.Logger) UserTokenRepo {
	return auth.NewUserTokenRepo(db, log)
}

func NewCourseRepo(db *gorm.DB, log *logger.Logger) CourseRepo { return learning.NewCourseRepo(db, log) }
func NewLessonRepo(db *gorm.DB, log *logger.Logger) LessonRepo { return learning.NewLessonRepo(db, log) }
func NewEnrollmentRepo(db *gorm.DB, log *logger.Logger) EnrollmentRepo {
	return learning.NewEnrollmentRepo(db, log)
}
func NewLessonProgressRepo(db *gorm.DB, log *logger.Logger) LessonProgressRepo {
	return learning.NewLessonProgressRepo(db, log)
}

func NewPaymentRepo(db *gorm.DB, log *logger.Logger) PaymentRepo { return billing.NewPaymentRepo(db, log) }
func NewWebhookEventRepo(db *gorm.DB, log *logger.Logger) WebhookEventRepo {
	return billing.NewWebhookEventRepo(db, log)
}
