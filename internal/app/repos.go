package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/coursehub-backend/internal/data/repos"
	"github.com/yungbote/coursehub-backend/internal/platform/logger"
)

type Repos struct {
	User           repos.UserRepo
	UserToken      repos.UserTokenRepo
	Course         repos.CourseRepo
	Lesson         repos.LessonRepo
	Enrollment     repos.EnrollmentRepo
	LessonProgress repos.LessonProgressRepo
	Payment        repos.PaymentRepo
	WebhookEvent   repos.WebhookEventRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		User:           repos.NewUserRepo(db, log),
		UserToken:      repos.NewUserTokenRepo(db, log),
		Course:         repos.NewCourseRepo(db, log),
		Lesson:         repos.NewLessonRepo(db, log),
		Enrollment:     repos.NewEnrollmentRepo(db, log),
		LessonProgress: repos.NewLessonProgressRepo(db, log),
		Payment:        repos.NewPaymentRepo(db, log),
		WebhookEvent:   repos.NewWebhookEventRepo(db, log),
	}
}
