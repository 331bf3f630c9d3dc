package app

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/coursehub-backend/internal/platform/logger"
	"github.com/yungbote/coursehub-backend/internal/services"
)

type Services struct {
	Auth        services.AuthService
	User        services.UserService
	Notifier    services.Notifier
	Course      services.CourseService
	Enrollment  services.EnrollmentService
	Certificate services.CertificateService
	Progress    services.ProgressService
	Payment     services.PaymentService
	Dashboard   services.DashboardService
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, repos Repos, clients Clients) (Services, error) {
	log.Info("Wiring services...")

	authService := services.NewAuthService(db, log, repos.User, repos.UserToken, services.AuthConfig{
		JWTSecretKey: cfg.JWTSecretKey,
		AccessTTL:    cfg.AccessTokenTTL,
		RefreshTTL:   cfg.RefreshTokenTTL,
		AdminEmails:  cfg.AdminEmails,
	})
	userService := services.NewUserService(db, log, repos.User)
	notifier := services.NewNotifier(log, clients.Mail, repos.User, repos.Course)

	certificateService, err := services.NewCertificateService(
		log,
		repos.User,
		repos.Course,
		repos.Enrollment,
		clients.GcpBucket,
		cfg.CertificateFontPath,
	)
	if err != nil {
		return Services{}, fmt.Errorf("init certificate service: %w", err)
	}

	courseService := services.NewCourseService(
		db,
		log,
		repos.Course,
		repos.Lesson,
		repos.Enrollment,
		repos.LessonProgress,
		clients.GcpBucket,
		cfg.PaymentCurrency,
	)
	enrollmentService := services.NewEnrollmentService(db, log, repos.Course, repos.Enrollment, notifier)
	progressService := services.NewProgressService(
		db,
		log,
		repos.Course,
		repos.Lesson,
		repos.Enrollment,
		repos.LessonProgress,
		certificateService,
		notifier,
	)
	paymentService := services.NewPaymentService(
		db,
		log,
		services.PaymentConfig{
			RedirectURL:     cfg.PaymentRedirectURL,
			DefaultCurrency: cfg.PaymentCurrency,
			LockTTL:         cfg.PaymentLockTTL,
		},
		clients.Gateway,
		clients.Locker,
		repos.User,
		repos.Course,
		repos.Enrollment,
		repos.Payment,
		repos.WebhookEvent,
		notifier,
	)
	dashboardService := services.NewDashboardService(
		log,
		repos.User,
		repos.Course,
		repos.Enrollment,
		repos.Payment,
		enrollmentService,
	)

	return Services{
		Auth:        authService,
		User:        userService,
		Notifier:    notifier,
		Course:      courseService,
		Enrollment:  enrollmentService,
		Certificate: certificateService,
		Progress:    progressService,
		Payment:     paymentService,
		Dashboard:   dashboardService,
	}, nil
}
