package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/coursehub-backend/internal/http"
	httpH "github.com/yungbote/coursehub-backend/internal/http/handlers"
	httpMW "github.com/yungbote/coursehub-backend/internal/http/middleware"
	"github.com/yungbote/coursehub-backend/internal/observability"
	"github.com/yungbote/coursehub-backend/internal/platform/logger"
)

type Middleware struct {
	Auth *httpMW.AuthMiddleware
}

type Handlers struct {
	Health      *httpH.HealthHandler
	Auth        *httpH.AuthHandler
	User        *httpH.UserHandler
	Course      *httpH.CourseHandler
	Enrollment  *httpH.EnrollmentHandler
	Progress    *httpH.ProgressHandler
	Payment     *httpH.PaymentHandler
	Certificate *httpH.CertificateHandler
	Dashboard   *httpH.DashboardHandler
}

func wireHandlers(db *gorm.DB, log *logger.Logger, services Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:      httpH.NewHealthHandler(db),
		Auth:        httpH.NewAuthHandler(services.Auth),
		User:        httpH.NewUserHandler(services.User),
		Course:      httpH.NewCourseHandler(services.Course),
		Enrollment:  httpH.NewEnrollmentHandler(services.Enrollment),
		Progress:    httpH.NewProgressHandler(services.Progress),
		Payment:     httpH.NewPaymentHandler(log, services.Payment),
		Certificate: httpH.NewCertificateHandler(services.Certificate),
		Dashboard:   httpH.NewDashboardHandler(services.Dashboard),
	}
}

func wireMiddleware(log *logger.Logger, services Services) Middleware {
	log.Info("Wiring middleware...")
	return Middleware{
		Auth: httpMW.NewAuthMiddleware(log, services.Auth),
	}
}

func wireServer(log *logger.Logger, cfg Config, metrics *observability.Metrics, handlers Handlers, middleware Middleware) *http.Server {
	return http.NewServer(http.RouterConfig{
		Log:                log,
		ServiceName:        cfg.Otel.ServiceName,
		CORSOrigins:        cfg.CORSOrigins,
		Metrics:            metrics,
		AuthMiddleware:     middleware.Auth,
		HealthHandler:      handlers.Health,
		AuthHandler:        handlers.Auth,
		UserHandler:        handlers.User,
		CourseHandler:      handlers.Course,
		EnrollmentHandler:  handlers.Enrollment,
		ProgressHandler:    handlers.Progress,
		PaymentHandler:     handlers.Payment,
		CertificateHandler: handlers.Certificate,
		DashboardHandler:   handlers.Dashboard,
	})
}
