package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/yungbote/coursehub-backend/internal/domain"
	httpH "github.com/yungbote/coursehub-backend/internal/http/handlers"
	httpMW "github.com/yungbote/coursehub-backend/internal/http/middleware"
	"github.com/yungbote/coursehub-backend/internal/observability"
	"github.com/yungbote/coursehub-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	ServiceName    string
	CORSOrigins    []string
	Metrics        *observability.Metrics
	AuthMiddleware *httpMW.AuthMiddleware

	AuthHandler        *httpH.AuthHandler
	UserHandler        *httpH.UserHandler
	CourseHandler      *httpH.CourseHandler
	EnrollmentHandler  *httpH.EnrollmentHandler
	ProgressHandler    *httpH.ProgressHandler
	PaymentHandler     *httpH.PaymentHandler
	CertificateHandler *httpH.CertificateHandler
	DashboardHandler   *httpH.DashboardHandler

	HealthHandler *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "coursehub"
	}
	r.Use(otelgin.Middleware(serviceName))
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/api")
	am := cfg.AuthMiddleware

	// Public
	{
		if cfg.AuthHandler != nil {
			api.POST("/register", cfg.AuthHandler.Register)
			api.POST("/login", cfg.AuthHandler.Login)
			api.POST("/refresh", cfg.AuthHandler.Refresh)
		}
		if cfg.CourseHandler != nil {
			catalog := api.Group("/")
			if am != nil {
				catalog.Use(am.OptionalAuth())
			}
			catalog.GET("/courses", cfg.CourseHandler.ListCourses)
			catalog.GET("/courses/:id", cfg.CourseHandler.GetCourse)
		}
		if cfg.PaymentHandler != nil {
			api.POST("/payments/webhook", cfg.PaymentHandler.Webhook)
		}
	}

	if am == nil {
		return r
	}

	protected := api.Group("/")
	protected.Use(am.RequireAuth())
	{
		if cfg.AuthHandler != nil {
			protected.POST("/logout", cfg.AuthHandler.Logout)
		}
		if cfg.UserHandler != nil {
			protected.GET("/me", cfg.UserHandler.GetMe)
		}
		if cfg.EnrollmentHandler != nil {
			protected.POST("/courses/:id/enroll", cfg.EnrollmentHandler.Enroll)
			protected.GET("/enrollments", cfg.EnrollmentHandler.ListMine)
		}
		if cfg.ProgressHandler != nil {
			protected.GET("/courses/:id/progress", cfg.ProgressHandler.GetProgress)
			protected.PUT("/courses/:id/lessons/:lessonId/progress", cfg.ProgressHandler.RecordLessonProgress)
		}
		if cfg.CertificateHandler != nil {
			protected.GET("/courses/:id/certificate", cfg.CertificateHandler.GetCertificate)
		}
		if cfg.PaymentHandler != nil {
			protected.POST("/payments/initialize", cfg.PaymentHandler.Initialize)
			protected.POST("/payments/verify", cfg.PaymentHandler.Verify)
		}
		if cfg.DashboardHandler != nil {
			protected.GET("/dashboard", cfg.DashboardHandler.Student)
		}
	}

	admin := protected.Group("/admin")
	admin.Use(am.RequireRole(domain.RoleAdmin))
	{
		if cfg.CourseHandler != nil {
			admin.POST("/courses", cfg.CourseHandler.CreateCourse)
			admin.PATCH("/courses/:id", cfg.CourseHandler.UpdateCourse)
			admin.DELETE("/courses/:id", cfg.CourseHandler.DeleteCourse)
			admin.POST("/courses/:id/lessons", cfg.CourseHandler.AddLesson)
			admin.PATCH("/courses/:id/lessons/:lessonId", cfg.CourseHandler.UpdateLesson)
			admin.DELETE("/courses/:id/lessons/:lessonId", cfg.CourseHandler.DeleteLesson)
		}
		if cfg.PaymentHandler != nil {
			admin.GET("/payments", cfg.PaymentHandler.ListPayments)
		}
		if cfg.DashboardHandler != nil {
			admin.GET("/dashboard", cfg.DashboardHandler.Admin)
		}
	}

	return r
}
