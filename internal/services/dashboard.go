package services

import (
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/coursehub-backend/internal/data/dberr"
	"github.com/yungbote/coursehub-backend/internal/data/repos"
	types "github.com/yungbote/coursehub-backend/internal/domain"
	"github.com/yungbote/coursehub-backend/internal/pkg/dbctx"
	"github.com/yungbote/coursehub-backend/internal/platform/logger"
)

const recentPaymentsLimit = 10

type StudentDashboard struct {
	Enrollments  []EnrollmentView `json:"enrollments"`
	InProgress   int              `json:"in_progress"`
	Completed    int              `json:"completed"`
	Certificates int              `json:"certificates"`
}

type AdminDashboard struct {
	Courses            repos.CourseStats  `json:"courses"`
	Students           int64              `json:"students"`
	Admins             int64              `json:"admins"`
	Enrollments        int64              `json:"enrollments"`
	Certificates       int64              `json:"certificates"`
	SuccessfulPayments int64              `json:"successful_payments"`
	FailedPayments     int64              `json:"failed_payments"`
	Revenue            []repos.RevenueRow `json:"revenue"`
	RecentPayments     []*types.Payment   `json:"recent_payments"`
}

type DashboardService interface {
	Student(dbc dbctx.Context, caller Caller) (*StudentDashboard, error)
	Admin(dbc dbctx.Context, caller Caller) (*AdminDashboard, error)
}

type dashboardService struct {
	log         *logger.Logger
	users       repos.UserRepo
	courses     repos.CourseRepo
	enrollments repos.EnrollmentRepo
	payments    repos.PaymentRepo
	enrollSvc   EnrollmentService
}

func NewDashboardService(
	log *logger.Logger,
	users repos.UserRepo,
	courses repos.CourseRepo,
	enrollments repos.EnrollmentRepo,
	payments repos.PaymentRepo,
	enrollSvc EnrollmentService,
) DashboardService {
	return &dashboardService{
		log:         log.With("service", "DashboardService"),
		users:       users,
		courses:     courses,
		enrollments: enrollments,
		payments:    payments,
		enrollSvc:   enrollSvc,
	}
}

func (s *dashboardService) Student(dbc dbctx.Context, caller Caller) (*StudentDashboard, error) {
	views, err := s.enrollSvc.ListMine(dbc, caller)
	if err != nil {
		return nil, err
	}
	out := &StudentDashboard{Enrollments: views}
	for _, v := range views {
		if v.Enrollment == nil {
			continue
		}
		if v.Enrollment.Progress >= 100 {
			out.Completed++
		} else {
			out.InProgress++
		}
		if v.Enrollment.CertificateIssued {
			out.Certificates++
		}
	}
	return out, nil
}

// Admin fans the aggregate queries out. Inside a caller transaction they run
// one at a time since a gorm tx is not safe for concurrent use.
func (s *dashboardService) Admin(dbc dbctx.Context, caller Caller) (*AdminDashboard, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	g, gctx := errgroup.WithContext(dbc.Ctx)
	if dbc.Tx != nil {
		g.SetLimit(1)
	}
	inner := dbctx.Context{Ctx: gctx, Tx: dbc.Tx}
	out := &AdminDashboard{}

	g.Go(func() (err error) {
		out.Courses, err = s.courses.Stats(inner)
		return dberr.Map("course stats", err)
	})
	g.Go(func() (err error) {
		out.Students, err = s.users.CountByRole(inner, types.RoleStudent)
		return dberr.Map("count students", err)
	})
	g.Go(func() (err error) {
		out.Admins, err = s.users.CountByRole(inner, types.RoleAdmin)
		return dberr.Map("count admins", err)
	})
	g.Go(func() (err error) {
		out.Enrollments, err = s.enrollments.Count(inner)
		return dberr.Map("count enrollments", err)
	})
	g.Go(func() (err error) {
		out.Certificates, err = s.enrollments.CountCertificates(inner)
		return dberr.Map("count certificates", err)
	})
	g.Go(func() (err error) {
		out.SuccessfulPayments, err = s.payments.CountByStatus(inner, types.PaymentStatusSuccessful)
		return dberr.Map("count successful payments", err)
	})
	g.Go(func() (err error) {
		out.FailedPayments, err = s.payments.CountByStatus(inner, types.PaymentStatusFailed)
		return dberr.Map("count failed payments", err)
	})
	g.Go(func() (err error) {
		out.Revenue, err = s.payments.RevenueByCurrency(inner)
		return dberr.Map("revenue", err)
	})
	g.Go(func() (err error) {
		out.RecentPayments, err = s.payments.ListRecent(inner, "", recentPaymentsLimit)
		return dberr.Map("recent payments", err)
	})
	if err := g.Wait(); err != nil {
		s.log.Warn("Admin dashboard failed", "error", err)
		return nil, err
	}
	return out, nil
}
