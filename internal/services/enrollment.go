package services

import (
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/yungbote/coursehub-backend/internal/data/dberr"
	"github.com/yungbote/coursehub-backend/internal/data/repos"
	types "github.com/yungbote/coursehub-backend/internal/domain"
	"github.com/yungbote/coursehub-backend/internal/observability"
	"github.com/yungbote/coursehub-backend/internal/pkg/dbctx"
	"github.com/yungbote/coursehub-backend/internal/platform/apierr"
	"github.com/yungbote/coursehub-backend/internal/platform/logger"
)

type EnrollmentView struct {
	Enrollment *types.Enrollment `json:"enrollment"`
	Course     *types.Course     `json:"course,omitempty"`
}

type EnrollmentService interface {
	EnrollFree(dbc dbctx.Context, caller Caller, courseID uuid.UUID) (*types.Enrollment, error)
	ListMine(dbc dbctx.Context, caller Caller) ([]EnrollmentView, error)
}

type enrollmentService struct {
	db          *gorm.DB
	log         *logger.Logger
	courses     repos.CourseRepo
	enrollments repos.EnrollmentRepo
	notifier    Notifier
}

func NewEnrollmentService(
	db *gorm.DB,
	baseLog *logger.Logger,
	courses repos.CourseRepo,
	enrollments repos.EnrollmentRepo,
	notifier Notifier,
) EnrollmentService {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &enrollmentService{
		db:          db,
		log:         baseLog.With("service", "EnrollmentService"),
		courses:     courses,
		enrollments: enrollments,
		notifier:    notifier,
	}
}

func (s *enrollmentService) EnrollFree(dbc dbctx.Context, caller Caller, courseID uuid.UUID) (out *types.Enrollment, err error) {
	if err := requireAuthenticated(caller); err != nil {
		return nil, err
	}
	if courseID == uuid.Nil {
		return nil, apierr.Wrap(apierr.ErrInvalidArgument, "course id required")
	}
	ctx, span := tracer.Start(dbc.Ctx, "enrollment.EnrollFree")
	span.SetAttributes(attribute.String("course_id", courseID.String()))
	defer func() { endSpan(span, err) }()

	course, err := s.courses.GetByID(dbctx.Context{Ctx: ctx, Tx: dbc.Tx}, courseID)
	if err != nil {
		return nil, dberr.Map("load course", err)
	}
	if course == nil || !course.IsPublished {
		return nil, apierr.Wrap(apierr.ErrNotFound, "course %s", courseID)
	}
	if !course.IsFree() {
		return nil, apierr.Wrap(apierr.ErrPaymentRequired, "course %s costs %d %s", courseID, course.Price, course.Currency)
	}

	var created bool
	run := func(inner dbctx.Context) error {
		e, c, err := materializeEnrollment(inner, s.enrollments, s.courses, caller.UserID, courseID, types.EnrollmentSourceFree, nil)
		if err != nil {
			return err
		}
		out, created = e, c
		return nil
	}
	if dbc.Tx != nil {
		err = run(dbctx.Context{Ctx: ctx, Tx: dbc.Tx})
	} else {
		err = s.db.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
			return run(dbctx.Context{Ctx: ctx, Tx: txx})
		})
	}
	if err != nil {
		return nil, err
	}
	if !created {
		return nil, apierr.ErrAlreadyEnrolled
	}
	s.log.Info("Free enrollment created", "user_id", caller.UserID, "course_id", courseID)
	observability.Current().IncEnrollmentCreated("free")
	s.notifier.EnrollmentConfirmed(ctx, caller.UserID, courseID)
	return out, nil
}

func (s *enrollmentService) ListMine(dbc dbctx.Context, caller Caller) ([]EnrollmentView, error) {
	if err := requireAuthenticated(caller); err != nil {
		return nil, err
	}
	rows, err := s.enrollments.ListByUserID(dbc, caller.UserID)
	if err != nil {
		return nil, dberr.Map("list enrollments", err)
	}
	return attachCourses(dbc, s.courses, rows)
}

func attachCourses(dbc dbctx.Context, courses repos.CourseRepo, rows []*types.Enrollment) ([]EnrollmentView, error) {
	ids := make([]uuid.UUID, 0, len(rows))
	for _, e := range rows {
		ids = append(ids, e.CourseID)
	}
	found, err := courses.GetByIDs(dbc, ids)
	if err != nil {
		return nil, dberr.Map("load courses", err)
	}
	byID := make(map[uuid.UUID]*types.Course, len(found))
	for _, c := range found {
		byID[c.ID] = c
	}
	out := make([]EnrollmentView, 0, len(rows))
	for _, e := range rows {
		out = append(out, EnrollmentView{Enrollment: e, Course: byID[e.CourseID]})
	}
	return out, nil
}

// materializeEnrollment inserts the (user, course) enrollment unless it
// exists and bumps the course's students counter only when a row was
// inserted. Run it inside a transaction.
func materializeEnrollment(
	dbc dbctx.Context,
	enrollments repos.EnrollmentRepo,
	courses repos.CourseRepo,
	userID, courseID uuid.UUID,
	source string,
	paymentID *uuid.UUID,
) (*types.Enrollment, bool, error) {
	row := &types.Enrollment{
		UserID:    userID,
		CourseID:  courseID,
		Source:    source,
		PaymentID: paymentID,
	}
	created, err := enrollments.CreateIfAbsent(dbc, row)
	if err != nil {
		return nil, false, dberr.Map("create enrollment", err)
	}
	if created {
		if err := courses.IncrementStudents(dbc, courseID, 1); err != nil {
			return nil, false, dberr.Map("increment students", err)
		}
	}
	e, err := enrollments.GetByUserAndCourse(dbc, userID, courseID)
	if err != nil {
		return nil, false, dberr.Map("load enrollment", err)
	}
	if e == nil {
		return nil, false, apierr.Wrap(apierr.ErrConflict, "enrollment for course %s not visible after insert", courseID)
	}
	if !created && paymentID != nil && e.PaymentID == nil {
		if err := enrollments.LinkPayment(dbc, e.ID, *paymentID); err != nil {
			return nil, false, dberr.Map("link payment", err)
		}
		e.PaymentID = paymentID
	}
	return e, created, nil
}
