package services

import (
	"fmt"
	"sort"
	"time"

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

// ProgressInput carries the fields a client reports for one lesson. Nil
// fields keep their stored value.
type ProgressInput struct {
	Completed           *bool `json:"completed"`
	WatchTimeSeconds    *int  `json:"watch_time_seconds"`
	LastPositionSeconds *int  `json:"last_position_seconds"`
}

type ProgressResult struct {
	Enrollment         *types.Enrollment     `json:"enrollment"`
	Lesson             *types.LessonProgress `json:"lesson"`
	Progress           int                   `json:"progress"`
	CompletedLessonIDs []uuid.UUID           `json:"completed_lesson_ids"`
	CertificateIssued  bool                  `json:"certificate_issued"`
	// NewlyCertified is true only for the call whose write issued the certificate.
	NewlyCertified bool `json:"newly_certified"`
}

type LessonState struct {
	Lesson   *types.Lesson         `json:"lesson"`
	Progress *types.LessonProgress `json:"progress,omitempty"`
}

type CourseProgress struct {
	Enrollment *types.Enrollment `json:"enrollment"`
	Lessons    []LessonState     `json:"lessons"`
}

type ProgressService interface {
	RecordLessonProgress(dbc dbctx.Context, caller Caller, courseID, lessonID uuid.UUID, in ProgressInput) (*ProgressResult, error)
	GetProgress(dbc dbctx.Context, caller Caller, courseID uuid.UUID) (*CourseProgress, error)
}

type progressService struct {
	db           *gorm.DB
	log          *logger.Logger
	courses      repos.CourseRepo
	lessons      repos.LessonRepo
	enrollments  repos.EnrollmentRepo
	progress     repos.LessonProgressRepo
	certificates CertificateService
	notifier     Notifier
	now          func() time.Time
}

func NewProgressService(
	db *gorm.DB,
	baseLog *logger.Logger,
	courses repos.CourseRepo,
	lessons repos.LessonRepo,
	enrollments repos.EnrollmentRepo,
	progress repos.LessonProgressRepo,
	certificates CertificateService,
	notifier Notifier,
) ProgressService {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &progressService{
		db:           db,
		log:          baseLog.With("service", "ProgressReconciler"),
		courses:      courses,
		lessons:      lessons,
		enrollments:  enrollments,
		progress:     progress,
		certificates: certificates,
		notifier:     notifier,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (s *progressService) RecordLessonProgress(dbc dbctx.Context, caller Caller, courseID, lessonID uuid.UUID, in ProgressInput) (res *ProgressResult, err error) {
	if err := requireAuthenticated(caller); err != nil {
		return nil, err
	}
	if courseID == uuid.Nil || lessonID == uuid.Nil {
		return nil, apierr.Wrap(apierr.ErrInvalidArgument, "course id and lesson id required")
	}
	if (in.WatchTimeSeconds != nil && *in.WatchTimeSeconds < 0) || (in.LastPositionSeconds != nil && *in.LastPositionSeconds < 0) {
		return nil, apierr.Wrap(apierr.ErrInvalidArgument, "watch time and position must be non-negative")
	}

	ctx, span := tracer.Start(dbc.Ctx, "progress.RecordLessonProgress")
	span.SetAttributes(
		attribute.String("course_id", courseID.String()),
		attribute.String("lesson_id", lessonID.String()),
	)
	defer func() { endSpan(span, err) }()
	dbc = dbctx.Context{Ctx: ctx, Tx: dbc.Tx}

	if dbc.Tx != nil {
		res, err = s.recordInTx(dbc, caller, courseID, lessonID, in)
	} else {
		err = s.db.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
			var txErr error
			res, txErr = s.recordInTx(dbctx.Context{Ctx: ctx, Tx: txx}, caller, courseID, lessonID, in)
			return txErr
		})
	}
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int("progress", res.Progress))
	if res.NewlyCertified {
		observability.Current().IncCertificateIssued()
		s.afterCertificate(dbctx.Context{Ctx: ctx}, res.Enrollment)
	}
	return res, nil
}

func (s *progressService) recordInTx(dbc dbctx.Context, caller Caller, courseID, lessonID uuid.UUID, in ProgressInput) (*ProgressResult, error) {
	course, err := s.courses.GetByID(dbc, courseID)
	if err != nil {
		return nil, dberr.Map("load course", err)
	}
	if course == nil {
		return nil, apierr.Wrap(apierr.ErrNotFound, "course %s", courseID)
	}

	// Locking the enrollment serializes concurrent recomputes for the pair.
	enrollment, err := s.enrollments.GetByUserAndCourseForUpdate(dbc, caller.UserID, courseID)
	if err != nil {
		return nil, dberr.Map("load enrollment", err)
	}
	if enrollment == nil {
		return nil, apierr.ErrNotEnrolled
	}

	lesson, err := s.lessons.GetByID(dbc, lessonID)
	if err != nil {
		return nil, dberr.Map("load lesson", err)
	}
	if lesson == nil || lesson.CourseID != courseID {
		return nil, apierr.Wrap(apierr.ErrNotFound, "lesson %s in course %s", lessonID, courseID)
	}

	now := s.now()
	existing, err := s.progress.Get(dbc, caller.UserID, courseID, lessonID)
	if err != nil {
		return nil, dberr.Map("load lesson progress", err)
	}
	// A fresh id on every call lets the upsert resolve on the triple alone.
	row := &types.LessonProgress{UserID: caller.UserID, CourseID: courseID, LessonID: lessonID}
	if existing != nil {
		row.Completed = existing.Completed
		row.WatchTimeSeconds = existing.WatchTimeSeconds
		row.LastPositionSeconds = existing.LastPositionSeconds
		row.CompletedAt = existing.CompletedAt
	}
	if in.Completed != nil {
		row.Completed = *in.Completed
	}
	if in.WatchTimeSeconds != nil {
		row.WatchTimeSeconds = *in.WatchTimeSeconds
	}
	if in.LastPositionSeconds != nil {
		row.LastPositionSeconds = *in.LastPositionSeconds
	}
	if row.Completed {
		if row.CompletedAt == nil {
			row.CompletedAt = &now
		}
	} else {
		row.CompletedAt = nil
	}
	if err := s.progress.Upsert(dbc, row); err != nil {
		return nil, dberr.Map("upsert lesson progress", err)
	}

	lessons, err := s.lessons.ListByCourseID(dbc, courseID)
	if err != nil {
		return nil, dberr.Map("list lessons", err)
	}
	rows, err := s.progress.ListByUserAndCourse(dbc, caller.UserID, courseID)
	if err != nil {
		return nil, dberr.Map("list lesson progress", err)
	}
	completedIDs := completedLessonIDs(lessons, rows)
	pct := ProgressPercent(len(completedIDs), len(lessons))

	if err := s.enrollments.UpdateProgress(dbc, enrollment.ID, pct, types.EncodeLessonIDs(completedIDs), now); err != nil {
		return nil, dberr.Map("update enrollment progress", err)
	}

	newly := false
	if len(lessons) > 0 && pct == 100 {
		issued, err := s.enrollments.IssueCertificate(dbc, enrollment.ID, now)
		if err != nil {
			return nil, dberr.Map("issue certificate", err)
		}
		newly = issued
	}

	fresh, err := s.enrollments.GetByUserAndCourse(dbc, caller.UserID, courseID)
	if err != nil {
		return nil, dberr.Map("reload enrollment", err)
	}
	if fresh == nil {
		return nil, fmt.Errorf("enrollment %s vanished during update", enrollment.ID)
	}
	if newly {
		s.log.Info("Certificate issued", "enrollment_id", fresh.ID, "course_id", courseID, "user_id", caller.UserID)
	}

	stored, err := s.progress.Get(dbc, caller.UserID, courseID, lessonID)
	if err != nil {
		return nil, dberr.Map("reload lesson progress", err)
	}
	return &ProgressResult{
		Enrollment:         fresh,
		Lesson:             stored,
		Progress:           fresh.Progress,
		CompletedLessonIDs: completedIDs,
		CertificateIssued:  fresh.CertificateIssued,
		NewlyCertified:     newly,
	}, nil
}

// afterCertificate runs best-effort side effects of a first issuance.
func (s *progressService) afterCertificate(dbc dbctx.Context, e *types.Enrollment) {
	url := ""
	if s.certificates != nil {
		u, err := s.certificates.Publish(dbc, e)
		if err != nil {
			s.log.Warn("Certificate publish failed", "enrollment_id", e.ID, "error", err)
		}
		url = u
	}
	s.notifier.CertificateIssued(dbc.Ctx, e.UserID, e.CourseID, url)
}

func (s *progressService) GetProgress(dbc dbctx.Context, caller Caller, courseID uuid.UUID) (*CourseProgress, error) {
	if err := requireAuthenticated(caller); err != nil {
		return nil, err
	}
	if courseID == uuid.Nil {
		return nil, apierr.Wrap(apierr.ErrInvalidArgument, "course id required")
	}
	enrollment, err := s.enrollments.GetByUserAndCourse(dbc, caller.UserID, courseID)
	if err != nil {
		return nil, dberr.Map("load enrollment", err)
	}
	if enrollment == nil {
		return nil, apierr.ErrNotEnrolled
	}
	lessons, err := s.lessons.ListByCourseID(dbc, courseID)
	if err != nil {
		return nil, dberr.Map("list lessons", err)
	}
	rows, err := s.progress.ListByUserAndCourse(dbc, caller.UserID, courseID)
	if err != nil {
		return nil, dberr.Map("list lesson progress", err)
	}
	byLesson := make(map[uuid.UUID]*types.LessonProgress, len(rows))
	for _, r := range rows {
		byLesson[r.LessonID] = r
	}
	out := &CourseProgress{Enrollment: enrollment, Lessons: make([]LessonState, 0, len(lessons))}
	for _, l := range lessons {
		out.Lessons = append(out.Lessons, LessonState{Lesson: l, Progress: byLesson[l.ID]})
	}
	return out, nil
}

// completedLessonIDs keeps completed rows whose lesson still belongs to the
// course, sorted for a stable encoding.
func completedLessonIDs(lessons []*types.Lesson, rows []*types.LessonProgress) []uuid.UUID {
	inCourse := make(map[uuid.UUID]struct{}, len(lessons))
	for _, l := range lessons {
		inCourse[l.ID] = struct{}{}
	}
	out := make([]uuid.UUID, 0, len(rows))
	seen := make(map[uuid.UUID]struct{}, len(rows))
	for _, r := range rows {
		if r == nil || !r.Completed {
			continue
		}
		if _, ok := inCourse[r.LessonID]; !ok {
			continue
		}
		if _, dup := seen[r.LessonID]; dup {
			continue
		}
		seen[r.LessonID] = struct{}{}
		out = append(out, r.LessonID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// ProgressPercent rounds half up and clamps to [0, 100]. No lessons means 0.
// 100 is reserved for a fully completed course, so a partial course tops out
// at 99 however close it gets. This differs from plain round-to-nearest,
// which would report 199 of 200 as 100.
func ProgressPercent(completed, total int) int {
	if total <= 0 || completed <= 0 {
		return 0
	}
	if completed >= total {
		return 100
	}
	pct := (completed*200 + total) / (2 * total)
	if pct > 99 {
		pct = 99
	}
	return pct
}
