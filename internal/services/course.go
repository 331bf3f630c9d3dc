package services

import (
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/coursehub-backend/internal/clients/gcp"
	"github.com/yungbote/coursehub-backend/internal/data/dberr"
	"github.com/yungbote/coursehub-backend/internal/data/repos"
	types "github.com/yungbote/coursehub-backend/internal/domain"
	"github.com/yungbote/coursehub-backend/internal/pkg/dbctx"
	"github.com/yungbote/coursehub-backend/internal/platform/apierr"
	"github.com/yungbote/coursehub-backend/internal/platform/logger"
)

type CourseQuery struct {
	Category string
	Search   string
	Limit    int
	Offset   int
	// IncludeDrafts only takes effect for admins.
	IncludeDrafts bool
}

type CourseInput struct {
	Title        *string       `json:"title"`
	Description  *string       `json:"description"`
	Price        *int64        `json:"price"`
	Currency     *string       `json:"currency"`
	Category     *string       `json:"category"`
	Level        *string       `json:"level"`
	ThumbnailURL *string       `json:"thumbnail_url"`
	InstructorID *uuid.UUID    `json:"instructor_id"`
	IsPublished  *bool         `json:"is_published"`
	Lessons      []LessonInput `json:"lessons,omitempty"`
}

type LessonInput struct {
	Title           *string `json:"title"`
	MediaURL        *string `json:"media_url"`
	DurationSeconds *int    `json:"duration_seconds"`
	Position        *int    `json:"position"`
	IsPublished     *bool   `json:"is_published"`
}

type CourseDetail struct {
	Course  *types.Course   `json:"course"`
	Lessons []*types.Lesson `json:"lessons"`
}

type CourseService interface {
	List(dbc dbctx.Context, caller Caller, q CourseQuery) ([]*types.Course, error)
	Get(dbc dbctx.Context, caller Caller, id uuid.UUID) (*CourseDetail, error)

	Create(dbc dbctx.Context, caller Caller, in CourseInput) (*CourseDetail, error)
	Update(dbc dbctx.Context, caller Caller, id uuid.UUID, in CourseInput) (*types.Course, error)
	Delete(dbc dbctx.Context, caller Caller, id uuid.UUID) error

	AddLesson(dbc dbctx.Context, caller Caller, courseID uuid.UUID, in LessonInput) (*types.Lesson, error)
	UpdateLesson(dbc dbctx.Context, caller Caller, courseID, lessonID uuid.UUID, in LessonInput) (*types.Lesson, error)
	DeleteLesson(dbc dbctx.Context, caller Caller, courseID, lessonID uuid.UUID) error
}

type courseService struct {
	db              *gorm.DB
	log             *logger.Logger
	courses         repos.CourseRepo
	lessons         repos.LessonRepo
	enrollments     repos.EnrollmentRepo
	progress        repos.LessonProgressRepo
	bucket          gcp.BucketService
	defaultCurrency string
}

// NewCourseService accepts a nil bucket; certificate objects are then left alone on delete.
func NewCourseService(
	db *gorm.DB,
	baseLog *logger.Logger,
	courses repos.CourseRepo,
	lessons repos.LessonRepo,
	enrollments repos.EnrollmentRepo,
	progress repos.LessonProgressRepo,
	bucket gcp.BucketService,
	defaultCurrency string,
) CourseService {
	return &courseService{
		db:              db,
		log:             baseLog.With("service", "CourseService"),
		courses:         courses,
		lessons:         lessons,
		enrollments:     enrollments,
		progress:        progress,
		bucket:          bucket,
		defaultCurrency: strings.ToUpper(firstNonEmpty(strings.TrimSpace(defaultCurrency), "NGN")),
	}
}

func (s *courseService) List(dbc dbctx.Context, caller Caller, q CourseQuery) ([]*types.Course, error) {
	rows, err := s.courses.List(dbc, repos.CourseFilter{
		PublishedOnly: !(caller.IsAdmin() && q.IncludeDrafts),
		Category:      q.Category,
		Search:        q.Search,
		Limit:         q.Limit,
		Offset:        q.Offset,
	})
	if err != nil {
		return nil, dberr.Map("list courses", err)
	}
	return rows, nil
}

func (s *courseService) Get(dbc dbctx.Context, caller Caller, id uuid.UUID) (*CourseDetail, error) {
	if id == uuid.Nil {
		return nil, apierr.Wrap(apierr.ErrInvalidArgument, "course id required")
	}
	course, err := s.courses.GetByID(dbc, id)
	if err != nil {
		return nil, dberr.Map("load course", err)
	}
	if course == nil || (!course.IsPublished && !caller.IsAdmin()) {
		return nil, apierr.Wrap(apierr.ErrNotFound, "course %s", id)
	}
	lessons, err := s.lessons.ListByCourseID(dbc, id)
	if err != nil {
		return nil, dberr.Map("list lessons", err)
	}
	if !caller.IsAdmin() {
		visible := lessons[:0]
		for _, l := range lessons {
			if l.IsPublished {
				visible = append(visible, l)
			}
		}
		lessons = visible
	}
	return &CourseDetail{Course: course, Lessons: lessons}, nil
}

func (s *courseService) Create(dbc dbctx.Context, caller Caller, in CourseInput) (*CourseDetail, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	course := &types.Course{Currency: s.defaultCurrency}
	if err := applyCourseInput(course, in); err != nil {
		return nil, err
	}
	if strings.TrimSpace(course.Title) == "" {
		return nil, apierr.Wrap(apierr.ErrInvalidArgument, "title required")
	}
	for i, li := range in.Lessons {
		l := &types.Lesson{Position: i, IsPublished: true}
		if err := applyLessonInput(l, li); err != nil {
			return nil, err
		}
		if strings.TrimSpace(l.Title) == "" {
			return nil, apierr.Wrap(apierr.ErrInvalidArgument, "lesson %d: title required", i)
		}
		course.Lessons = append(course.Lessons, l)
	}

	if _, err := s.courses.Create(dbc, []*types.Course{course}); err != nil {
		return nil, dberr.Map("create course", err)
	}
	s.log.Info("Course created", "course_id", course.ID, "lessons", len(course.Lessons))
	lessons := course.Lessons
	course.Lessons = nil
	if lessons == nil {
		lessons = []*types.Lesson{}
	}
	return &CourseDetail{Course: course, Lessons: lessons}, nil
}

func (s *courseService) Update(dbc dbctx.Context, caller Caller, id uuid.UUID, in CourseInput) (*types.Course, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	course, err := s.courses.GetByID(dbc, id)
	if err != nil {
		return nil, dberr.Map("load course", err)
	}
	if course == nil {
		return nil, apierr.Wrap(apierr.ErrNotFound, "course %s", id)
	}
	if len(in.Lessons) > 0 {
		return nil, apierr.Wrap(apierr.ErrInvalidArgument, "lessons are managed through the lesson endpoints")
	}
	if err := applyCourseInput(course, in); err != nil {
		return nil, err
	}
	if strings.TrimSpace(course.Title) == "" {
		return nil, apierr.Wrap(apierr.ErrInvalidArgument, "title required")
	}
	// Counters are owned by the reconcilers and never written here.
	updates := map[string]interface{}{
		"title":         course.Title,
		"description":   course.Description,
		"price":         course.Price,
		"currency":      course.Currency,
		"category":      course.Category,
		"level":         course.Level,
		"thumbnail_url": course.ThumbnailURL,
		"instructor_id": course.InstructorID,
		"is_published":  course.IsPublished,
	}
	if err := s.courses.UpdateFields(dbc, id, updates); err != nil {
		return nil, dberr.Map("update course", err)
	}
	fresh, err := s.courses.GetByID(dbc, id)
	if err != nil {
		return nil, dberr.Map("reload course", err)
	}
	return fresh, nil
}

// Delete soft-deletes the course and its lessons and removes its enrollments
// and lesson progress.
func (s *courseService) Delete(dbc dbctx.Context, caller Caller, id uuid.UUID) error {
	if err := requireAdmin(caller); err != nil {
		return err
	}
	course, err := s.courses.GetByID(dbc, id)
	if err != nil {
		return dberr.Map("load course", err)
	}
	if course == nil {
		return apierr.Wrap(apierr.ErrNotFound, "course %s", id)
	}
	enrolled, err := s.enrollments.ListByCourseID(dbc, id)
	if err != nil {
		return dberr.Map("list enrollments", err)
	}

	cascade := func(inner dbctx.Context) error {
		ids := []uuid.UUID{id}
		if err := s.progress.DeleteByCourseIDs(inner, ids); err != nil {
			return dberr.Map("delete lesson progress", err)
		}
		if err := s.enrollments.DeleteByCourseIDs(inner, ids); err != nil {
			return dberr.Map("delete enrollments", err)
		}
		if err := s.lessons.SoftDeleteByCourseIDs(inner, ids); err != nil {
			return dberr.Map("delete lessons", err)
		}
		if err := s.courses.SoftDeleteByIDs(inner, ids); err != nil {
			return dberr.Map("delete course", err)
		}
		return nil
	}
	if dbc.Tx != nil {
		err = cascade(dbc)
	} else {
		err = s.db.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
			return cascade(dbc.WithTx(txx))
		})
	}
	if err != nil {
		return err
	}

	if s.bucket != nil {
		for _, e := range enrolled {
			if !e.CertificateIssued || e.CertificateURL == "" {
				continue
			}
			if err := s.bucket.DeleteFile(dbctx.Context{Ctx: dbc.Ctx}, gcp.BucketCategoryCertificate, certificateKey(e.ID)); err != nil {
				s.log.Warn("Certificate object not deleted", "enrollment_id", e.ID, "error", err)
			}
		}
	}
	s.log.Info("Course deleted", "course_id", id, "enrollments_removed", len(enrolled))
	return nil
}

func (s *courseService) AddLesson(dbc dbctx.Context, caller Caller, courseID uuid.UUID, in LessonInput) (*types.Lesson, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	course, err := s.courses.GetByID(dbc, courseID)
	if err != nil {
		return nil, dberr.Map("load course", err)
	}
	if course == nil {
		return nil, apierr.Wrap(apierr.ErrNotFound, "course %s", courseID)
	}
	l := &types.Lesson{CourseID: courseID, IsPublished: true}
	if in.Position == nil {
		pos, err := s.lessons.NextPosition(dbc, courseID)
		if err != nil {
			return nil, dberr.Map("next lesson position", err)
		}
		l.Position = pos
	}
	if err := applyLessonInput(l, in); err != nil {
		return nil, err
	}
	if strings.TrimSpace(l.Title) == "" {
		return nil, apierr.Wrap(apierr.ErrInvalidArgument, "title required")
	}
	if _, err := s.lessons.Create(dbc, []*types.Lesson{l}); err != nil {
		return nil, dberr.Map("create lesson", err)
	}
	return l, nil
}

func (s *courseService) UpdateLesson(dbc dbctx.Context, caller Caller, courseID, lessonID uuid.UUID, in LessonInput) (*types.Lesson, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	l, err := s.lessonInCourse(dbc, courseID, lessonID)
	if err != nil {
		return nil, err
	}
	if err := applyLessonInput(l, in); err != nil {
		return nil, err
	}
	if strings.TrimSpace(l.Title) == "" {
		return nil, apierr.Wrap(apierr.ErrInvalidArgument, "title required")
	}
	if err := s.lessons.UpdateFields(dbc, lessonID, map[string]interface{}{
		"title":            l.Title,
		"media_url":        l.MediaURL,
		"duration_seconds": l.DurationSeconds,
		"position":         l.Position,
		"is_published":     l.IsPublished,
	}); err != nil {
		return nil, dberr.Map("update lesson", err)
	}
	return s.lessons.GetByID(dbc, lessonID)
}

func (s *courseService) DeleteLesson(dbc dbctx.Context, caller Caller, courseID, lessonID uuid.UUID) error {
	if err := requireAdmin(caller); err != nil {
		return err
	}
	if _, err := s.lessonInCourse(dbc, courseID, lessonID); err != nil {
		return err
	}
	if err := s.lessons.SoftDeleteByIDs(dbc, []uuid.UUID{lessonID}); err != nil {
		return dberr.Map("delete lesson", err)
	}
	return nil
}

func (s *courseService) lessonInCourse(dbc dbctx.Context, courseID, lessonID uuid.UUID) (*types.Lesson, error) {
	if courseID == uuid.Nil || lessonID == uuid.Nil {
		return nil, apierr.Wrap(apierr.ErrInvalidArgument, "course id and lesson id required")
	}
	l, err := s.lessons.GetByID(dbc, lessonID)
	if err != nil {
		return nil, dberr.Map("load lesson", err)
	}
	if l == nil || l.CourseID != courseID {
		return nil, apierr.Wrap(apierr.ErrNotFound, "lesson %s in course %s", lessonID, courseID)
	}
	return l, nil
}

func applyCourseInput(c *types.Course, in CourseInput) error {
	if in.Title != nil {
		c.Title = strings.TrimSpace(*in.Title)
	}
	if in.Description != nil {
		c.Description = strings.TrimSpace(*in.Description)
	}
	if in.Price != nil {
		if *in.Price < 0 {
			return apierr.Wrap(apierr.ErrInvalidArgument, "price must be non-negative")
		}
		c.Price = *in.Price
	}
	if in.Currency != nil {
		cur := strings.ToUpper(strings.TrimSpace(*in.Currency))
		if len(cur) != 3 {
			return apierr.Wrap(apierr.ErrInvalidArgument, "currency must be a 3-letter code")
		}
		c.Currency = cur
	}
	if in.Category != nil {
		c.Category = strings.ToLower(strings.TrimSpace(*in.Category))
	}
	if in.Level != nil {
		c.Level = strings.ToLower(strings.TrimSpace(*in.Level))
	}
	if in.ThumbnailURL != nil {
		c.ThumbnailURL = strings.TrimSpace(*in.ThumbnailURL)
	}
	if in.InstructorID != nil {
		if *in.InstructorID == uuid.Nil {
			c.InstructorID = nil
		} else {
			id := *in.InstructorID
			c.InstructorID = &id
		}
	}
	if in.IsPublished != nil {
		c.IsPublished = *in.IsPublished
	}
	return nil
}

func applyLessonInput(l *types.Lesson, in LessonInput) error {
	if in.Title != nil {
		l.Title = strings.TrimSpace(*in.Title)
	}
	if in.MediaURL != nil {
		l.MediaURL = strings.TrimSpace(*in.MediaURL)
	}
	if in.DurationSeconds != nil {
		if *in.DurationSeconds < 0 {
			return apierr.Wrap(apierr.ErrInvalidArgument, "duration must be non-negative")
		}
		l.DurationSeconds = *in.DurationSeconds
	}
	if in.Position != nil {
		if *in.Position < 0 {
			return apierr.Wrap(apierr.ErrInvalidArgument, "position must be non-negative")
		}
		l.Position = *in.Position
	}
	if in.IsPublished != nil {
		l.IsPublished = *in.IsPublished
	}
	return nil
}
