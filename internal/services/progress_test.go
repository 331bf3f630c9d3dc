package services

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/coursehub-backend/internal/data/repos/testutil"
	"github.com/yungbote/coursehub-backend/internal/platform/apierr"
)

func TestProgressPercent(t *testing.T) {
	cases := []struct {
		completed, total, want int
	}{
		{0, 0, 0},
		{3, 0, 0},
		{0, 4, 0},
		{1, 4, 25},
		{1, 3, 33},
		{2, 3, 67},
		{1, 8, 13},
		{1, 200, 1},
		{1, 201, 0},
		{199, 200, 99},
		{4, 4, 100},
		{5, 4, 100},
		{-1, 4, 0},
	}
	for _, tc := range cases {
		if got := ProgressPercent(tc.completed, tc.total); got != tc.want {
			t.Errorf("ProgressPercent(%d,%d)=%d want %d", tc.completed, tc.total, got, tc.want)
		}
	}
}

func TestRecordProgressToCertificate(t *testing.T) {
	env := newTestEnv(t)
	svc := env.progressService(t)
	course, lessons := testutil.SeedCourse(t, env.db, 0, true, 4)
	u, caller := env.student(t)
	testutil.SeedEnrollment(t, env.db, u.ID, course.ID)

	want := []int{25, 50, 75, 100}
	for i, l := range lessons {
		res, err := svc.RecordLessonProgress(bgc(), caller, course.ID, l.ID, ProgressInput{Completed: boolPtr(true), WatchTimeSeconds: intPtr(600)})
		if err != nil {
			t.Fatalf("lesson %d: %v", i, err)
		}
		if res.Progress != want[i] || len(res.CompletedLessonIDs) != i+1 {
			t.Fatalf("lesson %d: progress=%d completed=%d", i, res.Progress, len(res.CompletedLessonIDs))
		}
		last := i == len(lessons)-1
		if res.CertificateIssued != last || res.NewlyCertified != last {
			t.Fatalf("lesson %d: certificate=%v newly=%v", i, res.CertificateIssued, res.NewlyCertified)
		}
	}

	e, err := env.enrollments.GetByUserAndCourse(bgc(), u.ID, course.ID)
	if err != nil || e == nil {
		t.Fatalf("reload enrollment: %v", err)
	}
	if e.CertificateIssuedAt == nil || e.CertificateURL == "" {
		t.Fatalf("certificate not published: %+v", e)
	}
	if !env.bucket.has(certificateKey(e.ID)) {
		t.Fatalf("certificate object missing")
	}
	if env.notifier.certificates != 1 {
		t.Fatalf("certificate notifications=%d want 1", env.notifier.certificates)
	}

	// Replaying the final completion never issues twice.
	res, err := svc.RecordLessonProgress(bgc(), caller, course.ID, lessons[3].ID, ProgressInput{Completed: boolPtr(true)})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if res.NewlyCertified || !res.CertificateIssued || res.Progress != 100 {
		t.Fatalf("unexpected replay result %+v", res)
	}

	// Un-completing lowers progress but keeps the certificate.
	res, err = svc.RecordLessonProgress(bgc(), caller, course.ID, lessons[0].ID, ProgressInput{Completed: boolPtr(false)})
	if err != nil {
		t.Fatalf("uncomplete: %v", err)
	}
	if res.Progress != 75 || !res.CertificateIssued {
		t.Fatalf("unexpected result after uncomplete %+v", res)
	}
	if res.Lesson.CompletedAt != nil || res.Lesson.WatchTimeSeconds != 600 {
		t.Fatalf("unexpected lesson row %+v", res.Lesson)
	}
	if env.notifier.certificates != 1 {
		t.Fatalf("certificate notifications=%d want 1", env.notifier.certificates)
	}
}

func TestRecordProgressIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	svc := env.progressService(t)
	course, lessons := testutil.SeedCourse(t, env.db, 0, true, 3)
	u, caller := env.student(t)
	testutil.SeedEnrollment(t, env.db, u.ID, course.ID)

	in := ProgressInput{Completed: boolPtr(true), LastPositionSeconds: intPtr(120)}
	first, err := svc.RecordLessonProgress(bgc(), caller, course.ID, lessons[1].ID, in)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := svc.RecordLessonProgress(bgc(), caller, course.ID, lessons[1].ID, in)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if first.Progress != 33 || second.Progress != 33 {
		t.Fatalf("progress=%d/%d want 33", first.Progress, second.Progress)
	}
	if first.Lesson.CompletedAt == nil || second.Lesson.CompletedAt == nil || !first.Lesson.CompletedAt.Equal(*second.Lesson.CompletedAt) {
		t.Fatalf("completed_at moved: %v -> %v", first.Lesson.CompletedAt, second.Lesson.CompletedAt)
	}
	rows, err := env.progress.ListByUserAndCourse(bgc(), u.ID, course.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows=%d want 1", len(rows))
	}

	// Partial updates keep the stored fields.
	third, err := svc.RecordLessonProgress(bgc(), caller, course.ID, lessons[1].ID, ProgressInput{WatchTimeSeconds: intPtr(42)})
	if err != nil {
		t.Fatalf("third: %v", err)
	}
	if !third.Lesson.Completed || third.Lesson.LastPositionSeconds != 120 || third.Lesson.WatchTimeSeconds != 42 {
		t.Fatalf("unexpected merged row %+v", third.Lesson)
	}
}

func TestRecordProgressRejects(t *testing.T) {
	env := newTestEnv(t)
	svc := env.progressService(t)
	course, lessons := testutil.SeedCourse(t, env.db, 0, true, 2)
	other, otherLessons := testutil.SeedCourse(t, env.db, 0, true, 1)
	u, caller := env.student(t)
	testutil.SeedEnrollment(t, env.db, u.ID, course.ID)
	_, stranger := env.student(t)

	cases := []struct {
		name     string
		caller   Caller
		courseID uuid.UUID
		lessonID uuid.UUID
		in       ProgressInput
		want     error
	}{
		{"anonymous", Caller{}, course.ID, lessons[0].ID, ProgressInput{}, apierr.ErrUnauthorized},
		{"not enrolled", stranger, course.ID, lessons[0].ID, ProgressInput{Completed: boolPtr(true)}, apierr.ErrNotEnrolled},
		{"lesson from another course", caller, course.ID, otherLessons[0].ID, ProgressInput{Completed: boolPtr(true)}, apierr.ErrNotFound},
		{"not enrolled in other course", caller, other.ID, otherLessons[0].ID, ProgressInput{Completed: boolPtr(true)}, apierr.ErrNotEnrolled},
		{"negative watch time", caller, course.ID, lessons[0].ID, ProgressInput{WatchTimeSeconds: intPtr(-1)}, apierr.ErrInvalidArgument},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.RecordLessonProgress(bgc(), tc.caller, tc.courseID, tc.lessonID, tc.in)
			if !errors.Is(err, tc.want) {
				t.Fatalf("err=%v want %v", err, tc.want)
			}
		})
	}
}

func TestGetProgress(t *testing.T) {
	env := newTestEnv(t)
	svc := env.progressService(t)
	course, lessons := testutil.SeedCourse(t, env.db, 0, true, 3)
	u, caller := env.student(t)
	testutil.SeedEnrollment(t, env.db, u.ID, course.ID)

	if _, err := svc.RecordLessonProgress(bgc(), caller, course.ID, lessons[2].ID, ProgressInput{Completed: boolPtr(true)}); err != nil {
		t.Fatalf("record: %v", err)
	}
	got, err := svc.GetProgress(bgc(), caller, course.ID)
	if err != nil {
		t.Fatalf("GetProgress: %v", err)
	}
	if got.Enrollment.Progress != 33 || len(got.Lessons) != 3 {
		t.Fatalf("unexpected progress %+v", got)
	}
	for i, ls := range got.Lessons {
		hasRow := ls.Progress != nil
		if hasRow != (i == 2) {
			t.Fatalf("lesson %d: progress row present=%v", i, hasRow)
		}
	}
	_, stranger := env.student(t)
	if _, err := svc.GetProgress(bgc(), stranger, course.ID); !errors.Is(err, apierr.ErrNotEnrolled) {
		t.Fatalf("err=%v want not enrolled", err)
	}
}
