package learning

import (
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/coursehub-backend/internal/data/repos/testutil"
	types "github.com/yungbote/coursehub-backend/internal/domain"
)

func TestCourseRepo(t *testing.T) {
	db := testutil.DB(t)
	dbc := testutil.DBC()
	repo := NewCourseRepo(db, testutil.Logger(t))

	c := &types.Course{Title: "Go for Backend", Price: 0, Currency: "NGN", IsPublished: true}
	draft := &types.Course{Title: "Draft", Price: 5000, Currency: "NGN"}
	if _, err := repo.Create(dbc, []*types.Course{c, draft}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if c.ID == uuid.Nil {
		t.Fatalf("Create did not assign an id")
	}

	if got, err := repo.GetByID(dbc, c.ID); err != nil || got == nil || got.Title != c.Title {
		t.Fatalf("GetByID: err=%v got=%+v", err, got)
	}
	if got, err := repo.GetByID(dbc, uuid.New()); err != nil || got != nil {
		t.Fatalf("GetByID missing: err=%v got=%+v", err, got)
	}

	published, err := repo.List(dbc, CourseFilter{PublishedOnly: true})
	if err != nil || len(published) != 1 || published[0].ID != c.ID {
		t.Fatalf("List published: err=%v len=%d", err, len(published))
	}
	if all, err := repo.List(dbc, CourseFilter{Search: "DRA"}); err != nil || len(all) != 1 {
		t.Fatalf("List search: err=%v len=%d", err, len(all))
	}

	if err := repo.UpdateFields(dbc, draft.ID, map[string]interface{}{"is_published": true}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	if err := repo.UpdateFields(dbc, uuid.New(), map[string]interface{}{"title": "x"}); err == nil {
		t.Fatalf("UpdateFields on missing course should fail")
	}

	stats, err := repo.Stats(dbc)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Total != 2 || stats.Published != 2 {
		t.Fatalf("Stats: got=%+v", stats)
	}

	if err := repo.SoftDeleteByIDs(dbc, []uuid.UUID{draft.ID}); err != nil {
		t.Fatalf("SoftDeleteByIDs: %v", err)
	}
	if got, err := repo.GetByID(dbc, draft.ID); err != nil || got != nil {
		t.Fatalf("after SoftDeleteByIDs GetByID: err=%v got=%+v", err, got)
	}
}

func TestCourseRepoIncrementStudentsIsAtomic(t *testing.T) {
	db := testutil.DB(t)
	dbc := testutil.DBC()
	repo := NewCourseRepo(db, testutil.Logger(t))
	c, _ := testutil.SeedCourse(t, db, 0, true, 0)

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- repo.IncrementStudents(dbc, c.ID, 1)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("IncrementStudents: %v", err)
		}
	}
	if got := testutil.ReloadCourse(t, db, c.ID).Students; got != n {
		t.Fatalf("students: got=%d want=%d", got, n)
	}
	if err := repo.IncrementStudents(dbc, uuid.New(), 1); err == nil {
		t.Fatalf("IncrementStudents on missing course should fail")
	}
}

func TestLessonRepoUpdateAndSoftDelete(t *testing.T) {
	db := testutil.DB(t)
	dbc := testutil.DBC()
	repo := NewLessonRepo(db, testutil.Logger(t))
	c, lessons := testutil.SeedCourse(t, db, 0, true, 3)

	if n, err := repo.CountByCourseID(dbc, c.ID); err != nil || n != 3 {
		t.Fatalf("CountByCourseID: err=%v n=%d", err, n)
	}
	if pos, err := repo.NextPosition(dbc, c.ID); err != nil || pos != 3 {
		t.Fatalf("NextPosition: err=%v pos=%d", err, pos)
	}
	empty, _ := testutil.SeedCourse(t, db, 0, true, 0)
	if pos, err := repo.NextPosition(dbc, empty.ID); err != nil || pos != 0 {
		t.Fatalf("NextPosition empty: err=%v pos=%d", err, pos)
	}

	if err := repo.UpdateFields(dbc, lessons[1].ID, map[string]interface{}{"title": "Renamed"}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	got, err := repo.GetByID(dbc, lessons[1].ID)
	if err != nil || got == nil || got.Title != "Renamed" {
		t.Fatalf("GetByID after update: err=%v got=%+v", err, got)
	}

	if err := repo.SoftDeleteByIDs(dbc, []uuid.UUID{lessons[0].ID}); err != nil {
		t.Fatalf("SoftDeleteByIDs: %v", err)
	}
	rows, err := repo.ListByCourseID(dbc, c.ID)
	if err != nil || len(rows) != 2 || rows[0].ID != lessons[1].ID {
		t.Fatalf("ListByCourseID: err=%v len=%d", err, len(rows))
	}
}
