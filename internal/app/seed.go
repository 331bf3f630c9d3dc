package app

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/yungbote/coursehub-backend/internal/data/repos"
	types "github.com/yungbote/coursehub-backend/internal/domain"
	"github.com/yungbote/coursehub-backend/internal/pkg/dbctx"
	"github.com/yungbote/coursehub-backend/internal/platform/logger"
	"github.com/yungbote/coursehub-backend/internal/services"
)

// Catalog is the on-disk seed format:
//
//	courses:
//	  - title: Intro to Go
//	    price: 500000   # minor units
//	    currency: NGN
//	    published: true
//	    lessons:
//	      - title: Setup
//	        media_url: https://cdn.example.com/setup.mp4
//	        duration_seconds: 420
type Catalog struct {
	Courses []CatalogCourse `yaml:"courses"`
}

type CatalogCourse struct {
	Title        string          `yaml:"title"`
	Description  string          `yaml:"description"`
	Price        int64           `yaml:"price"`
	Currency     string          `yaml:"currency"`
	Category     string          `yaml:"category"`
	Level        string          `yaml:"level"`
	ThumbnailURL string          `yaml:"thumbnail_url"`
	Published    bool            `yaml:"published"`
	Lessons      []CatalogLesson `yaml:"lessons"`
}

type CatalogLesson struct {
	Title           string `yaml:"title"`
	MediaURL        string `yaml:"media_url"`
	DurationSeconds int    `yaml:"duration_seconds"`
	// Published defaults to true when omitted.
	Published *bool `yaml:"published"`
}

// seedCaller is the admin identity catalog imports run as.
var seedCaller = services.Caller{
	UserID: uuid.NewSHA1(uuid.NameSpaceURL, []byte("coursehub:catalog-seed")),
	Role:   types.RoleAdmin,
}

func ParseCatalog(r io.Reader) (*Catalog, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	cat := &Catalog{}
	if err := dec.Decode(cat); err != nil {
		if errors.Is(err, io.EOF) {
			return cat, nil
		}
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	seen := map[string]struct{}{}
	for i, c := range cat.Courses {
		title := strings.TrimSpace(c.Title)
		if title == "" {
			return nil, fmt.Errorf("course %d: title required", i)
		}
		if _, dup := seen[title]; dup {
			return nil, fmt.Errorf("course %d: duplicate title %q", i, title)
		}
		seen[title] = struct{}{}
		if c.Price < 0 {
			return nil, fmt.Errorf("course %q: price must not be negative", title)
		}
	}
	return cat, nil
}

func SeedCatalogFile(dbc dbctx.Context, log *logger.Logger, path string, courses repos.CourseRepo, svc services.CourseService) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read catalog: %w", err)
	}
	cat, err := ParseCatalog(bytes.NewReader(raw))
	if err != nil {
		return 0, err
	}
	return SeedCatalog(dbc, log, cat, courses, svc)
}

// SeedCatalog creates every course whose title is not already present and
// returns how many were created. Existing courses are left untouched.
func SeedCatalog(dbc dbctx.Context, log *logger.Logger, cat *Catalog, courses repos.CourseRepo, svc services.CourseService) (int, error) {
	if cat == nil {
		return 0, nil
	}
	created := 0
	for _, c := range cat.Courses {
		existing, err := courses.GetByTitle(dbc, c.Title)
		if err != nil {
			return created, fmt.Errorf("lookup course %q: %w", c.Title, err)
		}
		if existing != nil {
			log.Debug("Catalog course already present", "title", c.Title, "course_id", existing.ID)
			continue
		}
		if _, err := svc.Create(dbc, seedCaller, c.input()); err != nil {
			return created, fmt.Errorf("create course %q: %w", c.Title, err)
		}
		created++
	}
	return created, nil
}

func (c CatalogCourse) input() services.CourseInput {
	in := services.CourseInput{
		Title:        strPtr(strings.TrimSpace(c.Title)),
		Description:  strPtr(c.Description),
		Price:        &c.Price,
		Category:     strPtr(c.Category),
		Level:        strPtr(c.Level),
		ThumbnailURL: strPtr(c.ThumbnailURL),
		IsPublished:  &c.Published,
	}
	if cur := strings.TrimSpace(c.Currency); cur != "" {
		in.Currency = &cur
	}
	for i := range c.Lessons {
		l := c.Lessons[i]
		published := true
		if l.Published != nil {
			published = *l.Published
		}
		in.Lessons = append(in.Lessons, services.LessonInput{
			Title:           strPtr(l.Title),
			MediaURL:        strPtr(l.MediaURL),
			DurationSeconds: &l.DurationSeconds,
			IsPublished:     &published,
		})
	}
	return in
}

func strPtr(s string) *string { return &s }
