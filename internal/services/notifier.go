package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/coursehub-backend/internal/data/repos"
	types "github.com/yungbote/coursehub-backend/internal/domain"
	"github.com/yungbote/coursehub-backend/internal/pkg/dbctx"
	"github.com/yungbote/coursehub-backend/internal/platform/logger"
	"github.com/yungbote/coursehub-backend/internal/platform/sendgrid"
)

// Notifier sends learner emails. Every method is best-effort: failures are
// logged and never returned.
type Notifier interface {
	EnrollmentConfirmed(ctx context.Context, userID, courseID uuid.UUID)
	CertificateIssued(ctx context.Context, userID, courseID uuid.UUID, certificateURL string)
}

type emailNotifier struct {
	log      *logger.Logger
	mail     sendgrid.Client
	users    repos.UserRepo
	courses  repos.CourseRepo
	timeout  time.Duration
	category string
}

// NewNotifier returns a no-op notifier when mail is nil.
func NewNotifier(log *logger.Logger, mail sendgrid.Client, users repos.UserRepo, courses repos.CourseRepo) Notifier {
	if mail == nil {
		return noopNotifier{}
	}
	return &emailNotifier{
		log:      log.With("service", "Notifier"),
		mail:     mail,
		users:    users,
		courses:  courses,
		timeout:  10 * time.Second,
		category: "coursehub",
	}
}

func (n *emailNotifier) EnrollmentConfirmed(ctx context.Context, userID, courseID uuid.UUID) {
	n.send(ctx, userID, courseID, "enrollment", func(u *types.User, c *types.Course) (string, string) {
		return fmt.Sprintf("You're enrolled in %s", c.Title),
			fmt.Sprintf("Hi %s,\n\nYou now have full access to \"%s\". Happy learning!", firstNonEmpty(u.FirstName, "there"), c.Title)
	})
}

func (n *emailNotifier) CertificateIssued(ctx context.Context, userID, courseID uuid.UUID, certificateURL string) {
	n.send(ctx, userID, courseID, "certificate", func(u *types.User, c *types.Course) (string, string) {
		body := fmt.Sprintf("Congratulations %s,\n\nYou completed \"%s\" and earned a certificate.", firstNonEmpty(u.FirstName, "there"), c.Title)
		if certificateURL != "" {
			body += "\n\nDownload it here: " + certificateURL
		}
		return fmt.Sprintf("Your certificate for %s", c.Title), body
	})
}

func (n *emailNotifier) send(ctx context.Context, userID, courseID uuid.UUID, kind string, compose func(*types.User, *types.Course) (string, string)) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
	defer cancel()
	dbc := dbctx.New(ctx)

	users, err := n.users.GetByIDs(dbc, []uuid.UUID{userID})
	if err != nil || len(users) == 0 {
		n.log.Warn("Notification skipped, user not loaded", "kind", kind, "user_id", userID, "error", err)
		return
	}
	course, err := n.courses.GetByID(dbc, courseID)
	if err != nil || course == nil {
		n.log.Warn("Notification skipped, course not loaded", "kind", kind, "course_id", courseID, "error", err)
		return
	}
	u := users[0]
	subject, text := compose(u, course)
	_, err = n.mail.Send(ctx, sendgrid.SendEmailRequest{
		To:         []sendgrid.EmailAddress{{Email: u.Email, Name: u.FullName()}},
		Subject:    subject,
		Text:       text,
		Categories: []string{n.category, kind},
		CustomArgs: map[string]string{"course_id": courseID.String()},
	})
	if err != nil {
		n.log.Warn("Notification failed", "kind", kind, "user_id", userID, "error", err)
		return
	}
	n.log.Debug("Notification sent", "kind", kind, "user_id", userID)
}

type noopNotifier struct{}

func (noopNotifier) EnrollmentConfirmed(context.Context, uuid.UUID, uuid.UUID) {}

func (noopNotifier) CertificateIssued(context.Context, uuid.UUID, uuid.UUID, string) {}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
