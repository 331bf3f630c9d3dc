package domain

import (
	"github.com/yungbote/coursehub-backend/internal/domain/auth"
	"github.com/yungbote/coursehub-backend/internal/domain/billing"
	"github.com/yungbote/coursehub-backend/internal/domain/learning"
	"github.com/yungbote/coursehub-backend/internal/domain/user"
)

const (
	RoleStudent = user.RoleStudent
	RoleAdmin   = user.RoleAdmin

	EnrollmentSourceFree    = learning.EnrollmentSourceFree
	EnrollmentSourcePayment = learning.EnrollmentSourcePayment

	PaymentStatusInitialized = billing.PaymentStatusInitialized
	PaymentStatusSuccessful  = billing.PaymentStatusSuccessful
	PaymentStatusFailed      = billing.PaymentStatusFailed

	VerifiedViaVerify  = billing.VerifiedViaVerify
	VerifiedViaWebhook = billing.VerifiedViaWebhook
)

type User = user.User
type UserToken = auth.UserToken

type Course = learning.Course
type Lesson = learning.Lesson
type Enrollment = learning.Enrollment
type LessonProgress = learning.LessonProgress

type Payment = billing.Payment
type PaymentWebhookEvent = billing.PaymentWebhookEvent

var EncodeLessonIDs = learning.EncodeLessonIDs

// Models lists every persisted type in migration order.
func Models() []interface{} {
	return []interface{}{
		&User{},
		&UserToken{},
		&Course{},
		&Lesson{},
		&Enrollment{},
		&LessonProgress{},
		&Payment{},
		&PaymentWebhookEvent{},
	}
}
