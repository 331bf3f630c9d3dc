package billing

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	PaymentStatusInitialized = "initialized"
	PaymentStatusSuccessful  = "successful"
	PaymentStatusFailed      = "failed"
)

const (
	VerifiedViaVerify  = "verify"
	VerifiedViaWebhook = "webhook"
)

// Payment is one gateway transaction attempt. TxRef is ours and exists from
// initialization; TransactionID is the gateway's and is only known after the
// payer returns or the webhook arrives. Both are unique. Once Status is
// successful the row only changes to attach EnrollmentID.
type Payment struct {
	ID            uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	TxRef         string     `gorm:"not null;uniqueIndex;column:tx_ref" json:"tx_ref"`
	TransactionID *string    `gorm:"uniqueIndex;column:transaction_id" json:"transaction_id,omitempty"`
	UserID        *uuid.UUID `gorm:"type:uuid;column:user_id;index" json:"user_id,omitempty"`
	CourseID      *uuid.UUID `gorm:"type:uuid;column:course_id;index" json:"course_id,omitempty"`

	Amount        int64          `gorm:"not null;column:amount" json:"amount"`
	Currency      string         `gorm:"not null;column:currency" json:"currency"`
	Status        string         `gorm:"not null;column:status;index" json:"status"`
	PaymentMethod string         `gorm:"column:payment_method" json:"payment_method,omitempty"`
	Customer      datatypes.JSON `gorm:"type:jsonb;column:customer" json:"customer,omitempty"`
	FailureReason string         `gorm:"column:failure_reason" json:"failure_reason,omitempty"`

	GatewayPayload datatypes.JSON `gorm:"type:jsonb;column:gateway_payload" json:"-"`
	EnrollmentID   *uuid.UUID     `gorm:"type:uuid;column:enrollment_id" json:"enrollment_id,omitempty"`
	VerifiedVia    string         `gorm:"column:verified_via" json:"verified_via,omitempty"`
	VerifiedAt     *time.Time     `gorm:"column:verified_at" json:"verified_at,omitempty"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (Payment) TableName() string { return "payment" }

func (p *Payment) IsSuccessful() bool { return p != nil && p.Status == PaymentStatusSuccessful }
