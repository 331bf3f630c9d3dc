package billing

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// PaymentWebhookEvent is the inbox row for a gateway push, unique per
// (provider, provider_event_id).
type PaymentWebhookEvent struct {
	ID              uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Provider        string         `gorm:"not null;column:provider;uniqueIndex:idx_webhook_provider_event,priority:1" json:"provider"`
	ProviderEventID string         `gorm:"not null;column:provider_event_id;uniqueIndex:idx_webhook_provider_event,priority:2" json:"provider_event_id"`
	EventType       string         `gorm:"not null;column:event_type;index" json:"event_type"`
	Payload         datatypes.JSON `gorm:"type:jsonb;column:payload" json:"payload"`
	SignatureValid  bool           `gorm:"not null;column:signature_valid" json:"signature_valid"`
	ProcessedAt     *time.Time     `gorm:"column:processed_at" json:"processed_at,omitempty"`
	ProcessingError string         `gorm:"type:text;column:processing_error" json:"processing_error,omitempty"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (PaymentWebhookEvent) TableName() string { return "payment_webhook_event" }
