package billing

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/coursehub-backend/internal/domain"
	"github.com/yungbote/coursehub-backend/internal/pkg/dbctx"
	"github.com/yungbote/coursehub-backend/internal/platform/logger"
)

type WebhookEventRepo interface {
	// Record stores the event unless (provider, provider_event_id) is already
	// present and returns the stored row either way.
	Record(dbc dbctx.Context, row *types.PaymentWebhookEvent) (stored *types.PaymentWebhookEvent, created bool, err error)
	MarkProcessed(dbc dbctx.Context, id uuid.UUID, processingErr string) error
}

type webhookEventRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewWebhookEventRepo(db *gorm.DB, baseLog *logger.Logger) WebhookEventRepo {
	return &webhookEventRepo{db: db, log: baseLog.With("repo", "WebhookEventRepo")}
}

func (r *webhookEventRepo) dbx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *webhookEventRepo) Record(dbc dbctx.Context, row *types.PaymentWebhookEvent) (*types.PaymentWebhookEvent, bool, error) {
	if row == nil {
		return nil, false, nil
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	t := r.dbx(dbc).WithContext(dbc.Ctx)
	res := t.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider"}, {Name: "provider_event_id"}},
		DoNothing: true,
	}).Create(row)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected == 1 {
		return row, true, nil
	}
	existing := &types.PaymentWebhookEvent{}
	if err := t.Where("provider = ? AND provider_event_id = ?", row.Provider, row.ProviderEventID).First(existing).Error; err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *webhookEventRepo) MarkProcessed(dbc dbctx.Context, id uuid.UUID, processingErr string) error {
	updates := map[string]interface{}{"processing_error": processingErr}
	if processingErr == "" {
		updates["processed_at"] = time.Now().UTC()
	}
	return r.dbx(dbc).WithContext(dbc.Ctx).
		Model(&types.PaymentWebhookEvent{}).
		Where("id = ?", id).
		Updates(updates).Error
}
