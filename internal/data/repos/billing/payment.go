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

type RevenueRow struct {
	Currency string
	Amount   int64
	Count    int64
}

type PaymentRepo interface {
	Create(dbc dbctx.Context, rows []*types.Payment) ([]*types.Payment, error)
	// CreateIfAbsent inserts row unless its tx_ref already exists.
	CreateIfAbsent(dbc dbctx.Context, row *types.Payment) (created bool, err error)
	GetByTxRef(dbc dbctx.Context, txRef string) (*types.Payment, error)
	GetByTransactionID(dbc dbctx.Context, transactionID string) (*types.Payment, error)
	// MarkSuccessful transitions a non-successful row to successful. transitioned
	// is false when another call already made the row successful.
	MarkSuccessful(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) (transitioned bool, err error)
	// MarkFailed never downgrades a successful row.
	MarkFailed(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	AttachEnrollment(dbc dbctx.Context, id, enrollmentID uuid.UUID) error
	ListRecent(dbc dbctx.Context, status string, limit int) ([]*types.Payment, error)
	RevenueByCurrency(dbc dbctx.Context) ([]RevenueRow, error)
	CountByStatus(dbc dbctx.Context, status string) (int64, error)
}

type paymentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPaymentRepo(db *gorm.DB, baseLog *logger.Logger) PaymentRepo {
	return &paymentRepo{db: db, log: baseLog.With("repo", "PaymentRepo")}
}

func (r *paymentRepo) dbx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *paymentRepo) Create(dbc dbctx.Context, rows []*types.Payment) ([]*types.Payment, error) {
	if len(rows) == 0 {
		return []*types.Payment{}, nil
	}
	for _, p := range rows {
		if p.ID == uuid.Nil {
			p.ID = uuid.New()
		}
	}
	if err := r.dbx(dbc).WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *paymentRepo) CreateIfAbsent(dbc dbctx.Context, row *types.Payment) (bool, error) {
	if row == nil || row.TxRef == "" {
		return false, nil
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	res := r.dbx(dbc).WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "tx_ref"}}, DoNothing: true}).
		Create(row)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *paymentRepo) first(dbc dbctx.Context, column, value string) (*types.Payment, error) {
	if value == "" {
		return nil, nil
	}
	out := []*types.Payment{}
	if err := r.dbx(dbc).WithContext(dbc.Ctx).Where(column+" = ?", value).Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *paymentRepo) GetByTxRef(dbc dbctx.Context, txRef string) (*types.Payment, error) {
	return r.first(dbc, "tx_ref", txRef)
}

func (r *paymentRepo) GetByTransactionID(dbc dbctx.Context, transactionID string) (*types.Payment, error) {
	return r.first(dbc, "transaction_id", transactionID)
}

func (r *paymentRepo) MarkSuccessful(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) (bool, error) {
	fields := map[string]interface{}{}
	for k, v := range updates {
		fields[k] = v
	}
	fields["status"] = types.PaymentStatusSuccessful
	fields["failure_reason"] = ""
	if _, ok := fields["verified_at"]; !ok {
		fields["verified_at"] = time.Now().UTC()
	}
	res := r.dbx(dbc).WithContext(dbc.Ctx).
		Model(&types.Payment{}).
		Where("id = ? AND status <> ?", id, types.PaymentStatusSuccessful).
		Updates(fields)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *paymentRepo) MarkFailed(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	fields := map[string]interface{}{}
	for k, v := range updates {
		fields[k] = v
	}
	fields["status"] = types.PaymentStatusFailed
	return r.dbx(dbc).WithContext(dbc.Ctx).
		Model(&types.Payment{}).
		Where("id = ? AND status <> ?", id, types.PaymentStatusSuccessful).
		Updates(fields).Error
}

func (r *paymentRepo) AttachEnrollment(dbc dbctx.Context, id, enrollmentID uuid.UUID) error {
	return r.dbx(dbc).WithContext(dbc.Ctx).
		Model(&types.Payment{}).
		Where("id = ?", id).
		Update("enrollment_id", enrollmentID).Error
}

func (r *paymentRepo) ListRecent(dbc dbctx.Context, status string, limit int) ([]*types.Payment, error) {
	out := []*types.Payment{}
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	q := r.dbx(dbc).WithContext(dbc.Ctx).Model(&types.Payment{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.Order("created_at DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *paymentRepo) RevenueByCurrency(dbc dbctx.Context) ([]RevenueRow, error) {
	out := []RevenueRow{}
	if err := r.dbx(dbc).WithContext(dbc.Ctx).
		Model(&types.Payment{}).
		Select("currency, COALESCE(SUM(amount), 0) AS amount, COUNT(*) AS count").
		Where("status = ?", types.PaymentStatusSuccessful).
		Group("currency").
		Order("currency ASC").
		Scan(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *paymentRepo) CountByStatus(dbc dbctx.Context, status string) (int64, error) {
	var n int64
	q := r.dbx(dbc).WithContext(dbc.Ctx).Model(&types.Payment{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	err := q.Count(&n).Error
	return n, err
}
