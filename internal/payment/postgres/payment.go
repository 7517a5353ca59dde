package postgres

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/frahmantamala/marketplace-payments/internal/core/datamodel/payment"
	paymentpkg "github.com/frahmantamala/marketplace-payments/internal/payment"
)

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) paymentpkg.RepositoryAPI {
	return &PaymentRepository{
		db: db,
	}
}

func (r *PaymentRepository) Create(p *payment.Payment) error {
	return r.db.Create(p).Error
}

func (r *PaymentRepository) GetByID(id int64) (*payment.Payment, error) {
	var p payment.Payment
	err := r.db.First(&p, id).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepository) GetByReference(reference string) (*payment.Payment, error) {
	var p payment.Payment
	err := r.db.Where("reference = ?", reference).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepository) UpdateStatus(id int64, status string, gatewayResponse datatypes.JSON, failureReason *string) error {
	updates := map[string]interface{}{
		"status":     status,
		"updated_at": time.Now().UTC(),
	}

	if gatewayResponse != nil {
		updates["gateway_response"] = gatewayResponse
	}

	if failureReason != nil {
		updates["failure_reason"] = *failureReason
	}

	return r.db.Model(&payment.Payment{}).Where("id = ?", id).Updates(updates).Error
}

func (r *PaymentRepository) SetRefundable(id int64, refundableRemaining int64) error {
	return r.db.Model(&payment.Payment{}).Where("id = ?", id).
		UpdateColumn("refundable_remaining", refundableRemaining).Error
}

func (r *PaymentRepository) UpdateRefund(id int64, status string, refundableRemaining, refundedAmount int64) error {
	return r.db.Model(&payment.Payment{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":               status,
		"refundable_remaining": refundableRemaining,
		"refunded_amount":      refundedAmount,
		"updated_at":           time.Now().UTC(),
	}).Error
}

func (r *PaymentRepository) ListByUser(userID int64, filter paymentpkg.HistoryFilter) ([]*payment.Payment, int64, error) {
	query := r.db.Model(&payment.Payment{}).Where("user_id = ?", userID)

	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.From != nil {
		query = query.Where("created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("created_at <= ?", *filter.To)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var payments []*payment.Payment
	err := query.Order("created_at DESC").
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&payments).Error

	return payments, total, err
}

// SaveWebhookEvent inserts a dedup record, reporting false when the
// (provider, provider_event_id) pair was already processed. The unique
// index makes this race-safe across concurrent deliveries.
func (r *PaymentRepository) SaveWebhookEvent(ev *payment.WebhookEvent) (bool, error) {
	ev.ReceivedAt = time.Now().UTC()

	result := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider"}, {Name: "provider_event_id"}},
		DoNothing: true,
	}).Create(ev)

	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected > 0, nil
}
