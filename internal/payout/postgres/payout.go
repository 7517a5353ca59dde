package postgres

import (
	"time"

	"gorm.io/gorm"

	"github.com/frahmantamala/marketplace-payments/internal/core/datamodel/payment"
	payoutpkg "github.com/frahmantamala/marketplace-payments/internal/payout"
)

type PayoutRepository struct {
	db *gorm.DB
}

func NewPayoutRepository(db *gorm.DB) payoutpkg.RepositoryAPI {
	return &PayoutRepository{
		db: db,
	}
}

func (r *PayoutRepository) Create(p *payment.Payout) error {
	return r.db.Create(p).Error
}

func (r *PayoutRepository) GetByID(id int64) (*payment.Payout, error) {
	var p payment.Payout
	err := r.db.First(&p, id).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PayoutRepository) GetByPaymentID(paymentID int64) (*payment.Payout, error) {
	var p payment.Payout
	err := r.db.Where("payment_id = ?", paymentID).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PayoutRepository) Update(p *payment.Payout) error {
	p.UpdatedAt = time.Now().UTC()
	return r.db.Save(p).Error
}
