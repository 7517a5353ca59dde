package postgres

import (
	"time"

	"gorm.io/gorm"

	"github.com/frahmantamala/marketplace-payments/internal/core/datamodel/payment"
	escrowpkg "github.com/frahmantamala/marketplace-payments/internal/escrow"
)

type EscrowRepository struct {
	db *gorm.DB
}

func NewEscrowRepository(db *gorm.DB) escrowpkg.RepositoryAPI {
	return &EscrowRepository{
		db: db,
	}
}

func (r *EscrowRepository) Create(h *payment.EscrowHold) error {
	return r.db.Create(h).Error
}

func (r *EscrowRepository) GetByPaymentID(paymentID int64) (*payment.EscrowHold, error) {
	var h payment.EscrowHold
	err := r.db.Where("payment_id = ?", paymentID).First(&h).Error
	if err != nil {
		return nil, err
	}
	return &h, nil
}

func (r *EscrowRepository) Update(h *payment.EscrowHold) error {
	h.UpdatedAt = time.Now().UTC()
	return r.db.Save(h).Error
}
