package postgres

import (
	"context"

	"gorm.io/gorm"

	"github.com/frahmantamala/marketplace-payments/internal/directory"
)

type DirectoryRepository struct {
	db *gorm.DB
}

func NewDirectoryRepository(db *gorm.DB) directory.API {
	return &DirectoryRepository{
		db: db,
	}
}

func (r *DirectoryRepository) ResolveSeller(ctx context.Context, sellerID int64) (*directory.SellerAccount, error) {
	var account directory.SellerAccount
	err := r.db.WithContext(ctx).Where("seller_id = ?", sellerID).First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}
