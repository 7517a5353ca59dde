package directory

import "context"

// SellerAccount is the payout destination resolved for a seller.
type SellerAccount struct {
	SellerID      int64  `json:"seller_id" gorm:"column:seller_id;primaryKey"`
	Name          string `json:"name" gorm:"column:name;not null"`
	AccountNumber string `json:"account_number" gorm:"column:account_number;not null"`
	BankCode      string `json:"bank_code" gorm:"column:bank_code;not null"`
	Currency      string `json:"currency" gorm:"column:currency;not null"`
}

func (SellerAccount) TableName() string {
	return "seller_accounts"
}

// API resolves sellers to payout account details. Lookup failures surface
// to callers as payee resolution errors.
type API interface {
	ResolveSeller(ctx context.Context, sellerID int64) (*SellerAccount, error)
}
