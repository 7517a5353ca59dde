package breakdown

import (
	"math"

	errors "github.com/frahmantamala/marketplace-payments/internal"
	"github.com/frahmantamala/marketplace-payments/internal/core/common/validation"
	"github.com/frahmantamala/marketplace-payments/internal/core/datamodel/payment"
	"github.com/frahmantamala/marketplace-payments/internal/rates"
)

// QuoteInput carries the context for a breakdown calculation. Unknown
// category or user type falls back to default rate tiers rather than
// failing the quote.
type QuoteInput struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	SellerID *int64 `json:"seller_id,omitempty"`
	Category string `json:"category,omitempty"`
	Region   string `json:"region,omitempty"`
	UserType string `json:"user_type,omitempty"`
	Escrow   bool   `json:"escrow,omitempty"`
}

func (in *QuoteInput) Validate() error {
	validator := validation.NewValidator()
	validator.Field("amount", in.Amount).Required().MinInt(1, errors.ErrCodeInvalidAmount)
	validator.Field("currency", in.Currency).Required().Length(3, errors.ErrCodeInvalidCurrency)

	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

// Calculator turns an amount plus context into a fee/tax/discount breakdown.
// Pure: no I/O beyond reading the rate table snapshot.
type Calculator struct {
	table *rates.Table
}

func NewCalculator(table *rates.Table) *Calculator {
	return &Calculator{table: table}
}

// Calculate derives the full breakdown for an amount. Each line is rounded
// independently half-up in minor units before summation so individual lines
// never carry hidden fractions; any reconciliation remainder between
// platform cut and seller net goes to the platform, never dropped.
func (c *Calculator) Calculate(in QuoteInput) (*payment.Breakdown, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	snap := c.table.Snapshot()
	subtotal := in.Amount

	var taxes []payment.TaxLine
	for _, tr := range snap.TaxRatesFor(in.Category, in.Region) {
		taxes = append(taxes, payment.TaxLine{
			Type:   tr.Type,
			Name:   tr.Name,
			Rate:   tr.Rate,
			Amount: roundHalfUp(float64(subtotal) * tr.Rate),
		})
	}

	feeRate := snap.PlatformFeeRate(in.UserType)
	var fees []payment.FeeLine
	if feeRate > 0 {
		rate := feeRate
		fees = append(fees, payment.FeeLine{
			Type:   "platform",
			Name:   "Platform fee",
			Rate:   &rate,
			Amount: roundHalfUp(float64(subtotal) * feeRate),
		})
	}

	var discount int64
	if rate := snap.DiscountRate(in.Category, in.UserType); rate > 0 {
		discount = roundHalfUp(float64(subtotal) * rate)
	}

	b := &payment.Breakdown{
		Subtotal: subtotal,
		Taxes:    taxes,
		Fees:     fees,
		Discount: discount,
	}

	b.Total = subtotal + b.TaxTotal() + b.FeeTotal() - discount
	b.PlatformCut = b.FeeTotal()
	b.SellerNet = b.Total - b.PlatformCut

	// Reconcile the split against the total; a sub-unit remainder is
	// attributed to the platform cut.
	if rem := b.Total - (b.PlatformCut + b.SellerNet); rem != 0 {
		b.PlatformCut += rem
	}

	return b, nil
}

// roundHalfUp rounds to the nearest minor unit with .5 rounding away
// from zero toward positive infinity.
func roundHalfUp(v float64) int64 {
	return int64(math.Floor(v + 0.5))
}
