package payment

import (
	"time"

	errors "github.com/frahmantamala/marketplace-payments/internal"
	"github.com/frahmantamala/marketplace-payments/internal/core/common/validation"
	"github.com/frahmantamala/marketplace-payments/internal/core/datamodel/payment"
)

var supportedMethods = []string{
	payment.MethodCard,
	payment.MethodBankTransfer,
	payment.MethodUSSD,
	payment.MethodQR,
	payment.MethodMobileMoney,
	payment.MethodBank,
}

// InitiatePaymentRequest is the confirm-side request: the quote context
// plus payer identity. The breakdown is recomputed and stored with the
// payment at creation; the client never supplies it.
type InitiatePaymentRequest struct {
	UserID           int64                  `json:"user_id"`
	SellerID         *int64                 `json:"seller_id,omitempty"`
	OrderID          *int64                 `json:"order_id,omitempty"`
	ServiceRequestID *int64                 `json:"service_request_id,omitempty"`
	Amount           int64                  `json:"amount"`
	Currency         string                 `json:"currency"`
	Method           string                 `json:"method"`
	PayerEmail       string                 `json:"payer_email"`
	Category         string                 `json:"category,omitempty"`
	Region           string                 `json:"region,omitempty"`
	UserType         string                 `json:"user_type,omitempty"`
	Escrow           bool                   `json:"escrow,omitempty"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
}

func (r *InitiatePaymentRequest) Validate() error {
	validator := validation.NewValidator()

	validator.Field("user_id", r.UserID).Required()
	validator.Field("amount", r.Amount).Required().MinInt(1, errors.ErrCodeInvalidAmount)
	validator.Field("currency", r.Currency).Required().Length(3, errors.ErrCodeInvalidCurrency)
	validator.Field("method", r.Method).Required().OneOf(supportedMethods, errors.ErrCodeInvalidMethod)
	validator.Field("payer_email", r.PayerEmail).Required().MaxLength(254)

	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

// InitiatePaymentResponse returns the continuation the gateway handed back
// alongside the stored breakdown.
type InitiatePaymentResponse struct {
	Reference    string             `json:"reference"`
	Status       string             `json:"status"`
	Breakdown    *payment.Breakdown `json:"breakdown"`
	RedirectURL  string             `json:"redirect_url,omitempty"`
	Instructions string             `json:"instructions,omitempty"`
	QRCode       string             `json:"qr_code,omitempty"`
}

type RefundRequest struct {
	Amount      int64  `json:"amount"`
	Reason      string `json:"reason"`
	ProcessedBy string `json:"processed_by"`
}

func (r *RefundRequest) Validate() error {
	validator := validation.NewValidator()

	validator.Field("amount", r.Amount).Required().MinInt(1, errors.ErrCodeInvalidAmount)
	validator.Field("processed_by", r.ProcessedBy).Required()

	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

// HistoryFilter narrows a user's payment history query.
type HistoryFilter struct {
	Status string
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// Normalize clamps pagination to sane bounds.
func (f *HistoryFilter) Normalize() {
	if f.Limit <= 0 {
		f.Limit = defaultHistoryLimit
	}
	if f.Limit > maxHistoryLimit {
		f.Limit = maxHistoryLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
}

type HistoryPage struct {
	Items  []*payment.Payment `json:"items"`
	Total  int64              `json:"total"`
	Limit  int                `json:"limit"`
	Offset int                `json:"offset"`
}
