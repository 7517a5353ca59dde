package payment

import (
	"time"

	"gorm.io/datatypes"
)

// Payment statuses. Transitions are monotonic: pending -> processing ->
// completed, completed -> (partially_)refunded, pending/processing -> failed.
// failed and refunded are terminal.
const (
	StatusPending           = "pending"
	StatusProcessing        = "processing"
	StatusCompleted         = "completed"
	StatusFailed            = "failed"
	StatusRefunded          = "refunded"
	StatusPartiallyRefunded = "partially_refunded"
)

// Supported payment methods.
const (
	MethodCard         = "card"
	MethodBankTransfer = "bank_transfer"
	MethodUSSD         = "ussd"
	MethodQR           = "qr"
	MethodMobileMoney  = "mobile_money"
	MethodBank         = "bank"
)

// Payout statuses.
const (
	PayoutScheduled = "scheduled"
	PayoutSent      = "sent"
	PayoutFailed    = "failed"
)

// TaxLine is one tax component of a breakdown, rounded independently
// to the currency's minor unit.
type TaxLine struct {
	Type   string  `json:"type"`
	Name   string  `json:"name"`
	Rate   float64 `json:"rate"`
	Amount int64   `json:"amount"`
}

// FeeLine is one fee component. Rate is nil for flat fees.
type FeeLine struct {
	Type   string   `json:"type"`
	Name   string   `json:"name"`
	Rate   *float64 `json:"rate,omitempty"`
	Amount int64    `json:"amount"`
}

// Breakdown is the itemized decomposition of a gross amount. It is computed
// once at quote time and stored immutably with its payment; payout amounts
// are always read from here, never recomputed.
type Breakdown struct {
	Subtotal    int64     `json:"subtotal"`
	Taxes       []TaxLine `json:"taxes"`
	Fees        []FeeLine `json:"fees"`
	Discount    int64     `json:"discount"`
	Total       int64     `json:"total"`
	PlatformCut int64     `json:"platform_cut"`
	SellerNet   int64     `json:"seller_net"`
}

// TaxTotal returns the sum of all tax line amounts.
func (b *Breakdown) TaxTotal() int64 {
	var sum int64
	for _, t := range b.Taxes {
		sum += t.Amount
	}
	return sum
}

// FeeTotal returns the sum of all fee line amounts.
func (b *Breakdown) FeeTotal() int64 {
	var sum int64
	for _, f := range b.Fees {
		sum += f.Amount
	}
	return sum
}

type Payment struct {
	ID                  int64          `json:"id" gorm:"primaryKey"`
	Reference           string         `json:"reference" gorm:"column:reference;not null;uniqueIndex"`
	UserID              int64          `json:"user_id" gorm:"column:user_id;not null"`
	SellerID            *int64         `json:"seller_id,omitempty" gorm:"column:seller_id"`
	OrderID             *int64         `json:"order_id,omitempty" gorm:"column:order_id"`
	ServiceRequestID    *int64         `json:"service_request_id,omitempty" gorm:"column:service_request_id"`
	Amount              int64          `json:"amount" gorm:"column:amount;not null"`
	Currency            string         `json:"currency" gorm:"column:currency;not null"`
	Method              string         `json:"method" gorm:"column:method"`
	Status              string         `json:"status" gorm:"column:status;default:pending"`
	Escrow              bool           `json:"escrow" gorm:"column:escrow;default:false"`
	Breakdown           Breakdown      `json:"breakdown" gorm:"column:breakdown;type:jsonb;serializer:json"`
	RefundableRemaining int64          `json:"refundable_remaining" gorm:"column:refundable_remaining;default:0"`
	RefundedAmount      int64          `json:"refunded_amount" gorm:"column:refunded_amount;default:0"`
	Metadata            datatypes.JSON `json:"metadata,omitempty" gorm:"column:metadata;type:jsonb"`
	GatewayResponse     datatypes.JSON `json:"-" gorm:"column:gateway_response;type:jsonb"`
	FailureReason       *string        `json:"failure_reason,omitempty" gorm:"column:failure_reason"`
	CreatedAt           time.Time      `json:"created_at" gorm:"column:created_at;default:now()"`
	UpdatedAt           time.Time      `json:"updated_at" gorm:"column:updated_at;default:now()"`
}

func (Payment) TableName() string {
	return "payments"
}

// IsTerminal reports whether no further transitions are allowed.
func (p *Payment) IsTerminal() bool {
	return p.Status == StatusFailed || p.Status == StatusRefunded
}

// EscrowHold tracks funds held back from a completed escrowed payment until
// an explicit release or refund. A payment has at most one hold.
type EscrowHold struct {
	ID             int64      `json:"id" gorm:"primaryKey"`
	PaymentID      int64      `json:"payment_id" gorm:"column:payment_id;not null;uniqueIndex"`
	HeldAmount     int64      `json:"held_amount" gorm:"column:held_amount;not null"`
	ReleasedAt     *time.Time `json:"released_at,omitempty" gorm:"column:released_at"`
	ReleasedBy     *string    `json:"released_by,omitempty" gorm:"column:released_by"`
	Clawback       bool       `json:"clawback" gorm:"column:clawback;default:false"`
	ClawbackAmount int64      `json:"clawback_amount" gorm:"column:clawback_amount;default:0"`
	CreatedAt      time.Time  `json:"created_at" gorm:"column:created_at;default:now()"`
	UpdatedAt      time.Time  `json:"updated_at" gorm:"column:updated_at;default:now()"`
}

func (EscrowHold) TableName() string {
	return "escrow_holds"
}

// Active reports whether the hold still retains funds.
func (h *EscrowHold) Active() bool {
	return h.ReleasedAt == nil && h.HeldAmount > 0
}

// Payout is the outbound transfer of a seller's net proceeds. One payout
// per released payment.
type Payout struct {
	ID                int64      `json:"id" gorm:"primaryKey"`
	SellerID          int64      `json:"seller_id" gorm:"column:seller_id;not null"`
	PaymentID         int64      `json:"payment_id" gorm:"column:payment_id;not null;uniqueIndex"`
	Amount            int64      `json:"amount" gorm:"column:amount;not null"`
	Status            string     `json:"status" gorm:"column:status;default:scheduled"`
	RecipientHandle   *string    `json:"recipient_handle,omitempty" gorm:"column:recipient_handle"`
	TransferReference *string    `json:"transfer_reference,omitempty" gorm:"column:transfer_reference"`
	FailureReason     *string    `json:"failure_reason,omitempty" gorm:"column:failure_reason"`
	SentAt            *time.Time `json:"sent_at,omitempty" gorm:"column:sent_at"`
	CreatedAt         time.Time  `json:"created_at" gorm:"column:created_at;default:now()"`
	UpdatedAt         time.Time  `json:"updated_at" gorm:"column:updated_at;default:now()"`
}

func (Payout) TableName() string {
	return "payouts"
}

// WebhookEvent is the dedup record for provider callbacks. The unique index
// on (provider, provider_event_id) is what makes reconciliation idempotent.
type WebhookEvent struct {
	ID              int64          `json:"id" gorm:"primaryKey"`
	Provider        string         `json:"provider" gorm:"column:provider;not null;uniqueIndex:idx_webhook_dedup"`
	ProviderEventID string         `json:"provider_event_id" gorm:"column:provider_event_id;not null;uniqueIndex:idx_webhook_dedup"`
	Reference       string         `json:"reference" gorm:"column:reference"`
	Payload         datatypes.JSON `json:"payload,omitempty" gorm:"column:payload;type:jsonb"`
	ReceivedAt      time.Time      `json:"received_at" gorm:"column:received_at;default:now()"`
}

func (WebhookEvent) TableName() string {
	return "webhook_events"
}
