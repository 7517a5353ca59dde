package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypePaymentCompleted = "payment.completed"
	EventTypePaymentFailed    = "payment.failed"
	EventTypePaymentRefunded  = "payment.refunded"
	EventTypeEscrowReleased   = "escrow.released"
	EventTypePayoutScheduled  = "payout.scheduled"
	EventTypePayoutFailed     = "payout.failed"
)

type PaymentCompletedEvent struct {
	BaseEvent
	PaymentID int64  `json:"payment_id"`
	UserID    int64  `json:"user_id"`
	Reference string `json:"reference"`
	Amount    int64  `json:"amount"`
	Escrow    bool   `json:"escrow"`
}

func NewPaymentCompletedEvent(paymentID, userID int64, reference string, amount int64, escrow bool) *PaymentCompletedEvent {
	return &PaymentCompletedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentCompleted,
			Timestamp: time.Now().UTC(),
			Data: map[string]interface{}{
				"payment_id": paymentID,
				"user_id":    userID,
				"reference":  reference,
				"amount":     amount,
				"escrow":     escrow,
			},
		},
		PaymentID: paymentID,
		UserID:    userID,
		Reference: reference,
		Amount:    amount,
		Escrow:    escrow,
	}
}

type PaymentFailedEvent struct {
	BaseEvent
	PaymentID     int64  `json:"payment_id"`
	UserID        int64  `json:"user_id"`
	Reference     string `json:"reference"`
	Amount        int64  `json:"amount"`
	FailureReason string `json:"failure_reason"`
}

func NewPaymentFailedEvent(paymentID, userID int64, reference string, amount int64, failureReason string) *PaymentFailedEvent {
	return &PaymentFailedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentFailed,
			Timestamp: time.Now().UTC(),
			Data: map[string]interface{}{
				"payment_id":     paymentID,
				"user_id":        userID,
				"reference":      reference,
				"amount":         amount,
				"failure_reason": failureReason,
			},
		},
		PaymentID:     paymentID,
		UserID:        userID,
		Reference:     reference,
		Amount:        amount,
		FailureReason: failureReason,
	}
}

type PaymentRefundedEvent struct {
	BaseEvent
	PaymentID      int64  `json:"payment_id"`
	UserID         int64  `json:"user_id"`
	Reference      string `json:"reference"`
	RefundedAmount int64  `json:"refunded_amount"`
	Remaining      int64  `json:"remaining"`
	Partial        bool   `json:"partial"`
}

func NewPaymentRefundedEvent(paymentID, userID int64, reference string, refundedAmount, remaining int64, partial bool) *PaymentRefundedEvent {
	return &PaymentRefundedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentRefunded,
			Timestamp: time.Now().UTC(),
			Data: map[string]interface{}{
				"payment_id":      paymentID,
				"user_id":         userID,
				"reference":       reference,
				"refunded_amount": refundedAmount,
				"remaining":       remaining,
				"partial":         partial,
			},
		},
		PaymentID:      paymentID,
		UserID:         userID,
		Reference:      reference,
		RefundedAmount: refundedAmount,
		Remaining:      remaining,
		Partial:        partial,
	}
}

type EscrowReleasedEvent struct {
	BaseEvent
	PaymentID  int64  `json:"payment_id"`
	SellerID   int64  `json:"seller_id"`
	Amount     int64  `json:"amount"`
	ReleasedBy string `json:"released_by"`
}

func NewEscrowReleasedEvent(paymentID, sellerID, amount int64, releasedBy string) *EscrowReleasedEvent {
	return &EscrowReleasedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeEscrowReleased,
			Timestamp: time.Now().UTC(),
			Data: map[string]interface{}{
				"payment_id":  paymentID,
				"seller_id":   sellerID,
				"amount":      amount,
				"released_by": releasedBy,
			},
		},
		PaymentID:  paymentID,
		SellerID:   sellerID,
		Amount:     amount,
		ReleasedBy: releasedBy,
	}
}

type PayoutScheduledEvent struct {
	BaseEvent
	PayoutID  int64 `json:"payout_id"`
	PaymentID int64 `json:"payment_id"`
	SellerID  int64 `json:"seller_id"`
	Amount    int64 `json:"amount"`
}

func NewPayoutScheduledEvent(payoutID, paymentID, sellerID, amount int64) *PayoutScheduledEvent {
	return &PayoutScheduledEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePayoutScheduled,
			Timestamp: time.Now().UTC(),
			Data: map[string]interface{}{
				"payout_id":  payoutID,
				"payment_id": paymentID,
				"seller_id":  sellerID,
				"amount":     amount,
			},
		},
		PayoutID:  payoutID,
		PaymentID: paymentID,
		SellerID:  sellerID,
		Amount:    amount,
	}
}

type PayoutFailedEvent struct {
	BaseEvent
	PayoutID      int64  `json:"payout_id"`
	PaymentID     int64  `json:"payment_id"`
	SellerID      int64  `json:"seller_id"`
	FailureReason string `json:"failure_reason"`
}

func NewPayoutFailedEvent(payoutID, paymentID, sellerID int64, failureReason string) *PayoutFailedEvent {
	return &PayoutFailedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePayoutFailed,
			Timestamp: time.Now().UTC(),
			Data: map[string]interface{}{
				"payout_id":      payoutID,
				"payment_id":     paymentID,
				"seller_id":      sellerID,
				"failure_reason": failureReason,
			},
		},
		PayoutID:      payoutID,
		PaymentID:     paymentID,
		SellerID:      sellerID,
		FailureReason: failureReason,
	}
}
