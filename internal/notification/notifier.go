package notification

import (
	"context"
	"log/slog"

	"github.com/frahmantamala/marketplace-payments/internal/core/events"
)

// Notifier is the fire-and-forget dispatch collaborator. Failures here
// must never roll back a payment transition.
type Notifier interface {
	Notify(userID int64, notificationType string, payload map[string]interface{})
}

// LogNotifier is the default sink when no delivery channel is configured.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(userID int64, notificationType string, payload map[string]interface{}) {
	n.logger.Info("notification dispatched",
		"user_id", userID,
		"type", notificationType,
		"payload", payload)
}

// EventHandler bridges ledger events to the notifier.
type EventHandler struct {
	notifier Notifier
	logger   *slog.Logger
}

func NewEventHandler(notifier Notifier, logger *slog.Logger) *EventHandler {
	return &EventHandler{
		notifier: notifier,
		logger:   logger,
	}
}

func (h *EventHandler) RegisterEventHandlers(bus *events.EventBus) {
	bus.Subscribe(events.EventTypePaymentCompleted, h.handlePaymentCompleted)
	bus.Subscribe(events.EventTypePaymentFailed, h.handlePaymentFailed)
	bus.Subscribe(events.EventTypePaymentRefunded, h.handlePaymentRefunded)

	h.logger.Info("notification event handlers registered",
		"handlers", []string{
			events.EventTypePaymentCompleted,
			events.EventTypePaymentFailed,
			events.EventTypePaymentRefunded,
		})
}

func (h *EventHandler) handlePaymentCompleted(ctx context.Context, event events.Event) error {
	e, ok := event.(*events.PaymentCompletedEvent)
	if !ok {
		return nil
	}
	h.notifier.Notify(e.UserID, "payment_completed", map[string]interface{}{
		"reference": e.Reference,
		"amount":    e.Amount,
		"escrow":    e.Escrow,
	})
	return nil
}

func (h *EventHandler) handlePaymentFailed(ctx context.Context, event events.Event) error {
	e, ok := event.(*events.PaymentFailedEvent)
	if !ok {
		return nil
	}
	h.notifier.Notify(e.UserID, "payment_failed", map[string]interface{}{
		"reference":      e.Reference,
		"amount":         e.Amount,
		"failure_reason": e.FailureReason,
	})
	return nil
}

func (h *EventHandler) handlePaymentRefunded(ctx context.Context, event events.Event) error {
	e, ok := event.(*events.PaymentRefundedEvent)
	if !ok {
		return nil
	}
	h.notifier.Notify(e.UserID, "payment_refunded", map[string]interface{}{
		"reference":       e.Reference,
		"refunded_amount": e.RefundedAmount,
		"partial":         e.Partial,
	})
	return nil
}
