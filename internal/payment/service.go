package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	errors "github.com/frahmantamala/marketplace-payments/internal"
	"github.com/frahmantamala/marketplace-payments/internal/breakdown"
	"github.com/frahmantamala/marketplace-payments/internal/core/datamodel/payment"
	"github.com/frahmantamala/marketplace-payments/internal/core/events"
	"github.com/frahmantamala/marketplace-payments/internal/gateway"
)

// RepositoryAPI is the ledger's persistence boundary.
type RepositoryAPI interface {
	Create(p *payment.Payment) error
	GetByID(id int64) (*payment.Payment, error)
	GetByReference(reference string) (*payment.Payment, error)
	UpdateStatus(id int64, status string, gatewayResponse datatypes.JSON, failureReason *string) error
	SetRefundable(id int64, refundableRemaining int64) error
	UpdateRefund(id int64, status string, refundableRemaining, refundedAmount int64) error
	ListByUser(userID int64, filter HistoryFilter) ([]*payment.Payment, int64, error)
	SaveWebhookEvent(ev *payment.WebhookEvent) (bool, error)
}

// EscrowAPI is implemented by the escrow manager.
type EscrowAPI interface {
	OpenHold(p *payment.Payment) error
	ApplyRefund(p *payment.Payment, amount int64, processedBy string) error
}

// PayoutAPI is implemented by the payout scheduler.
type PayoutAPI interface {
	Schedule(ctx context.Context, p *payment.Payment) (*payment.Payout, error)
}

// ServiceAPI is the surface handlers program against.
type ServiceAPI interface {
	GetQuote(in breakdown.QuoteInput) (*payment.Breakdown, error)
	InitiatePayment(ctx context.Context, req *InitiatePaymentRequest) (*InitiatePaymentResponse, error)
	VerifyStatus(ctx context.Context, reference string) (string, error)
	Refund(ctx context.Context, paymentID, amount int64, reason, processedBy string) error
	GetHistory(userID int64, filter HistoryFilter) (*HistoryPage, error)
	HandleWebhook(ctx context.Context, provider string, rawPayload []byte, signatureHeader string) (bool, error)
}

// Service is the payment ledger: the authoritative record of payment
// entities, all mutation passes through it. State transitions for one
// reference are serialized by referenceLocks.
type Service struct {
	repo        RepositoryAPI
	adapter     gateway.Adapter
	calculator  *breakdown.Calculator
	bus         *events.EventBus
	locks       *referenceLocks
	callbackURL string
	logger      *slog.Logger

	escrow  EscrowAPI
	payouts PayoutAPI
}

func NewService(repo RepositoryAPI, adapter gateway.Adapter, calculator *breakdown.Calculator, bus *events.EventBus, callbackURL string, logger *slog.Logger) *Service {
	return &Service{
		repo:        repo,
		adapter:     adapter,
		calculator:  calculator,
		bus:         bus,
		locks:       newReferenceLocks(),
		callbackURL: callbackURL,
		logger:      logger,
	}
}

// AttachCollaborators wires the escrow manager and payout scheduler after
// construction; both also depend on the ledger.
func (s *Service) AttachCollaborators(escrow EscrowAPI, payouts PayoutAPI) {
	s.escrow = escrow
	s.payouts = payouts
}

// LockReference serializes with the ledger's per-reference boundary. The
// escrow manager uses this so release and refund cannot race a webhook.
func (s *Service) LockReference(reference string) func() {
	return s.locks.Acquire(reference)
}

// GetPayment exposes ledger reads to collaborators.
func (s *Service) GetPayment(id int64) (*payment.Payment, error) {
	p, err := s.repo.GetByID(id)
	if err != nil {
		return nil, errors.ErrPaymentNotFound.WithCause(err)
	}
	return p, nil
}

// GetQuote computes a breakdown with no side effects.
func (s *Service) GetQuote(in breakdown.QuoteInput) (*payment.Breakdown, error) {
	return s.calculator.Calculate(in)
}

// InitiatePayment creates a pending ledger entry, initializes the charge
// with the gateway, and moves to processing on acknowledgment. A gateway
// timeout leaves the payment pending; status is resolved later via verify.
func (s *Service) InitiatePayment(ctx context.Context, req *InitiatePaymentRequest) (*InitiatePaymentResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	b, err := s.calculator.Calculate(breakdown.QuoteInput{
		Amount:   req.Amount,
		Currency: req.Currency,
		SellerID: req.SellerID,
		Category: req.Category,
		Region:   req.Region,
		UserType: req.UserType,
		Escrow:   req.Escrow,
	})
	if err != nil {
		return nil, err
	}

	var metadata datatypes.JSON
	if len(req.Metadata) > 0 {
		metadata, _ = json.Marshal(req.Metadata)
	}

	entity := &payment.Payment{
		Reference:        uuid.NewString(),
		UserID:           req.UserID,
		SellerID:         req.SellerID,
		OrderID:          req.OrderID,
		ServiceRequestID: req.ServiceRequestID,
		Amount:           req.Amount,
		Currency:         req.Currency,
		Method:           req.Method,
		Status:           payment.StatusPending,
		Escrow:           req.Escrow,
		Breakdown:        *b,
		Metadata:         metadata,
	}

	if err := s.repo.Create(entity); err != nil {
		s.logger.Error("failed to create payment record", "error", err, "user_id", req.UserID)
		return nil, errors.NewInternalError("failed to create payment", err)
	}

	s.logger.Info("payment created",
		"payment_id", entity.ID,
		"reference", entity.Reference,
		"amount", entity.Amount,
		"escrow", entity.Escrow)

	result, err := s.adapter.Initialize(ctx, gateway.InitializeRequest{
		Reference:   entity.Reference,
		Amount:      b.Total,
		Currency:    req.Currency,
		PayerEmail:  req.PayerEmail,
		Method:      req.Method,
		CallbackURL: s.callbackURL,
		Metadata:    req.Metadata,
	})
	if err != nil {
		return nil, s.handleInitializeFailure(entity, err)
	}

	raw, _ := json.Marshal(result)

	unlock := s.locks.Acquire(entity.Reference)
	if err := s.transition(entity, payment.StatusProcessing, raw, nil); err != nil {
		unlock()
		return nil, err
	}
	unlock()

	return &InitiatePaymentResponse{
		Reference:    entity.Reference,
		Status:       entity.Status,
		Breakdown:    b,
		RedirectURL:  result.RedirectURL,
		Instructions: result.Instructions,
		QRCode:       result.QRCode,
	}, nil
}

// handleInitializeFailure decides between leaving the payment pending (the
// gateway may still have received the charge) and failing it outright.
func (s *Service) handleInitializeFailure(entity *payment.Payment, err error) error {
	if gateway.IsRetryable(err) {
		// Backoff budget exhausted on transient errors: the charge may or
		// may not exist on the provider side. Leave pending for the
		// verify-based cleanup pass.
		s.logger.Warn("gateway initialization timed out, payment left pending",
			"reference", entity.Reference,
			"error", err)
		return errors.NewGatewayError("payment initiation failed, status pending verification", err)
	}

	reason := err.Error()
	unlock := s.locks.Acquire(entity.Reference)
	if terr := s.transition(entity, payment.StatusFailed, nil, &reason); terr != nil {
		s.logger.Error("failed to mark payment failed after gateway rejection",
			"reference", entity.Reference,
			"error", terr)
	}
	unlock()

	s.publishFailed(entity, reason)
	return errors.NewGatewayError("payment initiation rejected by gateway", err)
}

// VerifyStatus reconciles the ledger against the gateway's externally
// reported status, sharing the webhook transition pipeline.
func (s *Service) VerifyStatus(ctx context.Context, reference string) (string, error) {
	p, err := s.repo.GetByReference(reference)
	if err != nil {
		return "", errors.ErrPaymentNotFound.WithCause(err)
	}

	result, err := s.adapter.Verify(ctx, reference)
	if err != nil {
		return "", errors.NewGatewayError("status verification failed", err)
	}

	unlock := s.locks.Acquire(reference)
	defer unlock()

	// Reload under the lock; a webhook may have landed in between.
	p, err = s.repo.GetByReference(reference)
	if err != nil {
		return "", errors.ErrPaymentNotFound.WithCause(err)
	}

	raw, _ := json.Marshal(result)
	s.reconcile(ctx, p, s.adapter.MapStatus(result.Status), raw, nil)

	return p.Status, nil
}

// HandleWebhook ingests one provider callback: verify authenticity, dedup
// on the provider event id, then apply the mapped transition. Returns
// accepted=false only for unauthenticated or unparseable deliveries;
// duplicates and out-of-order signals are absorbed as accepted no-ops so
// the provider does not retry.
func (s *Service) HandleWebhook(ctx context.Context, provider string, rawPayload []byte, signatureHeader string) (bool, error) {
	if provider != s.adapter.Provider() {
		s.logger.Warn("webhook for unknown provider rejected", "provider", provider)
		return false, errors.NewNotFoundError("unknown provider", errors.ErrCodeValidationFailed)
	}

	if !s.adapter.VerifyWebhookSignature(rawPayload, signatureHeader) {
		s.logger.Error("webhook signature verification failed",
			"provider", provider,
			"security_event", true)
		return false, errors.NewSignatureVerificationError(provider)
	}

	ev, err := s.adapter.ParseWebhook(rawPayload)
	if err != nil {
		s.logger.Error("webhook payload unparseable", "provider", provider, "error", err)
		return false, errors.NewValidationError("invalid webhook payload", errors.ErrCodeValidationFailed)
	}

	inserted, err := s.repo.SaveWebhookEvent(&payment.WebhookEvent{
		Provider:        provider,
		ProviderEventID: ev.EventID,
		Reference:       ev.Reference,
		Payload:         datatypes.JSON(rawPayload),
	})
	if err != nil {
		s.logger.Error("failed to record webhook event", "provider", provider, "error", err)
		return false, errors.NewInternalError("failed to record webhook event", err)
	}
	if !inserted {
		s.logger.Info("duplicate webhook event ignored",
			"provider", provider,
			"provider_event_id", ev.EventID,
			"reference", ev.Reference)
		return true, nil
	}

	unlock := s.locks.Acquire(ev.Reference)
	defer unlock()

	p, err := s.repo.GetByReference(ev.Reference)
	if err != nil {
		// Unknown reference: absorb so the provider stops retrying, but
		// keep the event record for reconciliation.
		s.logger.Warn("webhook for unknown reference absorbed",
			"provider", provider,
			"reference", ev.Reference)
		return true, nil
	}

	s.reconcile(ctx, p, s.adapter.MapStatus(ev.Status), datatypes.JSON(rawPayload), nil)

	return true, nil
}

// reconcile applies one externally verified status to the ledger. Invalid
// or duplicate transitions are swallowed and logged, never propagated, so
// out-of-order delivery cannot surface errors to the provider.
func (s *Service) reconcile(ctx context.Context, p *payment.Payment, target string, raw datatypes.JSON, failureReason *string) {
	if p.Status == target {
		return
	}

	switch target {
	case payment.StatusProcessing:
		if p.Status != payment.StatusPending {
			s.logTransitionSwallowed(p, target)
			return
		}
		if err := s.transition(p, payment.StatusProcessing, raw, nil); err != nil {
			s.logger.Error("failed to persist processing transition", "reference", p.Reference, "error", err)
		}

	case payment.StatusCompleted:
		// A success signal may arrive before the initialization ack was
		// stored; the verified signal steps pending through processing.
		if p.Status != payment.StatusPending && p.Status != payment.StatusProcessing {
			s.logTransitionSwallowed(p, target)
			return
		}
		s.complete(ctx, p, raw)

	case payment.StatusFailed:
		if p.Status != payment.StatusPending && p.Status != payment.StatusProcessing {
			s.logTransitionSwallowed(p, target)
			return
		}
		reason := "gateway reported failure"
		if failureReason != nil {
			reason = *failureReason
		}
		if err := s.transition(p, payment.StatusFailed, raw, &reason); err != nil {
			s.logger.Error("failed to persist failed transition", "reference", p.Reference, "error", err)
			return
		}
		s.publishFailed(p, reason)

	default:
		// Refund-class statuses only move through the explicit refund
		// operation, never an asynchronous signal.
		s.logTransitionSwallowed(p, target)
	}
}

// complete finalizes a successful charge: the refundable balance is fixed,
// escrowed payments get a hold, non-escrow payments converge on the payout
// scheduler immediately.
func (s *Service) complete(ctx context.Context, p *payment.Payment, raw datatypes.JSON) {
	refundable := p.Breakdown.Total
	if p.Escrow {
		// The platform cut settles at completion; only the seller's share
		// is held and refundable through this core.
		refundable = p.Breakdown.SellerNet
	}

	if err := s.transition(p, payment.StatusCompleted, raw, nil); err != nil {
		s.logger.Error("failed to persist completed transition", "reference", p.Reference, "error", err)
		return
	}
	if err := s.repo.SetRefundable(p.ID, refundable); err != nil {
		s.logger.Error("failed to set refundable balance", "reference", p.Reference, "error", err)
		return
	}
	p.RefundableRemaining = refundable

	s.logger.Info("payment completed",
		"payment_id", p.ID,
		"reference", p.Reference,
		"escrow", p.Escrow,
		"refundable_remaining", refundable)

	if p.Escrow {
		if err := s.escrow.OpenHold(p); err != nil {
			s.logger.Error("failed to open escrow hold", "payment_id", p.ID, "error", err)
		}
	} else if p.SellerID != nil {
		if _, err := s.payouts.Schedule(ctx, p); err != nil {
			s.logger.Error("failed to schedule instant settlement", "payment_id", p.ID, "error", err)
		}
	}

	s.bus.Publish(ctx, events.NewPaymentCompletedEvent(p.ID, p.UserID, p.Reference, p.Breakdown.Total, p.Escrow))
}

// Refund applies a full or partial refund. Explicitly invoked, so invalid
// preconditions surface to the caller instead of being swallowed.
func (s *Service) Refund(ctx context.Context, paymentID, amount int64, reason, processedBy string) error {
	if amount <= 0 {
		return errors.NewValidationError("refund amount must be positive", errors.ErrCodeInvalidAmount)
	}

	p, err := s.repo.GetByID(paymentID)
	if err != nil {
		return errors.ErrPaymentNotFound.WithCause(err)
	}

	unlock := s.locks.Acquire(p.Reference)
	defer unlock()

	// Reload under the lock.
	p, err = s.repo.GetByID(paymentID)
	if err != nil {
		return errors.ErrPaymentNotFound.WithCause(err)
	}

	if p.Status != payment.StatusCompleted && p.Status != payment.StatusPartiallyRefunded {
		return errors.NewInvalidTransitionError(p.Status, payment.StatusRefunded)
	}

	if amount > p.RefundableRemaining {
		return errors.NewInsufficientBalanceError(amount, p.RefundableRemaining)
	}

	remaining := p.RefundableRemaining - amount
	newStatus := payment.StatusPartiallyRefunded
	if remaining == 0 {
		newStatus = payment.StatusRefunded
	}

	if err := s.repo.UpdateRefund(p.ID, newStatus, remaining, p.RefundedAmount+amount); err != nil {
		s.logger.Error("failed to persist refund", "payment_id", p.ID, "error", err)
		return errors.NewInternalError("failed to persist refund", err)
	}

	if s.escrow != nil {
		if err := s.escrow.ApplyRefund(p, amount, processedBy); err != nil {
			s.logger.Error("failed to adjust escrow hold for refund", "payment_id", p.ID, "error", err)
		}
	}

	s.logger.Info("refund applied",
		"payment_id", p.ID,
		"reference", p.Reference,
		"amount", amount,
		"remaining", remaining,
		"status", newStatus,
		"reason", reason,
		"processed_by", processedBy)

	s.bus.Publish(ctx, events.NewPaymentRefundedEvent(p.ID, p.UserID, p.Reference, amount, remaining, remaining > 0))

	return nil
}

// GetHistory returns a user's payments, newest first.
func (s *Service) GetHistory(userID int64, filter HistoryFilter) (*HistoryPage, error) {
	if userID == 0 {
		return nil, errors.NewValidationError("user_id is required", errors.ErrCodeValidationFailed)
	}
	filter.Normalize()

	items, total, err := s.repo.ListByUser(userID, filter)
	if err != nil {
		return nil, errors.NewInternalError("failed to list payments", err)
	}

	return &HistoryPage{
		Items:  items,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}, nil
}

// transition persists a status change after checking the state machine.
func (s *Service) transition(p *payment.Payment, to string, raw datatypes.JSON, failureReason *string) error {
	if !canTransition(p.Status, to) {
		return errors.NewInvalidTransitionError(p.Status, to)
	}
	if err := s.repo.UpdateStatus(p.ID, to, raw, failureReason); err != nil {
		return fmt.Errorf("failed to update payment status: %w", err)
	}
	p.Status = to
	return nil
}

func (s *Service) logTransitionSwallowed(p *payment.Payment, target string) {
	s.logger.Warn("out-of-order status signal swallowed",
		"payment_id", p.ID,
		"reference", p.Reference,
		"current_status", p.Status,
		"signalled_status", target)
}

func (s *Service) publishFailed(p *payment.Payment, reason string) {
	s.bus.Publish(context.Background(), events.NewPaymentFailedEvent(p.ID, p.UserID, p.Reference, p.Amount, reason))
}

// canTransition encodes the ledger state machine. failed and refunded are
// terminal; completed only moves into the refund family.
func canTransition(from, to string) bool {
	switch from {
	case payment.StatusPending:
		return to == payment.StatusProcessing || to == payment.StatusCompleted || to == payment.StatusFailed
	case payment.StatusProcessing:
		return to == payment.StatusCompleted || to == payment.StatusFailed
	case payment.StatusCompleted:
		return to == payment.StatusRefunded || to == payment.StatusPartiallyRefunded
	case payment.StatusPartiallyRefunded:
		return to == payment.StatusRefunded || to == payment.StatusPartiallyRefunded
	default:
		return false
	}
}
