package payout

import (
	"context"
	"log/slog"
	"time"

	errors "github.com/frahmantamala/marketplace-payments/internal"
	"github.com/frahmantamala/marketplace-payments/internal/core/datamodel/payment"
	"github.com/frahmantamala/marketplace-payments/internal/core/events"
	"github.com/frahmantamala/marketplace-payments/internal/directory"
	"github.com/frahmantamala/marketplace-payments/internal/gateway"
)

// RepositoryAPI is the payout persistence boundary.
type RepositoryAPI interface {
	Create(p *payment.Payout) error
	GetByID(id int64) (*payment.Payout, error)
	GetByPaymentID(paymentID int64) (*payment.Payout, error)
	Update(p *payment.Payout) error
}

// Scheduler computes a seller's net transfer from the stored breakdown and
// delegates it to the gateway. A failed transfer marks the payout failed
// and eligible for manual retry; it is never auto-retried, to avoid
// duplicate transfers.
type Scheduler struct {
	repo      RepositoryAPI
	adapter   gateway.Adapter
	directory directory.API
	bus       *events.EventBus
	logger    *slog.Logger
}

func NewScheduler(repo RepositoryAPI, adapter gateway.Adapter, dir directory.API, bus *events.EventBus, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		repo:      repo,
		adapter:   adapter,
		directory: dir,
		bus:       bus,
		logger:    logger,
	}
}

// Schedule creates (or returns) the one payout for a payment and attempts
// the transfer. The amount always comes from the stored breakdown's seller
// net; it is never recomputed.
func (s *Scheduler) Schedule(ctx context.Context, p *payment.Payment) (*payment.Payout, error) {
	if p.SellerID == nil {
		return nil, errors.NewValidationError("payment has no seller", errors.ErrCodeValidationFailed)
	}

	if existing, err := s.repo.GetByPaymentID(p.ID); err == nil && existing != nil {
		s.logger.Info("payout already scheduled for payment",
			"payment_id", p.ID,
			"payout_id", existing.ID,
			"status", existing.Status)
		return existing, nil
	}

	payout := &payment.Payout{
		SellerID:  *p.SellerID,
		PaymentID: p.ID,
		Amount:    p.Breakdown.SellerNet,
		Status:    payment.PayoutScheduled,
	}
	if err := s.repo.Create(payout); err != nil {
		return nil, errors.NewInternalError("failed to create payout", err)
	}

	s.logger.Info("payout scheduled",
		"payout_id", payout.ID,
		"payment_id", p.ID,
		"seller_id", payout.SellerID,
		"amount", payout.Amount)

	s.bus.Publish(ctx, events.NewPayoutScheduledEvent(payout.ID, p.ID, payout.SellerID, payout.Amount))

	if err := s.executeTransfer(ctx, payout, p.Currency); err != nil {
		// The payout record stays failed and retryable; scheduling itself
		// succeeded.
		s.logger.Error("payout transfer failed",
			"payout_id", payout.ID,
			"payment_id", p.ID,
			"error", err)
	}

	return payout, nil
}

// Retry re-attempts a failed payout's transfer. Only failed payouts are
// retryable; sent payouts must never transfer twice.
func (s *Scheduler) Retry(ctx context.Context, payoutID int64) (*payment.Payout, error) {
	payout, err := s.repo.GetByID(payoutID)
	if err != nil {
		return nil, errors.ErrPayoutNotFound.WithCause(err)
	}

	if payout.Status != payment.PayoutFailed {
		return nil, errors.NewConflictError("only failed payouts can be retried", errors.ErrCodePayoutNotRetryable)
	}

	payout.Status = payment.PayoutScheduled
	payout.FailureReason = nil
	if err := s.repo.Update(payout); err != nil {
		return nil, errors.NewInternalError("failed to reset payout", err)
	}

	s.logger.Info("payout retry initiated", "payout_id", payout.ID, "seller_id", payout.SellerID)

	if err := s.executeTransfer(ctx, payout, ""); err != nil {
		s.logger.Error("payout retry failed", "payout_id", payout.ID, "error", err)
	}

	return payout, nil
}

func (s *Scheduler) executeTransfer(ctx context.Context, payout *payment.Payout, currency string) error {
	account, err := s.directory.ResolveSeller(ctx, payout.SellerID)
	if err != nil {
		return s.markFailed(ctx, payout, errors.NewPayeeResolutionError(payout.SellerID, err))
	}
	if currency == "" {
		currency = account.Currency
	}

	recipient := ""
	if payout.RecipientHandle != nil {
		recipient = *payout.RecipientHandle
	}
	if recipient == "" {
		recipient, err = s.adapter.CreateTransferRecipient(ctx, gateway.RecipientInfo{
			Name:          account.Name,
			AccountNumber: account.AccountNumber,
			BankCode:      account.BankCode,
			Currency:      account.Currency,
		})
		if err != nil {
			return s.markFailed(ctx, payout, errors.NewGatewayError("failed to create transfer recipient", err))
		}
		payout.RecipientHandle = &recipient
		if err := s.repo.Update(payout); err != nil {
			return errors.NewInternalError("failed to store recipient handle", err)
		}
	}

	result, err := s.adapter.InitiateTransfer(ctx, gateway.TransferRequest{
		Recipient: recipient,
		Amount:    payout.Amount,
		Currency:  currency,
		Reason:    "Marketplace seller settlement",
	})
	if err != nil {
		return s.markFailed(ctx, payout, errors.NewGatewayError("transfer initiation failed", err))
	}

	now := time.Now().UTC()
	payout.Status = payment.PayoutSent
	payout.TransferReference = &result.TransferReference
	payout.SentAt = &now
	if err := s.repo.Update(payout); err != nil {
		return errors.NewInternalError("failed to mark payout sent", err)
	}

	s.logger.Info("payout sent",
		"payout_id", payout.ID,
		"seller_id", payout.SellerID,
		"amount", payout.Amount,
		"transfer_reference", result.TransferReference)

	return nil
}

func (s *Scheduler) markFailed(ctx context.Context, payout *payment.Payout, cause error) error {
	reason := cause.Error()
	payout.Status = payment.PayoutFailed
	payout.FailureReason = &reason
	if err := s.repo.Update(payout); err != nil {
		s.logger.Error("failed to mark payout failed", "payout_id", payout.ID, "error", err)
	}

	s.bus.Publish(ctx, events.NewPayoutFailedEvent(payout.ID, payout.PaymentID, payout.SellerID, reason))

	return cause
}
