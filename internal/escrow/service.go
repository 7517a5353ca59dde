package escrow

import (
	"context"
	"log/slog"
	"time"

	errors "github.com/frahmantamala/marketplace-payments/internal"
	"github.com/frahmantamala/marketplace-payments/internal/core/datamodel/payment"
	"github.com/frahmantamala/marketplace-payments/internal/core/events"
)

// RepositoryAPI is the escrow hold persistence boundary.
type RepositoryAPI interface {
	Create(h *payment.EscrowHold) error
	GetByPaymentID(paymentID int64) (*payment.EscrowHold, error)
	Update(h *payment.EscrowHold) error
}

// LedgerAPI is the slice of the payment ledger the escrow manager needs:
// reads plus the per-reference serialization boundary.
type LedgerAPI interface {
	GetPayment(id int64) (*payment.Payment, error)
	LockReference(reference string) func()
}

// PayoutAPI schedules the seller transfer after release.
type PayoutAPI interface {
	Schedule(ctx context.Context, p *payment.Payment) (*payment.Payout, error)
}

// Service holds a completed escrowed payment's settlement until an explicit
// release or refund. A payment has at most one hold; its lifecycle is
// bounded by the payment's.
type Service struct {
	repo    RepositoryAPI
	ledger  LedgerAPI
	payouts PayoutAPI
	bus     *events.EventBus
	logger  *slog.Logger
}

func NewService(repo RepositoryAPI, ledger LedgerAPI, payouts PayoutAPI, bus *events.EventBus, logger *slog.Logger) *Service {
	return &Service{
		repo:    repo,
		ledger:  ledger,
		payouts: payouts,
		bus:     bus,
		logger:  logger,
	}
}

// OpenHold creates the hold when an escrowed payment completes. Called by
// the ledger under the payment's reference lock.
func (s *Service) OpenHold(p *payment.Payment) error {
	hold := &payment.EscrowHold{
		PaymentID:  p.ID,
		HeldAmount: p.Breakdown.SellerNet,
	}
	if err := s.repo.Create(hold); err != nil {
		return err
	}

	s.logger.Info("escrow hold opened",
		"payment_id", p.ID,
		"held_amount", hold.HeldAmount)

	return nil
}

// Release stamps the hold released and schedules the seller payout.
// Double release fails without mutation; a retry of the same release
// request fails identically.
func (s *Service) Release(ctx context.Context, paymentID int64, releasedBy string) error {
	if releasedBy == "" {
		return errors.NewValidationError("released_by is required", errors.ErrCodeValidationFailed)
	}

	p, err := s.ledger.GetPayment(paymentID)
	if err != nil {
		return err
	}

	unlock := s.ledger.LockReference(p.Reference)
	defer unlock()

	// Reload under the lock; a refund may have raced the release.
	p, err = s.ledger.GetPayment(paymentID)
	if err != nil {
		return err
	}

	if !p.Escrow {
		return errors.NewInvalidOperationError("payment is not escrowed")
	}
	if p.Status != payment.StatusCompleted {
		return errors.NewInvalidOperationError("payment is not in a releasable status")
	}

	hold, err := s.repo.GetByPaymentID(paymentID)
	if err != nil {
		return errors.ErrHoldNotFound.WithCause(err)
	}
	if hold.ReleasedAt != nil {
		return errors.NewConflictError("escrow hold already released", errors.ErrCodeAlreadyReleased)
	}
	if hold.HeldAmount <= 0 {
		return errors.NewInvalidOperationError("escrow hold has no remaining funds")
	}

	now := time.Now().UTC()
	hold.ReleasedAt = &now
	hold.ReleasedBy = &releasedBy
	if err := s.repo.Update(hold); err != nil {
		return errors.NewInternalError("failed to release escrow hold", err)
	}

	s.logger.Info("escrow hold released",
		"payment_id", paymentID,
		"held_amount", hold.HeldAmount,
		"released_by", releasedBy)

	if p.SellerID != nil {
		if _, err := s.payouts.Schedule(ctx, p); err != nil {
			// The release stands; the payout is retryable on its own.
			s.logger.Error("payout scheduling failed after release",
				"payment_id", paymentID,
				"error", err)
		}
		s.bus.Publish(ctx, events.NewEscrowReleasedEvent(paymentID, *p.SellerID, hold.HeldAmount, releasedBy))
	}

	return nil
}

// ApplyRefund adjusts the hold for a refund the ledger has already
// validated. An active hold shrinks and closes at zero; a released hold
// records a clawback, flagged for reconciliation but not blocked.
func (s *Service) ApplyRefund(p *payment.Payment, amount int64, processedBy string) error {
	if !p.Escrow {
		return nil
	}

	hold, err := s.repo.GetByPaymentID(p.ID)
	if err != nil {
		return errors.ErrHoldNotFound.WithCause(err)
	}

	if hold.ReleasedAt == nil {
		hold.HeldAmount -= amount
		if hold.HeldAmount < 0 {
			hold.HeldAmount = 0
		}
		if err := s.repo.Update(hold); err != nil {
			return errors.NewInternalError("failed to adjust escrow hold", err)
		}

		s.logger.Info("escrow hold reduced by refund",
			"payment_id", p.ID,
			"refund_amount", amount,
			"held_amount", hold.HeldAmount,
			"processed_by", processedBy)
		return nil
	}

	hold.Clawback = true
	hold.ClawbackAmount += amount
	if err := s.repo.Update(hold); err != nil {
		return errors.NewInternalError("failed to record clawback", err)
	}

	s.logger.Warn("refund after release recorded as clawback",
		"payment_id", p.ID,
		"clawback_amount", hold.ClawbackAmount,
		"processed_by", processedBy)

	return nil
}

// GetHold exposes the hold for status endpoints.
func (s *Service) GetHold(paymentID int64) (*payment.EscrowHold, error) {
	hold, err := s.repo.GetByPaymentID(paymentID)
	if err != nil {
		return nil, errors.ErrHoldNotFound.WithCause(err)
	}
	return hold, nil
}
