package escrow_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	internalErrors "github.com/frahmantamala/marketplace-payments/internal"
	"github.com/frahmantamala/marketplace-payments/internal/core/datamodel/payment"
	"github.com/frahmantamala/marketplace-payments/internal/core/events"
	escrowPkg "github.com/frahmantamala/marketplace-payments/internal/escrow"
)

func TestEscrowService(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Escrow Service Suite")
}

type mockHoldRepository struct {
	holds       map[int64]*payment.EscrowHold
	nextID      int64
	createError error
	updateError error
}

func newMockHoldRepository() *mockHoldRepository {
	return &mockHoldRepository{holds: make(map[int64]*payment.EscrowHold)}
}

func (m *mockHoldRepository) Create(h *payment.EscrowHold) error {
	if m.createError != nil {
		return m.createError
	}
	m.nextID++
	h.ID = m.nextID
	cp := *h
	m.holds[h.PaymentID] = &cp
	return nil
}

func (m *mockHoldRepository) GetByPaymentID(paymentID int64) (*payment.EscrowHold, error) {
	h, ok := m.holds[paymentID]
	if !ok {
		return nil, errors.New("record not found")
	}
	cp := *h
	return &cp, nil
}

func (m *mockHoldRepository) Update(h *payment.EscrowHold) error {
	if m.updateError != nil {
		return m.updateError
	}
	cp := *h
	m.holds[h.PaymentID] = &cp
	return nil
}

type mockLedger struct {
	payments map[int64]*payment.Payment
}

func (m *mockLedger) GetPayment(id int64) (*payment.Payment, error) {
	p, ok := m.payments[id]
	if !ok {
		return nil, internalErrors.ErrPaymentNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockLedger) LockReference(reference string) func() {
	return func() {}
}

type mockPayoutScheduler struct {
	scheduled     []int64
	scheduleError error
}

func (m *mockPayoutScheduler) Schedule(ctx context.Context, p *payment.Payment) (*payment.Payout, error) {
	if m.scheduleError != nil {
		return nil, m.scheduleError
	}
	m.scheduled = append(m.scheduled, p.ID)
	return &payment.Payout{ID: 1, PaymentID: p.ID, Amount: p.Breakdown.SellerNet}, nil
}

var _ = Describe("EscrowService", func() {
	var (
		service *escrowPkg.Service
		repo    *mockHoldRepository
		ledger  *mockLedger
		payouts *mockPayoutScheduler
		ctx     context.Context
	)

	sellerID := int64(77)

	completedEscrowPayment := func(id int64) *payment.Payment {
		return &payment.Payment{
			ID:        id,
			Reference: "ref-escrow",
			UserID:    42,
			SellerID:  &sellerID,
			Amount:    10000,
			Currency:  "NGN",
			Status:    payment.StatusCompleted,
			Escrow:    true,
			Breakdown: payment.Breakdown{Subtotal: 10000, Total: 11250, PlatformCut: 500, SellerNet: 10750},
		}
	}

	BeforeEach(func() {
		repo = newMockHoldRepository()
		ledger = &mockLedger{payments: make(map[int64]*payment.Payment)}
		payouts = &mockPayoutScheduler{}
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		service = escrowPkg.NewService(repo, ledger, payouts, events.NewEventBus(logger), logger)
		ctx = context.Background()
	})

	Describe("OpenHold", func() {
		It("should hold exactly the seller net from the stored breakdown", func() {
			p := completedEscrowPayment(1)
			Expect(service.OpenHold(p)).To(Succeed())

			hold, err := repo.GetByPaymentID(1)
			Expect(err).NotTo(HaveOccurred())
			Expect(hold.HeldAmount).To(Equal(int64(10750)))
			Expect(hold.Active()).To(BeTrue())
		})
	})

	Describe("Release", func() {
		BeforeEach(func() {
			p := completedEscrowPayment(1)
			ledger.payments[1] = p
			Expect(service.OpenHold(p)).To(Succeed())
		})

		It("should stamp the hold released and schedule the payout", func() {
			Expect(service.Release(ctx, 1, "admin@example.com")).To(Succeed())

			hold, _ := repo.GetByPaymentID(1)
			Expect(hold.ReleasedAt).NotTo(BeNil())
			Expect(*hold.ReleasedBy).To(Equal("admin@example.com"))
			Expect(payouts.scheduled).To(Equal([]int64{1}))
		})

		It("should fail a double release identically without mutation", func() {
			Expect(service.Release(ctx, 1, "admin@example.com")).To(Succeed())
			first, _ := repo.GetByPaymentID(1)

			err := service.Release(ctx, 1, "admin@example.com")
			Expect(err).To(HaveOccurred())
			appErr, ok := internalErrors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(internalErrors.ErrCodeAlreadyReleased))

			second, _ := repo.GetByPaymentID(1)
			Expect(second.ReleasedAt.Equal(*first.ReleasedAt)).To(BeTrue())
			Expect(payouts.scheduled).To(HaveLen(1))
		})

		It("should require released_by", func() {
			Expect(service.Release(ctx, 1, "")).NotTo(Succeed())
		})

		It("should refuse to release a non-escrow payment", func() {
			p := completedEscrowPayment(2)
			p.Escrow = false
			ledger.payments[2] = p

			err := service.Release(ctx, 2, "admin@example.com")
			Expect(err).To(HaveOccurred())
		})

		It("should refuse to release before the payment completed", func() {
			p := completedEscrowPayment(3)
			p.Status = payment.StatusProcessing
			ledger.payments[3] = p
			Expect(service.OpenHold(p)).To(Succeed())

			err := service.Release(ctx, 3, "admin@example.com")
			Expect(err).To(HaveOccurred())
		})

		It("should refuse to release a fully refunded hold", func() {
			p := ledger.payments[1]
			Expect(service.ApplyRefund(p, 10750, "ops@example.com")).To(Succeed())

			err := service.Release(ctx, 1, "admin@example.com")
			Expect(err).To(HaveOccurred())
		})

		It("should keep the release when payout scheduling fails", func() {
			payouts.scheduleError = errors.New("gateway down")

			Expect(service.Release(ctx, 1, "admin@example.com")).To(Succeed())

			hold, _ := repo.GetByPaymentID(1)
			Expect(hold.ReleasedAt).NotTo(BeNil())
		})

		It("should return not found for a payment without a hold", func() {
			ledger.payments[9] = completedEscrowPayment(9)

			err := service.Release(ctx, 9, "admin@example.com")
			Expect(err).To(HaveOccurred())
			appErr, ok := internalErrors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(internalErrors.ErrCodeHoldNotFound))
		})
	})

	Describe("ApplyRefund", func() {
		var p *payment.Payment

		BeforeEach(func() {
			p = completedEscrowPayment(1)
			ledger.payments[1] = p
			Expect(service.OpenHold(p)).To(Succeed())
		})

		It("should shrink an active hold", func() {
			Expect(service.ApplyRefund(p, 3000, "ops@example.com")).To(Succeed())

			hold, _ := repo.GetByPaymentID(1)
			Expect(hold.HeldAmount).To(Equal(int64(7750)))
			Expect(hold.Clawback).To(BeFalse())
		})

		It("should close the hold at zero, never below", func() {
			Expect(service.ApplyRefund(p, 3000, "ops@example.com")).To(Succeed())
			Expect(service.ApplyRefund(p, 7750, "ops@example.com")).To(Succeed())

			hold, _ := repo.GetByPaymentID(1)
			Expect(hold.HeldAmount).To(Equal(int64(0)))
			Expect(hold.Active()).To(BeFalse())
		})

		It("should record a clawback when the hold was already released", func() {
			Expect(service.Release(ctx, 1, "admin@example.com")).To(Succeed())

			Expect(service.ApplyRefund(p, 4000, "ops@example.com")).To(Succeed())

			hold, _ := repo.GetByPaymentID(1)
			Expect(hold.Clawback).To(BeTrue())
			Expect(hold.ClawbackAmount).To(Equal(int64(4000)))
			// The original held amount is preserved for reconciliation.
			Expect(hold.HeldAmount).To(Equal(int64(10750)))
		})

		It("should accumulate clawbacks across refunds", func() {
			Expect(service.Release(ctx, 1, "admin@example.com")).To(Succeed())
			Expect(service.ApplyRefund(p, 4000, "ops@example.com")).To(Succeed())
			Expect(service.ApplyRefund(p, 2000, "ops@example.com")).To(Succeed())

			hold, _ := repo.GetByPaymentID(1)
			Expect(hold.ClawbackAmount).To(Equal(int64(6000)))
		})

		It("should be a no-op for non-escrow payments", func() {
			np := completedEscrowPayment(5)
			np.Escrow = false
			Expect(service.ApplyRefund(np, 3000, "ops@example.com")).To(Succeed())
		})
	})

	Describe("GetHold", func() {
		It("should return the hold for a payment", func() {
			p := completedEscrowPayment(1)
			Expect(service.OpenHold(p)).To(Succeed())

			hold, err := service.GetHold(1)
			Expect(err).NotTo(HaveOccurred())
			Expect(hold.HeldAmount).To(Equal(int64(10750)))
		})

		It("should return not found when no hold exists", func() {
			_, err := service.GetHold(999)
			Expect(err).To(HaveOccurred())
		})
	})
})
