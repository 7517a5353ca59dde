package postgres

import (
	"testing"
	"time"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/frahmantamala/marketplace-payments/internal/core/datamodel/payment"
	paymentpkg "github.com/frahmantamala/marketplace-payments/internal/payment"
)

func TestPaymentRepository(t *testing.T) {
	gomega.RegisterFailHandler(ginkgo.Fail)
	ginkgo.RunSpecs(t, "Payment Repository Suite")
}

// PaymentSQLite is a test-specific version with text instead of jsonb for SQLite compatibility
type PaymentSQLite struct {
	ID                  int64     `gorm:"primaryKey"`
	Reference           string    `gorm:"column:reference;not null;uniqueIndex"`
	UserID              int64     `gorm:"column:user_id;not null"`
	SellerID            *int64    `gorm:"column:seller_id"`
	OrderID             *int64    `gorm:"column:order_id"`
	ServiceRequestID    *int64    `gorm:"column:service_request_id"`
	Amount              int64     `gorm:"column:amount;not null"`
	Currency            string    `gorm:"column:currency;not null"`
	Method              string    `gorm:"column:method"`
	Status              string    `gorm:"column:status;default:pending"`
	Escrow              bool      `gorm:"column:escrow;default:false"`
	Breakdown           string    `gorm:"column:breakdown;type:text"`
	RefundableRemaining int64     `gorm:"column:refundable_remaining;default:0"`
	RefundedAmount      int64     `gorm:"column:refunded_amount;default:0"`
	Metadata            string    `gorm:"column:metadata;type:text"`
	GatewayResponse     string    `gorm:"column:gateway_response;type:text"`
	FailureReason       *string   `gorm:"column:failure_reason"`
	CreatedAt           time.Time `gorm:"column:created_at"`
	UpdatedAt           time.Time `gorm:"column:updated_at"`
}

func (PaymentSQLite) TableName() string {
	return "payments"
}

// WebhookEventSQLite mirrors the dedup table with text payloads.
type WebhookEventSQLite struct {
	ID              int64     `gorm:"primaryKey"`
	Provider        string    `gorm:"column:provider;not null;uniqueIndex:idx_webhook_dedup"`
	ProviderEventID string    `gorm:"column:provider_event_id;not null;uniqueIndex:idx_webhook_dedup"`
	Reference       string    `gorm:"column:reference"`
	Payload         string    `gorm:"column:payload;type:text"`
	ReceivedAt      time.Time `gorm:"column:received_at"`
}

func (WebhookEventSQLite) TableName() string {
	return "webhook_events"
}

var _ = ginkgo.Describe("PaymentRepository", func() {
	var (
		db   *gorm.DB
		repo paymentpkg.RepositoryAPI
	)

	sellerID := int64(77)

	newPayment := func(reference string) *payment.Payment {
		return &payment.Payment{
			Reference: reference,
			UserID:    42,
			SellerID:  &sellerID,
			Amount:    10000,
			Currency:  "NGN",
			Method:    payment.MethodCard,
			Status:    payment.StatusPending,
			Breakdown: payment.Breakdown{
				Subtotal:    10000,
				Taxes:       []payment.TaxLine{{Type: "vat", Name: "VAT", Rate: 0.075, Amount: 750}},
				Total:       11250,
				PlatformCut: 500,
				SellerNet:   10750,
			},
		}
	}

	ginkgo.BeforeEach(func() {
		var err error
		db, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
		gomega.Expect(err).NotTo(gomega.HaveOccurred())

		gomega.Expect(db.AutoMigrate(&PaymentSQLite{}, &WebhookEventSQLite{})).To(gomega.Succeed())

		repo = NewPaymentRepository(db)
	})

	ginkgo.Describe("Create and read back", func() {
		ginkgo.It("should round-trip the breakdown through the serializer", func() {
			p := newPayment("ref-1")
			gomega.Expect(repo.Create(p)).To(gomega.Succeed())
			gomega.Expect(p.ID).NotTo(gomega.BeZero())

			loaded, err := repo.GetByReference("ref-1")
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(loaded.Breakdown.SellerNet).To(gomega.Equal(int64(10750)))
			gomega.Expect(loaded.Breakdown.Taxes).To(gomega.HaveLen(1))
		})

		ginkgo.It("should enforce reference uniqueness", func() {
			gomega.Expect(repo.Create(newPayment("ref-dup"))).To(gomega.Succeed())
			gomega.Expect(repo.Create(newPayment("ref-dup"))).NotTo(gomega.Succeed())
		})

		ginkgo.It("should fail lookups for unknown references", func() {
			_, err := repo.GetByReference("missing")
			gomega.Expect(err).To(gomega.HaveOccurred())
		})
	})

	ginkgo.Describe("UpdateStatus", func() {
		ginkgo.It("should persist the status and failure reason", func() {
			p := newPayment("ref-2")
			gomega.Expect(repo.Create(p)).To(gomega.Succeed())

			reason := "card declined"
			gomega.Expect(repo.UpdateStatus(p.ID, payment.StatusFailed, nil, &reason)).To(gomega.Succeed())

			loaded, err := repo.GetByID(p.ID)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(loaded.Status).To(gomega.Equal(payment.StatusFailed))
			gomega.Expect(*loaded.FailureReason).To(gomega.Equal("card declined"))
		})
	})

	ginkgo.Describe("Refund bookkeeping", func() {
		ginkgo.It("should set and consume the refundable balance", func() {
			p := newPayment("ref-3")
			gomega.Expect(repo.Create(p)).To(gomega.Succeed())
			gomega.Expect(repo.UpdateStatus(p.ID, payment.StatusCompleted, nil, nil)).To(gomega.Succeed())
			gomega.Expect(repo.SetRefundable(p.ID, 11250)).To(gomega.Succeed())

			gomega.Expect(repo.UpdateRefund(p.ID, payment.StatusPartiallyRefunded, 8250, 3000)).To(gomega.Succeed())

			loaded, err := repo.GetByID(p.ID)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(loaded.Status).To(gomega.Equal(payment.StatusPartiallyRefunded))
			gomega.Expect(loaded.RefundableRemaining).To(gomega.Equal(int64(8250)))
			gomega.Expect(loaded.RefundedAmount).To(gomega.Equal(int64(3000)))
		})
	})

	ginkgo.Describe("ListByUser", func() {
		ginkgo.BeforeEach(func() {
			for _, ref := range []string{"ref-a", "ref-b", "ref-c"} {
				gomega.Expect(repo.Create(newPayment(ref))).To(gomega.Succeed())
			}
			other := newPayment("ref-other")
			other.UserID = 99
			gomega.Expect(repo.Create(other)).To(gomega.Succeed())
		})

		ginkgo.It("should scope results to the user and report the total", func() {
			items, total, err := repo.ListByUser(42, paymentpkg.HistoryFilter{Limit: 10})
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(total).To(gomega.Equal(int64(3)))
			gomega.Expect(items).To(gomega.HaveLen(3))
		})

		ginkgo.It("should paginate", func() {
			items, total, err := repo.ListByUser(42, paymentpkg.HistoryFilter{Limit: 2, Offset: 2})
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(total).To(gomega.Equal(int64(3)))
			gomega.Expect(items).To(gomega.HaveLen(1))
		})

		ginkgo.It("should filter by status", func() {
			p, err := repo.GetByReference("ref-a")
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(repo.UpdateStatus(p.ID, payment.StatusCompleted, nil, nil)).To(gomega.Succeed())

			items, total, err := repo.ListByUser(42, paymentpkg.HistoryFilter{Status: payment.StatusCompleted, Limit: 10})
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(total).To(gomega.Equal(int64(1)))
			gomega.Expect(items[0].Reference).To(gomega.Equal("ref-a"))
		})
	})

	ginkgo.Describe("SaveWebhookEvent", func() {
		ginkgo.It("should insert the first delivery and report it as new", func() {
			inserted, err := repo.SaveWebhookEvent(&payment.WebhookEvent{
				Provider:        "paystack",
				ProviderEventID: "evt-1",
				Reference:       "ref-1",
			})
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(inserted).To(gomega.BeTrue())
		})

		ginkgo.It("should report a replayed event id as already processed", func() {
			first, err := repo.SaveWebhookEvent(&payment.WebhookEvent{
				Provider:        "paystack",
				ProviderEventID: "evt-2",
				Reference:       "ref-1",
			})
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(first).To(gomega.BeTrue())

			second, err := repo.SaveWebhookEvent(&payment.WebhookEvent{
				Provider:        "paystack",
				ProviderEventID: "evt-2",
				Reference:       "ref-1",
			})
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(second).To(gomega.BeFalse())
		})

		ginkgo.It("should scope dedup per provider", func() {
			_, err := repo.SaveWebhookEvent(&payment.WebhookEvent{
				Provider:        "paystack",
				ProviderEventID: "evt-3",
			})
			gomega.Expect(err).NotTo(gomega.HaveOccurred())

			inserted, err := repo.SaveWebhookEvent(&payment.WebhookEvent{
				Provider:        "other",
				ProviderEventID: "evt-3",
			})
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(inserted).To(gomega.BeTrue())
		})
	})
})
