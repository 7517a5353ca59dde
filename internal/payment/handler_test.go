package payment_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"

	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	internalErrors "github.com/frahmantamala/marketplace-payments/internal"
	"github.com/frahmantamala/marketplace-payments/internal/breakdown"
	"github.com/frahmantamala/marketplace-payments/internal/core/datamodel/payment"
	paymentPkg "github.com/frahmantamala/marketplace-payments/internal/payment"
	"github.com/frahmantamala/marketplace-payments/internal/transport"
)

// stubService lets each test script the service surface directly.
type stubService struct {
	getQuoteFn      func(in breakdown.QuoteInput) (*payment.Breakdown, error)
	initiateFn      func(ctx context.Context, req *paymentPkg.InitiatePaymentRequest) (*paymentPkg.InitiatePaymentResponse, error)
	verifyFn        func(ctx context.Context, reference string) (string, error)
	refundFn        func(ctx context.Context, paymentID, amount int64, reason, processedBy string) error
	getHistoryFn    func(userID int64, filter paymentPkg.HistoryFilter) (*paymentPkg.HistoryPage, error)
	handleWebhookFn func(ctx context.Context, provider string, rawPayload []byte, signatureHeader string) (bool, error)
}

func (s *stubService) GetQuote(in breakdown.QuoteInput) (*payment.Breakdown, error) {
	return s.getQuoteFn(in)
}

func (s *stubService) InitiatePayment(ctx context.Context, req *paymentPkg.InitiatePaymentRequest) (*paymentPkg.InitiatePaymentResponse, error) {
	return s.initiateFn(ctx, req)
}

func (s *stubService) VerifyStatus(ctx context.Context, reference string) (string, error) {
	return s.verifyFn(ctx, reference)
}

func (s *stubService) Refund(ctx context.Context, paymentID, amount int64, reason, processedBy string) error {
	return s.refundFn(ctx, paymentID, amount, reason, processedBy)
}

func (s *stubService) GetHistory(userID int64, filter paymentPkg.HistoryFilter) (*paymentPkg.HistoryPage, error) {
	return s.getHistoryFn(userID, filter)
}

func (s *stubService) HandleWebhook(ctx context.Context, provider string, rawPayload []byte, signatureHeader string) (bool, error) {
	return s.handleWebhookFn(ctx, provider, rawPayload, signatureHeader)
}

var _ = Describe("PaymentHandler", func() {
	var (
		handler *paymentPkg.Handler
		stub    *stubService
		router  *chi.Mux
	)

	BeforeEach(func() {
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		stub = &stubService{}
		handler = paymentPkg.NewHandler(transport.NewBaseHandler(logger), stub, logger)

		router = chi.NewRouter()
		router.Post("/payments/quote", handler.GetQuote)
		router.Post("/payments", handler.InitiatePayment)
		router.Get("/payments", handler.GetHistory)
		router.Get("/payments/{reference}/verify", handler.VerifyStatus)
		router.Post("/payments/{id}/refund", handler.Refund)
	})

	Describe("GetQuote", func() {
		It("should return the computed breakdown", func() {
			stub.getQuoteFn = func(in breakdown.QuoteInput) (*payment.Breakdown, error) {
				Expect(in.Amount).To(Equal(int64(10000)))
				return &payment.Breakdown{Subtotal: 10000, Total: 11250, PlatformCut: 500, SellerNet: 10750}, nil
			}

			req := httptest.NewRequest(http.MethodPost, "/payments/quote", bytes.NewBufferString(`{"amount":10000,"currency":"NGN"}`))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusOK))

			var b payment.Breakdown
			Expect(json.Unmarshal(rec.Body.Bytes(), &b)).To(Succeed())
			Expect(b.SellerNet).To(Equal(int64(10750)))
		})

		It("should reject a malformed body", func() {
			req := httptest.NewRequest(http.MethodPost, "/payments/quote", bytes.NewBufferString("{not json"))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("should map validation failures to 400", func() {
			stub.getQuoteFn = func(in breakdown.QuoteInput) (*payment.Breakdown, error) {
				return nil, internalErrors.NewValidationError("amount must be positive", internalErrors.ErrCodeInvalidAmount)
			}

			req := httptest.NewRequest(http.MethodPost, "/payments/quote", bytes.NewBufferString(`{"amount":-1,"currency":"NGN"}`))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("InitiatePayment", func() {
		It("should return 201 with the gateway continuation", func() {
			stub.initiateFn = func(ctx context.Context, req *paymentPkg.InitiatePaymentRequest) (*paymentPkg.InitiatePaymentResponse, error) {
				return &paymentPkg.InitiatePaymentResponse{
					Reference:   "ref-1",
					Status:      payment.StatusProcessing,
					RedirectURL: "https://checkout.example/abc",
				}, nil
			}

			body := `{"user_id":42,"amount":10000,"currency":"NGN","method":"card","payer_email":"buyer@example.com"}`
			req := httptest.NewRequest(http.MethodPost, "/payments", bytes.NewBufferString(body))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusCreated))

			var resp paymentPkg.InitiatePaymentResponse
			Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.Reference).To(Equal("ref-1"))
			Expect(resp.RedirectURL).To(Equal("https://checkout.example/abc"))
		})

		It("should map gateway failures to 502", func() {
			stub.initiateFn = func(ctx context.Context, req *paymentPkg.InitiatePaymentRequest) (*paymentPkg.InitiatePaymentResponse, error) {
				return nil, internalErrors.NewGatewayError("payment initiation rejected by gateway", nil)
			}

			body := `{"user_id":42,"amount":10000,"currency":"NGN","method":"card","payer_email":"buyer@example.com"}`
			req := httptest.NewRequest(http.MethodPost, "/payments", bytes.NewBufferString(body))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusBadGateway))
		})
	})

	Describe("VerifyStatus", func() {
		It("should return the reconciled status", func() {
			stub.verifyFn = func(ctx context.Context, reference string) (string, error) {
				Expect(reference).To(Equal("ref-9"))
				return payment.StatusCompleted, nil
			}

			req := httptest.NewRequest(http.MethodGet, "/payments/ref-9/verify", nil)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(ContainSubstring(payment.StatusCompleted))
		})

		It("should map unknown references to 404", func() {
			stub.verifyFn = func(ctx context.Context, reference string) (string, error) {
				return "", internalErrors.ErrPaymentNotFound
			}

			req := httptest.NewRequest(http.MethodGet, "/payments/missing/verify", nil)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusNotFound))
		})
	})

	Describe("Refund", func() {
		It("should apply a refund and return 200", func() {
			var captured struct {
				paymentID, amount int64
				processedBy       string
			}
			stub.refundFn = func(ctx context.Context, paymentID, amount int64, reason, processedBy string) error {
				captured.paymentID = paymentID
				captured.amount = amount
				captured.processedBy = processedBy
				return nil
			}

			body := `{"amount":3000,"reason":"damaged","processed_by":"ops@example.com"}`
			req := httptest.NewRequest(http.MethodPost, "/payments/12/refund", bytes.NewBufferString(body))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(captured.paymentID).To(Equal(int64(12)))
			Expect(captured.amount).To(Equal(int64(3000)))
			Expect(captured.processedBy).To(Equal("ops@example.com"))
		})

		It("should reject a non-numeric payment id", func() {
			req := httptest.NewRequest(http.MethodPost, "/payments/abc/refund", bytes.NewBufferString(`{"amount":3000,"processed_by":"ops"}`))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("should reject a missing amount before hitting the service", func() {
			called := false
			stub.refundFn = func(ctx context.Context, paymentID, amount int64, reason, processedBy string) error {
				called = true
				return nil
			}

			req := httptest.NewRequest(http.MethodPost, "/payments/12/refund", bytes.NewBufferString(`{"processed_by":"ops"}`))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(called).To(BeFalse())
		})

		It("should map an over-refund to 422", func() {
			stub.refundFn = func(ctx context.Context, paymentID, amount int64, reason, processedBy string) error {
				return internalErrors.NewInsufficientBalanceError(amount, 100)
			}

			body := `{"amount":3000,"processed_by":"ops@example.com"}`
			req := httptest.NewRequest(http.MethodPost, "/payments/12/refund", bytes.NewBufferString(body))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusUnprocessableEntity))
		})
	})

	Describe("GetHistory", func() {
		It("should parse query filters into the history call", func() {
			stub.getHistoryFn = func(userID int64, filter paymentPkg.HistoryFilter) (*paymentPkg.HistoryPage, error) {
				Expect(userID).To(Equal(int64(42)))
				Expect(filter.Status).To(Equal(payment.StatusCompleted))
				Expect(filter.Limit).To(Equal(5))
				Expect(filter.From).NotTo(BeNil())
				return &paymentPkg.HistoryPage{Total: 0, Limit: 5}, nil
			}

			req := httptest.NewRequest(http.MethodGet, "/payments?user_id=42&status=completed&limit=5&from=2026-01-01T00:00:00Z", nil)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusOK))
		})

		It("should require user_id", func() {
			req := httptest.NewRequest(http.MethodGet, "/payments", nil)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})
	})
})

var _ = Describe("WebhookHandler", func() {
	var (
		handler *paymentPkg.WebhookHandler
		stub    *stubService
		router  *chi.Mux
	)

	BeforeEach(func() {
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		stub = &stubService{}
		handler = paymentPkg.NewWebhookHandler(transport.NewBaseHandler(logger), stub, logger)

		router = chi.NewRouter()
		router.Post("/webhooks/{provider}", handler.HandleCallback)
	})

	It("should pass the raw body and signature header through untouched", func() {
		rawBody := `{"event":"charge.success","data":{"id":12,"reference":"ref-1","status":"success"}}`
		stub.handleWebhookFn = func(ctx context.Context, provider string, rawPayload []byte, signatureHeader string) (bool, error) {
			Expect(provider).To(Equal("paystack"))
			Expect(string(rawPayload)).To(Equal(rawBody))
			Expect(signatureHeader).To(Equal("deadbeef"))
			return true, nil
		}

		req := httptest.NewRequest(http.MethodPost, "/webhooks/paystack", bytes.NewBufferString(rawBody))
		req.Header.Set("x-paystack-signature", "deadbeef")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring(`"accepted":true`))
	})

	It("should return 401 when the signature check fails", func() {
		stub.handleWebhookFn = func(ctx context.Context, provider string, rawPayload []byte, signatureHeader string) (bool, error) {
			return false, internalErrors.NewSignatureVerificationError(provider)
		}

		req := httptest.NewRequest(http.MethodPost, "/webhooks/paystack", bytes.NewBufferString(`{}`))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		Expect(rec.Code).To(Equal(http.StatusUnauthorized))
	})

	It("should reject an empty body", func() {
		called := false
		stub.handleWebhookFn = func(ctx context.Context, provider string, rawPayload []byte, signatureHeader string) (bool, error) {
			called = true
			return true, nil
		}

		req := httptest.NewRequest(http.MethodPost, "/webhooks/paystack", bytes.NewBufferString(""))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		Expect(rec.Code).To(Equal(http.StatusBadRequest))
		Expect(called).To(BeFalse())
	})

	It("should report duplicates as accepted no-ops", func() {
		stub.handleWebhookFn = func(ctx context.Context, provider string, rawPayload []byte, signatureHeader string) (bool, error) {
			return true, nil
		}

		req := httptest.NewRequest(http.MethodPost, "/webhooks/paystack", bytes.NewBufferString(`{"event":"charge.success"}`))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		Expect(rec.Code).To(Equal(http.StatusOK))
	})
})
