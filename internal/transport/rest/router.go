package rest

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/frahmantamala/marketplace-payments/internal/escrow"
	"github.com/frahmantamala/marketplace-payments/internal/payment"
	"github.com/frahmantamala/marketplace-payments/internal/payout"
	"github.com/frahmantamala/marketplace-payments/internal/transport/middleware"
	"github.com/frahmantamala/marketplace-payments/internal/transport/swagger"
	"github.com/go-chi/chi"
)

func RegisterAllRoutes(router *chi.Mux, db *sql.DB, paymentHandler *payment.Handler, webhookHandler *payment.WebhookHandler, escrowHandler *escrow.Handler, payoutHandler *payout.Handler, logger *slog.Logger) {
	healthHandler := NewHealthHandler(db)

	// Apply global middleware
	router.Use(middleware.CORSWithOrigins("*"))
	router.Use(middleware.RequestID)
	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(middleware.RecoveryMiddleware(logger))

	// Serve OpenAPI spec at root (outside API prefix)
	router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "./api/openapi.yml")
	})
	// Swagger UI route at root
	router.Handle("/swagger/*", swagger.Handler())

	// Mount API under /api/v1 to match OpenAPI basePath
	router.Route("/api/v1", func(r chi.Router) {
		// Health check route
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		// Gateway callbacks are authenticated by signature, not session
		if webhookHandler != nil {
			r.Post("/webhooks/{provider}", webhookHandler.HandleCallback)
		}

		if paymentHandler != nil {
			r.Route("/payments", func(pr chi.Router) {
				pr.Post("/quote", paymentHandler.GetQuote)                 // POST /payments/quote
				pr.Post("/", paymentHandler.InitiatePayment)               // POST /payments
				pr.Get("/", paymentHandler.GetHistory)                     // GET /payments
				pr.Get("/{reference}/verify", paymentHandler.VerifyStatus) // GET /payments/:reference/verify
				pr.Post("/{id}/refund", paymentHandler.Refund)             // POST /payments/:id/refund
			})
		}

		if escrowHandler != nil {
			r.Route("/escrow", func(er chi.Router) {
				er.Post("/{paymentID}/release", escrowHandler.Release) // POST /escrow/:paymentID/release
				er.Get("/{paymentID}", escrowHandler.GetHold)          // GET /escrow/:paymentID
			})
		}

		if payoutHandler != nil {
			r.Post("/payouts/{id}/retry", payoutHandler.Retry) // POST /payouts/:id/retry
		}
	})
}
