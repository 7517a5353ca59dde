package payment

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi"

	errors "github.com/frahmantamala/marketplace-payments/internal"
	"github.com/frahmantamala/marketplace-payments/internal/breakdown"
	"github.com/frahmantamala/marketplace-payments/internal/transport"
)

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
	Logger  *slog.Logger
}

func NewHandler(baseHandler *transport.BaseHandler, service ServiceAPI, logger *slog.Logger) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		Service:     service,
		Logger:      logger,
	}
}

// GetQuote handles POST /api/v1/payments/quote
func (h *Handler) GetQuote(w http.ResponseWriter, r *http.Request) {
	var in breakdown.QuoteInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		h.Logger.Error("GetQuote: failed to parse request body", "error", err)
		h.HandleError(w, errors.NewValidationError("invalid request body", errors.ErrCodeValidationFailed))
		return
	}

	b, err := h.Service.GetQuote(in)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, b)
}

// InitiatePayment handles POST /api/v1/payments
func (h *Handler) InitiatePayment(w http.ResponseWriter, r *http.Request) {
	var req InitiatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("InitiatePayment: failed to parse request body", "error", err)
		h.HandleError(w, errors.NewValidationError("invalid request body", errors.ErrCodeValidationFailed))
		return
	}

	resp, err := h.Service.InitiatePayment(r.Context(), &req)
	if err != nil {
		h.Logger.Error("InitiatePayment: service error", "error", err, "user_id", req.UserID)
		h.HandleError(w, err)
		return
	}

	h.Logger.Info("InitiatePayment: payment initiated",
		"reference", resp.Reference,
		"user_id", req.UserID,
		"amount", req.Amount)

	h.WriteJSON(w, http.StatusCreated, resp)
}

// VerifyStatus handles GET /api/v1/payments/{reference}/verify
func (h *Handler) VerifyStatus(w http.ResponseWriter, r *http.Request) {
	reference := chi.URLParam(r, "reference")
	if reference == "" {
		h.HandleError(w, errors.NewValidationError("reference is required", errors.ErrCodeValidationFailed))
		return
	}

	status, err := h.Service.VerifyStatus(r.Context(), reference)
	if err != nil {
		h.Logger.Error("VerifyStatus: service error", "error", err, "reference", reference)
		h.HandleError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]string{
		"reference": reference,
		"status":    status,
	})
}

// Refund handles POST /api/v1/payments/{id}/refund
func (h *Handler) Refund(w http.ResponseWriter, r *http.Request) {
	paymentID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.HandleError(w, errors.NewValidationError("invalid payment ID", errors.ErrCodeValidationFailed))
		return
	}

	var req RefundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("Refund: failed to parse request body", "error", err)
		h.HandleError(w, errors.NewValidationError("invalid request body", errors.ErrCodeValidationFailed))
		return
	}

	if err := req.Validate(); err != nil {
		h.HandleError(w, err)
		return
	}

	if err := h.Service.Refund(r.Context(), paymentID, req.Amount, req.Reason, req.ProcessedBy); err != nil {
		h.Logger.Error("Refund: service error", "error", err, "payment_id", paymentID)
		h.HandleError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "refund applied",
		"payment_id": paymentID,
		"amount":     req.Amount,
	})
}

// GetHistory handles GET /api/v1/payments?user_id=...
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		h.HandleError(w, errors.NewValidationError("user_id is required", errors.ErrCodeValidationFailed))
		return
	}

	filter := HistoryFilter{
		Status: r.URL.Query().Get("status"),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		filter.Limit, _ = strconv.Atoi(v)
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		filter.Offset, _ = strconv.Atoi(v)
	}
	if v := r.URL.Query().Get("from"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filter.From = &t
		}
	}
	if v := r.URL.Query().Get("to"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filter.To = &t
		}
	}

	page, err := h.Service.GetHistory(userID, filter)
	if err != nil {
		h.Logger.Error("GetHistory: service error", "error", err, "user_id", userID)
		h.HandleError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, page)
}
