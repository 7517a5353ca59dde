package escrow

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"

	errors "github.com/frahmantamala/marketplace-payments/internal"
	"github.com/frahmantamala/marketplace-payments/internal/transport"
)

type Handler struct {
	*transport.BaseHandler
	Service *Service
	Logger  *slog.Logger
}

func NewHandler(baseHandler *transport.BaseHandler, service *Service, logger *slog.Logger) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		Service:     service,
		Logger:      logger,
	}
}

type releaseRequest struct {
	ReleasedBy string `json:"released_by"`
}

// Release handles POST /api/v1/escrow/{paymentID}/release
func (h *Handler) Release(w http.ResponseWriter, r *http.Request) {
	paymentID, err := strconv.ParseInt(chi.URLParam(r, "paymentID"), 10, 64)
	if err != nil {
		h.HandleError(w, errors.NewValidationError("invalid payment ID", errors.ErrCodeValidationFailed))
		return
	}

	var req releaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.HandleError(w, errors.NewValidationError("invalid request body", errors.ErrCodeValidationFailed))
		return
	}

	if err := h.Service.Release(r.Context(), paymentID, req.ReleasedBy); err != nil {
		h.Logger.Error("Release: service error", "error", err, "payment_id", paymentID)
		h.HandleError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "escrow released",
		"payment_id": paymentID,
	})
}

// GetHold handles GET /api/v1/escrow/{paymentID}
func (h *Handler) GetHold(w http.ResponseWriter, r *http.Request) {
	paymentID, err := strconv.ParseInt(chi.URLParam(r, "paymentID"), 10, 64)
	if err != nil {
		h.HandleError(w, errors.NewValidationError("invalid payment ID", errors.ErrCodeValidationFailed))
		return
	}

	hold, err := h.Service.GetHold(paymentID)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, hold)
}
