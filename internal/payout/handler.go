package payout

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"

	errors "github.com/frahmantamala/marketplace-payments/internal"
	"github.com/frahmantamala/marketplace-payments/internal/transport"
)

type Handler struct {
	*transport.BaseHandler
	Scheduler *Scheduler
	Logger    *slog.Logger
}

func NewHandler(baseHandler *transport.BaseHandler, scheduler *Scheduler, logger *slog.Logger) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		Scheduler:   scheduler,
		Logger:      logger,
	}
}

// Retry handles POST /api/v1/payouts/{id}/retry
func (h *Handler) Retry(w http.ResponseWriter, r *http.Request) {
	payoutID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.HandleError(w, errors.NewValidationError("invalid payout ID", errors.ErrCodeValidationFailed))
		return
	}

	payout, err := h.Scheduler.Retry(r.Context(), payoutID)
	if err != nil {
		h.Logger.Error("Retry: service error", "error", err, "payout_id", payoutID)
		h.HandleError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, payout)
}
