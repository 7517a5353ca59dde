package payment

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"

	errors "github.com/frahmantamala/marketplace-payments/internal"
	"github.com/frahmantamala/marketplace-payments/internal/transport"
)

// signatureHeaders names the header each provider signs its callbacks with.
var signatureHeaders = map[string]string{
	"paystack": "x-paystack-signature",
}

// WebhookHandler is the HTTP edge of the reconciler. Authenticity failures
// are rejected; everything downstream of a verified signature is absorbed
// with a 200 so the provider does not retry into our error states.
type WebhookHandler struct {
	*transport.BaseHandler
	Service ServiceAPI
	Logger  *slog.Logger
}

func NewWebhookHandler(baseHandler *transport.BaseHandler, service ServiceAPI, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		BaseHandler: baseHandler,
		Service:     service,
		Logger:      logger,
	}
}

// HandleCallback handles POST /api/v1/webhooks/{provider}
func (h *WebhookHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")

	rawPayload, err := io.ReadAll(r.Body)
	if err != nil || len(rawPayload) == 0 {
		h.Logger.Error("webhook body unreadable", "provider", provider, "error", err)
		h.HandleError(w, errors.NewValidationError("invalid request body", errors.ErrCodeValidationFailed))
		return
	}

	header := signatureHeaders[provider]
	signature := r.Header.Get(header)

	accepted, err := h.Service.HandleWebhook(r.Context(), provider, rawPayload, signature)
	if err != nil {
		if appErr, ok := errors.IsAppError(err); ok {
			h.HandleError(w, appErr)
			return
		}
		// Internal inconsistency is never leaked back to the provider.
		h.Logger.Error("webhook processing error", "provider", provider, "error", err)
		h.HandleError(w, errors.NewInternalError("failed to process webhook", err))
		return
	}

	h.Logger.Info("webhook processed", "provider", provider, "accepted", accepted)

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "success",
		"accepted": accepted,
	})
}
