package handlers

import (
	"io"
	"log/slog"
	"net/http"

	"nightlife-core/internal/services"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

const maxWebhookBodyBytes = int64(65536)

type PaymentHandler struct {
	dispatcher *services.Dispatcher
}

func NewPaymentHandler(dispatcher *services.Dispatcher) *PaymentHandler {
	return &PaymentHandler{dispatcher: dispatcher}
}

// StripeWebhook - Receive payment provider notifications
func (h *PaymentHandler) StripeWebhook(e *core.RequestEvent) error {
	body := http.MaxBytesReader(e.Response, e.Request.Body, maxWebhookBodyBytes)
	payload, err := io.ReadAll(body)
	if err != nil {
		return apis.NewBadRequestError("Error reading request body", nil)
	}

	result, err := h.dispatcher.Dispatch(e.Request.Context(), payload, e.Request.Header.Get("Stripe-Signature"))
	if err != nil {
		slog.Warn("webhook not accepted", "error", err)
		return apiError("h.dispatcher.Dispatch()", err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"received": true,
		"event_id": result.EventID,
		"outcome":  result.Outcome,
	})
}
