package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/kazuya8222/embld-revenue/internal/api/httpx"
	"github.com/kazuya8222/embld-revenue/internal/middleware"
	"github.com/kazuya8222/embld-revenue/internal/payments"
	"go.uber.org/zap"
)

const maxWebhookBody = 1 << 20

// EventHandler processes one verified event. A non-nil error is answered
// with 500 so the sender redelivers.
type EventHandler func(ctx context.Context, evt payments.Event) error

type WebhookHandler struct {
	verifier *payments.Verifier
	handle   EventHandler
	log      *zap.Logger
}

func NewWebhookHandler(v *payments.Verifier, handle EventHandler, log *zap.Logger) *WebhookHandler {
	return &WebhookHandler{verifier: v, handle: handle, log: log}
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := h.log.With(zap.String("request_id", middleware.RequestIDFrom(r.Context())))

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		log.Warn("read webhook body", zap.Error(err))
		httpx.WriteError(w, http.StatusBadRequest, "bad_request", "Invalid request body", nil)
		return
	}

	evt, err := h.verifier.Verify(body, r.Header.Get("Stripe-Signature"))
	switch {
	case errors.Is(err, payments.ErrMissingSignature):
		httpx.WriteError(w, http.StatusBadRequest, "missing_signature", "No signature", nil)
		return
	case errors.Is(err, payments.ErrInvalidSignature):
		log.Warn("webhook signature verification failed", zap.Error(err))
		httpx.WriteError(w, http.StatusBadRequest, "invalid_signature", "Invalid signature", nil)
		return
	case err != nil:
		log.Error("webhook decode", zap.Error(err))
		httpx.WriteError(w, http.StatusInternalServerError, "webhook_failed", "Webhook processing failed", nil)
		return
	}

	if err := h.handle(r.Context(), evt); err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "webhook_failed", "Webhook processing failed", nil)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]bool{"received": true})
}
