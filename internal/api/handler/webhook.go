package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/ayo6706/wallet-ledger/internal/service"
	"go.uber.org/zap"
)

const (
	PaystackSignatureHeader = "x-paystack-signature"
	maxWebhookBody          = 1 << 20
)

// WebhookHandler receives payment provider event deliveries.
type WebhookHandler struct {
	webhookSvc *service.WebhookService
}

func NewWebhookHandler(webhookSvc *service.WebhookService) *WebhookHandler {
	return &WebhookHandler{webhookSvc: webhookSvc}
}

// HandlePaystackWebhook handles POST /v1/wallet/paystack/webhook. The raw
// body is passed through untouched because the signature covers its bytes.
func (h *WebhookHandler) HandlePaystackWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			RespondError(w, r, http.StatusRequestEntityTooLarge, "webhook/body-too-large", "Webhook body exceeds 1 MiB")
			return
		}
		zap.L().Warn("read webhook body failed", zap.Error(err))
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Failed to read request body")
		return
	}

	resp, err := h.webhookSvc.HandlePaystackWebhook(r.Context(), body, r.Header.Get(PaystackSignatureHeader))
	switch {
	case err == nil:
		RespondJSON(w, http.StatusOK, resp)
	case errors.Is(err, service.ErrInvalidSignature):
		RespondError(w, r, http.StatusUnauthorized, "webhook/invalid-signature", "Invalid signature")
	case errors.Is(err, service.ErrInvalidPayload):
		RespondError(w, r, http.StatusBadRequest, "webhook/invalid-payload", "Invalid webhook payload")
	default:
		writeServiceError(w, r, err)
	}
}
