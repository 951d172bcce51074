// order-service/internal/handlers/webhook_handler.go
package handlers

import (
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"bakehouse-system/services/order-service/internal/payments"
)

// maxWebhookBody caps what we read from the provider; real
// notifications are tiny.
const maxWebhookBody = 1 << 20

// signatureHeaders are the header names the provider is known to use
// for the webhook signature, in preference order.
var signatureHeaders = []string{"X-Signature", "X-Webhook-Signature"}

// Dispatcher hands parsed notifications to the asynchronous
// reconciliation pool.
type Dispatcher interface {
	Enqueue(n payments.Notification, requestID string, raw []byte)
}

type WebhookHandler struct {
	dispatcher Dispatcher
	secret     string
	log        zerolog.Logger
}

func NewWebhookHandler(dispatcher Dispatcher, secret string, log zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{dispatcher: dispatcher, secret: secret, log: log}
}

// HandlePaymentWebhook verifies authenticity, extracts payment ids and
// enqueues reconciliation, then acknowledges. The contract is: 401 only
// when a configured secret fails verification; everything after that is
// a 200, even an unrecognized payload, so the provider never enters a
// redelivery storm over work we will absorb asynchronously anyway.
func (h *WebhookHandler) HandlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read_error", "could not read request body")
		return
	}

	requestID := r.Header.Get("X-Request-Id")
	log := h.log.With().Str("request_id", requestID).Logger()

	if err := payments.VerifySignature(h.secret, signatureHeader(r), body); err != nil {
		log.Warn().Msg("webhook signature rejected")
		writeError(w, http.StatusUnauthorized, "invalid_signature", "signature verification failed")
		return
	}

	notifications, err := payments.ParseNotifications(body)
	if err != nil {
		// Authentic but unrecognized; acknowledged so it is not redelivered.
		log.Warn().Err(err).Msg("webhook payload unrecognized")
		writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
		return
	}

	for _, n := range notifications {
		h.dispatcher.Enqueue(n, requestID, body)
	}
	log.Info().Int("notifications", len(notifications)).Msg("webhook accepted")
	writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

func signatureHeader(r *http.Request) string {
	for _, name := range signatureHeaders {
		if v := r.Header.Get(name); v != "" {
			return v
		}
	}
	return ""
}
