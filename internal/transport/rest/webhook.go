package rest

import (
	"io"
	"log"
	"net/http"
	"time"
)

// SignatureHeader carries the processor's webhook signature.
const SignatureHeader = "Processor-Signature"

// maxWebhookBody bounds how much of a delivery is read.
const maxWebhookBody = 1 << 20

// processorWebhook verifies the delivery signature, hands the body to the
// background queue and acknowledges immediately. The processor retries on
// anything but a 2xx, so verification failures answer 400 and everything
// accepted answers 200 regardless of how reconciliation later goes.
func (h *Handler) processorWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		ErrorBadRequest(w, "failed to read body")
		return
	}

	sig := r.Header.Get(SignatureHeader)
	if sig == "" {
		ErrorBadRequest(w, "missing signature header")
		return
	}

	if err := h.webhook.VerifySignature(sig, body, time.Now()); err != nil {
		ErrorBadRequest(w, "signature verification failed")
		return
	}

	if err := h.webhook.Enqueue(r.Context(), body); err != nil {
		log.Printf("[HTTP] webhook enqueue error: %v", err)
		ErrorInternal(w, "failed to queue event")
		return
	}

	Success(w, "Webhook received", nil)
}
