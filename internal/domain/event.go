package domain

import "time"

// Processor event types delivered over the webhook.
const (
	EventIntentSucceeded         = "payment_intent.succeeded"
	EventIntentFailed            = "payment_intent.payment_failed"
	EventIntentCanceled          = "payment_intent.canceled"
	EventChargeCaptured          = "charge.captured"
	EventChargePartiallyCaptured = "charge.partially_captured"
	EventChargeRefunded          = "charge.refunded"
	EventChargePartiallyRefunded = "charge.partially_refunded"
)

// eventStatus maps processor event types to the ledger status they imply.
// Unmapped event types are dropped by the reconciler.
var eventStatus = map[string]PaymentStatus{
	EventIntentSucceeded:         StatusCaptured,
	EventIntentFailed:            StatusFailed,
	EventIntentCanceled:          StatusCanceled,
	EventChargeCaptured:          StatusCaptured,
	EventChargePartiallyCaptured: StatusPartiallyCaptured,
	EventChargeRefunded:          StatusRefunded,
	EventChargePartiallyRefunded: StatusPartiallyRefunded,
}

// StatusForEvent returns the ledger status a processor event maps to,
// and whether the event type is known.
func StatusForEvent(eventType string) (PaymentStatus, bool) {
	s, ok := eventStatus[eventType]
	return s, ok
}

// ProcessorEvent is one asynchronous notification from the payment
// processor, as parsed from the webhook payload.
type ProcessorEvent struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	IntentID  string    `json:"intent_id"`
	CreatedAt time.Time `json:"created_at"`
}
