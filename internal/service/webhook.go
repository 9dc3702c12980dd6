package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"expertpay/internal/clients"
	"expertpay/internal/domain"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"
)

// WebhookTopic is the in-process queue topic webhook bodies are handed to.
const WebhookTopic = "processor.webhook"

// ErrBadSignature rejects a webhook delivery whose signature does not
// verify. The endpoint fails closed on it.
var ErrBadSignature = errors.New("webhook signature verification failed")

// dedupeTTL bounds how long processed event ids are remembered. The
// processor stops redelivering well before this.
const dedupeTTL = 24 * time.Hour

// DedupeStore remembers which event ids were already reconciled.
type DedupeStore interface {
	Exists(ctx context.Context, key string) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

// WebhookService reconciles asynchronous processor events against the
// ledger. The HTTP endpoint verifies and enqueues; a background worker
// applies the mapped status.
type WebhookService struct {
	store     PaymentStore
	dedupe    DedupeStore
	publisher message.Publisher
	ws        *clients.WebSocketClient
	secret    []byte
	tolerance time.Duration
	log       zerolog.Logger
}

func NewWebhookService(store PaymentStore, dedupe DedupeStore, publisher message.Publisher, ws *clients.WebSocketClient, secret string, log zerolog.Logger) *WebhookService {
	return &WebhookService{
		store:     store,
		dedupe:    dedupe,
		publisher: publisher,
		ws:        ws,
		secret:    []byte(secret),
		tolerance: 5 * time.Minute,
		log:       log.With().Str("component", "webhook").Logger(),
	}
}

// VerifySignature checks the signature header against the raw body. The
// header carries "t=<unix>,v1=<hex>" where the hex value is
// HMAC-SHA256(secret, "<t>.<body>"). Stale timestamps are rejected to blunt
// replay.
func (s *WebhookService) VerifySignature(header string, body []byte, now time.Time) error {
	var ts int64
	var sig []byte

	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			parsed, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return ErrBadSignature
			}
			ts = parsed
		case "v1":
			decoded, err := hex.DecodeString(v)
			if err != nil {
				return ErrBadSignature
			}
			sig = decoded
		}
	}

	if ts == 0 || len(sig) == 0 {
		return ErrBadSignature
	}

	age := now.Sub(time.Unix(ts, 0))
	if age > s.tolerance || age < -s.tolerance {
		return ErrBadSignature
	}

	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte("."))
	mac.Write(body)

	if !hmac.Equal(sig, mac.Sum(nil)) {
		return ErrBadSignature
	}
	return nil
}

// Enqueue hands a verified webhook body to the background queue so the HTTP
// response is not tied to downstream processing latency.
func (s *WebhookService) Enqueue(ctx context.Context, body []byte) error {
	return s.publisher.Publish(WebhookTopic, message.NewMessage(watermill.NewUUID(), body))
}

// HandleMessage is the queue worker. Malformed payloads, unknown intents and
// unmapped event types are logged and dropped (acked); the processor's own
// retries must not spin on them. Only infrastructure failures are returned
// for redelivery.
func (s *WebhookService) HandleMessage(msg *message.Message) error {
	ctx := msg.Context()

	var event domain.ProcessorEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		s.log.Warn().Err(err).Msg("dropping malformed webhook payload")
		return nil
	}
	if event.Type == "" || event.IntentID == "" {
		s.log.Warn().Str("event_id", event.ID).Msg("dropping webhook event without type or intent id")
		return nil
	}

	seen, err := s.seenEvent(ctx, event.ID)
	if err != nil {
		// Treat the event as fresh: re-applying is last-write-wins anyway.
		s.log.Warn().Err(err).Str("event_id", event.ID).Msg("dedupe lookup failed")
	}
	if seen {
		s.log.Debug().Str("event_id", event.ID).Msg("duplicate webhook event skipped")
		return nil
	}

	target, ok := domain.StatusForEvent(event.Type)
	if !ok {
		s.log.Info().
			Str("event_type", event.Type).
			Str("intent_id", event.IntentID).
			Msg("unmapped webhook event dropped")
		return nil
	}

	p, err := s.store.ApplyEventStatus(ctx, event.IntentID, target, "webhook:"+event.Type)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.log.Warn().
				Str("intent_id", event.IntentID).
				Str("event_type", event.Type).
				Msg("webhook event for unknown intent dropped")
			return nil
		}
		return fmt.Errorf("apply webhook status: %w", err)
	}

	s.rememberEvent(ctx, event.ID)

	if s.ws != nil {
		_ = s.ws.NotifyPaymentStatus(ctx, p)
	}

	s.log.Info().
		Str("intent_id", event.IntentID).
		Str("event_type", event.Type).
		Str("status", string(p.Status)).
		Msg("webhook event reconciled")
	return nil
}

// seenEvent reports whether the event id was already reconciled. Without a
// dedupe store every delivery counts as fresh, which is safe because status
// application is last-write-wins.
func (s *WebhookService) seenEvent(ctx context.Context, eventID string) (bool, error) {
	if s.dedupe == nil || eventID == "" {
		return false, nil
	}
	return s.dedupe.Exists(ctx, "webhook_event:"+eventID)
}

// rememberEvent records the event id once its status change is committed.
// Recording only after a successful apply means a failed apply leaves the
// event unmarked for redelivery; replaying an already applied event is a
// last-write-wins no-op.
func (s *WebhookService) rememberEvent(ctx context.Context, eventID string) {
	if s.dedupe == nil || eventID == "" {
		return
	}
	if err := s.dedupe.Set(ctx, "webhook_event:"+eventID, "1", dedupeTTL); err != nil {
		s.log.Warn().Err(err).Str("event_id", eventID).Msg("failed to record processed event")
	}
}
