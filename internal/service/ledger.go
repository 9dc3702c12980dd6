package service

import (
	"context"
	"errors"
	"fmt"

	"expertpay/internal/clients"
	"expertpay/internal/domain"
	"expertpay/internal/processor"
	"expertpay/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// PaymentStore is the slice of the payment repository the ledger needs.
type PaymentStore interface {
	Create(ctx context.Context, p *domain.Payment) error
	SetAuthorized(ctx context.Context, paymentID, intentID string) error
	SetFailed(ctx context.Context, paymentID string) error
	GetByIntentID(ctx context.Context, intentID string) (*domain.Payment, error)
	Transition(ctx context.Context, intentID, trigger string, decide func(p *domain.Payment) error) (*domain.Payment, error)
	ApplyEventStatus(ctx context.Context, intentID string, to domain.PaymentStatus, trigger string) (*domain.Payment, error)
}

// CreatePaymentParams describes a new booking intent to authorize.
type CreatePaymentParams struct {
	CustomerID    int64
	ExpertID      int64
	Amount        int64
	Currency      string
	PaymentMethod string
}

// LedgerService owns the payment entity and enforces the legal
// status-transition table around processor calls.
type LedgerService struct {
	store PaymentStore
	proc  processor.Client
	ws    *clients.WebSocketClient
	log   zerolog.Logger
}

func NewLedgerService(store PaymentStore, proc processor.Client, ws *clients.WebSocketClient, log zerolog.Logger) *LedgerService {
	return &LedgerService{
		store: store,
		proc:  proc,
		ws:    ws,
		log:   log.With().Str("component", "ledger").Logger(),
	}
}

// Create validates the booking intent, persists a pending row, then asks the
// processor to hold the charge. The pending-first order means a crash or
// persistence failure between the two steps always leaves a local trace of
// the remote authorization.
func (s *LedgerService) Create(ctx context.Context, params CreatePaymentParams) (*domain.Payment, error) {
	if params.Amount <= 0 {
		return nil, &domain.ValidationError{Field: "amount", Message: "must be greater than zero"}
	}
	if params.Currency == "" {
		return nil, &domain.ValidationError{Field: "currency", Message: "is required"}
	}
	if params.PaymentMethod == "" {
		return nil, &domain.ValidationError{Field: "payment_method", Message: "is required"}
	}

	p := &domain.Payment{
		ID:         uuid.NewString(),
		CustomerID: params.CustomerID,
		ExpertID:   params.ExpertID,
		Amount:     params.Amount,
		Currency:   params.Currency,
		Status:     domain.StatusPending,
	}
	if err := s.store.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("persist pending payment: %w", err)
	}

	auth, err := s.proc.Authorize(ctx, processor.AuthorizeParams{
		Amount:        params.Amount,
		Currency:      params.Currency,
		PaymentMethod: params.PaymentMethod,
	})
	if err != nil {
		if ferr := s.store.SetFailed(ctx, p.ID); ferr != nil {
			s.log.Error().Err(ferr).Str("payment_id", p.ID).Msg("failed to mark rejected payment")
		}
		return nil, err
	}

	if err := s.store.SetAuthorized(ctx, p.ID, auth.IntentID); err != nil {
		// The hold exists remotely but the local row is still pending; the
		// processor's webhook delivery will reconcile it.
		s.log.Error().Err(err).
			Str("payment_id", p.ID).
			Str("intent_id", auth.IntentID).
			Msg("authorization persisted remotely but not locally")
		return nil, fmt.Errorf("persist authorization: %w", err)
	}

	p.IntentID = auth.IntentID
	p.Status = domain.StatusAuthorized
	s.notify(ctx, p)

	s.log.Info().
		Str("intent_id", p.IntentID).
		Int64("amount", p.Amount).
		Msg("payment authorized")
	return p, nil
}

// Get loads a payment by intent id.
func (s *LedgerService) Get(ctx context.Context, intentID string) (*domain.Payment, error) {
	return s.store.GetByIntentID(ctx, intentID)
}

// Capture finalizes the held charge. A partialPercentage of 0 captures the
// full amount; 1-100 captures that share and records it as the cancellation
// fee. Re-requesting a full capture on an already captured payment returns
// the current state.
func (s *LedgerService) Capture(ctx context.Context, intentID string, partialPercentage int) (*domain.Payment, error) {
	if partialPercentage < 0 || partialPercentage > 100 {
		return nil, &domain.ValidationError{Field: "percentage", Message: "must be between 1 and 100"}
	}

	target := domain.StatusCaptured
	if partialPercentage > 0 {
		target = domain.StatusPartiallyCaptured
	}

	return s.transition(ctx, intentID, target, func(p *domain.Payment) error {
		var partialAmount int64
		if partialPercentage > 0 {
			partialAmount = p.Amount * int64(partialPercentage) / 100
		}
		if err := s.proc.Capture(ctx, intentID, partialAmount); err != nil {
			return err
		}
		p.Status = target
		if partialPercentage > 0 {
			p.CancellationFee = partialPercentage
		}
		return nil
	})
}

// Release cancels the hold on an uncaptured authorization. Releasing an
// already canceled payment is a no-op that reports the current state.
func (s *LedgerService) Release(ctx context.Context, intentID string) (*domain.Payment, error) {
	return s.transition(ctx, intentID, domain.StatusCanceled, func(p *domain.Payment) error {
		if err := s.proc.Cancel(ctx, intentID); err != nil {
			return err
		}
		p.Status = domain.StatusCanceled
		return nil
	})
}

// Refund reverses a captured charge. An amount of 0 refunds the full
// captured amount; anything less is a partial refund. Amounts above the
// captured portion fail validation.
func (s *LedgerService) Refund(ctx context.Context, intentID string, amount int64) (*domain.Payment, error) {
	if amount < 0 {
		return nil, &domain.ValidationError{Field: "amount", Message: "must not be negative"}
	}

	updated, err := s.store.Transition(ctx, intentID, "api", func(p *domain.Payment) error {
		captured := p.CapturedAmount()
		if amount > captured {
			return &domain.ValidationError{Field: "amount", Message: "exceeds the captured amount"}
		}

		target := domain.StatusPartiallyRefunded
		if amount == 0 || amount == captured {
			target = domain.StatusRefunded
		}
		if p.Status == domain.StatusRefunded && target == domain.StatusRefunded {
			return repository.ErrUnchanged
		}
		if err := domain.ValidateTransition(p.Status, target); err != nil {
			return err
		}

		if _, err := s.proc.Refund(ctx, intentID, amount); err != nil {
			return err
		}
		p.Status = target
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, updated)
	return updated, nil
}

// transition runs a mutation whose target status is fixed up front: a
// repeat request against the target state reports the current state, a
// request from any other illegal state fails InvalidState, and the
// processor call happens under the same row lock as the status write so a
// racing webhook cannot interleave.
func (s *LedgerService) transition(ctx context.Context, intentID string, target domain.PaymentStatus, apply func(p *domain.Payment) error) (*domain.Payment, error) {
	updated, err := s.store.Transition(ctx, intentID, "api", func(p *domain.Payment) error {
		if p.Status == target {
			return repository.ErrUnchanged
		}
		if err := domain.ValidateTransition(p.Status, target); err != nil {
			return err
		}
		return apply(p)
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, updated)
	return updated, nil
}

func (s *LedgerService) notify(ctx context.Context, p *domain.Payment) {
	if s.ws == nil {
		return
	}
	if err := s.ws.NotifyPaymentStatus(ctx, p); err != nil {
		s.log.Warn().Err(err).Str("intent_id", p.IntentID).Msg("status notification failed")
	}
}

// IsInvalidState reports whether err is a transition-table violation.
func IsInvalidState(err error) bool {
	var ise *domain.InvalidStateError
	return errors.As(err, &ise)
}
