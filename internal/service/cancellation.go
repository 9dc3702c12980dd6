package service

import (
	"context"

	"expertpay/internal/domain"

	"github.com/rs/zerolog"
)

// ExpertPolicySource looks up whether an expert charges a late-cancellation
// fee. Expert profiles live outside this service.
type ExpertPolicySource interface {
	Policy(ctx context.Context, expertID int64) (*domain.ExpertPolicy, error)
}

// Ledger is the slice of the payment ledger the cancellation policy drives.
type Ledger interface {
	Get(ctx context.Context, intentID string) (*domain.Payment, error)
	Capture(ctx context.Context, intentID string, partialPercentage int) (*domain.Payment, error)
}

// CancellationOutcome reports what the policy decided for a cancelled
// booking.
type CancellationOutcome struct {
	FeeCharged bool
	FeeAmount  int64
	Message    string
	Payment    *domain.Payment
}

// CancellationService decides, at booking-cancellation time, whether and how
// much of the held authorization to capture as a fee. It is a pure decision
// over the payment and the expert's policy.
type CancellationService struct {
	ledger  Ledger
	experts ExpertPolicySource
	log     zerolog.Logger
}

func NewCancellationService(ledger Ledger, experts ExpertPolicySource, log zerolog.Logger) *CancellationService {
	return &CancellationService{
		ledger:  ledger,
		experts: experts,
		log:     log.With().Str("component", "cancellation").Logger(),
	}
}

// Apply runs the fee policy for a cancelled booking. percentage is the
// requested fee share; 0 means none was supplied. When the expert does not
// charge, the payment stays authorized regardless of the supplied
// percentage.
func (s *CancellationService) Apply(ctx context.Context, intentID string, percentage int) (*CancellationOutcome, error) {
	p, err := s.ledger.Get(ctx, intentID)
	if err != nil {
		return nil, err
	}

	policy, err := s.experts.Policy(ctx, p.ExpertID)
	if err != nil {
		return nil, err
	}

	if !policy.ChargesCancellation {
		return &CancellationOutcome{
			FeeCharged: false,
			Message:    "no fee charged",
			Payment:    p,
		}, nil
	}

	if percentage == 0 {
		return nil, &domain.ValidationError{Field: "percentage", Message: "percentage required"}
	}
	if percentage < 0 || percentage > 100 {
		return nil, &domain.ValidationError{Field: "percentage", Message: "must be between 1 and 100"}
	}

	feeAmount := p.Amount * int64(percentage) / 100
	if feeAmount <= 0 {
		return &CancellationOutcome{
			FeeCharged: false,
			Message:    "no fee charged",
			Payment:    p,
		}, nil
	}

	updated, err := s.ledger.Capture(ctx, intentID, percentage)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("intent_id", intentID).
		Int("percentage", percentage).
		Int64("fee_amount", feeAmount).
		Msg("cancellation fee captured")

	return &CancellationOutcome{
		FeeCharged: true,
		FeeAmount:  feeAmount,
		Message:    "cancellation fee charged",
		Payment:    updated,
	}, nil
}
