package service

import (
	"context"
	"testing"

	"expertpay/internal/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCancellation(t *testing.T, charges map[int64]bool) (*CancellationService, *LedgerService, *fakeProcessor) {
	t.Helper()
	store := newFakeStore()
	proc := &fakeProcessor{}
	ledger := NewLedgerService(store, proc, nil, zerolog.Nop())
	svc := NewCancellationService(ledger, &fakePolicies{charges: charges}, zerolog.Nop())
	return svc, ledger, proc
}

func TestCancellationFeeCaptured(t *testing.T) {
	svc, ledger, proc := newCancellation(t, map[int64]bool{2: true})
	p := mustCreateWithAmount(t, ledger, 10000)

	outcome, err := svc.Apply(context.Background(), p.IntentID, 20)
	require.NoError(t, err)

	assert.True(t, outcome.FeeCharged)
	assert.Equal(t, int64(2000), outcome.FeeAmount)
	assert.Equal(t, domain.StatusPartiallyCaptured, outcome.Payment.Status)
	assert.Equal(t, 20, outcome.Payment.CancellationFee)
	assert.Equal(t, int64(2000), proc.lastCaptureAmount)
}

func TestCancellationNoFeeExpert(t *testing.T) {
	svc, ledger, proc := newCancellation(t, map[int64]bool{})
	p := mustCreateWithAmount(t, ledger, 10000)

	// supplied percentage is ignored when the expert does not charge
	outcome, err := svc.Apply(context.Background(), p.IntentID, 50)
	require.NoError(t, err)

	assert.False(t, outcome.FeeCharged)
	assert.Equal(t, "no fee charged", outcome.Message)
	assert.Equal(t, domain.StatusAuthorized, outcome.Payment.Status)
	assert.Zero(t, proc.captureCalls)
}

func TestCancellationPercentageRequired(t *testing.T) {
	svc, ledger, _ := newCancellation(t, map[int64]bool{2: true})
	p := mustCreate(t, ledger)

	_, err := svc.Apply(context.Background(), p.IntentID, 0)
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "percentage", ve.Field)
}

func TestCancellationPercentageOutOfRange(t *testing.T) {
	svc, ledger, _ := newCancellation(t, map[int64]bool{2: true})
	p := mustCreate(t, ledger)

	for _, pct := range []int{-5, 101} {
		_, err := svc.Apply(context.Background(), p.IntentID, pct)
		var ve *domain.ValidationError
		require.ErrorAs(t, err, &ve, "pct %d", pct)
	}
}

func TestCancellationUnknownIntent(t *testing.T) {
	svc, _, _ := newCancellation(t, map[int64]bool{2: true})

	_, err := svc.Apply(context.Background(), "pi_missing", 20)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCancellationTinyAmountNoFee(t *testing.T) {
	svc, ledger, proc := newCancellation(t, map[int64]bool{2: true})
	// 1 minor unit at 20% rounds down to zero fee
	p := mustCreateWithAmount(t, ledger, 1)

	outcome, err := svc.Apply(context.Background(), p.IntentID, 20)
	require.NoError(t, err)

	assert.False(t, outcome.FeeCharged)
	assert.Equal(t, domain.StatusAuthorized, outcome.Payment.Status)
	assert.Zero(t, proc.captureCalls)
}
