package service

import (
	"context"
	"testing"

	"expertpay/internal/domain"
	"expertpay/internal/processor"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLedger(t *testing.T) (*LedgerService, *fakeStore, *fakeProcessor) {
	t.Helper()
	store := newFakeStore()
	proc := &fakeProcessor{}
	svc := NewLedgerService(store, proc, nil, zerolog.Nop())
	return svc, store, proc
}

func TestCreateAuthorizesPayment(t *testing.T) {
	svc, store, _ := newLedger(t)

	p, err := svc.Create(context.Background(), CreatePaymentParams{
		CustomerID:    1,
		ExpertID:      2,
		Amount:        5000,
		Currency:      "usd",
		PaymentMethod: "pm_card",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusAuthorized, p.Status)
	assert.Equal(t, int64(5000), p.Amount)
	assert.Equal(t, "pi_1", p.IntentID)

	stored, err := store.GetByIntentID(context.Background(), "pi_1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAuthorized, stored.Status)
}

func TestCreateRejectsNonPositiveAmount(t *testing.T) {
	svc, store, proc := newLedger(t)

	for _, amount := range []int64{0, -100} {
		_, err := svc.Create(context.Background(), CreatePaymentParams{
			CustomerID:    1,
			ExpertID:      2,
			Amount:        amount,
			Currency:      "usd",
			PaymentMethod: "pm_card",
		})

		var ve *domain.ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "amount", ve.Field)
	}

	assert.Zero(t, proc.authorizeCalls, "rejected amounts must never reach the processor")
	assert.Empty(t, store.byID, "no payment persisted for invalid input")
}

func TestCreateMarksFailedWhenAuthorizeRejected(t *testing.T) {
	svc, store, proc := newLedger(t)
	proc.authorizeErr = &processor.Error{Kind: processor.KindCardError, Message: "card declined"}

	_, err := svc.Create(context.Background(), CreatePaymentParams{
		CustomerID:    1,
		ExpertID:      2,
		Amount:        5000,
		Currency:      "usd",
		PaymentMethod: "pm_card",
	})

	var pe *processor.Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, processor.KindCardError, pe.Kind)

	// pending row was kept and resolved to failed, never silently dropped
	require.Len(t, store.byID, 1)
	for _, p := range store.byID {
		assert.Equal(t, domain.StatusFailed, p.Status)
	}
}

func TestCaptureThenReleaseConflicts(t *testing.T) {
	svc, _, _ := newLedger(t)
	p := mustCreate(t, svc)

	captured, err := svc.Capture(context.Background(), p.IntentID, 0)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCaptured, captured.Status)

	_, err = svc.Release(context.Background(), p.IntentID)
	var ise *domain.InvalidStateError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, domain.StatusCaptured, ise.From)
}

func TestReleaseThenCaptureConflicts(t *testing.T) {
	svc, _, proc := newLedger(t)
	p := mustCreate(t, svc)

	released, err := svc.Release(context.Background(), p.IntentID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCanceled, released.Status)
	assert.Equal(t, 1, proc.cancelCalls)

	_, err = svc.Capture(context.Background(), p.IntentID, 0)
	var ise *domain.InvalidStateError
	require.ErrorAs(t, err, &ise)
}

func TestReleaseIsIdempotentOnCanceled(t *testing.T) {
	svc, _, proc := newLedger(t)
	p := mustCreate(t, svc)

	_, err := svc.Release(context.Background(), p.IntentID)
	require.NoError(t, err)

	again, err := svc.Release(context.Background(), p.IntentID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCanceled, again.Status)
	assert.Equal(t, 1, proc.cancelCalls, "repeat release must not hit the processor again")
}

func TestPartialCaptureRecordsFee(t *testing.T) {
	svc, _, proc := newLedger(t)
	p := mustCreateWithAmount(t, svc, 10000)

	captured, err := svc.Capture(context.Background(), p.IntentID, 20)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusPartiallyCaptured, captured.Status)
	assert.Equal(t, 20, captured.CancellationFee)
	assert.Equal(t, int64(2000), proc.lastCaptureAmount)
}

func TestRefundFullAndPartial(t *testing.T) {
	svc, _, _ := newLedger(t)

	t.Run("full", func(t *testing.T) {
		p := mustCreateWithAmount(t, svc, 10000)
		_, err := svc.Capture(context.Background(), p.IntentID, 0)
		require.NoError(t, err)

		refunded, err := svc.Refund(context.Background(), p.IntentID, 0)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusRefunded, refunded.Status)
	})

	t.Run("partial", func(t *testing.T) {
		p := mustCreateWithAmount(t, svc, 10000)
		_, err := svc.Capture(context.Background(), p.IntentID, 0)
		require.NoError(t, err)

		refunded, err := svc.Refund(context.Background(), p.IntentID, 4000)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusPartiallyRefunded, refunded.Status)
	})

	t.Run("exceeds captured amount", func(t *testing.T) {
		p := mustCreateWithAmount(t, svc, 10000)
		_, err := svc.Capture(context.Background(), p.IntentID, 0)
		require.NoError(t, err)

		_, err = svc.Refund(context.Background(), p.IntentID, 10001)
		var ve *domain.ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "amount", ve.Field)
	})
}

func TestRefundOnAuthorizedConflicts(t *testing.T) {
	svc, _, _ := newLedger(t)
	p := mustCreate(t, svc)

	_, err := svc.Refund(context.Background(), p.IntentID, 0)
	var ise *domain.InvalidStateError
	require.ErrorAs(t, err, &ise)
}

func TestRefundAfterPartialCaptureBoundedByFee(t *testing.T) {
	svc, _, proc := newLedger(t)
	p := mustCreateWithAmount(t, svc, 10000)

	_, err := svc.Capture(context.Background(), p.IntentID, 20)
	require.NoError(t, err)

	// only the captured 2000 is refundable
	_, err = svc.Refund(context.Background(), p.IntentID, 2500)
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)

	refunded, err := svc.Refund(context.Background(), p.IntentID, 2000)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRefunded, refunded.Status)
	assert.Equal(t, int64(2000), proc.lastRefundAmount)
}

func TestUnknownIntentReturnsNotFound(t *testing.T) {
	svc, _, _ := newLedger(t)

	_, err := svc.Get(context.Background(), "pi_missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.Capture(context.Background(), "pi_missing", 0)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.Release(context.Background(), "pi_missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.Refund(context.Background(), "pi_missing", 0)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestProcessorFailureLeavesStatusUntouched(t *testing.T) {
	svc, store, proc := newLedger(t)
	p := mustCreate(t, svc)
	proc.captureErr = &processor.Error{Kind: processor.KindTransient, Message: "timeout"}

	_, err := svc.Capture(context.Background(), p.IntentID, 0)
	var pe *processor.Error
	require.ErrorAs(t, err, &pe)

	stored, err := store.GetByIntentID(context.Background(), p.IntentID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAuthorized, stored.Status)
}

func TestTransitionAuditTrail(t *testing.T) {
	svc, store, _ := newLedger(t)
	p := mustCreate(t, svc)

	_, err := svc.Capture(context.Background(), p.IntentID, 0)
	require.NoError(t, err)

	var moves []string
	for _, tr := range store.audit {
		moves = append(moves, string(tr.FromStatus)+">"+string(tr.ToStatus))
	}
	assert.Equal(t, []string{"pending>authorized", "authorized>captured"}, moves)
}

func mustCreate(t *testing.T, svc *LedgerService) *domain.Payment {
	t.Helper()
	return mustCreateWithAmount(t, svc, 5000)
}

func mustCreateWithAmount(t *testing.T, svc *LedgerService, amount int64) *domain.Payment {
	t.Helper()
	p, err := svc.Create(context.Background(), CreatePaymentParams{
		CustomerID:    1,
		ExpertID:      2,
		Amount:        amount,
		Currency:      "usd",
		PaymentMethod: "pm_card",
	})
	require.NoError(t, err)
	return p
}
