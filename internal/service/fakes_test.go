package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"expertpay/internal/domain"
	"expertpay/internal/processor"
	"expertpay/internal/repository"
)

// fakeStore is an in-memory PaymentStore with the same transition contract
// as the Postgres repository.
type fakeStore struct {
	mu       sync.Mutex
	byID     map[string]*domain.Payment
	byIntent map[string]string // intent id -> payment id
	audit    []domain.Transition

	failNext error // next Transition fails with this, then clears
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		byID:     make(map[string]*domain.Payment),
		byIntent: make(map[string]string),
	}
}

func (s *fakeStore) Create(ctx context.Context, p *domain.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	cp := *p
	s.byID[p.ID] = &cp
	if p.IntentID != "" {
		s.byIntent[p.IntentID] = p.ID
	}
	return nil
}

func (s *fakeStore) SetAuthorized(ctx context.Context, paymentID, intentID string) error {
	return s.resolvePending(paymentID, intentID, domain.StatusAuthorized)
}

func (s *fakeStore) SetFailed(ctx context.Context, paymentID string) error {
	return s.resolvePending(paymentID, "", domain.StatusFailed)
}

func (s *fakeStore) resolvePending(paymentID, intentID string, to domain.PaymentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byID[paymentID]
	if !ok || p.Status != domain.StatusPending {
		return domain.ErrNotFound
	}
	if intentID != "" {
		p.IntentID = intentID
		s.byIntent[intentID] = paymentID
	}
	s.record(p.ID, p.Status, to, "api")
	p.Status = to
	return nil
}

func (s *fakeStore) GetByIntentID(ctx context.Context, intentID string) (*domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byIntent[intentID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s.byID[id]
	return &cp, nil
}

func (s *fakeStore) Transition(ctx context.Context, intentID, trigger string, decide func(p *domain.Payment) error) (*domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failNext != nil {
		err := s.failNext
		s.failNext = nil
		return nil, err
	}

	id, ok := s.byIntent[intentID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	p := s.byID[id]

	cp := *p
	from := cp.Status
	if err := decide(&cp); err != nil {
		if err == repository.ErrUnchanged {
			out := *p
			return &out, nil
		}
		return nil, err
	}

	cp.UpdatedAt = time.Now().UTC()
	*p = cp
	if from != p.Status {
		s.record(p.ID, from, p.Status, trigger)
	}
	out := *p
	return &out, nil
}

func (s *fakeStore) ApplyEventStatus(ctx context.Context, intentID string, to domain.PaymentStatus, trigger string) (*domain.Payment, error) {
	return s.Transition(ctx, intentID, trigger, func(p *domain.Payment) error {
		p.Status = to
		return nil
	})
}

func (s *fakeStore) record(paymentID string, from, to domain.PaymentStatus, trigger string) {
	s.audit = append(s.audit, domain.Transition{
		ID:         int64(len(s.audit) + 1),
		PaymentID:  paymentID,
		FromStatus: from,
		ToStatus:   to,
		Trigger:    trigger,
		CreatedAt:  time.Now().UTC(),
	})
}

// seed installs a payment directly, bypassing the create flow.
func (s *fakeStore) seed(p domain.Payment) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := p
	s.byID[p.ID] = &cp
	if p.IntentID != "" {
		s.byIntent[p.IntentID] = p.ID
	}
}

// fakeDedupe is an in-memory DedupeStore.
type fakeDedupe struct {
	mu   sync.Mutex
	keys map[string]bool
}

func newFakeDedupe() *fakeDedupe {
	return &fakeDedupe{keys: make(map[string]bool)}
}

func (f *fakeDedupe) Exists(ctx context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.keys[key], nil
}

func (f *fakeDedupe) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys[key] = true
	return nil
}

// fakeProcessor records calls and fails on demand.
type fakeProcessor struct {
	mu sync.Mutex

	authorizeErr error
	captureErr   error
	cancelErr    error
	refundErr    error

	nextIntent int

	authorizeCalls int
	captureCalls   int
	cancelCalls    int
	refundCalls    int

	lastCaptureAmount int64
	lastRefundAmount  int64
}

func (f *fakeProcessor) Authorize(ctx context.Context, p processor.AuthorizeParams) (*processor.Authorization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.authorizeCalls++
	if f.authorizeErr != nil {
		return nil, f.authorizeErr
	}
	f.nextIntent++
	return &processor.Authorization{
		IntentID:     fmt.Sprintf("pi_%d", f.nextIntent),
		ClientSecret: fmt.Sprintf("secret_%d", f.nextIntent),
	}, nil
}

func (f *fakeProcessor) Capture(ctx context.Context, intentID string, partialAmount int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.captureCalls++
	f.lastCaptureAmount = partialAmount
	return f.captureErr
}

func (f *fakeProcessor) Cancel(ctx context.Context, intentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.cancelCalls++
	return f.cancelErr
}

func (f *fakeProcessor) Refund(ctx context.Context, intentID string, partialAmount int64) (*processor.Refund, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.refundCalls++
	f.lastRefundAmount = partialAmount
	if f.refundErr != nil {
		return nil, f.refundErr
	}
	return &processor.Refund{RefundID: "re_1"}, nil
}

// fakePolicies is a static ExpertPolicySource.
type fakePolicies struct {
	charges map[int64]bool
}

func (f *fakePolicies) Policy(ctx context.Context, expertID int64) (*domain.ExpertPolicy, error) {
	return &domain.ExpertPolicy{
		ExpertID:            expertID,
		ChargesCancellation: f.charges[expertID],
	}, nil
}
