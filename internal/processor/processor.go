package processor

import (
	"context"
	"fmt"
)

// ErrorKind classifies a processor-side rejection. Only rate_limited and
// transient kinds may be retried.
type ErrorKind string

const (
	KindCardError      ErrorKind = "card_error"
	KindInvalidRequest ErrorKind = "invalid_request"
	KindAuthError      ErrorKind = "auth_error"
	KindRateLimited    ErrorKind = "rate_limited"
	KindTransient      ErrorKind = "transient"
)

// Error is a typed processor failure. Callers branch on Kind instead of
// inspecting vendor exception hierarchies.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("processor %s (%s): %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("processor %s: %s", e.Kind, e.Message)
}

// Retryable reports whether the failure may be retried with backoff.
func (e *Error) Retryable() bool {
	return e.Kind == KindRateLimited || e.Kind == KindTransient
}

// AuthorizeParams describes a new held charge.
type AuthorizeParams struct {
	Amount        int64
	Currency      string
	PaymentMethod string
}

// Authorization is the processor's handle on a held charge.
type Authorization struct {
	IntentID     string
	ClientSecret string
}

// Refund identifies a processor-side reversal.
type Refund struct {
	RefundID string
}

// Client is the boundary to the external payment processor. Implementations
// must be safe for concurrent use. A partialAmount of 0 means the full
// amount.
type Client interface {
	Authorize(ctx context.Context, p AuthorizeParams) (*Authorization, error)
	Capture(ctx context.Context, intentID string, partialAmount int64) error
	Cancel(ctx context.Context, intentID string) error
	Refund(ctx context.Context, intentID string, partialAmount int64) (*Refund, error)
}
