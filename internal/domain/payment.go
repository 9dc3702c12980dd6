package domain

import "time"

// PaymentStatus is the current position of a payment in the
// authorization/settlement lifecycle.
type PaymentStatus string

const (
	// StatusPending is the local record before the processor authorize call
	// has completed. Persisting it first means a failed authorize can never
	// leave a remote hold with no local trace.
	StatusPending PaymentStatus = "pending"

	StatusAuthorized        PaymentStatus = "authorized"
	StatusCaptured          PaymentStatus = "captured"
	StatusPartiallyCaptured PaymentStatus = "partially_captured"
	StatusCanceled          PaymentStatus = "canceled"
	StatusRefunded          PaymentStatus = "refunded"
	StatusPartiallyRefunded PaymentStatus = "partially_refunded"
	StatusFailed            PaymentStatus = "failed"
)

// allowedTransitions maps a status to the statuses it may move to.
// Terminal statuses map to an empty set.
var allowedTransitions = map[PaymentStatus][]PaymentStatus{
	StatusPending: {
		StatusAuthorized,
		StatusFailed,
	},
	StatusAuthorized: {
		StatusCaptured,
		StatusPartiallyCaptured,
		StatusCanceled,
		StatusFailed,
	},
	StatusCaptured: {
		StatusRefunded,
		StatusPartiallyRefunded,
	},
	StatusPartiallyCaptured: {
		StatusRefunded,
		StatusPartiallyRefunded,
	},
	StatusPartiallyRefunded: {
		StatusRefunded,
		StatusPartiallyRefunded,
	},
	StatusCanceled: {},
	StatusRefunded: {},
	StatusFailed:   {},
}

// CanTransition reports whether a payment may move from one status to another.
func CanTransition(from, to PaymentStatus) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns an InvalidStateError when the move is not in the
// transition table.
func ValidateTransition(from, to PaymentStatus) error {
	if !CanTransition(from, to) {
		return &InvalidStateError{From: from, To: to}
	}
	return nil
}

// IsTerminal reports whether no further transition is permitted.
func (s PaymentStatus) IsTerminal() bool {
	return len(allowedTransitions[s]) == 0
}

// Valid reports whether s is a known status value.
func (s PaymentStatus) Valid() bool {
	_, ok := allowedTransitions[s]
	return ok
}

// Payment is one authorization/settlement record per booking intent.
// Amount is in minor currency units. Rows are never deleted.
type Payment struct {
	ID              string
	IntentID        string
	CustomerID      int64
	ExpertID        int64
	Amount          int64
	Currency        string
	Status          PaymentStatus
	CancellationFee int // percentage 0-100, 0 when unused

	CreatedAt time.Time
	UpdatedAt time.Time
}

// CapturedAmount is the portion of the authorization that was actually
// charged: the full amount, or the cancellation-fee share after a partial
// capture. Refunds are validated against this, not the authorized amount.
func (p *Payment) CapturedAmount() int64 {
	if p.CancellationFee > 0 {
		return p.Amount * int64(p.CancellationFee) / 100
	}
	return p.Amount
}

// Transition is one row of the append-only status audit log.
type Transition struct {
	ID         int64
	PaymentID  string
	FromStatus PaymentStatus
	ToStatus   PaymentStatus
	Trigger    string // "api" or "webhook:<event_type>"
	CreatedAt  time.Time
}
