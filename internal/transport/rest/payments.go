package rest

import (
	"encoding/json"
	"net/http"
	"time"

	"expertpay/internal/domain"
	"expertpay/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// CreatePaymentRequest places a new booking intent.
type CreatePaymentRequest struct {
	CustomerID    int64  `json:"customer_id" validate:"required,gt=0"`
	ExpertID      int64  `json:"expert_id" validate:"required,gt=0"`
	Amount        int64  `json:"amount" validate:"required,gt=0"`
	Currency      string `json:"currency" validate:"required,len=3"`
	PaymentMethod string `json:"payment_method" validate:"required"`
}

// CaptureRequest finalizes a held charge; a zero percentage means full
// capture.
type CaptureRequest struct {
	Percentage int `json:"percentage" validate:"gte=0,lte=100"`
}

// RefundRequest reverses a captured charge; a zero amount means full refund.
type RefundRequest struct {
	Amount int64 `json:"amount" validate:"gte=0"`
}

// CancellationFeeRequest applies the late-cancellation fee policy.
type CancellationFeeRequest struct {
	Percentage int `json:"percentage" validate:"gte=0,lte=100"`
}

// PaymentResponse is the ledger view returned by every mutation.
type PaymentResponse struct {
	IntentID        string    `json:"intent_id"`
	CustomerID      int64     `json:"customer_id"`
	ExpertID        int64     `json:"expert_id"`
	Amount          int64     `json:"amount"`
	Currency        string    `json:"currency"`
	Status          string    `json:"status"`
	CancellationFee int       `json:"cancellation_fee"`
	CreatedAt       time.Time `json:"created_at"`
}

func toPaymentResponse(p *domain.Payment) PaymentResponse {
	return PaymentResponse{
		IntentID:        p.IntentID,
		CustomerID:      p.CustomerID,
		ExpertID:        p.ExpertID,
		Amount:          p.Amount,
		Currency:        p.Currency,
		Status:          string(p.Status),
		CancellationFee: p.CancellationFee,
		CreatedAt:       p.CreatedAt,
	}
}

func decodeAndValidate(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return &domain.ValidationError{Message: "invalid JSON body"}
	}
	if err := validate.Struct(dst); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
			f := errs[0]
			return &domain.ValidationError{Field: f.Field(), Message: "failed validation on " + f.Tag()}
		}
		return &domain.ValidationError{Message: err.Error()}
	}
	return nil
}

func (h *Handler) createPayment(w http.ResponseWriter, r *http.Request) {
	var req CreatePaymentRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}

	p, err := h.ledger.Create(r.Context(), service.CreatePaymentParams{
		CustomerID:    req.CustomerID,
		ExpertID:      req.ExpertID,
		Amount:        req.Amount,
		Currency:      req.Currency,
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	SuccessCreated(w, "payment authorized", toPaymentResponse(p))
}

func (h *Handler) getPayment(w http.ResponseWriter, r *http.Request) {
	intentID := chi.URLParam(r, "intent_id")
	if intentID == "" {
		ErrorBadRequest(w, "intent_id is required")
		return
	}

	p, err := h.ledger.Get(r.Context(), intentID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	Success(w, "", toPaymentResponse(p))
}

func (h *Handler) capturePayment(w http.ResponseWriter, r *http.Request) {
	intentID := chi.URLParam(r, "intent_id")

	var req CaptureRequest
	if r.ContentLength > 0 {
		if err := decodeAndValidate(r, &req); err != nil {
			writeDomainError(w, err)
			return
		}
	}

	p, err := h.ledger.Capture(r.Context(), intentID, req.Percentage)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	Success(w, "payment captured", toPaymentResponse(p))
}

func (h *Handler) releasePayment(w http.ResponseWriter, r *http.Request) {
	intentID := chi.URLParam(r, "intent_id")

	p, err := h.ledger.Release(r.Context(), intentID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	Success(w, "authorization released", toPaymentResponse(p))
}

func (h *Handler) refundPayment(w http.ResponseWriter, r *http.Request) {
	intentID := chi.URLParam(r, "intent_id")

	var req RefundRequest
	if r.ContentLength > 0 {
		if err := decodeAndValidate(r, &req); err != nil {
			writeDomainError(w, err)
			return
		}
	}

	p, err := h.ledger.Refund(r.Context(), intentID, req.Amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	Success(w, "payment refunded", toPaymentResponse(p))
}

func (h *Handler) applyCancellationFee(w http.ResponseWriter, r *http.Request) {
	intentID := chi.URLParam(r, "intent_id")

	var req CancellationFeeRequest
	if r.ContentLength > 0 {
		if err := decodeAndValidate(r, &req); err != nil {
			writeDomainError(w, err)
			return
		}
	}

	outcome, err := h.cancellation.Apply(r.Context(), intentID, req.Percentage)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	Success(w, outcome.Message, map[string]interface{}{
		"fee_charged": outcome.FeeCharged,
		"fee_amount":  outcome.FeeAmount,
		"payment":     toPaymentResponse(outcome.Payment),
	})
}
