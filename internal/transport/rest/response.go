package rest

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"expertpay/internal/domain"
	"expertpay/internal/processor"
)

type APIResponse struct {
	ErrorCode int         `json:"error_code"`
	Status    string      `json:"status"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data"`
}

func Response(w http.ResponseWriter, message string, data interface{}, errorCode int, status string, httpStatus int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)

	response := APIResponse{
		ErrorCode: errorCode,
		Status:    status,
		Message:   message,
		Data:      data,
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Printf("[HTTP] write response error: %v", err)
	}
}

func Success(w http.ResponseWriter, message string, data interface{}) {
	Response(w, message, data, 0, "success", http.StatusOK)
}

func SuccessCreated(w http.ResponseWriter, message string, data interface{}) {
	Response(w, message, data, 0, "success", http.StatusCreated)
}

func SuccessAccepted(w http.ResponseWriter, message string, data interface{}) {
	Response(w, message, data, 0, "success", http.StatusAccepted)
}

func Error(w http.ResponseWriter, message string, errorCode int, httpStatus int) {
	Response(w, message, nil, errorCode, "error", httpStatus)
}

func ErrorBadRequest(w http.ResponseWriter, message string) {
	Error(w, message, 400, http.StatusBadRequest)
}

func ErrorUnauthorized(w http.ResponseWriter, message string) {
	Error(w, message, 401, http.StatusUnauthorized)
}

func ErrorNotFound(w http.ResponseWriter, message string) {
	Error(w, message, 404, http.StatusNotFound)
}

func ErrorConflict(w http.ResponseWriter, message string) {
	Error(w, message, 409, http.StatusConflict)
}

func ErrorInternal(w http.ResponseWriter, message string) {
	Error(w, message, 500, http.StatusInternalServerError)
}

// writeDomainError maps typed ledger/processor failures onto the response
// envelope. Validation and state errors are caller mistakes; processor
// failures distinguish card declines from processor-side trouble.
func writeDomainError(w http.ResponseWriter, err error) {
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		ErrorBadRequest(w, ve.Error())
		return
	}

	if errors.Is(err, domain.ErrNotFound) {
		ErrorNotFound(w, "payment not found")
		return
	}

	var ise *domain.InvalidStateError
	if errors.As(err, &ise) {
		ErrorConflict(w, ise.Error())
		return
	}

	var pe *processor.Error
	if errors.As(err, &pe) {
		switch pe.Kind {
		case processor.KindCardError:
			Error(w, pe.Message, 402, http.StatusPaymentRequired)
		case processor.KindInvalidRequest:
			ErrorBadRequest(w, pe.Message)
		case processor.KindRateLimited:
			Error(w, pe.Message, 503, http.StatusServiceUnavailable)
		default:
			Error(w, pe.Message, 502, http.StatusBadGateway)
		}
		return
	}

	ErrorInternal(w, "internal error")
}
