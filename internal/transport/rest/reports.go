package rest

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"expertpay/internal/domain"
	"expertpay/internal/repository"
	"expertpay/internal/transport/auth"

	"github.com/go-chi/chi/v5"
)

// PaymentsReportRequest selects columns and filters for a settlement report.
type PaymentsReportRequest struct {
	Fields           []string
	Status           *domain.PaymentStatus
	ExpertID         *int64
	CustomerID       *int64
	CreatedStartDate *time.Time
	CreatedEndDate   *time.Time
}

type rawPaymentsReportRequest struct {
	Fields           []string    `json:"fields"`
	Status           interface{} `json:"status"`
	ExpertID         interface{} `json:"expert_id"`
	CustomerID       interface{} `json:"customer_id"`
	CreatedStartDate interface{} `json:"created_start_date"`
	CreatedEndDate   interface{} `json:"created_end_date"`
}

// ValidatePaymentsReportRequest parses and validates JSON input for a
// payments report. Filter fields tolerate string/number looseness from
// older clients.
func ValidatePaymentsReportRequest(r *http.Request) (*PaymentsReportRequest, error) {
	var raw rawPaymentsReportRequest
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil && err != io.EOF {
		return nil, err
	}

	req := &PaymentsReportRequest{Fields: raw.Fields}

	if raw.Status != nil {
		s, ok := raw.Status.(string)
		if !ok {
			return nil, &domain.ValidationError{Field: "status", Message: "status must be a string or empty"}
		}
		if s != "" {
			status := domain.PaymentStatus(s)
			if !status.Valid() {
				return nil, &domain.ValidationError{Field: "status", Message: "unknown payment status"}
			}
			req.Status = &status
		}
	}

	expertID, err := toInt64Ptr(raw.ExpertID)
	if err != nil {
		return nil, &domain.ValidationError{Field: "expert_id", Message: "expert_id must be integer or empty"}
	}
	req.ExpertID = expertID

	customerID, err := toInt64Ptr(raw.CustomerID)
	if err != nil {
		return nil, &domain.ValidationError{Field: "customer_id", Message: "customer_id must be integer or empty"}
	}
	req.CustomerID = customerID

	start, err := toDatePtr(raw.CreatedStartDate)
	if err != nil {
		return nil, &domain.ValidationError{Field: "created_start_date", Message: "must be YYYY-MM-DD or empty"}
	}
	req.CreatedStartDate = start

	end, err := toDatePtr(raw.CreatedEndDate)
	if err != nil {
		return nil, &domain.ValidationError{Field: "created_end_date", Message: "must be YYYY-MM-DD or empty"}
	}
	req.CreatedEndDate = end

	return req, nil
}

func (r *PaymentsReportRequest) ToRepositoryFilter() repository.PaymentsFilter {
	return repository.PaymentsFilter{
		Status:           r.Status,
		ExpertID:         r.ExpertID,
		CustomerID:       r.CustomerID,
		CreatedStartDate: r.CreatedStartDate,
		CreatedEndDate:   r.CreatedEndDate,
	}
}

func toInt64Ptr(v interface{}) (*int64, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case float64:
		i := int64(t)
		return &i, nil
	case string:
		if t == "" {
			return nil, nil
		}
		i, err := strconv.ParseInt(t, 10, 64)
		if err != nil {
			return nil, err
		}
		return &i, nil
	default:
		return nil, &domain.ValidationError{Message: "invalid type for int field"}
	}
}

func toDatePtr(v interface{}) (*time.Time, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		if t == "" {
			return nil, nil
		}
		parsed, err := time.Parse("2006-01-02", t)
		if err != nil {
			return nil, err
		}
		return &parsed, nil
	default:
		return nil, &domain.ValidationError{Message: "invalid type for date field"}
	}
}

func (h *Handler) startPaymentsReport(w http.ResponseWriter, r *http.Request) {
	req, err := ValidatePaymentsReportRequest(r)
	if err != nil {
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			ErrorBadRequest(w, ve.Error())
			return
		}
		ErrorBadRequest(w, "invalid JSON")
		return
	}

	userID, err := auth.GetUserID(r.Context())
	if err != nil {
		ErrorUnauthorized(w, "Unauthorized")
		return
	}

	reportID, err := h.reports.StartPaymentsReport(r.Context(), req.Fields, req.ToRepositoryFilter(), userID)
	if err != nil {
		log.Printf("[HTTP] startPaymentsReport error: %v", err)
		ErrorInternal(w, "failed to start report")
		return
	}

	SuccessAccepted(w, "report queued", map[string]interface{}{"report_id": reportID})
}

func (h *Handler) listReports(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.GetUserID(r.Context())
	if err != nil {
		ErrorUnauthorized(w, "Unauthorized")
		return
	}

	reports, err := h.reports.GetReports(r.Context(), userID)
	if err != nil {
		log.Printf("[HTTP] listReports error: %v", err)
		ErrorInternal(w, "failed to get reports")
		return
	}

	Success(w, "", reports)
}

func (h *Handler) getReport(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.GetUserID(r.Context())
	if err != nil {
		ErrorUnauthorized(w, "Unauthorized")
		return
	}

	reportIDParam := chi.URLParam(r, "report_id")
	if reportIDParam == "" {
		ErrorBadRequest(w, "report_id is required")
		return
	}
	reportID := "reports:" + reportIDParam

	report, err := h.reports.GetReport(r.Context(), reportID, userID)
	if err != nil {
		ErrorNotFound(w, "report not found")
		return
	}

	Success(w, "", report)
}
