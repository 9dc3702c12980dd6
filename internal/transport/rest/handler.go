package rest

import (
	"context"
	"net/http"
	"time"

	"expertpay/internal/domain"
	"expertpay/internal/repository"
	"expertpay/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// PaymentLedger is the ledger surface exposed over HTTP.
type PaymentLedger interface {
	Create(ctx context.Context, params service.CreatePaymentParams) (*domain.Payment, error)
	Get(ctx context.Context, intentID string) (*domain.Payment, error)
	Capture(ctx context.Context, intentID string, partialPercentage int) (*domain.Payment, error)
	Release(ctx context.Context, intentID string) (*domain.Payment, error)
	Refund(ctx context.Context, intentID string, amount int64) (*domain.Payment, error)
}

// CancellationPolicy applies the late-cancellation fee decision.
type CancellationPolicy interface {
	Apply(ctx context.Context, intentID string, percentage int) (*service.CancellationOutcome, error)
}

// WebhookIntake verifies and enqueues processor webhook deliveries.
type WebhookIntake interface {
	VerifySignature(header string, body []byte, now time.Time) error
	Enqueue(ctx context.Context, body []byte) error
}

// Reporter starts and reads settlement report runs.
type Reporter interface {
	StartPaymentsReport(ctx context.Context, selected []string, filter repository.PaymentsFilter, userID int64) (string, error)
	GetReports(ctx context.Context, userID int64) ([]service.ReportStatus, error)
	GetReport(ctx context.Context, reportID string, userID int64) (*service.ReportStatus, error)
}

type Handler struct {
	ledger       PaymentLedger
	cancellation CancellationPolicy
	webhook      WebhookIntake
	reports      Reporter
}

func NewHandler(ledger PaymentLedger, cancellation CancellationPolicy, webhook WebhookIntake, reports Reporter) *Handler {
	return &Handler{
		ledger:       ledger,
		cancellation: cancellation,
		webhook:      webhook,
		reports:      reports,
	}
}

func (h *Handler) InitRouter() *chi.Mux {
	return h.InitRouterWithAuth(nil)
}

// InitRouterWithAuth builds the protected API router. The webhook route is
// mounted separately in main because its gate is the signature, not a token.
func (h *Handler) InitRouterWithAuth(authMiddleware func(http.Handler) http.Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
		middleware.Timeout(60*time.Second),
	)

	if authMiddleware != nil {
		r.Use(authMiddleware)
	}

	r.Route("/payments", func(r chi.Router) {
		r.Post("/", h.createPayment)
		r.Get("/{intent_id}", h.getPayment)
		r.Post("/{intent_id}/capture", h.capturePayment)
		r.Post("/{intent_id}/release", h.releasePayment)
		r.Post("/{intent_id}/refund", h.refundPayment)
		r.Post("/{intent_id}/cancellation-fee", h.applyCancellationFee)
	})

	r.Route("/reports", func(r chi.Router) {
		r.Get("/", h.listReports)
		r.Get("/{report_id}", h.getReport)
		r.Post("/payments", h.startPaymentsReport)
	})

	return r
}

// WebhookRouter is the public router for processor callbacks.
func (h *Handler) WebhookRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Use(
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Timeout(10*time.Second),
	)
	r.Post("/webhooks/processor", h.processorWebhook)
	return r
}
