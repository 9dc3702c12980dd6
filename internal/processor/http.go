package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// Config carries processor credentials and client policy. Injected at
// construction so nothing in this package holds process-wide state.
type Config struct {
	BaseURL string
	APIKey  string

	// Timeout bounds a single HTTP round trip. Exceeding it surfaces as a
	// transient error.
	Timeout time.Duration

	// MaxRetries caps backoff retries for rate_limited/transient failures.
	MaxRetries uint64
}

// HTTPClient talks to the processor's REST API. Retryable failures are
// retried with exponential backoff, and a circuit breaker sheds load when
// the processor is down.
type HTTPClient struct {
	cfg     Config
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
	log     zerolog.Logger
}

func NewHTTPClient(cfg Config, log zerolog.Logger) *HTTPClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:    "processor",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			// Card declines and bad requests are processor answers, not
			// processor outages.
			var pe *Error
			if errors.As(err, &pe) {
				return !pe.Retryable()
			}
			return err == nil
		},
	})

	return &HTTPClient{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		breaker: breaker,
		log:     log.With().Str("component", "processor").Logger(),
	}
}

type intentResponse struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
}

type refundResponse struct {
	ID string `json:"id"`
}

type errorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *HTTPClient) Authorize(ctx context.Context, p AuthorizeParams) (*Authorization, error) {
	body := map[string]any{
		"amount":         p.Amount,
		"currency":       p.Currency,
		"payment_method": p.PaymentMethod,
		"capture_method": "manual",
	}

	raw, err := c.call(ctx, http.MethodPost, "/v1/payment_intents", body)
	if err != nil {
		return nil, err
	}

	var resp intentResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &Error{Kind: KindTransient, Message: fmt.Sprintf("malformed intent response: %v", err)}
	}
	return &Authorization{IntentID: resp.ID, ClientSecret: resp.ClientSecret}, nil
}

func (c *HTTPClient) Capture(ctx context.Context, intentID string, partialAmount int64) error {
	body := map[string]any{}
	if partialAmount > 0 {
		body["amount_to_capture"] = partialAmount
	}
	_, err := c.call(ctx, http.MethodPost, "/v1/payment_intents/"+intentID+"/capture", body)
	return err
}

func (c *HTTPClient) Cancel(ctx context.Context, intentID string) error {
	_, err := c.call(ctx, http.MethodPost, "/v1/payment_intents/"+intentID+"/cancel", nil)
	return err
}

func (c *HTTPClient) Refund(ctx context.Context, intentID string, partialAmount int64) (*Refund, error) {
	body := map[string]any{"payment_intent": intentID}
	if partialAmount > 0 {
		body["amount"] = partialAmount
	}

	raw, err := c.call(ctx, http.MethodPost, "/v1/refunds", body)
	if err != nil {
		return nil, err
	}

	var resp refundResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &Error{Kind: KindTransient, Message: fmt.Sprintf("malformed refund response: %v", err)}
	}
	return &Refund{RefundID: resp.ID}, nil
}

// call performs one API request through the breaker, retrying retryable
// failures with capped exponential backoff.
func (c *HTTPClient) call(ctx context.Context, method, path string, body any) ([]byte, error) {
	op := func() ([]byte, error) {
		raw, err := c.breaker.Execute(func() ([]byte, error) {
			return c.do(ctx, method, path, body)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				err = &Error{Kind: KindTransient, Message: "processor circuit open"}
			}
			var pe *Error
			if errors.As(err, &pe) && !pe.Retryable() {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return raw, nil
	}

	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.cfg.MaxRetries),
		ctx,
	)

	raw, err := backoff.RetryWithData(op, bo)
	if err != nil {
		var pe *Error
		if !errors.As(err, &pe) {
			err = &Error{Kind: KindTransient, Message: err.Error()}
		}
		c.log.Warn().Err(err).Str("path", path).Msg("processor call failed")
		return nil, err
	}
	return raw, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, &Error{Kind: KindInvalidRequest, Message: err.Error()}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.cfg.BaseURL, "/")+path, reader)
	if err != nil {
		return nil, &Error{Kind: KindInvalidRequest, Message: err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindTransient, Message: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &Error{Kind: KindTransient, Message: err.Error()}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return raw, nil
	}
	return nil, decodeError(resp.StatusCode, raw)
}

// decodeError maps an HTTP failure to the error taxonomy. The body's
// error.type wins when recognized; otherwise the status code decides.
func decodeError(status int, raw []byte) *Error {
	var er errorResponse
	_ = json.Unmarshal(raw, &er)

	kind := kindForStatus(status)
	switch er.Error.Type {
	case "card_error":
		kind = KindCardError
	case "invalid_request_error":
		kind = KindInvalidRequest
	case "authentication_error":
		kind = KindAuthError
	case "rate_limit_error":
		kind = KindRateLimited
	}

	msg := er.Error.Message
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &Error{Kind: kind, Code: er.Error.Code, Message: msg}
}

func kindForStatus(status int) ErrorKind {
	switch {
	case status == http.StatusPaymentRequired:
		return KindCardError
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return KindAuthError
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status >= 500:
		return KindTransient
	default:
		return KindInvalidRequest
	}
}
