package clients

import (
	"context"
	"fmt"

	"expertpay/internal/domain"
	ws "expertpay/internal/transport/websocket"
)

// WebSocketClient pushes ledger and report notifications to connected
// operator sessions through the hub.
type WebSocketClient struct {
	hub *ws.Hub
}

func NewWebSocketClient(hub *ws.Hub) *WebSocketClient {
	return &WebSocketClient{hub: hub}
}

// NotifyPaymentStatus broadcasts a payment's new status to the customer's
// session.
func (c *WebSocketClient) NotifyPaymentStatus(ctx context.Context, p *domain.Payment) error {
	if c.hub == nil {
		return nil
	}

	message := &ws.Message{
		Type:    "payment_status",
		Channel: fmt.Sprintf("payments#%d", p.CustomerID),
		Data: map[string]interface{}{
			"intent_id":        p.IntentID,
			"status":           string(p.Status),
			"cancellation_fee": p.CancellationFee,
		},
	}

	c.hub.Broadcast(p.CustomerID, message)
	return nil
}

func (c *WebSocketClient) NotifyReportProgress(ctx context.Context, userID int64, reportID string, progress float64, stage string) error {
	if c.hub == nil {
		return nil
	}

	data := map[string]interface{}{
		"id":       reportID,
		"progress": progress,
	}
	if stage != "" {
		data["stage"] = stage
	}

	message := &ws.Message{
		Type:    "report_progress",
		Channel: fmt.Sprintf("reports#%d", userID),
		Data:    data,
	}

	c.hub.Broadcast(userID, message)
	return nil
}

func (c *WebSocketClient) NotifyReportComplete(ctx context.Context, userID int64, reportID string, url string, filename string) error {
	if c.hub == nil {
		return nil
	}

	message := &ws.Message{
		Type:    "report_complete",
		Channel: fmt.Sprintf("reports#%d", userID),
		Data: map[string]interface{}{
			"id":       reportID,
			"url":      url,
			"filename": filename,
			"user_id":  userID,
		},
	}

	c.hub.Broadcast(userID, message)
	return nil
}

// NotifyReportFailed tells the requesting operator that report generation
// failed.
func (c *WebSocketClient) NotifyReportFailed(ctx context.Context, userID int64, reportID string, errMsg string) error {
	if c.hub == nil {
		return nil
	}

	message := &ws.Message{
		Type:    "report_failed",
		Channel: fmt.Sprintf("reports#%d", userID),
		Data: map[string]interface{}{
			"id":      reportID,
			"message": errMsg,
			"user_id": userID,
		},
	}

	c.hub.Broadcast(userID, message)
	return nil
}
