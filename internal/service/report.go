package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"expertpay/internal/clients"
	"expertpay/internal/domain"
	"expertpay/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

// ReportStore is the read side of the ledger the report generator walks.
type ReportStore interface {
	List(ctx context.Context, f repository.PaymentsFilter) ([]domain.Payment, error)
	HasMoreThan(ctx context.Context, limit int64, f repository.PaymentsFilter) (bool, error)
}

// ReportColumn maps a selectable field key to its sheet header and value.
type ReportColumn struct {
	Header string
	Value  func(p domain.Payment) any
}

var reportColumns = map[string]ReportColumn{
	"id":        {Header: "ID", Value: func(p domain.Payment) any { return p.ID }},
	"intent_id": {Header: "Intent ID", Value: func(p domain.Payment) any { return p.IntentID }},
	"customer_id": {Header: "Customer", Value: func(p domain.Payment) any {
		return p.CustomerID
	}},
	"expert_id":        {Header: "Expert", Value: func(p domain.Payment) any { return p.ExpertID }},
	"amount":           {Header: "Amount", Value: func(p domain.Payment) any { return float64(p.Amount) / 100 }},
	"currency":         {Header: "Currency", Value: func(p domain.Payment) any { return p.Currency }},
	"status":           {Header: "Status", Value: func(p domain.Payment) any { return string(p.Status) }},
	"cancellation_fee": {Header: "Cancellation fee %", Value: func(p domain.Payment) any { return p.CancellationFee }},
	"captured_amount":  {Header: "Captured", Value: func(p domain.Payment) any { return float64(p.CapturedAmount()) / 100 }},
	"created_at":       {Header: "Created", Value: func(p domain.Payment) any { return p.CreatedAt.Format("2006-01-02 15:04:05") }},
	"updated_at":       {Header: "Updated", Value: func(p domain.Payment) any { return p.UpdatedAt.Format("2006-01-02 15:04:05") }},
}

var defaultReportFields = []string{
	"created_at", "id", "intent_id", "customer_id", "expert_id",
	"amount", "currency", "status", "cancellation_fee", "captured_amount", "updated_at",
}

const (
	maxPaymentsForReport = 500_000
	reportTTL            = 30 * time.Minute
	reportSetKey         = "report_ids"
)

// ReportStatus is the Redis-backed progress record for one report run.
type ReportStatus struct {
	Key      string                 `json:"key"`
	Type     string                 `json:"type"`
	UserID   int64                  `json:"user_id"`
	Filters  map[string]interface{} `json:"filters"`
	Progress float64                `json:"progress"`
	FileURL  *string                `json:"file_url"`
	Error    *string                `json:"error,omitempty"`
	Created  time.Time              `json:"created"`
}

// ReportService generates xlsx settlement reports over the ledger
// asynchronously, tracking progress in Redis and notifying the requesting
// operator over the websocket hub.
type ReportService struct {
	store   ReportStore
	redis   *clients.RedisClient
	storage *clients.StorageClient
	ws      *clients.WebSocketClient
	log     zerolog.Logger
}

func NewReportService(store ReportStore, redis *clients.RedisClient, storage *clients.StorageClient, ws *clients.WebSocketClient, log zerolog.Logger) *ReportService {
	return &ReportService{
		store:   store,
		redis:   redis,
		storage: storage,
		ws:      ws,
		log:     log.With().Str("component", "report").Logger(),
	}
}

func (s *ReportService) saveStatus(ctx context.Context, st *ReportStatus) error {
	if s.redis == nil {
		return nil
	}
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, st.Key, string(data), reportTTL); err != nil {
		return err
	}
	return s.redis.SAdd(ctx, reportSetKey, st.Key)
}

// StartPaymentsReport validates the request, refuses oversized result sets,
// records the initial status and kicks off generation in the background.
func (s *ReportService) StartPaymentsReport(ctx context.Context, selected []string, filter repository.PaymentsFilter, userID int64) (string, error) {
	if len(selected) == 0 {
		selected = defaultReportFields
	}

	tooMany, err := s.store.HasMoreThan(ctx, maxPaymentsForReport, filter)
	if err != nil {
		return "", err
	}
	if tooMany {
		return "", fmt.Errorf("too many payments for one report (over %d rows)", maxPaymentsForReport)
	}

	reportID := fmt.Sprintf("reports:%s", uuid.NewString())
	status := &ReportStatus{
		Key:      reportID,
		Type:     "payments",
		UserID:   userID,
		Filters:  filtersMap(filter, selected),
		Progress: 0,
		Created:  time.Now(),
	}
	_ = s.saveStatus(ctx, status)

	go s.runPaymentsReport(context.Background(), status, selected, filter)

	return reportID, nil
}

func (s *ReportService) runPaymentsReport(ctx context.Context, status *ReportStatus, selected []string, filter repository.PaymentsFilter) {
	payments, err := s.store.List(ctx, filter)
	if err != nil {
		s.finishWithError(ctx, status, fmt.Sprintf("list payments: %v", err))
		return
	}

	var cols []ReportColumn
	for _, key := range selected {
		if col, ok := reportColumns[key]; ok {
			cols = append(cols, col)
		}
	}
	if len(cols) == 0 {
		s.finishWithError(ctx, status, "no known fields selected")
		return
	}

	f := excelize.NewFile()
	sheet := "Payments"
	f.SetSheetName(f.GetSheetName(0), sheet)
	_ = f.SetDocProps(&excelize.DocProperties{Creator: fmt.Sprintf("user_%d", status.UserID)})

	for i, col := range cols {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, col.Header)
	}

	total := len(payments)
	chunkSize := 1000
	for i, p := range payments {
		for colIdx, col := range cols {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, i+2)
			_ = f.SetCellValue(sheet, cell, col.Value(p))
		}

		if (i+1)%chunkSize == 0 || i == total-1 {
			progress := math.Round(float64(i+1) / float64(total) * 100.0)
			if progress >= 100 {
				progress = 95
			}
			s.publishProgress(ctx, status, progress, "generating")
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		s.finishWithError(ctx, status, fmt.Sprintf("write workbook: %v", err))
		return
	}

	fileName := fmt.Sprintf("payments_%s.xlsx", time.Now().Format("20060102_150405"))
	savedName, err := s.storage.Save(ctx, fileName, buf.Bytes())
	if err != nil {
		s.finishWithError(ctx, status, fmt.Sprintf("save report failed: %v", err))
		return
	}

	url := s.storage.GetURL(savedName)
	status.FileURL = &url
	status.Progress = 100
	_ = s.saveStatus(ctx, status)
	if s.ws != nil {
		_ = s.ws.NotifyReportProgress(ctx, status.UserID, status.Key, 100, "ready")
		_ = s.ws.NotifyReportComplete(ctx, status.UserID, status.Key, url, fileName)
	}
}

func (s *ReportService) publishProgress(ctx context.Context, status *ReportStatus, progress float64, stage string) {
	status.Progress = progress
	_ = s.saveStatus(ctx, status)
	if s.ws != nil {
		_ = s.ws.NotifyReportProgress(ctx, status.UserID, status.Key, progress, stage)
	}
}

func (s *ReportService) finishWithError(ctx context.Context, status *ReportStatus, errStr string) {
	s.log.Error().Str("report_id", status.Key).Msg(errStr)
	status.Error = &errStr
	status.Progress = 100
	_ = s.saveStatus(ctx, status)
	if s.ws != nil {
		_ = s.ws.NotifyReportFailed(ctx, status.UserID, status.Key, errStr)
	}
}

// GetReports returns the caller's report status records, newest first.
func (s *ReportService) GetReports(ctx context.Context, userID int64) ([]ReportStatus, error) {
	if s.redis == nil {
		return nil, errors.New("redis client not configured")
	}

	keys, err := s.redis.SMembers(ctx, reportSetKey)
	if err != nil {
		return nil, fmt.Errorf("failed to get report keys: %w", err)
	}

	var statuses []ReportStatus
	for _, key := range keys {
		data, err := s.redis.Get(ctx, key)
		if err != nil {
			continue
		}
		var status ReportStatus
		if err := json.Unmarshal([]byte(data), &status); err != nil {
			continue
		}
		if status.UserID == userID {
			statuses = append(statuses, status)
		}
	}

	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].Created.After(statuses[j].Created)
	})
	return statuses, nil
}

// GetReport returns one report status record owned by the caller.
func (s *ReportService) GetReport(ctx context.Context, reportID string, userID int64) (*ReportStatus, error) {
	if s.redis == nil {
		return nil, errors.New("redis client not configured")
	}

	data, err := s.redis.Get(ctx, reportID)
	if err != nil {
		return nil, errors.New("report not found")
	}

	var status ReportStatus
	if err := json.Unmarshal([]byte(data), &status); err != nil {
		return nil, fmt.Errorf("failed to parse report status: %w", err)
	}
	if status.UserID != userID {
		return nil, errors.New("report not found")
	}
	return &status, nil
}

func filtersMap(f repository.PaymentsFilter, fields []string) map[string]interface{} {
	m := map[string]interface{}{"fields": fields}
	if f.Status != nil {
		m["status"] = string(*f.Status)
	}
	if f.ExpertID != nil {
		m["expert_id"] = *f.ExpertID
	}
	if f.CustomerID != nil {
		m["customer_id"] = *f.CustomerID
	}
	if f.CreatedStartDate != nil {
		m["created_start_date"] = f.CreatedStartDate.Format("2006-01-02")
	}
	if f.CreatedEndDate != nil {
		m["created_end_date"] = f.CreatedEndDate.Format("2006-01-02")
	}
	return m
}
