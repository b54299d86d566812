package core

import (
	"context"
	"fmt"
	"time"
)

// HistoryStatus is the state of an import history record.
type HistoryStatus string

const (
	HistoryProcessing HistoryStatus = "processing"
	HistoryCompleted  HistoryStatus = "completed"
	HistoryFailed     HistoryStatus = "failed"
	HistoryCancelled  HistoryStatus = "cancelled"
)

// History pagination limits.
const (
	DefaultHistoryPageSize = 20
	MaxHistoryPageSize     = 100
)

// ImportHistory is the persisted record of one import, owned by UserID.
type ImportHistory struct {
	ID            string        `json:"id"`
	UserID        string        `json:"userId"`
	FileName      string        `json:"fileName"`
	Status        HistoryStatus `json:"status"`
	TotalRows     int           `json:"totalRows"`
	ProcessedRows int           `json:"processedRows"`
	SkippedRows   int           `json:"skippedRows"`
	Errors        []Diagnostic  `json:"errors"`
	Warnings      []Diagnostic  `json:"warnings"`
	Created       CreatedCounts `json:"created"`
	Updated       int           `json:"updated"`
	Options       ImportOptions `json:"options"`
	IsBackground  bool          `json:"isBackground"`
	JobID         string        `json:"jobId,omitempty"`
	DurationMs    int64         `json:"durationMs"`
	CreatedAt     time.Time     `json:"createdAt"`
	CompletedAt   *time.Time    `json:"completedAt,omitempty"`
}

// HistoryPage is one page of a user's import history.
type HistoryPage struct {
	Items    []ImportHistory `json:"items"`
	Page     int             `json:"page"`
	PageSize int             `json:"pageSize"`
	Total    int64           `json:"total"`
}

// ClampPage normalises pagination input: page is 1-based, pageSize falls
// back to the default and is capped at MaxHistoryPageSize.
func ClampPage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = DefaultHistoryPageSize
	}
	if pageSize > MaxHistoryPageSize {
		pageSize = MaxHistoryPageSize
	}
	return page, pageSize
}

// ListImportHistory returns the user's imports, newest first.
func (s *Service) ListImportHistory(ctx context.Context, userID string, page, pageSize int) (*HistoryPage, error) {
	page, pageSize = ClampPage(page, pageSize)

	items, total, err := s.store.ListHistory(ctx, userID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, fmt.Errorf("list import history: %w", err)
	}
	if items == nil {
		items = []ImportHistory{}
	}
	return &HistoryPage{Items: items, Page: page, PageSize: pageSize, Total: total}, nil
}

// GetImportHistory returns one record if it belongs to userID.
func (s *Service) GetImportHistory(ctx context.Context, userID, id string) (*ImportHistory, error) {
	h, err := s.store.GetHistory(ctx, id)
	if err != nil {
		return nil, err
	}
	if h.UserID != userID {
		return nil, ErrNotFound
	}
	return h, nil
}

// PurgeHistory deletes finished history records older than retentionDays.
func (s *Service) PurgeHistory(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := s.now().AddDate(0, 0, -retentionDays)
	n, err := s.store.PurgeHistory(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge import history: %w", err)
	}
	return n, nil
}

// historyFromResult copies the counters of a finished import onto h.
func historyFromResult(h *ImportHistory, r *ImportResult, status HistoryStatus, finished time.Time) {
	h.Status = status
	h.TotalRows = r.TotalRows
	h.ProcessedRows = r.ProcessedRows
	h.SkippedRows = r.SkippedRows
	h.Errors = r.Errors
	h.Warnings = r.Warnings
	h.Created = r.Created
	h.Updated = r.Updated
	h.DurationMs = r.Duration.Milliseconds()
	h.CompletedAt = &finished
}
