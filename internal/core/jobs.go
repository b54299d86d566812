package core

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrJobNotCancellable is returned when cancelling a job that already started.
var ErrJobNotCancellable = errors.New("job is no longer queued and cannot be cancelled")

// JobStatus is the lifecycle state of a background job.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// Terminal reports whether no further transitions are possible.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// BackgroundJob is an import handed to the queue because it exceeded the
// background threshold. Payload is the original file.
type BackgroundJob struct {
	ID            string        `json:"id"`
	HistoryID     string        `json:"historyId"`
	UserID        string        `json:"userId"`
	FileName      string        `json:"fileName"`
	Payload       []byte        `json:"-"`
	Options       ImportOptions `json:"options"`
	Status        JobStatus     `json:"status"`
	TotalRows     int           `json:"totalRows"`
	ProcessedRows int           `json:"processedRows"`
	Error         string        `json:"error,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
	StartedAt     *time.Time    `json:"startedAt,omitempty"`
	FinishedAt    *time.Time    `json:"finishedAt,omitempty"`
}

// Percent returns completion as 0-100.
func (j BackgroundJob) Percent() int {
	if j.TotalRows == 0 {
		return 0
	}
	return j.ProcessedRows * 100 / j.TotalRows
}

// JobQueue is the durable queue collaborator. The service assigns job IDs;
// implementations set CreatedAt and the queued status on Enqueue.
type JobQueue interface {
	Enqueue(ctx context.Context, job *BackgroundJob) error
	Get(ctx context.Context, id string) (*BackgroundJob, error)
	ReportProgress(ctx context.Context, id string, processed int) error
	Finish(ctx context.Context, id string, status JobStatus, errMsg string) error
	// Cancel moves a queued job to cancelled. Jobs past queued return
	// ErrJobNotCancellable.
	Cancel(ctx context.Context, id string) error
}

// GetJob returns a job owned by userID.
func (s *Service) GetJob(ctx context.Context, userID, jobID string) (*BackgroundJob, error) {
	if s.queue == nil {
		return nil, ErrNotFound
	}
	job, err := s.queue.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.UserID != userID {
		return nil, ErrNotFound
	}
	return job, nil
}

// CancelJob cancels a still-queued job and marks its history record cancelled.
func (s *Service) CancelJob(ctx context.Context, userID, jobID string) error {
	job, err := s.GetJob(ctx, userID, jobID)
	if err != nil {
		return err
	}
	if err := s.queue.Cancel(ctx, jobID); err != nil {
		return err
	}

	if h, err := s.store.GetHistory(ctx, job.HistoryID); err == nil {
		now := s.now()
		h.Status = HistoryCancelled
		h.CompletedAt = &now
		if err := s.store.UpdateHistory(ctx, h); err != nil {
			return fmt.Errorf("update history for cancelled job: %w", err)
		}
	}

	s.notify(ctx, AuditEvent{
		Action:    ActionImportCancelled,
		UserID:    userID,
		ImportID:  job.HistoryID,
		JobID:     jobID,
		FileName:  job.FileName,
		Status:    string(HistoryCancelled),
		TotalRows: job.TotalRows,
	})
	return nil
}
