package core

// importer.go drives an import from uploaded bytes to a committed (or rolled
// back) transaction.
//
// Flow for one request:
//  1. Parse the whole file. Malformed input is fatal.
//  2. Validate headers, then every row. Validate-only requests stop here.
//  3. Files with more rows than the background threshold are handed to the
//     job queue and return immediately.
//  4. Everything else runs in a single transaction: each row resolves its
//     site/cell/equipment chain, then its PLC record is created or
//     reconciled against existing ones.
//  5. Any row error rolls the whole transaction back. Only a clean run commits.
//
// A history record is written for every non-validate-only import and the
// audit notifier is told about the terminal state.

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/inventory/internal/logging"
	"github.com/JonMunkholm/inventory/internal/metrics"
)

// CreatedCounts tallies entities inserted by one import.
type CreatedCounts struct {
	Sites     int `json:"sites"`
	Cells     int `json:"cells"`
	Equipment int `json:"equipment"`
	PLCs      int `json:"plcs"`
}

// ImportRequest is one uploaded file plus the caller's options.
type ImportRequest struct {
	UserID   string
	FileName string
	Data     []byte
	Options  ImportOptions
}

// ImportResult is the outcome of Import. For validate-only requests
// Validation holds the full report.
type ImportResult struct {
	ImportID      string            `json:"importId"`
	JobID         string            `json:"jobId,omitempty"`
	Success       bool              `json:"success"`
	TotalRows     int               `json:"totalRows"`
	ProcessedRows int               `json:"processedRows"`
	SkippedRows   int               `json:"skippedRows"`
	HeaderErrors  []string          `json:"headerErrors,omitempty"`
	Errors        []Diagnostic      `json:"errors"`
	Warnings      []Diagnostic      `json:"warnings"`
	Created       CreatedCounts     `json:"created"`
	Updated       int               `json:"updated"`
	IsBackground  bool              `json:"isBackground"`
	Duration      time.Duration     `json:"-"`
	DurationMs    int64             `json:"durationMs"`
	Validation    *ValidationReport `json:"-"`
}

func (r *ImportResult) finish(d time.Duration) {
	r.Duration = d
	r.DurationMs = d.Milliseconds()
	if r.Errors == nil {
		r.Errors = []Diagnostic{}
	}
	if r.Warnings == nil {
		r.Warnings = []Diagnostic{}
	}
}

// discardCounts zeroes everything a rolled-back transaction would have written.
func (r *ImportResult) discardCounts() {
	r.ProcessedRows = 0
	r.Created = CreatedCounts{}
	r.Updated = 0
}

// Import validates and, unless told otherwise, persists the file in req.
// Rule violations are reported in the result; a non-nil error means the
// input was unreadable, the options were invalid or the store failed.
func (s *Service) Import(ctx context.Context, req ImportRequest) (*ImportResult, error) {
	if err := req.Options.Validate(); err != nil {
		return nil, err
	}
	opts := req.Options.withDefaults(s.defaultThreshold)
	start := s.now()
	importID := uuid.NewString()

	logger := logging.WithFields(ctx,
		"import_id", importID,
		"user_id", req.UserID,
		"file", req.FileName,
	)

	headers, rows, err := ParseFile(req.FileName, req.Data)
	if err != nil {
		metrics.ImportsTotal.WithLabelValues(metrics.OutcomeError).Inc()
		logger.Warn("import rejected: unreadable file", "error", err)
		return nil, err
	}

	report := ValidateFile(headers, rows)
	result := &ImportResult{
		ImportID:  importID,
		TotalRows: report.TotalRows,
	}

	if opts.ValidateOnly {
		result.Success = report.IsValid()
		result.Validation = report
		copyReport(result, report)
		result.finish(s.now().Sub(start))
		metrics.ImportsTotal.WithLabelValues(metrics.OutcomeValidated).Inc()
		logger.Info("validation completed", "valid", result.Success, "rows", result.TotalRows)
		return result, nil
	}

	if !report.IsValid() {
		copyReport(result, report)
		result.finish(s.now().Sub(start))
		s.recordHistory(ctx, req, opts, result, HistoryFailed, start)
		metrics.ImportsTotal.WithLabelValues(metrics.OutcomeInvalid).Inc()
		logger.Info("import failed validation",
			"header_errors", len(result.HeaderErrors),
			"row_errors", len(result.Errors),
		)
		s.notifyResult(ctx, req.UserID, req.FileName, result, HistoryFailed)
		return result, nil
	}

	if report.TotalRows > opts.BackgroundThreshold {
		return s.enqueue(ctx, req, opts, result, start)
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	runCtx, cancel := context.WithTimeout(ctx, s.importTimeout)
	defer cancel()

	if err := s.process(runCtx, req.UserID, opts, rows, result, nil); err != nil {
		result.Success = false
		result.discardCounts()
		result.Errors = append(result.Errors, Diagnostic{Message: err.Error(), Severity: SeverityError})
		result.finish(s.now().Sub(start))
		s.recordHistory(ctx, req, opts, result, HistoryFailed, start)
		metrics.ImportsTotal.WithLabelValues(metrics.OutcomeError).Inc()
		logger.Error("import aborted", "error", err)
		s.notifyResult(ctx, req.UserID, req.FileName, result, HistoryFailed)
		return nil, fmt.Errorf("import %s: %w", importID, err)
	}

	result.finish(s.now().Sub(start))
	status := HistoryFailed
	if result.Success {
		status = HistoryCompleted
	}
	s.recordHistory(ctx, req, opts, result, status, start)
	s.observe(result, "sync")
	logger.Info("import finished",
		"success", result.Success,
		"processed", result.ProcessedRows,
		"skipped", result.SkippedRows,
		"errors", len(result.Errors),
		"duration_ms", result.DurationMs,
	)
	s.notifyResult(ctx, req.UserID, req.FileName, result, status)
	return result, nil
}

func copyReport(result *ImportResult, report *ValidationReport) {
	result.HeaderErrors = report.HeaderErrors
	for _, h := range report.HeaderErrors {
		result.Errors = append(result.Errors, Diagnostic{Row: 1, Message: h, Severity: SeverityError})
	}
	result.Errors = append(result.Errors, report.Diagnostics...)
}

// process runs rows through the hierarchy and duplicate resolvers inside a
// single transaction. It fills result and returns an error only for
// persistence faults or cancellation, in which case nothing was committed.
func (s *Service) process(ctx context.Context, userID string, opts ImportOptions, rows []RawRow, result *ImportResult, progress func(done int)) error {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		// Rollback must run even when ctx is already cancelled.
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
			logging.FromContext(ctx).Error("rollback failed", "error", rbErr)
		}
	}()

	hierarchy := newHierarchyResolver(tx, userID, opts.CreateMissing)
	dupes := newDuplicateResolver(tx, opts.DuplicateHandling, userID)

	var created CreatedCounts
	processed, skipped, updated := 0, 0, 0

loop:
	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("import interrupted at row %d: %w", row.Line, err)
		}
		if progress != nil && i > 0 && i%s.progressInterval == 0 {
			progress(i)
		}

		h, err := hierarchy.Resolve(ctx, row)
		if err != nil {
			return err
		}
		if !h.Resolved() {
			result.Errors = append(result.Errors, *h.Diagnostic)
			if opts.DuplicateHandling == DuplicateSkip {
				skipped++
				continue
			}
			break loop
		}

		out, err := dupes.Apply(ctx, row, h.EquipmentID)
		if err != nil {
			return err
		}
		switch out.action {
		case actionCreated:
			created.PLCs++
			processed++
		case actionUpdated:
			updated++
			processed++
		case actionSkipped:
			result.Warnings = append(result.Warnings, out.diags...)
			skipped++
		case actionRejected:
			result.Errors = append(result.Errors, out.diags...)
			if opts.DuplicateHandling == DuplicateSkip {
				skipped++
				continue
			}
			break loop
		}
	}

	result.SkippedRows = skipped
	if hasErrors(result.Errors) {
		result.Success = false
		result.discardCounts()
		return nil
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true

	if progress != nil {
		progress(len(rows))
	}

	created.Sites = hierarchy.created.Sites
	created.Cells = hierarchy.created.Cells
	created.Equipment = hierarchy.created.Equipment
	result.Success = true
	result.ProcessedRows = processed
	result.Created = created
	result.Updated = updated
	return nil
}

// enqueue hands an oversized import to the job queue.
func (s *Service) enqueue(ctx context.Context, req ImportRequest, opts ImportOptions, result *ImportResult, start time.Time) (*ImportResult, error) {
	if s.queue == nil {
		return nil, ErrQueueUnavailable
	}

	jobID := uuid.NewString()
	h := &ImportHistory{
		ID:           result.ImportID,
		UserID:       req.UserID,
		FileName:     req.FileName,
		Status:       HistoryProcessing,
		TotalRows:    result.TotalRows,
		Options:      opts,
		IsBackground: true,
		JobID:        jobID,
		CreatedAt:    start,
	}
	if err := s.store.CreateHistory(ctx, h); err != nil {
		return nil, fmt.Errorf("create import history: %w", err)
	}

	job := &BackgroundJob{
		ID:        jobID,
		HistoryID: h.ID,
		UserID:    req.UserID,
		FileName:  req.FileName,
		Payload:   req.Data,
		Options:   opts,
		Status:    JobQueued,
		TotalRows: result.TotalRows,
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		now := s.now()
		h.Status = HistoryFailed
		h.CompletedAt = &now
		if uerr := s.store.UpdateHistory(context.WithoutCancel(ctx), h); uerr != nil {
			err = errors.Join(err, uerr)
		}
		return nil, fmt.Errorf("enqueue import: %w", err)
	}

	result.JobID = jobID
	result.Success = true
	result.IsBackground = true
	result.ProcessedRows = 0
	result.finish(s.now().Sub(start))

	metrics.ImportsTotal.WithLabelValues(metrics.OutcomeQueued).Inc()
	logging.WithFields(ctx, "import_id", h.ID, "job_id", jobID).
		Info("import queued for background processing", "rows", result.TotalRows)
	s.notify(ctx, AuditEvent{
		Action:    ActionImportQueued,
		UserID:    req.UserID,
		ImportID:  h.ID,
		JobID:     jobID,
		FileName:  req.FileName,
		Status:    string(HistoryProcessing),
		TotalRows: result.TotalRows,
	})
	return result, nil
}

// RunBackgroundImport processes a claimed job and converges the job and its
// history record on the same terminal state. The returned error is the
// fault that failed the job, if any.
func (s *Service) RunBackgroundImport(ctx context.Context, job *BackgroundJob) error {
	start := s.now()
	if logging.JobIDFromContext(ctx) == "" {
		ctx = logging.ContextWithJobID(ctx, job.ID)
	}
	logger := logging.WithFields(ctx,
		"import_id", job.HistoryID,
		"user_id", job.UserID,
	)
	logger.Info("background import started", "rows", job.TotalRows)

	result := &ImportResult{ImportID: job.HistoryID, JobID: job.ID, IsBackground: true, TotalRows: job.TotalRows}

	var runErr error
	headers, rows, err := ParseFile(job.FileName, job.Payload)
	if err != nil {
		runErr = err
	} else {
		report := ValidateFile(headers, rows)
		result.TotalRows = report.TotalRows
		if !report.IsValid() {
			copyReport(result, report)
		} else {
			progress := func(done int) {
				if s.queue == nil {
					return
				}
				if err := s.queue.ReportProgress(ctx, job.ID, done); err != nil {
					logger.Warn("progress update failed", "error", err)
				}
			}
			runErr = s.process(ctx, job.UserID, job.Options.withDefaults(s.defaultThreshold), rows, result, progress)
		}
	}

	if runErr != nil {
		result.Success = false
		result.discardCounts()
		result.Errors = append(result.Errors, Diagnostic{Message: runErr.Error(), Severity: SeverityError})
	}
	result.finish(s.now().Sub(start))

	status, jobStatus := HistoryFailed, JobFailed
	if result.Success {
		status, jobStatus = HistoryCompleted, JobCompleted
	}

	// The job must reach a terminal state even if the worker is shutting down.
	finishCtx := context.WithoutCancel(ctx)
	if h, err := s.store.GetHistory(finishCtx, job.HistoryID); err != nil {
		logger.Error("load history for background import", "error", err)
	} else {
		historyFromResult(h, result, status, s.now())
		if err := s.store.UpdateHistory(finishCtx, h); err != nil {
			logger.Error("update history for background import", "error", err)
		}
	}

	var errMsg string
	if runErr != nil {
		errMsg = runErr.Error()
	} else if !result.Success {
		errMsg = fmt.Sprintf("%d row errors", len(result.Errors))
	}
	if s.queue != nil {
		if err := s.queue.Finish(finishCtx, job.ID, jobStatus, errMsg); err != nil {
			logger.Error("mark job finished", "error", err)
		}
	}

	if runErr != nil {
		metrics.ImportsTotal.WithLabelValues(metrics.OutcomeError).Inc()
	} else {
		s.observe(result, "background")
	}
	logger.Info("background import finished",
		"success", result.Success,
		"processed", result.ProcessedRows,
		"errors", len(result.Errors),
		"duration_ms", result.DurationMs,
	)
	s.notifyResult(ctx, job.UserID, job.FileName, result, status)
	return runErr
}

func (s *Service) recordHistory(ctx context.Context, req ImportRequest, opts ImportOptions, result *ImportResult, status HistoryStatus, start time.Time) {
	h := &ImportHistory{
		ID:        result.ImportID,
		UserID:    req.UserID,
		FileName:  req.FileName,
		Options:   opts,
		CreatedAt: start,
	}
	historyFromResult(h, result, status, s.now())
	if err := s.store.CreateHistory(context.WithoutCancel(ctx), h); err != nil {
		logging.FromContext(ctx).Error("record import history failed",
			"import_id", result.ImportID,
			"error", err,
		)
	}
}

func (s *Service) observe(result *ImportResult, mode string) {
	outcome := metrics.OutcomeRolledBack
	if result.Success {
		outcome = metrics.OutcomeCommitted
		metrics.ImportRows.WithLabelValues("processed").Add(float64(result.ProcessedRows))
		metrics.ImportRows.WithLabelValues("skipped").Add(float64(result.SkippedRows))
	}
	metrics.ImportsTotal.WithLabelValues(outcome).Inc()
	metrics.ImportDuration.WithLabelValues(mode).Observe(result.Duration.Seconds())
}

func (s *Service) notifyResult(ctx context.Context, userID, fileName string, r *ImportResult, status HistoryStatus) {
	s.notify(ctx, AuditEvent{
		Action:     ActionImport,
		UserID:     userID,
		ImportID:   r.ImportID,
		JobID:      r.JobID,
		FileName:   fileName,
		Status:     string(status),
		TotalRows:  r.TotalRows,
		Processed:  r.ProcessedRows,
		Skipped:    r.SkippedRows,
		ErrorCount: len(r.Errors),
		Created:    r.Created,
		Updated:    r.Updated,
	})
}
