package core

import (
	"context"
	"log/slog"
	"time"

	"github.com/JonMunkholm/inventory/internal/logging"
)

// AuditAction represents the type of action being audited.
type AuditAction string

const (
	ActionImport          AuditAction = "import"
	ActionImportQueued    AuditAction = "import_queued"
	ActionImportCancelled AuditAction = "import_cancelled"
	ActionExport          AuditAction = "export"
)

// AuditSeverity represents the severity level of an audit entry.
type AuditSeverity string

const (
	SeverityLow    AuditSeverity = "low"
	SeverityMedium AuditSeverity = "medium"
	SeverityHigh   AuditSeverity = "high"
)

// AuditEvent describes one finished (or queued) operation.
type AuditEvent struct {
	Action     AuditAction
	Severity   AuditSeverity
	UserID     string
	IPAddress  string
	UserAgent  string
	ImportID   string
	JobID      string
	FileName   string
	Status     string
	TotalRows  int
	Processed  int
	Skipped    int
	ErrorCount int
	Created    CreatedCounts
	Updated    int
	OccurredAt time.Time
}

// AuditNotifier receives audit events. The audit store itself lives
// elsewhere; implementations must not block the caller for long.
type AuditNotifier interface {
	Notify(ctx context.Context, event AuditEvent)
}

// LogAuditNotifier writes audit events to the structured log.
type LogAuditNotifier struct{}

func (LogAuditNotifier) Notify(ctx context.Context, e AuditEvent) {
	level := slog.LevelInfo
	if e.Severity == SeverityHigh {
		level = slog.LevelWarn
	}
	logging.FromContext(ctx).Log(ctx, level, "audit",
		"action", e.Action,
		"severity", e.Severity,
		"user_id", e.UserID,
		"ip", e.IPAddress,
		"import_id", e.ImportID,
		"job_id", e.JobID,
		"file", e.FileName,
		"status", e.Status,
		"total_rows", e.TotalRows,
		"processed", e.Processed,
		"skipped", e.Skipped,
		"errors", e.ErrorCount,
	)
}

// determineSeverity maps an import outcome to an audit severity. Committed
// imports change inventory data, so they rank above failed ones.
func determineSeverity(action AuditAction, success bool) AuditSeverity {
	switch {
	case action == ActionImport && success:
		return SeverityHigh
	case action == ActionImport, action == ActionImportCancelled:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

func (s *Service) notify(ctx context.Context, e AuditEvent) {
	e.Severity = determineSeverity(e.Action, e.Status == string(HistoryCompleted))
	if e.IPAddress == "" {
		e.IPAddress = GetIPAddressFromContext(ctx)
	}
	if e.UserAgent == "" {
		e.UserAgent = GetUserAgentFromContext(ctx)
	}
	e.OccurredAt = s.now()
	s.audit.Notify(ctx, e)
}
