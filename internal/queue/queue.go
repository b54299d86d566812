// Package queue stores background import jobs in PostgreSQL and runs them
// with a polling worker.
//
// Jobs are claimed with FOR UPDATE SKIP LOCKED, so several server
// processes can share one table without handing the same job out twice.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/inventory/internal/core"
	"github.com/JonMunkholm/inventory/internal/database"
)

// maxErrorLength caps the error text stored on a failed job.
const maxErrorLength = 512

const jobColumns = `id, history_id, user_id, file_name, options, status,
	total_rows, processed_rows, error, created_at, started_at, finished_at`

// Queue is the PostgreSQL core.JobQueue.
type Queue struct {
	pool   database.DBTX
	logger *slog.Logger
}

var _ core.JobQueue = (*Queue)(nil)

// New returns a Queue on pool, usually a *pgxpool.Pool.
func New(pool database.DBTX) *Queue {
	return &Queue{
		pool:   pool,
		logger: slog.With("component", "job_queue"),
	}
}

// scanJob reads a row selected with jobColumns, optionally followed by payload.
func scanJob(row pgx.Row, withPayload bool) (*core.BackgroundJob, error) {
	var (
		job                   core.BackgroundJob
		id, historyID         pgtype.UUID
		options               []byte
		status                string
		errText               pgtype.Text
		startedAt, finishedAt pgtype.Timestamptz
	)
	dest := []any{
		&id, &historyID, &job.UserID, &job.FileName, &options, &status,
		&job.TotalRows, &job.ProcessedRows, &errText, &job.CreatedAt, &startedAt, &finishedAt,
	}
	if withPayload {
		dest = append(dest, &job.Payload)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	job.ID = database.PgUUIDToString(id)
	job.HistoryID = database.PgUUIDToString(historyID)
	job.Status = core.JobStatus(status)
	job.Error = errText.String
	job.StartedAt = timePtr(startedAt)
	job.FinishedAt = timePtr(finishedAt)
	if err := json.Unmarshal(options, &job.Options); err != nil {
		return nil, fmt.Errorf("decode job options: %w", err)
	}
	return &job, nil
}

func timePtr(ts pgtype.Timestamptz) *time.Time {
	if !ts.Valid {
		return nil
	}
	t := ts.Time
	return &t
}

// Enqueue stores job as queued.
func (q *Queue) Enqueue(ctx context.Context, job *core.BackgroundJob) error {
	options, err := json.Marshal(job.Options)
	if err != nil {
		return fmt.Errorf("encode job options: %w", err)
	}

	err = q.pool.QueryRow(ctx,
		`INSERT INTO background_jobs (id, history_id, user_id, file_name, payload, options, status, total_rows)
		VALUES ($1, $2, $3, $4, $5, $6, 'queued', $7)
		RETURNING created_at`,
		database.ToPgUUID(job.ID), database.ToPgUUID(job.HistoryID), job.UserID, job.FileName,
		job.Payload, options, job.TotalRows,
	).Scan(&job.CreatedAt)
	if err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}
	job.Status = core.JobQueued

	q.logger.Info("job enqueued",
		"job_id", job.ID,
		"rows", job.TotalRows,
		"payload_bytes", len(job.Payload),
	)
	return nil
}

// Get returns a job without its payload.
func (q *Queue) Get(ctx context.Context, id string) (*core.BackgroundJob, error) {
	pgID := database.ToPgUUID(id)
	if !pgID.Valid {
		return nil, core.ErrNotFound
	}
	job, err := scanJob(q.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM background_jobs WHERE id = $1`, pgID), false)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// ReportProgress records how many rows a running job has processed.
func (q *Queue) ReportProgress(ctx context.Context, id string, processed int) error {
	_, err := q.pool.Exec(ctx,
		`UPDATE background_jobs SET processed_rows = $2 WHERE id = $1 AND status = 'running'`,
		database.ToPgUUID(id), processed)
	if err != nil {
		return fmt.Errorf("report progress: %w", err)
	}
	return nil
}

// Finish moves a job to a terminal status. errMsg is truncated.
func (q *Queue) Finish(ctx context.Context, id string, status core.JobStatus, errMsg string) error {
	if !status.Terminal() {
		return fmt.Errorf("finish job: %q is not a terminal status", status)
	}
	tag, err := q.pool.Exec(ctx,
		`UPDATE background_jobs SET status = $2, error = $3, finished_at = now(),
			processed_rows = CASE WHEN $4 THEN total_rows ELSE processed_rows END
		WHERE id = $1`,
		database.ToPgUUID(id), string(status), database.ToPgText(truncateError(errMsg)),
		status == core.JobCompleted)
	if err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

// Cancel moves a queued job to cancelled.
func (q *Queue) Cancel(ctx context.Context, id string) error {
	pgID := database.ToPgUUID(id)
	if !pgID.Valid {
		return core.ErrNotFound
	}
	tag, err := q.pool.Exec(ctx,
		`UPDATE background_jobs SET status = 'cancelled', finished_at = now()
		WHERE id = $1 AND status = 'queued'`, pgID)
	if err != nil {
		return fmt.Errorf("cancel job: %w", err)
	}
	if tag.RowsAffected() > 0 {
		q.logger.Info("job cancelled", "job_id", id)
		return nil
	}

	var exists bool
	if err := q.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM background_jobs WHERE id = $1)`, pgID,
	).Scan(&exists); err != nil {
		return fmt.Errorf("cancel job: %w", err)
	}
	if !exists {
		return core.ErrNotFound
	}
	return core.ErrJobNotCancellable
}

// Claim marks the oldest queued job running and returns it with its
// payload. It returns nil, nil when nothing is queued.
func (q *Queue) Claim(ctx context.Context) (*core.BackgroundJob, error) {
	job, err := scanJob(q.pool.QueryRow(ctx,
		`UPDATE background_jobs SET status = 'running', started_at = now()
		WHERE id = (
			SELECT id FROM background_jobs
			WHERE status = 'queued'
			ORDER BY created_at
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING `+jobColumns+`, payload`), true)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return job, nil
}

// RequeueInterrupted returns jobs left running by a process that died
// mid-import to the queue. Their transactions never committed, so running
// them again is safe. Call it once before starting workers.
func (q *Queue) RequeueInterrupted(ctx context.Context) (int64, error) {
	tag, err := q.pool.Exec(ctx,
		`UPDATE background_jobs SET status = 'queued', started_at = NULL, processed_rows = 0
		WHERE status = 'running'`)
	if err != nil {
		return 0, fmt.Errorf("requeue interrupted jobs: %w", err)
	}
	if n := tag.RowsAffected(); n > 0 {
		q.logger.Warn("requeued interrupted jobs", "count", n)
	}
	return tag.RowsAffected(), nil
}

// truncateError cuts msg to maxErrorLength bytes on a rune boundary so the
// stored text stays valid UTF-8.
func truncateError(msg string) string {
	if len(msg) <= maxErrorLength {
		return msg
	}
	cut := maxErrorLength - 3
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut] + "..."
}
