package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/inventory/internal/core"
)

const historyColumns = `id, user_id, file_name, status, total_rows, processed_rows, skipped_rows,
	errors, warnings, created, updated, options, is_background, job_id, duration_ms,
	created_at, completed_at`

// historyJSON holds the JSONB-encoded parts of a history record.
type historyJSON struct {
	errors, warnings, created, options []byte
}

func encodeHistory(h *core.ImportHistory) (historyJSON, error) {
	var (
		enc historyJSON
		err error
	)
	errs, warns := h.Errors, h.Warnings
	if errs == nil {
		errs = []core.Diagnostic{}
	}
	if warns == nil {
		warns = []core.Diagnostic{}
	}
	if enc.errors, err = json.Marshal(errs); err != nil {
		return enc, fmt.Errorf("encode errors: %w", err)
	}
	if enc.warnings, err = json.Marshal(warns); err != nil {
		return enc, fmt.Errorf("encode warnings: %w", err)
	}
	if enc.created, err = json.Marshal(h.Created); err != nil {
		return enc, fmt.Errorf("encode created counts: %w", err)
	}
	if enc.options, err = json.Marshal(h.Options); err != nil {
		return enc, fmt.Errorf("encode options: %w", err)
	}
	return enc, nil
}

// scanHistoryRow reads one row selected with historyColumns.
func scanHistoryRow(row pgx.Row) (*core.ImportHistory, error) {
	var (
		h                core.ImportHistory
		id, jobID        pgtype.UUID
		status           string
		errs, warns      []byte
		created, options []byte
		completedAt      pgtype.Timestamptz
	)
	err := row.Scan(
		&id, &h.UserID, &h.FileName, &status, &h.TotalRows, &h.ProcessedRows, &h.SkippedRows,
		&errs, &warns, &created, &h.Updated, &options, &h.IsBackground, &jobID, &h.DurationMs,
		&h.CreatedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	h.ID = PgUUIDToString(id)
	h.JobID = PgUUIDToString(jobID)
	h.Status = core.HistoryStatus(status)
	if completedAt.Valid {
		t := completedAt.Time
		h.CompletedAt = &t
	}
	if err := json.Unmarshal(errs, &h.Errors); err != nil {
		return nil, fmt.Errorf("decode errors: %w", err)
	}
	if err := json.Unmarshal(warns, &h.Warnings); err != nil {
		return nil, fmt.Errorf("decode warnings: %w", err)
	}
	if err := json.Unmarshal(created, &h.Created); err != nil {
		return nil, fmt.Errorf("decode created counts: %w", err)
	}
	if err := json.Unmarshal(options, &h.Options); err != nil {
		return nil, fmt.Errorf("decode options: %w", err)
	}
	return &h, nil
}

func toPgTimestamptz(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: *t, Valid: true}
}

// CreateHistory inserts h. The ID is generated when empty.
func (s *Store) CreateHistory(ctx context.Context, h *core.ImportHistory) error {
	enc, err := encodeHistory(h)
	if err != nil {
		return err
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now()
	}

	var id pgtype.UUID
	err = s.pool.QueryRow(ctx,
		`INSERT INTO import_history (id, user_id, file_name, status, total_rows, processed_rows,
			skipped_rows, errors, warnings, created, updated, options, is_background, job_id,
			duration_ms, created_at, completed_at)
		VALUES (COALESCE($1, gen_random_uuid()), $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING id`,
		ToPgUUID(h.ID), h.UserID, h.FileName, string(h.Status), h.TotalRows, h.ProcessedRows,
		h.SkippedRows, enc.errors, enc.warnings, enc.created, h.Updated, enc.options, h.IsBackground,
		ToPgUUID(h.JobID), h.DurationMs, h.CreatedAt, toPgTimestamptz(h.CompletedAt),
	).Scan(&id)
	if err != nil {
		return wrapWrite("insert import history", err)
	}
	h.ID = PgUUIDToString(id)
	return nil
}

// UpdateHistory overwrites the mutable columns of an existing record.
func (s *Store) UpdateHistory(ctx context.Context, h *core.ImportHistory) error {
	enc, err := encodeHistory(h)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE import_history SET status = $2, total_rows = $3, processed_rows = $4,
			skipped_rows = $5, errors = $6, warnings = $7, created = $8, updated = $9,
			duration_ms = $10, completed_at = $11
		WHERE id = $1`,
		ToPgUUID(h.ID), string(h.Status), h.TotalRows, h.ProcessedRows,
		h.SkippedRows, enc.errors, enc.warnings, enc.created, h.Updated,
		h.DurationMs, toPgTimestamptz(h.CompletedAt),
	)
	if err != nil {
		return wrapWrite("update import history", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

// GetHistory returns one record regardless of owner; ownership is checked in core.
func (s *Store) GetHistory(ctx context.Context, id string) (*core.ImportHistory, error) {
	pgID := ToPgUUID(id)
	if !pgID.Valid {
		return nil, core.ErrNotFound
	}
	h, err := scanHistoryRow(s.pool.QueryRow(ctx,
		`SELECT `+historyColumns+` FROM import_history WHERE id = $1`, pgID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get import history: %w", err)
	}
	return h, nil
}

// ListHistory returns a page of userID's records, newest first, and the total count.
func (s *Store) ListHistory(ctx context.Context, userID string, limit, offset int) ([]core.ImportHistory, int64, error) {
	// Always scoped to one owner, even for an empty user ID.
	var total int64
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM import_history WHERE user_id = $1`, userID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count import history: %w", err)
	}

	query := `SELECT ` + historyColumns + ` FROM import_history
		WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	args := []any{userID, limit, offset}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list import history: %w", err)
	}
	defer rows.Close()

	items := make([]core.ImportHistory, 0, limit)
	for rows.Next() {
		h, err := scanHistoryRow(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, *h)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// PurgeHistory deletes finished records created before the cutoff.
// Records still processing are kept regardless of age.
func (s *Store) PurgeHistory(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM import_history WHERE status <> 'processing' AND created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("purge import history: %w", err)
	}
	n := tag.RowsAffected()
	if n > 0 {
		s.logger.Info("purged import history", "rows", n, "before", before)
	}
	return n, nil
}
