package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(upBackgroundJobs, downBackgroundJobs)
}

func upBackgroundJobs(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		CREATE TABLE background_jobs (
			id UUID PRIMARY KEY,
			history_id UUID NOT NULL REFERENCES import_history(id) ON DELETE CASCADE,
			user_id TEXT NOT NULL,
			file_name TEXT NOT NULL DEFAULT '',
			payload BYTEA NOT NULL,
			options JSONB NOT NULL DEFAULT '{}',
			status VARCHAR(20) NOT NULL DEFAULT 'queued',
			total_rows INTEGER NOT NULL DEFAULT 0,
			processed_rows INTEGER NOT NULL DEFAULT 0,
			error TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			started_at TIMESTAMPTZ,
			finished_at TIMESTAMPTZ,
			CONSTRAINT background_jobs_status_check
				CHECK (status IN ('queued', 'running', 'completed', 'failed', 'cancelled'))
		);

		-- Claim scans only queued jobs in arrival order.
		CREATE INDEX idx_background_jobs_queued ON background_jobs(created_at) WHERE status = 'queued';
	`)
	return err
}

func downBackgroundJobs(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `DROP TABLE background_jobs;`)
	return err
}
