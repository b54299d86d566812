package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(upImportHistory, downImportHistory)
}

func upImportHistory(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		CREATE TABLE import_history (
			id UUID PRIMARY KEY,
			user_id TEXT NOT NULL,
			file_name TEXT NOT NULL DEFAULT '',
			status VARCHAR(20) NOT NULL,
			total_rows INTEGER NOT NULL DEFAULT 0,
			processed_rows INTEGER NOT NULL DEFAULT 0,
			skipped_rows INTEGER NOT NULL DEFAULT 0,
			errors JSONB NOT NULL DEFAULT '[]',
			warnings JSONB NOT NULL DEFAULT '[]',
			created JSONB NOT NULL DEFAULT '{}',
			updated INTEGER NOT NULL DEFAULT 0,
			options JSONB NOT NULL DEFAULT '{}',
			is_background BOOLEAN NOT NULL DEFAULT false,
			job_id UUID,
			duration_ms BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			completed_at TIMESTAMPTZ,
			CONSTRAINT import_history_status_check
				CHECK (status IN ('processing', 'completed', 'failed', 'cancelled'))
		);

		CREATE INDEX idx_import_history_user_created ON import_history(user_id, created_at DESC);
		CREATE INDEX idx_import_history_created_at ON import_history(created_at);
	`)
	return err
}

func downImportHistory(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `DROP TABLE import_history;`)
	return err
}
