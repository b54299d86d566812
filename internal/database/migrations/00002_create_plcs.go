package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(upPLCs, downPLCs)
}

func upPLCs(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		CREATE TABLE plcs (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			equipment_id UUID NOT NULL REFERENCES equipment(id),
			tag_id VARCHAR(100) NOT NULL,
			description VARCHAR(255) NOT NULL,
			make VARCHAR(100) NOT NULL,
			model VARCHAR(100) NOT NULL,
			ip_address VARCHAR(45),
			firmware_version VARCHAR(50),
			equipment_type VARCHAR(50),
			tags TEXT[] NOT NULL DEFAULT '{}',
			created_by TEXT,
			updated_by TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			deleted_at TIMESTAMPTZ
		);

		-- Uniqueness only applies to live records.
		CREATE UNIQUE INDEX idx_plcs_tag_id ON plcs(tag_id) WHERE deleted_at IS NULL;
		CREATE UNIQUE INDEX idx_plcs_ip_address ON plcs(ip_address)
			WHERE deleted_at IS NULL AND ip_address IS NOT NULL;

		CREATE INDEX idx_plcs_equipment_id ON plcs(equipment_id);
		CREATE INDEX idx_plcs_make ON plcs(make);
		CREATE INDEX idx_plcs_created_at ON plcs(created_at);
		CREATE INDEX idx_plcs_tags ON plcs USING GIN(tags);
	`)
	return err
}

func downPLCs(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `DROP TABLE plcs;`)
	return err
}
