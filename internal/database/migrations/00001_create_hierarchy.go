// Package migrations holds the schema as goose Go migrations. Importing the
// package registers them; database.Migrate applies them.
package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(upHierarchy, downHierarchy)
}

func upHierarchy(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		CREATE TABLE sites (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			name VARCHAR(100) NOT NULL,
			created_by TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE UNIQUE INDEX idx_sites_name ON sites(name);

		CREATE TABLE cells (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			site_id UUID NOT NULL REFERENCES sites(id) ON DELETE CASCADE,
			name VARCHAR(100) NOT NULL,
			cell_type VARCHAR(50),
			created_by TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE UNIQUE INDEX idx_cells_site_name ON cells(site_id, name);

		CREATE TABLE equipment (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			cell_id UUID NOT NULL REFERENCES cells(id) ON DELETE CASCADE,
			name VARCHAR(100) NOT NULL,
			created_by TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE UNIQUE INDEX idx_equipment_cell_name ON equipment(cell_id, name);
	`)
	return err
}

func downHierarchy(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		DROP TABLE equipment;
		DROP TABLE cells;
		DROP TABLE sites;
	`)
	return err
}
