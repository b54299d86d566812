package database

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/inventory/internal/core"
)

func (t *Tx) FindSite(ctx context.Context, name string) (*core.Site, error) {
	var (
		id        pgtype.UUID
		createdBy pgtype.Text
		site      = core.Site{Name: name}
	)
	err := t.tx.QueryRow(ctx,
		`SELECT id, created_by, created_at FROM sites WHERE name = $1`, name,
	).Scan(&id, &createdBy, &site.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	site.ID = PgUUIDToString(id)
	site.CreatedBy = textValue(createdBy)
	return &site, nil
}

func (t *Tx) CreateSite(ctx context.Context, site *core.Site) error {
	var id pgtype.UUID
	err := t.tx.QueryRow(ctx,
		`INSERT INTO sites (name, created_by) VALUES ($1, $2) RETURNING id, created_at`,
		site.Name, ToPgText(site.CreatedBy),
	).Scan(&id, &site.CreatedAt)
	if err != nil {
		return wrapWrite("insert site", err)
	}
	site.ID = PgUUIDToString(id)
	return nil
}

func (t *Tx) FindCell(ctx context.Context, siteID, name string) (*core.Cell, error) {
	var (
		id        pgtype.UUID
		cellType  pgtype.Text
		createdBy pgtype.Text
		cell      = core.Cell{SiteID: siteID, Name: name}
	)
	err := t.tx.QueryRow(ctx,
		`SELECT id, cell_type, created_by, created_at FROM cells WHERE site_id = $1 AND name = $2`,
		ToPgUUID(siteID), name,
	).Scan(&id, &cellType, &createdBy, &cell.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	cell.ID = PgUUIDToString(id)
	cell.CellType = textValue(cellType)
	cell.CreatedBy = textValue(createdBy)
	return &cell, nil
}

func (t *Tx) CreateCell(ctx context.Context, cell *core.Cell) error {
	var id pgtype.UUID
	err := t.tx.QueryRow(ctx,
		`INSERT INTO cells (site_id, name, cell_type, created_by)
		VALUES ($1, $2, $3, $4) RETURNING id, created_at`,
		ToPgUUID(cell.SiteID), cell.Name, ToPgText(cell.CellType), ToPgText(cell.CreatedBy),
	).Scan(&id, &cell.CreatedAt)
	if err != nil {
		return wrapWrite("insert cell", err)
	}
	cell.ID = PgUUIDToString(id)
	return nil
}

func (t *Tx) FindEquipment(ctx context.Context, cellID, name string) (*core.Equipment, error) {
	var (
		id        pgtype.UUID
		createdBy pgtype.Text
		eq        = core.Equipment{CellID: cellID, Name: name}
	)
	err := t.tx.QueryRow(ctx,
		`SELECT id, created_by, created_at FROM equipment WHERE cell_id = $1 AND name = $2`,
		ToPgUUID(cellID), name,
	).Scan(&id, &createdBy, &eq.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	eq.ID = PgUUIDToString(id)
	eq.CreatedBy = textValue(createdBy)
	return &eq, nil
}

func (t *Tx) CreateEquipment(ctx context.Context, eq *core.Equipment) error {
	var id pgtype.UUID
	err := t.tx.QueryRow(ctx,
		`INSERT INTO equipment (cell_id, name, created_by) VALUES ($1, $2, $3) RETURNING id, created_at`,
		ToPgUUID(eq.CellID), eq.Name, ToPgText(eq.CreatedBy),
	).Scan(&id, &eq.CreatedAt)
	if err != nil {
		return wrapWrite("insert equipment", err)
	}
	eq.ID = PgUUIDToString(id)
	return nil
}
