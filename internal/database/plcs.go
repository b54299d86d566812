package database

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/inventory/internal/core"
)

const plcColumns = `id, equipment_id, tag_id, description, make, model,
	ip_address, firmware_version, equipment_type, tags,
	created_by, updated_by, created_at, updated_at`

// scanPLC reads one row selected with plcColumns.
func scanPLC(row pgx.Row) (*core.PLC, error) {
	var (
		id, equipmentID      pgtype.UUID
		ip, firmware, eqType pgtype.Text
		createdBy, updatedBy pgtype.Text
		plc                  core.PLC
	)
	err := row.Scan(
		&id, &equipmentID, &plc.TagID, &plc.Description, &plc.Make, &plc.Model,
		&ip, &firmware, &eqType, &plc.Tags,
		&createdBy, &updatedBy, &plc.CreatedAt, &plc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	plc.ID = PgUUIDToString(id)
	plc.EquipmentID = PgUUIDToString(equipmentID)
	plc.IPAddress = textValue(ip)
	plc.FirmwareVersion = textValue(firmware)
	plc.EquipmentType = textValue(eqType)
	plc.CreatedBy = textValue(createdBy)
	plc.UpdatedBy = textValue(updatedBy)
	return &plc, nil
}

func (t *Tx) findPLC(ctx context.Context, where string, arg any) (*core.PLC, error) {
	plc, err := scanPLC(t.tx.QueryRow(ctx,
		`SELECT `+plcColumns+` FROM plcs WHERE deleted_at IS NULL AND `+where+` FOR UPDATE`, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return plc, err
}

// FindPLCByTag locks and returns the live record with tagID.
func (t *Tx) FindPLCByTag(ctx context.Context, tagID string) (*core.PLC, error) {
	return t.findPLC(ctx, "tag_id = $1", tagID)
}

// FindPLCByIP locks and returns the live record with ip.
func (t *Tx) FindPLCByIP(ctx context.Context, ip string) (*core.PLC, error) {
	return t.findPLC(ctx, "ip_address = $1", ip)
}

func (t *Tx) CreatePLC(ctx context.Context, plc *core.PLC) error {
	var id pgtype.UUID
	err := t.tx.QueryRow(ctx,
		`INSERT INTO plcs (equipment_id, tag_id, description, make, model,
			ip_address, firmware_version, equipment_type, tags, created_by, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at`,
		ToPgUUID(plc.EquipmentID), plc.TagID, plc.Description, plc.Make, plc.Model,
		ToPgText(plc.IPAddress), ToPgText(plc.FirmwareVersion), ToPgText(plc.EquipmentType),
		nonNilTags(plc.Tags), ToPgText(plc.CreatedBy), ToPgText(plc.UpdatedBy),
	).Scan(&id, &plc.CreatedAt, &plc.UpdatedAt)
	if err != nil {
		return wrapWrite("insert plc "+plc.TagID, err)
	}
	plc.ID = PgUUIDToString(id)
	return nil
}

func (t *Tx) UpdatePLC(ctx context.Context, plc *core.PLC) error {
	err := t.tx.QueryRow(ctx,
		`UPDATE plcs SET equipment_id = $2, tag_id = $3, description = $4, make = $5, model = $6,
			ip_address = $7, firmware_version = $8, equipment_type = $9, tags = $10,
			updated_by = $11, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING updated_at`,
		ToPgUUID(plc.ID), ToPgUUID(plc.EquipmentID), plc.TagID, plc.Description, plc.Make, plc.Model,
		ToPgText(plc.IPAddress), ToPgText(plc.FirmwareVersion), ToPgText(plc.EquipmentType),
		nonNilTags(plc.Tags), ToPgText(plc.UpdatedBy),
	).Scan(&plc.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.ErrNotFound
	}
	return wrapWrite("update plc "+plc.TagID, err)
}
