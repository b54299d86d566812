package database

import (
	"context"
	"fmt"

	"github.com/JonMunkholm/inventory/internal/core"
)

// QueryExport runs a query built by core.BuildExportQuery on the pool,
// outside any transaction.
func (s *Store) QueryExport(ctx context.Context, q core.ExportQuery) ([]core.ExportRow, error) {
	rows, err := s.pool.Query(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, fmt.Errorf("export query: %w", err)
	}
	defer rows.Close()

	out := make([]core.ExportRow, 0)
	for rows.Next() {
		var r core.ExportRow
		if err := rows.Scan(
			&r.SiteName, &r.CellName, &r.CellType, &r.EquipmentName,
			&r.TagID, &r.Description, &r.Make, &r.Model,
			&r.IPAddress, &r.FirmwareVersion, &r.EquipmentType,
			&r.Tags, &r.CreatedAt, &r.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan export row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("export rows: %w", err)
	}

	s.logger.Debug("export query finished", "rows", len(out), "predicates", len(q.Args))
	return out, nil
}
