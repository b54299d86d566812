package core

// export.go builds the denormalising export query and serialises its rows.
//
// Every filter present in ExportFilter becomes one AND-ed predicate; an
// empty filter returns every non-deleted PLC record. Column names in the
// output match the import layout so an export with hierarchy can be fed
// straight back into Import.

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/inventory/internal/logging"
	"github.com/JonMunkholm/inventory/internal/metrics"
)

// ExportFormat selects the serialisation.
type ExportFormat string

const (
	FormatCSV  ExportFormat = "csv"
	FormatJSON ExportFormat = "json"
	FormatXLSX ExportFormat = "xlsx"
)

// ParseExportFormat accepts csv, json or xlsx (case-insensitive, default csv).
func ParseExportFormat(s string) (ExportFormat, error) {
	switch f := ExportFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatCSV, nil
	case FormatCSV, FormatJSON, FormatXLSX:
		return f, nil
	default:
		return "", fmt.Errorf("%w: unsupported export format %q", ErrInvalidOptions, s)
	}
}

func (f ExportFormat) contentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "text/csv; charset=utf-8"
	}
}

// ExportFilter is a conjunction of optional predicates.
type ExportFilter struct {
	Sites          []string   `json:"sites,omitempty"`
	EquipmentTypes []string   `json:"equipmentTypes,omitempty"`
	Manufacturers  []string   `json:"manufacturers,omitempty"`
	DateFrom       *time.Time `json:"dateFrom,omitempty"`
	DateTo         *time.Time `json:"dateTo,omitempty"`
	Search         string     `json:"search,omitempty"`
	IPRange        string     `json:"ipRange,omitempty"`
	Tags           []string   `json:"tags,omitempty"`
}

// Validate rejects malformed CIDR ranges and inverted date ranges.
func (f ExportFilter) Validate() error {
	if f.IPRange != "" {
		if _, err := netip.ParsePrefix(f.IPRange); err != nil {
			return fmt.Errorf("%w: ipRange %q is not a CIDR range", ErrInvalidOptions, f.IPRange)
		}
	}
	if f.DateFrom != nil && f.DateTo != nil && f.DateTo.Before(*f.DateFrom) {
		return fmt.Errorf("%w: dateTo is before dateFrom", ErrInvalidOptions)
	}
	return nil
}

// ExportRequest describes one export.
type ExportRequest struct {
	Filter           ExportFilter `json:"filter"`
	Format           ExportFormat `json:"format"`
	IncludeHierarchy bool         `json:"includeHierarchy"`
	IncludeTags      bool         `json:"includeTags"`
}

// ExportRow is one denormalised PLC record.
type ExportRow struct {
	SiteName        string
	CellName        string
	CellType        string
	EquipmentName   string
	TagID           string
	Description     string
	Make            string
	Model           string
	IPAddress       string
	FirmwareVersion string
	EquipmentType   string
	Tags            []string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ExportQuery is the SQL produced for a filter. Filter is kept alongside
// so non-SQL stores can evaluate it directly.
type ExportQuery struct {
	SQL    string
	Args   []any
	Filter ExportFilter
}

const exportSelect = `SELECT s.name, c.name, COALESCE(c.cell_type, ''), e.name,
	p.tag_id, p.description, p.make, p.model,
	COALESCE(p.ip_address, ''), COALESCE(p.firmware_version, ''), COALESCE(p.equipment_type, ''),
	p.tags, p.created_at, p.updated_at
FROM plcs p
JOIN equipment e ON e.id = p.equipment_id
JOIN cells c ON c.id = e.cell_id
JOIN sites s ON s.id = c.site_id`

const exportOrder = ` ORDER BY s.name, c.name, e.name, p.tag_id`

// BuildExportQuery translates f into a single parameterised query.
func BuildExportQuery(f ExportFilter) (ExportQuery, error) {
	if err := f.Validate(); err != nil {
		return ExportQuery{}, err
	}

	types := make([]string, 0, len(f.EquipmentTypes))
	for _, t := range f.EquipmentTypes {
		if c, ok := canonicalEnum(strings.TrimSpace(t), EquipmentTypes); ok {
			types = append(types, c)
		} else if t = strings.TrimSpace(t); t != "" {
			types = append(types, t)
		}
	}

	wb := NewWhereBuilder()
	wb.AddRaw("p.deleted_at IS NULL")
	wb.AddIn("s.name", f.Sites)
	wb.AddIn("p.equipment_type", types)
	wb.AddIn("p.make", f.Manufacturers)
	wb.AddTimestampRange("p.created_at", f.DateFrom, f.DateTo)
	wb.AddSearch(f.Search, "p.description", "p.make", "p.model", "p.tag_id")
	wb.AddCIDR("p.ip_address", f.IPRange)
	wb.AddArrayOverlap("p.tags", f.Tags)

	where, args := wb.Build()
	return ExportQuery{SQL: exportSelect + where + exportOrder, Args: args, Filter: f}, nil
}

// ExportPayload is the serialised export.
type ExportPayload struct {
	Data        []byte
	ContentType string
	FileName    string
	Rows        int
}

// Export runs the filtered query and serialises the result.
func (s *Service) Export(ctx context.Context, req ExportRequest) (*ExportPayload, error) {
	if req.Format == "" {
		req.Format = FormatCSV
	}
	if _, err := ParseExportFormat(string(req.Format)); err != nil {
		return nil, err
	}

	q, err := BuildExportQuery(req.Filter)
	if err != nil {
		return nil, err
	}

	rows, err := s.store.QueryExport(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query export rows: %w", err)
	}

	payload, err := SerializeExport(rows, req, s.now())
	if err != nil {
		return nil, err
	}

	metrics.ExportsTotal.WithLabelValues(string(req.Format)).Inc()
	metrics.ExportRows.Add(float64(payload.Rows))
	logging.FromContext(ctx).Info("export generated",
		"format", req.Format,
		"rows", payload.Rows,
		"bytes", len(payload.Data),
	)
	s.notify(ctx, AuditEvent{
		Action:    ActionExport,
		UserID:    UserFromContext(ctx),
		FileName:  payload.FileName,
		Status:    string(HistoryCompleted),
		TotalRows: payload.Rows,
	})
	return payload, nil
}

// ExportFileName returns plc-export-YYYYMMDD-HHMMSS.<ext>.
func ExportFileName(at time.Time, f ExportFormat) string {
	return fmt.Sprintf("plc-export-%s.%s", at.UTC().Format("20060102-150405"), f)
}

func exportColumns(req ExportRequest) []string {
	var cols []string
	if req.IncludeHierarchy {
		cols = append(cols, ColSiteName, ColCellName, ColCellType, ColEquipmentName)
	}
	cols = append(cols,
		ColTagID, ColDescription, ColMake, ColModel,
		ColIPAddress, ColFirmwareVersion, ColEquipmentType,
	)
	if req.IncludeTags {
		cols = append(cols, ColTags)
	}
	return append(cols, "created_at", "updated_at")
}

func exportValue(r ExportRow, col string) string {
	switch col {
	case ColSiteName:
		return r.SiteName
	case ColCellName:
		return r.CellName
	case ColCellType:
		return r.CellType
	case ColEquipmentName:
		return r.EquipmentName
	case ColTagID:
		return r.TagID
	case ColDescription:
		return r.Description
	case ColMake:
		return r.Make
	case ColModel:
		return r.Model
	case ColIPAddress:
		return r.IPAddress
	case ColFirmwareVersion:
		return r.FirmwareVersion
	case ColEquipmentType:
		return r.EquipmentType
	case ColTags:
		return strings.Join(r.Tags, ";")
	case "created_at":
		return r.CreatedAt.UTC().Format(time.RFC3339)
	case "updated_at":
		return r.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return ""
}

// SerializeExport renders rows in req.Format.
func SerializeExport(rows []ExportRow, req ExportRequest, at time.Time) (*ExportPayload, error) {
	cols := exportColumns(req)

	var (
		data []byte
		err  error
	)
	switch req.Format {
	case FormatJSON:
		data, err = exportJSON(rows, cols, req.IncludeTags)
	case FormatXLSX:
		data, err = exportXLSX(rows, cols)
	default:
		req.Format = FormatCSV
		data, err = exportCSV(rows, cols)
	}
	if err != nil {
		return nil, fmt.Errorf("serialize %s export: %w", req.Format, err)
	}

	return &ExportPayload{
		Data:        data,
		ContentType: req.Format.contentType(),
		FileName:    ExportFileName(at, req.Format),
		Rows:        len(rows),
	}, nil
}

func exportCSV(rows []ExportRow, cols []string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(cols); err != nil {
		return nil, err
	}
	record := make([]string, len(cols))
	for _, r := range rows {
		for i, c := range cols {
			record[i] = exportValue(r, c)
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func exportJSON(rows []ExportRow, cols []string, includeTags bool) ([]byte, error) {
	out := make([]map[string]any, 0, len(rows))
	for _, r := range rows {
		obj := make(map[string]any, len(cols))
		for _, c := range cols {
			if c == ColTags {
				continue
			}
			obj[c] = exportValue(r, c)
		}
		if includeTags {
			tags := r.Tags
			if tags == nil {
				tags = []string{}
			}
			obj[ColTags] = tags
		}
		out = append(out, obj)
	}
	return json.MarshalIndent(out, "", "  ")
}

const exportSheet = "PLCs"

func exportXLSX(rows []ExportRow, cols []string) ([]byte, error) {
	records := make([][]string, 0, len(rows))
	for _, r := range rows {
		rec := make([]string, len(cols))
		for i, c := range cols {
			rec[i] = exportValue(r, c)
		}
		records = append(records, rec)
	}
	return writeWorkbook(exportSheet, cols, records)
}

// writeWorkbook renders a single-sheet workbook with a bold header row.
func writeWorkbook(sheet string, header []string, records [][]string) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return nil, err
	}

	writeRow := func(n int, values []string) error {
		cell, err := excelize.CoordinatesToCellName(1, n)
		if err != nil {
			return err
		}
		row := make([]any, len(values))
		for i, v := range values {
			row[i] = v
		}
		return f.SetSheetRow(sheet, cell, &row)
	}

	if err := writeRow(1, header); err != nil {
		return nil, err
	}
	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		last, _ := excelize.CoordinatesToCellName(len(header), 1)
		_ = f.SetCellStyle(sheet, "A1", last, style)
	}
	for i, rec := range records {
		if err := writeRow(i+2, rec); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
