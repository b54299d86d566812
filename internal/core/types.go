// Package core provides the business logic for bulk equipment imports and exports.
// This package has no transport dependencies and can be used by any frontend.
package core

import (
	"context"
	"fmt"
	"time"
)

// Severity classifies a diagnostic. Only errors block a commit.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Diagnostic is a single field-level finding produced while validating or
// processing a row. Row is the 1-based source line (1 is the header).
type Diagnostic struct {
	Row      int      `json:"row"`
	Column   string   `json:"column,omitempty"`
	Value    string   `json:"value,omitempty"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

func (d Diagnostic) Error() string {
	if d.Column != "" {
		return fmt.Sprintf("row %d: %s: %s", d.Row, d.Column, d.Message)
	}
	return fmt.Sprintf("row %d: %s", d.Row, d.Message)
}

func errorDiag(row int, column, value, message string) Diagnostic {
	return Diagnostic{Row: row, Column: column, Value: value, Message: message, Severity: SeverityError}
}

func warningDiag(row int, column, value, message string) Diagnostic {
	return Diagnostic{Row: row, Column: column, Value: value, Message: message, Severity: SeverityWarning}
}

// hasErrors reports whether any diagnostic has error severity.
func hasErrors(diags []Diagnostic) bool {
	for _, d := range diags {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Site is the top of the hierarchy. Names are globally unique.
type Site struct {
	ID        string
	Name      string
	CreatedBy string
	CreatedAt time.Time
}

// Cell belongs to a site. Names are unique within a site.
type Cell struct {
	ID        string
	SiteID    string
	Name      string
	CellType  string
	CreatedBy string
	CreatedAt time.Time
}

// Equipment belongs to a cell. Names are unique within a cell.
type Equipment struct {
	ID        string
	CellID    string
	Name      string
	CreatedBy string
	CreatedAt time.Time
}

// PLC is the leaf record imported per row. TagID is unique among
// non-deleted records, and so is IPAddress when set.
type PLC struct {
	ID              string
	EquipmentID     string
	TagID           string
	Description     string
	Make            string
	Model           string
	IPAddress       string
	FirmwareVersion string
	EquipmentType   string
	Tags            []string
	CreatedBy       string
	UpdatedBy       string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Tx is the transactional view of the store used by a single import.
// Find methods return (nil, nil) when nothing matches.
type Tx interface {
	FindSite(ctx context.Context, name string) (*Site, error)
	CreateSite(ctx context.Context, site *Site) error
	FindCell(ctx context.Context, siteID, name string) (*Cell, error)
	CreateCell(ctx context.Context, cell *Cell) error
	FindEquipment(ctx context.Context, cellID, name string) (*Equipment, error)
	CreateEquipment(ctx context.Context, eq *Equipment) error

	FindPLCByTag(ctx context.Context, tagID string) (*PLC, error)
	FindPLCByIP(ctx context.Context, ip string) (*PLC, error)
	CreatePLC(ctx context.Context, plc *PLC) error
	UpdatePLC(ctx context.Context, plc *PLC) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// HistoryStore persists import history records.
type HistoryStore interface {
	CreateHistory(ctx context.Context, h *ImportHistory) error
	UpdateHistory(ctx context.Context, h *ImportHistory) error
	GetHistory(ctx context.Context, id string) (*ImportHistory, error)
	ListHistory(ctx context.Context, userID string, limit, offset int) ([]ImportHistory, int64, error)
	PurgeHistory(ctx context.Context, before time.Time) (int64, error)
}

// Store is everything the service needs from the relational store.
type Store interface {
	HistoryStore
	Begin(ctx context.Context) (Tx, error)
	QueryExport(ctx context.Context, q ExportQuery) ([]ExportRow, error)
}
