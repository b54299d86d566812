package core

import (
	"context"
	"fmt"
	"strings"
)

// ResolveOutcome says how a hierarchy level was satisfied.
type ResolveOutcome int

const (
	OutcomeFound ResolveOutcome = iota
	OutcomeNotFound
	OutcomeCreated
)

func (o ResolveOutcome) String() string {
	switch o {
	case OutcomeFound:
		return "found"
	case OutcomeCreated:
		return "created"
	default:
		return "not_found"
	}
}

// HierarchyKey identifies a row's position in site → cell → equipment.
type HierarchyKey struct {
	SiteName      string
	CellName      string
	EquipmentName string
}

// HierarchyResult is what the resolver produced for one row. When any level
// is OutcomeNotFound, Diagnostic is set and the deeper levels are untouched.
type HierarchyResult struct {
	Site, Cell, Equipment ResolveOutcome
	SiteID                string
	CellID                string
	EquipmentID           string
	Diagnostic            *Diagnostic
}

// Resolved reports whether every level was found or created.
func (r HierarchyResult) Resolved() bool { return r.Diagnostic == nil }

// hierarchyResolver finds or creates ancestors inside one import transaction.
// It caches by name so a file with many rows under the same equipment costs
// one lookup per distinct entity.
type hierarchyResolver struct {
	tx            Tx
	userID        string
	createMissing bool

	sites     map[string]string // name → id
	cells     map[string]string // siteID/name → id
	equipment map[string]string // cellID/name → id

	created CreatedCounts
}

func newHierarchyResolver(tx Tx, userID string, createMissing bool) *hierarchyResolver {
	return &hierarchyResolver{
		tx:            tx,
		userID:        userID,
		createMissing: createMissing,
		sites:         make(map[string]string),
		cells:         make(map[string]string),
		equipment:     make(map[string]string),
	}
}

func keyFromRow(row RawRow) HierarchyKey {
	return HierarchyKey{
		SiteName:      row.Get(ColSiteName),
		CellName:      row.Get(ColCellName),
		EquipmentName: row.Get(ColEquipmentName),
	}
}

// Resolve walks the chain for row. A returned error is a persistence fault;
// missing ancestors are reported through HierarchyResult.Diagnostic.
func (h *hierarchyResolver) Resolve(ctx context.Context, row RawRow) (HierarchyResult, error) {
	key := keyFromRow(row)
	var res HierarchyResult

	siteID, outcome, err := h.site(ctx, key.SiteName)
	if err != nil {
		return res, err
	}
	res.Site = outcome
	if outcome == OutcomeNotFound {
		d := errorDiag(row.Line, ColSiteName, key.SiteName, "Site does not exist")
		res.Diagnostic = &d
		return res, nil
	}
	res.SiteID = siteID

	cellType, _ := canonicalEnum(row.Get(ColCellType), CellTypes)
	cellID, outcome, err := h.cell(ctx, siteID, key.CellName, cellType)
	if err != nil {
		return res, err
	}
	res.Cell = outcome
	if outcome == OutcomeNotFound {
		d := errorDiag(row.Line, ColCellName, key.CellName, "Cell does not exist")
		res.Diagnostic = &d
		return res, nil
	}
	res.CellID = cellID

	eqID, outcome, err := h.equipmentFor(ctx, cellID, key.EquipmentName)
	if err != nil {
		return res, err
	}
	res.Equipment = outcome
	if outcome == OutcomeNotFound {
		d := errorDiag(row.Line, ColEquipmentName, key.EquipmentName, "Equipment does not exist")
		res.Diagnostic = &d
		return res, nil
	}
	res.EquipmentID = eqID
	return res, nil
}

func (h *hierarchyResolver) site(ctx context.Context, name string) (string, ResolveOutcome, error) {
	if id, ok := h.sites[name]; ok {
		return id, OutcomeFound, nil
	}

	existing, err := h.tx.FindSite(ctx, name)
	if err != nil {
		return "", OutcomeNotFound, fmt.Errorf("find site %q: %w", name, err)
	}
	if existing != nil {
		h.sites[name] = existing.ID
		return existing.ID, OutcomeFound, nil
	}
	if !h.createMissing {
		return "", OutcomeNotFound, nil
	}

	site := &Site{Name: name, CreatedBy: h.userID}
	if err := h.tx.CreateSite(ctx, site); err != nil {
		return "", OutcomeNotFound, fmt.Errorf("create site %q: %w", name, err)
	}
	h.sites[name] = site.ID
	h.created.Sites++
	return site.ID, OutcomeCreated, nil
}

func (h *hierarchyResolver) cell(ctx context.Context, siteID, name, cellType string) (string, ResolveOutcome, error) {
	cacheKey := siteID + "/" + name
	if id, ok := h.cells[cacheKey]; ok {
		return id, OutcomeFound, nil
	}

	existing, err := h.tx.FindCell(ctx, siteID, name)
	if err != nil {
		return "", OutcomeNotFound, fmt.Errorf("find cell %q: %w", name, err)
	}
	if existing != nil {
		h.cells[cacheKey] = existing.ID
		return existing.ID, OutcomeFound, nil
	}
	if !h.createMissing {
		return "", OutcomeNotFound, nil
	}

	cell := &Cell{SiteID: siteID, Name: name, CellType: strings.ToUpper(cellType), CreatedBy: h.userID}
	if err := h.tx.CreateCell(ctx, cell); err != nil {
		return "", OutcomeNotFound, fmt.Errorf("create cell %q: %w", name, err)
	}
	h.cells[cacheKey] = cell.ID
	h.created.Cells++
	return cell.ID, OutcomeCreated, nil
}

func (h *hierarchyResolver) equipmentFor(ctx context.Context, cellID, name string) (string, ResolveOutcome, error) {
	cacheKey := cellID + "/" + name
	if id, ok := h.equipment[cacheKey]; ok {
		return id, OutcomeFound, nil
	}

	existing, err := h.tx.FindEquipment(ctx, cellID, name)
	if err != nil {
		return "", OutcomeNotFound, fmt.Errorf("find equipment %q: %w", name, err)
	}
	if existing != nil {
		h.equipment[cacheKey] = existing.ID
		return existing.ID, OutcomeFound, nil
	}
	if !h.createMissing {
		return "", OutcomeNotFound, nil
	}

	eq := &Equipment{CellID: cellID, Name: name, CreatedBy: h.userID}
	if err := h.tx.CreateEquipment(ctx, eq); err != nil {
		return "", OutcomeNotFound, fmt.Errorf("create equipment %q: %w", name, err)
	}
	h.equipment[cacheKey] = eq.ID
	h.created.Equipment++
	return eq.ID, OutcomeCreated, nil
}
