// Package coretest provides in-memory implementations of the core store and
// queue interfaces for tests.
package coretest

import (
	"context"
	"errors"
	"net/netip"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/inventory/internal/core"
)

// ErrInjected is returned by operations named in MemStore.FailOn.
var ErrInjected = errors.New("injected store failure")

type state struct {
	sites     map[string]core.Site
	cells     map[string]core.Cell
	equipment map[string]core.Equipment
	plcs      map[string]core.PLC
}

func newState() state {
	return state{
		sites:     map[string]core.Site{},
		cells:     map[string]core.Cell{},
		equipment: map[string]core.Equipment{},
		plcs:      map[string]core.PLC{},
	}
}

func (s state) clone() state {
	c := newState()
	for k, v := range s.sites {
		c.sites[k] = v
	}
	for k, v := range s.cells {
		c.cells[k] = v
	}
	for k, v := range s.equipment {
		c.equipment[k] = v
	}
	for k, v := range s.plcs {
		v.Tags = slices.Clone(v.Tags)
		c.plcs[k] = v
	}
	return c
}

// MemStore is a transactional in-memory core.Store. Each transaction works
// on a snapshot which replaces the committed state on Commit.
type MemStore struct {
	mu        sync.Mutex
	committed state
	history   map[string]core.ImportHistory

	// FailOn makes the named Tx method (e.g. "CreatePLC", "Commit") fail.
	FailOn string

	Commits   int
	Rollbacks int
}

// NewMemStore returns an empty store.
func NewMemStore() *MemStore {
	return &MemStore{committed: newState(), history: map[string]core.ImportHistory{}}
}

// Counts reports committed entity totals.
func (m *MemStore) Counts() core.CreatedCounts {
	m.mu.Lock()
	defer m.mu.Unlock()
	return core.CreatedCounts{
		Sites:     len(m.committed.sites),
		Cells:     len(m.committed.cells),
		Equipment: len(m.committed.equipment),
		PLCs:      len(m.committed.plcs),
	}
}

// PLC returns the committed record with tagID.
func (m *MemStore) PLC(tagID string) (core.PLC, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.committed.plcs {
		if p.TagID == tagID {
			return p, true
		}
	}
	return core.PLC{}, false
}

// Seed commits a site and, when named, a cell and equipment below it.
func (m *MemStore) Seed(site, cell, equipment string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := core.Site{ID: uuid.NewString(), Name: site}
	m.committed.sites[s.ID] = s
	if cell == "" {
		return
	}
	c := core.Cell{ID: uuid.NewString(), SiteID: s.ID, Name: cell}
	m.committed.cells[c.ID] = c
	if equipment == "" {
		return
	}
	e := core.Equipment{ID: uuid.NewString(), CellID: c.ID, Name: equipment}
	m.committed.equipment[e.ID] = e
}

// Begin starts a snapshot transaction.
func (m *MemStore) Begin(ctx context.Context) (core.Tx, error) {
	if m.FailOn == "Begin" {
		return nil, ErrInjected
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return &memTx{store: m, st: m.committed.clone()}, nil
}

type memTx struct {
	store *MemStore
	st    state
	done  bool
}

func (t *memTx) fail(op string) error {
	if t.store.FailOn == op {
		return ErrInjected
	}
	return nil
}

func (t *memTx) FindSite(ctx context.Context, name string) (*core.Site, error) {
	if err := t.fail("FindSite"); err != nil {
		return nil, err
	}
	for _, s := range t.st.sites {
		if s.Name == name {
			return &s, nil
		}
	}
	return nil, nil
}

func (t *memTx) CreateSite(ctx context.Context, site *core.Site) error {
	if err := t.fail("CreateSite"); err != nil {
		return err
	}
	site.ID = uuid.NewString()
	site.CreatedAt = time.Now()
	t.st.sites[site.ID] = *site
	return nil
}

func (t *memTx) FindCell(ctx context.Context, siteID, name string) (*core.Cell, error) {
	if err := t.fail("FindCell"); err != nil {
		return nil, err
	}
	for _, c := range t.st.cells {
		if c.SiteID == siteID && c.Name == name {
			return &c, nil
		}
	}
	return nil, nil
}

func (t *memTx) CreateCell(ctx context.Context, cell *core.Cell) error {
	if err := t.fail("CreateCell"); err != nil {
		return err
	}
	cell.ID = uuid.NewString()
	cell.CreatedAt = time.Now()
	t.st.cells[cell.ID] = *cell
	return nil
}

func (t *memTx) FindEquipment(ctx context.Context, cellID, name string) (*core.Equipment, error) {
	if err := t.fail("FindEquipment"); err != nil {
		return nil, err
	}
	for _, e := range t.st.equipment {
		if e.CellID == cellID && e.Name == name {
			return &e, nil
		}
	}
	return nil, nil
}

func (t *memTx) CreateEquipment(ctx context.Context, eq *core.Equipment) error {
	if err := t.fail("CreateEquipment"); err != nil {
		return err
	}
	eq.ID = uuid.NewString()
	eq.CreatedAt = time.Now()
	t.st.equipment[eq.ID] = *eq
	return nil
}

func (t *memTx) FindPLCByTag(ctx context.Context, tagID string) (*core.PLC, error) {
	if err := t.fail("FindPLCByTag"); err != nil {
		return nil, err
	}
	for _, p := range t.st.plcs {
		if p.TagID == tagID {
			p.Tags = slices.Clone(p.Tags)
			return &p, nil
		}
	}
	return nil, nil
}

func (t *memTx) FindPLCByIP(ctx context.Context, ip string) (*core.PLC, error) {
	if err := t.fail("FindPLCByIP"); err != nil {
		return nil, err
	}
	for _, p := range t.st.plcs {
		if ip != "" && p.IPAddress == ip {
			p.Tags = slices.Clone(p.Tags)
			return &p, nil
		}
	}
	return nil, nil
}

func (t *memTx) uniqueViolation(p *core.PLC) error {
	for id, other := range t.st.plcs {
		if id == p.ID {
			continue
		}
		if other.TagID == p.TagID || (p.IPAddress != "" && other.IPAddress == p.IPAddress) {
			return errors.New("duplicate key value violates unique constraint")
		}
	}
	return nil
}

func (t *memTx) CreatePLC(ctx context.Context, plc *core.PLC) error {
	if err := t.fail("CreatePLC"); err != nil {
		return err
	}
	plc.ID = uuid.NewString()
	if err := t.uniqueViolation(plc); err != nil {
		return err
	}
	now := time.Now()
	plc.CreatedAt, plc.UpdatedAt = now, now
	t.st.plcs[plc.ID] = *plc
	return nil
}

func (t *memTx) UpdatePLC(ctx context.Context, plc *core.PLC) error {
	if err := t.fail("UpdatePLC"); err != nil {
		return err
	}
	if _, ok := t.st.plcs[plc.ID]; !ok {
		return core.ErrNotFound
	}
	if err := t.uniqueViolation(plc); err != nil {
		return err
	}
	plc.UpdatedAt = time.Now()
	t.st.plcs[plc.ID] = *plc
	return nil
}

func (t *memTx) Commit(ctx context.Context) error {
	if err := t.fail("Commit"); err != nil {
		return err
	}
	if t.done {
		return errors.New("tx closed")
	}
	t.done = true
	t.store.mu.Lock()
	t.store.committed = t.st
	t.store.Commits++
	t.store.mu.Unlock()
	return nil
}

func (t *memTx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	t.store.mu.Lock()
	t.store.Rollbacks++
	t.store.mu.Unlock()
	return nil
}

// CreateHistory stores h, assigning an ID if empty.
func (m *MemStore) CreateHistory(ctx context.Context, h *core.ImportHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	m.history[h.ID] = *h
	return nil
}

func (m *MemStore) UpdateHistory(ctx context.Context, h *core.ImportHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.history[h.ID]; !ok {
		return core.ErrNotFound
	}
	m.history[h.ID] = *h
	return nil
}

func (m *MemStore) GetHistory(ctx context.Context, id string) (*core.ImportHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.history[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return &h, nil
}

func (m *MemStore) ListHistory(ctx context.Context, userID string, limit, offset int) ([]core.ImportHistory, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []core.ImportHistory
	for _, h := range m.history {
		if h.UserID == userID {
			all = append(all, h)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := int64(len(all))
	if offset >= len(all) {
		return nil, total, nil
	}
	end := min(offset+limit, len(all))
	return all[offset:end], total, nil
}

func (m *MemStore) PurgeHistory(ctx context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, h := range m.history {
		if h.Status != core.HistoryProcessing && h.CreatedAt.Before(before) {
			delete(m.history, id)
			n++
		}
	}
	return n, nil
}

// QueryExport evaluates q.Filter against committed records.
func (m *MemStore) QueryExport(ctx context.Context, q core.ExportQuery) ([]core.ExportRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []core.ExportRow
	for _, p := range m.committed.plcs {
		e := m.committed.equipment[p.EquipmentID]
		c := m.committed.cells[e.CellID]
		s := m.committed.sites[c.SiteID]
		row := core.ExportRow{
			SiteName: s.Name, CellName: c.Name, CellType: c.CellType, EquipmentName: e.Name,
			TagID: p.TagID, Description: p.Description, Make: p.Make, Model: p.Model,
			IPAddress: p.IPAddress, FirmwareVersion: p.FirmwareVersion, EquipmentType: p.EquipmentType,
			Tags: slices.Clone(p.Tags), CreatedAt: p.CreatedAt, UpdatedAt: p.UpdatedAt,
		}
		if matches(q.Filter, row) {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TagID < out[j].TagID })
	return out, nil
}

func matches(f core.ExportFilter, r core.ExportRow) bool {
	if len(f.Sites) > 0 && !slices.Contains(f.Sites, r.SiteName) {
		return false
	}
	if len(f.EquipmentTypes) > 0 && !slices.ContainsFunc(f.EquipmentTypes, func(t string) bool {
		return strings.EqualFold(t, r.EquipmentType)
	}) {
		return false
	}
	if len(f.Manufacturers) > 0 && !slices.Contains(f.Manufacturers, r.Make) {
		return false
	}
	if f.DateFrom != nil && r.CreatedAt.Before(*f.DateFrom) {
		return false
	}
	if f.DateTo != nil && r.CreatedAt.After(*f.DateTo) {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Search)); q != "" {
		hay := strings.ToLower(strings.Join([]string{r.Description, r.Make, r.Model, r.TagID}, "\x00"))
		if !strings.Contains(hay, q) {
			return false
		}
	}
	if f.IPRange != "" {
		prefix, err := netip.ParsePrefix(f.IPRange)
		if err != nil {
			return false
		}
		addr, err := netip.ParseAddr(r.IPAddress)
		if err != nil || !prefix.Contains(addr) {
			return false
		}
	}
	if len(f.Tags) > 0 && !slices.ContainsFunc(f.Tags, func(t string) bool { return slices.Contains(r.Tags, t) }) {
		return false
	}
	return true
}
