// Package store provides an in-memory billing.Store.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/Jelela/mishorasmed/billing"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory enforces the same uniqueness rules as the SQL stores: one closure per
// natural key and one status per (closure, group).
type Memory struct {
	mu sync.RWMutex

	assignments map[string]billing.HospitalAssignment
	groups      map[string]billing.ReportGroup
	acts        map[string]billing.MedicalAct

	entries    map[string]billing.Entry
	entryOrder []string

	closures    map[string]billing.HospitalClosure
	closureKeys map[closureKey]string

	statuses   map[string]billing.ClosureGroupStatus
	statusKeys map[statusKey]string
}

type closureKey struct {
	UserID     string
	HospitalID string
	Start      string
	End        string
}

type statusKey struct {
	ClosureID string
	GroupKey  string
}

func keyOf(k billing.ClosureKey) closureKey {
	return closureKey{
		UserID:     k.UserID,
		HospitalID: k.HospitalID,
		Start:      k.Calculated.Start.String(),
		End:        k.Calculated.End.String(),
	}
}

func NewMemory() *Memory {
	return &Memory{
		assignments: make(map[string]billing.HospitalAssignment),
		groups:      make(map[string]billing.ReportGroup),
		acts:        make(map[string]billing.MedicalAct),
		entries:     make(map[string]billing.Entry),
		closures:    make(map[string]billing.HospitalClosure),
		closureKeys: make(map[closureKey]string),
		statuses:    make(map[string]billing.ClosureGroupStatus),
		statusKeys:  make(map[statusKey]string),
	}
}

// =============================================================================
// CATALOG
// =============================================================================

func (m *Memory) PutAssignment(_ context.Context, a billing.HospitalAssignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assignments[a.ID] = a
	return nil
}

func (m *Memory) PutGroup(_ context.Context, g billing.ReportGroup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groups[g.ID] = g
	return nil
}

func (m *Memory) PutAct(_ context.Context, a billing.MedicalAct) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acts[a.ID] = a
	return nil
}

func (m *Memory) GetAct(_ context.Context, actID string) (billing.MedicalAct, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	act, ok := m.acts[actID]
	if !ok {
		return billing.MedicalAct{}, billing.NotFound("get act", actID)
	}
	return act, nil
}

func (m *Memory) ListActs(_ context.Context, hospitalID string) ([]billing.MedicalAct, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []billing.MedicalAct
	for _, a := range m.acts {
		if a.HospitalID == hospitalID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) ListActiveGroups(_ context.Context, hospitalID string) ([]billing.ReportGroup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []billing.ReportGroup
	for _, g := range m.groups {
		if g.HospitalID == hospitalID && g.Active {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) GetAssignment(_ context.Context, userID, hospitalID string) (billing.HospitalAssignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.assignments[hospitalID]
	if !ok || a.UserID != userID {
		return billing.HospitalAssignment{}, billing.NotFound("get assignment", hospitalID)
	}
	return a, nil
}

func (m *Memory) ListAssignments(_ context.Context, userID string) ([]billing.HospitalAssignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []billing.HospitalAssignment
	for _, a := range m.assignments {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) DeleteAssignment(_ context.Context, userID, hospitalID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assignments[hospitalID]
	if !ok || a.UserID != userID {
		return billing.NotFound("delete assignment", hospitalID)
	}

	for id, c := range m.closures {
		if c.HospitalID != hospitalID {
			continue
		}
		for sid, st := range m.statuses {
			if st.ClosureID == id {
				delete(m.statusKeys, statusKey{ClosureID: id, GroupKey: st.GroupKey()})
				delete(m.statuses, sid)
			}
		}
		delete(m.closureKeys, keyOf(c.Key()))
		delete(m.closures, id)
	}

	order := m.entryOrder[:0]
	for _, id := range m.entryOrder {
		if m.entries[id].HospitalID == hospitalID {
			delete(m.entries, id)
			continue
		}
		order = append(order, id)
	}
	m.entryOrder = order

	for id, act := range m.acts {
		if act.HospitalID == hospitalID {
			delete(m.acts, id)
		}
	}
	for id, g := range m.groups {
		if g.HospitalID == hospitalID {
			delete(m.groups, id)
		}
	}
	delete(m.assignments, hospitalID)
	return nil
}

// =============================================================================
// ENTRIES
// =============================================================================

func (m *Memory) ListEntries(_ context.Context, q billing.EntryQuery) ([]billing.EntryWithAct, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []billing.EntryWithAct
	for _, id := range m.entryOrder {
		e := m.entries[id]
		if e.UserID != q.UserID || e.HospitalID != q.HospitalID || !q.Period.Contains(e.Date) {
			continue
		}
		act, ok := m.acts[e.ActID]
		if !ok {
			continue
		}
		row := billing.EntryWithAct{Entry: e, Act: act}
		if act.ReportGroupID != nil {
			if g, ok := m.groups[*act.ReportGroupID]; ok {
				row.Group = &g
			}
		}
		out = append(out, row)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Entry.Date.Before(out[j].Entry.Date)
	})
	return out, nil
}

func (m *Memory) GetEntry(_ context.Context, userID, entryID string) (billing.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[entryID]
	if !ok || e.UserID != userID {
		return billing.Entry{}, billing.NotFound("get entry", entryID)
	}
	return e, nil
}

func (m *Memory) InsertEntry(_ context.Context, e billing.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.entries[e.ID]; exists {
		return billing.Conflict("insert entry", e.ID)
	}
	m.entries[e.ID] = e
	m.entryOrder = append(m.entryOrder, e.ID)
	return nil
}

func (m *Memory) UpdateEntry(_ context.Context, e billing.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.entries[e.ID]
	if !ok || current.UserID != e.UserID {
		return billing.NotFound("update entry", e.ID)
	}
	m.entries[e.ID] = e
	return nil
}

// =============================================================================
// CLOSURES
// =============================================================================

func (m *Memory) FindClosure(_ context.Context, key billing.ClosureKey) (billing.HospitalClosure, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.closureKeys[keyOf(key)]
	if !ok {
		return billing.HospitalClosure{}, billing.NotFound("find closure", key.String())
	}
	return m.closures[id], nil
}

func (m *Memory) GetClosure(_ context.Context, closureID string) (billing.HospitalClosure, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.closures[closureID]
	if !ok {
		return billing.HospitalClosure{}, billing.NotFound("get closure", closureID)
	}
	return c, nil
}

func (m *Memory) InsertClosure(_ context.Context, c billing.HospitalClosure) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := keyOf(c.Key())
	if _, exists := m.closureKeys[k]; exists {
		return billing.Conflict("insert closure", c.Key().String())
	}
	if _, exists := m.closures[c.ID]; exists {
		return billing.Conflict("insert closure", c.ID)
	}
	m.closures[c.ID] = c
	m.closureKeys[k] = c.ID
	return nil
}

func (m *Memory) UpdateClosurePeriod(_ context.Context, c billing.HospitalClosure) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.closures[c.ID]
	if !ok {
		return billing.NotFound("update closure period", c.ID)
	}
	current.Effective = c.Effective
	current.IsAdjusted = c.IsAdjusted
	current.AdjustReason = c.AdjustReason
	current.UpdatedAt = c.UpdatedAt
	m.closures[c.ID] = current
	return nil
}

func (m *Memory) ListGroupStatuses(_ context.Context, closureID string) ([]billing.ClosureGroupStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []billing.ClosureGroupStatus
	for _, s := range m.statuses {
		if s.ClosureID == closureID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GroupKey() < out[j].GroupKey() })
	return out, nil
}

func (m *Memory) InsertGroupStatus(_ context.Context, s billing.ClosureGroupStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := statusKey{ClosureID: s.ClosureID, GroupKey: s.GroupKey()}
	if _, exists := m.statusKeys[k]; exists {
		return billing.Conflict("insert group status", s.ClosureID+"/"+s.GroupKey())
	}
	if _, exists := m.statuses[s.ID]; exists {
		return billing.Conflict("insert group status", s.ID)
	}
	m.statuses[s.ID] = s
	m.statusKeys[k] = s.ID
	return nil
}

func (m *Memory) GetGroupStatus(_ context.Context, statusID string) (billing.ClosureGroupStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.statuses[statusID]
	if !ok {
		return billing.ClosureGroupStatus{}, billing.NotFound("get group status", statusID)
	}
	return s, nil
}

func (m *Memory) UpdateGroupStatus(_ context.Context, s billing.ClosureGroupStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.statuses[s.ID]
	if !ok {
		return billing.NotFound("update group status", s.ID)
	}
	current.IsConsolidated = s.IsConsolidated
	current.ConsolidatedAt = s.ConsolidatedAt
	m.statuses[s.ID] = current
	return nil
}

var (
	_ billing.Store         = (*Memory)(nil)
	_ billing.CatalogWriter = (*Memory)(nil)
)
