// Package store provides Backend implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/warp/planning-engine/planning"
)

// =============================================================================
// MEMORY BACKEND - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements planning.Backend in memory. The Fail* hooks let tests
// inject persistence failures; a nil hook never fails.
type Memory struct {
	mu sync.RWMutex

	planning    map[planning.PlanningEntryID]planning.PlanningEntry
	timeEntries []planning.TimeEntry
	items       []planning.DispatchItem
	assignments []planning.DispatchAssignment
	workers     []planning.Worker
	vehicles    []planning.Vehicle
	devices     []planning.Device
	locations   []planning.Location

	FailCreateTimeEntry     func(planning.TimeEntry) error
	FailUpdatePlanningEntry func(planning.PlanningEntryID) error
	FailTimeEntries         func() error
	FailDispatch            func() error

	// Calls counts backend invocations by method name.
	Calls map[string]int
}

func NewMemory() *Memory {
	return &Memory{
		planning: make(map[planning.PlanningEntryID]planning.PlanningEntry),
		Calls:    make(map[string]int),
	}
}

func (m *Memory) called(name string) { m.Calls[name]++ }

// =============================================================================
// PLANNING ENTRIES
// =============================================================================

func (m *Memory) PlanningEntries(_ context.Context, weekStart planning.Date, workerID planning.WorkerID) ([]planning.PlanningEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.called("PlanningEntries")

	end := weekStart.AddDays(7)
	var out []planning.PlanningEntry
	for _, e := range m.planning {
		if workerID != "" && e.WorkerID != workerID {
			continue
		}
		if e.Date.Before(weekStart) || !e.Date.Before(end) {
			continue
		}
		out = append(out, e.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) GetPlanningEntry(_ context.Context, id planning.PlanningEntryID) (*planning.PlanningEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.called("GetPlanningEntry")

	e, ok := m.planning[id]
	if !ok {
		return nil, nil
	}
	out := e.Clone()
	return &out, nil
}

func (m *Memory) CreatePlanningEntry(_ context.Context, e planning.PlanningEntry) (planning.PlanningEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.called("CreatePlanningEntry")

	if e.ID == "" {
		e.ID = planning.PlanningEntryID(uuid.New().String())
	}
	m.planning[e.ID] = e.Clone()
	return e.Clone(), nil
}

func (m *Memory) UpdatePlanningEntry(_ context.Context, id planning.PlanningEntryID, patch planning.PlanningPatch) (planning.PlanningEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.called("UpdatePlanningEntry")

	if m.FailUpdatePlanningEntry != nil {
		if err := m.FailUpdatePlanningEntry(id); err != nil {
			return planning.PlanningEntry{}, err
		}
	}
	current, ok := m.planning[id]
	if !ok {
		return planning.PlanningEntry{}, planning.ErrEntryNotFound
	}
	updated := patch.Apply(current)
	m.planning[id] = updated
	return updated.Clone(), nil
}

func (m *Memory) DeletePlanningEntry(_ context.Context, id planning.PlanningEntryID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.called("DeletePlanningEntry")

	if _, ok := m.planning[id]; !ok {
		return planning.ErrEntryNotFound
	}
	delete(m.planning, id)
	return nil
}

// PlanningEntry returns the stored entry, for assertions.
func (m *Memory) PlanningEntry(id planning.PlanningEntryID) (planning.PlanningEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.planning[id]
	return e.Clone(), ok
}

// =============================================================================
// TIME ENTRIES - Append-only
// =============================================================================

func (m *Memory) CreateTimeEntry(_ context.Context, t planning.TimeEntry) (planning.TimeEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.called("CreateTimeEntry")

	if m.FailCreateTimeEntry != nil {
		if err := m.FailCreateTimeEntry(t); err != nil {
			return planning.TimeEntry{}, err
		}
	}
	if t.ID == "" {
		t.ID = planning.TimeEntryID(uuid.New().String())
	}
	m.timeEntries = append(m.timeEntries, t)
	return t, nil
}

func (m *Memory) TimeEntries(_ context.Context, f planning.TimeEntryFilter) ([]planning.TimeEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.called("TimeEntries")

	if m.FailTimeEntries != nil {
		if err := m.FailTimeEntries(); err != nil {
			return nil, err
		}
	}
	var out []planning.TimeEntry
	for _, t := range m.timeEntries {
		if f.WorkerID != "" && t.WorkerID != f.WorkerID {
			continue
		}
		if f.From != nil && t.EntryDate.Before(*f.From) {
			continue
		}
		if f.To != nil && t.EntryDate.After(*f.To) {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// AllTimeEntries returns every stored record, for assertions.
func (m *Memory) AllTimeEntries() []planning.TimeEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]planning.TimeEntry(nil), m.timeEntries...)
}

// =============================================================================
// DISPATCH + MASTER DATA
// =============================================================================

func (m *Memory) DispatchItems(_ context.Context, from, to *planning.Date) ([]planning.DispatchItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.dispatchErr(); err != nil {
		return nil, err
	}
	var out []planning.DispatchItem
	for _, it := range m.items {
		last := it.Date
		if it.EndDate != nil {
			last = *it.EndDate
		}
		if from != nil && last.Before(*from) {
			continue
		}
		if to != nil && it.Date.After(*to) {
			continue
		}
		out = append(out, it.Clone())
	}
	return out, nil
}

func (m *Memory) DispatchAssignments(_ context.Context, from, to *planning.Date) ([]planning.DispatchAssignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.dispatchErr(); err != nil {
		return nil, err
	}
	var out []planning.DispatchAssignment
	for _, a := range m.assignments {
		if from != nil && a.Date.Before(*from) {
			continue
		}
		if to != nil && a.Date.After(*to) {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (m *Memory) CreateDispatchAssignment(_ context.Context, a planning.DispatchAssignment) (planning.DispatchAssignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.dispatchErr(); err != nil {
		return planning.DispatchAssignment{}, err
	}
	if a.ResourceType.SingleAssignment() {
		for _, existing := range m.assignments {
			if existing.ResourceType == a.ResourceType && existing.ResourceID == a.ResourceID && existing.Date.Equal(a.Date) {
				return planning.DispatchAssignment{}, planning.ErrResourceAlreadyAssigned
			}
		}
	}
	if a.ID == "" {
		a.ID = planning.AssignmentID(uuid.New().String())
	}
	m.assignments = append(m.assignments, a)
	return a, nil
}

func (m *Memory) Workers(context.Context) ([]planning.Worker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]planning.Worker(nil), m.workers...), m.dispatchErr()
}

func (m *Memory) Vehicles(context.Context) ([]planning.Vehicle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]planning.Vehicle(nil), m.vehicles...), m.dispatchErr()
}

func (m *Memory) Devices(context.Context) ([]planning.Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]planning.Device(nil), m.devices...), m.dispatchErr()
}

func (m *Memory) Locations(context.Context) ([]planning.Location, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]planning.Location(nil), m.locations...), m.dispatchErr()
}

func (m *Memory) dispatchErr() error {
	if m.FailDispatch != nil {
		return m.FailDispatch()
	}
	return nil
}

// =============================================================================
// SEEDING
// =============================================================================

// Seed adds master data and dispatch data in one call.
func (m *Memory) Seed(s planning.State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workers = append(m.workers, s.Workers...)
	m.vehicles = append(m.vehicles, s.Vehicles...)
	m.devices = append(m.devices, s.Devices...)
	m.locations = append(m.locations, s.Locations...)
	m.items = append(m.items, s.DispatchItems...)
	m.assignments = append(m.assignments, s.DispatchAssignments...)
	for _, e := range s.PlanningEntries {
		m.planning[e.ID] = e.Clone()
	}
}

// SeedTimeEntry stores a record directly, bypassing failure hooks.
func (m *Memory) SeedTimeEntry(t planning.TimeEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeEntries = append(m.timeEntries, t)
}
