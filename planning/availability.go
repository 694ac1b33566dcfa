/*
availability.go - Resource Availability Resolver

PURPOSE:
  Answers "which workers / vehicles / devices are free?" for a date, and for
  workers optionally within a time window.

RULES:
  VEHICLE / DEVICE (one assignment per date):
    unassigned iff no assignment of that type exists for the date.
  WORKER (several dispatch items per day are normal):
    no window  → unassigned iff zero assignments that day
    window     → unassigned iff none of the worker's items that day overlap
                 the window. All-day items and items without times occupy
                 the whole day; timed items use Overlaps.
  Only active resources are candidates.

CACHING:
  Results are memoized by (date, type[, window]). The cache is valid for one
  state key built from the store's revision counters of the five tracked
  collections (dispatch items, assignments, workers, vehicles, devices).
  Any write to any of them clears the whole cache on the next read; there is
  no per-value diffing and no TTL.
*/
package planning

import (
	"sort"
	"sync"
)

var trackedCollections = []Collection{
	CollectionDispatchItems,
	CollectionDispatchAssignments,
	CollectionWorkers,
	CollectionVehicles,
	CollectionDevices,
}

type cacheKey struct {
	date         string
	resourceType ResourceType
	start, end   int // -1 when no window
}

type Resolver struct {
	State    *StateStore
	Recorder Recorder

	mu       sync.Mutex
	stateKey string
	cache    map[cacheKey][]Resource
}

func NewResolver(state *StateStore) *Resolver {
	return &Resolver{State: state, cache: make(map[cacheKey][]Resource)}
}

// UnassignedForDate returns the active resources of resourceType without a
// dispatch assignment on date.
func (r *Resolver) UnassignedForDate(date Date, resourceType ResourceType) []Resource {
	key := cacheKey{date: date.String(), resourceType: resourceType, start: -1, end: -1}
	return r.lookup(key, func(s State) []Resource {
		return unassignedForDate(s, date, resourceType)
	})
}

// UnassignedWorkersForWindow returns the active workers free during
// [start, end) on date. Without both bounds it behaves like
// UnassignedForDate(date, ResourceWorker).
func (r *Resolver) UnassignedWorkersForWindow(date Date, start, end *ClockTime) []Worker {
	if start == nil || end == nil {
		return resourcesToWorkers(r.UnassignedForDate(date, ResourceWorker))
	}
	ws, we := span(*start, *end)
	key := cacheKey{date: date.String(), resourceType: ResourceWorker, start: ws, end: we}
	res := r.lookup(key, func(s State) []Resource {
		return unassignedWorkersForWindow(s, date, ws, we)
	})
	return resourcesToWorkers(res)
}

// Invalidate drops every cached result.
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = make(map[cacheKey][]Resource)
}

func (r *Resolver) lookup(key cacheKey, compute func(State) []Resource) []Resource {
	recorder := recorderOrNop(r.Recorder)

	r.mu.Lock()
	defer r.mu.Unlock()

	stateKey := r.State.Revisions().Key(trackedCollections...)
	if stateKey != r.stateKey {
		r.cache = make(map[cacheKey][]Resource)
		r.stateKey = stateKey
	}
	if res, ok := r.cache[key]; ok {
		recorder.ObserveCacheLookup(true)
		return cloneSlice(res)
	}
	recorder.ObserveCacheLookup(false)

	res := compute(r.State.GetState())
	r.cache[key] = res
	return cloneSlice(res)
}

// =============================================================================
// COMPUTATION
// =============================================================================

func unassignedForDate(s State, date Date, resourceType ResourceType) []Resource {
	busy := make(map[string]bool)
	for _, a := range s.DispatchAssignments {
		if a.ResourceType == resourceType && a.Date.Equal(date) {
			busy[a.ResourceID] = true
		}
	}
	var out []Resource
	for _, res := range activeResources(s, resourceType) {
		if !busy[res.ID] {
			out = append(out, res)
		}
	}
	sortResources(out)
	return out
}

func unassignedWorkersForWindow(s State, date Date, ws, we int) []Resource {
	items := make(map[DispatchItemID]DispatchItem, len(s.DispatchItems))
	for _, it := range s.DispatchItems {
		items[it.ID] = it
	}

	busy := make(map[string]bool)
	for _, a := range s.DispatchAssignments {
		if a.ResourceType != ResourceWorker || !a.Date.Equal(date) {
			continue
		}
		item, ok := items[a.DispatchItemID]
		if !ok {
			// Assignment to an item we have not loaded: count it as occupying.
			busy[a.ResourceID] = true
			continue
		}
		if itemOccupies(item, ws, we) {
			busy[a.ResourceID] = true
		}
	}

	var out []Resource
	for _, res := range activeResources(s, ResourceWorker) {
		if !busy[res.ID] {
			out = append(out, res)
		}
	}
	sortResources(out)
	return out
}

func itemOccupies(item DispatchItem, ws, we int) bool {
	if item.AllDay || item.StartTime == nil || item.EndTime == nil {
		return true
	}
	is, ie := span(*item.StartTime, *item.EndTime)
	return Overlaps(is, ie, ws, we)
}

func activeResources(s State, resourceType ResourceType) []Resource {
	var out []Resource
	switch resourceType {
	case ResourceWorker:
		for _, w := range s.Workers {
			if w.Active {
				out = append(out, Resource{Type: ResourceWorker, ID: string(w.ID), Name: w.Name})
			}
		}
	case ResourceVehicle:
		for _, v := range s.Vehicles {
			if v.Active {
				out = append(out, Resource{Type: ResourceVehicle, ID: string(v.ID), Name: v.Name})
			}
		}
	case ResourceDevice:
		for _, d := range s.Devices {
			if d.Active {
				out = append(out, Resource{Type: ResourceDevice, ID: string(d.ID), Name: d.Name})
			}
		}
	}
	return out
}

func sortResources(rs []Resource) {
	sort.SliceStable(rs, func(i, j int) bool {
		if rs[i].Name != rs[j].Name {
			return rs[i].Name < rs[j].Name
		}
		return rs[i].ID < rs[j].ID
	})
}

func resourcesToWorkers(rs []Resource) []Worker {
	out := make([]Worker, len(rs))
	for i, r := range rs {
		out[i] = Worker{ID: WorkerID(r.ID), Name: r.Name, Active: true}
	}
	return out
}
