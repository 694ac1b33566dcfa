/*
state.go - Central State Store

PURPOSE:
  The single owner of every collection the engine works with: workers,
  vehicles, devices, locations, dispatch items, dispatch assignments and
  planning entries. Components never keep private copies; they read a
  snapshot, build replacement collections, and write them back.

CONTRACT:
  - GetState() returns a deep copy. Mutating it never touches the store.
  - SetState(patch) replaces every non-nil collection in patch.
  - Update(fn) is the updater form: fn receives the current snapshot.
  - Merge(patch) upserts: dedupe by id, last write wins, first-seen order kept.
  - After each write, subscribers receive the new snapshot synchronously:
    a write returns only once its own snapshot has been delivered.
    A panicking subscriber is logged and skipped; the write stands.

REVISIONS:
  Every write bumps a counter for each collection it touched. Derived caches
  (availability.go) compare counters instead of collection lengths, so a
  same-size swap still invalidates.

NOTIFICATION ORDER:
  Snapshots are queued under the write lock, so the queue is in write order.
  One goroutine at a time drains it; concurrent writers wait until their
  snapshot has gone out. A write issued from inside a subscriber is queued
  and delivered after the current round finishes. A subscriber must not
  block on another goroutine's write.
*/
package planning

import (
	"bytes"
	"fmt"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// =============================================================================
// STATE TREE
// =============================================================================

type State struct {
	Workers             []Worker
	Vehicles            []Vehicle
	Devices             []Device
	Locations           []Location
	DispatchItems       []DispatchItem
	DispatchAssignments []DispatchAssignment
	PlanningEntries     []PlanningEntry
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	out := State{
		Workers:             cloneSlice(s.Workers),
		Vehicles:            cloneSlice(s.Vehicles),
		Devices:             cloneSlice(s.Devices),
		Locations:           cloneSlice(s.Locations),
		DispatchAssignments: cloneSlice(s.DispatchAssignments),
	}
	if s.DispatchItems != nil {
		out.DispatchItems = make([]DispatchItem, len(s.DispatchItems))
		for i, d := range s.DispatchItems {
			out.DispatchItems[i] = d.Clone()
		}
	}
	if s.PlanningEntries != nil {
		out.PlanningEntries = make([]PlanningEntry, len(s.PlanningEntries))
		for i, e := range s.PlanningEntries {
			out.PlanningEntries[i] = e.Clone()
		}
	}
	return out
}

func cloneSlice[T any](in []T) []T {
	if in == nil {
		return nil
	}
	out := make([]T, len(in))
	copy(out, in)
	return out
}

// DayEntries returns the worker's planning entries on date, in store order.
func (s State) DayEntries(workerID WorkerID, date Date) []PlanningEntry {
	var out []PlanningEntry
	for _, e := range s.PlanningEntries {
		if e.WorkerID == workerID && e.Date.Equal(date) {
			out = append(out, e.Clone())
		}
	}
	return out
}

// PlanningEntry looks up an entry by id.
func (s State) PlanningEntry(id PlanningEntryID) (PlanningEntry, bool) {
	for _, e := range s.PlanningEntries {
		if e.ID == id {
			return e.Clone(), true
		}
	}
	return PlanningEntry{}, false
}

// =============================================================================
// PATCH - Partial state; nil collections are left untouched
// =============================================================================

// Patch is a partial state. A nil slice means "leave alone"; use an empty
// non-nil slice to clear a collection.
type Patch struct {
	Workers             []Worker
	Vehicles            []Vehicle
	Devices             []Device
	Locations           []Location
	DispatchItems       []DispatchItem
	DispatchAssignments []DispatchAssignment
	PlanningEntries     []PlanningEntry
}

type Collection string

const (
	CollectionWorkers             Collection = "workers"
	CollectionVehicles            Collection = "vehicles"
	CollectionDevices             Collection = "devices"
	CollectionLocations           Collection = "locations"
	CollectionDispatchItems       Collection = "dispatch_items"
	CollectionDispatchAssignments Collection = "dispatch_assignments"
	CollectionPlanningEntries     Collection = "planning_entries"
)

func (p Patch) touched() []Collection {
	var out []Collection
	if p.Workers != nil {
		out = append(out, CollectionWorkers)
	}
	if p.Vehicles != nil {
		out = append(out, CollectionVehicles)
	}
	if p.Devices != nil {
		out = append(out, CollectionDevices)
	}
	if p.Locations != nil {
		out = append(out, CollectionLocations)
	}
	if p.DispatchItems != nil {
		out = append(out, CollectionDispatchItems)
	}
	if p.DispatchAssignments != nil {
		out = append(out, CollectionDispatchAssignments)
	}
	if p.PlanningEntries != nil {
		out = append(out, CollectionPlanningEntries)
	}
	return out
}

// Revisions holds per-collection write counters.
type Revisions map[Collection]uint64

// Key renders the counters of the given collections as a stable string.
func (r Revisions) Key(collections ...Collection) string {
	parts := make([]string, len(collections))
	for i, c := range collections {
		parts[i] = fmt.Sprintf("%s=%d", c, r[c])
	}
	return strings.Join(parts, ";")
}

// =============================================================================
// STATE STORE
// =============================================================================

// Subscriber receives the state snapshot after every write.
type Subscriber func(State)

type StateStore struct {
	mu        sync.RWMutex
	state     State
	revisions Revisions

	subMu       sync.Mutex
	subscribers map[int]Subscriber
	nextSubID   int

	notifyMu  sync.Mutex
	delivered *sync.Cond
	pending   []State
	enqueued  uint64
	sent      uint64
	deliverer uint64 // goroutine draining pending, 0 when idle

	log zerolog.Logger
}

// NewStateStore constructs a store once per process; pass it to the
// components that need it.
func NewStateStore(initial State, log zerolog.Logger) *StateStore {
	s := &StateStore{
		state:       initial.Clone(),
		revisions:   make(Revisions),
		subscribers: make(map[int]Subscriber),
		log:         log,
	}
	s.delivered = sync.NewCond(&s.notifyMu)
	return s
}

// GetState returns an isolated snapshot.
func (s *StateStore) GetState() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// Revisions returns a copy of the per-collection write counters.
func (s *StateStore) Revisions() Revisions {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(Revisions, len(s.revisions))
	for k, v := range s.revisions {
		out[k] = v
	}
	return out
}

// SetState replaces every collection set in p and notifies subscribers.
func (s *StateStore) SetState(p Patch) {
	s.write(func(State) Patch { return p })
}

// Update applies the patch returned by fn, which sees the current state.
// fn runs under the write lock and must not call back into the store.
func (s *StateStore) Update(fn func(State) Patch) {
	s.write(fn)
}

// Merge upserts every collection in p by id: last write wins, first-seen
// order is preserved, duplicates never survive.
func (s *StateStore) Merge(p Patch) {
	s.write(func(cur State) Patch {
		return mergePatch(cur, p)
	})
}

func (s *StateStore) write(fn func(State) Patch) {
	s.mu.Lock()
	p := fn(s.state.Clone())
	s.apply(p)
	snapshot := s.state.Clone()

	s.notifyMu.Lock()
	s.pending = append(s.pending, snapshot)
	s.enqueued++
	seq := s.enqueued
	s.mu.Unlock()

	s.notify(seq)
}

func (s *StateStore) apply(p Patch) {
	if p.Workers != nil {
		s.state.Workers = cloneSlice(p.Workers)
	}
	if p.Vehicles != nil {
		s.state.Vehicles = cloneSlice(p.Vehicles)
	}
	if p.Devices != nil {
		s.state.Devices = cloneSlice(p.Devices)
	}
	if p.Locations != nil {
		s.state.Locations = cloneSlice(p.Locations)
	}
	if p.DispatchItems != nil {
		s.state.DispatchItems = State{DispatchItems: p.DispatchItems}.Clone().DispatchItems
	}
	if p.DispatchAssignments != nil {
		s.state.DispatchAssignments = cloneSlice(p.DispatchAssignments)
	}
	if p.PlanningEntries != nil {
		s.state.PlanningEntries = State{PlanningEntries: p.PlanningEntries}.Clone().PlanningEntries
	}
	for _, c := range p.touched() {
		s.revisions[c]++
	}
}

// Subscribe registers fn and returns a function that removes it.
func (s *StateStore) Subscribe(fn Subscriber) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subscribers, id)
	}
}

// notify returns once snapshot seq has been delivered. It is called with
// notifyMu held and releases it.
func (s *StateStore) notify(seq uint64) {
	gid := goroutineID()
	if s.deliverer != 0 && s.deliverer == gid {
		// Written from inside a subscriber; the running round picks it up.
		s.notifyMu.Unlock()
		return
	}
	for s.deliverer != 0 && s.sent < seq {
		s.delivered.Wait()
	}
	if s.sent >= seq {
		s.notifyMu.Unlock()
		return
	}

	s.deliverer = gid
	for len(s.pending) > 0 {
		next := s.pending[0]
		s.pending = s.pending[1:]
		s.notifyMu.Unlock()

		for _, sub := range s.subscriberList() {
			s.deliver(sub, next)
		}

		s.notifyMu.Lock()
		s.sent++
		s.delivered.Broadcast()
	}
	s.deliverer = 0
	s.delivered.Broadcast()
	s.notifyMu.Unlock()
}

// goroutineID parses the current goroutine's id from its stack header.
func goroutineID() uint64 {
	var buf [64]byte
	b := buf[:runtime.Stack(buf[:], false)]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	if i := bytes.IndexByte(b, ' '); i >= 0 {
		b = b[:i]
	}
	id, _ := strconv.ParseUint(string(b), 10, 64)
	return id
}

func (s *StateStore) subscriberList() []Subscriber {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	ids := make([]int, 0, len(s.subscribers))
	for id := range s.subscribers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]Subscriber, len(ids))
	for i, id := range ids {
		out[i] = s.subscribers[id]
	}
	return out
}

func (s *StateStore) deliver(sub Subscriber, snapshot State) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Msg("state subscriber panicked")
		}
	}()
	sub(snapshot.Clone())
}

// =============================================================================
// UPSERT HELPERS - Dedupe by identity key, last write wins
// =============================================================================

// MergeBy merges incoming into existing. Entries sharing a key collapse to
// the last value seen; order follows each key's first appearance.
func MergeBy[T any, K comparable](existing, incoming []T, key func(T) K) []T {
	out := make([]T, 0, len(existing)+len(incoming))
	pos := make(map[K]int, len(existing)+len(incoming))
	add := func(v T) {
		k := key(v)
		if i, ok := pos[k]; ok {
			out[i] = v
			return
		}
		pos[k] = len(out)
		out = append(out, v)
	}
	for _, v := range existing {
		add(v)
	}
	for _, v := range incoming {
		add(v)
	}
	return out
}

// RemoveBy drops every element whose key equals k.
func RemoveBy[T any, K comparable](in []T, k K, key func(T) K) []T {
	out := make([]T, 0, len(in))
	for _, v := range in {
		if key(v) != k {
			out = append(out, v)
		}
	}
	return out
}

func mergePatch(cur State, p Patch) Patch {
	var out Patch
	if p.Workers != nil {
		out.Workers = MergeBy(cur.Workers, p.Workers, func(w Worker) WorkerID { return w.ID })
	}
	if p.Vehicles != nil {
		out.Vehicles = MergeBy(cur.Vehicles, p.Vehicles, func(v Vehicle) VehicleID { return v.ID })
	}
	if p.Devices != nil {
		out.Devices = MergeBy(cur.Devices, p.Devices, func(d Device) DeviceID { return d.ID })
	}
	if p.Locations != nil {
		out.Locations = MergeBy(cur.Locations, p.Locations, func(l Location) LocationID { return l.ID })
	}
	if p.DispatchItems != nil {
		out.DispatchItems = MergeBy(cur.DispatchItems, p.DispatchItems, func(d DispatchItem) DispatchItemID { return d.ID })
	}
	if p.DispatchAssignments != nil {
		out.DispatchAssignments = MergeBy(cur.DispatchAssignments, p.DispatchAssignments, func(a DispatchAssignment) AssignmentID { return a.ID })
	}
	if p.PlanningEntries != nil {
		out.PlanningEntries = MergeBy(cur.PlanningEntries, p.PlanningEntries, func(e PlanningEntry) PlanningEntryID { return e.ID })
	}
	return out
}

func planningEntryKey(e PlanningEntry) PlanningEntryID { return e.ID }
