/*
service.go - Planning entry lifecycle

PURPOSE:
  Create, edit and delete plan blocks while keeping the no-double-booking
  invariant. Validation happens against the Central State Store before the
  backend is called, so a rejected candidate never reaches persistence.

FLOW:
  permission gate → lock (worker, week) → reload week from backend →
  shape + overlap validation → backend write → store upsert → unlock

  The lock serializes writers of one worker's week inside this process, so
  two overlapping requests cannot both pass validation. Reloading first
  picks up entries persisted before a restart or by another writer.

  Confirmed entries are immutable here; only confirm.go links them.
*/
package planning

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type PlanningService struct {
	State   *StateStore
	Backend Backend
	Logger  zerolog.Logger
	Now     func() time.Time

	locks weekLocks
}

func NewPlanningService(state *StateStore, backend Backend, log zerolog.Logger) *PlanningService {
	return &PlanningService{State: state, Backend: backend, Logger: log, Now: time.Now}
}

// =============================================================================
// READS
// =============================================================================

// Entries returns the worker's entries on date.
func (s *PlanningService) Entries(workerID WorkerID, date Date) []PlanningEntry {
	return s.State.GetState().DayEntries(workerID, date)
}

// Week returns the worker's entries for the seven days from weekStart,
// ordered by date then start time.
func (s *PlanningService) Week(workerID WorkerID, weekStart Date) []PlanningEntry {
	end := weekStart.AddDays(7)
	var out []PlanningEntry
	for _, e := range s.State.GetState().PlanningEntries {
		if workerID != "" && e.WorkerID != workerID {
			continue
		}
		if e.Date.Before(weekStart) || !e.Date.Before(end) {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return sortStart(out[i]) < sortStart(out[j])
	})
	return out
}

// LoadWeek fetches the week from the backend and replaces that slice of
// the store with it. Entries the backend no longer has are dropped.
func (s *PlanningService) LoadWeek(ctx context.Context, weekStart Date, workerID WorkerID) ([]PlanningEntry, error) {
	entries, err := s.Backend.PlanningEntries(ctx, weekStart, workerID)
	if err != nil {
		return nil, persistenceErr("load planning entries", err)
	}
	fetched := make(map[PlanningEntryID]bool, len(entries))
	for _, e := range entries {
		fetched[e.ID] = true
	}
	end := weekStart.AddDays(7)
	s.State.Update(func(cur State) Patch {
		kept := make([]PlanningEntry, 0, len(cur.PlanningEntries))
		for _, e := range cur.PlanningEntries {
			inWindow := (workerID == "" || e.WorkerID == workerID) &&
				!e.Date.Before(weekStart) && e.Date.Before(end)
			if inWindow && !fetched[e.ID] {
				continue
			}
			kept = append(kept, e)
		}
		return Patch{PlanningEntries: MergeBy(kept, entries, planningEntryKey)}
	})
	return s.Week(workerID, weekStart), nil
}

// Validate reloads the candidate's week and runs the overlap check against
// it. excludeID names the entry being edited, if any.
func (s *PlanningService) Validate(ctx context.Context, candidate PlanningEntry, excludeID PlanningEntryID) error {
	if _, err := s.LoadWeek(ctx, candidate.Date.WeekStart(), candidate.WorkerID); err != nil {
		return err
	}
	return ValidatePlanningEntryOverlap(candidate, s.Entries(candidate.WorkerID, candidate.Date), excludeID)
}

// ReplaceAll swaps the whole planning collection.
func (s *PlanningService) ReplaceAll(entries []PlanningEntry) {
	s.State.SetState(Patch{PlanningEntries: nonNil(entries)})
}

// =============================================================================
// WRITES
// =============================================================================

// Create validates and stores a new PLANNED entry.
func (s *PlanningService) Create(ctx context.Context, actor Actor, entry PlanningEntry) (PlanningEntry, error) {
	if !actor.CanActFor(entry.WorkerID) {
		return PlanningEntry{}, &PermissionError{ActorID: actor.UserID, WorkerID: entry.WorkerID}
	}
	if err := checkRequiredFields(entry); err != nil {
		return PlanningEntry{}, err
	}

	entry.Status = StatusPlanned
	entry.TimeEntryID = nil
	entry.CreatedByUserID = actor.UserID
	entry.CreatedByRole = actor.Role
	entry.Source = SourceSelfPlan
	if actor.Role == RoleAdmin {
		entry.Source = SourceAdminPlan
	}
	if entry.AllDay {
		entry.StartTime, entry.EndTime = nil, nil
	}
	entry.UpdatedAt = s.Now().UTC()

	unlock := s.locks.lock(entry.WorkerID, entry.Date)
	defer unlock()

	day, err := s.freshDay(ctx, entry.WorkerID, entry.Date)
	if err != nil {
		return PlanningEntry{}, err
	}
	if err := ValidateEntryAgainstDay(entry, day, ""); err != nil {
		return PlanningEntry{}, err
	}

	created, err := s.Backend.CreatePlanningEntry(ctx, entry)
	if err != nil {
		return PlanningEntry{}, persistenceErr("create planning entry", err)
	}
	s.State.Update(func(cur State) Patch {
		return Patch{PlanningEntries: MergeBy(cur.PlanningEntries, []PlanningEntry{created}, planningEntryKey)}
	})

	s.Logger.Info().
		Str("entry_id", string(created.ID)).
		Str("worker_id", string(created.WorkerID)).
		Str("date", created.Date.String()).
		Msg("planning entry created")
	return created, nil
}

// Update edits an existing, not yet confirmed entry.
func (s *PlanningService) Update(ctx context.Context, actor Actor, id PlanningEntryID, patch PlanningPatch) (PlanningEntry, error) {
	current, err := s.lookup(ctx, id)
	if err != nil {
		return PlanningEntry{}, err
	}
	if !actor.CanActFor(current.WorkerID) {
		return PlanningEntry{}, &PermissionError{ActorID: actor.UserID, WorkerID: current.WorkerID}
	}
	if current.Status == StatusConfirmed {
		return PlanningEntry{}, ErrEntryConfirmed
	}
	// Status and link are owned by confirmation.
	patch.Status, patch.TimeEntryID = nil, nil

	candidate := patch.Apply(current)
	if candidate.AllDay {
		candidate.StartTime, candidate.EndTime = nil, nil
		patch.ClearTimes = true
		patch.StartTime, patch.EndTime = nil, nil
	}
	if err := checkRequiredFields(candidate); err != nil {
		return PlanningEntry{}, err
	}

	unlock := s.locks.lock(candidate.WorkerID, candidate.Date)
	defer unlock()

	day, err := s.freshDay(ctx, candidate.WorkerID, candidate.Date)
	if err != nil {
		return PlanningEntry{}, err
	}
	if err := ValidateEntryAgainstDay(candidate, day, id); err != nil {
		return PlanningEntry{}, err
	}

	updated, err := s.Backend.UpdatePlanningEntry(ctx, id, patch)
	if err != nil {
		return PlanningEntry{}, persistenceErr("update planning entry", err)
	}
	updated.UpdatedAt = s.Now().UTC()
	s.State.Update(func(cur State) Patch {
		return Patch{PlanningEntries: MergeBy(cur.PlanningEntries, []PlanningEntry{updated}, planningEntryKey)}
	})
	return updated, nil
}

// Delete removes a not yet confirmed entry.
func (s *PlanningService) Delete(ctx context.Context, actor Actor, id PlanningEntryID) error {
	current, err := s.lookup(ctx, id)
	if err != nil {
		return err
	}
	if !actor.CanActFor(current.WorkerID) {
		return &PermissionError{ActorID: actor.UserID, WorkerID: current.WorkerID}
	}
	if current.Status == StatusConfirmed {
		return ErrEntryConfirmed
	}

	unlock := s.locks.lock(current.WorkerID, current.Date)
	defer unlock()

	if err := s.Backend.DeletePlanningEntry(ctx, id); err != nil {
		return persistenceErr("delete planning entry", err)
	}
	s.State.Update(func(cur State) Patch {
		return Patch{PlanningEntries: nonNil(RemoveBy(cur.PlanningEntries, id, planningEntryKey))}
	})
	return nil
}

// lookup reads the entry from the backend, which may hold entries the store
// has not loaded yet.
func (s *PlanningService) lookup(ctx context.Context, id PlanningEntryID) (PlanningEntry, error) {
	e, err := s.Backend.GetPlanningEntry(ctx, id)
	if err != nil {
		return PlanningEntry{}, persistenceErr("get planning entry", err)
	}
	if e == nil {
		return PlanningEntry{}, ErrEntryNotFound
	}
	return *e, nil
}

// freshDay reloads the worker's week and returns the entries on date.
// Callers hold the week lock.
func (s *PlanningService) freshDay(ctx context.Context, workerID WorkerID, date Date) ([]PlanningEntry, error) {
	if _, err := s.LoadWeek(ctx, date.WeekStart(), workerID); err != nil {
		return nil, err
	}
	return s.State.GetState().DayEntries(workerID, date), nil
}

func checkRequiredFields(e PlanningEntry) error {
	switch {
	case e.WorkerID == "":
		return newValidationError("invalid_field", "Mitarbeiter fehlt", nil)
	case e.Date.IsZero():
		return newValidationError("invalid_field", "Datum fehlt", nil)
	case !e.Category.Valid():
		return newValidationError("invalid_field", "Unbekannte Kategorie: "+string(e.Category), nil)
	}
	return nil
}

func nonNil[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}

// =============================================================================
// WEEK LOCKS - One mutex per (worker, week), dropped when unused
// =============================================================================

type weekLocks struct {
	mu   sync.Mutex
	held map[string]*weekLock
}

type weekLock struct {
	sync.Mutex
	refs int
}

// lock blocks until the worker's week containing date is free and returns
// the matching unlock.
func (l *weekLocks) lock(workerID WorkerID, date Date) func() {
	key := string(workerID) + "|" + date.WeekStart().String()

	l.mu.Lock()
	if l.held == nil {
		l.held = make(map[string]*weekLock)
	}
	wl, ok := l.held[key]
	if !ok {
		wl = &weekLock{}
		l.held[key] = wl
	}
	wl.refs++
	l.mu.Unlock()

	wl.Lock()
	return func() {
		wl.Unlock()
		l.mu.Lock()
		wl.refs--
		if wl.refs == 0 {
			delete(l.held, key)
		}
		l.mu.Unlock()
	}
}
