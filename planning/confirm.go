/*
confirm.go - Confirm-Day Service

PURPOSE:
  Turns a worker's planned day into confirmed time records. Safe to re-run:
  a retry after a partial failure finishes the work without duplicating
  any record.

FLOW (per call):
  ┌──────────────┐   ┌──────────────┐   ┌───────────────────────────────┐
  │ permission   │──▶│ fetch day's  │──▶│ for each entry, in order:     │
  │ gate (fatal) │   │ time records │   │   idempotency tiers → create? │
  └──────────────┘   └──────────────┘   │   → mark CONFIRMED + link     │
                                        └───────────────────────────────┘

IDEMPOTENCY TIERS (first match wins):
  i.   entry.TimeEntryID resolves to an existing record   → already confirmed
  ii.  a record's Meta.SourcePlanningEntryID == entry.ID  → link
  iii. a CONFIRMED record with the same date, worker, location and category
       and no source link, not claimed by any other entry → legacy duplicate, link
  Otherwise a new record is created.

FAILURE ISOLATION:
  - Permission failure aborts before anything is touched.
  - Failing to fetch the day's records aborts before anything is written;
    without them the tiers cannot be evaluated.
  - A failed create or status update is recorded on that item only; the
    remaining entries are still processed.
  - The optional Reload hook runs afterwards; its errors and panics are
    logged and never fail the confirmation.

CONCURRENCY:
  Entries are processed sequentially. Calls for the same (worker, date) are
  collapsed into one in-flight operation; concurrent callers share its result.
  The shared run ignores cancellation of the caller that started it.
*/
package planning

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// =============================================================================
// RESULT TYPES
// =============================================================================

type ConfirmOutcome string

const (
	OutcomeCreated            ConfirmOutcome = "created"
	OutcomeLinked             ConfirmOutcome = "linked"
	OutcomeAlreadyConfirmed   ConfirmOutcome = "already_confirmed"
	OutcomeSkipped            ConfirmOutcome = "skipped"
	OutcomeStatusUpdateFailed ConfirmOutcome = "status_update_failed"
)

// Confirmed reports whether the entry ended up confirmed and linked.
func (o ConfirmOutcome) Confirmed() bool {
	return o == OutcomeCreated || o == OutcomeLinked || o == OutcomeAlreadyConfirmed
}

// ConfirmItemResult is the disposition of one planning entry.
type ConfirmItemResult struct {
	EntryID     PlanningEntryID
	Outcome     ConfirmOutcome
	TimeEntryID TimeEntryID
	Err         error
}

// ConfirmDayResult aggregates the per-entry results of one call.
type ConfirmDayResult struct {
	Date           Date
	WorkerID       WorkerID
	ConfirmedCount int
	SkippedCount   int
	Created        []TimeEntry
	Items          []ConfirmItemResult
}

// Failures returns the items that did not end up confirmed.
func (r *ConfirmDayResult) Failures() []ConfirmItemResult {
	var out []ConfirmItemResult
	for _, it := range r.Items {
		if !it.Outcome.Confirmed() {
			out = append(out, it)
		}
	}
	return out
}

func (r *ConfirmDayResult) clone() *ConfirmDayResult {
	c := *r
	c.Created = append([]TimeEntry(nil), r.Created...)
	c.Items = append([]ConfirmItemResult(nil), r.Items...)
	return &c
}

func (r *ConfirmDayResult) add(item ConfirmItemResult) {
	r.Items = append(r.Items, item)
	if item.Outcome.Confirmed() {
		r.ConfirmedCount++
	} else {
		r.SkippedCount++
	}
}

// =============================================================================
// CONFIRM SERVICE
// =============================================================================

// ConfirmBackend is the subset of Backend the service writes through.
type ConfirmBackend interface {
	PlanningBackend
	TimeEntryBackend
}

type ConfirmService struct {
	State        *StateStore
	Backend      ConfirmBackend
	WorkingHours WorkingHours
	Recorder     Recorder
	Logger       zerolog.Logger

	// Reload refreshes derived data after a confirmation. Optional.
	Reload func(ctx context.Context) error

	// Now is overridable in tests.
	Now func() time.Time

	flight singleflight.Group
}

func NewConfirmService(state *StateStore, backend ConfirmBackend, log zerolog.Logger) *ConfirmService {
	return &ConfirmService{
		State:        state,
		Backend:      backend,
		WorkingHours: DefaultWorkingHours,
		Logger:       log,
		Now:          time.Now,
	}
}

// ConfirmDay confirms every planned entry of workerID on date.
// Only permission, argument and record-lookup failures are returned as
// errors; per-entry failures are reported in the result.
func (s *ConfirmService) ConfirmDay(ctx context.Context, actor Actor, date Date, workerID WorkerID) (*ConfirmDayResult, error) {
	if workerID == "" || date.IsZero() {
		return nil, newValidationError("invalid_field", "worker and date are required", nil)
	}
	if !actor.CanActFor(workerID) {
		return nil, &PermissionError{ActorID: actor.UserID, WorkerID: workerID}
	}

	shared := context.WithoutCancel(ctx)
	key := string(workerID) + "|" + date.String()
	v, err, joined := s.flight.Do(key, func() (any, error) {
		return s.confirm(shared, actor, date, workerID)
	})
	if err != nil {
		return nil, err
	}
	result := v.(*ConfirmDayResult)
	if joined {
		result = result.clone()
	}

	s.reload(ctx)
	return result, nil
}

func (s *ConfirmService) confirm(ctx context.Context, actor Actor, date Date, workerID WorkerID) (*ConfirmDayResult, error) {
	log := s.Logger.With().Str("worker_id", string(workerID)).Str("date", date.String()).Logger()
	recorder := recorderOrNop(s.Recorder)
	result := &ConfirmDayResult{Date: date, WorkerID: workerID}

	snapshot := s.State.GetState()
	candidates := confirmCandidates(snapshot.DayEntries(workerID, date))
	if len(candidates) == 0 {
		log.Debug().Msg("nothing to confirm")
		return result, nil
	}

	records, err := s.Backend.TimeEntries(ctx, TimeEntryFilter{WorkerID: workerID, From: &date, To: &date})
	if err != nil {
		return nil, persistenceErr("load time entries", err)
	}

	// Records already referenced by any entry of this worker cannot be
	// claimed again as a legacy duplicate.
	claimed := make(map[TimeEntryID]bool)
	for _, e := range snapshot.PlanningEntries {
		if e.WorkerID == workerID && e.TimeEntryID != nil {
			claimed[*e.TimeEntryID] = true
		}
	}

	for _, entry := range candidates {
		item := s.confirmEntry(ctx, actor, entry, &records, claimed, result)
		result.add(item)
		recorder.ObserveConfirmItem(item.Outcome)

		level := zerolog.InfoLevel
		if item.Err != nil {
			level = zerolog.WarnLevel
		}
		log.WithLevel(level).Err(item.Err).
			Str("entry_id", string(item.EntryID)).
			Str("outcome", string(item.Outcome)).
			Str("time_entry_id", string(item.TimeEntryID)).
			Msg("planning entry processed")
	}

	log.Info().
		Int("confirmed", result.ConfirmedCount).
		Int("skipped", result.SkippedCount).
		Int("created", len(result.Created)).
		Msg("day confirmed")
	return result, nil
}

// confirmCandidates keeps PLANNED and CONFIRMED entries and orders them by
// start time, then id. All-day entries sort first.
func confirmCandidates(entries []PlanningEntry) []PlanningEntry {
	var out []PlanningEntry
	for _, e := range entries {
		if e.Status == StatusPlanned || e.Status == StatusConfirmed {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		si, sj := sortStart(out[i]), sortStart(out[j])
		if si != sj {
			return si < sj
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func sortStart(e PlanningEntry) int {
	if e.AllDay || e.StartTime == nil {
		return -1
	}
	return e.StartTime.Minutes()
}

func (s *ConfirmService) confirmEntry(
	ctx context.Context,
	actor Actor,
	entry PlanningEntry,
	records *[]TimeEntry,
	claimed map[TimeEntryID]bool,
	result *ConfirmDayResult,
) ConfirmItemResult {
	item := ConfirmItemResult{EntryID: entry.ID}

	match, tier := findExistingRecord(entry, *records, claimed)
	switch {
	case match != nil && tier == 1 && entry.Status == StatusConfirmed:
		item.Outcome = OutcomeAlreadyConfirmed
		item.TimeEntryID = match.ID
		return item

	case match != nil:
		item.Outcome = OutcomeLinked
		if tier == 1 {
			// Record exists but the status change never landed.
			item.Outcome = OutcomeAlreadyConfirmed
		}
		item.TimeEntryID = match.ID
		claimed[match.ID] = true

	default:
		created, err := s.Backend.CreateTimeEntry(ctx, s.newTimeEntry(actor, entry))
		if err != nil {
			item.Outcome = OutcomeSkipped
			item.Err = persistenceErr("create time entry", err)
			return item
		}
		*records = append(*records, created)
		claimed[created.ID] = true
		result.Created = append(result.Created, created)
		item.Outcome = OutcomeCreated
		item.TimeEntryID = created.ID
	}

	if err := s.markConfirmed(ctx, entry, item.TimeEntryID); err != nil {
		item.Outcome = OutcomeStatusUpdateFailed
		item.Err = err
	}
	return item
}

// findExistingRecord applies the three idempotency tiers.
func findExistingRecord(entry PlanningEntry, records []TimeEntry, claimed map[TimeEntryID]bool) (*TimeEntry, int) {
	if entry.TimeEntryID != nil && *entry.TimeEntryID != "" {
		for i := range records {
			if records[i].ID == *entry.TimeEntryID {
				return &records[i], 1
			}
		}
	}
	for i := range records {
		r := &records[i]
		if r.HasSource() && *r.Meta.SourcePlanningEntryID == entry.ID &&
			r.WorkerID == entry.WorkerID && r.EntryDate.Equal(entry.Date) {
			return r, 2
		}
	}
	for i := range records {
		r := &records[i]
		if r.HasSource() || claimed[r.ID] || r.Status != StatusConfirmed {
			continue
		}
		if r.WorkerID == entry.WorkerID && r.EntryDate.Equal(entry.Date) &&
			r.Category == entry.Category && sameLocation(r.LocationID, entry.LocationID) {
			return r, 3
		}
	}
	return nil, 0
}

func sameLocation(a, b *LocationID) bool {
	av, bv := LocationID(""), LocationID("")
	if a != nil {
		av = *a
	}
	if b != nil {
		bv = *b
	}
	return av == bv
}

func (s *ConfirmService) newTimeEntry(actor Actor, entry PlanningEntry) TimeEntry {
	from, to := s.WorkingHours.Start, s.WorkingHours.End
	if !entry.AllDay && entry.HasTimes() {
		from, to = *entry.StartTime, *entry.EndTime
	}
	now := s.Now().UTC()
	sourceID := entry.ID
	userID := actor.UserID

	rec := TimeEntry{
		WorkerID:  entry.WorkerID,
		EntryDate: entry.Date,
		TimeFrom:  from,
		TimeTo:    to,
		Hours:     Hours(from, to),
		Category:  entry.Category,
		Status:    StatusConfirmed,
		Meta: TimeEntryMeta{
			SourcePlanningEntryID:       &sourceID,
			CreatedFromPlanningAt:       &now,
			CreatedFromPlanningByUserID: &userID,
		},
	}
	if entry.LocationID != nil {
		loc := *entry.LocationID
		rec.LocationID = &loc
	}
	return rec
}

// markConfirmed persists the status change and mirrors it into the store.
func (s *ConfirmService) markConfirmed(ctx context.Context, entry PlanningEntry, timeEntryID TimeEntryID) error {
	if entry.Status == StatusConfirmed && entry.TimeEntryID != nil && *entry.TimeEntryID == timeEntryID {
		return nil
	}
	status := StatusConfirmed
	patch := PlanningPatch{Status: &status, TimeEntryID: &timeEntryID}

	updated, err := s.Backend.UpdatePlanningEntry(ctx, entry.ID, patch)
	if err != nil {
		return persistenceErr(fmt.Sprintf("update planning entry %s", entry.ID), err)
	}
	if updated.ID == "" {
		updated = patch.Apply(entry)
	}
	updated.UpdatedAt = s.Now().UTC()

	s.State.Update(func(cur State) Patch {
		return Patch{PlanningEntries: MergeBy(cur.PlanningEntries, []PlanningEntry{updated}, planningEntryKey)}
	})
	return nil
}

func (s *ConfirmService) reload(ctx context.Context) {
	if s.Reload == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.Logger.Error().Interface("panic", r).Msg("reload after confirmation panicked")
		}
	}()
	if err := s.Reload(ctx); err != nil {
		s.Logger.Warn().Err(err).Msg("reload after confirmation failed")
	}
}
