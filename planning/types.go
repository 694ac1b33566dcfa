/*
Package planning provides the planning & dispatch consistency engine.

PURPOSE:
  Operators plan workers (and vehicles, devices, locations) against calendar
  days. This package validates those plans, realizes them as confirmed time
  records exactly once, and answers "who is free?" for a date or time window.

KEY CONCEPTS IN THIS FILE (types.go):
  - PlanningEntry: a proposed block of a worker's day (PLANNED until confirmed)
  - TimeEntry: the persisted, immutable record created by confirmation
  - DispatchItem / DispatchAssignment: work on a date and the resources bound to it
  - Worker / Vehicle / Device / Location: the resource collections
  - Actor: who is calling, used by the permission gate

INVARIANTS:
  1. No double-booking: non-confirmed entries of one worker/day never overlap
  2. No duplicate confirmation: one PlanningEntry maps to at most one TimeEntry
  3. Vehicles and devices hold at most one assignment per date
  4. Confirmed entries are historical fact and are never contested

SEE ALSO:
  - overlap.go: Interval Overlap Validator
  - confirm.go: Confirm-Day Service
  - availability.go: Resource Availability Resolver
  - state.go: Central State Store
*/
package planning

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type WorkerID string
type VehicleID string
type DeviceID string
type LocationID string
type PlanningEntryID string
type TimeEntryID string
type DispatchItemID string
type AssignmentID string

// =============================================================================
// ENUMS
// =============================================================================

type Category string

const (
	CategoryProject  Category = "PROJEKT"
	CategorySick     Category = "KRANK"
	CategoryVacation Category = "URLAUB"
	CategoryTraining Category = "SCHULUNG"
	CategoryHoliday  Category = "FEIERTAG"
	CategoryOther    Category = "SONSTIGES"
)

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryProject, CategorySick, CategoryVacation, CategoryTraining, CategoryHoliday, CategoryOther:
		return true
	}
	return false
}

type EntryStatus string

const (
	StatusPlanned   EntryStatus = "PLANNED"
	StatusConfirmed EntryStatus = "CONFIRMED"
	StatusRejected  EntryStatus = "REJECTED"
)

type EntrySource string

const (
	SourceAdminPlan EntrySource = "ADMIN_PLAN"
	SourceSelfPlan  EntrySource = "SELF_PLAN"
)

type Role string

const (
	RoleAdmin  Role = "ADMIN"
	RoleWorker Role = "WORKER"
)

type ResourceType string

const (
	ResourceWorker  ResourceType = "WORKER"
	ResourceVehicle ResourceType = "VEHICLE"
	ResourceDevice  ResourceType = "DEVICE"
)

// SingleAssignment reports whether the resource type may hold at most one
// dispatch assignment per date.
func (r ResourceType) SingleAssignment() bool {
	return r == ResourceVehicle || r == ResourceDevice
}

func (r ResourceType) Valid() bool {
	return r == ResourceWorker || r == ResourceVehicle || r == ResourceDevice
}

// =============================================================================
// PLANNING ENTRY - A proposed block of a worker's day
// =============================================================================

type PlanningEntry struct {
	ID         PlanningEntryID
	WorkerID   WorkerID
	Date       Date
	AllDay     bool
	StartTime  *ClockTime
	EndTime    *ClockTime
	LocationID *LocationID
	Category   Category
	Note       string
	Status     EntryStatus
	Source     EntrySource

	// Audit fields
	CreatedByUserID string
	CreatedByRole   Role

	// Back-reference once confirmed
	TimeEntryID *TimeEntryID
	UpdatedAt   time.Time
}

// HasTimes reports whether both start and end are set.
func (e PlanningEntry) HasTimes() bool {
	return e.StartTime != nil && e.EndTime != nil
}

// Clone returns a copy that shares no pointers with e.
func (e PlanningEntry) Clone() PlanningEntry {
	c := e
	if e.StartTime != nil {
		v := *e.StartTime
		c.StartTime = &v
	}
	if e.EndTime != nil {
		v := *e.EndTime
		c.EndTime = &v
	}
	if e.LocationID != nil {
		v := *e.LocationID
		c.LocationID = &v
	}
	if e.TimeEntryID != nil {
		v := *e.TimeEntryID
		c.TimeEntryID = &v
	}
	return c
}

// PlanningPatch carries the fields of an update. Nil fields are left alone.
type PlanningPatch struct {
	Date        *Date
	AllDay      *bool
	StartTime   *ClockTime
	EndTime     *ClockTime
	ClearTimes  bool
	LocationID  *LocationID
	Category    *Category
	Note        *string
	Status      *EntryStatus
	TimeEntryID *TimeEntryID
}

// Apply returns a copy of e with the patch applied.
func (p PlanningPatch) Apply(e PlanningEntry) PlanningEntry {
	out := e.Clone()
	if p.Date != nil {
		out.Date = *p.Date
	}
	if p.AllDay != nil {
		out.AllDay = *p.AllDay
	}
	if p.ClearTimes {
		out.StartTime, out.EndTime = nil, nil
	}
	if p.StartTime != nil {
		v := *p.StartTime
		out.StartTime = &v
	}
	if p.EndTime != nil {
		v := *p.EndTime
		out.EndTime = &v
	}
	if p.LocationID != nil {
		v := *p.LocationID
		out.LocationID = &v
	}
	if p.Category != nil {
		out.Category = *p.Category
	}
	if p.Note != nil {
		out.Note = *p.Note
	}
	if p.Status != nil {
		out.Status = *p.Status
	}
	if p.TimeEntryID != nil {
		v := *p.TimeEntryID
		out.TimeEntryID = &v
	}
	return out
}

// =============================================================================
// TIME ENTRY - Persisted, immutable record of worked time
// =============================================================================

type TimeEntry struct {
	ID         TimeEntryID
	WorkerID   WorkerID
	EntryDate  Date
	TimeFrom   ClockTime
	TimeTo     ClockTime
	Hours      decimal.Decimal
	Category   Category
	LocationID *LocationID
	Status     EntryStatus
	Meta       TimeEntryMeta
}

// TimeEntryMeta links a record back to the plan it was realized from.
type TimeEntryMeta struct {
	SourcePlanningEntryID       *PlanningEntryID
	CreatedFromPlanningAt       *time.Time
	CreatedFromPlanningByUserID *string
}

// HasSource reports whether the record was created from a planning entry.
func (t TimeEntry) HasSource() bool {
	return t.Meta.SourcePlanningEntryID != nil && *t.Meta.SourcePlanningEntryID != ""
}

// TimeEntryFilter narrows a TimeEntries lookup. Zero fields match everything.
type TimeEntryFilter struct {
	WorkerID WorkerID
	From     *Date
	To       *Date
}

// =============================================================================
// DISPATCH - Work on a date and the resources bound to it
// =============================================================================

type DispatchItem struct {
	ID         DispatchItemID
	Title      string
	LocationID *LocationID
	Date       Date
	EndDate    *Date // inclusive; nil means single day
	AllDay     bool
	StartTime  *ClockTime
	EndTime    *ClockTime
	Note       string
}

// Covers reports whether the item spans the given date.
func (d DispatchItem) Covers(date Date) bool {
	if d.EndDate == nil {
		return d.Date.Equal(date)
	}
	return !date.Before(d.Date) && !d.EndDate.Before(date)
}

// Clone returns a copy that shares no pointers with d.
func (d DispatchItem) Clone() DispatchItem {
	c := d
	if d.LocationID != nil {
		v := *d.LocationID
		c.LocationID = &v
	}
	if d.EndDate != nil {
		v := *d.EndDate
		c.EndDate = &v
	}
	if d.StartTime != nil {
		v := *d.StartTime
		c.StartTime = &v
	}
	if d.EndTime != nil {
		v := *d.EndTime
		c.EndTime = &v
	}
	return c
}

type DispatchAssignment struct {
	ID             AssignmentID
	DispatchItemID DispatchItemID
	ResourceType   ResourceType
	ResourceID     string
	Date           Date
}

// =============================================================================
// RESOURCES
// =============================================================================

type Worker struct {
	ID     WorkerID
	Name   string
	Active bool
}

type Vehicle struct {
	ID     VehicleID
	Name   string
	Plate  string
	Active bool
}

type Device struct {
	ID     DeviceID
	Name   string
	Serial string
	Active bool
}

type Location struct {
	ID      LocationID
	Name    string
	Address string
}

// Resource is the type-erased view returned by availability queries.
type Resource struct {
	Type ResourceType
	ID   string
	Name string
}

// =============================================================================
// ACTOR - Caller identity for the permission gate
// =============================================================================

type Actor struct {
	UserID   string
	Role     Role
	WorkerID WorkerID // set when the caller is a worker
}

// CanActFor reports whether the actor may plan or confirm for workerID.
func (a Actor) CanActFor(workerID WorkerID) bool {
	if a.Role == RoleAdmin {
		return true
	}
	return a.WorkerID != "" && a.WorkerID == workerID
}
