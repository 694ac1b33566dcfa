/*
store.go - External persistence collaborator

PURPOSE:
  Defines the narrow interface between the engine and whatever actually
  persists planning entries, time records and dispatch data (a REST API, a
  SQL database, an in-memory fake). The engine assumes the backend is
  reliable but fallible: every call may fail, and the engine turns those
  failures into *PersistenceError values instead of assuming them away.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - planning/store/memory.go: In-memory for tests and demos

TIME RECORDS ARE APPEND-ONLY:
  There is no UpdateTimeEntry or DeleteTimeEntry. Confirmation only ever
  creates records, and the three-tier idempotency check in confirm.go
  decides whether one needs to be created at all.
*/
package planning

import "context"

// PlanningBackend persists planning entries.
type PlanningBackend interface {
	// PlanningEntries returns the worker's entries for the week starting at
	// weekStart (seven days). An empty workerID means all workers.
	PlanningEntries(ctx context.Context, weekStart Date, workerID WorkerID) ([]PlanningEntry, error)

	// GetPlanningEntry returns the entry, or nil when the id is unknown.
	GetPlanningEntry(ctx context.Context, id PlanningEntryID) (*PlanningEntry, error)

	// CreatePlanningEntry stores e and returns it with its assigned id.
	CreatePlanningEntry(ctx context.Context, e PlanningEntry) (PlanningEntry, error)

	// UpdatePlanningEntry applies patch and returns the stored entry.
	// Returns ErrEntryNotFound for unknown ids.
	UpdatePlanningEntry(ctx context.Context, id PlanningEntryID, patch PlanningPatch) (PlanningEntry, error)

	// DeletePlanningEntry removes the entry. Returns ErrEntryNotFound for unknown ids.
	DeletePlanningEntry(ctx context.Context, id PlanningEntryID) error
}

// TimeEntryBackend persists confirmed time records. Append-only.
type TimeEntryBackend interface {
	CreateTimeEntry(ctx context.Context, t TimeEntry) (TimeEntry, error)
	TimeEntries(ctx context.Context, filter TimeEntryFilter) ([]TimeEntry, error)
}

// DispatchBackend serves dispatch items, assignments and resource master data.
type DispatchBackend interface {
	// DispatchItems returns items overlapping [from, to]. Nil bounds are open.
	DispatchItems(ctx context.Context, from, to *Date) ([]DispatchItem, error)
	DispatchAssignments(ctx context.Context, from, to *Date) ([]DispatchAssignment, error)

	// CreateDispatchAssignment returns ErrResourceAlreadyAssigned when a
	// vehicle or device already holds an assignment on that date.
	CreateDispatchAssignment(ctx context.Context, a DispatchAssignment) (DispatchAssignment, error)

	Workers(ctx context.Context) ([]Worker, error)
	Vehicles(ctx context.Context) ([]Vehicle, error)
	Devices(ctx context.Context) ([]Device, error)
	Locations(ctx context.Context) ([]Location, error)
}

// Backend is everything the engine consumes from the outside.
type Backend interface {
	PlanningBackend
	TimeEntryBackend
	DispatchBackend
}
