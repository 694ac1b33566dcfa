/*
Package sqlite provides a SQLite-backed implementation of planning.Backend.

PURPOSE:
  Persists planning entries, confirmed time records, dispatch data and
  resource master data. In production the same schema maps onto PostgreSQL
  with only minor dialect differences.

INTERFACES IMPLEMENTED:
  planning.PlanningBackend:  Planning entry CRUD
  planning.TimeEntryBackend: Append-only time records
  planning.DispatchBackend:  Dispatch items, assignments, resources

APPEND-ONLY ENFORCEMENT:
  time_entries has no UPDATE or DELETE path. A record is linked to at most
  one planning entry through the unique index on source_planning_entry_id.

KEY TABLES:
  planning_entries:     Proposed blocks of a worker's day
  time_entries:         Immutable confirmed records
  dispatch_items:       Work on a date (or date range)
  dispatch_assignments: Resources bound to a dispatch item on a date
  workers, vehicles, devices, locations: Master data

INDEXES:
  - idx_time_entries_source: one record per planning entry
  - idx_single_assignment:   one VEHICLE / DEVICE assignment per date
  - idx_planning_worker_date, idx_time_entries_worker_date: day lookups

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. With PostgreSQL, database-level
  concurrency control handles this instead.

USAGE:
  store, err := sqlite.New("./data/planning.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  confirm := planning.NewConfirmService(state, store, log)

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - planning/store.go: Interface definitions
  - planning/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/planning-engine/planning"
)

// Store implements planning.Backend using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ planning.Backend = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A second connection to ":memory:" would see an empty database.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Master data
	CREATE TABLE IF NOT EXISTS workers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE
	);

	CREATE TABLE IF NOT EXISTS vehicles (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		plate TEXT,
		active BOOLEAN NOT NULL DEFAULT TRUE
	);

	CREATE TABLE IF NOT EXISTS devices (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		serial TEXT,
		active BOOLEAN NOT NULL DEFAULT TRUE
	);

	CREATE TABLE IF NOT EXISTS locations (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		address TEXT
	);

	-- Planning entries (mutable until confirmed)
	CREATE TABLE IF NOT EXISTS planning_entries (
		id TEXT PRIMARY KEY,
		worker_id TEXT NOT NULL,
		date TEXT NOT NULL,
		all_day BOOLEAN NOT NULL DEFAULT FALSE,
		start_time TEXT,
		end_time TEXT,
		location_id TEXT,
		category TEXT NOT NULL,
		note TEXT,
		status TEXT NOT NULL DEFAULT 'PLANNED',
		source TEXT,
		created_by_user_id TEXT,
		created_by_role TEXT,
		time_entry_id TEXT,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_planning_worker_date
		ON planning_entries(worker_id, date);

	-- Time entries (append-only)
	CREATE TABLE IF NOT EXISTS time_entries (
		id TEXT PRIMARY KEY,
		worker_id TEXT NOT NULL,
		entry_date TEXT NOT NULL,
		time_from TEXT NOT NULL,
		time_to TEXT NOT NULL,
		hours TEXT NOT NULL,
		category TEXT NOT NULL,
		location_id TEXT,
		status TEXT NOT NULL,
		source_planning_entry_id TEXT,
		created_from_planning_at TEXT,
		created_from_planning_by_user_id TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_time_entries_worker_date
		ON time_entries(worker_id, entry_date);

	-- CRITICAL: one time record per planning entry
	CREATE UNIQUE INDEX IF NOT EXISTS idx_time_entries_source
		ON time_entries(source_planning_entry_id)
		WHERE source_planning_entry_id IS NOT NULL;

	-- Dispatch
	CREATE TABLE IF NOT EXISTS dispatch_items (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		location_id TEXT,
		date TEXT NOT NULL,
		end_date TEXT,
		all_day BOOLEAN NOT NULL DEFAULT FALSE,
		start_time TEXT,
		end_time TEXT,
		note TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_dispatch_items_date
		ON dispatch_items(date, end_date);

	CREATE TABLE IF NOT EXISTS dispatch_assignments (
		id TEXT PRIMARY KEY,
		dispatch_item_id TEXT NOT NULL,
		resource_type TEXT NOT NULL,
		resource_id TEXT NOT NULL,
		date TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_dispatch_assignments_date
		ON dispatch_assignments(date);

	-- CRITICAL: vehicles and devices hold one assignment per date
	CREATE UNIQUE INDEX IF NOT EXISTS idx_single_assignment
		ON dispatch_assignments(resource_type, resource_id, date)
		WHERE resource_type IN ('VEHICLE', 'DEVICE');
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// PLANNING ENTRIES (planning.PlanningBackend)
// =============================================================================

const planningColumns = `id, worker_id, date, all_day, start_time, end_time, location_id, category,
	note, status, source, created_by_user_id, created_by_role, time_entry_id, updated_at`

// PlanningEntries returns entries in the seven days from weekStart.
func (s *Store) PlanningEntries(ctx context.Context, weekStart planning.Date, workerID planning.WorkerID) ([]planning.PlanningEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + planningColumns + ` FROM planning_entries
		WHERE date >= ? AND date < ? AND (? = '' OR worker_id = ?)
		ORDER BY date, start_time, id`

	rows, err := s.db.QueryContext(ctx, query,
		weekStart.String(), weekStart.AddDays(7).String(), string(workerID), string(workerID))
	if err != nil {
		return nil, fmt.Errorf("failed to query planning entries: %w", err)
	}
	defer rows.Close()

	var entries []planning.PlanningEntry
	for rows.Next() {
		e, err := scanPlanningEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CreatePlanningEntry stores e, assigning an id if it has none.
func (s *Store) CreatePlanningEntry(ctx context.Context, e planning.PlanningEntry) (planning.PlanningEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.ID == "" {
		e.ID = planning.PlanningEntryID(uuid.New().String())
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = time.Now().UTC()
	}
	if err := s.upsertPlanningEntry(ctx, s.db, e); err != nil {
		return planning.PlanningEntry{}, err
	}
	return e, nil
}

// UpdatePlanningEntry applies patch inside one transaction.
func (s *Store) UpdatePlanningEntry(ctx context.Context, id planning.PlanningEntryID, patch planning.PlanningPatch) (planning.PlanningEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return planning.PlanningEntry{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `SELECT `+planningColumns+` FROM planning_entries WHERE id = ?`, string(id))
	current, err := scanPlanningEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return planning.PlanningEntry{}, planning.ErrEntryNotFound
	}
	if err != nil {
		return planning.PlanningEntry{}, err
	}

	updated := patch.Apply(current)
	updated.UpdatedAt = time.Now().UTC()
	if err := s.upsertPlanningEntry(ctx, tx, updated); err != nil {
		return planning.PlanningEntry{}, err
	}
	if err := tx.Commit(); err != nil {
		return planning.PlanningEntry{}, fmt.Errorf("failed to commit: %w", err)
	}
	return updated, nil
}

// DeletePlanningEntry removes the entry.
func (s *Store) DeletePlanningEntry(ctx context.Context, id planning.PlanningEntryID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM planning_entries WHERE id = ?", string(id))
	if err != nil {
		return fmt.Errorf("failed to delete planning entry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return planning.ErrEntryNotFound
	}
	return nil
}

// GetPlanningEntry retrieves an entry by ID. Returns nil if not found.
func (s *Store) GetPlanningEntry(ctx context.Context, id planning.PlanningEntryID) (*planning.PlanningEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+planningColumns+` FROM planning_entries WHERE id = ?`, string(id))
	e, err := scanPlanningEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) upsertPlanningEntry(ctx context.Context, db execer, e planning.PlanningEntry) error {
	query := `
		INSERT INTO planning_entries (` + planningColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			worker_id = excluded.worker_id,
			date = excluded.date,
			all_day = excluded.all_day,
			start_time = excluded.start_time,
			end_time = excluded.end_time,
			location_id = excluded.location_id,
			category = excluded.category,
			note = excluded.note,
			status = excluded.status,
			time_entry_id = excluded.time_entry_id,
			updated_at = excluded.updated_at
	`

	_, err := db.ExecContext(ctx, query,
		string(e.ID),
		string(e.WorkerID),
		e.Date.String(),
		e.AllDay,
		nullClock(e.StartTime),
		nullClock(e.EndTime),
		nullPtr(e.LocationID),
		string(e.Category),
		nullString(e.Note),
		string(e.Status),
		nullString(string(e.Source)),
		nullString(e.CreatedByUserID),
		nullString(string(e.CreatedByRole)),
		nullPtr(e.TimeEntryID),
		e.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save planning entry: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPlanningEntry(row scanner) (planning.PlanningEntry, error) {
	var (
		e                                planning.PlanningEntry
		id, workerID, date               string
		startTime, endTime, locationID   sql.NullString
		note, source, createdBy, role    sql.NullString
		timeEntryID                      sql.NullString
		category, status, updatedAt      string
	)

	err := row.Scan(&id, &workerID, &date, &e.AllDay, &startTime, &endTime, &locationID,
		&category, &note, &status, &source, &createdBy, &role, &timeEntryID, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return e, err
		}
		return e, fmt.Errorf("failed to scan planning entry: %w", err)
	}

	e.ID = planning.PlanningEntryID(id)
	e.WorkerID = planning.WorkerID(workerID)
	if e.Date, err = planning.ParseDate(date); err != nil {
		return e, fmt.Errorf("planning entry %s: %w", id, err)
	}
	e.StartTime = parseClock(startTime)
	e.EndTime = parseClock(endTime)
	e.LocationID = ptrOf[planning.LocationID](locationID)
	e.Category = planning.Category(category)
	e.Note = note.String
	e.Status = planning.EntryStatus(status)
	e.Source = planning.EntrySource(source.String)
	e.CreatedByUserID = createdBy.String
	e.CreatedByRole = planning.Role(role.String)
	e.TimeEntryID = ptrOf[planning.TimeEntryID](timeEntryID)
	e.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return e, nil
}

// =============================================================================
// TIME ENTRIES (planning.TimeEntryBackend) - Append-only
// =============================================================================

// CreateTimeEntry appends a record. A second record for the same source
// planning entry violates idx_time_entries_source.
func (s *Store) CreateTimeEntry(ctx context.Context, t planning.TimeEntry) (planning.TimeEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.ID == "" {
		t.ID = planning.TimeEntryID(uuid.New().String())
	}

	var createdAt sql.NullString
	if t.Meta.CreatedFromPlanningAt != nil {
		createdAt = nullString(t.Meta.CreatedFromPlanningAt.UTC().Format(time.RFC3339))
	}

	query := `
		INSERT INTO time_entries
		(id, worker_id, entry_date, time_from, time_to, hours, category, location_id, status,
		 source_planning_entry_id, created_from_planning_at, created_from_planning_by_user_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		string(t.ID),
		string(t.WorkerID),
		t.EntryDate.String(),
		t.TimeFrom.String(),
		t.TimeTo.String(),
		t.Hours.String(),
		string(t.Category),
		nullPtr(t.LocationID),
		string(t.Status),
		nullPtr(t.Meta.SourcePlanningEntryID),
		createdAt,
		nullPtr(t.Meta.CreatedFromPlanningByUserID),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return planning.TimeEntry{}, fmt.Errorf("time entry for planning entry already exists: %w", err)
		}
		return planning.TimeEntry{}, fmt.Errorf("failed to append time entry: %w", err)
	}
	return t, nil
}

// TimeEntries returns records matching the filter, oldest first.
func (s *Store) TimeEntries(ctx context.Context, f planning.TimeEntryFilter) ([]planning.TimeEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		where []string
		args  []any
	)
	if f.WorkerID != "" {
		where = append(where, "worker_id = ?")
		args = append(args, string(f.WorkerID))
	}
	if f.From != nil {
		where = append(where, "entry_date >= ?")
		args = append(args, f.From.String())
	}
	if f.To != nil {
		where = append(where, "entry_date <= ?")
		args = append(args, f.To.String())
	}

	query := `
		SELECT id, worker_id, entry_date, time_from, time_to, hours, category, location_id, status,
		       source_planning_entry_id, created_from_planning_at, created_from_planning_by_user_id
		FROM time_entries`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY entry_date, created_at, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query time entries: %w", err)
	}
	defer rows.Close()

	var out []planning.TimeEntry
	for rows.Next() {
		t, err := scanTimeEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTimeEntry(row scanner) (planning.TimeEntry, error) {
	var (
		t                               planning.TimeEntry
		id, workerID, date, from, to    string
		hours, category, status         string
		locationID, sourceID, createdAt sql.NullString
		createdBy                       sql.NullString
	)
	err := row.Scan(&id, &workerID, &date, &from, &to, &hours, &category, &locationID, &status,
		&sourceID, &createdAt, &createdBy)
	if err != nil {
		return t, fmt.Errorf("failed to scan time entry: %w", err)
	}

	t.ID = planning.TimeEntryID(id)
	t.WorkerID = planning.WorkerID(workerID)
	if t.EntryDate, err = planning.ParseDate(date); err != nil {
		return t, fmt.Errorf("time entry %s: %w", id, err)
	}
	if t.TimeFrom, err = planning.ParseClockTime(from); err != nil {
		return t, fmt.Errorf("time entry %s: %w", id, err)
	}
	if t.TimeTo, err = planning.ParseClockTime(to); err != nil {
		return t, fmt.Errorf("time entry %s: %w", id, err)
	}
	t.Hours, _ = decimal.NewFromString(hours)
	t.Category = planning.Category(category)
	t.LocationID = ptrOf[planning.LocationID](locationID)
	t.Status = planning.EntryStatus(status)
	t.Meta.SourcePlanningEntryID = ptrOf[planning.PlanningEntryID](sourceID)
	t.Meta.CreatedFromPlanningByUserID = ptrOf[string](createdBy)
	if createdAt.Valid {
		if at, err := time.Parse(time.RFC3339, createdAt.String); err == nil {
			t.Meta.CreatedFromPlanningAt = &at
		}
	}
	return t, nil
}

// =============================================================================
// DISPATCH (planning.DispatchBackend)
// =============================================================================

// DispatchItems returns items whose [date, end_date] range overlaps [from, to].
func (s *Store) DispatchItems(ctx context.Context, from, to *planning.Date) ([]planning.DispatchItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, title, location_id, date, end_date, all_day, start_time, end_time, note
		FROM dispatch_items
		WHERE (? = '' OR COALESCE(end_date, date) >= ?)
		  AND (? = '' OR date <= ?)
		ORDER BY date, start_time, id`
	lo, hi := dateArg(from), dateArg(to)

	rows, err := s.db.QueryContext(ctx, query, lo, lo, hi, hi)
	if err != nil {
		return nil, fmt.Errorf("failed to query dispatch items: %w", err)
	}
	defer rows.Close()

	var out []planning.DispatchItem
	for rows.Next() {
		var (
			it                            planning.DispatchItem
			id, title, date               string
			locationID, endDate, note     sql.NullString
			startTime, endTime            sql.NullString
		)
		if err := rows.Scan(&id, &title, &locationID, &date, &endDate, &it.AllDay, &startTime, &endTime, &note); err != nil {
			return nil, fmt.Errorf("failed to scan dispatch item: %w", err)
		}
		it.ID = planning.DispatchItemID(id)
		it.Title = title
		it.LocationID = ptrOf[planning.LocationID](locationID)
		if it.Date, err = planning.ParseDate(date); err != nil {
			return nil, fmt.Errorf("dispatch item %s: %w", id, err)
		}
		if endDate.Valid {
			d, err := planning.ParseDate(endDate.String)
			if err != nil {
				return nil, fmt.Errorf("dispatch item %s: %w", id, err)
			}
			it.EndDate = &d
		}
		it.StartTime = parseClock(startTime)
		it.EndTime = parseClock(endTime)
		it.Note = note.String
		out = append(out, it)
	}
	return out, rows.Err()
}

// DispatchAssignments returns assignments dated within [from, to].
func (s *Store) DispatchAssignments(ctx context.Context, from, to *planning.Date) ([]planning.DispatchAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, dispatch_item_id, resource_type, resource_id, date
		FROM dispatch_assignments
		WHERE (? = '' OR date >= ?) AND (? = '' OR date <= ?)
		ORDER BY date, id`
	lo, hi := dateArg(from), dateArg(to)

	rows, err := s.db.QueryContext(ctx, query, lo, lo, hi, hi)
	if err != nil {
		return nil, fmt.Errorf("failed to query dispatch assignments: %w", err)
	}
	defer rows.Close()

	var out []planning.DispatchAssignment
	for rows.Next() {
		var a planning.DispatchAssignment
		var id, itemID, resourceType, date string
		if err := rows.Scan(&id, &itemID, &resourceType, &a.ResourceID, &date); err != nil {
			return nil, fmt.Errorf("failed to scan dispatch assignment: %w", err)
		}
		a.ID = planning.AssignmentID(id)
		a.DispatchItemID = planning.DispatchItemID(itemID)
		a.ResourceType = planning.ResourceType(resourceType)
		if a.Date, err = planning.ParseDate(date); err != nil {
			return nil, fmt.Errorf("dispatch assignment %s: %w", id, err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// CreateDispatchAssignment inserts a; idx_single_assignment rejects a second
// vehicle or device booking on the same date.
func (s *Store) CreateDispatchAssignment(ctx context.Context, a planning.DispatchAssignment) (planning.DispatchAssignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.ID == "" {
		a.ID = planning.AssignmentID(uuid.New().String())
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dispatch_assignments (id, dispatch_item_id, resource_type, resource_id, date)
		VALUES (?, ?, ?, ?, ?)`,
		string(a.ID), string(a.DispatchItemID), string(a.ResourceType), a.ResourceID, a.Date.String(),
	)
	if err != nil {
		if isUniqueConstraintError(err) && strings.Contains(err.Error(), "resource_type") {
			return planning.DispatchAssignment{}, planning.ErrResourceAlreadyAssigned
		}
		return planning.DispatchAssignment{}, fmt.Errorf("failed to save dispatch assignment: %w", err)
	}
	return a, nil
}

// =============================================================================
// MASTER DATA
// =============================================================================

func (s *Store) Workers(ctx context.Context) ([]planning.Worker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT id, name, active FROM workers ORDER BY name, id")
	if err != nil {
		return nil, fmt.Errorf("failed to query workers: %w", err)
	}
	defer rows.Close()

	var out []planning.Worker
	for rows.Next() {
		var w planning.Worker
		var id string
		if err := rows.Scan(&id, &w.Name, &w.Active); err != nil {
			return nil, err
		}
		w.ID = planning.WorkerID(id)
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *Store) Vehicles(ctx context.Context) ([]planning.Vehicle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT id, name, plate, active FROM vehicles ORDER BY name, id")
	if err != nil {
		return nil, fmt.Errorf("failed to query vehicles: %w", err)
	}
	defer rows.Close()

	var out []planning.Vehicle
	for rows.Next() {
		var v planning.Vehicle
		var id string
		var plate sql.NullString
		if err := rows.Scan(&id, &v.Name, &plate, &v.Active); err != nil {
			return nil, err
		}
		v.ID = planning.VehicleID(id)
		v.Plate = plate.String
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Store) Devices(ctx context.Context) ([]planning.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT id, name, serial, active FROM devices ORDER BY name, id")
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	defer rows.Close()

	var out []planning.Device
	for rows.Next() {
		var d planning.Device
		var id string
		var serial sql.NullString
		if err := rows.Scan(&id, &d.Name, &serial, &d.Active); err != nil {
			return nil, err
		}
		d.ID = planning.DeviceID(id)
		d.Serial = serial.String
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) Locations(ctx context.Context) ([]planning.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT id, name, address FROM locations ORDER BY name, id")
	if err != nil {
		return nil, fmt.Errorf("failed to query locations: %w", err)
	}
	defer rows.Close()

	var out []planning.Location
	for rows.Next() {
		var l planning.Location
		var id string
		var address sql.NullString
		if err := rows.Scan(&id, &l.Name, &address); err != nil {
			return nil, err
		}
		l.ID = planning.LocationID(id)
		l.Address = address.String
		out = append(out, l)
	}
	return out, rows.Err()
}

// =============================================================================
// SEEDING - Upserts for master data and dispatch items
// =============================================================================

// SaveWorker saves a worker.
func (s *Store) SaveWorker(ctx context.Context, w planning.Worker) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workers (id, name, active) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, active = excluded.active`,
		string(w.ID), w.Name, w.Active)
	return err
}

// SaveVehicle saves a vehicle.
func (s *Store) SaveVehicle(ctx context.Context, v planning.Vehicle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vehicles (id, name, plate, active) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, plate = excluded.plate, active = excluded.active`,
		string(v.ID), v.Name, nullString(v.Plate), v.Active)
	return err
}

// SaveDevice saves a device.
func (s *Store) SaveDevice(ctx context.Context, d planning.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO devices (id, name, serial, active) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, serial = excluded.serial, active = excluded.active`,
		string(d.ID), d.Name, nullString(d.Serial), d.Active)
	return err
}

// SaveLocation saves a location.
func (s *Store) SaveLocation(ctx context.Context, l planning.Location) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO locations (id, name, address) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, address = excluded.address`,
		string(l.ID), l.Name, nullString(l.Address))
	return err
}

// SaveDispatchItem saves a dispatch item.
func (s *Store) SaveDispatchItem(ctx context.Context, it planning.DispatchItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var endDate sql.NullString
	if it.EndDate != nil {
		endDate = nullString(it.EndDate.String())
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dispatch_items (id, title, location_id, date, end_date, all_day, start_time, end_time, note)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			location_id = excluded.location_id,
			date = excluded.date,
			end_date = excluded.end_date,
			all_day = excluded.all_day,
			start_time = excluded.start_time,
			end_time = excluded.end_time,
			note = excluded.note`,
		string(it.ID), it.Title, nullPtr(it.LocationID), it.Date.String(), endDate,
		it.AllDay, nullClock(it.StartTime), nullClock(it.EndTime), nullString(it.Note))
	return err
}

// Seed writes every collection of st. Assignments go through
// CreateDispatchAssignment so the single-assignment rule still applies.
func (s *Store) Seed(ctx context.Context, st planning.State) error {
	for _, w := range st.Workers {
		if err := s.SaveWorker(ctx, w); err != nil {
			return err
		}
	}
	for _, v := range st.Vehicles {
		if err := s.SaveVehicle(ctx, v); err != nil {
			return err
		}
	}
	for _, d := range st.Devices {
		if err := s.SaveDevice(ctx, d); err != nil {
			return err
		}
	}
	for _, l := range st.Locations {
		if err := s.SaveLocation(ctx, l); err != nil {
			return err
		}
	}
	for _, it := range st.DispatchItems {
		if err := s.SaveDispatchItem(ctx, it); err != nil {
			return err
		}
	}
	for _, a := range st.DispatchAssignments {
		if _, err := s.CreateDispatchAssignment(ctx, a); err != nil {
			return fmt.Errorf("seed assignment %s: %w", a.ID, err)
		}
	}
	for _, e := range st.PlanningEntries {
		if _, err := s.CreatePlanningEntry(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{
		"time_entries", "planning_entries", "dispatch_assignments", "dispatch_items",
		"locations", "devices", "vehicles", "workers",
	}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullPtr[T ~string](p *T) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return nullString(string(*p))
}

func nullClock(c *planning.ClockTime) sql.NullString {
	if c == nil {
		return sql.NullString{}
	}
	return nullString(c.String())
}

func ptrOf[T ~string](ns sql.NullString) *T {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	v := T(ns.String)
	return &v
}

func parseClock(ns sql.NullString) *planning.ClockTime {
	if !ns.Valid {
		return nil
	}
	c, err := planning.ParseClockTime(ns.String)
	if err != nil {
		return nil
	}
	return &c
}

func dateArg(d *planning.Date) string {
	if d == nil {
		return ""
	}
	return d.String()
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
