/*
Package factory converts JSON request bodies into planning records.

PURPOSE:
  Clients send the same record in two spellings: snake_case from the
  backend's REST API and camelCase from the browser UI. Every body passes
  through this package once, so the rest of the code sees one canonical
  shape (planning.PlanningEntry, planning.PlanningPatch, ...).

JSON SCHEMA (either spelling):
  {
    "id": "p1",
    "worker_id": "w1",          // or "workerId"
    "date": "2025-01-22",       // "2025-01-22T00:00:00Z" is accepted too
    "all_day": false,
    "start_time": "08:00",      // "08:00:00" is accepted too
    "end_time": "12:00",
    "location_id": "loc-a",
    "category": "PROJEKT",
    "note": "Fundament"
  }

KEY RULES:
  - A snake_case key wins over its camelCase twin when both are present.
  - Unknown keys are ignored.
  - In a patch, an absent key leaves the field alone; "start_time": null
    clears both times.

USAGE:
  entry, err := factory.ParsePlanningEntry(body)
  patch, err := factory.ParsePlanningPatch(body)

SEE ALSO:
  - api/handlers.go: the only caller
  - planning/types.go: the canonical records
*/
package factory

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/warp/planning-engine/planning"
)

// =============================================================================
// ERRORS
// =============================================================================

// InputError reports a malformed field. It unwraps to planning.ErrValidation
// so the HTTP layer maps it to 400 like any other validation failure.
type InputError struct {
	Field   string
	Message string
}

func (e *InputError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *InputError) Unwrap() error { return planning.ErrValidation }

func invalid(field, format string, args ...any) error {
	return &InputError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// =============================================================================
// KEY NORMALIZATION
// =============================================================================

// fields is a decoded JSON object keyed by snake_case names.
type fields map[string]json.RawMessage

func decode(data []byte) (fields, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &InputError{Message: "invalid JSON: " + err.Error()}
	}

	out := make(fields, len(raw))
	for k, v := range raw {
		if snake := toSnake(k); snake != k {
			out[snake] = v
		}
	}
	for k, v := range raw {
		if toSnake(k) == k {
			out[k] = v
		}
	}
	return out, nil
}

func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (f fields) has(key string) bool {
	_, ok := f[key]
	return ok
}

func (f fields) isNull(key string) bool {
	v, ok := f[key]
	return ok && strings.TrimSpace(string(v)) == "null"
}

func (f fields) str(key string) (string, error) {
	v, ok := f[key]
	if !ok || f.isNull(key) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", invalid(key, "expected string")
	}
	return strings.TrimSpace(s), nil
}

func (f fields) boolean(key string) (bool, error) {
	v, ok := f[key]
	if !ok || f.isNull(key) {
		return false, nil
	}
	var b bool
	if err := json.Unmarshal(v, &b); err != nil {
		return false, invalid(key, "expected boolean")
	}
	return b, nil
}

func (f fields) date(key string) (planning.Date, error) {
	s, err := f.str(key)
	if err != nil || s == "" {
		return planning.Date{}, err
	}
	if i := strings.IndexByte(s, 'T'); i == 10 {
		s = s[:10]
	}
	d, err := planning.ParseDate(s)
	if err != nil {
		return planning.Date{}, invalid(key, "expected YYYY-MM-DD, got %q", s)
	}
	return d, nil
}

func (f fields) clock(key string) (*planning.ClockTime, error) {
	s, err := f.str(key)
	if err != nil || s == "" {
		return nil, err
	}
	c, err := planning.ParseClockTime(s)
	if err != nil {
		return nil, invalid(key, "expected HH:MM, got %q", s)
	}
	return &c, nil
}

// =============================================================================
// PLANNING ENTRIES
// =============================================================================

// ParsePlanningEntry converts a create or validate body into an entry.
// Status and link fields are read so stored entries can be replayed, but
// the service decides their final values.
func ParsePlanningEntry(data []byte) (planning.PlanningEntry, error) {
	f, err := decode(data)
	if err != nil {
		return planning.PlanningEntry{}, err
	}
	return entryFromFields(f)
}

func entryFromFields(f fields) (planning.PlanningEntry, error) {
	var (
		e   planning.PlanningEntry
		err error
	)

	id, err := f.str("id")
	if err != nil {
		return e, err
	}
	e.ID = planning.PlanningEntryID(id)

	worker, err := f.str("worker_id")
	if err != nil {
		return e, err
	}
	e.WorkerID = planning.WorkerID(worker)

	if e.Date, err = f.date("date"); err != nil {
		return e, err
	}
	if e.AllDay, err = f.boolean("all_day"); err != nil {
		return e, err
	}
	if e.StartTime, err = f.clock("start_time"); err != nil {
		return e, err
	}
	if e.EndTime, err = f.clock("end_time"); err != nil {
		return e, err
	}

	loc, err := f.str("location_id")
	if err != nil {
		return e, err
	}
	if loc != "" {
		l := planning.LocationID(loc)
		e.LocationID = &l
	}

	category, err := f.str("category")
	if err != nil {
		return e, err
	}
	e.Category = planning.Category(strings.ToUpper(category))

	if e.Note, err = f.str("note"); err != nil {
		return e, err
	}

	status, err := f.str("status")
	if err != nil {
		return e, err
	}
	e.Status = planning.EntryStatus(strings.ToUpper(status))
	if e.Status == "" {
		e.Status = planning.StatusPlanned
	}

	te, err := f.str("time_entry_id")
	if err != nil {
		return e, err
	}
	if te != "" {
		t := planning.TimeEntryID(te)
		e.TimeEntryID = &t
	}
	return e, nil
}

// ParsePlanningEntries converts a JSON array of entries.
func ParsePlanningEntries(data []byte) ([]planning.PlanningEntry, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, &InputError{Message: "expected JSON array: " + err.Error()}
	}
	out := make([]planning.PlanningEntry, 0, len(raws))
	for i, raw := range raws {
		e, err := ParsePlanningEntry(raw)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		out = append(out, e)
	}
	return out, nil
}

// ParsePlanningPatch converts an update body. Only present keys are set.
func ParsePlanningPatch(data []byte) (planning.PlanningPatch, error) {
	f, err := decode(data)
	if err != nil {
		return planning.PlanningPatch{}, err
	}

	var p planning.PlanningPatch
	if f.has("date") {
		d, err := f.date("date")
		if err != nil {
			return p, err
		}
		if d.IsZero() {
			return p, invalid("date", "must not be empty")
		}
		p.Date = &d
	}
	if f.has("all_day") {
		b, err := f.boolean("all_day")
		if err != nil {
			return p, err
		}
		p.AllDay = &b
	}
	if f.isNull("start_time") || f.isNull("end_time") {
		p.ClearTimes = true
	}
	if p.StartTime, err = f.clock("start_time"); err != nil {
		return p, err
	}
	if p.EndTime, err = f.clock("end_time"); err != nil {
		return p, err
	}
	if f.has("location_id") {
		loc, err := f.str("location_id")
		if err != nil {
			return p, err
		}
		l := planning.LocationID(loc)
		p.LocationID = &l
	}
	if f.has("category") {
		c, err := f.str("category")
		if err != nil {
			return p, err
		}
		cat := planning.Category(strings.ToUpper(c))
		p.Category = &cat
	}
	if f.has("note") {
		n, err := f.str("note")
		if err != nil {
			return p, err
		}
		p.Note = &n
	}
	return p, nil
}

// ParseValidateRequest returns the candidate entry and the id to exclude
// ("exclude_id", falling back to the candidate's own id).
func ParseValidateRequest(data []byte) (planning.PlanningEntry, planning.PlanningEntryID, error) {
	f, err := decode(data)
	if err != nil {
		return planning.PlanningEntry{}, "", err
	}
	e, err := entryFromFields(f)
	if err != nil {
		return planning.PlanningEntry{}, "", err
	}
	exclude, err := f.str("exclude_id")
	if err != nil {
		return planning.PlanningEntry{}, "", err
	}
	if exclude == "" {
		exclude = string(e.ID)
	}
	return e, planning.PlanningEntryID(exclude), nil
}

// =============================================================================
// CONFIRM + DISPATCH
// =============================================================================

// ConfirmDayRequest is the body of a confirm-day call.
type ConfirmDayRequest struct {
	Date     planning.Date
	WorkerID planning.WorkerID
}

func ParseConfirmDayRequest(data []byte) (ConfirmDayRequest, error) {
	f, err := decode(data)
	if err != nil {
		return ConfirmDayRequest{}, err
	}
	var req ConfirmDayRequest
	if req.Date, err = f.date("date"); err != nil {
		return req, err
	}
	worker, err := f.str("worker_id")
	if err != nil {
		return req, err
	}
	req.WorkerID = planning.WorkerID(worker)

	switch {
	case req.Date.IsZero():
		return req, invalid("date", "required")
	case req.WorkerID == "":
		return req, invalid("worker_id", "required")
	}
	return req, nil
}

// ParseAssignment converts a dispatch assignment body.
func ParseAssignment(data []byte) (planning.DispatchAssignment, error) {
	f, err := decode(data)
	if err != nil {
		return planning.DispatchAssignment{}, err
	}

	var a planning.DispatchAssignment
	item, err := f.str("dispatch_item_id")
	if err != nil {
		return a, err
	}
	a.DispatchItemID = planning.DispatchItemID(item)

	rt, err := f.str("resource_type")
	if err != nil {
		return a, err
	}
	a.ResourceType = planning.ResourceType(strings.ToUpper(rt))
	if !a.ResourceType.Valid() {
		return a, invalid("resource_type", "expected WORKER, VEHICLE or DEVICE, got %q", rt)
	}

	if a.ResourceID, err = f.str("resource_id"); err != nil {
		return a, err
	}
	if a.Date, err = f.date("date"); err != nil {
		return a, err
	}
	return a, nil
}

// ParseResourceType accepts the lower- or upper-case query parameter form.
func ParseResourceType(s string) (planning.ResourceType, error) {
	rt := planning.ResourceType(strings.ToUpper(strings.TrimSpace(s)))
	if !rt.Valid() {
		return "", invalid("type", "expected worker, vehicle or device, got %q", s)
	}
	return rt, nil
}
