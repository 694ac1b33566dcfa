/*
handlers.go - HTTP API handlers for the planning engine

PURPOSE:
  Exposes the planning engine via REST API. Handles HTTP request/response,
  identity headers and JSON serialization, and delegates to the planning
  services.

ENDPOINTS:
  Planning:
    GET    /api/planning                  Week view (?worker_id&week_start)
    POST   /api/planning                  Create plan block
    PUT    /api/planning/{id}             Edit plan block
    DELETE /api/planning/{id}             Delete plan block
    POST   /api/planning/validate         Overlap check, answers {ok, message}
    POST   /api/planning/confirm-day      Realize a worker's day as time records

  Availability:
    GET    /api/resources/unassigned      ?date&type=worker|vehicle|device
    GET    /api/workers/unassigned        ?date&start&end

  Dispatch:
    POST   /api/dispatch/assignments      Bind a resource to a dispatch item

REQUEST FLOW:
  1. Resolve the actor from X-User-ID / X-User-Role / X-Worker-ID (writes only)
  2. Normalize the body through the factory package
  3. Call the planning service
  4. Serialize the {success, data, error} envelope

ERROR HANDLING:
  - 400: Validation errors, invalid input
  - 401: Missing identity headers
  - 403: Actor may not act for the worker
  - 404: Planning entry not found
  - 409: Overlap, confirmed entry, resource already assigned
  - 502: Backend failure
  - 500: Anything else

SEE ALSO:
  - dto.go: Response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/warp/planning-engine/factory"
	"github.com/warp/planning-engine/planning"
)

// Identity headers set by the upstream gateway.
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
	HeaderWorkerID = "X-Worker-ID"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds the services behind the HTTP API.
type Handler struct {
	Planning *planning.PlanningService
	Confirm  *planning.ConfirmService
	Resolver *planning.Resolver
	Dispatch *planning.DispatchService
	Seeder   Seeder
	Logger   zerolog.Logger

	// Today anchors default weeks and demo scenarios. Overridable in tests.
	Today func() planning.Date

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a handler. seeder may be nil, which disables scenarios.
func NewHandler(
	ps *planning.PlanningService,
	cs *planning.ConfirmService,
	resolver *planning.Resolver,
	ds *planning.DispatchService,
	seeder Seeder,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		Planning: ps,
		Confirm:  cs,
		Resolver: resolver,
		Dispatch: ds,
		Seeder:   seeder,
		Logger:   log,
		Today:    func() planning.Date { return planning.DateOf(time.Now()) },
	}
}

// =============================================================================
// PLANNING ENDPOINTS
// =============================================================================

// ListPlanning returns a week of plan blocks, refreshed from the backend.
func (h *Handler) ListPlanning(w http.ResponseWriter, r *http.Request) {
	weekStart := h.Today().WeekStart()
	if raw := r.URL.Query().Get("week_start"); raw != "" {
		d, err := planning.ParseDate(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_field", "invalid week_start", err)
			return
		}
		weekStart = d.WeekStart()
	}
	workerID := planning.WorkerID(r.URL.Query().Get("worker_id"))

	entries, err := h.Planning.LoadWeek(r.Context(), weekStart, workerID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, toPlanningEntryDTOs(entries))
}

// CreatePlanning adds a plan block after the overlap check.
func (h *Handler) CreatePlanning(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	entry, err := factory.ParsePlanningEntry(body)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	created, err := h.Planning.Create(r.Context(), actor, entry)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, toPlanningEntryDTO(created))
}

// UpdatePlanning edits a plan block. Only keys present in the body change.
func (h *Handler) UpdatePlanning(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	patch, err := factory.ParsePlanningPatch(body)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	id := planning.PlanningEntryID(chi.URLParam(r, "id"))
	updated, err := h.Planning.Update(r.Context(), actor, id, patch)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, toPlanningEntryDTO(updated))
}

// DeletePlanning removes a plan block.
func (h *Handler) DeletePlanning(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	id := planning.PlanningEntryID(chi.URLParam(r, "id"))
	if err := h.Planning.Delete(r.Context(), actor, id); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]string{"id": string(id)})
}

// ValidatePlanning reloads the worker's week and runs the overlap check
// without writing anything. It answers {ok, message} instead of the envelope.
func (h *Handler) ValidatePlanning(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	candidate, excludeID, err := factory.ParseValidateRequest(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ValidateResponse{OK: false, Message: err.Error()})
		return
	}

	if err := h.Planning.Validate(r.Context(), candidate, excludeID); err != nil {
		if planning.IsPersistence(err) {
			h.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ValidateResponse{OK: false, Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, ValidateResponse{OK: true})
}

// ConfirmDay realizes every planned block of a worker's day as a time record.
// Per-entry failures are reported inside data, not as an error.
func (h *Handler) ConfirmDay(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	req, err := factory.ParseConfirmDayRequest(body)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	if !actor.CanActFor(req.WorkerID) {
		h.writeDomainError(w, &planning.PermissionError{ActorID: actor.UserID, WorkerID: req.WorkerID})
		return
	}

	// The day must be current in the store before it is confirmed.
	if _, err := h.Planning.LoadWeek(r.Context(), req.Date.WeekStart(), req.WorkerID); err != nil {
		h.writeDomainError(w, err)
		return
	}

	result, err := h.Confirm.ConfirmDay(r.Context(), actor, req.Date, req.WorkerID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, toConfirmDayDTO(result))
}

// =============================================================================
// AVAILABILITY ENDPOINTS
// =============================================================================

// UnassignedResources lists active resources of one type with no dispatch
// assignment on the date.
func (h *Handler) UnassignedResources(w http.ResponseWriter, r *http.Request) {
	date, err := planning.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_field", "invalid date", err)
		return
	}
	rt, err := factory.ParseResourceType(r.URL.Query().Get("type"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, toResourceDTOs(h.Resolver.UnassignedForDate(date, rt)))
}

// UnassignedWorkers lists active workers free during [start, end) on date.
// Without start and end the whole day is checked.
func (h *Handler) UnassignedWorkers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	date, err := planning.ParseDate(q.Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_field", "invalid date", err)
		return
	}
	start, err := optionalClock(q.Get("start"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_field", "invalid start", err)
		return
	}
	end, err := optionalClock(q.Get("end"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_field", "invalid end", err)
		return
	}
	writeSuccess(w, http.StatusOK, workersToResourceDTOs(h.Resolver.UnassignedWorkersForWindow(date, start, end)))
}

// =============================================================================
// DISPATCH ENDPOINTS
// =============================================================================

// CreateAssignment binds a resource to a dispatch item. Admin only.
func (h *Handler) CreateAssignment(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	a, err := factory.ParseAssignment(body)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	created, err := h.Dispatch.Assign(r.Context(), actor, a)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, toAssignmentDTO(created))
}

// =============================================================================
// HELPERS
// =============================================================================

// actorFromRequest reads the identity headers. Role defaults to WORKER.
func actorFromRequest(r *http.Request) (planning.Actor, error) {
	userID := strings.TrimSpace(r.Header.Get(HeaderUserID))
	if userID == "" {
		return planning.Actor{}, errors.New("missing " + HeaderUserID + " header")
	}
	role := planning.Role(strings.ToUpper(strings.TrimSpace(r.Header.Get(HeaderUserRole))))
	switch role {
	case "":
		role = planning.RoleWorker
	case planning.RoleAdmin, planning.RoleWorker:
	default:
		return planning.Actor{}, errors.New("unknown role " + string(role))
	}
	return planning.Actor{
		UserID:   userID,
		Role:     role,
		WorkerID: planning.WorkerID(strings.TrimSpace(r.Header.Get(HeaderWorkerID))),
	}, nil
}

func requireActor(w http.ResponseWriter, r *http.Request) (planning.Actor, bool) {
	actor, err := actorFromRequest(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthenticated", err.Error(), nil)
		return planning.Actor{}, false
	}
	return actor, true
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "Invalid request body", err)
		return nil, false
	}
	return body, true
}

func optionalClock(raw string) (*planning.ClockTime, error) {
	if raw == "" {
		return nil, nil
	}
	c, err := planning.ParseClockTime(raw)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// writeDomainError maps engine errors onto HTTP statuses.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	var (
		ve         *planning.ValidationError
		ie         *factory.InputError
		pe         *planning.PersistenceError
		status     int
		code       string
		conflictID string
	)
	switch {
	case planning.IsPermission(err):
		status, code = http.StatusForbidden, "permission_denied"
	case errors.As(err, &ve):
		status, code, conflictID = http.StatusBadRequest, ve.Code, string(ve.ConflictingID)
		if errors.Is(err, planning.ErrConflict) {
			status = http.StatusConflict
		}
	case errors.As(err, &ie):
		status, code = http.StatusBadRequest, "invalid_field"
	case errors.Is(err, planning.ErrEntryConfirmed):
		status, code = http.StatusConflict, "entry_confirmed"
	case errors.Is(err, planning.ErrResourceAlreadyAssigned):
		status, code = http.StatusConflict, "resource_already_assigned"
	case planning.IsClientError(err):
		status, code = http.StatusBadRequest, "invalid_request"
	case planning.IsNotFound(err):
		status, code = http.StatusNotFound, "not_found"
	case errors.As(err, &pe):
		status, code = http.StatusBadGateway, "persistence_failed"
	default:
		status, code = http.StatusInternalServerError, "internal"
	}

	if status >= http.StatusInternalServerError {
		h.Logger.Error().Err(err).Int("status", status).Msg("request failed")
	}
	writeJSON(w, status, Response{
		Success: false,
		Error:   &ErrorDTO{Code: code, Message: err.Error(), ConflictingID: conflictID},
	})
}

func writeSuccess(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, Response{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, code, message string, err error) {
	if err != nil {
		message += ": " + err.Error()
	}
	writeJSON(w, status, Response{Success: false, Error: &ErrorDTO{Code: code, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
