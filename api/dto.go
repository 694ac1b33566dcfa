/*
dto.go - Data Transfer Objects for API responses

PURPOSE:
  Defines the JSON the API writes. Request bodies are not mirrored here:
  they arrive in snake_case or camelCase and are normalized by the factory
  package. Responses always use snake_case.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - Response: The {success, data, error} envelope

TYPES:
  Planning:   PlanningEntryDTO, ValidateResponse
  Confirm:    ConfirmDayDTO, ConfirmItemDTO, TimeEntryDTO
  Resources:  ResourceDTO, AssignmentDTO
  Scenarios:  ScenarioDTO

SEE ALSO:
  - handlers.go: Uses these types
  - factory/entry.go: Request body normalization
*/
package api

import (
	"time"

	"github.com/warp/planning-engine/planning"
)

// =============================================================================
// ENVELOPE
// =============================================================================

// Response is the structured envelope every endpoint except validate uses.
type Response struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *ErrorDTO `json:"error,omitempty"`
}

// ErrorDTO describes a failure.
type ErrorDTO struct {
	Code          string `json:"code"`
	Message       string `json:"message"`
	ConflictingID string `json:"conflicting_id,omitempty"`
}

// ValidateResponse is the overlap check result.
type ValidateResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

// =============================================================================
// PLANNING
// =============================================================================

// PlanningEntryDTO represents a planning entry in API responses.
type PlanningEntryDTO struct {
	ID          string  `json:"id"`
	WorkerID    string  `json:"worker_id"`
	Date        string  `json:"date"`
	AllDay      bool    `json:"all_day"`
	StartTime   *string `json:"start_time"`
	EndTime     *string `json:"end_time"`
	LocationID  *string `json:"location_id"`
	Category    string  `json:"category"`
	Note        string  `json:"note,omitempty"`
	Status      string  `json:"status"`
	Source      string  `json:"source,omitempty"`
	TimeEntryID *string `json:"time_entry_id"`
	UpdatedAt   string  `json:"updated_at,omitempty"`
}

func toPlanningEntryDTO(e planning.PlanningEntry) PlanningEntryDTO {
	dto := PlanningEntryDTO{
		ID:          string(e.ID),
		WorkerID:    string(e.WorkerID),
		Date:        e.Date.String(),
		AllDay:      e.AllDay,
		StartTime:   clockPtr(e.StartTime),
		EndTime:     clockPtr(e.EndTime),
		LocationID:  strPtr(e.LocationID),
		Category:    string(e.Category),
		Note:        e.Note,
		Status:      string(e.Status),
		Source:      string(e.Source),
		TimeEntryID: strPtr(e.TimeEntryID),
	}
	if !e.UpdatedAt.IsZero() {
		dto.UpdatedAt = e.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return dto
}

func toPlanningEntryDTOs(entries []planning.PlanningEntry) []PlanningEntryDTO {
	out := make([]PlanningEntryDTO, len(entries))
	for i, e := range entries {
		out[i] = toPlanningEntryDTO(e)
	}
	return out
}

// =============================================================================
// CONFIRM
// =============================================================================

// TimeEntryDTO represents a confirmed time record.
type TimeEntryDTO struct {
	ID                          string  `json:"id"`
	WorkerID                    string  `json:"worker_id"`
	EntryDate                   string  `json:"entry_date"`
	TimeFrom                    string  `json:"time_from"`
	TimeTo                      string  `json:"time_to"`
	Hours                       string  `json:"hours"`
	Category                    string  `json:"category"`
	LocationID                  *string `json:"location_id"`
	Status                      string  `json:"status"`
	SourcePlanningEntryID       *string `json:"source_planning_entry_id"`
	CreatedFromPlanningAt       *string `json:"created_from_planning_at"`
	CreatedFromPlanningByUserID *string `json:"created_from_planning_by_user_id"`
}

func toTimeEntryDTO(t planning.TimeEntry) TimeEntryDTO {
	dto := TimeEntryDTO{
		ID:                          string(t.ID),
		WorkerID:                    string(t.WorkerID),
		EntryDate:                   t.EntryDate.String(),
		TimeFrom:                    t.TimeFrom.String(),
		TimeTo:                      t.TimeTo.String(),
		Hours:                       t.Hours.StringFixed(2),
		Category:                    string(t.Category),
		LocationID:                  strPtr(t.LocationID),
		Status:                      string(t.Status),
		SourcePlanningEntryID:       strPtr(t.Meta.SourcePlanningEntryID),
		CreatedFromPlanningByUserID: t.Meta.CreatedFromPlanningByUserID,
	}
	if t.Meta.CreatedFromPlanningAt != nil {
		at := t.Meta.CreatedFromPlanningAt.UTC().Format(time.RFC3339)
		dto.CreatedFromPlanningAt = &at
	}
	return dto
}

// ConfirmItemDTO is the disposition of one planning entry.
type ConfirmItemDTO struct {
	EntryID     string `json:"entry_id"`
	Outcome     string `json:"outcome"`
	TimeEntryID string `json:"time_entry_id,omitempty"`
	Error       string `json:"error,omitempty"`
}

// ConfirmDayDTO is the confirm-day result.
type ConfirmDayDTO struct {
	Date           string           `json:"date"`
	WorkerID       string           `json:"worker_id"`
	ConfirmedCount int              `json:"confirmed_count"`
	SkippedCount   int              `json:"skipped_count"`
	Created        []TimeEntryDTO   `json:"created"`
	Items          []ConfirmItemDTO `json:"items"`
}

func toConfirmDayDTO(r *planning.ConfirmDayResult) ConfirmDayDTO {
	dto := ConfirmDayDTO{
		Date:           r.Date.String(),
		WorkerID:       string(r.WorkerID),
		ConfirmedCount: r.ConfirmedCount,
		SkippedCount:   r.SkippedCount,
		Created:        make([]TimeEntryDTO, len(r.Created)),
		Items:          make([]ConfirmItemDTO, len(r.Items)),
	}
	for i, t := range r.Created {
		dto.Created[i] = toTimeEntryDTO(t)
	}
	for i, it := range r.Items {
		item := ConfirmItemDTO{
			EntryID:     string(it.EntryID),
			Outcome:     string(it.Outcome),
			TimeEntryID: string(it.TimeEntryID),
		}
		if it.Err != nil {
			item.Error = it.Err.Error()
		}
		dto.Items[i] = item
	}
	return dto
}

// =============================================================================
// RESOURCES + DISPATCH
// =============================================================================

// ResourceDTO is a type-erased resource.
type ResourceDTO struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	Name string `json:"name"`
}

func toResourceDTOs(rs []planning.Resource) []ResourceDTO {
	out := make([]ResourceDTO, len(rs))
	for i, r := range rs {
		out[i] = ResourceDTO{Type: string(r.Type), ID: r.ID, Name: r.Name}
	}
	return out
}

func workersToResourceDTOs(ws []planning.Worker) []ResourceDTO {
	out := make([]ResourceDTO, len(ws))
	for i, w := range ws {
		out[i] = ResourceDTO{Type: string(planning.ResourceWorker), ID: string(w.ID), Name: w.Name}
	}
	return out
}

// AssignmentDTO represents a dispatch assignment.
type AssignmentDTO struct {
	ID             string `json:"id"`
	DispatchItemID string `json:"dispatch_item_id"`
	ResourceType   string `json:"resource_type"`
	ResourceID     string `json:"resource_id"`
	Date           string `json:"date"`
}

func toAssignmentDTO(a planning.DispatchAssignment) AssignmentDTO {
	return AssignmentDTO{
		ID:             string(a.ID),
		DispatchItemID: string(a.DispatchItemID),
		ResourceType:   string(a.ResourceType),
		ResourceID:     a.ResourceID,
		Date:           a.Date.String(),
	}
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// =============================================================================
// HELPERS
// =============================================================================

func strPtr[T ~string](p *T) *string {
	if p == nil {
		return nil
	}
	s := string(*p)
	return &s
}

func clockPtr(c *planning.ClockTime) *string {
	if c == nil {
		return nil
	}
	s := c.String()
	return &s
}
