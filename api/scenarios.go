/*
scenarios.go - Demo scenario loaders

PURPOSE:
  Provides pre-configured demo scenarios for the planning board. Each
  scenario resets the backend, seeds a set of workers, vehicles, devices,
  dispatch items and plan blocks around today's date, and then reloads the
  in-memory state from the backend.

AVAILABLE SCENARIOS:
  1. construction-day: Two sites, a full crew, vehicles and devices partly booked
  2. legacy-records:   A day with an older time record that confirm-day must link
  3. empty-yard:       Master data only, nothing planned or dispatched

USAGE:
  GET  /api/scenarios           - List available scenarios
  POST /api/scenarios/load      - Load a scenario {"scenario_id": "..."}

SEE ALSO:
  - store/sqlite/sqlite.go: Seed and Reset
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/warp/planning-engine/planning"
)

// Seeder writes demo data to the backend.
type Seeder interface {
	Reset(ctx context.Context) error
	Seed(ctx context.Context, st planning.State) error
	CreateTimeEntry(ctx context.Context, t planning.TimeEntry) (planning.TimeEntry, error)
}

// scenarioData is what a scenario writes.
type scenarioData struct {
	State       planning.State
	TimeEntries []planning.TimeEntry
}

type scenario struct {
	ScenarioDTO
	build func(today planning.Date) scenarioData
}

var scenarios = []scenario{
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "construction-day",
			Name:        "Construction Day",
			Description: "Two sites with a crew of three. One vehicle and one device are booked, the rest is free.",
		},
		build: constructionDay,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "legacy-records",
			Name:        "Legacy Time Records",
			Description: "Anna already has a hand-entered time record matching one of her planned blocks.",
		},
		build: legacyRecords,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "empty-yard",
			Name:        "Empty Yard",
			Description: "Workers, vehicles and devices with nothing planned.",
		},
		build: emptyYard,
	},
}

// ListScenarios returns all available demo scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	out := make([]ScenarioDTO, len(scenarios))
	for i, s := range scenarios {
		out[i] = s.ScenarioDTO
	}
	writeSuccess(w, http.StatusOK, out)
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	if h.Seeder == nil {
		writeError(w, http.StatusNotImplemented, "unsupported", "Scenarios need a seedable backend", nil)
		return
	}

	var req struct {
		ScenarioID string `json:"scenario_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "Invalid request body", err)
		return
	}

	var found *scenario
	for i := range scenarios {
		if scenarios[i].ID == req.ScenarioID {
			found = &scenarios[i]
			break
		}
	}
	if found == nil {
		writeError(w, http.StatusBadRequest, "unknown_scenario", "Unknown scenario "+req.ScenarioID, nil)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.loadScenario(r.Context(), found.build(h.Today())); err != nil {
		h.currentScenario = ""
		h.Logger.Error().Err(err).Str("scenario", found.ID).Msg("scenario load failed")
		writeError(w, http.StatusInternalServerError, "scenario_failed", "Failed to load scenario", err)
		return
	}
	h.currentScenario = found.ID
	h.Logger.Info().Str("scenario", found.ID).Msg("scenario loaded")

	writeSuccess(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": found.ID})
}

func (h *Handler) loadScenario(ctx context.Context, data scenarioData) error {
	if err := h.Seeder.Reset(ctx); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	if err := h.Seeder.Seed(ctx, data.State); err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	for _, t := range data.TimeEntries {
		if _, err := h.Seeder.CreateTimeEntry(ctx, t); err != nil {
			return fmt.Errorf("seed time entry %s: %w", t.ID, err)
		}
	}

	if err := h.Dispatch.Reload(ctx); err != nil {
		return err
	}
	h.Planning.ReplaceAll(nil)
	weeks := map[planning.Date]bool{}
	for _, e := range data.State.PlanningEntries {
		weeks[e.Date.WeekStart()] = true
	}
	for weekStart := range weeks {
		if _, err := h.Planning.LoadWeek(ctx, weekStart, ""); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// SCENARIO BUILDERS
// =============================================================================

func crew() []planning.Worker {
	return []planning.Worker{
		{ID: "w-anna", Name: "Anna Berger", Active: true},
		{ID: "w-ben", Name: "Ben Krause", Active: true},
		{ID: "w-cem", Name: "Cem Yilmaz", Active: true},
		{ID: "w-dora", Name: "Dora Alt", Active: false},
	}
}

func fleet() ([]planning.Vehicle, []planning.Device) {
	vehicles := []planning.Vehicle{
		{ID: "v-sprinter", Name: "Sprinter", Plate: "M-PL 101", Active: true},
		{ID: "v-crafter", Name: "Crafter", Plate: "M-PL 102", Active: true},
		{ID: "v-kipper", Name: "Kipper", Plate: "M-PL 230", Active: true},
	}
	devices := []planning.Device{
		{ID: "d-bagger", Name: "Minibagger", Serial: "KB-1702", Active: true},
		{ID: "d-ruettler", Name: "Rüttelplatte", Serial: "RP-88", Active: true},
	}
	return vehicles, devices
}

func sites() []planning.Location {
	return []planning.Location{
		{ID: "loc-schule", Name: "Grundschule Nord", Address: "Schulweg 4"},
		{ID: "loc-hof", Name: "Bauhof", Address: "Industriestraße 12"},
	}
}

func block(id string, worker planning.WorkerID, date planning.Date, from, to string, loc planning.LocationID) planning.PlanningEntry {
	return planning.PlanningEntry{
		ID:         planning.PlanningEntryID(id),
		WorkerID:   worker,
		Date:       date,
		StartTime:  planning.MustParseClockTime(from).Ptr(),
		EndTime:    planning.MustParseClockTime(to).Ptr(),
		LocationID: &loc,
		Category:   planning.CategoryProject,
		Status:     planning.StatusPlanned,
		Source:     planning.SourceAdminPlan,
	}
}

func constructionDay(today planning.Date) scenarioData {
	vehicles, devices := fleet()
	schule := planning.LocationID("loc-schule")
	return scenarioData{State: planning.State{
		Workers:   crew(),
		Vehicles:  vehicles,
		Devices:   devices,
		Locations: sites(),
		DispatchItems: []planning.DispatchItem{
			{
				ID: "di-fundament", Title: "Fundament gießen", LocationID: &schule, Date: today,
				StartTime: planning.MustParseClockTime("07:00").Ptr(),
				EndTime:   planning.MustParseClockTime("12:00").Ptr(),
			},
			{ID: "di-pflaster", Title: "Pflasterarbeiten Hof", Date: today, AllDay: true},
		},
		DispatchAssignments: []planning.DispatchAssignment{
			{ID: "a-1", DispatchItemID: "di-fundament", ResourceType: planning.ResourceWorker, ResourceID: "w-anna", Date: today},
			{ID: "a-2", DispatchItemID: "di-fundament", ResourceType: planning.ResourceVehicle, ResourceID: "v-sprinter", Date: today},
			{ID: "a-3", DispatchItemID: "di-pflaster", ResourceType: planning.ResourceDevice, ResourceID: "d-bagger", Date: today},
		},
		PlanningEntries: []planning.PlanningEntry{
			block("p-anna-am", "w-anna", today, "07:00", "12:00", "loc-schule"),
			block("p-anna-pm", "w-anna", today, "12:30", "16:00", "loc-hof"),
			{
				ID: "p-ben", WorkerID: "w-ben", Date: today, AllDay: true,
				Category: planning.CategoryProject, Status: planning.StatusPlanned, Source: planning.SourceAdminPlan,
			},
			{
				ID: "p-cem", WorkerID: "w-cem", Date: today, AllDay: true,
				Category: planning.CategoryVacation, Status: planning.StatusPlanned, Source: planning.SourceSelfPlan,
			},
		},
	}}
}

func legacyRecords(today planning.Date) scenarioData {
	vehicles, devices := fleet()
	schule := planning.LocationID("loc-schule")
	from, to := planning.MustParseClockTime("07:00"), planning.MustParseClockTime("12:00")
	return scenarioData{
		State: planning.State{
			Workers:   crew(),
			Vehicles:  vehicles,
			Devices:   devices,
			Locations: sites(),
			PlanningEntries: []planning.PlanningEntry{
				block("p-anna-am", "w-anna", today, "07:00", "12:00", "loc-schule"),
				block("p-anna-pm", "w-anna", today, "12:30", "16:00", "loc-hof"),
			},
		},
		// Entered by hand before planning existed; no source link.
		TimeEntries: []planning.TimeEntry{{
			ID:         "t-legacy-anna",
			WorkerID:   "w-anna",
			EntryDate:  today,
			TimeFrom:   from,
			TimeTo:     to,
			Hours:      decimal.NewFromInt(5),
			Category:   planning.CategoryProject,
			LocationID: &schule,
			Status:     planning.StatusConfirmed,
		}},
	}
}

func emptyYard(planning.Date) scenarioData {
	vehicles, devices := fleet()
	return scenarioData{State: planning.State{
		Workers:   crew(),
		Vehicles:  vehicles,
		Devices:   devices,
		Locations: sites(),
	}}
}
