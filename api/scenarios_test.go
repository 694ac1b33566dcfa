/*
scenarios_test.go - Unit tests for demo scenarios

PURPOSE:
	Tests that each scenario sets up the expected state in both the
	backend and the state store, and that loading one scenario replaces
	the previous one entirely.
*/
package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/planning-engine/planning"
)

func TestListScenarios(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/scenarios", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	env := decode[[]ScenarioDTO](t, rec)
	require.Len(t, env.Data, len(scenarios))
	assert.Equal(t, "construction-day", env.Data[0].ID)
	for _, s := range env.Data {
		assert.NotEmpty(t, s.Name)
		assert.NotEmpty(t, s.Description)
	}
}

func TestScenario_ConstructionDay(t *testing.T) {
	// GIVEN: A fresh backend
	f := newFixture(t)

	// WHEN: Loading the construction day
	f.loadScenario(t, "construction-day")

	// THEN: The state store mirrors the backend
	st := f.handler.Planning.State.GetState()
	assert.Len(t, st.Workers, 4)
	assert.Len(t, st.Vehicles, 3)
	assert.Len(t, st.Devices, 2)
	assert.Len(t, st.Locations, 2)
	assert.Len(t, st.DispatchItems, 2)
	assert.Len(t, st.DispatchAssignments, 3)
	assert.Len(t, st.PlanningEntries, 4)

	for _, e := range st.PlanningEntries {
		assert.True(t, f.today.Equal(e.Date))
		assert.Equal(t, planning.StatusPlanned, e.Status)
	}
	assert.Equal(t, "construction-day", f.handler.currentScenario)
}

func TestScenario_LegacyRecords(t *testing.T) {
	f := newFixture(t)
	f.loadScenario(t, "legacy-records")

	records, err := f.store.TimeEntries(context.Background(), planning.TimeEntryFilter{WorkerID: "w-anna"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.False(t, records[0].HasSource())
	assert.Equal(t, "07:00", records[0].TimeFrom.String())
}

func TestScenario_ReloadReplacesPrevious(t *testing.T) {
	// GIVEN: The construction day with an extra block
	f := newFixture(t)
	f.loadScenario(t, "construction-day")
	body := `{"worker_id":"w-anna","date":"2025-01-22","start_time":"16:00","end_time":"18:00","category":"PROJEKT"}`
	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/api/planning", body, admin).Code)

	// WHEN: The empty yard is loaded
	f.loadScenario(t, "empty-yard")

	// THEN: Nothing planned or dispatched survives
	st := f.handler.Planning.State.GetState()
	assert.Empty(t, st.PlanningEntries)
	assert.Empty(t, st.DispatchItems)
	assert.Empty(t, st.DispatchAssignments)
	assert.Len(t, st.Workers, 4)

	free := decode[[]ResourceDTO](t, f.do(t, http.MethodGet, "/api/resources/unassigned?date=2025-01-22&type=vehicle", "", nil))
	assert.Len(t, free.Data, 3)
}

func TestLoadScenario_Errors(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/scenarios/load", `{"scenario_id":"moon-base"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "unknown_scenario", decode[any](t, rec).Error.Code)

	rec = f.do(t, http.MethodPost, "/api/scenarios/load", `not json`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.handler.Seeder = nil
	rec = f.do(t, http.MethodPost, "/api/scenarios/load", `{"scenario_id":"empty-yard"}`, nil)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}
