package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/planning-engine/planning"
	"github.com/warp/planning-engine/store/sqlite"
)

var jan22 = planning.MustParseDate("2025-01-22")

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_PlanningEntryRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	loc := planning.LocationID("loc-a")

	created, err := s.CreatePlanningEntry(ctx, planning.PlanningEntry{
		WorkerID:   "w1",
		Date:       jan22,
		StartTime:  planning.MustParseClockTime("08:00").Ptr(),
		EndTime:    planning.MustParseClockTime("12:00").Ptr(),
		LocationID: &loc,
		Category:   planning.CategoryProject,
		Status:     planning.StatusPlanned,
		Source:     planning.SourceAdminPlan,
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	week, err := s.PlanningEntries(ctx, jan22.WeekStart(), "w1")
	require.NoError(t, err)
	require.Len(t, week, 1)
	got := week[0]
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "08:00", got.StartTime.String())
	assert.Equal(t, "12:00", got.EndTime.String())
	require.NotNil(t, got.LocationID)
	assert.Equal(t, loc, *got.LocationID)
	assert.Equal(t, planning.SourceAdminPlan, got.Source)
	assert.Nil(t, got.TimeEntryID)

	// Other worker, other week
	none, err := s.PlanningEntries(ctx, jan22.WeekStart(), "w2")
	require.NoError(t, err)
	assert.Empty(t, none)
	none, err = s.PlanningEntries(ctx, jan22.WeekStart().AddDays(7), "")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStore_UpdateAndDeletePlanningEntry(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	created, err := s.CreatePlanningEntry(ctx, planning.PlanningEntry{
		ID: "p1", WorkerID: "w1", Date: jan22, AllDay: true,
		Category: planning.CategoryVacation, Status: planning.StatusPlanned,
	})
	require.NoError(t, err)

	status := planning.StatusConfirmed
	teID := planning.TimeEntryID("te-1")
	updated, err := s.UpdatePlanningEntry(ctx, created.ID, planning.PlanningPatch{Status: &status, TimeEntryID: &teID})
	require.NoError(t, err)
	assert.Equal(t, planning.StatusConfirmed, updated.Status)

	stored, err := s.GetPlanningEntry(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.NotNil(t, stored.TimeEntryID)
	assert.Equal(t, teID, *stored.TimeEntryID)
	assert.True(t, stored.AllDay)

	_, err = s.UpdatePlanningEntry(ctx, "missing", planning.PlanningPatch{Status: &status})
	assert.ErrorIs(t, err, planning.ErrEntryNotFound)

	require.NoError(t, s.DeletePlanningEntry(ctx, "p1"))
	assert.ErrorIs(t, s.DeletePlanningEntry(ctx, "p1"), planning.ErrEntryNotFound)
}

func TestStore_TimeEntriesAppendOnlyOnePerSource(t *testing.T) {
	// GIVEN: a record created from planning entry p1
	// WHEN: a second record for p1 is appended
	// THEN: the unique source index rejects it

	ctx := context.Background()
	s := newStore(t)
	source := planning.PlanningEntryID("p1")
	at := time.Date(2025, 1, 22, 17, 0, 0, 0, time.UTC)
	by := "u-admin"

	rec := planning.TimeEntry{
		WorkerID:  "w1",
		EntryDate: jan22,
		TimeFrom:  planning.MustParseClockTime("08:00"),
		TimeTo:    planning.MustParseClockTime("12:30"),
		Hours:     decimal.RequireFromString("4.5"),
		Category:  planning.CategoryProject,
		Status:    planning.StatusConfirmed,
		Meta: planning.TimeEntryMeta{
			SourcePlanningEntryID:       &source,
			CreatedFromPlanningAt:       &at,
			CreatedFromPlanningByUserID: &by,
		},
	}
	first, err := s.CreateTimeEntry(ctx, rec)
	require.NoError(t, err)

	_, err = s.CreateTimeEntry(ctx, rec)
	assert.Error(t, err)

	got, err := s.TimeEntries(ctx, planning.TimeEntryFilter{WorkerID: "w1", From: &jan22, To: &jan22})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, first.ID, got[0].ID)
	assert.True(t, got[0].Hours.Equal(decimal.RequireFromString("4.5")))
	assert.Equal(t, "12:30", got[0].TimeTo.String())
	require.True(t, got[0].HasSource())
	assert.Equal(t, source, *got[0].Meta.SourcePlanningEntryID)
	require.NotNil(t, got[0].Meta.CreatedFromPlanningAt)
	assert.True(t, at.Equal(*got[0].Meta.CreatedFromPlanningAt))

	// Legacy records without a source may repeat.
	legacy := rec
	legacy.Meta = planning.TimeEntryMeta{}
	_, err = s.CreateTimeEntry(ctx, legacy)
	require.NoError(t, err)
	_, err = s.CreateTimeEntry(ctx, legacy)
	require.NoError(t, err)
}

func TestStore_SingleAssignmentPerDateForVehicles(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	vehicle := planning.DispatchAssignment{DispatchItemID: "i1", ResourceType: planning.ResourceVehicle, ResourceID: "v1", Date: jan22}
	_, err := s.CreateDispatchAssignment(ctx, vehicle)
	require.NoError(t, err)

	vehicle.DispatchItemID = "i2"
	_, err = s.CreateDispatchAssignment(ctx, vehicle)
	assert.ErrorIs(t, err, planning.ErrResourceAlreadyAssigned)

	vehicle.Date = jan22.AddDays(1)
	_, err = s.CreateDispatchAssignment(ctx, vehicle)
	assert.NoError(t, err)

	worker := planning.DispatchAssignment{DispatchItemID: "i1", ResourceType: planning.ResourceWorker, ResourceID: "w1", Date: jan22}
	_, err = s.CreateDispatchAssignment(ctx, worker)
	require.NoError(t, err)
	worker.DispatchItemID = "i2"
	_, err = s.CreateDispatchAssignment(ctx, worker)
	assert.NoError(t, err, "workers may be assigned several times per day")

	got, err := s.DispatchAssignments(ctx, &jan22, &jan22)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestStore_DispatchItemsRangeOverlap(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	end := jan22.AddDays(2)

	require.NoError(t, s.Seed(ctx, planning.State{
		Workers:   []planning.Worker{{ID: "w1", Name: "Anna", Active: true}, {ID: "w2", Name: "Ben", Active: false}},
		Vehicles:  []planning.Vehicle{{ID: "v1", Name: "Sprinter", Plate: "M-AB 123", Active: true}},
		Devices:   []planning.Device{{ID: "d1", Name: "Rüttelplatte", Active: true}},
		Locations: []planning.Location{{ID: "loc-a", Name: "Baustelle Nord"}},
		DispatchItems: []planning.DispatchItem{
			{ID: "range", Title: "Rohbau", Date: jan22, EndDate: &end, AllDay: true},
			{ID: "single", Title: "Abnahme", Date: jan22.AddDays(5),
				StartTime: planning.MustParseClockTime("09:00").Ptr(), EndTime: planning.MustParseClockTime("10:00").Ptr()},
		},
	}))

	day := jan22.AddDays(1)
	items, err := s.DispatchItems(ctx, &day, &day)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, planning.DispatchItemID("range"), items[0].ID)
	require.NotNil(t, items[0].EndDate)
	assert.True(t, items[0].Covers(day))

	all, err := s.DispatchItems(ctx, nil, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, "09:00", all[1].StartTime.String())

	workers, err := s.Workers(ctx)
	require.NoError(t, err)
	require.Len(t, workers, 2)
	assert.False(t, workers[1].Active)

	vehicles, err := s.Vehicles(ctx)
	require.NoError(t, err)
	assert.Equal(t, "M-AB 123", vehicles[0].Plate)

	require.NoError(t, s.Reset(ctx))
	all, err = s.DispatchItems(ctx, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, all)
}
