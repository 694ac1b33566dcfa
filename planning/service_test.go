package planning_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/planning-engine/planning"
	"github.com/warp/planning-engine/planning/store"
)

func newPlanningService(t *testing.T, entries ...planning.PlanningEntry) (*planning.PlanningService, *store.Memory) {
	t.Helper()
	backend := store.NewMemory()
	backend.Seed(planning.State{PlanningEntries: entries})
	state := planning.NewStateStore(planning.State{PlanningEntries: entries}, zerolog.Nop())
	return planning.NewPlanningService(state, backend, zerolog.Nop()), backend
}

func TestPlanningService_CreateRejectsOverlapBeforeBackend(t *testing.T) {
	svc, backend := newPlanningService(t, timed("p1", "w1", "08:00", "12:00", planning.CategoryProject))

	_, err := svc.Create(context.Background(), admin, timed("", "w1", "10:00", "14:00", planning.CategoryProject))
	assert.ErrorIs(t, err, planning.ErrConflict)
	assert.Zero(t, backend.Calls["CreatePlanningEntry"])

	created, err := svc.Create(context.Background(), admin, timed("", "w1", "14:00", "17:00", planning.CategoryProject))
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, planning.StatusPlanned, created.Status)
	assert.Equal(t, planning.SourceAdminPlan, created.Source)
	assert.Len(t, svc.Entries("w1", jan22), 2)
}

func TestPlanningService_CreateForcesPlannedAndClearsAllDayTimes(t *testing.T) {
	svc, _ := newPlanningService(t)

	entry := allDay("", "w1")
	entry.StartTime = planning.MustParseClockTime("08:00").Ptr()
	entry.Status = planning.StatusConfirmed

	created, err := svc.Create(context.Background(), worker1, entry)
	require.NoError(t, err)
	assert.Equal(t, planning.StatusPlanned, created.Status)
	assert.Equal(t, planning.SourceSelfPlan, created.Source)
	assert.Nil(t, created.StartTime)
	assert.Equal(t, "u-w1", created.CreatedByUserID)
}

func TestPlanningService_WorkerCannotPlanForOthers(t *testing.T) {
	svc, backend := newPlanningService(t)

	_, err := svc.Create(context.Background(), worker1, timed("", "w2", "08:00", "09:00", planning.CategoryProject))
	assert.True(t, planning.IsPermission(err))
	assert.Empty(t, backend.Calls)
}

func TestPlanningService_CreateRequiresKnownCategory(t *testing.T) {
	svc, _ := newPlanningService(t)

	_, err := svc.Create(context.Background(), admin, timed("", "w1", "08:00", "09:00", "URLAUBSTAG"))
	var vErr *planning.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "invalid_field", vErr.Code)
}

func TestPlanningService_CreateBackendFailure(t *testing.T) {
	svc, _ := newPlanningService(t)
	svc.Backend = failingCreateBackend{Memory: store.NewMemory()}

	_, err := svc.Create(context.Background(), admin, timed("", "w1", "08:00", "09:00", planning.CategoryProject))
	assert.True(t, planning.IsPersistence(err))
	assert.Empty(t, svc.Entries("w1", jan22), "store untouched on failure")
}

type failingCreateBackend struct{ *store.Memory }

func (failingCreateBackend) CreatePlanningEntry(context.Context, planning.PlanningEntry) (planning.PlanningEntry, error) {
	return planning.PlanningEntry{}, errors.New("unavailable")
}

func TestPlanningService_UpdateExcludesItself(t *testing.T) {
	svc, _ := newPlanningService(t,
		timed("p1", "w1", "08:00", "12:00", planning.CategoryProject),
		timed("p2", "w1", "13:00", "15:00", planning.CategoryProject),
	)
	ctx := context.Background()

	// Extending p1 to 12:30 overlaps only itself.
	end := planning.MustParseClockTime("12:30")
	updated, err := svc.Update(ctx, admin, "p1", planning.PlanningPatch{EndTime: &end})
	require.NoError(t, err)
	assert.Equal(t, "12:30", updated.EndTime.String())

	// Extending into p2 is rejected.
	end = planning.MustParseClockTime("14:00")
	_, err = svc.Update(ctx, admin, "p1", planning.PlanningPatch{EndTime: &end})
	var vErr *planning.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, planning.PlanningEntryID("p2"), vErr.ConflictingID)
}

func TestPlanningService_UpdateIgnoresStatusChange(t *testing.T) {
	svc, _ := newPlanningService(t, timed("p1", "w1", "08:00", "12:00", planning.CategoryProject))

	status := planning.StatusConfirmed
	note := "Material mitnehmen"
	updated, err := svc.Update(context.Background(), admin, "p1", planning.PlanningPatch{Status: &status, Note: &note})
	require.NoError(t, err)
	assert.Equal(t, planning.StatusPlanned, updated.Status)
	assert.Equal(t, note, updated.Note)
}

func TestPlanningService_ConfirmedEntriesAreImmutable(t *testing.T) {
	confirmed := timed("c1", "w1", "08:00", "12:00", planning.CategoryProject)
	confirmed.Status = planning.StatusConfirmed
	svc, _ := newPlanningService(t, confirmed)
	ctx := context.Background()

	note := "x"
	_, err := svc.Update(ctx, admin, "c1", planning.PlanningPatch{Note: &note})
	assert.ErrorIs(t, err, planning.ErrEntryConfirmed)
	assert.ErrorIs(t, svc.Delete(ctx, admin, "c1"), planning.ErrEntryConfirmed)
}

func TestPlanningService_DeleteRemovesFromStore(t *testing.T) {
	svc, backend := newPlanningService(t, timed("p1", "w1", "08:00", "12:00", planning.CategoryProject))

	require.NoError(t, svc.Delete(context.Background(), admin, "p1"))
	assert.Empty(t, svc.Entries("w1", jan22))
	_, ok := backend.PlanningEntry("p1")
	assert.False(t, ok)

	assert.True(t, planning.IsNotFound(svc.Delete(context.Background(), admin, "p1")))
}

func TestPlanningService_WeekOrderedAndLoaded(t *testing.T) {
	monday := planning.MustParseDate("2025-01-20")
	early := timed("p-early", "w1", "07:00", "08:00", planning.CategoryProject)
	later := timed("p-later", "w1", "09:00", "10:00", planning.CategoryProject)
	tuesday := timed("p-tue", "w1", "09:00", "10:00", planning.CategoryProject)
	tuesday.Date = monday.AddDays(1)
	nextWeek := timed("p-next", "w1", "09:00", "10:00", planning.CategoryProject)
	nextWeek.Date = monday.AddDays(7)

	svc, backend := newPlanningService(t)
	backend.Seed(planning.State{PlanningEntries: []planning.PlanningEntry{later, nextWeek, early, tuesday}})

	week, err := svc.LoadWeek(context.Background(), monday, "w1")
	require.NoError(t, err)

	ids := make([]planning.PlanningEntryID, len(week))
	for i, e := range week {
		ids[i] = e.ID
	}
	assert.Equal(t, []planning.PlanningEntryID{"p-tue", "p-early", "p-later"}, ids)
}

func TestPlanningService_CreateSeesEntriesOnlyInBackend(t *testing.T) {
	// GIVEN: The backend holds a block the store has never loaded
	svc, backend := newPlanningService(t)
	backend.Seed(planning.State{PlanningEntries: []planning.PlanningEntry{
		timed("p-remote", "w1", "08:00", "12:00", planning.CategoryProject),
	}})

	// WHEN: An overlapping block is created
	_, err := svc.Create(context.Background(), admin, timed("", "w1", "10:00", "14:00", planning.CategoryProject))

	// THEN: It is rejected against the backend's block
	var vErr *planning.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.ErrorIs(t, err, planning.ErrConflict)
	assert.Equal(t, planning.PlanningEntryID("p-remote"), vErr.ConflictingID)
	assert.Zero(t, backend.Calls["CreatePlanningEntry"])
}

func TestPlanningService_UpdateAndDeleteEntriesOnlyInBackend(t *testing.T) {
	svc, backend := newPlanningService(t)
	backend.Seed(planning.State{PlanningEntries: []planning.PlanningEntry{
		timed("p1", "w1", "08:00", "12:00", planning.CategoryProject),
		timed("p2", "w1", "13:00", "15:00", planning.CategoryProject),
	}})
	ctx := context.Background()

	note := "Gerüst"
	updated, err := svc.Update(ctx, admin, "p1", planning.PlanningPatch{Note: &note})
	require.NoError(t, err)
	assert.Equal(t, note, updated.Note)

	end := planning.MustParseClockTime("14:00")
	_, err = svc.Update(ctx, admin, "p1", planning.PlanningPatch{EndTime: &end})
	assert.ErrorIs(t, err, planning.ErrConflict)

	require.NoError(t, svc.Delete(ctx, admin, "p2"))
	_, ok := backend.PlanningEntry("p2")
	assert.False(t, ok)
}

func TestPlanningService_LoadWeekDropsEntriesGoneFromBackend(t *testing.T) {
	// GIVEN: The store still holds a block another client deleted
	stale := timed("p-stale", "w1", "08:00", "12:00", planning.CategoryProject)
	other := timed("p-other", "w2", "08:00", "12:00", planning.CategoryProject)
	svc, backend := newPlanningService(t, stale, other)
	require.NoError(t, backend.DeletePlanningEntry(context.Background(), "p-stale"))

	// WHEN: w1's week is reloaded
	_, err := svc.LoadWeek(context.Background(), jan22.WeekStart(), "w1")
	require.NoError(t, err)

	// THEN: The stale block is gone and other workers are untouched
	assert.Empty(t, svc.Entries("w1", jan22))
	assert.Len(t, svc.Entries("w2", jan22), 1)

	// AND: A block in the freed slot is accepted
	_, err = svc.Create(context.Background(), admin, timed("", "w1", "09:00", "10:00", planning.CategoryProject))
	assert.NoError(t, err)
}

// slowCreateBackend widens the window between validation and persistence.
type slowCreateBackend struct{ *store.Memory }

func (b slowCreateBackend) CreatePlanningEntry(ctx context.Context, e planning.PlanningEntry) (planning.PlanningEntry, error) {
	time.Sleep(50 * time.Millisecond)
	return b.Memory.CreatePlanningEntry(ctx, e)
}

func TestPlanningService_ConcurrentOverlappingCreatesBookOnce(t *testing.T) {
	// GIVEN: A slow backend and two overlapping blocks for the same worker
	svc, backend := newPlanningService(t)
	svc.Backend = slowCreateBackend{Memory: backend}
	blocks := []planning.PlanningEntry{
		timed("", "w1", "08:00", "12:00", planning.CategoryProject),
		timed("", "w1", "10:00", "14:00", planning.CategoryProject),
	}

	// WHEN: Both are created at the same time
	errs := make([]error, len(blocks))
	var wg sync.WaitGroup
	for i, b := range blocks {
		wg.Add(1)
		go func(i int, b planning.PlanningEntry) {
			defer wg.Done()
			_, errs[i] = svc.Create(context.Background(), admin, b)
		}(i, b)
	}
	wg.Wait()

	// THEN: Exactly one is persisted, the other is a conflict
	conflicts := 0
	for _, err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, planning.ErrConflict)
			conflicts++
		}
	}
	assert.Equal(t, 1, conflicts)
	persisted, err := backend.PlanningEntries(context.Background(), jan22.WeekStart(), "w1")
	require.NoError(t, err)
	assert.Len(t, persisted, 1)
	assert.Len(t, svc.Entries("w1", jan22), 1)
}
