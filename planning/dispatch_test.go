package planning_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/planning-engine/planning"
	"github.com/warp/planning-engine/planning/store"
)

func TestDispatchService_LoadReplacesMasterData(t *testing.T) {
	backend := store.NewMemory()
	backend.Seed(fleetState())
	state := planning.NewStateStore(planning.State{
		Workers: []planning.Worker{{ID: "stale", Name: "Gone", Active: true}},
	}, zerolog.Nop())
	svc := planning.NewDispatchService(state, backend, zerolog.Nop())

	require.NoError(t, svc.Reload(context.Background()))

	s := state.GetState()
	assert.Len(t, s.Workers, 3)
	for _, w := range s.Workers {
		assert.NotEqual(t, planning.WorkerID("stale"), w.ID)
	}
	assert.Len(t, s.DispatchItems, 2)
}

func TestDispatchService_LoadFailureWritesNothing(t *testing.T) {
	backend := store.NewMemory()
	backend.Seed(fleetState())
	backend.FailDispatch = func() error { return errors.New("offline") }
	state := planning.NewStateStore(planning.State{}, zerolog.Nop())
	svc := planning.NewDispatchService(state, backend, zerolog.Nop())
	before := state.Revisions()

	err := svc.Reload(context.Background())
	assert.True(t, planning.IsPersistence(err))
	assert.Equal(t, before, state.Revisions())
}

func TestDispatchService_RangedLoadMergesDispatchData(t *testing.T) {
	backend := store.NewMemory()
	backend.Seed(fleetState())
	other := planning.DispatchItem{ID: "i-other", Title: "Elsewhere", Date: jan22.AddDays(10)}
	state := planning.NewStateStore(planning.State{DispatchItems: []planning.DispatchItem{other}}, zerolog.Nop())
	svc := planning.NewDispatchService(state, backend, zerolog.Nop())

	require.NoError(t, svc.Load(context.Background(), &jan22, &jan22))

	items := state.GetState().DispatchItems
	require.Len(t, items, 3)
	assert.Equal(t, planning.DispatchItemID("i-other"), items[0].ID)
}

func TestDispatchService_AssignRejectsSecondVehicleBooking(t *testing.T) {
	backend := store.NewMemory()
	backend.Seed(fleetState())
	state := planning.NewStateStore(fleetState(), zerolog.Nop())
	svc := planning.NewDispatchService(state, backend, zerolog.Nop())
	ctx := context.Background()

	a := planning.DispatchAssignment{DispatchItemID: "i-morning", ResourceType: planning.ResourceVehicle, ResourceID: "v1", Date: jan22}
	first, err := svc.Assign(ctx, admin, a)
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)

	a.DispatchItemID = "i-allday"
	_, err = svc.Assign(ctx, admin, a)
	assert.ErrorIs(t, err, planning.ErrResourceAlreadyAssigned)

	// Workers may hold several assignments per day.
	w := planning.DispatchAssignment{DispatchItemID: "i-morning", ResourceType: planning.ResourceWorker, ResourceID: "w1", Date: jan22}
	_, err = svc.Assign(ctx, admin, w)
	require.NoError(t, err)
	w.DispatchItemID = "i-allday"
	_, err = svc.Assign(ctx, admin, w)
	require.NoError(t, err)

	assert.Len(t, state.GetState().DispatchAssignments, 3)
}

func TestDispatchService_AssignAdminOnly(t *testing.T) {
	state := planning.NewStateStore(fleetState(), zerolog.Nop())
	svc := planning.NewDispatchService(state, store.NewMemory(), zerolog.Nop())

	_, err := svc.Assign(context.Background(), worker1, planning.DispatchAssignment{
		DispatchItemID: "i-morning", ResourceType: planning.ResourceWorker, ResourceID: "w1", Date: jan22,
	})
	assert.True(t, planning.IsPermission(err))
}
