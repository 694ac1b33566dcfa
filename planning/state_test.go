package planning_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/planning-engine/planning"
)

func newStateStore(initial planning.State) *planning.StateStore {
	return planning.NewStateStore(initial, zerolog.Nop())
}

func TestStateStore_GetStateIsIsolated(t *testing.T) {
	store := newStateStore(planning.State{
		PlanningEntries: []planning.PlanningEntry{timed("p1", "w1", "08:00", "12:00", planning.CategoryProject)},
	})

	snap := store.GetState()
	snap.PlanningEntries[0].Note = "mutated"
	*snap.PlanningEntries[0].StartTime = planning.NewClockTime(1, 0)

	fresh := store.GetState()
	assert.Empty(t, fresh.PlanningEntries[0].Note)
	assert.Equal(t, "08:00", fresh.PlanningEntries[0].StartTime.String())
}

func TestStateStore_SetStateMergesOnlyGivenCollections(t *testing.T) {
	store := newStateStore(planning.State{
		Workers:  []planning.Worker{{ID: "w1", Name: "Anna", Active: true}},
		Vehicles: []planning.Vehicle{{ID: "v1", Name: "Sprinter", Active: true}},
	})

	store.SetState(planning.Patch{Vehicles: []planning.Vehicle{}})

	s := store.GetState()
	assert.Len(t, s.Workers, 1, "workers untouched")
	assert.Empty(t, s.Vehicles, "vehicles cleared")
}

func TestStateStore_SubscribersNotifiedWithNewState(t *testing.T) {
	store := newStateStore(planning.State{})

	var seen []int
	unsubscribe := store.Subscribe(func(s planning.State) { seen = append(seen, len(s.Workers)) })

	store.SetState(planning.Patch{Workers: []planning.Worker{{ID: "w1"}}})
	store.Update(func(cur planning.State) planning.Patch {
		return planning.Patch{Workers: append(cur.Workers, planning.Worker{ID: "w2"})}
	})
	unsubscribe()
	store.SetState(planning.Patch{Workers: []planning.Worker{}})

	assert.Equal(t, []int{1, 2}, seen)
}

func TestStateStore_PanickingSubscriberDoesNotAbortWrite(t *testing.T) {
	// GIVEN: a subscriber that panics, registered before a healthy one
	// WHEN: writing
	// THEN: the write stands and the healthy subscriber still runs
	store := newStateStore(planning.State{})
	store.Subscribe(func(planning.State) { panic("boom") })

	called := false
	store.Subscribe(func(planning.State) { called = true })

	require.NotPanics(t, func() {
		store.SetState(planning.Patch{Workers: []planning.Worker{{ID: "w1"}}})
	})
	assert.True(t, called)
	assert.Len(t, store.GetState().Workers, 1)
}

func TestStateStore_WriteFromSubscriberIsDeliveredInOrder(t *testing.T) {
	store := newStateStore(planning.State{})

	var order []int
	store.Subscribe(func(s planning.State) {
		order = append(order, len(s.Workers))
		if len(s.Workers) == 1 {
			store.Merge(planning.Patch{Workers: []planning.Worker{{ID: "w2"}}})
		}
	})

	store.SetState(planning.Patch{Workers: []planning.Worker{{ID: "w1"}}})

	assert.Equal(t, []int{1, 2}, order)
}

func TestStateStore_MergeDedupesLastWriteWins(t *testing.T) {
	store := newStateStore(planning.State{
		Workers: []planning.Worker{{ID: "w1", Name: "Anna"}, {ID: "w2", Name: "Ben"}},
	})

	store.Merge(planning.Patch{Workers: []planning.Worker{
		{ID: "w3", Name: "Cem"},
		{ID: "w1", Name: "Anna M."},
		{ID: "w3", Name: "Cem K."},
	}})

	got := store.GetState().Workers
	require.Len(t, got, 3)
	assert.Equal(t, []planning.WorkerID{"w1", "w2", "w3"}, []planning.WorkerID{got[0].ID, got[1].ID, got[2].ID})
	assert.Equal(t, "Anna M.", got[0].Name)
	assert.Equal(t, "Cem K.", got[2].Name)
}

func TestMergeBy_NeverProducesDuplicateIDs(t *testing.T) {
	key := func(w planning.Worker) planning.WorkerID { return w.ID }
	existing := []planning.Worker{{ID: "a"}, {ID: "b"}, {ID: "a", Name: "dup"}}
	incoming := []planning.Worker{{ID: "b", Name: "new"}, {ID: "c"}, {ID: "c", Name: "last"}}

	out := planning.MergeBy(existing, incoming, key)

	ids := map[planning.WorkerID]int{}
	for _, w := range out {
		ids[w.ID]++
	}
	for id, n := range ids {
		assert.Equal(t, 1, n, "id %s", id)
	}
	assert.Equal(t, "dup", out[0].Name)
	assert.Equal(t, "new", out[1].Name)
	assert.Equal(t, "last", out[2].Name)
}

func TestStateStore_RevisionsBumpPerCollection(t *testing.T) {
	store := newStateStore(planning.State{})
	before := store.Revisions()

	store.SetState(planning.Patch{DispatchAssignments: []planning.DispatchAssignment{}})

	after := store.Revisions()
	assert.Equal(t, before[planning.CollectionDispatchAssignments]+1, after[planning.CollectionDispatchAssignments])
	assert.Equal(t, before[planning.CollectionWorkers], after[planning.CollectionWorkers])
}

func TestStateStore_ConcurrentWriterWaitsForItsSnapshot(t *testing.T) {
	// GIVEN: A subscriber that blocks on the first snapshot it sees
	store := newStateStore(planning.State{})

	var mu sync.Mutex
	var seen []int
	started := make(chan struct{})
	release := make(chan struct{})
	store.Subscribe(func(s planning.State) {
		mu.Lock()
		seen = append(seen, len(s.Workers))
		first := len(seen) == 1
		mu.Unlock()
		if first {
			close(started)
			<-release
		}
	})

	go store.SetState(planning.Patch{Workers: []planning.Worker{{ID: "w1"}}})
	<-started

	// WHEN: Another goroutine writes while that delivery is still running
	done := make(chan struct{})
	go func() {
		store.SetState(planning.Patch{Workers: []planning.Worker{{ID: "w1"}, {ID: "w2"}}})
		close(done)
	}()

	// THEN: The second write does not return before its snapshot went out
	assert.Never(t, func() bool {
		select {
		case <-done:
			return true
		default:
			return false
		}
	}, 50*time.Millisecond, 5*time.Millisecond)

	close(release)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second write never returned")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 2}, seen)
}

func TestStateStore_ConcurrentWritesDeliveredInWriteOrder(t *testing.T) {
	store := newStateStore(planning.State{})

	var mu sync.Mutex
	var seen []int
	store.Subscribe(func(s planning.State) {
		mu.Lock()
		seen = append(seen, len(s.Workers))
		mu.Unlock()
	})

	const writers = 20
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			store.Update(func(cur planning.State) planning.Patch {
				id := planning.WorkerID(fmt.Sprintf("w%d", i))
				return planning.Patch{Workers: append(cur.Workers, planning.Worker{ID: id})}
			})
		}(i)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, writers)
	for i, n := range seen {
		assert.Equal(t, i+1, n, "snapshot %d out of order", i)
	}
}
