package planning

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// DispatchService keeps dispatch data and resource master data in the
// Central State Store in sync with the backend.
type DispatchService struct {
	State   *StateStore
	Backend DispatchBackend
	Logger  zerolog.Logger
}

func NewDispatchService(state *StateStore, backend DispatchBackend, log zerolog.Logger) *DispatchService {
	return &DispatchService{State: state, Backend: backend, Logger: log}
}

// Load replaces resources, locations and the dispatch data in [from, to]
// with the backend's view. Nothing is written if any fetch fails.
func (s *DispatchService) Load(ctx context.Context, from, to *Date) error {
	workers, err := s.Backend.Workers(ctx)
	if err != nil {
		return persistenceErr("load workers", err)
	}
	vehicles, err := s.Backend.Vehicles(ctx)
	if err != nil {
		return persistenceErr("load vehicles", err)
	}
	devices, err := s.Backend.Devices(ctx)
	if err != nil {
		return persistenceErr("load devices", err)
	}
	locations, err := s.Backend.Locations(ctx)
	if err != nil {
		return persistenceErr("load locations", err)
	}
	items, err := s.Backend.DispatchItems(ctx, from, to)
	if err != nil {
		return persistenceErr("load dispatch items", err)
	}
	assignments, err := s.Backend.DispatchAssignments(ctx, from, to)
	if err != nil {
		return persistenceErr("load dispatch assignments", err)
	}

	// Master data is replaced wholesale. Dispatch data is replaced only for
	// an unbounded load; a ranged load is merged into what is already there.
	s.State.Update(func(cur State) Patch {
		var baseItems []DispatchItem
		var baseAssignments []DispatchAssignment
		if from != nil || to != nil {
			baseItems, baseAssignments = cur.DispatchItems, cur.DispatchAssignments
		}
		return Patch{
			Workers:             MergeBy(nil, workers, func(w Worker) WorkerID { return w.ID }),
			Vehicles:            MergeBy(nil, vehicles, func(v Vehicle) VehicleID { return v.ID }),
			Devices:             MergeBy(nil, devices, func(d Device) DeviceID { return d.ID }),
			Locations:           MergeBy(nil, locations, func(l Location) LocationID { return l.ID }),
			DispatchItems:       MergeBy(baseItems, items, func(d DispatchItem) DispatchItemID { return d.ID }),
			DispatchAssignments: MergeBy(baseAssignments, assignments, func(a DispatchAssignment) AssignmentID { return a.ID }),
		}
	})
	s.Logger.Debug().
		Int("workers", len(workers)).
		Int("dispatch_items", len(items)).
		Int("assignments", len(assignments)).
		Msg("dispatch data loaded")
	return nil
}

// Reload is the no-argument form used as the post-confirmation hook.
func (s *DispatchService) Reload(ctx context.Context) error {
	return s.Load(ctx, nil, nil)
}

// Assign binds a resource to a dispatch item on a date. Admin only.
// Vehicles and devices are rejected when already assigned that date.
func (s *DispatchService) Assign(ctx context.Context, actor Actor, a DispatchAssignment) (DispatchAssignment, error) {
	if actor.Role != RoleAdmin {
		return DispatchAssignment{}, &PermissionError{ActorID: actor.UserID, WorkerID: WorkerID(a.ResourceID)}
	}
	if !a.ResourceType.Valid() || a.ResourceID == "" || a.DispatchItemID == "" || a.Date.IsZero() {
		return DispatchAssignment{}, newValidationError("invalid_field",
			fmt.Sprintf("invalid assignment %s/%s on %s", a.ResourceType, a.ResourceID, a.Date), nil)
	}
	if a.ResourceType.SingleAssignment() {
		for _, existing := range s.State.GetState().DispatchAssignments {
			if existing.ResourceType == a.ResourceType && existing.ResourceID == a.ResourceID && existing.Date.Equal(a.Date) {
				return DispatchAssignment{}, ErrResourceAlreadyAssigned
			}
		}
	}

	created, err := s.Backend.CreateDispatchAssignment(ctx, a)
	if err != nil {
		return DispatchAssignment{}, persistenceErr("create dispatch assignment", err)
	}
	s.State.Merge(Patch{DispatchAssignments: []DispatchAssignment{created}})
	return created, nil
}
