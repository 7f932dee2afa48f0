package kernel

import (
	"errors"
	"fmt"

	"github.com/ticworld/kernel/internal/component"
	"github.com/ticworld/kernel/internal/core/ecs"
	"github.com/ticworld/kernel/internal/core/event"
	"github.com/ticworld/kernel/internal/core/value"
	"github.com/ticworld/kernel/internal/replication"
	"go.uber.org/zap"
)

// ErrEmptyEventName is returned by EmitCustomEvent for an unnamed event.
var ErrEmptyEventName = errors.New("event name is empty")

// DrainEventQueue returns the events emitted since the last drain, in
// emission order. An empty queue drains to an empty slice.
func (w *World) DrainEventQueue() []event.Event {
	return w.events.Drain()
}

// EmitCustomEvent appends a custom event. It is dispatched to event scripts
// in the next event dispatch phase. Fields that are not finite numbers,
// strings or bools are dropped.
func (w *World) EmitCustomEvent(name string, fields map[string]any) error {
	if name == "" {
		return ErrEmptyEventName
	}
	m, dropped := value.MapOf(fields)
	if len(dropped) > 0 {
		w.log.Debug("dropped custom event fields", zap.String("event", name), zap.Strings("keys", dropped))
	}
	w.emit(event.Custom{Tic: w.tic, Name: name, Fields: m})
	return nil
}

// EnqueueCommand queues a command script invocation for the next command
// dispatch and returns its order.
func (w *World) EnqueueCommand(commandID string, args map[string]any) (uint64, error) {
	if w.closed {
		return 0, ErrClosed
	}
	order, err := w.sides.scripts.EnqueueCommand(commandID, args)
	if err != nil {
		return 0, fmt.Errorf("enqueue command: %w", err)
	}
	return order, nil
}

// SetPointer records pointer input, picked up by the pointer system on
// the next tic.
func (w *World) SetPointer(x, z float64, active bool) {
	w.sides.pointer.Set(x, z, active)
}

// Pointer returns the pointer singleton entity, or 0 before the first tic.
func (w *World) Pointer() ecs.EntityID { return w.sides.pointer.Entity() }

// Hovered returns the hoverable entity under the pointer, or 0.
func (w *World) Hovered() ecs.EntityID {
	p := w.sides.pointer.Entity()
	if p == 0 {
		return 0
	}
	return w.comps.Pointer.Entity(p, component.PointerHover)
}

// JumpPulse gives grounded bodies an upward velocity: one entity, or every
// grounded body when id is 0. Returns the number of bodies that jumped.
func (w *World) JumpPulse(id ecs.EntityID, velocity float64) int {
	return w.sides.physics.JumpPulse(id, velocity)
}

// Spawn creates an empty entity.
func (w *World) Spawn() ecs.EntityID { return w.ecs.CreateEntity() }

// Destroy removes an entity immediately and purges it from every side
// registry.
func (w *World) Destroy(id ecs.EntityID) { w.ecs.Destroy(id) }

// MarkForDestruction destroys id at the end of the current (or next) tic.
func (w *World) MarkForDestruction(id ecs.EntityID) { w.ecs.MarkForDestruction(id) }

// Alive reports whether id refers to a live entity of this world.
func (w *World) Alive(id ecs.EntityID) bool { return w.ecs.Alive(id) }

// Snapshot serializes every observed entity and makes the current state
// the baseline for the next Delta.
func (w *World) Snapshot() []byte { return w.sides.observer.Snapshot(w.tic) }

// Delta serializes the changes to observed entities since the previous
// Snapshot or Delta call.
func (w *World) Delta() []byte { return w.sides.observer.Delta(w.tic) }

// Observe adds the replication marker to id.
func (w *World) Observe(id ecs.EntityID) bool { return w.comps.Observed.Add(id) }

// NewReceiver builds a receiver whose component list matches this world's
// observer. The receiving world must register the same components.
func NewReceiver(log *zap.Logger, target *ecs.World, comps *component.Set) *replication.Receiver {
	return replication.NewReceiver(log, target, comps.Observed, comps.Tracked())
}
