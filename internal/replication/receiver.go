package replication

import (
	"fmt"

	"github.com/ticworld/kernel/internal/core/ecs"
	"go.uber.org/zap"
)

// Receiver applies frames to a local world. Remote entity ids are mapped
// to locally created entities; every entity it creates carries the marker.
type Receiver struct {
	log     *zap.Logger
	w       *ecs.World
	marker  *ecs.Store
	tracked []*ecs.Store

	remote  map[ecs.EntityID]ecs.EntityID // remote -> local
	order   []ecs.EntityID                // remote ids in creation order
	tic     uint64
	applied int
}

// NewReceiver builds a receiver for w. tracked must list the same
// components, in the same order, as the sending observer.
func NewReceiver(log *zap.Logger, w *ecs.World, marker *ecs.Store, tracked []*ecs.Store) *Receiver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Receiver{
		log:     log,
		w:       w,
		marker:  marker,
		tracked: tracked,
		remote:  make(map[ecs.EntityID]ecs.EntityID),
	}
}

// Local resolves a remote entity id.
func (r *Receiver) Local(remote ecs.EntityID) (ecs.EntityID, bool) {
	id, ok := r.remote[remote]
	return id, ok
}

// Remotes returns the mapped remote ids in creation order.
func (r *Receiver) Remotes() []ecs.EntityID { return append([]ecs.EntityID(nil), r.order...) }

func (r *Receiver) Tic() uint64       { return r.tic }
func (r *Receiver) Frames() int       { return r.applied }
func (r *Receiver) World() *ecs.World { return r.w }

// Apply decodes and applies one frame. A malformed frame is rejected
// before anything changes. A desync leaves the world partially updated;
// recover by applying a snapshot.
func (r *Receiver) Apply(b []byte) (Header, error) {
	f, err := Decode(b)
	if err != nil {
		return Header{}, err
	}
	if err := r.ApplyFrame(f); err != nil {
		return f.Header, err
	}
	return f.Header, nil
}

// ApplyFrame applies an already decoded frame.
func (r *Receiver) ApplyFrame(f Frame) error {
	if f.Kind == KindSnapshot {
		r.clear()
	}
	for i, op := range f.Ops {
		if err := r.apply(op); err != nil {
			r.log.Warn("replication desync",
				zap.Stringer("kind", f.Kind),
				zap.Uint64("tic", f.Tic),
				zap.Int("op", i),
				zap.Error(err),
			)
			return fmt.Errorf("%s tic %d op %d: %w", f.Kind, f.Tic, i, err)
		}
	}
	r.tic = f.Tic
	r.applied++
	return nil
}

// clear destroys every entity the receiver created.
func (r *Receiver) clear() {
	for _, remote := range r.order {
		r.w.Destroy(r.remote[remote])
	}
	clear(r.remote)
	r.order = r.order[:0]
}

func (r *Receiver) apply(op Op) error {
	if op.Code == OpEntityCreated {
		if _, dup := r.remote[op.Entity]; dup {
			return fmt.Errorf("%w: entity %d created twice", ErrDesync, op.Entity)
		}
		id := r.w.CreateEntity()
		r.marker.Add(id)
		r.remote[op.Entity] = id
		r.order = append(r.order, op.Entity)
		return nil
	}

	local, ok := r.remote[op.Entity]
	if !ok {
		return fmt.Errorf("%w: %s for unknown entity %d", ErrDesync, op.Code, op.Entity)
	}
	if op.Code == OpEntityDestroyed {
		r.w.Destroy(local)
		delete(r.remote, op.Entity)
		for i, id := range r.order {
			if id == op.Entity {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
		return nil
	}

	if int(op.Component) >= len(r.tracked) {
		return fmt.Errorf("%w: component index %d out of %d", ErrDesync, op.Component, len(r.tracked))
	}
	s := r.tracked[op.Component]
	switch op.Code {
	case OpComponentAdded:
		if !s.Add(local) {
			return fmt.Errorf("%w: entity %d already has %s", ErrDesync, op.Entity, s.Name())
		}
		return r.setRow(s, local, op.Values)
	case OpComponentRemoved:
		if !s.Has(local) {
			return fmt.Errorf("%w: entity %d has no %s to remove", ErrDesync, op.Entity, s.Name())
		}
		s.Remove(local)
	case OpComponentUpdated:
		if !s.Has(local) {
			return fmt.Errorf("%w: entity %d has no %s to update", ErrDesync, op.Entity, s.Name())
		}
		return r.setRow(s, local, op.Values)
	}
	return nil
}

func (r *Receiver) setRow(s *ecs.Store, local ecs.EntityID, vals []ecs.Value) error {
	fields := s.Schema().Fields
	if len(vals) != len(fields) {
		return fmt.Errorf("%w: %s has %d fields, got %d", ErrDesync, s.Name(), len(fields), len(vals))
	}
	for i, v := range vals {
		if v.Kind == ecs.KindEntity && v.Uint != 0 {
			ref, ok := r.remote[v.Entity()]
			if !ok {
				return fmt.Errorf("%w: %s.%s references unknown entity %d", ErrDesync, s.Name(), fields[i].Name, v.Uint)
			}
			v = ecs.EntityValue(ref)
		}
		if err := s.SetValue(local, i, v); err != nil {
			return fmt.Errorf("%w: %v", ErrDesync, err)
		}
	}
	return nil
}
