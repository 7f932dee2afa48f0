package replication

import (
	"slices"

	"github.com/ticworld/kernel/internal/core/ecs"
)

// Observer serializes the entities that carry a marker component. The
// first call to Snapshot or Delta establishes a baseline; every Delta after
// that carries only what changed since the previous call.
//
// Inside one frame all created ops come first, then component ops in
// entity creation order and tracked component order, then destroyed ops.
// Entity references to entities outside the observed set are sent as 0.
type Observer struct {
	w       *ecs.World
	marker  *ecs.Store
	tracked []*ecs.Store

	baseline map[ecs.EntityID]*observedRow
	order    []ecs.EntityID // baseline entities in creation order
	scratch  map[ecs.EntityID]struct{}
}

// observedRow is the last sent state of one entity: for every tracked
// component either nil (absent) or its field values.
type observedRow struct {
	comps [][]ecs.Value
}

// NewObserver tracks the given component stores on entities carrying
// marker. The store order defines the component indices on the wire and
// must match the receiver's.
func NewObserver(w *ecs.World, marker *ecs.Store, tracked []*ecs.Store) *Observer {
	return &Observer{
		w:        w,
		marker:   marker,
		tracked:  tracked,
		baseline: make(map[ecs.EntityID]*observedRow),
		scratch:  make(map[ecs.EntityID]struct{}),
	}
}

// Tracked returns the tracked stores in wire order.
func (o *Observer) Tracked() []*ecs.Store { return o.tracked }

// observed lists the marked entities in creation order and fills scratch.
func (o *Observer) observed() []ecs.EntityID {
	clear(o.scratch)
	var ids []ecs.EntityID
	for _, id := range o.w.Entities() {
		if o.marker.Has(id) {
			ids = append(ids, id)
			o.scratch[id] = struct{}{}
		}
	}
	return ids
}

// capture reads the current state of id, with references already mapped.
func (o *Observer) capture(id ecs.EntityID) *observedRow {
	row := &observedRow{comps: make([][]ecs.Value, len(o.tracked))}
	for i, s := range o.tracked {
		if !s.Has(id) {
			continue
		}
		vals := s.Row(id)
		if vals == nil {
			vals = []ecs.Value{}
		}
		for j, v := range vals {
			if v.Kind != ecs.KindEntity || v.Uint == 0 {
				continue
			}
			if _, ok := o.scratch[v.Entity()]; !ok {
				vals[j] = ecs.EntityValue(0)
			}
		}
		row.comps[i] = vals
	}
	return row
}

// Snapshot encodes the full state of every observed entity and resets the
// baseline to it.
func (o *Observer) Snapshot(tic uint64) []byte {
	ids := o.observed()
	ops := make([]Op, 0, len(ids)*4)
	rows := make(map[ecs.EntityID]*observedRow, len(ids))
	for _, id := range ids {
		ops = append(ops, Op{Code: OpEntityCreated, Entity: id})
		rows[id] = o.capture(id)
	}
	for _, id := range ids {
		for i, vals := range rows[id].comps {
			if vals != nil {
				ops = append(ops, Op{Code: OpComponentAdded, Entity: id, Component: uint16(i), Values: vals})
			}
		}
	}
	o.baseline = rows
	o.order = ids
	return Encode(KindSnapshot, tic, ops)
}

// Delta encodes the changes since the previous Snapshot or Delta. Without
// a previous call every observed entity is reported as created.
func (o *Observer) Delta(tic uint64) []byte {
	ids := o.observed()
	var created, changed, destroyed []Op
	rows := make(map[ecs.EntityID]*observedRow, len(ids))
	for _, id := range ids {
		now := o.capture(id)
		rows[id] = now
		prev, known := o.baseline[id]
		if !known {
			created = append(created, Op{Code: OpEntityCreated, Entity: id})
		}
		for i, vals := range now.comps {
			var before []ecs.Value
			if known {
				before = prev.comps[i]
			}
			switch {
			case vals != nil && before == nil:
				changed = append(changed, Op{Code: OpComponentAdded, Entity: id, Component: uint16(i), Values: vals})
			case vals == nil && before != nil:
				changed = append(changed, Op{Code: OpComponentRemoved, Entity: id, Component: uint16(i)})
			case vals != nil && len(vals) > 0 && !slices.Equal(vals, before):
				changed = append(changed, Op{Code: OpComponentUpdated, Entity: id, Component: uint16(i), Values: vals})
			}
		}
	}
	for _, id := range o.order {
		if _, ok := rows[id]; !ok {
			destroyed = append(destroyed, Op{Code: OpEntityDestroyed, Entity: id})
		}
	}
	o.baseline = rows
	o.order = ids

	ops := make([]Op, 0, len(created)+len(changed)+len(destroyed))
	ops = append(ops, created...)
	ops = append(ops, changed...)
	ops = append(ops, destroyed...)
	return Encode(KindDelta, tic, ops)
}

// Reset forgets the baseline. The next Delta reports everything as created,
// so callers normally follow it with a Snapshot.
func (o *Observer) Reset() {
	o.baseline = make(map[ecs.EntityID]*observedRow)
	o.order = nil
}
