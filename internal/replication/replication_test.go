package replication

import (
	"errors"
	"testing"

	"github.com/ticworld/kernel/internal/component"
	"github.com/ticworld/kernel/internal/core/ecs"
	"go.uber.org/zap/zaptest"
)

type side struct {
	w *ecs.World
	c *component.Set
}

func newSide(t *testing.T) side {
	t.Helper()
	w := ecs.NewWorld()
	c, err := component.Register(w)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return side{w: w, c: c}
}

func (s side) spawn(x float64) ecs.EntityID {
	id := s.w.CreateEntity()
	s.c.Observed.Add(id)
	s.c.Position.Add(id)
	s.c.Position.SetFloat(id, component.X, x)
	return id
}

// assertMirrors checks that every observed source entity exists on the
// receiver with the same components and values.
func assertMirrors(t *testing.T, src side, dst side, r *Receiver) {
	t.Helper()
	observed := 0
	for _, id := range src.w.Entities() {
		if !src.c.Observed.Has(id) {
			continue
		}
		observed++
		local, ok := r.Local(id)
		if !ok || !dst.w.Alive(local) {
			t.Fatalf("entity %d missing on receiver", id)
		}
		srcStores := src.c.Tracked()
		dstStores := dst.c.Tracked()
		for i, s := range srcStores {
			d := dstStores[i]
			if s.Has(id) != d.Has(local) {
				t.Fatalf("entity %d %s: present %v on source, %v on receiver", id, s.Name(), s.Has(id), d.Has(local))
			}
			want, got := s.Row(id), d.Row(local)
			for j := range want {
				w := want[j]
				if w.Kind == ecs.KindEntity {
					mapped, ok := r.Local(w.Entity())
					if !ok || !src.c.Observed.Has(w.Entity()) {
						mapped = 0
					}
					w = ecs.EntityValue(mapped)
				}
				if got[j] != w {
					t.Fatalf("entity %d %s field %d: got %v want %v", id, s.Name(), j, got[j], w)
				}
			}
		}
	}
	if n := dst.c.Observed.Len(); n != observed {
		t.Fatalf("receiver has %d entities, source observes %d", n, observed)
	}
}

func TestSnapshotThenDeltasRoundTrip(t *testing.T) {
	src, dst := newSide(t), newSide(t)
	obs := NewObserver(src.w, src.c.Observed, src.c.Tracked())
	rcv := NewReceiver(zaptest.NewLogger(t), dst.w, dst.c.Observed, dst.c.Tracked())

	a := src.spawn(1)
	src.c.Label.Add(a)
	src.c.Label.SetText(a, component.LabelText, "alpha")
	b := src.spawn(2)
	src.c.Velocity.Add(b)
	src.c.Velocity.SetFloat(b, component.Z, -0.5)
	src.c.Urge.Add(b)
	src.c.Urge.SetFloat(b, component.UrgeKind, component.UrgeSeek)
	src.c.Urge.SetEntity(b, component.UrgeTarget, a)
	hidden := src.w.CreateEntity()
	src.c.Position.Add(hidden)
	c := src.spawn(3)
	src.c.Urge.Add(c)
	src.c.Urge.SetEntity(c, component.UrgeTarget, hidden)

	h, err := rcv.Apply(obs.Snapshot(0))
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if h.Kind != KindSnapshot || h.Tic != 0 {
		t.Fatalf("header = %+v", h)
	}
	assertMirrors(t, src, dst, rcv)
	if lc, _ := rcv.Local(c); dst.c.Urge.Entity(lc, component.UrgeTarget) != 0 {
		t.Fatalf("reference to an unobserved entity was not cleared")
	}

	// Tag-only component added after the snapshot, a removal, an update,
	// a creation and a destruction in one delta.
	src.c.Position.SetFloat(a, component.Y, 4)
	src.c.Hoverable.Add(b)
	src.c.Velocity.Remove(b)
	d := src.spawn(9)
	src.c.Obstacle.Add(d)
	src.w.Destroy(c)

	h, err = rcv.Apply(obs.Delta(1))
	if err != nil {
		t.Fatalf("delta 1: %v", err)
	}
	if h.Kind != KindDelta || h.Tic != 1 {
		t.Fatalf("header = %+v", h)
	}
	assertMirrors(t, src, dst, rcv)
	lb, _ := rcv.Local(b)
	if !dst.c.Hoverable.Has(lb) {
		t.Fatalf("tag component not materialized")
	}
	if _, ok := rcv.Local(c); ok {
		t.Fatalf("destroyed entity still mapped")
	}

	// Destroying the urge target clears the reference on the next delta.
	src.w.Destroy(a)
	src.c.Observed.Remove(d)
	if _, err := rcv.Apply(obs.Delta(2)); err != nil {
		t.Fatalf("delta 2: %v", err)
	}
	assertMirrors(t, src, dst, rcv)
	if got := dst.c.Urge.Entity(lb, component.UrgeTarget); got != 0 {
		t.Fatalf("dangling reference %d", got)
	}
	if rcv.Tic() != 2 || rcv.Frames() != 3 {
		t.Fatalf("tic %d frames %d", rcv.Tic(), rcv.Frames())
	}
}

func TestEmptyDeltaCarriesNoOps(t *testing.T) {
	src := newSide(t)
	obs := NewObserver(src.w, src.c.Observed, src.c.Tracked())
	src.spawn(1)
	obs.Snapshot(0)
	f, err := Decode(obs.Delta(1))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(f.Ops) != 0 || f.Header.Ops != 0 {
		t.Fatalf("expected no ops, got %d", len(f.Ops))
	}
}

func TestDeltaOperationOrder(t *testing.T) {
	src := newSide(t)
	obs := NewObserver(src.w, src.c.Observed, src.c.Tracked())
	old := src.spawn(1)
	keep := src.spawn(2)
	obs.Snapshot(0)

	src.w.Destroy(old)
	src.c.Position.SetFloat(keep, component.X, 5)
	fresh := src.spawn(3)

	f, err := Decode(obs.Delta(1))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := []Op{
		{Code: OpEntityCreated, Entity: fresh},
		{Code: OpComponentUpdated, Entity: keep},
		{Code: OpComponentAdded, Entity: fresh},
		{Code: OpEntityDestroyed, Entity: old},
	}
	if len(f.Ops) != len(want) {
		t.Fatalf("got %d ops, want %d: %+v", len(f.Ops), len(want), f.Ops)
	}
	for i, op := range f.Ops {
		if op.Code != want[i].Code || op.Entity != want[i].Entity {
			t.Fatalf("op %d = %s %d, want %s %d", i, op.Code, op.Entity, want[i].Code, want[i].Entity)
		}
	}
}

func TestSnapshotReplacesReceiverState(t *testing.T) {
	src, dst := newSide(t), newSide(t)
	obs := NewObserver(src.w, src.c.Observed, src.c.Tracked())
	rcv := NewReceiver(nil, dst.w, dst.c.Observed, dst.c.Tracked())
	src.spawn(1)
	src.spawn(2)
	if _, err := rcv.Apply(obs.Snapshot(0)); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if _, err := rcv.Apply(obs.Snapshot(1)); err != nil {
		t.Fatalf("second snapshot: %v", err)
	}
	if n := len(dst.w.Entities()); n != 2 {
		t.Fatalf("receiver has %d entities after resync, want 2", n)
	}
	assertMirrors(t, src, dst, rcv)
}

func TestDesync(t *testing.T) {
	posVals := []ecs.Value{ecs.FloatValue(ecs.KindF64, 1), ecs.FloatValue(ecs.KindF64, 2), ecs.FloatValue(ecs.KindF64, 3)}
	urge := uint16(7) // index of urge in the tracked list
	created := Op{Code: OpEntityCreated, Entity: 5}
	u8 := ecs.UintValue(ecs.KindU8, 1)
	cases := map[string][]Op{
		"unknown entity": {{Code: OpComponentUpdated, Entity: 5, Values: posVals}},
		"created twice":  {created, created},
		"bad component":  {created, {Code: OpComponentAdded, Entity: 5, Component: 99}},
		"kind mismatch":  {created, {Code: OpComponentAdded, Entity: 5, Values: []ecs.Value{u8, u8, u8}}},
		"field count":    {created, {Code: OpComponentAdded, Entity: 5, Values: posVals[:2]}},
		"unknown ref":    {created, {Code: OpComponentAdded, Entity: 5, Component: urge, Values: []ecs.Value{u8, ecs.EntityValue(777)}}},
		"remove absent":  {created, {Code: OpComponentRemoved, Entity: 5}},
	}
	for name, ops := range cases {
		t.Run(name, func(t *testing.T) {
			dst := newSide(t)
			if dst.c.Tracked()[urge] != dst.c.Urge {
				t.Fatalf("urge index moved")
			}
			rcv := NewReceiver(zaptest.NewLogger(t), dst.w, dst.c.Observed, dst.c.Tracked())
			_, err := rcv.Apply(Encode(KindDelta, 1, ops))
			if !errors.Is(err, ErrDesync) {
				t.Fatalf("got %v, want ErrDesync", err)
			}
		})
	}
}

func TestMalformedFrames(t *testing.T) {
	src := newSide(t)
	src.spawn(1)
	good := NewObserver(src.w, src.c.Observed, src.c.Tracked()).Snapshot(3)

	badMagic := append([]byte(nil), good...)
	badMagic[0] = 'X'
	badKind := append([]byte(nil), good...)
	badKind[5] = 9
	badVersion := append([]byte(nil), good...)
	badVersion[4] = 2

	cases := map[string][]byte{
		"empty":     nil,
		"truncated": good[:len(good)-1],
		"header":    good[:headerSize-1],
		"magic":     badMagic,
		"kind":      badKind,
		"version":   badVersion,
		"trailing":  append(append([]byte(nil), good...), 0),
	}
	for name, b := range cases {
		t.Run(name, func(t *testing.T) {
			dst := newSide(t)
			rcv := NewReceiver(nil, dst.w, dst.c.Observed, dst.c.Tracked())
			if _, err := rcv.Apply(b); !errors.Is(err, ErrBadFrame) {
				t.Fatalf("got %v, want ErrBadFrame", err)
			}
			if len(dst.w.Entities()) != 0 {
				t.Fatalf("malformed frame changed the world")
			}
		})
	}
}

func TestValueKindsSurviveTheWire(t *testing.T) {
	vals := []ecs.Value{
		ecs.IntValue(ecs.KindI8, -3),
		ecs.UintValue(ecs.KindU8, 200),
		ecs.IntValue(ecs.KindI16, -300),
		ecs.UintValue(ecs.KindU16, 60000),
		ecs.IntValue(ecs.KindI32, -70000),
		ecs.UintValue(ecs.KindU32, 4000000000),
		ecs.IntValue(ecs.KindI64, -1099511627776),
		ecs.UintValue(ecs.KindU64, 9223372036854775813),
		ecs.FloatValue(ecs.KindF32, 0.5),
		ecs.FloatValue(ecs.KindF64, -2.25),
		ecs.StringValue("héllo"),
		ecs.EntityValue(ecs.NewEntityID(4, 2)),
	}
	f, err := Decode(Encode(KindDelta, 1, []Op{{Code: OpComponentAdded, Entity: 1, Values: vals}}))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	got := f.Ops[0].Values
	for i := range vals {
		if got[i] != vals[i] {
			t.Fatalf("value %d: got %v want %v", i, got[i], vals[i])
		}
	}
}
