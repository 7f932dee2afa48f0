package kernel

import (
	"testing"

	"github.com/ticworld/kernel/internal/component"
	"github.com/ticworld/kernel/internal/core/ecs"
	"github.com/ticworld/kernel/internal/physics"
	"go.uber.org/zap/zaptest"
)

func TestReplicaTracksSimulation(t *testing.T) {
	w := newTestWorld(t, 3, physics.ModeNative)
	a := walker(w, -3, 0, 1, 1, 0, 2)
	b := walker(w, 3, 0, 1, -1, 0, 2)
	w.Observe(a)
	w.Observe(b)

	replica := ecs.NewWorld()
	rc, err := component.Register(replica)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	rcv := NewReceiver(zaptest.NewLogger(t), replica, rc)
	if _, err := rcv.Apply(w.Snapshot()); err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	c := w.Components()
	for step := 1; step <= 6; step++ {
		mustRun(t, w, 10)
		if step == 3 {
			tagged := walker(w, 0, 4, 1, 0, 0, 0)
			w.Observe(tagged)
			c.Hoverable.Add(tagged)
		}
		if step == 5 {
			w.Destroy(a)
		}
		if _, err := rcv.Apply(w.Delta()); err != nil {
			t.Fatalf("delta at tic %d: %v", w.Tic(), err)
		}
		if rcv.Tic() != w.Tic() {
			t.Fatalf("receiver tic %d, world tic %d", rcv.Tic(), w.Tic())
		}
		for _, id := range w.ECS().Query(c.Observed) {
			local, ok := rcv.Local(id)
			if !ok {
				t.Fatalf("tic %d: entity %d not replicated", w.Tic(), id)
			}
			for axis := component.X; axis <= component.Z; axis++ {
				if got, want := rc.Position.F(local, axis), c.Position.F(id, axis); got != want {
					t.Fatalf("tic %d entity %d axis %d: got %v want %v", w.Tic(), id, axis, got, want)
				}
			}
			if c.Hoverable.Has(id) != rc.Hoverable.Has(local) {
				t.Fatalf("tic %d entity %d: tag component mismatch", w.Tic(), id)
			}
		}
		if got, want := rc.Observed.Len(), c.Observed.Len(); got != want {
			t.Fatalf("tic %d: replica has %d entities, want %d", w.Tic(), got, want)
		}
	}
	if _, ok := rcv.Local(a); ok {
		t.Fatalf("destroyed entity still replicated")
	}
}
