package event

import (
	"testing"

	"github.com/ticworld/kernel/internal/core/value"
)

func TestDrainEmptiesAndIsIdempotent(t *testing.T) {
	q := NewQueue()
	q.Append(Collision{Tic: 1, EntityA: 1, EntityB: 2})
	q.Append(Custom{Tic: 1, Name: "ping", Fields: value.Map{"n": value.MustNumber(1)}})

	got := q.Drain()
	if len(got) != 2 {
		t.Fatalf("drain returned %d events, want 2", len(got))
	}
	if got[0].Channel() != ChannelCollision || got[1].Channel() != "ping" {
		t.Fatalf("emission order lost: %v", got)
	}
	for i := 0; i < 2; i++ {
		empty := q.Drain()
		if empty == nil || len(empty) != 0 {
			t.Fatalf("drain %d of empty queue = %#v, want []", i, empty)
		}
	}
}

func TestPayloadShapes(t *testing.T) {
	p := Collision{EntityA: 4, EntityB: 9}.Payload()
	if len(p) != 2 || p.Number("entityA", 0) != 4 || p.Number("entityB", 0) != 9 {
		t.Fatalf("collision payload = %v", p)
	}

	c := Custom{Name: "x", Fields: value.Map{"k": value.StringOf("v")}}
	mutated := c.Payload()
	mutated["k"] = value.StringOf("changed")
	if c.Payload().Text("k", "") != "v" {
		t.Fatalf("custom payload is mutable through Payload()")
	}
}
