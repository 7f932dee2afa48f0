package kernel

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/ticworld/kernel/internal/component"
	"github.com/ticworld/kernel/internal/core/ecs"
	"github.com/ticworld/kernel/internal/core/event"
	coresys "github.com/ticworld/kernel/internal/core/system"
	"github.com/ticworld/kernel/internal/physics"
	"github.com/ticworld/kernel/internal/scripting"
	"go.uber.org/zap/zaptest"
)

func newTestWorld(t *testing.T, seed int64, mode physics.Mode) *World {
	t.Helper()
	w, err := CreateWorld(Options{
		Seed:        seed,
		TicDuration: time.Second / 60,
		RuntimeMode: mode,
		Logger:      zaptest.NewLogger(t),
	})
	if err != nil {
		t.Fatalf("CreateWorld: %v", err)
	}
	t.Cleanup(w.Close)
	return w
}

// walker spawns a dynamic sphere of diameter size resting on the ground.
func walker(w *World, x, z, size, hx, hz, speed float64) ecs.EntityID {
	c := w.Components()
	id := w.Spawn()
	c.Position.Add(id)
	c.Position.SetFloat(id, component.X, x)
	c.Position.SetFloat(id, component.Y, size/2)
	c.Position.SetFloat(id, component.Z, z)
	c.Velocity.Add(id)
	c.Grounded.Add(id)
	c.Extent.Add(id)
	c.Extent.SetFloat(id, component.ExtSizeX, size)
	c.Extent.SetFloat(id, component.ExtSizeY, size)
	c.Extent.SetFloat(id, component.ExtSizeZ, size)
	c.Extent.SetFloat(id, component.ExtMass, 1)
	c.Heading.Add(id)
	c.Heading.SetFloat(id, component.HeadX, hx)
	c.Heading.SetFloat(id, component.HeadZ, hz)
	c.Speed.Add(id)
	c.Speed.SetFloat(id, component.SpeedValue, speed)
	return id
}

func mustRun(t *testing.T, w *World, n int) {
	t.Helper()
	if _, err := RunTics(w, n); err != nil {
		t.Fatalf("RunTics(%d): %v", n, err)
	}
}

func mustReg(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("register: %v", err)
	}
}

func TestZeroTicsMutateNothing(t *testing.T) {
	w := newTestWorld(t, 1, physics.ModeNative)
	walker(w, 0, 0, 1, 1, 0, 2)
	before := w.Digest()
	mustRun(t, w, 0)
	if w.Tic() != 0 || w.Digest() != before {
		t.Fatalf("RunTics(0) mutated the world")
	}
	mustRun(t, w, 3)
	if w.Tic() != 3 {
		t.Fatalf("tic = %d, want 3", w.Tic())
	}
}

func TestHookPointsRunInPipelineOrder(t *testing.T) {
	w := newTestWorld(t, 1, physics.ModeNative)
	for _, p := range coresys.HookPoints() {
		mustReg(t, w.Scripts().RegisterHookScript(scripting.Registration{ID: "h", Hook: p, Source: `trace(get_hook_point())`}))
	}
	mustRun(t, w, 1)
	got := w.Scripts().DrainHookTrace()
	if strings.Join(got, ",") != strings.Join(coresys.HookPoints(), ",") {
		t.Fatalf("hook order = %v", got)
	}
}

func TestCommandFIFOThroughWorld(t *testing.T) {
	w := newTestWorld(t, 1, physics.ModeNative)
	e := walker(w, 0, 0, 1, 0, 0, 0)
	mustReg(t, w.Scripts().RegisterCommandScript(scripting.Registration{ID: "set-speed", Source: `
		local s = get_arg_number("speed", 0)
		queue_set_speed(get_arg_number("entity", 0), s)
		trace(get_script_id() .. "|" .. get_order() .. "|" .. s)
	`}))
	for _, s := range []float64{1.5, 3.25} {
		if _, err := w.EnqueueCommand("set-speed", map[string]any{"entity": uint64(e), "speed": s}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	mustRun(t, w, 1)
	if got := w.Components().Speed.F(e, component.SpeedValue); got != 3.25 {
		t.Fatalf("speed = %v, want 3.25", got)
	}
	if got := strings.Join(w.Scripts().DrainCommandTrace(), ","); got != "set-speed|0|1.5,set-speed|1|3.25" {
		t.Fatalf("trace = %s", got)
	}
}

func TestEventToCommandChainAppliesNextTic(t *testing.T) {
	w := newTestWorld(t, 1, physics.ModeNative)
	a := walker(w, 0, 0, 2, -1, 0, 0)
	b := walker(w, 1, 0, 2, 0, 0, 0)
	mustReg(t, w.Scripts().RegisterEventScript(scripting.Registration{ID: "on-hit", Channel: event.ChannelCollision, Source: `
		enqueue_command("boost", { entity = get_payload_number("entityA", 0) })
	`}))
	mustReg(t, w.Scripts().RegisterCommandScript(scripting.Registration{ID: "boost", Source: `
		queue_set_speed(get_arg_number("entity", 0), 5)
		trace("boost@" .. get_tic())
	`}))

	mustRun(t, w, 1)
	evs := w.DrainEventQueue()
	if len(evs) != 1 || evs[0] != (event.Collision{Tic: 1, EntityA: a, EntityB: b}) {
		t.Fatalf("events = %v", evs)
	}
	if got := w.Scripts().DrainCommandTrace(); len(got) != 1 || got[0] != "boost@1" {
		t.Fatalf("command did not run in the same tic: %v", got)
	}
	c := w.Components()
	if c.Speed.F(a, component.SpeedValue) != 5 {
		t.Fatalf("speed effect missing")
	}
	if vx := c.Velocity.F(a, component.X); vx != 0 {
		t.Fatalf("effect reached physics in the same tic: vx=%v", vx)
	}
	mustRun(t, w, 1)
	if vx := c.Velocity.F(a, component.X); vx > -0.5 {
		t.Fatalf("effect did not reach physics on the next tic: vx=%v", vx)
	}
}

func TestFailFastAbortsTic(t *testing.T) {
	w := newTestWorld(t, 1, physics.ModeNative)
	mustReg(t, w.Scripts().RegisterCommandScript(scripting.Registration{ID: "broken", Source: `error("boom")`}))
	mustReg(t, w.Scripts().RegisterHookScript(scripting.Registration{ID: "post", Hook: coresys.HookTicPost, Source: `trace("post")`}))
	_, _ = w.EnqueueCommand("broken", nil)

	_, err := RunTics(w, 2)
	var se *scripting.ScriptError
	if !errors.As(err, &se) || se.SourceID != "broken" || se.Scope != "command:broken" {
		t.Fatalf("err = %v", err)
	}
	if w.Tic() != 1 {
		t.Fatalf("tic = %d, remaining tics must not run", w.Tic())
	}
	if got := w.Scripts().DrainHookTrace(); len(got) != 0 {
		t.Fatalf("tic:post ran after the failure: %v", got)
	}
}

func TestFailFastHealthyEffectNeverApplies(t *testing.T) {
	w := newTestWorld(t, 1, physics.ModeNative)
	e := walker(w, 0, 0, 1, 0, 0, 0)
	mustReg(t, w.Scripts().RegisterCommandScript(scripting.Registration{ID: "broken", Source: `error("boom")`}))
	mustReg(t, w.Scripts().RegisterCommandScript(scripting.Registration{ID: "healthy", Source: `
		queue_set_speed(get_arg_number("entity", 0), 7)
	`}))
	_, _ = w.EnqueueCommand("broken", nil)
	_, _ = w.EnqueueCommand("healthy", map[string]any{"entity": uint64(e)})

	if _, err := RunTics(w, 1); err == nil {
		t.Fatalf("expected fail-fast error")
	}
	mustRun(t, w, 1)
	if got := w.Components().Speed.F(e, component.SpeedValue); got == 7 {
		t.Fatalf("healthy command applied after the failed tic")
	}
}

func TestFailedHookLeavesNoTrace(t *testing.T) {
	w := newTestWorld(t, 1, physics.ModeNative)
	w.Scripts().SetFailurePolicy(scripting.Continue)
	mustReg(t, w.Scripts().RegisterCommandScript(scripting.Registration{ID: "cmd", Source: `trace("cmd ran")`}))
	mustReg(t, w.Scripts().RegisterHookScript(scripting.Registration{ID: "leaky", Hook: coresys.HookTicPre, Source: `
		enqueue_command("cmd")
		emit_event("leak", { n = 1 })
		error("boom")
	`}))
	mustRun(t, w, 1)

	if errs := w.Scripts().DrainHookErrors(); len(errs) != 1 {
		t.Fatalf("errors = %+v", errs)
	}
	if got := w.Scripts().DrainCommandTrace(); len(got) != 0 {
		t.Fatalf("command from the failed hook ran: %v", got)
	}
	for _, ev := range w.DrainEventQueue() {
		if ev.Channel() == "leak" {
			t.Fatalf("event from the failed hook reached the queue")
		}
	}
}

func TestCollisionReportedEveryOverlappingTic(t *testing.T) {
	for _, mode := range []physics.Mode{physics.ModeNative, physics.ModeScripted} {
		t.Run(string(mode), func(t *testing.T) {
			w := newTestWorld(t, 1, mode)
			a := walker(w, 0, 0, 2, 1, 0, 3)
			b := walker(w, 1, 0, 2, -1, 0, 3)
			for i := uint64(1); i <= 4; i++ {
				mustRun(t, w, 1)
				evs := w.DrainEventQueue()
				if len(evs) != 1 || evs[0] != (event.Collision{Tic: i, EntityA: a, EntityB: b}) {
					t.Fatalf("tic %d: events = %v", i, evs)
				}
			}
		})
	}
}

func TestContinuePolicyKeepsTicking(t *testing.T) {
	w := newTestWorld(t, 1, physics.ModeNative)
	w.Scripts().SetFailurePolicy(scripting.Continue)
	mustReg(t, w.Scripts().RegisterHookScript(scripting.Registration{ID: "bad-hook", Hook: "urge:pre", Source: `error("hook boom")`}))
	mustReg(t, w.Scripts().RegisterHookScript(scripting.Registration{ID: "good-hook", Hook: "urge:pre", Priority: 1, Source: `trace("ok")`}))
	mustRun(t, w, 2)

	errs := w.Scripts().DrainHookErrors()
	if len(errs) != 2 || errs[0].Scope != "hook:urge:pre" || errs[0].TicCount != 1 || errs[1].TicCount != 2 {
		t.Fatalf("errors = %+v", errs)
	}
	if got := w.Scripts().DrainHookTrace(); len(got) != 2 {
		t.Fatalf("healthy hook trace = %v", got)
	}
}

func TestDestroyPurgesSideRegistries(t *testing.T) {
	w := newTestWorld(t, 1, physics.ModeNative)
	e := walker(w, 0, 0, 1, 0, 0, 0)
	other := walker(w, 5, 0, 1, 0, 0, 0)
	mustRun(t, w, 1)
	if !w.Physics().HasBody(e) {
		t.Fatalf("no body after first tic")
	}
	_, _ = w.EnqueueCommand("noop", map[string]any{"entity": uint64(e)})
	_, _ = w.EnqueueCommand("noop", map[string]any{"entity": uint64(other)})

	w.Destroy(e)
	if w.Physics().HasBody(e) {
		t.Fatalf("physics body survived destroy")
	}
	pending := w.Scripts().PendingCommands()
	if len(pending) != 1 || pending[0].Args.Number("entity", 0) != float64(other) {
		t.Fatalf("pending = %v", pending)
	}
}

func TestConsumption(t *testing.T) {
	w := newTestWorld(t, 1, physics.ModeNative)
	c := w.Components()
	eater := walker(w, 0, 0, 1, 0, 0, 0)
	c.Eater.Add(eater)
	c.Eater.SetFloat(eater, component.EaterHunger, 10)

	food := w.Spawn()
	c.Position.Add(food)
	c.Position.SetFloat(food, component.X, 0.5)
	c.Position.SetFloat(food, component.Y, 0.25)
	c.Extent.Add(food)
	c.Extent.SetFloat(food, component.ExtSizeX, 0.5)
	c.Extent.SetFloat(food, component.ExtSizeY, 0.5)
	c.Extent.SetFloat(food, component.ExtSizeZ, 0.5)
	c.Food.Add(food)
	c.Food.SetFloat(food, component.FoodNutrition, 4)

	mustReg(t, w.Scripts().RegisterEventScript(scripting.Registration{ID: "ate", Channel: event.ChannelConsumed, Source: `
		trace(get_payload_number("item", 0) .. "|" .. get_payload_number("nutrition", 0))
	`}))
	mustRun(t, w, 1)

	evs := w.DrainEventQueue()
	if len(evs) != 1 || evs[0] != (event.Consumed{Tic: 1, Eater: eater, Item: food, Nutrition: 4}) {
		t.Fatalf("events = %v", evs)
	}
	if w.Alive(food) {
		t.Fatalf("food not destroyed at tic end")
	}
	if c.Eater.F(eater, component.EaterHunger) != 6 || c.Eater.F(eater, component.EaterEaten) != 1 {
		t.Fatalf("eater = %v", c.Eater.Row(eater))
	}
	if got := w.Scripts().DrainEventTrace(); len(got) != 1 || !strings.HasSuffix(got[0], "|4") {
		t.Fatalf("trace = %v", got)
	}
}

func TestDeterminism(t *testing.T) {
	build := func(seed int64, mode physics.Mode) *World {
		w := newTestWorld(t, seed, mode)
		walker(w, -3, 0, 1, 1, 0, 2)
		walker(w, 3, 0.2, 1, -1, 0, 2)
		walker(w, 0, -3, 1, 0, 1, 1)
		mustReg(t, w.Scripts().RegisterHookScript(scripting.Registration{ID: "jitter", Hook: coresys.HookTicPre, Source: `
			queue_set_speed(1, 1 + random_float() * 2)
		`}))
		return w
	}

	a, b := build(7, physics.ModeNative), build(7, physics.ModeNative)
	mustRun(t, a, 120)
	mustRun(t, b, 120)
	if a.Digest() != b.Digest() {
		t.Fatalf("same seed, different digests")
	}
	evA, evB := a.DrainEventQueue(), b.DrainEventQueue()
	if len(evA) != len(evB) {
		t.Fatalf("event counts differ")
	}

	other := build(8, physics.ModeNative)
	mustRun(t, other, 120)
	if other.Digest() == a.Digest() {
		t.Fatalf("different seeds produced the same digest")
	}

	s := build(7, physics.ModeScripted)
	mustRun(t, s, 120)
	const eps = 1e-4
	ca, cs := a.Components(), s.Components()
	for _, id := range a.ECS().Query(ca.Extent) {
		for axis := component.X; axis <= component.Z; axis++ {
			if d := math.Abs(ca.Position.F(id, axis) - cs.Position.F(id, axis)); d > eps {
				t.Fatalf("entity %d axis %d differs by %v", id, axis, d)
			}
			if d := math.Abs(ca.Velocity.F(id, axis) - cs.Velocity.F(id, axis)); d > eps {
				t.Fatalf("entity %d velocity axis %d differs by %v", id, axis, d)
			}
		}
		if ca.Grounded.F(id, 0) != cs.Grounded.F(id, 0) {
			t.Fatalf("entity %d grounded differs", id)
		}
	}
	evS := s.DrainEventQueue()
	if len(evS) != len(evA) {
		t.Fatalf("scripted events %d, native %d", len(evS), len(evA))
	}
	for i := range evA {
		if evA[i] != evS[i] {
			t.Fatalf("event %d differs: %v vs %v", i, evA[i], evS[i])
		}
	}
}

type reentrantSystem struct {
	w   *World
	err error
}

func (s *reentrantSystem) Phase() coresys.Phase { return coresys.PhaseCleanup }

func (s *reentrantSystem) Update(time.Duration) error {
	s.err = s.w.RunTics(1)
	return nil
}

func TestReentrantRunTicsRejected(t *testing.T) {
	w := newTestWorld(t, 1, physics.ModeNative)
	rs := &reentrantSystem{w: w}
	w.AddSystem(rs)
	mustRun(t, w, 1)
	if !errors.Is(rs.err, ErrReentrant) {
		t.Fatalf("nested RunTics: got %v", rs.err)
	}
	if w.Tic() != 1 {
		t.Fatalf("nested call advanced the world")
	}
}

func TestPointerHoverAndPurge(t *testing.T) {
	w := newTestWorld(t, 1, physics.ModeNative)
	c := w.Components()
	tile := w.Spawn()
	c.Position.Add(tile)
	c.Position.SetFloat(tile, component.X, 3)
	c.Position.SetFloat(tile, component.Z, 3)
	c.Extent.Add(tile)
	c.Extent.SetFloat(tile, component.ExtShape, component.ShapeBox)
	c.Extent.SetFloat(tile, component.ExtSizeX, 2)
	c.Extent.SetFloat(tile, component.ExtSizeY, 1)
	c.Extent.SetFloat(tile, component.ExtSizeZ, 2)
	c.Obstacle.Add(tile)
	c.Hoverable.Add(tile)

	w.SetPointer(3.5, 2.2, true)
	mustRun(t, w, 1)
	if w.Hovered() != tile {
		t.Fatalf("hovered = %d, want %d", w.Hovered(), tile)
	}
	w.SetPointer(0, 0, true)
	mustRun(t, w, 1)
	if w.Hovered() != 0 {
		t.Fatalf("hover not cleared")
	}
	w.SetPointer(3, 3, true)
	mustRun(t, w, 1)
	w.Destroy(tile)
	if w.Hovered() != 0 {
		t.Fatalf("destroyed entity still hovered")
	}
}

func TestJumpPulse(t *testing.T) {
	w := newTestWorld(t, 1, physics.ModeNative)
	a := walker(w, 0, 0, 1, 0, 0, 0)
	walker(w, 4, 0, 1, 0, 0, 0)
	mustRun(t, w, 2)
	if n := w.JumpPulse(a, 3); n != 1 {
		t.Fatalf("jump one = %d", n)
	}
	if n := w.JumpPulse(0, 3); n != 1 {
		t.Fatalf("jump all grounded = %d", n)
	}
	mustRun(t, w, 1)
	if y := w.Components().Position.F(a, component.Y); y <= 0.5 {
		t.Fatalf("body did not rise: %v", y)
	}
}

func TestDrainsAndClose(t *testing.T) {
	w := newTestWorld(t, 1, physics.ModeNative)
	for i := 0; i < 2; i++ {
		if evs := w.DrainEventQueue(); evs == nil || len(evs) != 0 {
			t.Fatalf("drain %d = %#v", i, evs)
		}
	}
	if err := w.EmitCustomEvent("", nil); !errors.Is(err, ErrEmptyEventName) {
		t.Fatalf("empty name: %v", err)
	}
	if err := w.EmitCustomEvent("ping", map[string]any{"n": 1, "bad": math.NaN()}); err != nil {
		t.Fatalf("emit: %v", err)
	}
	evs := w.DrainEventQueue()
	if len(evs) != 1 || evs[0].Channel() != "ping" {
		t.Fatalf("custom events = %v", evs)
	}
	if _, ok := evs[0].Payload()["bad"]; ok {
		t.Fatalf("non-finite field kept")
	}
	w.Close()
	if _, err := RunTics(w, 1); !errors.Is(err, ErrClosed) {
		t.Fatalf("RunTics after Close: %v", err)
	}
}
