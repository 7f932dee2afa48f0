package data

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ticworld/kernel/internal/component"
	"github.com/ticworld/kernel/internal/core/ecs"
	"github.com/ticworld/kernel/internal/scripting"
	"go.uber.org/zap/zaptest"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

const arena = `
name: arena
entities:
  - name: hunter
    position: [0, 0.5, 0]
    extent: {size: [1, 1, 1], mass: 2}
    pace: run
    urge: {kind: seek, target: snack}
    eater: 10
    observed: true
  - name: snack
    position: [4, 0.25, 0]
    extent: {size: [0.5, 0.5, 0.5], mass: 1}
    food: 3
    observed: true
  - position: [0, 1, 3]
    extent: {shape: box, size: [4, 2, 1], mass: 1}
    obstacle: true
  - name: marker
    tile: [3, -2]
    hoverable: true
`

func TestScenarioSpawn(t *testing.T) {
	path := writeFile(t, t.TempDir(), "arena.yaml", arena)
	s, err := LoadScenario(path)
	if err != nil {
		t.Fatalf("LoadScenario: %v", err)
	}
	w := ecs.NewWorld()
	c, err := component.Register(w)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	named, err := s.Spawn(w, c)
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if len(w.Entities()) != 4 || len(named) != 3 {
		t.Fatalf("spawned %d entities, %d named", len(w.Entities()), len(named))
	}

	hunter, snack := named["hunter"], named["snack"]
	if got := c.Urge.Entity(hunter, component.UrgeTarget); got != snack {
		t.Fatalf("urge target = %d, want %d", got, snack)
	}
	if c.Pace.F(hunter, component.PaceLevel) != component.PaceRun || !c.Speed.Has(hunter) || !c.Heading.Has(hunter) {
		t.Fatalf("pace not set up")
	}
	if !c.Velocity.Has(hunter) || c.Velocity.Has(snack) {
		t.Fatalf("only the mover should get velocity")
	}
	if c.Extent.F(hunter, component.ExtMass) != 2 || c.Eater.F(hunter, component.EaterHunger) != 10 {
		t.Fatalf("extent or eater values lost")
	}
	if c.Food.F(snack, component.FoodNutrition) != 3 || c.Position.F(snack, component.X) != 4 {
		t.Fatalf("food values lost")
	}
	wall := w.Entities()[2]
	if !c.Obstacle.Has(wall) || c.Extent.F(wall, component.ExtShape) != component.ShapeBox || c.Velocity.Has(wall) {
		t.Fatalf("obstacle not spawned as a static box")
	}
	m := named["marker"]
	if c.Tile.F(m, component.TileRow) != -2 || !c.Hoverable.Has(m) || c.Label.Text(m, component.LabelText) != "marker" {
		t.Fatalf("marker not spawned")
	}
	if c.Observed.Len() != 2 {
		t.Fatalf("observed %d, want 2", c.Observed.Len())
	}
}

func TestScenarioRejects(t *testing.T) {
	for name, body := range map[string]string{
		"duplicate name": "entities:\n  - name: a\n  - name: a\n",
		"unknown target": "entities:\n  - urge: {kind: seek, target: ghost}\n",
		"unknown shape":  "entities:\n  - extent: {shape: cone, size: [1, 1, 1]}\n",
		"unknown pace":   "entities:\n  - pace: sprint\n",
		"short position": "entities:\n  - position: [1, 2]\n",
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadScenario(writeFile(t, t.TempDir(), "s.yaml", body)); err == nil {
				t.Fatalf("expected an error")
			}
		})
	}
}

func TestManifestLoadAndApply(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "scripts/greet.lua", `trace("hello")`)
	path := writeFile(t, dir, "manifest.yaml", `
policies:
  command: continue
scripts:
  - kind: command
    id: set-speed
    source: |
      queue_set_speed(get_arg_number("entity", 0), get_arg_number("speed", 0))
  - kind: event
    id: on-collide
    channel: collision
    priority: 5
    file: scripts/greet.lua
  - kind: hook
    id: every-tic
    hook: tic:pre
    source: trace("tic")
`)
	m, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}
	if len(m.Scripts) != 3 || m.Scripts[1].Source != `trace("hello")` || m.Scripts[1].Priority != 5 {
		t.Fatalf("manifest = %+v", m.Scripts)
	}

	rt := scripting.NewRuntime(scripting.Options{Logger: zaptest.NewLogger(t), World: ecs.NewWorld()})
	t.Cleanup(rt.Close)
	if err := m.Apply(rt); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if rt.CommandFailurePolicy() != scripting.Continue || rt.HookFailurePolicy() != scripting.FailFast {
		t.Fatalf("policies not applied")
	}
	ev := rt.ListEventScripts()
	if len(rt.ListCommandScripts()) != 1 || len(ev) != 1 || len(rt.ListHookScripts()) != 1 {
		t.Fatalf("registered scripts missing")
	}
	if ev[0].ID != "on-collide" || ev[0].Priority != 5 {
		t.Fatalf("event script = %+v", ev[0])
	}

	// A second apply collides with the ids already registered.
	if err := m.Apply(rt); err == nil {
		t.Fatalf("duplicate registration accepted")
	}
}

func TestManifestSchema(t *testing.T) {
	for name, tc := range map[string]struct {
		body string
		want string
	}{
		"event without channel": {"scripts:\n  - {kind: event, id: a, source: x}\n", "validate manifest"},
		"source and file":       {"scripts:\n  - {kind: command, id: a, source: x, file: y.lua}\n", "validate manifest"},
		"neither source nor":    {"scripts:\n  - {kind: command, id: a}\n", "validate manifest"},
		"unknown kind":          {"scripts:\n  - {kind: timer, id: a, source: x}\n", "validate manifest"},
		"empty id":              {"scripts:\n  - {kind: command, id: '', source: x}\n", "validate manifest"},
		"bad policy":            {"policies: {hook: retry}\n", "validate manifest"},
		"unknown key":           {"scripts: []\nextra: 1\n", "validate manifest"},
		"not yaml":              {"scripts: [\n", "parse manifest"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseManifest([]byte(tc.body))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("got %v, want %q", err, tc.want)
			}
		})
	}
	if _, err := ParseManifest(nil); err != nil {
		t.Fatalf("empty manifest: %v", err)
	}
}
