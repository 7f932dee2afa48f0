package data

import (
	"fmt"
	"os"

	"github.com/ticworld/kernel/internal/component"
	"github.com/ticworld/kernel/internal/core/ecs"
	"gopkg.in/yaml.v3"
)

// ExtentEntry describes a collision volume. Size is the full width on
// each axis; a sphere uses size[0] as its diameter.
type ExtentEntry struct {
	Shape string     `yaml:"shape"` // "sphere" (default) or "box"
	Size  [3]float64 `yaml:"size"`
	Mass  float64    `yaml:"mass"`
}

type UrgeEntry struct {
	Kind   string `yaml:"kind"`   // "seek", "flee" or "idle"
	Target string `yaml:"target"` // name of another entity
}

type PathEntry struct {
	X      float64 `yaml:"x"`
	Z      float64 `yaml:"z"`
	Radius float64 `yaml:"radius"`
}

// EntityEntry is one entity of a scenario. Absent keys mean absent
// components. Entities with an extent that are neither obstacles nor food
// also get velocity and grounded so they move.
type EntityEntry struct {
	Name      string       `yaml:"name"`
	Position  *[3]float64  `yaml:"position"`
	Extent    *ExtentEntry `yaml:"extent"`
	Heading   *[2]float64  `yaml:"heading"`
	Speed     *float64     `yaml:"speed"`
	Pace      string       `yaml:"pace"`
	Urge      *UrgeEntry   `yaml:"urge"`
	Path      *PathEntry   `yaml:"path"`
	Food      *float64     `yaml:"food"`  // nutrition
	Eater     *float64     `yaml:"eater"` // initial hunger
	Tile      *[2]int      `yaml:"tile"`
	Obstacle  bool         `yaml:"obstacle"`
	Hoverable bool         `yaml:"hoverable"`
	Observed  bool         `yaml:"observed"`
}

// Scenario is an initial world population.
type Scenario struct {
	Name     string        `yaml:"name"`
	Entities []EntityEntry `yaml:"entities"`
}

// LoadScenario reads a YAML scenario file.
func LoadScenario(path string) (*Scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	var s Scenario
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if err := s.check(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	return &s, nil
}

func (s *Scenario) check() error {
	names := make(map[string]bool, len(s.Entities))
	for i, e := range s.Entities {
		if e.Name == "" {
			continue
		}
		if names[e.Name] {
			return fmt.Errorf("entity %d: duplicate name %q", i, e.Name)
		}
		names[e.Name] = true
	}
	for i, e := range s.Entities {
		if e.Extent != nil {
			if _, ok := shapes[e.Extent.Shape]; !ok {
				return fmt.Errorf("entity %d: unknown shape %q", i, e.Extent.Shape)
			}
		}
		if _, ok := paces[e.Pace]; !ok {
			return fmt.Errorf("entity %d: unknown pace %q", i, e.Pace)
		}
		if e.Urge != nil {
			if _, ok := urges[e.Urge.Kind]; !ok {
				return fmt.Errorf("entity %d: unknown urge %q", i, e.Urge.Kind)
			}
			if e.Urge.Target != "" && !names[e.Urge.Target] {
				return fmt.Errorf("entity %d: urge target %q not defined", i, e.Urge.Target)
			}
		}
	}
	return nil
}

var (
	shapes = map[string]float64{"": component.ShapeSphere, "sphere": component.ShapeSphere, "box": component.ShapeBox}
	paces  = map[string]float64{"": -1, "stop": component.PaceStop, "walk": component.PaceWalk, "run": component.PaceRun}
	urges  = map[string]float64{"": component.UrgeIdle, "idle": component.UrgeIdle, "seek": component.UrgeSeek, "flee": component.UrgeFlee}
)

// Spawn creates the entities in file order and returns them by name.
func (s *Scenario) Spawn(w *ecs.World, c *component.Set) (map[string]ecs.EntityID, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	ids := make([]ecs.EntityID, len(s.Entities))
	named := make(map[string]ecs.EntityID)
	for i, e := range s.Entities {
		id := w.CreateEntity()
		ids[i] = id
		if e.Name != "" {
			named[e.Name] = id
			c.Label.Add(id)
			c.Label.SetText(id, component.LabelText, e.Name)
		}
		spawnEntity(c, id, e)
	}
	for i, e := range s.Entities {
		if e.Urge != nil && e.Urge.Target != "" {
			c.Urge.SetEntity(ids[i], component.UrgeTarget, named[e.Urge.Target])
		}
	}
	return named, nil
}

func spawnEntity(c *component.Set, id ecs.EntityID, e EntityEntry) {
	if e.Position != nil {
		c.Position.Add(id)
		for axis, v := range e.Position {
			c.Position.SetFloat(id, axis, v)
		}
	}
	if e.Extent != nil {
		c.Extent.Add(id)
		c.Extent.SetFloat(id, component.ExtShape, shapes[e.Extent.Shape])
		c.Extent.SetFloat(id, component.ExtSizeX, e.Extent.Size[0])
		c.Extent.SetFloat(id, component.ExtSizeY, e.Extent.Size[1])
		c.Extent.SetFloat(id, component.ExtSizeZ, e.Extent.Size[2])
		c.Extent.SetFloat(id, component.ExtMass, e.Extent.Mass)
		if !e.Obstacle && e.Food == nil {
			c.Velocity.Add(id)
			c.Grounded.Add(id)
		}
	}
	if e.Heading != nil {
		c.Heading.Add(id)
		c.Heading.SetFloat(id, component.HeadX, e.Heading[0])
		c.Heading.SetFloat(id, component.HeadZ, e.Heading[1])
	}
	if e.Speed != nil {
		c.Speed.Add(id)
		c.Speed.SetFloat(id, component.SpeedValue, *e.Speed)
	}
	if level := paces[e.Pace]; level >= 0 {
		c.Pace.Add(id)
		c.Pace.SetFloat(id, component.PaceLevel, level)
		c.Speed.Add(id)
		c.Heading.Add(id)
	}
	if e.Urge != nil {
		c.Urge.Add(id)
		c.Urge.SetFloat(id, component.UrgeKind, urges[e.Urge.Kind])
		c.Heading.Add(id)
	}
	if e.Path != nil {
		c.Path.Add(id)
		c.Path.SetFloat(id, component.PathX, e.Path.X)
		c.Path.SetFloat(id, component.PathZ, e.Path.Z)
		c.Path.SetFloat(id, component.PathRadius, e.Path.Radius)
		c.Heading.Add(id)
	}
	if e.Food != nil {
		c.Food.Add(id)
		c.Food.SetFloat(id, component.FoodNutrition, *e.Food)
	}
	if e.Eater != nil {
		c.Eater.Add(id)
		c.Eater.SetFloat(id, component.EaterHunger, *e.Eater)
	}
	if e.Tile != nil {
		c.Tile.Add(id)
		c.Tile.SetFloat(id, component.TileCol, float64(e.Tile[0]))
		c.Tile.SetFloat(id, component.TileRow, float64(e.Tile[1]))
	}
	if e.Obstacle {
		c.Obstacle.Add(id)
	}
	if e.Hoverable {
		c.Hoverable.Add(id)
	}
	if e.Observed {
		c.Observed.Add(id)
	}
}
