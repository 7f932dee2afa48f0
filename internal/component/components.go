package component

import (
	"fmt"

	"github.com/ticworld/kernel/internal/core/ecs"
)

// Field indices. Each block follows the order of its schema below.
const (
	X = 0
	Y = 1
	Z = 2

	// extent
	ExtShape = 0
	ExtSizeX = 1
	ExtSizeY = 2
	ExtSizeZ = 3
	ExtMass  = 4

	// heading
	HeadX = 0
	HeadZ = 1

	// speed, grounded, pace
	SpeedValue    = 0
	GroundedValue = 0
	PaceLevel     = 0

	// urge
	UrgeKind   = 0
	UrgeTarget = 1

	// path
	PathX      = 0
	PathZ      = 1
	PathRadius = 2

	// food
	FoodNutrition = 0

	// eater
	EaterHunger = 0
	EaterEaten  = 1

	// pointer
	PointerX      = 0
	PointerZ      = 1
	PointerActive = 2
	PointerHover  = 3

	// tile
	TileCol = 0
	TileRow = 1

	// label
	LabelText = 0
)

// Extent shapes.
const (
	ShapeSphere = 0
	ShapeBox    = 1
)

// Urge kinds.
const (
	UrgeIdle = 0
	UrgeSeek = 1
	UrgeFlee = 2
)

// Pace levels.
const (
	PaceStop = 0
	PaceWalk = 1
	PaceRun  = 2
)

var vec3 = []ecs.Field{{Name: "x", Kind: ecs.KindF64}, {Name: "y", Kind: ecs.KindF64}, {Name: "z", Kind: ecs.KindF64}}

// Schemas lists every kernel component in registration order.
var Schemas = []ecs.Schema{
	{Name: "position", Fields: vec3},
	{Name: "velocity", Fields: vec3},
	{Name: "extent", Fields: []ecs.Field{
		{Name: "shape", Kind: ecs.KindU8},
		{Name: "sizeX", Kind: ecs.KindF64},
		{Name: "sizeY", Kind: ecs.KindF64},
		{Name: "sizeZ", Kind: ecs.KindF64},
		{Name: "mass", Kind: ecs.KindF32},
	}},
	{Name: "heading", Fields: []ecs.Field{{Name: "x", Kind: ecs.KindF64}, {Name: "z", Kind: ecs.KindF64}}},
	{Name: "speed", Fields: []ecs.Field{{Name: "value", Kind: ecs.KindF64}}},
	{Name: "grounded", Fields: []ecs.Field{{Name: "value", Kind: ecs.KindU8}}},
	{Name: "pace", Fields: []ecs.Field{{Name: "level", Kind: ecs.KindU8}}},
	{Name: "urge", Fields: []ecs.Field{{Name: "kind", Kind: ecs.KindU8}, {Name: "target", Kind: ecs.KindEntity}}},
	{Name: "path", Fields: []ecs.Field{{Name: "x", Kind: ecs.KindF64}, {Name: "z", Kind: ecs.KindF64}, {Name: "radius", Kind: ecs.KindF32}}},
	{Name: "food", Fields: []ecs.Field{{Name: "nutrition", Kind: ecs.KindF32}}},
	{Name: "eater", Fields: []ecs.Field{{Name: "hunger", Kind: ecs.KindF64}, {Name: "eaten", Kind: ecs.KindU32}}},
	{Name: "pointer", Fields: []ecs.Field{
		{Name: "x", Kind: ecs.KindF64},
		{Name: "z", Kind: ecs.KindF64},
		{Name: "active", Kind: ecs.KindU8},
		{Name: "hover", Kind: ecs.KindEntity},
	}},
	{Name: "tile", Fields: []ecs.Field{{Name: "col", Kind: ecs.KindI16}, {Name: "row", Kind: ecs.KindI16}}},
	{Name: "label", Fields: []ecs.Field{{Name: "text", Kind: ecs.KindString}}},
	{Name: "obstacle"},
	{Name: "hoverable"},
	{Name: "observed"},
}

// Set caches the store pointer of every kernel component.
// Populated once per world; the pointers stay valid for the world's lifetime.
type Set struct {
	Position  *ecs.Store
	Velocity  *ecs.Store
	Extent    *ecs.Store
	Heading   *ecs.Store
	Speed     *ecs.Store
	Grounded  *ecs.Store
	Pace      *ecs.Store
	Urge      *ecs.Store
	Path      *ecs.Store
	Food      *ecs.Store
	Eater     *ecs.Store
	Pointer   *ecs.Store
	Tile      *ecs.Store
	Label     *ecs.Store
	Obstacle  *ecs.Store
	Hoverable *ecs.Store
	Observed  *ecs.Store
}

// Register registers every schema on w and returns the cached set.
func Register(w *ecs.World) (*Set, error) {
	stores := make(map[string]*ecs.Store, len(Schemas))
	for _, s := range Schemas {
		st, err := w.Register(s)
		if err != nil {
			return nil, fmt.Errorf("register components: %w", err)
		}
		stores[s.Name] = st
	}
	return &Set{
		Position:  stores["position"],
		Velocity:  stores["velocity"],
		Extent:    stores["extent"],
		Heading:   stores["heading"],
		Speed:     stores["speed"],
		Grounded:  stores["grounded"],
		Pace:      stores["pace"],
		Urge:      stores["urge"],
		Path:      stores["path"],
		Food:      stores["food"],
		Eater:     stores["eater"],
		Pointer:   stores["pointer"],
		Tile:      stores["tile"],
		Label:     stores["label"],
		Obstacle:  stores["obstacle"],
		Hoverable: stores["hoverable"],
		Observed:  stores["observed"],
	}, nil
}

// Tracked is the default replicated component list: everything except the
// observed marker itself and the pointer singleton.
func (s *Set) Tracked() []*ecs.Store {
	return []*ecs.Store{
		s.Position, s.Velocity, s.Extent, s.Heading, s.Speed, s.Grounded,
		s.Pace, s.Urge, s.Path, s.Food, s.Eater, s.Tile, s.Label,
		s.Obstacle, s.Hoverable,
	}
}
