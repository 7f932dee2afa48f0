package system

import (
	"math"
	"time"

	"github.com/ticworld/kernel/internal/component"
	"github.com/ticworld/kernel/internal/core/ecs"
	coresys "github.com/ticworld/kernel/internal/core/system"
)

// setHeading writes a unit heading toward (dx, dz), or zero for a
// degenerate direction.
func setHeading(c *component.Set, id ecs.EntityID, dx, dz float64) {
	l := math.Sqrt(dx*dx + dz*dz)
	if l == 0 || math.IsNaN(l) || math.IsInf(l, 0) {
		dx, dz, l = 0, 0, 1
	}
	c.Heading.SetFloat(id, component.HeadX, dx/l)
	c.Heading.SetFloat(id, component.HeadZ, dz/l)
}

// PathSystem steers entities toward their path target. On arrival the
// path is removed, the heading zeroed and the pace set to stop.
type PathSystem struct {
	world *ecs.World
	comps *component.Set
}

func NewPathSystem(world *ecs.World, comps *component.Set) *PathSystem {
	return &PathSystem{world: world, comps: comps}
}

func (s *PathSystem) Phase() coresys.Phase { return coresys.PhasePathFollowing }

func (s *PathSystem) Update(_ time.Duration) error {
	c := s.comps
	s.world.Each(func(id ecs.EntityID) {
		dx := c.Path.F(id, component.PathX) - c.Position.F(id, component.X)
		dz := c.Path.F(id, component.PathZ) - c.Position.F(id, component.Z)
		radius := c.Path.F(id, component.PathRadius)
		if dx*dx+dz*dz <= radius*radius {
			c.Path.Remove(id)
			setHeading(c, id, 0, 0)
			c.Pace.SetFloat(id, component.PaceLevel, component.PaceStop)
			return
		}
		setHeading(c, id, dx, dz)
	}, c.Path, c.Position, c.Heading)
	return nil
}

// UrgeSystem turns seek and flee urges into a heading relative to the
// target. An urge whose target died falls back to idle.
type UrgeSystem struct {
	world *ecs.World
	comps *component.Set
}

func NewUrgeSystem(world *ecs.World, comps *component.Set) *UrgeSystem {
	return &UrgeSystem{world: world, comps: comps}
}

func (s *UrgeSystem) Phase() coresys.Phase { return coresys.PhaseUrge }

func (s *UrgeSystem) Update(_ time.Duration) error {
	c := s.comps
	for _, id := range s.world.Query(c.Urge, c.Position, c.Heading) {
		kind := int(c.Urge.F(id, component.UrgeKind))
		if kind == component.UrgeIdle {
			continue
		}
		target := c.Urge.Entity(id, component.UrgeTarget)
		if target == id || !s.world.Alive(target) || !c.Position.Has(target) {
			c.Urge.SetFloat(id, component.UrgeKind, component.UrgeIdle)
			c.Urge.SetEntity(id, component.UrgeTarget, 0)
			continue
		}
		dx := c.Position.F(target, component.X) - c.Position.F(id, component.X)
		dz := c.Position.F(target, component.Z) - c.Position.F(id, component.Z)
		if kind == component.UrgeFlee {
			dx, dz = -dx, -dz
		}
		setHeading(c, id, dx, dz)
	}
	return nil
}
