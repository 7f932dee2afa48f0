package system

import (
	"math"
	"time"

	"github.com/ticworld/kernel/internal/component"
	"github.com/ticworld/kernel/internal/core/ecs"
	coresys "github.com/ticworld/kernel/internal/core/system"
)

// PointerSystem copies the latest pointer input into the pointer singleton
// and resolves which hoverable entity lies under it.
type PointerSystem struct {
	world  *ecs.World
	comps  *component.Set
	entity ecs.EntityID

	x, z   float64
	active bool
}

func NewPointerSystem(world *ecs.World, comps *component.Set) *PointerSystem {
	return &PointerSystem{world: world, comps: comps}
}

func (s *PointerSystem) Phase() coresys.Phase { return coresys.PhasePointer }

// Set records pointer input for the next tic. Non-finite coordinates
// deactivate the pointer.
func (s *PointerSystem) Set(x, z float64, active bool) {
	if math.IsNaN(x) || math.IsInf(x, 0) || math.IsNaN(z) || math.IsInf(z, 0) {
		x, z, active = 0, 0, false
	}
	s.x, s.z, s.active = x, z, active
}

// Entity returns the pointer singleton, or 0 before the first tic.
func (s *PointerSystem) Entity() ecs.EntityID { return s.entity }

// Forget clears the cached hover target when it is destroyed.
func (s *PointerSystem) Forget(id ecs.EntityID) {
	if s.entity == 0 {
		return
	}
	if id == s.entity {
		s.entity = 0
		return
	}
	if s.comps.Pointer.Entity(s.entity, component.PointerHover) == id {
		s.comps.Pointer.SetEntity(s.entity, component.PointerHover, 0)
	}
}

func (s *PointerSystem) Update(_ time.Duration) error {
	p := s.comps.Pointer
	if s.entity == 0 || !s.world.Alive(s.entity) {
		s.entity = s.world.CreateEntity()
		p.Add(s.entity)
	}
	p.SetFloat(s.entity, component.PointerX, s.x)
	p.SetFloat(s.entity, component.PointerZ, s.z)
	active := 0.0
	if s.active {
		active = 1
	}
	p.SetFloat(s.entity, component.PointerActive, active)

	var hover ecs.EntityID
	if s.active {
		hover = s.pick()
	}
	p.SetEntity(s.entity, component.PointerHover, hover)
	return nil
}

// pick returns the first hoverable entity, in creation order, whose
// footprint on the xz plane contains the pointer.
func (s *PointerSystem) pick() ecs.EntityID {
	c := s.comps
	for _, id := range s.world.Query(c.Hoverable, c.Position, c.Extent) {
		dx := s.x - c.Position.F(id, component.X)
		dz := s.z - c.Position.F(id, component.Z)
		hx := c.Extent.F(id, component.ExtSizeX) / 2
		if c.Extent.F(id, component.ExtShape) == component.ShapeSphere {
			if dx*dx+dz*dz <= hx*hx {
				return id
			}
			continue
		}
		hz := c.Extent.F(id, component.ExtSizeZ) / 2
		if math.Abs(dx) <= hx && math.Abs(dz) <= hz {
			return id
		}
	}
	return 0
}
