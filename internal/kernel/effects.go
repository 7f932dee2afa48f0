package kernel

import (
	"github.com/ticworld/kernel/internal/component"
	"github.com/ticworld/kernel/internal/core/ecs"
)

// effects applies buffered script mutations. Missing heading, speed or
// pace components are added on first write.
type effects struct {
	w *World
}

func (e *effects) SetDirection(id ecs.EntityID, x, z float64) bool {
	c := e.w.comps
	if !e.w.ecs.Alive(id) {
		return false
	}
	c.Heading.Add(id)
	c.Heading.SetFloat(id, component.HeadX, x)
	c.Heading.SetFloat(id, component.HeadZ, z)
	return true
}

func (e *effects) SetSpeed(id ecs.EntityID, speed float64) bool {
	c := e.w.comps
	if !e.w.ecs.Alive(id) {
		return false
	}
	c.Speed.Add(id)
	return c.Speed.SetFloat(id, component.SpeedValue, speed)
}

func (e *effects) SetPace(id ecs.EntityID, level int) bool {
	c := e.w.comps
	if !e.w.ecs.Alive(id) {
		return false
	}
	level = max(component.PaceStop, min(level, component.PaceRun))
	c.Pace.Add(id)
	return c.Pace.SetFloat(id, component.PaceLevel, float64(level))
}
