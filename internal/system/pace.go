package system

import (
	"time"

	"github.com/ticworld/kernel/internal/component"
	"github.com/ticworld/kernel/internal/core/ecs"
	coresys "github.com/ticworld/kernel/internal/core/system"
)

// PaceSpeeds maps pace levels to speeds in units per second.
type PaceSpeeds struct {
	Walk float64
	Run  float64
}

// DefaultPaceSpeeds is used when a world is created without overrides.
var DefaultPaceSpeeds = PaceSpeeds{Walk: 1.5, Run: 4}

// PaceSystem resolves pace levels into the speed component. Levels above
// run clamp to run.
type PaceSystem struct {
	world  *ecs.World
	comps  *component.Set
	speeds PaceSpeeds
}

func NewPaceSystem(world *ecs.World, comps *component.Set, speeds PaceSpeeds) *PaceSystem {
	return &PaceSystem{world: world, comps: comps, speeds: speeds}
}

func (s *PaceSystem) Phase() coresys.Phase { return coresys.PhasePace }

func (s *PaceSystem) Update(_ time.Duration) error {
	c := s.comps
	for _, id := range s.world.Query(c.Pace, c.Speed) {
		var speed float64
		switch level := int(c.Pace.F(id, component.PaceLevel)); {
		case level <= component.PaceStop:
			speed = 0
		case level == component.PaceWalk:
			speed = s.speeds.Walk
		default:
			speed = s.speeds.Run
		}
		c.Speed.SetFloat(id, component.SpeedValue, speed)
	}
	return nil
}
