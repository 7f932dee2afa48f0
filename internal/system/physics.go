package system

import (
	"time"

	coresys "github.com/ticworld/kernel/internal/core/system"
	"github.com/ticworld/kernel/internal/physics"
)

// PhysicsSystem steps the world's physics runtime once per tic.
type PhysicsSystem struct {
	runtime physics.Runtime
	tic     func() uint64
}

func NewPhysicsSystem(runtime physics.Runtime, tic func() uint64) *PhysicsSystem {
	return &PhysicsSystem{runtime: runtime, tic: tic}
}

func (s *PhysicsSystem) Phase() coresys.Phase { return coresys.PhasePhysics }

func (s *PhysicsSystem) Update(dt time.Duration) error {
	return s.runtime.Step(s.tic(), dt)
}
