package physics

import (
	"fmt"
	"time"

	"github.com/ticworld/kernel/internal/component"
)

// Mode selects the physics runtime of a world.
type Mode string

const (
	ModeNative   Mode = "native"
	ModeScripted Mode = "scripted"
)

// ParseMode accepts "native" (the default for "") and "scripted".
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeNative, "":
		return ModeNative, nil
	case ModeScripted:
		return ModeScripted, nil
	}
	return "", fmt.Errorf("unknown physics runtime mode %q", s)
}

// Runtime executes one physics step per tic.
type Runtime interface {
	Mode() Mode
	// Phases returns the phase names in execution order.
	Phases() []string
	Step(tic uint64, dt time.Duration) error
}

// Native runs the phases as Go functions.
type Native struct {
	state  *State
	phases []nativePhase
}

type nativePhase struct {
	name string
	run  func(s *State)
}

func NewNative(state *State) *Native {
	return &Native{
		state: state,
		phases: []nativePhase{
			{PhaseSetup, setup},
			{PhaseSyncBodies, syncBodies},
			{PhaseApplyVelocity, applyVelocity},
			{PhaseIntegrate, integrate},
			{PhaseCollisionEvents, collisionEvents},
			{PhaseWriteBack, writeBack},
		},
	}
}

func (n *Native) Mode() Mode { return ModeNative }

func (n *Native) Phases() []string {
	out := make([]string, len(n.phases))
	for i, p := range n.phases {
		out[i] = p.name
	}
	return out
}

func (n *Native) Step(tic uint64, dt time.Duration) error {
	n.state.prepare(tic, dt.Seconds())
	for _, p := range n.phases {
		start := time.Now()
		p.run(n.state)
		n.state.addTiming(p.name, time.Since(start))
	}
	return nil
}

func setup(s *State) {
	s.BeginTic()
}

func syncBodies(s *State) {
	for _, id := range s.StaleBodies() {
		s.RemoveBodyForEntity(id)
	}
	for _, id := range s.PhysicalEntities() {
		if !s.HasBody(id) {
			s.AddBodyForEntity(id)
		}
	}
}

func applyVelocity(s *State) {
	for _, id := range s.DynamicBodies() {
		dx := s.DesiredVelocityX(id)
		dz := s.DesiredVelocityZ(id)
		vx := s.BodyVelocity(id, component.X)
		vz := s.BodyVelocity(id, component.Z)
		k := s.BodyMass(id) * s.DriveGain()
		s.ApplyBodyImpulseXZ(id, (dx-vx)*k, (dz-vz)*k)
	}
}

func integrate(s *State) {
	s.StepWorldSeconds(s.TicSeconds())
}

func collisionEvents(s *State) {
	for i, n := 0, s.ContactCount(); i < n; i++ {
		if !s.IsCollisionQualifying(i) {
			continue
		}
		a, b := s.ContactEntityA(i), s.ContactEntityB(i)
		if s.MarkCollisionPairIfNew(a, b) {
			s.EmitCollisionEvent(a, b)
		}
		s.ApplyPairShove(a, b)
	}
}

func writeBack(s *State) {
	for _, id := range s.DynamicBodies() {
		for axis := component.X; axis <= component.Z; axis++ {
			s.SetPosition(id, axis, s.BodyPosition(id, axis))
			s.SetVelocity(id, axis, s.BodyVelocity(id, axis))
		}
		s.SetGrounded(id, s.IsBodyGrounded(id))
	}
}
