package system

import "time"

// Phase defines execution ordering within a single tic.
type Phase int

const (
	PhasePointer         Phase = iota // 0: pointer / input sync
	PhasePathFollowing                // 1: steer toward path targets
	PhaseUrge                         // 2: behaviour / urge resolution
	PhasePace                         // 3: pace → speed
	PhasePhysics                      // 4: rigid body step
	PhaseConsumption                  // 5: pickups
	PhaseEventDispatch                // 6: queued event scripts
	PhaseCommandDispatch              // 7: queued command scripts
	PhaseCleanup                      // 8: destroy queued entities
)

var phaseNames = [...]string{
	PhasePointer:         "pointer",
	PhasePathFollowing:   "pathFollowing",
	PhaseUrge:            "urge",
	PhasePace:            "pace",
	PhasePhysics:         "physics3d",
	PhaseConsumption:     "consumption",
	PhaseEventDispatch:   "eventDispatch",
	PhaseCommandDispatch: "commandDispatch",
	PhaseCleanup:         "cleanup",
}

func (p Phase) String() string {
	if p >= 0 && int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return "unknown"
}

// Hooked reports whether the phase is wrapped by "<name>:pre"/"<name>:post"
// hook points. Dispatch and cleanup phases are not.
func (p Phase) Hooked() bool {
	return p >= PhasePointer && p <= PhaseConsumption
}

// System is the interface every ECS system implements.
type System interface {
	Phase() Phase
	Update(dt time.Duration) error
}
