package system

import (
	"time"

	coresys "github.com/ticworld/kernel/internal/core/system"
	"github.com/ticworld/kernel/internal/scripting"
)

// EventDispatchSystem hands the tic's queued events to event scripts.
type EventDispatchSystem struct {
	scripts *scripting.Runtime
}

func NewEventDispatchSystem(scripts *scripting.Runtime) *EventDispatchSystem {
	return &EventDispatchSystem{scripts: scripts}
}

func (s *EventDispatchSystem) Phase() coresys.Phase { return coresys.PhaseEventDispatch }

func (s *EventDispatchSystem) Update(_ time.Duration) error {
	return s.scripts.DispatchEvents()
}

// CommandDispatchSystem runs the command invocations queued so far,
// including those enqueued by event scripts earlier in the same tic.
type CommandDispatchSystem struct {
	scripts *scripting.Runtime
}

func NewCommandDispatchSystem(scripts *scripting.Runtime) *CommandDispatchSystem {
	return &CommandDispatchSystem{scripts: scripts}
}

func (s *CommandDispatchSystem) Phase() coresys.Phase { return coresys.PhaseCommandDispatch }

func (s *CommandDispatchSystem) Update(_ time.Duration) error {
	return s.scripts.DispatchCommands()
}
