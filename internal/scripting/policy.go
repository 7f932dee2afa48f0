package scripting

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyID        = errors.New("script id is empty")
	ErrEmptySource    = errors.New("script source is empty")
	ErrDuplicateID    = errors.New("script id already registered")
	ErrUnknownHook    = errors.New("unknown hook point")
	ErrEmptyChannel   = errors.New("event channel is empty")
	ErrUnknownCommand = errors.New("unknown command script")
	ErrEventCascade   = errors.New("event cascade limit exceeded")
	ErrClosed         = errors.New("scripting runtime closed")
)

// Policy decides what a script execution error does to the tic.
type Policy uint8

const (
	// FailFast aborts the tic with a *ScriptError.
	FailFast Policy = iota
	// Continue records the error and moves on to the next script.
	Continue
)

func (p Policy) String() string {
	if p == Continue {
		return "continue"
	}
	return "fail-fast"
}

// ParsePolicy accepts "fail-fast" and "continue".
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "fail-fast", "":
		return FailFast, nil
	case "continue":
		return Continue, nil
	}
	return FailFast, fmt.Errorf("unknown failure policy %q", s)
}

// Facility names one of the three independent script kinds.
type Facility uint8

const (
	FacilityCommand Facility = iota
	FacilityEvent
	FacilityHook
)

func (f Facility) String() string {
	switch f {
	case FacilityCommand:
		return "command"
	case FacilityEvent:
		return "event"
	case FacilityHook:
		return "hook"
	}
	return "system"
}

// ScriptError describes one failed script invocation.
type ScriptError struct {
	SourceID string // script id, or the unknown command id
	Scope    string // "command:<id>", "event:<channel>" or "hook:<point>"
	TicCount uint64
	Message  string
	Err      error
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("script %q failed in %s at tic %d: %s", e.SourceID, e.Scope, e.TicCount, e.Message)
}

func (e *ScriptError) Unwrap() error { return e.Err }
