package scripting

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/ticworld/kernel/internal/core/ecs"
	"github.com/ticworld/kernel/internal/core/event"
	"github.com/ticworld/kernel/internal/core/value"
	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"
	"go.uber.org/zap"
)

// APIVersion is exposed to scripts as the API_VERSION global.
const APIVersion = 1

// DefaultMaxEventCascade bounds how many events one dispatch phase may
// process, counting events emitted by handlers during the phase.
const DefaultMaxEventCascade = 10000

// Effects applies buffered script mutations to the world. Implementations
// ignore entities that no longer exist and report false.
type Effects interface {
	SetDirection(id ecs.EntityID, x, z float64) bool
	SetSpeed(id ecs.EntityID, speed float64) bool
	SetPace(id ecs.EntityID, level int) bool
}

// Options wires a Runtime to its world.
type Options struct {
	Logger  *zap.Logger
	World   *ecs.World
	Effects Effects
	// Tic reports the current tic counter.
	Tic func() uint64
	// Emit appends an event to the world's output queue. The world is
	// expected to hand the event back through Notify. When nil, events
	// emitted by scripts are only queued for dispatch.
	Emit            func(event.Event)
	Rand            *rand.Rand
	MaxEventCascade int
}

// Runtime wraps a single gopher-lua VM for one world. Single-goroutine
// access only (the tic loop).
type Runtime struct {
	vm   *lua.LState
	log  *zap.Logger
	opts Options

	commands facilityState
	events   facilityState
	hooks    facilityState

	commandQueue []CommandInvocation
	nextCommand  uint64
	eventQueue   []queuedEvent
	nextEvent    uint64

	cur    *invocation
	closed bool
}

type facilityState struct {
	facility Facility
	reg      *registry
	policy   Policy
	errors   []ScriptError
	trace    []string
}

// NewRuntime creates a sandboxed Lua state and installs the host API.
func NewRuntime(opts Options) *Runtime {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Tic == nil {
		opts.Tic = func() uint64 { return 0 }
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(1))
	}
	if opts.MaxEventCascade <= 0 {
		opts.MaxEventCascade = DefaultMaxEventCascade
	}
	r := &Runtime{
		vm:       newSandbox(),
		log:      opts.Logger,
		opts:     opts,
		commands: facilityState{facility: FacilityCommand, reg: newRegistry()},
		events:   facilityState{facility: FacilityEvent, reg: newRegistry()},
		hooks:    facilityState{facility: FacilityHook, reg: newRegistry()},
	}
	r.vm.SetGlobal("API_VERSION", lua.LNumber(APIVersion))
	r.installHostAPI()
	return r
}

// newSandbox opens only the base, table, string and math libraries and
// strips everything that reaches the file system or loads code.
func newSandbox() *lua.LState {
	vm := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, lib := range []struct {
		name string
		open lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		vm.Push(vm.NewFunction(lib.open))
		vm.Push(lua.LString(lib.name))
		vm.Call(1, 0)
	}
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require", "module", "collectgarbage", "print", "newproxy", "getfenv", "setfenv"} {
		vm.SetGlobal(name, lua.LNil)
	}
	// math.random would be a second, unseeded random source.
	if m, ok := vm.GetGlobal("math").(*lua.LTable); ok {
		m.RawSetString("random", lua.LNil)
		m.RawSetString("randomseed", lua.LNil)
	}
	vm.SetTop(0)
	return vm
}

// State exposes the VM so other packages can bind their own host functions.
func (r *Runtime) State() *lua.LState { return r.vm }

// Logger returns the runtime's logger.
func (r *Runtime) Logger() *zap.Logger { return r.log }

// Compile parses source into a callable chunk named name. Syntax errors are
// returned, nothing is executed.
func (r *Runtime) Compile(name, source string) (*lua.LFunction, error) {
	if r.closed {
		return nil, ErrClosed
	}
	chunk, err := parse.Parse(strings.NewReader(source), name)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	proto, err := lua.Compile(chunk, name)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", name, err)
	}
	return r.vm.NewFunctionFromProto(proto), nil
}

// Run executes a chunk outside the three script facilities (used by the
// scripted physics phases). Errors are returned as-is; no policy applies.
func (r *Runtime) Run(name string, fn *lua.LFunction) error {
	_, err := r.call(fn, &invocation{scriptID: name, scope: "system:" + name}, 0)
	return err
}

// Eval executes a chunk and returns its first result.
func (r *Runtime) Eval(name string, fn *lua.LFunction) (lua.LValue, error) {
	return r.call(fn, &invocation{scriptID: name, scope: "system:" + name}, 1)
}

// call runs fn with inv as the current invocation. The Lua stack is reset
// before and after so nothing leaks between chunks. Buffered effects,
// enqueued commands and emitted events are released only when the chunk
// finished without error.
func (r *Runtime) call(fn *lua.LFunction, inv *invocation, nret int) (lua.LValue, error) {
	if r.closed {
		return lua.LNil, ErrClosed
	}
	r.vm.SetTop(0)
	prev := r.cur
	r.cur = inv
	err := r.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    nret,
		Protect: true,
	})
	var ret lua.LValue = lua.LNil
	if err == nil && nret > 0 {
		ret = r.vm.Get(-1)
	}
	r.cur = prev
	r.vm.SetTop(0)
	if err != nil {
		return lua.LNil, err
	}
	r.applyEffects(inv.effects)
	r.commandQueue = append(r.commandQueue, inv.commands...)
	for _, ev := range inv.emitted {
		r.emit(ev)
	}
	return ret, nil
}

// emit routes a script event to the world queue, or straight to dispatch
// when the runtime has no world attached.
func (r *Runtime) emit(ev event.Event) {
	if r.opts.Emit != nil {
		r.opts.Emit(ev)
		return
	}
	r.Notify(ev)
}

func (r *Runtime) applyEffects(effects []effect) {
	if r.opts.Effects == nil {
		return
	}
	for _, e := range effects {
		if r.opts.World != nil && !r.opts.World.Alive(e.entity) {
			continue
		}
		switch e.op {
		case effectDirection:
			r.opts.Effects.SetDirection(e.entity, e.x, e.z)
		case effectSpeed:
			r.opts.Effects.SetSpeed(e.entity, e.x)
		case effectPace:
			r.opts.Effects.SetPace(e.entity, int(e.x))
		}
	}
}

// luaErrorMessage extracts the Lua error object without the Go stack trace.
func luaErrorMessage(err error) string {
	if apiErr, ok := err.(*lua.ApiError); ok && apiErr.Object != nil {
		return apiErr.Object.String()
	}
	return err.Error()
}

// fail applies the facility policy to a failed invocation.
func (r *Runtime) fail(fs *facilityState, se *ScriptError) error {
	if fs.policy == FailFast {
		return se
	}
	r.log.Warn("script failed, continuing",
		zap.String("facility", fs.facility.String()),
		zap.String("script_id", se.SourceID),
		zap.String("scope", se.Scope),
		zap.Uint64("tic", se.TicCount),
		zap.String("error", se.Message),
	)
	fs.errors = append(fs.errors, *se)
	return nil
}

func (r *Runtime) register(fs *facilityState, scope string, reg Registration) error {
	if r.closed {
		return ErrClosed
	}
	id := normalizeID(reg.ID)
	if id == "" {
		return ErrEmptyID
	}
	if strings.TrimSpace(reg.Source) == "" {
		return fmt.Errorf("%w: %q", ErrEmptySource, id)
	}
	if fs.reg.has(scope, id) {
		return fmt.Errorf("%w: %q in %q", ErrDuplicateID, id, scope)
	}
	fn, err := r.Compile(id, reg.Source)
	if err != nil {
		return fmt.Errorf("register %s script %q: %w", fs.facility, id, err)
	}
	if err := fs.reg.add(scope, id, reg.Priority, fn); err != nil {
		return err
	}
	r.log.Debug("registered script",
		zap.String("facility", fs.facility.String()),
		zap.String("script_id", id),
		zap.String("scope", scope),
		zap.Int("priority", reg.Priority),
	)
	return nil
}

// SetFailurePolicy switches all three facilities at once.
func (r *Runtime) SetFailurePolicy(p Policy) {
	r.commands.policy = p
	r.events.policy = p
	r.hooks.policy = p
}

// PurgeEntity drops pending command invocations that target id through
// their "entity" argument.
func (r *Runtime) PurgeEntity(id ecs.EntityID) {
	kept := r.commandQueue[:0]
	for _, inv := range r.commandQueue {
		if target, ok := inv.Args["entity"]; ok && target.Type() == value.Number && ecs.EntityID(uint64(target.Num())) == id {
			continue
		}
		kept = append(kept, inv)
	}
	clear(r.commandQueue[len(kept):])
	r.commandQueue = kept
}

// Close shuts down the Lua VM.
func (r *Runtime) Close() {
	if r.closed {
		return
	}
	r.closed = true
	r.vm.Close()
}

func drainStrings(s *[]string) []string {
	out := make([]string, len(*s))
	copy(out, *s)
	*s = (*s)[:0]
	return out
}

func drainErrors(s *[]ScriptError) []ScriptError {
	out := make([]ScriptError, len(*s))
	copy(out, *s)
	*s = (*s)[:0]
	return out
}
