// Package kernel is the lifecycle surface of a simulation world: create
// it, advance it tic by tic, drain its events, and close it.
package kernel

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/ticworld/kernel/internal/component"
	"github.com/ticworld/kernel/internal/core/ecs"
	"github.com/ticworld/kernel/internal/core/event"
	coresys "github.com/ticworld/kernel/internal/core/system"
	"github.com/ticworld/kernel/internal/physics"
	"github.com/ticworld/kernel/internal/replication"
	"github.com/ticworld/kernel/internal/scripting"
	"github.com/ticworld/kernel/internal/system"
	"go.uber.org/zap"
)

var (
	// ErrReentrant is returned when RunTics is called from inside a tic,
	// for example by a host function.
	ErrReentrant = errors.New("RunTics called while the world is already ticking")
	// ErrClosed is returned by operations on a closed world.
	ErrClosed    = errors.New("world closed")
)

// DefaultTicDuration is used when Options.TicDuration is zero.
const DefaultTicDuration = 50 * time.Millisecond

// Options configures a new world.
type Options struct {
	Seed            int64
	TicDuration     time.Duration
	RuntimeMode     physics.Mode
	Logger          *zap.Logger
	FailurePolicy   scripting.Policy
	MaxEventCascade int
	Physics         physics.Config
	Pace            system.PaceSpeeds
}

// sides holds the per-world registries that live outside the attribute
// store. Nothing in here is shared between worlds.
type sides struct {
	scripts  *scripting.Runtime
	physics  *physics.State
	runtime  physics.Runtime
	pointer  *system.PointerSystem
	observer *replication.Observer
}

// World is one simulation instance. All methods must be called from a
// single goroutine.
type World struct {
	log    *zap.Logger
	opts   Options
	ecs    *ecs.World
	comps  *component.Set
	tic    uint64
	rng    *rand.Rand
	events *event.Queue
	runner *coresys.Runner
	sides  sides

	running bool
	closed  bool
}

// CreateWorld builds a world with every kernel component registered and
// the fixed system pipeline installed.
func CreateWorld(opts Options) (*World, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.TicDuration <= 0 {
		opts.TicDuration = DefaultTicDuration
	}
	if opts.RuntimeMode == "" {
		opts.RuntimeMode = physics.ModeNative
	}
	if opts.Pace == (system.PaceSpeeds{}) {
		opts.Pace = system.DefaultPaceSpeeds
	}

	ew := ecs.NewWorld()
	comps, err := component.Register(ew)
	if err != nil {
		return nil, err
	}
	w := &World{
		log:    opts.Logger,
		opts:   opts,
		ecs:    ew,
		comps:  comps,
		rng:    rand.New(rand.NewSource(opts.Seed)),
		events: event.NewQueue(),
		runner: coresys.NewRunner(),
	}

	w.sides.scripts = scripting.NewRuntime(scripting.Options{
		Logger:          opts.Logger.Named("scripting"),
		World:           ew,
		Effects:         &effects{w: w},
		Tic:             w.Tic,
		Emit:            w.emit,
		Rand:            w.rng,
		MaxEventCascade: opts.MaxEventCascade,
	})
	w.sides.scripts.SetFailurePolicy(opts.FailurePolicy)

	w.sides.physics = physics.NewState(opts.Logger.Named("physics"), ew, comps, opts.Physics, w.emit)
	switch opts.RuntimeMode {
	case physics.ModeNative:
		w.sides.runtime = physics.NewNative(w.sides.physics)
	case physics.ModeScripted:
		rt, err := physics.NewScripted(w.sides.physics, w.sides.scripts)
		if err != nil {
			w.sides.scripts.Close()
			return nil, fmt.Errorf("create world: %w", err)
		}
		w.sides.runtime = rt
	default:
		w.sides.scripts.Close()
		return nil, fmt.Errorf("create world: unknown runtime mode %q", opts.RuntimeMode)
	}
	w.sides.pointer = system.NewPointerSystem(ew, comps)
	w.sides.observer = replication.NewObserver(ew, comps.Observed, comps.Tracked())

	ew.OnDestroy(w.purge)

	w.runner.Register(w.sides.pointer)
	w.runner.Register(system.NewPathSystem(ew, comps))
	w.runner.Register(system.NewUrgeSystem(ew, comps))
	w.runner.Register(system.NewPaceSystem(ew, comps, opts.Pace))
	w.runner.Register(system.NewPhysicsSystem(w.sides.runtime, w.Tic))
	w.runner.Register(system.NewConsumptionSystem(ew, comps, w.sides.physics, w.emit, w.Tic, opts.Logger.Named("consumption")))
	w.runner.Register(system.NewEventDispatchSystem(w.sides.scripts))
	w.runner.Register(system.NewCommandDispatchSystem(w.sides.scripts))
	w.runner.Register(system.NewCleanupSystem(ew, opts.Logger.Named("cleanup")))
	w.runner.SetHooks(w.sides.scripts)

	w.log.Info("world created",
		zap.Int64("seed", opts.Seed),
		zap.Duration("tic", opts.TicDuration),
		zap.String("runtime", string(opts.RuntimeMode)),
		zap.Stringer("failure_policy", opts.FailurePolicy),
	)
	return w, nil
}

// purge drops every side-registry reference to a destroyed entity.
func (w *World) purge(id ecs.EntityID) {
	w.sides.scripts.PurgeEntity(id)
	w.sides.physics.Forget(id)
	w.sides.pointer.Forget(id)
}

func (w *World) emit(ev event.Event) {
	w.events.Append(ev)
	w.sides.scripts.Notify(ev)
}

// Tic is the number of tics run so far. It is incremented before the
// systems of a tic run.
func (w *World) Tic() uint64 { return w.tic }

// TicDuration is the fixed step handed to every system.
func (w *World) TicDuration() time.Duration { return w.opts.TicDuration }

// RuntimeMode reports which physics runtime steps this world.
func (w *World) RuntimeMode() physics.Mode { return w.sides.runtime.Mode() }

// ECS exposes the attribute store.
func (w *World) ECS() *ecs.World { return w.ecs }

// Components returns the cached kernel component stores.
func (w *World) Components() *component.Set { return w.comps }

// Scripts returns the world's scripting runtime for registration.
func (w *World) Scripts() *scripting.Runtime { return w.sides.scripts }

// Physics returns the body state shared by both physics runtimes.
func (w *World) Physics() *physics.State { return w.sides.physics }

// PhysicsRuntime returns the runtime that steps the physics phases.
func (w *World) PhysicsRuntime() physics.Runtime { return w.sides.runtime }

// Logger returns the world's logger.
func (w *World) Logger() *zap.Logger { return w.log }

// PhaseTimings returns the accumulated wall time of every physics phase.
func (w *World) PhaseTimings() map[string]time.Duration { return w.sides.physics.Timings() }

// AddSystem installs an extra system. It runs in its phase after the
// built-in system of that phase.
func (w *World) AddSystem(s coresys.System) { w.runner.Register(s) }

// Close releases the Lua state. The world cannot tic afterwards.
func (w *World) Close() {
	if w.closed {
		return
	}
	w.closed = true
	w.sides.scripts.Close()
	w.log.Info("world closed", zap.Uint64("tic", w.tic))
}
