// Package physics runs the rigid body step of a world. The step is a list
// of named phases built on one set of primitive verbs; the native runtime
// calls the verbs from Go and the scripted runtime calls them from Lua.
package physics

import (
	"math"
	"time"

	"github.com/ticworld/kernel/internal/component"
	"github.com/ticworld/kernel/internal/core/ecs"
	"github.com/ticworld/kernel/internal/core/event"
	"go.uber.org/zap"
)

// Phase names, in default execution order.
const (
	PhaseSetup           = "setup"
	PhaseSyncBodies      = "sync_bodies"
	PhaseApplyVelocity   = "apply_velocity"
	PhaseIntegrate       = "integrate"
	PhaseCollisionEvents = "collision_events"
	PhaseWriteBack       = "write_back"
)

// DefaultPhases is the phase order used by both runtimes.
var DefaultPhases = []string{
	PhaseSetup,
	PhaseSyncBodies,
	PhaseApplyVelocity,
	PhaseIntegrate,
	PhaseCollisionEvents,
	PhaseWriteBack,
}

// Config tunes the step. Zero fields take the defaults below.
type Config struct {
	Gravity   float64 // m/s², applied along -y
	DriveGain float64 // per second; fraction of the velocity error corrected per tic is min(1, gain*dt)
	Shove     float64 // lateral velocity change given to one body of a blocking pair
}

func (c Config) withDefaults() Config {
	if c.Gravity == 0 {
		c.Gravity = 9.81
	}
	if c.DriveGain == 0 {
		c.DriveGain = 8
	}
	if c.Shove == 0 {
		c.Shove = 0.25
	}
	return c
}

type pairKey struct{ lo, hi ecs.EntityID }

func makePair(a, b ecs.EntityID) pairKey {
	if b < a {
		a, b = b, a
	}
	return pairKey{a, b}
}

// State is the per-world physics side registry: the body space, the
// collision pair sets, and the accumulated phase timings.
type State struct {
	log   *zap.Logger
	world *ecs.World
	comps *component.Set
	cfg   Config
	space *Space
	emit  func(event.Event)

	tic       uint64
	dt        float64
	touching  map[pairKey]struct{} // qualifying pairs marked this tic
	timings   map[string]time.Duration
	stepCount uint64
}

// NewState creates the physics state for one world. emit receives the
// collision events; it may be nil in tests.
func NewState(log *zap.Logger, w *ecs.World, comps *component.Set, cfg Config, emit func(event.Event)) *State {
	if log == nil {
		log = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	return &State{
		log:      log,
		world:    w,
		comps:    comps,
		cfg:      cfg,
		space:    NewSpace(cfg.Gravity),
		emit:     emit,
		touching: make(map[pairKey]struct{}),
		timings:  make(map[string]time.Duration),
	}
}

func (s *State) Space() *Space  { return s.space }
func (s *State) Config() Config { return s.cfg }
func (s *State) Steps() uint64  { return s.stepCount }

// Timings returns a copy of the accumulated wall time per phase.
func (s *State) Timings() map[string]time.Duration {
	out := make(map[string]time.Duration, len(s.timings))
	for k, v := range s.timings {
		out[k] = v
	}
	return out
}

func (s *State) addTiming(phase string, d time.Duration) { s.timings[phase] += d }

// Forget drops every reference to id. Called when the entity is destroyed.
func (s *State) Forget(id ecs.EntityID) {
	s.space.Remove(id)
	for k := range s.touching {
		if k.lo == id || k.hi == id {
			delete(s.touching, k)
		}
	}
}

// JumpPulse gives grounded dynamic bodies an upward velocity v. With
// id == 0 every grounded body jumps. Returns how many bodies jumped.
func (s *State) JumpPulse(id ecs.EntityID, v float64) int {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	n := 0
	for _, b := range s.space.Bodies() {
		if b.Kind != Dynamic || !b.Grounded || (id != 0 && b.Entity != id) {
			continue
		}
		b.Vel[1] = v
		b.Grounded = false
		n++
	}
	return n
}

// SensorContacts returns (sensor, other) pairs from the last step in
// contact order.
func (s *State) SensorContacts() [][2]ecs.EntityID {
	var out [][2]ecs.EntityID
	for _, c := range s.space.Contacts() {
		if !c.Sensor {
			continue
		}
		a, _ := s.space.Body(c.A)
		if a != nil && a.Kind == Sensor {
			out = append(out, [2]ecs.EntityID{c.A, c.B})
		} else {
			out = append(out, [2]ecs.EntityID{c.B, c.A})
		}
	}
	return out
}

// --- primitive verbs ---
//
// Every verb tolerates unknown entities and bad indices by returning a
// zero value; the Lua bindings rely on this so host calls never raise.

// prepare records the tic the next step belongs to.
func (s *State) prepare(tic uint64, dt float64) {
	s.tic = tic
	s.dt = dt
}

// BeginTic resets the collision pair set. Pairs are deduplicated within
// one tic only, so a pair that keeps overlapping reports every tic.
func (s *State) BeginTic() {
	clear(s.touching)
}

func (s *State) Tic() uint64 { return s.tic }

func (s *State) TicSeconds() float64 { return s.dt }

// PhysicalEntities lists entities that should own a body, in creation order.
func (s *State) PhysicalEntities() []ecs.EntityID {
	return append([]ecs.EntityID(nil), s.world.Query(s.comps.Position, s.comps.Extent)...)
}

func (s *State) HasBody(id ecs.EntityID) bool {
	_, ok := s.space.Body(id)
	return ok
}

func (s *State) kindOf(id ecs.EntityID) BodyKind {
	switch {
	case s.comps.Obstacle.Has(id):
		return Static
	case s.comps.Food.Has(id):
		return Sensor
	}
	return Dynamic
}

// AddBodyForEntity creates the body of id from its position, extent and
// velocity components.
func (s *State) AddBodyForEntity(id ecs.EntityID) bool {
	c := s.comps
	if !s.world.Alive(id) || !c.Position.Has(id) || !c.Extent.Has(id) {
		return false
	}
	size := vec3{c.Extent.F(id, component.ExtSizeX), c.Extent.F(id, component.ExtSizeY), c.Extent.F(id, component.ExtSizeZ)}
	pos := vec3{c.Position.F(id, component.X), c.Position.F(id, component.Y), c.Position.F(id, component.Z)}
	b := newBody(id, s.kindOf(id), uint8(c.Extent.F(id, component.ExtShape)), size, c.Extent.F(id, component.ExtMass), pos)
	if b.Kind == Dynamic {
		b.Vel = vec3{c.Velocity.F(id, component.X), c.Velocity.F(id, component.Y), c.Velocity.F(id, component.Z)}
		b.Grounded = c.Grounded.F(id, component.GroundedValue) != 0
	}
	s.space.Add(b)
	return true
}

// StaleBodies lists bodies whose entity died, lost its position or extent,
// or changed body kind.
func (s *State) StaleBodies() []ecs.EntityID {
	var out []ecs.EntityID
	for _, b := range s.space.Bodies() {
		id := b.Entity
		if !s.world.Alive(id) || !s.comps.Position.Has(id) || !s.comps.Extent.Has(id) || s.kindOf(id) != b.Kind {
			out = append(out, id)
		}
	}
	return out
}

func (s *State) RemoveBodyForEntity(id ecs.EntityID) bool { return s.space.Remove(id) }

// DynamicBodies lists dynamic bodies in body order.
func (s *State) DynamicBodies() []ecs.EntityID {
	var out []ecs.EntityID
	for _, b := range s.space.Bodies() {
		if b.Kind == Dynamic {
			out = append(out, b.Entity)
		}
	}
	return out
}

// DesiredVelocityX is heading.x * speed, or 0.
func (s *State) DesiredVelocityX(id ecs.EntityID) float64 {
	return s.comps.Heading.F(id, component.HeadX) * s.comps.Speed.F(id, component.SpeedValue)
}

func (s *State) DesiredVelocityZ(id ecs.EntityID) float64 {
	return s.comps.Heading.F(id, component.HeadZ) * s.comps.Speed.F(id, component.SpeedValue)
}

func (s *State) bodyVec(id ecs.EntityID, vel bool, axis int) float64 {
	b, ok := s.space.Body(id)
	if !ok {
		return 0
	}
	if vel {
		return b.Vel[axis]
	}
	return b.Pos[axis]
}

func (s *State) BodyPosition(id ecs.EntityID, axis int) float64 { return s.bodyVec(id, false, axis) }
func (s *State) BodyVelocity(id ecs.EntityID, axis int) float64 { return s.bodyVec(id, true, axis) }

func (s *State) BodyMass(id ecs.EntityID) float64 {
	if b, ok := s.space.Body(id); ok {
		return b.Mass
	}
	return 0
}

// DriveGain is the fraction of the velocity error corrected this tic.
func (s *State) DriveGain() float64 {
	return math.Min(1, s.cfg.DriveGain*s.dt)
}

// ApplyBodyImpulseXZ changes a dynamic body's horizontal velocity by
// impulse / mass.
func (s *State) ApplyBodyImpulseXZ(id ecs.EntityID, ix, iz float64) bool {
	b, ok := s.space.Body(id)
	if !ok || b.Kind != Dynamic || !finite(ix) || !finite(iz) {
		return false
	}
	b.Vel[0] += ix * b.InvMass
	b.Vel[2] += iz * b.InvMass
	return true
}

func (s *State) StepWorldSeconds(dt float64) bool {
	if !finite(dt) || dt <= 0 {
		return false
	}
	s.space.Step(dt)
	s.stepCount++
	return true
}

// ContactCount reports the contacts found by the last step. Contact
// indices run from 0 to ContactCount()-1.
func (s *State) ContactCount() int { return len(s.space.Contacts()) }

func (s *State) contact(i int) (Contact, bool) {
	cs := s.space.Contacts()
	if i < 0 || i >= len(cs) {
		return Contact{}, false
	}
	return cs[i], true
}

func (s *State) ContactEntityA(i int) ecs.EntityID {
	c, _ := s.contact(i)
	return c.A
}

func (s *State) ContactEntityB(i int) ecs.EntityID {
	c, _ := s.contact(i)
	return c.B
}

// IsCollisionQualifying reports whether contact i is between two dynamic
// bodies. Obstacles and pickups never raise collision events.
func (s *State) IsCollisionQualifying(i int) bool {
	c, ok := s.contact(i)
	if !ok || c.Sensor {
		return false
	}
	a, okA := s.space.Body(c.A)
	b, okB := s.space.Body(c.B)
	return okA && okB && a.Kind == Dynamic && b.Kind == Dynamic
}

// MarkCollisionPairIfNew records the unordered pair for this tic. It
// reports true only the first time the pair is marked this tic.
func (s *State) MarkCollisionPairIfNew(a, b ecs.EntityID) bool {
	if a == 0 || b == 0 || a == b {
		return false
	}
	k := makePair(a, b)
	if _, seen := s.touching[k]; seen {
		return false
	}
	s.touching[k] = struct{}{}
	return true
}

// EmitCollisionEvent emits Collision with the lower entity id first.
func (s *State) EmitCollisionEvent(a, b ecs.EntityID) bool {
	if s.emit == nil || a == 0 || b == 0 {
		return false
	}
	k := makePair(a, b)
	s.emit(event.Collision{Tic: s.tic, EntityA: k.lo, EntityB: k.hi})
	return true
}

// ApplyPairShove nudges the lower id of the pair sideways, perpendicular to
// the line between the two bodies, so head-on pairs slide past each other.
func (s *State) ApplyPairShove(a, b ecs.EntityID) bool {
	k := makePair(a, b)
	lo, ok1 := s.space.Body(k.lo)
	hi, ok2 := s.space.Body(k.hi)
	if !ok1 || !ok2 || lo.Kind != Dynamic {
		return false
	}
	dx, dz := hi.Pos[0]-lo.Pos[0], hi.Pos[2]-lo.Pos[2]
	l := math.Sqrt(dx*dx + dz*dz)
	lx, lz := 1.0, 0.0
	if l > 0 {
		lx, lz = -dz/l, dx/l
	}
	lo.Vel[0] += lx * s.cfg.Shove
	lo.Vel[2] += lz * s.cfg.Shove
	return true
}

func (s *State) IsBodyGrounded(id ecs.EntityID) bool {
	b, ok := s.space.Body(id)
	return ok && b.Grounded
}

// SetPosition writes one axis of the entity's position component.
func (s *State) SetPosition(id ecs.EntityID, axis int, v float64) bool {
	return finite(v) && s.comps.Position.SetFloat(id, axis, v)
}

// SetVelocity writes one axis of the entity's velocity component, when it
// has one.
func (s *State) SetVelocity(id ecs.EntityID, axis int, v float64) bool {
	return finite(v) && s.comps.Velocity.SetFloat(id, axis, v)
}

func (s *State) SetGrounded(id ecs.EntityID, grounded bool) bool {
	v := 0.0
	if grounded {
		v = 1
	}
	return s.comps.Grounded.SetFloat(id, component.GroundedValue, v)
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }
