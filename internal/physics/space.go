package physics

import (
	"slices"

	"github.com/ticworld/kernel/internal/core/ecs"
)

// groundEpsilon is how close to y = 0 a body's bottom may hover and still
// count as grounded.
const groundEpsilon = 1e-6

// Contact is one intersecting body pair found during the last step.
// A precedes B in body order.
type Contact struct {
	A, B   ecs.EntityID
	Normal vec3 // from A to B
	Depth  float64
	Sensor bool
}

// Space is a tiny deterministic rigid body world: axis-aligned boxes and
// spheres, one ground plane at y = 0, constant gravity, no rotation.
// Bodies are kept in insertion order and every loop runs in that order.
type Space struct {
	Gravity  float64
	bodies   []*Body
	byEntity map[ecs.EntityID]*Body
	contacts []Contact
}

func NewSpace(gravity float64) *Space {
	return &Space{
		Gravity:  gravity,
		byEntity: make(map[ecs.EntityID]*Body),
	}
}

func (s *Space) Add(b *Body) {
	if _, ok := s.byEntity[b.Entity]; ok {
		s.Remove(b.Entity)
	}
	s.bodies = append(s.bodies, b)
	s.byEntity[b.Entity] = b
}

// Remove drops the body of id and any contact that references it.
func (s *Space) Remove(id ecs.EntityID) bool {
	if _, ok := s.byEntity[id]; !ok {
		return false
	}
	delete(s.byEntity, id)
	s.bodies = slices.DeleteFunc(s.bodies, func(b *Body) bool { return b.Entity == id })
	s.contacts = slices.DeleteFunc(s.contacts, func(c Contact) bool { return c.A == id || c.B == id })
	return true
}

func (s *Space) Body(id ecs.EntityID) (*Body, bool) {
	b, ok := s.byEntity[id]
	return b, ok
}

// Bodies returns the bodies in insertion order. The slice is shared.
func (s *Space) Bodies() []*Body     { return s.bodies }
func (s *Space) Len() int            { return len(s.bodies) }
func (s *Space) Contacts() []Contact { return s.contacts }

// Step advances every dynamic body by dt seconds, then finds and resolves
// contacts. Sensor contacts are recorded but never resolved.
func (s *Space) Step(dt float64) {
	for _, b := range s.bodies {
		if b.Kind != Dynamic {
			continue
		}
		b.Vel[1] -= s.Gravity * dt
		b.Pos = b.Pos.add(b.Vel.scale(dt))
		b.Grounded = false
		s.clampGround(b)
	}

	s.contacts = s.contacts[:0]
	for i, a := range s.bodies {
		for _, b := range s.bodies[i+1:] {
			if a.Kind != Dynamic && b.Kind != Dynamic {
				continue
			}
			n, depth, ok := overlap(a, b)
			if !ok {
				continue
			}
			sensor := a.Kind == Sensor || b.Kind == Sensor
			s.contacts = append(s.contacts, Contact{A: a.Entity, B: b.Entity, Normal: n, Depth: depth, Sensor: sensor})
			if !sensor {
				resolve(a, b, n, depth)
				s.clampGround(a)
				s.clampGround(b)
			}
		}
	}
}

func (s *Space) clampGround(b *Body) {
	if b.Kind != Dynamic {
		return
	}
	bottom := b.Pos[1] - b.Half[1]
	if bottom <= groundEpsilon {
		b.Pos[1] = b.Half[1]
		if b.Vel[1] < 0 {
			b.Vel[1] = 0
		}
		b.Grounded = true
	}
}

// resolve separates a and b along n in proportion to their inverse masses
// and removes the approaching part of their relative velocity.
func resolve(a, b *Body, n vec3, depth float64) {
	total := a.InvMass + b.InvMass
	if total == 0 {
		return
	}
	a.Pos = a.Pos.sub(n.scale(depth * a.InvMass / total))
	b.Pos = b.Pos.add(n.scale(depth * b.InvMass / total))

	rel := b.Vel.sub(a.Vel).dot(n)
	if rel < 0 {
		j := -rel / total
		a.Vel = a.Vel.sub(n.scale(j * a.InvMass))
		b.Vel = b.Vel.add(n.scale(j * b.InvMass))
	}
	// A body resting on top of another counts as grounded.
	if n[1] > 0.5 && b.Kind == Dynamic {
		b.Grounded = true
	}
	if n[1] < -0.5 && a.Kind == Dynamic {
		a.Grounded = true
	}
}
