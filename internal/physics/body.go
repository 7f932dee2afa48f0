package physics

import (
	"math"

	"github.com/ticworld/kernel/internal/component"
	"github.com/ticworld/kernel/internal/core/ecs"
)

// BodyKind classifies how a body takes part in the step.
type BodyKind uint8

const (
	// Dynamic bodies fall, move and are pushed out of contacts.
	Dynamic BodyKind = iota
	// Static bodies (obstacles) never move.
	Static
	// Sensor bodies (pickups) never move and report contacts without
	// resolving them.
	Sensor
)

func (k BodyKind) String() string {
	switch k {
	case Static:
		return "static"
	case Sensor:
		return "sensor"
	}
	return "dynamic"
}

type vec3 [3]float64

func (v vec3) add(o vec3) vec3      { return vec3{v[0] + o[0], v[1] + o[1], v[2] + o[2]} }
func (v vec3) sub(o vec3) vec3      { return vec3{v[0] - o[0], v[1] - o[1], v[2] - o[2]} }
func (v vec3) scale(s float64) vec3 { return vec3{v[0] * s, v[1] * s, v[2] * s} }
func (v vec3) dot(o vec3) float64   { return v[0]*o[0] + v[1]*o[1] + v[2]*o[2] }
func (v vec3) length() float64      { return math.Sqrt(v.dot(v)) }

// Body is one rigid body mirrored from an entity with position and extent.
type Body struct {
	Entity   ecs.EntityID
	Kind     BodyKind
	Shape    uint8
	Half     vec3 // half extents; spheres use Half[0] as radius on every axis
	Pos      vec3
	Vel      vec3
	Mass     float64
	InvMass  float64
	Grounded bool
}

func newBody(id ecs.EntityID, kind BodyKind, shape uint8, size vec3, mass float64, pos vec3) *Body {
	b := &Body{Entity: id, Kind: kind, Shape: shape, Pos: pos}
	if shape == component.ShapeSphere {
		r := size[0] / 2
		b.Half = vec3{r, r, r}
	} else {
		b.Half = size.scale(0.5)
	}
	if mass <= 0 || math.IsNaN(mass) || math.IsInf(mass, 0) {
		mass = 1
	}
	b.Mass = mass
	if kind == Dynamic {
		b.InvMass = 1 / mass
	}
	return b
}

func (b *Body) radius() float64 { return b.Half[0] }

// overlap tests a against b. The normal points from a to b and depth is
// positive when the shapes intersect.
func overlap(a, b *Body) (n vec3, depth float64, ok bool) {
	switch {
	case a.Shape == component.ShapeSphere && b.Shape == component.ShapeSphere:
		return sphereSphere(a, b)
	case a.Shape != component.ShapeSphere && b.Shape != component.ShapeSphere:
		return boxBox(a, b)
	case a.Shape == component.ShapeSphere:
		n, depth, ok = sphereBox(a, b)
		return n.scale(-1), depth, ok
	default:
		return sphereBox(b, a)
	}
}

func sphereSphere(a, b *Body) (vec3, float64, bool) {
	d := b.Pos.sub(a.Pos)
	dist := d.length()
	depth := a.radius() + b.radius() - dist
	if depth <= 0 {
		return vec3{}, 0, false
	}
	if dist == 0 {
		return vec3{1, 0, 0}, depth, true
	}
	return d.scale(1 / dist), depth, true
}

func boxBox(a, b *Body) (vec3, float64, bool) {
	d := b.Pos.sub(a.Pos)
	axis, depth := -1, 0.0
	for k := 0; k < 3; k++ {
		o := a.Half[k] + b.Half[k] - math.Abs(d[k])
		if o <= 0 {
			return vec3{}, 0, false
		}
		if axis < 0 || o < depth {
			axis, depth = k, o
		}
	}
	var n vec3
	n[axis] = sign(d[axis])
	return n, depth, true
}

// sphereBox returns the normal pointing from the box toward the sphere.
func sphereBox(s, box *Body) (vec3, float64, bool) {
	lo, hi := box.Pos.sub(box.Half), box.Pos.add(box.Half)
	var closest vec3
	for k := 0; k < 3; k++ {
		closest[k] = math.Max(lo[k], math.Min(s.Pos[k], hi[k]))
	}
	diff := s.Pos.sub(closest)
	dist := diff.length()
	if dist > 0 {
		depth := s.radius() - dist
		if depth <= 0 {
			return vec3{}, 0, false
		}
		return diff.scale(1 / dist), depth, true
	}
	// Center inside the box: leave along the shallowest face.
	axis, pen := 0, math.Inf(1)
	for k := 0; k < 3; k++ {
		p := box.Half[k] - math.Abs(s.Pos[k]-box.Pos[k])
		if p < pen {
			axis, pen = k, p
		}
	}
	var n vec3
	n[axis] = sign(s.Pos[axis] - box.Pos[axis])
	return n, s.radius() + pen, true
}

func sign(f float64) float64 {
	if f < 0 {
		return -1
	}
	return 1
}
