package physics

import (
	"math"

	"github.com/ticworld/kernel/internal/component"
	"github.com/ticworld/kernel/internal/core/ecs"
	lua "github.com/yuin/gopher-lua"
)

// bindPrimitives installs the primitive verbs of s as Lua globals. Bad
// arguments degrade to zero values, nothing raises.
func bindPrimitives(L *lua.LState, s *State) {
	fns := map[string]lua.LGFunction{
		"begin_tic": func(L *lua.LState) int {
			s.BeginTic()
			return 0
		},
		"get_tic_seconds": func(L *lua.LState) int {
			L.Push(lua.LNumber(s.TicSeconds()))
			return 1
		},
		"list_physical_entities": func(L *lua.LState) int {
			L.Push(idTable(L, s.PhysicalEntities()))
			return 1
		},
		"has_body": func(L *lua.LState) int {
			L.Push(lua.LBool(s.HasBody(entityArg(L, 1))))
			return 1
		},
		"add_body_for_entity": func(L *lua.LState) int {
			L.Push(lua.LBool(s.AddBodyForEntity(entityArg(L, 1))))
			return 1
		},
		"list_stale_bodies": func(L *lua.LState) int {
			L.Push(idTable(L, s.StaleBodies()))
			return 1
		},
		"remove_body_for_entity": func(L *lua.LState) int {
			L.Push(lua.LBool(s.RemoveBodyForEntity(entityArg(L, 1))))
			return 1
		},
		"list_dynamic_bodies": func(L *lua.LState) int {
			L.Push(idTable(L, s.DynamicBodies()))
			return 1
		},
		"get_desired_velocity_x": func(L *lua.LState) int {
			L.Push(lua.LNumber(s.DesiredVelocityX(entityArg(L, 1))))
			return 1
		},
		"get_desired_velocity_z": func(L *lua.LState) int {
			L.Push(lua.LNumber(s.DesiredVelocityZ(entityArg(L, 1))))
			return 1
		},
		"get_body_mass": func(L *lua.LState) int {
			L.Push(lua.LNumber(s.BodyMass(entityArg(L, 1))))
			return 1
		},
		"get_drive_gain": func(L *lua.LState) int {
			L.Push(lua.LNumber(s.DriveGain()))
			return 1
		},
		"apply_body_impulse_xz": func(L *lua.LState) int {
			L.Push(lua.LBool(s.ApplyBodyImpulseXZ(entityArg(L, 1), numberArg(L, 2), numberArg(L, 3))))
			return 1
		},
		"step_world_seconds": func(L *lua.LState) int {
			L.Push(lua.LBool(s.StepWorldSeconds(numberArg(L, 1))))
			return 1
		},
		"list_contact_indices": func(L *lua.LState) int {
			t := L.CreateTable(s.ContactCount(), 0)
			for i := 0; i < s.ContactCount(); i++ {
				t.Append(lua.LNumber(i))
			}
			L.Push(t)
			return 1
		},
		"get_contact_entity_a": func(L *lua.LState) int {
			L.Push(lua.LNumber(s.ContactEntityA(indexArg(L, 1))))
			return 1
		},
		"get_contact_entity_b": func(L *lua.LState) int {
			L.Push(lua.LNumber(s.ContactEntityB(indexArg(L, 1))))
			return 1
		},
		"is_collision_qualifying": func(L *lua.LState) int {
			L.Push(lua.LBool(s.IsCollisionQualifying(indexArg(L, 1))))
			return 1
		},
		"mark_collision_pair_if_new": func(L *lua.LState) int {
			L.Push(lua.LBool(s.MarkCollisionPairIfNew(entityArg(L, 1), entityArg(L, 2))))
			return 1
		},
		"emit_collision_event": func(L *lua.LState) int {
			L.Push(lua.LBool(s.EmitCollisionEvent(entityArg(L, 1), entityArg(L, 2))))
			return 1
		},
		"apply_pair_shove": func(L *lua.LState) int {
			L.Push(lua.LBool(s.ApplyPairShove(entityArg(L, 1), entityArg(L, 2))))
			return 1
		},
		"is_body_grounded": func(L *lua.LState) int {
			L.Push(lua.LBool(s.IsBodyGrounded(entityArg(L, 1))))
			return 1
		},
		"set_grounded": func(L *lua.LState) int {
			L.Push(lua.LBool(s.SetGrounded(entityArg(L, 1), lua.LVAsBool(L.Get(2)))))
			return 1
		},
	}

	axes := []struct {
		suffix string
		axis   int
	}{{"x", component.X}, {"y", component.Y}, {"z", component.Z}}
	for _, a := range axes {
		axis := a.axis
		fns["get_body_position_"+a.suffix] = func(L *lua.LState) int {
			L.Push(lua.LNumber(s.BodyPosition(entityArg(L, 1), axis)))
			return 1
		}
		fns["get_body_velocity_"+a.suffix] = func(L *lua.LState) int {
			L.Push(lua.LNumber(s.BodyVelocity(entityArg(L, 1), axis)))
			return 1
		}
		fns["set_position_"+a.suffix] = func(L *lua.LState) int {
			L.Push(lua.LBool(s.SetPosition(entityArg(L, 1), axis, numberArg(L, 2))))
			return 1
		}
		fns["set_velocity_"+a.suffix] = func(L *lua.LState) int {
			L.Push(lua.LBool(s.SetVelocity(entityArg(L, 1), axis, numberArg(L, 2))))
			return 1
		}
	}

	for name, fn := range fns {
		L.SetGlobal(name, L.NewFunction(fn))
	}
}

func idTable(L *lua.LState, ids []ecs.EntityID) *lua.LTable {
	t := L.CreateTable(len(ids), 0)
	for _, id := range ids {
		t.Append(lua.LNumber(id))
	}
	return t
}

func numberArg(L *lua.LState, n int) float64 {
	if v, ok := L.Get(n).(lua.LNumber); ok {
		return float64(v)
	}
	return math.NaN()
}

func entityArg(L *lua.LState, n int) ecs.EntityID {
	f := numberArg(L, n)
	if !finite(f) || f < 1 || f != math.Trunc(f) {
		return 0
	}
	return ecs.EntityID(uint64(f))
}

func indexArg(L *lua.LState, n int) int {
	f := numberArg(L, n)
	if !finite(f) || f < 0 || f != math.Trunc(f) {
		return -1
	}
	return int(f)
}
