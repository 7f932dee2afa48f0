package scripting

import (
	"math"

	"github.com/ticworld/kernel/internal/core/ecs"
	"github.com/ticworld/kernel/internal/core/event"
	"github.com/ticworld/kernel/internal/core/value"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

type effectOp uint8

const (
	effectDirection effectOp = iota
	effectSpeed
	effectPace
)

// effect is a buffered mutation, applied after the chunk succeeds.
type effect struct {
	op     effectOp
	entity ecs.EntityID
	x, z   float64
}

// invocation is the context host functions read while a chunk runs.
type invocation struct {
	facility Facility
	scriptID string
	scope    string
	order    uint64
	args     value.Map
	payload  value.Map
	channel  string
	hook     string
	effects  []effect
	commands []CommandInvocation
	emitted  []event.Event
	trace    *[]string
}

// installHostAPI binds every guest→host function. Host functions never
// raise: bad arguments degrade to a fallback value.
func (r *Runtime) installHostAPI() {
	fns := map[string]lua.LGFunction{
		"trace":                r.luaTrace,
		"get_tic":              r.luaGetTic,
		"get_script_id":        r.luaGetScriptID,
		"get_scope":            r.luaGetScope,
		"get_order":            r.luaGetOrder,
		"entity_exists":        r.luaEntityExists,
		"has_component":        r.luaHasComponent,
		"get_component_number": r.luaGetComponentNumber,
		"random_float":         r.luaRandomFloat,
		"enqueue_command":      r.luaEnqueueCommand,
		"emit_event":           r.luaEmitEvent,
		"get_arg_number":       r.luaGetArgNumber,
		"get_arg_string":       r.luaGetArgString,
		"get_arg_bool":         r.luaGetArgBool,
		"has_arg":              r.luaHasArg,
		"get_event_channel":    r.luaGetEventChannel,
		"get_payload_number":   r.luaGetPayloadNumber,
		"get_payload_string":   r.luaGetPayloadString,
		"get_payload_bool":     r.luaGetPayloadBool,
		"has_payload":          r.luaHasPayload,
		"get_hook_point":       r.luaGetHookPoint,
		"queue_set_direction":  r.luaQueueSetDirection,
		"queue_set_speed":      r.luaQueueSetSpeed,
		"queue_set_pace":       r.luaQueueSetPace,
	}
	for name, fn := range fns {
		r.vm.SetGlobal(name, r.vm.NewFunction(fn))
	}
}

// --- argument helpers ---

// argNumber reads a finite number argument, or fallback.
func argNumber(L *lua.LState, n int, fallback float64) float64 {
	if v, ok := L.Get(n).(lua.LNumber); ok {
		f := float64(v)
		if !math.IsNaN(f) && !math.IsInf(f, 0) {
			return f
		}
	}
	return fallback
}

func argString(L *lua.LState, n int, fallback string) string {
	if v, ok := L.Get(n).(lua.LString); ok {
		return string(v)
	}
	return fallback
}

func argBool(L *lua.LState, n int, fallback bool) bool {
	if v, ok := L.Get(n).(lua.LBool); ok {
		return bool(v)
	}
	return fallback
}

func argEntity(L *lua.LState, n int) ecs.EntityID {
	f := argNumber(L, n, 0)
	if f < 1 || f != math.Trunc(f) {
		return 0
	}
	return ecs.EntityID(uint64(f))
}

// toLua converts a sanitized value to a Lua value.
func toLua(v value.Value) lua.LValue {
	switch v.Type() {
	case value.Number:
		return lua.LNumber(v.Num())
	case value.String:
		return lua.LString(v.Str())
	case value.Bool:
		return lua.LBool(v.Bool())
	}
	return lua.LNil
}

// fromLua sanitizes a Lua value. Tables, functions and non-finite numbers
// are rejected.
func fromLua(lv lua.LValue) (value.Value, bool) {
	switch v := lv.(type) {
	case lua.LNumber:
		return value.NumberOf(float64(v))
	case lua.LString:
		return value.StringOf(string(v)), true
	case lua.LBool:
		return value.BoolOf(bool(v)), true
	}
	if lv == lua.LNil {
		return value.NilValue(), true
	}
	return value.Value{}, false
}

// tableToMap flattens a Lua table into a payload. Non-string keys and
// rejected values are dropped and returned for logging.
func tableToMap(lv lua.LValue) (value.Map, []string) {
	out := value.Map{}
	t, ok := lv.(*lua.LTable)
	if !ok {
		return out, nil
	}
	var dropped []string
	t.ForEach(func(k, v lua.LValue) {
		key, ok := k.(lua.LString)
		if !ok {
			dropped = append(dropped, k.String())
			return
		}
		val, ok := fromLua(v)
		if !ok {
			dropped = append(dropped, string(key))
			return
		}
		out[string(key)] = val
	})
	return out, dropped
}

func (r *Runtime) logDropped(where string, dropped []string) {
	if len(dropped) == 0 {
		return
	}
	fields := []zap.Field{zap.String("where", where), zap.Strings("keys", dropped)}
	if r.cur != nil {
		fields = append(fields, zap.String("script_id", r.cur.scriptID))
	}
	r.log.Debug("dropped non-primitive script values", fields...)
}

// --- common ---

func (r *Runtime) luaTrace(L *lua.LState) int {
	if r.cur == nil || r.cur.trace == nil {
		L.Push(lua.LFalse)
		return 1
	}
	marker := lua.LVAsString(L.Get(1))
	*r.cur.trace = append(*r.cur.trace, marker)
	L.Push(lua.LTrue)
	return 1
}

func (r *Runtime) luaGetTic(L *lua.LState) int {
	L.Push(lua.LNumber(r.opts.Tic()))
	return 1
}

func (r *Runtime) luaGetScriptID(L *lua.LState) int {
	if r.cur == nil {
		L.Push(lua.LString(""))
		return 1
	}
	L.Push(lua.LString(r.cur.scriptID))
	return 1
}

func (r *Runtime) luaGetScope(L *lua.LState) int {
	if r.cur == nil {
		L.Push(lua.LString(""))
		return 1
	}
	L.Push(lua.LString(r.cur.scope))
	return 1
}

func (r *Runtime) luaGetOrder(L *lua.LState) int {
	if r.cur == nil {
		L.Push(lua.LNumber(0))
		return 1
	}
	L.Push(lua.LNumber(r.cur.order))
	return 1
}

func (r *Runtime) luaEntityExists(L *lua.LState) int {
	id := argEntity(L, 1)
	L.Push(lua.LBool(id != 0 && r.opts.World != nil && r.opts.World.Alive(id)))
	return 1
}

func (r *Runtime) lookupStore(name string) *ecs.Store {
	if r.opts.World == nil {
		return nil
	}
	s, _ := r.opts.World.Registry().Lookup(name)
	return s
}

func (r *Runtime) luaHasComponent(L *lua.LState) int {
	id := argEntity(L, 1)
	s := r.lookupStore(argString(L, 2, ""))
	L.Push(lua.LBool(s != nil && s.Has(id)))
	return 1
}

func (r *Runtime) luaGetComponentNumber(L *lua.LState) int {
	id := argEntity(L, 1)
	fallback := argNumber(L, 4, 0)
	s := r.lookupStore(argString(L, 2, ""))
	if s == nil {
		L.Push(lua.LNumber(fallback))
		return 1
	}
	field, ok := s.FieldIndex(argString(L, 3, ""))
	if !ok {
		L.Push(lua.LNumber(fallback))
		return 1
	}
	v, ok := s.Value(id, field)
	if !ok || v.Kind == ecs.KindString {
		L.Push(lua.LNumber(fallback))
		return 1
	}
	L.Push(lua.LNumber(v.AsFloat()))
	return 1
}

func (r *Runtime) luaRandomFloat(L *lua.LState) int {
	L.Push(lua.LNumber(r.opts.Rand.Float64()))
	return 1
}

// enqueue_command(id, args?) returns the invocation order, or -1.
func (r *Runtime) luaEnqueueCommand(L *lua.LState) int {
	id := argString(L, 1, "")
	args, dropped := tableToMap(L.Get(2))
	r.logDropped("enqueue_command", dropped)
	inv, err := r.reserve(id, args)
	if err != nil {
		L.Push(lua.LNumber(-1))
		return 1
	}
	if r.cur != nil {
		r.cur.commands = append(r.cur.commands, inv)
	} else {
		r.commandQueue = append(r.commandQueue, inv)
	}
	L.Push(lua.LNumber(inv.Order))
	return 1
}

// emit_event(channel, payload?) returns true when the event was queued.
func (r *Runtime) luaEmitEvent(L *lua.LState) int {
	channel := argString(L, 1, "")
	if channel == "" {
		L.Push(lua.LFalse)
		return 1
	}
	payload, dropped := tableToMap(L.Get(2))
	r.logDropped("emit_event", dropped)
	ev := event.Custom{Tic: r.opts.Tic(), Name: channel, Fields: payload}
	if r.cur != nil {
		r.cur.emitted = append(r.cur.emitted, ev)
	} else {
		r.emit(ev)
	}
	L.Push(lua.LTrue)
	return 1
}

// --- command args ---

func (r *Runtime) curArgs() value.Map {
	if r.cur == nil {
		return nil
	}
	return r.cur.args
}

func (r *Runtime) luaGetArgNumber(L *lua.LState) int {
	L.Push(lua.LNumber(r.curArgs().Number(argString(L, 1, ""), argNumber(L, 2, 0))))
	return 1
}

func (r *Runtime) luaGetArgString(L *lua.LState) int {
	L.Push(lua.LString(r.curArgs().Text(argString(L, 1, ""), argString(L, 2, ""))))
	return 1
}

func (r *Runtime) luaGetArgBool(L *lua.LState) int {
	L.Push(lua.LBool(r.curArgs().Flag(argString(L, 1, ""), argBool(L, 2, false))))
	return 1
}

func (r *Runtime) luaHasArg(L *lua.LState) int {
	_, ok := r.curArgs()[argString(L, 1, "")]
	L.Push(lua.LBool(ok))
	return 1
}

// --- event payload ---

func (r *Runtime) curPayload() value.Map {
	if r.cur == nil {
		return nil
	}
	return r.cur.payload
}

func (r *Runtime) luaGetEventChannel(L *lua.LState) int {
	if r.cur == nil {
		L.Push(lua.LString(""))
		return 1
	}
	L.Push(lua.LString(r.cur.channel))
	return 1
}

func (r *Runtime) luaGetPayloadNumber(L *lua.LState) int {
	L.Push(lua.LNumber(r.curPayload().Number(argString(L, 1, ""), argNumber(L, 2, 0))))
	return 1
}

func (r *Runtime) luaGetPayloadString(L *lua.LState) int {
	L.Push(lua.LString(r.curPayload().Text(argString(L, 1, ""), argString(L, 2, ""))))
	return 1
}

func (r *Runtime) luaGetPayloadBool(L *lua.LState) int {
	L.Push(lua.LBool(r.curPayload().Flag(argString(L, 1, ""), argBool(L, 2, false))))
	return 1
}

func (r *Runtime) luaHasPayload(L *lua.LState) int {
	_, ok := r.curPayload()[argString(L, 1, "")]
	L.Push(lua.LBool(ok))
	return 1
}

// --- hooks ---

func (r *Runtime) luaGetHookPoint(L *lua.LState) int {
	if r.cur == nil {
		L.Push(lua.LString(""))
		return 1
	}
	L.Push(lua.LString(r.cur.hook))
	return 1
}

// --- buffered mutators ---

func (r *Runtime) buffer(L *lua.LState, e effect) int {
	if r.cur == nil || e.entity == 0 {
		L.Push(lua.LFalse)
		return 1
	}
	r.cur.effects = append(r.cur.effects, e)
	L.Push(lua.LTrue)
	return 1
}

func (r *Runtime) luaQueueSetDirection(L *lua.LState) int {
	return r.buffer(L, effect{op: effectDirection, entity: argEntity(L, 1), x: argNumber(L, 2, 0), z: argNumber(L, 3, 0)})
}

func (r *Runtime) luaQueueSetSpeed(L *lua.LState) int {
	return r.buffer(L, effect{op: effectSpeed, entity: argEntity(L, 1), x: argNumber(L, 2, 0)})
}

func (r *Runtime) luaQueueSetPace(L *lua.LState) int {
	return r.buffer(L, effect{op: effectPace, entity: argEntity(L, 1), x: math.Trunc(argNumber(L, 2, 0))})
}
