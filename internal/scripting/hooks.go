package scripting

import (
	"fmt"

	"github.com/ticworld/kernel/internal/core/system"
)

func hookScope(point string) string { return "hook:" + point }

// RegisterHookScript registers a script on one of system.HookPoints.
func (r *Runtime) RegisterHookScript(reg Registration) error {
	if !system.ValidHookPoint(reg.Hook) {
		return fmt.Errorf("register hook script %q: %w: %q", reg.ID, ErrUnknownHook, reg.Hook)
	}
	return r.register(&r.hooks, reg.Hook, reg)
}

func (r *Runtime) UnregisterHookScript(id string) bool {
	return r.hooks.reg.remove(normalizeID(id))
}

func (r *Runtime) ListHookScripts() []ScriptInfo { return r.hooks.reg.list() }
func (r *Runtime) ClearHookScripts()             { r.hooks.reg.clear() }

func (r *Runtime) SetHookFailurePolicy(p Policy) { r.hooks.policy = p }
func (r *Runtime) HookFailurePolicy() Policy     { return r.hooks.policy }

func (r *Runtime) DrainHookErrors() []ScriptError { return drainErrors(&r.hooks.errors) }
func (r *Runtime) DrainHookTrace() []string       { return drainStrings(&r.hooks.trace) }

// RunHook executes the scripts registered at point. It satisfies
// system.HookRunner so the scheduler can call it directly.
func (r *Runtime) RunHook(point string) error {
	for _, s := range r.hooks.reg.scripts(point) {
		call := &invocation{
			facility: FacilityHook,
			scriptID: s.id,
			scope:    hookScope(point),
			hook:     point,
			trace:    &r.hooks.trace,
		}
		if _, err := r.call(s.fn, call, 0); err != nil {
			se := &ScriptError{
				SourceID: s.id,
				Scope:    call.scope,
				TicCount: r.opts.Tic(),
				Message:  luaErrorMessage(err),
				Err:      err,
			}
			if ferr := r.fail(&r.hooks, se); ferr != nil {
				return ferr
			}
		}
	}
	return nil
}
