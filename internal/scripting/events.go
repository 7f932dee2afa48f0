package scripting

import (
	"fmt"

	"github.com/ticworld/kernel/internal/core/event"
	"github.com/ticworld/kernel/internal/core/value"
)

type queuedEvent struct {
	order   uint64
	channel string
	payload value.Map
}

func eventScope(channel string) string { return "event:" + channel }

// RegisterEventScript registers a handler on reg.Channel.
func (r *Runtime) RegisterEventScript(reg Registration) error {
	channel := normalizeID(reg.Channel)
	if channel == "" {
		return fmt.Errorf("register event script %q: %w", reg.ID, ErrEmptyChannel)
	}
	return r.register(&r.events, channel, reg)
}

func (r *Runtime) UnregisterEventScript(id string) bool {
	return r.events.reg.remove(normalizeID(id))
}

func (r *Runtime) ListEventScripts() []ScriptInfo { return r.events.reg.list() }
func (r *Runtime) ClearEventScripts()             { r.events.reg.clear() }

func (r *Runtime) SetEventFailurePolicy(p Policy) { r.events.policy = p }
func (r *Runtime) EventFailurePolicy() Policy     { return r.events.policy }

func (r *Runtime) DrainEventErrors() []ScriptError { return drainErrors(&r.events.errors) }
func (r *Runtime) DrainEventTrace() []string       { return drainStrings(&r.events.trace) }

// Notify queues an event for the next event dispatch. Both engine events
// and custom events come through here, in emission order.
func (r *Runtime) Notify(ev event.Event) {
	r.eventQueue = append(r.eventQueue, queuedEvent{
		order:   r.nextEvent,
		channel: ev.Channel(),
		payload: ev.Payload(),
	})
	r.nextEvent++
}

// DispatchEvents delivers queued events to every handler of their channel
// in (priority, registration) order. Events emitted by handlers are
// appended and delivered in the same call.
func (r *Runtime) DispatchEvents() error {
	processed := 0
	for len(r.eventQueue) > 0 {
		ev := r.eventQueue[0]
		r.eventQueue = r.eventQueue[1:]
		processed++
		if processed > r.opts.MaxEventCascade {
			r.eventQueue = nil
			return fmt.Errorf("%w: more than %d events in one dispatch", ErrEventCascade, r.opts.MaxEventCascade)
		}
		if err := r.dispatchEvent(ev); err != nil {
			return err
		}
	}
	r.eventQueue = nil
	return nil
}

func (r *Runtime) dispatchEvent(ev queuedEvent) error {
	for _, s := range r.events.reg.scripts(ev.channel) {
		call := &invocation{
			facility: FacilityEvent,
			scriptID: s.id,
			scope:    eventScope(ev.channel),
			order:    ev.order,
			payload:  ev.payload,
			channel:  ev.channel,
			trace:    &r.events.trace,
		}
		if _, err := r.call(s.fn, call, 0); err != nil {
			se := &ScriptError{
				SourceID: s.id,
				Scope:    call.scope,
				TicCount: r.opts.Tic(),
				Message:  luaErrorMessage(err),
				Err:      err,
			}
			if ferr := r.fail(&r.events, se); ferr != nil {
				return ferr
			}
		}
	}
	return nil
}
