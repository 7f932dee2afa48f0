package scripting

import (
	"fmt"

	"github.com/ticworld/kernel/internal/core/value"
	"go.uber.org/zap"
)

// CommandInvocation is one queued command script call.
type CommandInvocation struct {
	Order     uint64
	CommandID string
	Args      value.Map
}

func commandScope(id string) string { return "command:" + id }

// RegisterCommandScript registers a command script. Channel and Hook are
// ignored.
func (r *Runtime) RegisterCommandScript(reg Registration) error {
	return r.register(&r.commands, "", reg)
}

func (r *Runtime) UnregisterCommandScript(id string) bool {
	return r.commands.reg.remove(normalizeID(id))
}

func (r *Runtime) ListCommandScripts() []ScriptInfo { return r.commands.reg.list() }
func (r *Runtime) ClearCommandScripts()             { r.commands.reg.clear() }

func (r *Runtime) SetCommandFailurePolicy(p Policy) { r.commands.policy = p }
func (r *Runtime) CommandFailurePolicy() Policy     { return r.commands.policy }

func (r *Runtime) DrainCommandErrors() []ScriptError { return drainErrors(&r.commands.errors) }
func (r *Runtime) DrainCommandTrace() []string       { return drainStrings(&r.commands.trace) }

// EnqueueCommand queues an invocation for the next command dispatch. Args
// are sanitized: non-primitive and non-finite values are dropped. Unknown
// command ids are only detected at dispatch.
func (r *Runtime) EnqueueCommand(commandID string, args map[string]any) (uint64, error) {
	m, dropped := value.MapOf(args)
	r.logDropped("EnqueueCommand", dropped)
	return r.enqueue(commandID, m)
}

func (r *Runtime) enqueue(commandID string, args value.Map) (uint64, error) {
	inv, err := r.reserve(commandID, args)
	if err != nil {
		return 0, err
	}
	r.commandQueue = append(r.commandQueue, inv)
	return inv.Order, nil
}

// reserve assigns the next order to an invocation without queueing it.
// Orders taken by a script that later fails are never reused.
func (r *Runtime) reserve(commandID string, args value.Map) (CommandInvocation, error) {
	id := normalizeID(commandID)
	if id == "" {
		return CommandInvocation{}, ErrEmptyID
	}
	order := r.nextCommand
	r.nextCommand++
	if args == nil {
		args = value.Map{}
	}
	return CommandInvocation{Order: order, CommandID: id, Args: args}, nil
}

// PendingCommands returns a copy of the queued invocations.
func (r *Runtime) PendingCommands() []CommandInvocation {
	return append([]CommandInvocation(nil), r.commandQueue...)
}

// DispatchCommands runs the invocations queued before the call, in FIFO
// enqueue order. Invocations enqueued while dispatching wait for the next
// call. Under fail-fast the first failure stops the batch and the
// invocations after it are dropped.
func (r *Runtime) DispatchCommands() error {
	if len(r.commandQueue) == 0 {
		return nil
	}
	batch := r.commandQueue
	r.commandQueue = nil
	for i, inv := range batch {
		if err := r.runCommand(inv); err != nil {
			if dropped := len(batch) - i - 1; dropped > 0 {
				r.log.Warn("dropped commands after fail-fast abort",
					zap.String("script_id", inv.CommandID),
					zap.Int("dropped", dropped),
				)
			}
			return err
		}
	}
	return nil
}

func (r *Runtime) runCommand(inv CommandInvocation) error {
	tic := r.opts.Tic()
	s := r.commands.reg.get("", inv.CommandID)
	if s == nil {
		return r.fail(&r.commands, &ScriptError{
			SourceID: inv.CommandID,
			Scope:    commandScope(inv.CommandID),
			TicCount: tic,
			Message:  ErrUnknownCommand.Error(),
			Err:      ErrUnknownCommand,
		})
	}
	call := &invocation{
		facility: FacilityCommand,
		scriptID: s.id,
		scope:    commandScope(s.id),
		order:    inv.Order,
		args:     inv.Args,
		trace:    &r.commands.trace,
	}
	if _, err := r.call(s.fn, call, 0); err != nil {
		return r.fail(&r.commands, &ScriptError{
			SourceID: s.id,
			Scope:    call.scope,
			TicCount: tic,
			Message:  luaErrorMessage(err),
			Err:      err,
		})
	}
	r.log.Debug("command executed", zap.String("script_id", s.id), zap.Uint64("order", inv.Order))
	return nil
}

// String renders an invocation for logs.
func (c CommandInvocation) String() string {
	return fmt.Sprintf("%s#%d", c.CommandID, c.Order)
}
