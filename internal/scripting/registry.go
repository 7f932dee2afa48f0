package scripting

import (
	"fmt"
	"sort"

	lua "github.com/yuin/gopher-lua"
	"golang.org/x/text/unicode/norm"
)

// Registration describes a script to register. Channel is used by event
// scripts, Hook by hook scripts; command scripts use neither.
type Registration struct {
	ID       string
	Source   string
	Priority int
	Channel  string
	Hook     string
}

// ScriptInfo is the listing view of a registered script.
type ScriptInfo struct {
	ID       string
	Scope    string
	Priority int
}

type script struct {
	id       string
	scope    string
	priority int
	seq      uint64
	fn       *lua.LFunction
}

// registry holds the scripts of one facility, grouped by scope and kept
// sorted by (priority, registration order) inside each scope.
type registry struct {
	byScope map[string][]*script
	nextSeq uint64
}

func newRegistry() *registry {
	return &registry{byScope: make(map[string][]*script)}
}

// normalizeID applies NFC so visually identical ids collide.
func normalizeID(id string) string {
	return norm.NFC.String(id)
}

func (r *registry) add(scope, id string, priority int, fn *lua.LFunction) error {
	for _, s := range r.byScope[scope] {
		if s.id == id {
			return fmt.Errorf("%w: %q in %q", ErrDuplicateID, id, scope)
		}
	}
	r.nextSeq++
	list := append(r.byScope[scope], &script{id: id, scope: scope, priority: priority, seq: r.nextSeq, fn: fn})
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].priority != list[j].priority {
			return list[i].priority < list[j].priority
		}
		return list[i].seq < list[j].seq
	})
	r.byScope[scope] = list
	return nil
}

func (r *registry) has(scope, id string) bool {
	return r.get(scope, id) != nil
}

func (r *registry) get(scope, id string) *script {
	for _, s := range r.byScope[scope] {
		if s.id == id {
			return s
		}
	}
	return nil
}

// remove drops id from every scope. Returns false when nothing matched.
func (r *registry) remove(id string) bool {
	removed := false
	for scope, list := range r.byScope {
		kept := list[:0]
		for _, s := range list {
			if s.id == id {
				removed = true
				continue
			}
			kept = append(kept, s)
		}
		if len(kept) == 0 {
			delete(r.byScope, scope)
		} else {
			r.byScope[scope] = kept
		}
	}
	return removed
}

// scripts returns the ordered scripts of one scope. The slice is copied so
// registrations made while iterating do not disturb the caller.
func (r *registry) scripts(scope string) []*script {
	return append([]*script(nil), r.byScope[scope]...)
}

// list orders by scope, then priority, then registration order.
func (r *registry) list() []ScriptInfo {
	scopes := make([]string, 0, len(r.byScope))
	for scope := range r.byScope {
		scopes = append(scopes, scope)
	}
	sort.Strings(scopes)
	var out []ScriptInfo
	for _, scope := range scopes {
		for _, s := range r.byScope[scope] {
			out = append(out, ScriptInfo{ID: s.id, Scope: scope, Priority: s.priority})
		}
	}
	return out
}

func (r *registry) clear() {
	r.byScope = make(map[string][]*script)
}
