package system

import (
	"fmt"
	"sort"
	"time"
)

// Runner executes systems in phase order each tic, wrapping hooked phases
// with their pre/post hook points and the whole body with tic:pre/tic:post.
type Runner struct {
	systems []System
	sorted  bool
	hooks   HookRunner
}

func NewRunner() *Runner {
	return &Runner{
		systems: make([]System, 0, 16),
		hooks:   noHooks{},
	}
}

func (r *Runner) Register(s System) {
	r.systems = append(r.systems, s)
	r.sorted = false
}

// SetHooks installs the hook executor. nil removes it.
func (r *Runner) SetHooks(h HookRunner) {
	if h == nil {
		h = noHooks{}
	}
	r.hooks = h
}

// Systems returns the registered systems in execution order.
func (r *Runner) Systems() []System {
	r.ensureSorted()
	return r.systems
}

// Tick runs one tic body. The first error aborts the rest of the body.
func (r *Runner) Tick(dt time.Duration) error {
	r.ensureSorted()
	if err := r.hooks.RunHook(HookTicPre); err != nil {
		return err
	}
	for _, s := range r.systems {
		if err := r.run(s, dt); err != nil {
			return err
		}
	}
	return r.hooks.RunHook(HookTicPost)
}

func (r *Runner) run(s System, dt time.Duration) error {
	p := s.Phase()
	if p.Hooked() {
		if err := r.hooks.RunHook(PreHook(p)); err != nil {
			return err
		}
	}
	if err := s.Update(dt); err != nil {
		return fmt.Errorf("system %s: %w", p, err)
	}
	if p.Hooked() {
		return r.hooks.RunHook(PostHook(p))
	}
	return nil
}

func (r *Runner) ensureSorted() {
	if !r.sorted {
		sort.SliceStable(r.systems, func(i, j int) bool {
			return r.systems[i].Phase() < r.systems[j].Phase()
		})
		r.sorted = true
	}
}
