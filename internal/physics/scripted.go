package physics

import (
	"embed"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/ticworld/kernel/internal/scripting"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

//go:embed lua/*.lua
var phaseFS embed.FS

const phaseListChunk = "phases"

var ErrUnknownPhase = errors.New("unknown physics phase")

// Scripted runs each phase as a Lua chunk inside the world's scripting
// sandbox. The phase order itself comes from a Lua chunk returning a list
// of names.
type Scripted struct {
	state  *State
	rt     *scripting.Runtime
	order  []string
	chunks map[string]*lua.LFunction
}

// NewScripted binds the primitive verbs into rt and loads the built-in
// phase chunks.
func NewScripted(state *State, rt *scripting.Runtime) (*Scripted, error) {
	bindPrimitives(rt.State(), state)
	s := &Scripted{state: state, rt: rt, chunks: make(map[string]*lua.LFunction)}
	for _, name := range DefaultPhases {
		src, err := phaseFS.ReadFile(path.Join("lua", name+".lua"))
		if err != nil {
			return nil, fmt.Errorf("load physics phase %s: %w", name, err)
		}
		if err := s.Override(name, string(src)); err != nil {
			return nil, err
		}
	}
	list, err := phaseFS.ReadFile(path.Join("lua", phaseListChunk+".lua"))
	if err != nil {
		return nil, fmt.Errorf("load physics phase list: %w", err)
	}
	if err := s.SetPhaseList(string(list)); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scripted) Mode() Mode { return ModeScripted }

func (s *Scripted) Phases() []string { return append([]string(nil), s.order...) }

// Override replaces (or adds) the chunk of one phase. A phase only runs
// when the phase list names it.
func (s *Scripted) Override(name, source string) error {
	fn, err := s.rt.Compile("physics/"+name, source)
	if err != nil {
		return fmt.Errorf("physics phase %s: %w", name, err)
	}
	s.chunks[name] = fn
	return nil
}

// SetPhaseList evaluates source, which must return a list of phase names
// that all have a chunk.
func (s *Scripted) SetPhaseList(source string) error {
	fn, err := s.rt.Compile("physics/"+phaseListChunk, source)
	if err != nil {
		return fmt.Errorf("physics phase list: %w", err)
	}
	ret, err := s.rt.Eval("physics/"+phaseListChunk, fn)
	if err != nil {
		return fmt.Errorf("physics phase list: %w", err)
	}
	tbl, ok := ret.(*lua.LTable)
	if !ok {
		return fmt.Errorf("physics phase list: returned %s, want a table", ret.Type())
	}
	var order []string
	for i := 1; i <= tbl.Len(); i++ {
		name, ok := tbl.RawGetInt(i).(lua.LString)
		if !ok {
			return fmt.Errorf("physics phase list: entry %d is not a string", i)
		}
		if _, ok := s.chunks[string(name)]; !ok {
			return fmt.Errorf("physics phase list: %w: %q", ErrUnknownPhase, string(name))
		}
		order = append(order, string(name))
	}
	s.order = order
	return nil
}

func (s *Scripted) Step(tic uint64, dt time.Duration) error {
	s.state.prepare(tic, dt.Seconds())
	for _, name := range s.order {
		start := time.Now()
		err := s.rt.Run("physics/"+name, s.chunks[name])
		s.state.addTiming(name, time.Since(start))
		if err != nil {
			s.state.log.Error("physics phase failed", zap.String("phase", name), zap.Uint64("tic", tic), zap.Error(err))
			return fmt.Errorf("physics phase %s: %w", name, err)
		}
	}
	return nil
}
