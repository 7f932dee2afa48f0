package kernel

import (
	"fmt"

	"go.uber.org/zap"
)

// RunTics advances w by exactly n tics and returns it. n == 0 leaves the
// world untouched. The first failing system or hook aborts the current tic
// and the remaining ones; state already mutated in that tic is kept.
func RunTics(w *World, n int) (*World, error) {
	return w, w.RunTics(n)
}

// RunTics is the method form of RunTics.
func (w *World) RunTics(n int) error {
	if w.closed {
		return ErrClosed
	}
	if w.running {
		return ErrReentrant
	}
	w.running = true
	defer func() { w.running = false }()

	for i := 0; i < n; i++ {
		w.tic++
		if err := w.runner.Tick(w.opts.TicDuration); err != nil {
			w.log.Warn("tic aborted", zap.Uint64("tic", w.tic), zap.Error(err))
			return fmt.Errorf("tic %d: %w", w.tic, err)
		}
	}
	return nil
}
