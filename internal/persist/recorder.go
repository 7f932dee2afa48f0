// Package persist records replication frames so a run can be replayed
// into a receiving world later.
package persist

import (
	"context"
	"errors"
	"fmt"

	"github.com/ticworld/kernel/internal/config"
	"github.com/ticworld/kernel/internal/replication"
	"go.uber.org/zap"
)

// ErrNoSnapshot means a replay found no snapshot to start from.
var ErrNoSnapshot = errors.New("no snapshot frame recorded")

// Frame is one recorded replication frame. Payload is the uncompressed
// frame as produced by the observer.
type Frame struct {
	Seq     int64
	Tic     uint64
	Kind    replication.Kind
	Payload []byte
}

// Stats summarises a recording.
type Stats struct {
	Frames    int64
	Snapshots int64
	RawBytes  int64 // before compression
	Bytes     int64 // as stored
}

// Recorder stores frames in order.
type Recorder interface {
	Append(ctx context.Context, frames ...Frame) error
	// Frames returns every frame with tic >= fromTic in append order.
	Frames(ctx context.Context, fromTic uint64) ([]Frame, error)
	Stats(ctx context.Context) (Stats, error)
	Close() error
}

// Open builds the recorder named by cfg.Backend. "none" returns nil.
func Open(ctx context.Context, cfg config.RecorderConfig, log *zap.Logger) (Recorder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	switch cfg.Backend {
	case "", "none":
		return nil, nil
	case "sqlite":
		return OpenSQLite(ctx, cfg.Path, cfg.CompressionLevel, log)
	case "postgres":
		db, err := NewDB(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		rec, err := NewPGRecorder(ctx, db, cfg.CompressionLevel, log)
		if err != nil {
			db.Close()
			return nil, err
		}
		return rec, nil
	}
	return nil, fmt.Errorf("open recorder: unknown backend %q", cfg.Backend)
}

// Source produces replication frames; *kernel.World satisfies it.
type Source interface {
	Tic() uint64
	Snapshot() []byte
	Delta() []byte
}

// Tape records a snapshot on the first call and then a delta per call,
// with a fresh snapshot every keyframe tics.
type Tape struct {
	rec      Recorder
	keyframe uint64
	last     uint64
	started  bool
}

func NewTape(rec Recorder, keyframeEvery uint64) *Tape {
	return &Tape{rec: rec, keyframe: keyframeEvery}
}

// Record captures the current state of src. It returns the encoded frame
// so callers can forward it elsewhere.
func (t *Tape) Record(ctx context.Context, src Source) (Frame, error) {
	tic := src.Tic()
	f := Frame{Tic: tic}
	if !t.started || (t.keyframe > 0 && tic-t.last >= t.keyframe) {
		f.Kind = replication.KindSnapshot
		f.Payload = src.Snapshot()
		t.started = true
		t.last = tic
	} else {
		f.Kind = replication.KindDelta
		f.Payload = src.Delta()
	}
	if t.rec == nil {
		return f, nil
	}
	if err := t.rec.Append(ctx, f); err != nil {
		return f, fmt.Errorf("record tic %d: %w", tic, err)
	}
	return f, nil
}

// Replay applies the latest snapshot at or before untilTic and every later
// frame up to untilTic to rcv. It returns the number of frames applied.
func Replay(ctx context.Context, rec Recorder, rcv *replication.Receiver, untilTic uint64) (int, error) {
	frames, err := rec.Frames(ctx, 0)
	if err != nil {
		return 0, err
	}
	start := -1
	for i, f := range frames {
		if f.Tic > untilTic {
			break
		}
		if f.Kind == replication.KindSnapshot {
			start = i
		}
	}
	if start < 0 {
		return 0, ErrNoSnapshot
	}
	n := 0
	for _, f := range frames[start:] {
		if f.Tic > untilTic {
			break
		}
		if _, err := rcv.Apply(f.Payload); err != nil {
			return n, fmt.Errorf("replay frame %d (tic %d): %w", f.Seq, f.Tic, err)
		}
		n++
	}
	return n, nil
}
