package persist

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ticworld/kernel/internal/component"
	"github.com/ticworld/kernel/internal/config"
	"github.com/ticworld/kernel/internal/core/ecs"
	"github.com/ticworld/kernel/internal/replication"
	"go.uber.org/zap/zaptest"
)

// source drives a tiny world by hand.
type source struct {
	w   *ecs.World
	c   *component.Set
	obs *replication.Observer
	tic uint64
}

func newSource(t *testing.T) *source {
	t.Helper()
	w := ecs.NewWorld()
	c, err := component.Register(w)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return &source{w: w, c: c, obs: replication.NewObserver(w, c.Observed, c.Tracked())}
}

func (s *source) Tic() uint64      { return s.tic }
func (s *source) Snapshot() []byte { return s.obs.Snapshot(s.tic) }
func (s *source) Delta() []byte    { return s.obs.Delta(s.tic) }

func (s *source) spawn() ecs.EntityID {
	id := s.w.CreateEntity()
	s.c.Observed.Add(id)
	s.c.Position.Add(id)
	return id
}

// advance moves every entity one unit along x.
func (s *source) advance() {
	s.tic++
	for _, id := range s.w.Query(s.c.Position) {
		s.c.Position.SetFloat(id, component.X, s.c.Position.F(id, component.X)+1)
	}
}

func openTestSQLite(t *testing.T) *SQLiteRecorder {
	t.Helper()
	rec, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "rec", "frames.db"), 2, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { rec.Close() })
	return rec
}

func TestCodecRoundTrip(t *testing.T) {
	for level := 0; level <= 4; level++ {
		c, err := NewCodec(level)
		if err != nil {
			t.Fatalf("NewCodec(%d): %v", level, err)
		}
		raw := bytes.Repeat([]byte("TWRP frame "), 200)
		packed := c.Compress(raw)
		if len(packed) >= len(raw) {
			t.Fatalf("level %d: %d bytes did not shrink (%d)", level, len(raw), len(packed))
		}
		got, err := c.Decompress(packed)
		if err != nil || !bytes.Equal(got, raw) {
			t.Fatalf("level %d: round trip failed: %v", level, err)
		}
		if _, err := c.Decompress([]byte("not zstd")); err == nil {
			t.Fatalf("garbage decoded")
		}
		c.Close()
	}
}

func TestSQLiteAppendAndFrames(t *testing.T) {
	ctx := context.Background()
	rec := openTestSQLite(t)
	frames := []Frame{
		{Tic: 0, Kind: replication.KindSnapshot, Payload: []byte("snap")},
		{Tic: 1, Kind: replication.KindDelta, Payload: []byte("d1")},
		{Tic: 2, Kind: replication.KindDelta, Payload: []byte("d2")},
	}
	if err := rec.Append(ctx, frames...); err != nil {
		t.Fatalf("Append: %v", err)
	}
	got, err := rec.Frames(ctx, 1)
	if err != nil {
		t.Fatalf("Frames: %v", err)
	}
	if len(got) != 2 || got[0].Tic != 1 || string(got[1].Payload) != "d2" || got[1].Kind != replication.KindDelta {
		t.Fatalf("frames = %+v", got)
	}
	if got[0].Seq >= got[1].Seq {
		t.Fatalf("frames out of order: %d then %d", got[0].Seq, got[1].Seq)
	}
	st, err := rec.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Frames != 3 || st.Snapshots != 1 || st.RawBytes != 8 || st.Bytes == 0 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestTapeRecordsKeyframesAndReplays(t *testing.T) {
	ctx := context.Background()
	rec := openTestSQLite(t)
	src := newSource(t)
	first := src.spawn()
	tape := NewTape(rec, 4)

	for i := 0; i < 10; i++ {
		if i == 6 {
			src.spawn()
		}
		if _, err := tape.Record(ctx, src); err != nil {
			t.Fatalf("Record: %v", err)
		}
		src.advance()
	}

	all, err := rec.Frames(ctx, 0)
	if err != nil {
		t.Fatalf("Frames: %v", err)
	}
	var snaps []uint64
	for _, f := range all {
		if f.Kind == replication.KindSnapshot {
			snaps = append(snaps, f.Tic)
		}
	}
	if len(all) != 10 || len(snaps) != 3 || snaps[0] != 0 || snaps[1] != 4 || snaps[2] != 8 {
		t.Fatalf("recorded %d frames, snapshots at %v", len(all), snaps)
	}

	dst := ecs.NewWorld()
	dc, err := component.Register(dst)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	rcv := replication.NewReceiver(zaptest.NewLogger(t), dst, dc.Observed, dc.Tracked())
	n, err := Replay(ctx, rec, rcv, 6)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if n != 3 {
		t.Fatalf("applied %d frames, want snapshot 4 plus deltas 5 and 6", n)
	}
	local, ok := rcv.Local(first)
	if !ok {
		t.Fatalf("first entity missing")
	}
	if x := dc.Position.F(local, component.X); x != 6 {
		t.Fatalf("x at tic 6 = %v, want 6", x)
	}
	if dc.Observed.Len() != 2 {
		t.Fatalf("replica has %d entities, want 2", dc.Observed.Len())
	}
}

func TestReplayWithoutSnapshot(t *testing.T) {
	ctx := context.Background()
	rec := openTestSQLite(t)
	if err := rec.Append(ctx, Frame{Tic: 3, Kind: replication.KindDelta, Payload: []byte{}}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	dst := ecs.NewWorld()
	dc, _ := component.Register(dst)
	rcv := replication.NewReceiver(nil, dst, dc.Observed, dc.Tracked())
	if _, err := Replay(ctx, rec, rcv, 10); !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("got %v, want ErrNoSnapshot", err)
	}
}

func TestOpenBackends(t *testing.T) {
	ctx := context.Background()
	rec, err := Open(ctx, config.RecorderConfig{Backend: "none"}, nil)
	if err != nil || rec != nil {
		t.Fatalf("none backend: %v %v", rec, err)
	}
	if _, err := Open(ctx, config.RecorderConfig{Backend: "tape"}, nil); err == nil {
		t.Fatalf("unknown backend accepted")
	}
	rec, err = Open(ctx, config.RecorderConfig{Backend: "sqlite", Path: filepath.Join(t.TempDir(), "f.db")}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("sqlite backend: %v", err)
	}
	rec.Close()
}

func TestPostgresRecorder(t *testing.T) {
	dsn := os.Getenv("TICWORLD_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TICWORLD_TEST_PG_DSN not set")
	}
	ctx := context.Background()
	rec, err := Open(ctx, config.RecorderConfig{Backend: "postgres", DSN: dsn, MaxOpenConns: 2}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rec.Close()
	before, err := rec.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	const tic = 1 << 40
	if err := rec.Append(ctx, Frame{Tic: tic, Kind: replication.KindSnapshot, Payload: []byte("pg")}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	got, err := rec.Frames(ctx, tic)
	if err != nil || len(got) == 0 || string(got[len(got)-1].Payload) != "pg" {
		t.Fatalf("Frames: %v %+v", err, got)
	}
	after, _ := rec.Stats(ctx)
	if after.Frames != before.Frames+1 {
		t.Fatalf("frame count %d -> %d", before.Frames, after.Frames)
	}
}
