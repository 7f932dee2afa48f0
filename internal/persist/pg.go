package persist

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/ticworld/kernel/internal/replication"
	"go.uber.org/zap"
)

// PGRecorder stores frames in Postgres.
type PGRecorder struct {
	db    *DB
	codec *Codec
	log   *zap.Logger
}

// NewPGRecorder migrates the schema and takes ownership of db.
func NewPGRecorder(ctx context.Context, db *DB, level int, log *zap.Logger) (*PGRecorder, error) {
	sqlDB := stdlib.OpenDBFromPool(db.Pool)
	err := RunMigrations(ctx, sqlDB, "postgres")
	sqlDB.Close()
	if err != nil {
		return nil, err
	}
	codec, err := NewCodec(level)
	if err != nil {
		return nil, err
	}
	return &PGRecorder{db: db, codec: codec, log: log}, nil
}

// Append writes all frames in one batched transaction. Either every frame
// is stored or none is.
func (r *PGRecorder) Append(ctx context.Context, frames ...Frame) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("append begin: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, f := range frames {
		batch.Queue(`INSERT INTO frames (tic, kind, raw_size, payload) VALUES ($1, $2, $3, $4)`,
			int64(f.Tic), int16(f.Kind), int32(len(f.Payload)), r.codec.Compress(f.Payload))
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("append insert: %w", err)
	}
	return tx.Commit(ctx)
}

func (r *PGRecorder) Frames(ctx context.Context, fromTic uint64) ([]Frame, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT seq, tic, kind, payload FROM frames WHERE tic >= $1 ORDER BY seq`, int64(fromTic))
	if err != nil {
		return nil, fmt.Errorf("query frames: %w", err)
	}
	defer rows.Close()

	var out []Frame
	for rows.Next() {
		var (
			f    Frame
			tic  int64
			kind int16
			blob []byte
		)
		if err := rows.Scan(&f.Seq, &tic, &kind, &blob); err != nil {
			return nil, fmt.Errorf("scan frame: %w", err)
		}
		f.Tic = uint64(tic)
		f.Kind = replication.Kind(kind)
		if f.Payload, err = r.codec.Decompress(blob); err != nil {
			return nil, fmt.Errorf("frame %d: %w", f.Seq, err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (r *PGRecorder) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	err := r.db.Pool.QueryRow(ctx, `SELECT
		COUNT(*),
		COUNT(*) FILTER (WHERE kind = $1),
		COALESCE(SUM(raw_size), 0),
		COALESCE(SUM(octet_length(payload)), 0)
		FROM frames`, int16(replication.KindSnapshot)).Scan(&s.Frames, &s.Snapshots, &s.RawBytes, &s.Bytes)
	if err != nil {
		return Stats{}, fmt.Errorf("frame stats: %w", err)
	}
	return s, nil
}

func (r *PGRecorder) Close() error {
	r.codec.Close()
	r.db.Close()
	return nil
}
