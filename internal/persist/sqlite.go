package persist

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ticworld/kernel/internal/replication"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SQLiteRecorder stores frames in a local SQLite file.
type SQLiteRecorder struct {
	db    *sql.DB
	codec *Codec
	log   *zap.Logger
}

func OpenSQLite(ctx context.Context, path string, level int, log *zap.Logger) (*SQLiteRecorder, error) {
	if path == "" {
		return nil, fmt.Errorf("open sqlite recorder: empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("open sqlite recorder: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite recorder: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, p := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	} {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite %s: %w", p, err)
		}
	}
	if err := RunMigrations(ctx, db, "sqlite3"); err != nil {
		db.Close()
		return nil, err
	}
	codec, err := NewCodec(level)
	if err != nil {
		db.Close()
		return nil, err
	}
	log.Info("sqlite recorder opened", zap.String("path", path))
	return &SQLiteRecorder{db: db, codec: codec, log: log}, nil
}

// Append writes all frames in one transaction.
func (r *SQLiteRecorder) Append(ctx context.Context, frames ...Frame) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("append begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO frames (tic, kind, raw_size, payload) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("append prepare: %w", err)
	}
	defer stmt.Close()
	for _, f := range frames {
		if _, err := stmt.ExecContext(ctx, int64(f.Tic), int(f.Kind), len(f.Payload), r.codec.Compress(f.Payload)); err != nil {
			return fmt.Errorf("append insert: %w", err)
		}
	}
	return tx.Commit()
}

func (r *SQLiteRecorder) Frames(ctx context.Context, fromTic uint64) ([]Frame, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT seq, tic, kind, payload FROM frames WHERE tic >= ? ORDER BY seq`, int64(fromTic))
	if err != nil {
		return nil, fmt.Errorf("query frames: %w", err)
	}
	defer rows.Close()

	var out []Frame
	for rows.Next() {
		var (
			f    Frame
			tic  int64
			kind int
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

func (r *SQLiteRecorder) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	err := r.db.QueryRowContext(ctx, `SELECT
		COUNT(*),
		COALESCE(SUM(CASE WHEN kind = ? THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(raw_size), 0),
		COALESCE(SUM(LENGTH(payload)), 0)
		FROM frames`, int(replication.KindSnapshot)).Scan(&s.Frames, &s.Snapshots, &s.RawBytes, &s.Bytes)
	if err != nil {
		return Stats{}, fmt.Errorf("frame stats: %w", err)
	}
	return s, nil
}

func (r *SQLiteRecorder) Close() error {
	r.codec.Close()
	return r.db.Close()
}
