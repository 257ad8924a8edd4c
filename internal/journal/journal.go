// Package journal records runs and their per-frame outcomes in PostgreSQL.
package journal

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/spaolacci/murmur3"

	"sobelf-go/internal/types"
)

// Journal is one connection to the journal database. It is not safe for
// concurrent use; only rank 0 writes to it.
type Journal struct {
	conn *pgx.Conn
}

// Run describes a run when it starts.
type Run struct {
	Pipeline  string
	BlurSize  int
	Threshold int
	Ranks     int
	Input     string
	Output    string
}

// Summary is what is known about a run when it ends.
type Summary struct {
	Frames  int
	Split   int
	Batch   int
	Skipped int
	Load    time.Duration
	Filter  time.Duration
	Store   time.Duration
	Err     error
}

// FrameResult is the outcome of one frame.
type FrameResult struct {
	Frame      int
	Strategy   string
	Regions    int
	Iterations int
	Elapsed    time.Duration
	Digest     uint64
}

// Open connects to dsn and creates the tables if they are missing.
func Open(ctx context.Context, dsn string) (*Journal, error) {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := initSchema(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("initialize journal schema: %w", err)
	}
	return &Journal{conn: conn}, nil
}

func initSchema(ctx context.Context, conn *pgx.Conn) error {
	_, err := conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			pipeline TEXT NOT NULL,
			blur_size INT NOT NULL,
			threshold INT NOT NULL,
			ranks INT NOT NULL,
			input TEXT NOT NULL,
			output TEXT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			finished_at TIMESTAMPTZ,
			frames INT,
			split_frames INT,
			batch_frames INT,
			skipped_frames INT,
			load_ns BIGINT,
			filter_ns BIGINT,
			store_ns BIGINT,
			error TEXT
		);
		CREATE TABLE IF NOT EXISTS frame_results (
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			frame INT NOT NULL,
			strategy TEXT NOT NULL,
			regions INT NOT NULL,
			iterations INT NOT NULL,
			elapsed_ns BIGINT NOT NULL,
			digest BIGINT NOT NULL,
			PRIMARY KEY (run_id, frame)
		);
	`)
	return err
}

func (j *Journal) Close(ctx context.Context) {
	j.conn.Close(ctx)
}

// Begin inserts a run and returns its id.
func (j *Journal) Begin(ctx context.Context, r Run) (string, error) {
	id := uuid.New().String()
	_, err := j.conn.Exec(ctx, `
		INSERT INTO runs (id, pipeline, blur_size, threshold, ranks, input, output)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, id, r.Pipeline, r.BlurSize, r.Threshold, r.Ranks, r.Input, r.Output)
	if err != nil {
		return "", err
	}
	return id, nil
}

// Frames stores the frame outcomes of run id in one COPY.
func (j *Journal) Frames(ctx context.Context, id string, frames []FrameResult) error {
	rows := make([][]any, len(frames))
	for i, f := range frames {
		rows[i] = []any{id, f.Frame, f.Strategy, f.Regions, f.Iterations, f.Elapsed.Nanoseconds(), int64(f.Digest)}
	}
	_, err := j.conn.CopyFrom(ctx,
		pgx.Identifier{"frame_results"},
		[]string{"run_id", "frame", "strategy", "regions", "iterations", "elapsed_ns", "digest"},
		pgx.CopyFromRows(rows))
	return err
}

// Finish closes run id with its summary.
func (j *Journal) Finish(ctx context.Context, id string, s Summary) error {
	var errText *string
	if s.Err != nil {
		msg := s.Err.Error()
		errText = &msg
	}
	tag, err := j.conn.Exec(ctx, `
		UPDATE runs SET finished_at = NOW(), frames = $2, split_frames = $3, batch_frames = $4,
			skipped_frames = $5, load_ns = $6, filter_ns = $7, store_ns = $8, error = $9
		WHERE id = $1
	`, id, s.Frames, s.Split, s.Batch, s.Skipped,
		s.Load.Nanoseconds(), s.Filter.Nanoseconds(), s.Store.Nanoseconds(), errText)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("finish run %s: no such run", id)
	}
	return nil
}

// Digests returns the frame digests of run id in frame order.
func (j *Journal) Digests(ctx context.Context, id string) ([]uint64, error) {
	rows, err := j.conn.Query(ctx, `SELECT digest FROM frame_results WHERE run_id = $1 ORDER BY frame`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []uint64
	for rows.Next() {
		var d int64
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		out = append(out, uint64(d))
	}
	return out, rows.Err()
}

// Digest hashes the dimensions and pixels of f. Two runs that produced the
// same frame have the same digest.
func Digest(f types.Frame) uint64 {
	h := murmur3.New64()
	var dims [8]byte
	binary.LittleEndian.PutUint32(dims[:4], uint32(f.Width))
	binary.LittleEndian.PutUint32(dims[4:], uint32(f.Height))
	_, _ = h.Write(dims[:])
	buf := make([]byte, 0, 3*len(f.Pix))
	for _, p := range f.Pix {
		buf = append(buf, p.R, p.G, p.B)
	}
	_, _ = h.Write(buf)
	return h.Sum64()
}
