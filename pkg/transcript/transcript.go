// Package transcript persists drained channel traffic to SQLite for
// post-mortem inspection: every forwarded chunk is recorded with its role,
// a global sequence number, and a timestamp.
//
// Recording is decoupled from the drain path by a single writer goroutine.
// Chunks from lossless channels apply backpressure when the queue is full;
// chunks from the diagnostic channel are dropped instead, mirroring the
// channel's own drop policy so recording can never make the child block on
// its diagnostic writes.
package transcript

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hexpipe/hexpipe/pkg/channel"
)

const schema = `
CREATE TABLE IF NOT EXISTS chunks (
	seq  INTEGER PRIMARY KEY AUTOINCREMENT,
	ts   INTEGER NOT NULL,
	role TEXT    NOT NULL,
	data BLOB    NOT NULL
);
CREATE INDEX IF NOT EXISTS chunks_role_seq ON chunks(role, seq);
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

const queueDepth = 256

type record struct {
	ts   time.Time
	role channel.Role
	data []byte
}

// Recorder writes channel traffic to a SQLite database.
type Recorder struct {
	db      *sql.DB
	queue   chan record
	done    chan struct{}
	once    sync.Once
	writeMu sync.Mutex // guards queue against send-after-close
	closed  bool
}

// Open creates or opens a transcript database at path.
func Open(path string) (*Recorder, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening transcript database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing transcript schema: %w", err)
	}
	r := &Recorder{
		db:    db,
		queue: make(chan record, queueDepth),
		done:  make(chan struct{}),
	}
	go r.writeLoop()
	return r, nil
}

func (r *Recorder) writeLoop() {
	defer close(r.done)
	for rec := range r.queue {
		// Insert errors are swallowed; the transcript is an observer and
		// must not fail the spawn it observes.
		_, _ = r.db.Exec(
			"INSERT INTO chunks (ts, role, data) VALUES (?, ?, ?)",
			rec.ts.UnixNano(), rec.role.String(), rec.data,
		)
	}
}

// Sink returns a writer that records chunks for role. Diagnostic-class
// chunks are dropped when the recording queue is full; all others block.
func (r *Recorder) Sink(role channel.Role) *Sink {
	return &Sink{
		rec:   r,
		role:  role,
		lossy: role.Info().Policy == channel.DropOldest,
	}
}

// Sink records one channel's chunks.
type Sink struct {
	rec   *Recorder
	role  channel.Role
	lossy bool
}

// Write enqueues a copy of p for recording.
func (s *Sink) Write(p []byte) (int, error) {
	data := make([]byte, len(p))
	copy(data, p)
	rec := record{ts: time.Now(), role: s.role, data: data}

	s.rec.writeMu.Lock()
	defer s.rec.writeMu.Unlock()
	if s.rec.closed {
		return len(p), nil
	}
	if s.lossy {
		select {
		case s.rec.queue <- rec:
		default:
		}
		return len(p), nil
	}
	s.rec.queue <- rec
	return len(p), nil
}

// RecordExit stores the child's exit code in the transcript metadata.
func (r *Recorder) RecordExit(code int) error {
	_, err := r.db.Exec(
		"INSERT INTO meta (key, value) VALUES ('exit_code', ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		strconv.Itoa(code),
	)
	return err
}

// ExitCode returns the recorded exit code, or false if none was recorded.
func (r *Recorder) ExitCode(ctx context.Context) (int, bool, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM meta WHERE key = 'exit_code'").Scan(&value)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	code, err := strconv.Atoi(value)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt exit_code %q", value)
	}
	return code, true, nil
}

// Chunk is one recorded forward.
type Chunk struct {
	Seq  int64
	Time time.Time
	Role channel.Role
	Data []byte
}

// Chunks returns recorded chunks for role with sequence numbers greater
// than afterSeq, oldest first, up to limit (unlimited when limit <= 0).
func (r *Recorder) Chunks(ctx context.Context, role channel.Role, afterSeq int64, limit int) ([]Chunk, error) {
	query := "SELECT seq, ts, data FROM chunks WHERE role = ? AND seq > ? ORDER BY seq ASC"
	args := []any{role.String(), afterSeq}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying transcript chunks: %w", err)
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var (
			seq  int64
			ts   int64
			data []byte
		)
		if err := rows.Scan(&seq, &ts, &data); err != nil {
			return nil, fmt.Errorf("scanning transcript chunk: %w", err)
		}
		chunks = append(chunks, Chunk{Seq: seq, Time: time.Unix(0, ts), Role: role, Data: data})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return chunks, nil
}

// Close drains the recording queue and closes the database. Sinks must not
// be written after Close.
func (r *Recorder) Close() error {
	r.once.Do(func() {
		r.writeMu.Lock()
		r.closed = true
		close(r.queue)
		r.writeMu.Unlock()
		<-r.done
	})
	return r.db.Close()
}
